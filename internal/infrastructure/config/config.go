package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// StorageConfig selects the backend for the order and idempotency stores.
type StorageConfig struct {
	Backend        string        `mapstructure:"backend"`
	OrderTTL       time.Duration `mapstructure:"order_ttl"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// ProvidersConfig holds every provider's credentials. Credentials are not
// checked at start-up; a client reports missing ones when it is called.
type ProvidersConfig struct {
	Environment             string        `mapstructure:"environment"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	TokenSafetyMargin       time.Duration `mapstructure:"token_safety_margin"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	PayPal                  PayPalConfig  `mapstructure:"paypal"`
	Pesapal                 PesapalConfig `mapstructure:"pesapal"`
	Relworx                 RelworxConfig `mapstructure:"relworx"`
}

type PayPalConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	ClientID             string        `mapstructure:"client_id"`
	ClientSecret         string        `mapstructure:"client_secret"`
	ReturnURL            string        `mapstructure:"return_url"`
	CancelURL            string        `mapstructure:"cancel_url"`
	DefaultTokenLifetime time.Duration `mapstructure:"default_token_lifetime"`
}

type PesapalConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	ConsumerKey          string        `mapstructure:"consumer_key"`
	ConsumerSecret       string        `mapstructure:"consumer_secret"`
	CallbackURL          string        `mapstructure:"callback_url"`
	DefaultTokenLifetime time.Duration `mapstructure:"default_token_lifetime"`
}

type RelworxConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	AccountNo string `mapstructure:"account_no"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// PAYGATE_PROVIDERS_PAYPAL_CLIENT_ID -> providers.paypal.client_id
	v.SetEnvPrefix("PAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paygate")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
	case BackendPostgres:
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be one of memory, redis, postgres, got %q", c.Storage.Backend))
	}

	switch c.Providers.Environment {
	case EnvironmentSandbox, EnvironmentProduction:
	default:
		errs = append(errs, fmt.Errorf("providers.environment must be sandbox or production, got %q", c.Providers.Environment))
	}
	if c.Providers.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("providers.request_timeout must be positive"))
	}
	if c.Providers.TokenSafetyMargin < 0 {
		errs = append(errs, fmt.Errorf("providers.token_safety_margin must not be negative"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Storage defaults
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.order_ttl", "720h")
	v.SetDefault("storage.idempotency_ttl", "24h")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paygate")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "paygate")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connect_retries", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Provider defaults. Empty keys are registered so AutomaticEnv can fill them.
	v.SetDefault("providers.environment", EnvironmentSandbox)
	v.SetDefault("providers.request_timeout", "15s")
	v.SetDefault("providers.token_safety_margin", "60s")
	v.SetDefault("providers.circuit_breaker_threshold", 5)
	v.SetDefault("providers.circuit_breaker_timeout", "30s")

	v.SetDefault("providers.paypal.base_url", "")
	v.SetDefault("providers.paypal.client_id", "")
	v.SetDefault("providers.paypal.client_secret", "")
	v.SetDefault("providers.paypal.return_url", "")
	v.SetDefault("providers.paypal.cancel_url", "")
	v.SetDefault("providers.paypal.default_token_lifetime", "55m")

	v.SetDefault("providers.pesapal.base_url", "")
	v.SetDefault("providers.pesapal.consumer_key", "")
	v.SetDefault("providers.pesapal.consumer_secret", "")
	v.SetDefault("providers.pesapal.callback_url", "")
	v.SetDefault("providers.pesapal.default_token_lifetime", "5m")

	v.SetDefault("providers.relworx.base_url", "")
	v.SetDefault("providers.relworx.api_key", "")
	v.SetDefault("providers.relworx.account_no", "")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)
}

// PayPalBaseURL returns the configured override or the endpoint for the
// selected environment.
func (c *ProvidersConfig) PayPalBaseURL() string {
	if c.PayPal.BaseURL != "" {
		return strings.TrimRight(c.PayPal.BaseURL, "/")
	}
	if c.Environment == EnvironmentProduction {
		return "https://api-m.paypal.com"
	}
	return "https://api-m.sandbox.paypal.com"
}

func (c *ProvidersConfig) PesapalBaseURL() string {
	if c.Pesapal.BaseURL != "" {
		return strings.TrimRight(c.Pesapal.BaseURL, "/")
	}
	if c.Environment == EnvironmentProduction {
		return "https://pay.pesapal.com/v3"
	}
	return "https://cybqa.pesapal.com/pesapalv3"
}

// RelworxBaseURL has no sandbox host; test traffic is separated by API key.
func (c *ProvidersConfig) RelworxBaseURL() string {
	if c.Relworx.BaseURL != "" {
		return strings.TrimRight(c.Relworx.BaseURL, "/")
	}
	return "https://payments.relworx.com/api"
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
