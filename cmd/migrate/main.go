package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
)

func main() {
	var (
		command string
		dbURL   string
		path    string
		steps   int
	)

	flag.StringVar(&command, "direction", "up", "up, down or version")
	flag.StringVar(&dbURL, "db", "", "Database URL (defaults to the PAYGATE_DATABASE_* settings)")
	flag.StringVar(&path, "path", "internal/infrastructure/postgres/migrations", "Path to migration files")
	flag.IntVar(&steps, "steps", 0, "Number of migrations to apply or roll back; 0 means all for up, one for down")
	flag.Parse()

	_ = godotenv.Load()

	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			exit("Failed to load config: %v", err)
		}
		dbURL = cfg.Database.DatabaseURL()
	}

	m, err := migrate.New("file://"+path, dbURL)
	if err != nil {
		exit("Failed to create migrate instance: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			exit("Migration up failed: %v", err)
		}
		fmt.Println("Migrations applied")
	case "down":
		if steps <= 0 {
			steps = 1
		}
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			exit("Migration down failed: %v", err)
		}
		fmt.Printf("Rolled back %d migration(s)\n", steps)
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied")
			return
		}
		if err != nil {
			exit("Failed to read version: %v", err)
		}
		fmt.Printf("Version %d (dirty: %t)\n", version, dirty)
	default:
		exit("Unknown direction: %s (use up, down or version)", command)
	}
}

func exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
