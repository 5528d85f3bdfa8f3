// Package pesapal implements the Pesapal v3 hosted-checkout API.
package pesapal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/tokencache"
	"github.com/rs/zerolog"
)

const (
	name = string(payment.ProviderPesapal)

	// Pesapal tokens are documented as valid for five minutes.
	defaultTokenLifetime = 5 * time.Minute
)

// expiryDate layouts seen from Pesapal. The second one carries no zone and
// is read as UTC.
var expiryLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.9999999"}

type Config struct {
	BaseURL              string
	ConsumerKey          string
	ConsumerSecret       string
	CallbackURL          string
	DefaultTokenLifetime time.Duration
}

// Client submits Pesapal orders and reads their status.
type Client struct {
	cfg    Config
	http   providers.HTTPDoer
	tokens *tokencache.Cache
	logger zerolog.Logger
}

func New(cfg Config, httpClient providers.HTTPDoer, logger zerolog.Logger, opts ...tokencache.Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DefaultTokenLifetime <= 0 {
		cfg.DefaultTokenLifetime = defaultTokenLifetime
	}

	c := &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With().Str("provider", name).Logger(),
	}
	c.tokens = tokencache.New(c.fetchToken, cfg.DefaultTokenLifetime, opts...)
	return c
}

func (c *Client) Name() payment.Provider { return payment.ProviderPesapal }

func (c *Client) Validate(req payment.Request) error { return req.Validate() }

type billingAddress struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

type submitOrderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         json.Number    `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress billingAddress `json:"billing_address"`
}

type submitOrderResponse struct {
	OrderTrackingID   string `json:"order_tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
	Status            string `json:"status"`
}

// Initiate submits an order. The provider payload is returned unmodified in
// Result.Raw.
func (c *Client) Initiate(ctx context.Context, req payment.Request) (*payment.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.configured(); err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = "Payment for order " + req.Reference
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = c.cfg.CallbackURL
	}
	phone := req.Customer.Phone
	if phone == "" {
		phone = req.MSISDN
	}

	call := providers.Call{
		Provider:  name,
		Operation: "submit_order",
		Method:    http.MethodPost,
		URL:       c.cfg.BaseURL + "/api/Transactions/SubmitOrderRequest",
		Body: submitOrderRequest{
			ID:             req.Reference,
			Currency:       strings.ToUpper(req.Currency),
			Amount:         json.Number(req.Amount.String()),
			Description:    description,
			CallbackURL:    callback,
			NotificationID: "",
			BillingAddress: billingAddress{
				EmailAddress: req.Customer.Email,
				PhoneNumber:  phone,
				FirstName:    req.Customer.FirstName,
				LastName:     req.Customer.LastName,
			},
		},
	}
	resp, err := c.do(ctx, call, "Failed to submit Pesapal order")
	if err != nil {
		return nil, err
	}

	var out submitOrderResponse
	if err := resp.Decode(call, &out); err != nil {
		return nil, err
	}

	c.logger.Info().Str("reference", req.Reference).Str("order_tracking_id", out.OrderTrackingID).Msg("pesapal order submitted")

	return &payment.Result{
		Success:           true,
		Provider:          payment.ProviderPesapal,
		Status:            payment.StatusPending,
		Reference:         req.Reference,
		ProviderReference: out.OrderTrackingID,
		Amount:            payment.NullAmount(req.Amount.String()),
		Currency:          strings.ToUpper(req.Currency),
		ApprovalURL:       out.RedirectURL,
		Raw:               resp.Payload(),
	}, nil
}

type transactionStatus struct {
	PaymentMethod            string      `json:"payment_method"`
	Amount                   json.Number `json:"amount"`
	ConfirmationCode         string      `json:"confirmation_code"`
	PaymentStatusDescription string      `json:"payment_status_description"`
	Description              string      `json:"description"`
	Message                  string      `json:"message"`
	MerchantReference        string      `json:"merchant_reference"`
	Currency                 string      `json:"currency"`
}

// QueryStatus reads a transaction by its order tracking id.
func (c *Client) QueryStatus(ctx context.Context, trackingID string) (*payment.Result, error) {
	if strings.TrimSpace(trackingID) == "" {
		return nil, domainErrors.Invalid(domainErrors.ErrMissingFields, "reference", "Missing required parameters: reference")
	}
	if err := c.configured(); err != nil {
		return nil, err
	}

	call := providers.Call{
		Provider:  name,
		Operation: "transaction_status",
		Method:    http.MethodGet,
		URL: c.cfg.BaseURL + "/api/Transactions/GetTransactionStatus?" +
			url.Values{"orderTrackingId": {trackingID}}.Encode(),
	}
	resp, err := c.do(ctx, call, "Failed to get Pesapal transaction status")
	if err != nil {
		return nil, err
	}

	var st transactionStatus
	if err := resp.Decode(call, &st); err != nil {
		return nil, err
	}

	return &payment.Result{
		Success:           true,
		Provider:          payment.ProviderPesapal,
		Status:            payment.NormalizeStatus(st.PaymentStatusDescription),
		Reference:         st.MerchantReference,
		ProviderReference: trackingID,
		TransactionID:     st.ConfirmationCode,
		Amount:            payment.NullAmount(st.Amount.String()),
		Currency:          st.Currency,
		ProviderStatus:    st.PaymentStatusDescription,
		Message:           st.Description,
		Raw:               resp.Payload(),
	}, nil
}

func (c *Client) do(ctx context.Context, call providers.Call, fallback string) (*providers.Response, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, err
	}
	call.Header = http.Header{"Authorization": []string{"Bearer " + token}}

	resp, err := providers.Do(ctx, c.http, call)
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", call.Operation).Msg("pesapal request failed")
		return nil, err
	}
	if !resp.OK() {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		perr := providers.Rejected(call, resp, fallback)
		c.logger.Warn().Int("status", resp.StatusCode).Str("operation", call.Operation).Msg(perr.Message)
		return nil, perr
	}
	return resp, nil
}

type tokenRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type tokenResponse struct {
	Token      string `json:"token"`
	ExpiryDate string `json:"expiryDate"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (c *Client) fetchToken(ctx context.Context) (tokencache.Grant, error) {
	call := providers.Call{
		Provider:  name,
		Operation: "authenticate",
		Method:    http.MethodPost,
		URL:       c.cfg.BaseURL + "/api/Auth/RequestToken",
		Body:      tokenRequest{ConsumerKey: c.cfg.ConsumerKey, ConsumerSecret: c.cfg.ConsumerSecret},
	}
	resp, err := providers.Do(ctx, c.http, call)
	if err != nil {
		return tokencache.Grant{}, err
	}
	if !resp.OK() {
		perr := providers.Rejected(call, resp, "Failed to authenticate with Pesapal")
		perr.Err = domainErrors.ErrAuthenticationFailed
		return tokencache.Grant{}, perr
	}

	var tr tokenResponse
	if err := resp.Decode(call, &tr); err != nil {
		return tokencache.Grant{}, err
	}
	if tr.Token == "" {
		// Pesapal reports bad credentials as a 200 with an error object.
		perr := providers.Rejected(call, resp, "Pesapal returned no access token")
		perr.StatusCode = http.StatusBadGateway
		perr.Err = domainErrors.ErrAuthenticationFailed
		return tokencache.Grant{}, perr
	}

	c.logger.Debug().Str("expiry_date", tr.ExpiryDate).Msg("pesapal access token refreshed")
	return tokencache.Grant{Value: tr.Token, Lifetime: c.lifetime(tr.ExpiryDate)}, nil
}

// lifetime converts the absolute expiryDate into a duration against the
// token cache's clock. Zero means the cache default applies.
func (c *Client) lifetime(expiry string) time.Duration {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, expiry); err == nil {
			if d := t.Sub(c.tokens.Now()); d > 0 {
				return d
			}
			return 0
		}
	}
	return 0
}

func (c *Client) configured() error {
	var missing []string
	if c.cfg.ConsumerKey == "" {
		missing = append(missing, "consumer_key")
	}
	if c.cfg.ConsumerSecret == "" {
		missing = append(missing, "consumer_secret")
	}
	if len(missing) > 0 {
		return domainErrors.NotConfigured(name, missing...)
	}
	return nil
}
