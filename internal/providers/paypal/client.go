// Package paypal implements the PayPal Orders v2 checkout flow.
package paypal

import (
	"context"
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
	name = string(payment.ProviderPayPal)

	defaultTokenLifetime = 55 * time.Minute

	requestIDHeader = "PayPal-Request-Id"
)

// Config holds the PayPal credentials and endpoints.
type Config struct {
	BaseURL              string
	ClientID             string
	ClientSecret         string
	ReturnURL            string
	CancelURL            string
	DefaultTokenLifetime time.Duration
}

// Client creates, captures and inspects PayPal orders. It implements
// providers.Provider, providers.Capturer and providers.StatusQuerier.
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

func (c *Client) Name() payment.Provider { return payment.ProviderPayPal }

func (c *Client) Validate(req payment.Request) error { return req.Validate() }

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Description string `json:"description,omitempty"`
	Amount      money  `json:"amount"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type createOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []purchaseUnit      `json:"purchase_units"`
	ApplicationContext *applicationContext `json:"application_context,omitempty"`
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount *money `json:"amount"`
}

type order struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Amount      *money `json:"amount"`
		Payments    *struct {
			Captures []capture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// firstCapture returns purchase_units[0].payments.captures[0] if present.
func (o *order) firstCapture() *capture {
	if len(o.PurchaseUnits) == 0 || o.PurchaseUnits[0].Payments == nil ||
		len(o.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil
	}
	return &o.PurchaseUnits[0].Payments.Captures[0]
}

func (o *order) approvalURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" {
			return l.Href
		}
	}
	return ""
}

// Initiate creates a CAPTURE-intent order. The reference is sent as
// PayPal-Request-Id so a repeated request returns the same order.
func (c *Client) Initiate(ctx context.Context, req payment.Request) (*payment.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.configured(); err != nil {
		return nil, err
	}

	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.Reference,
			Description: req.Description,
			Amount: money{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        req.Amount.StringFixed(2),
			},
		}},
	}
	if c.cfg.ReturnURL != "" || c.cfg.CancelURL != "" {
		body.ApplicationContext = &applicationContext{ReturnURL: c.cfg.ReturnURL, CancelURL: c.cfg.CancelURL}
	}

	call := providers.Call{
		Provider:  name,
		Operation: "create_order",
		Method:    http.MethodPost,
		URL:       c.cfg.BaseURL + "/v2/checkout/orders",
		Header:    http.Header{requestIDHeader: []string{req.Reference}},
		Body:      body,
	}
	var o order
	if err := c.do(ctx, call, "Failed to create PayPal order", &o); err != nil {
		return nil, err
	}

	c.logger.Info().Str("reference", req.Reference).Str("order_id", o.ID).Msg("paypal order created")

	return &payment.Result{
		Success:           true,
		Provider:          payment.ProviderPayPal,
		Status:            payment.StatusPending,
		Reference:         req.Reference,
		ProviderReference: o.ID,
		Amount:            payment.NullAmount(body.PurchaseUnits[0].Amount.Value),
		Currency:          body.PurchaseUnits[0].Amount.CurrencyCode,
		ApprovalURL:       o.approvalURL(),
		ProviderStatus:    o.Status,
	}, nil
}

// Capture captures an approved order.
func (c *Client) Capture(ctx context.Context, orderID string) (*payment.Result, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, domainErrors.Invalid(domainErrors.ErrMissingFields, "order_id", "Missing required fields: order_id")
	}
	if err := c.configured(); err != nil {
		return nil, err
	}

	call := providers.Call{
		Provider:  name,
		Operation: "capture_order",
		Method:    http.MethodPost,
		URL:       c.cfg.BaseURL + "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture",
		Header:    http.Header{requestIDHeader: []string{"capture-" + orderID}},
		Body:      struct{}{},
	}
	var o order
	if err := c.do(ctx, call, "Failed to capture PayPal order", &o); err != nil {
		return nil, err
	}

	res := &payment.Result{
		Success:           true,
		Provider:          payment.ProviderPayPal,
		Status:            NormalizeStatus(o.Status),
		ProviderReference: orderID,
		ProviderStatus:    o.Status,
	}
	if cp := o.firstCapture(); cp != nil {
		res.TransactionID = cp.ID
		if cp.Amount != nil {
			res.Amount = payment.NullAmount(cp.Amount.Value)
			res.Currency = cp.Amount.CurrencyCode
		}
	}

	c.logger.Info().Str("order_id", orderID).Str("status", o.Status).Msg("paypal order captured")
	return res, nil
}

// QueryStatus reads the live state of an order.
func (c *Client) QueryStatus(ctx context.Context, orderID string) (*payment.Result, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, domainErrors.Invalid(domainErrors.ErrMissingFields, "reference", "Missing required parameters: reference")
	}
	if err := c.configured(); err != nil {
		return nil, err
	}

	call := providers.Call{
		Provider:  name,
		Operation: "get_order",
		Method:    http.MethodGet,
		URL:       c.cfg.BaseURL + "/v2/checkout/orders/" + url.PathEscape(orderID),
	}
	var o order
	if err := c.do(ctx, call, "Failed to get PayPal order", &o); err != nil {
		return nil, err
	}

	res := &payment.Result{
		Success:           true,
		Provider:          payment.ProviderPayPal,
		Status:            NormalizeStatus(o.Status),
		ProviderReference: orderID,
		ProviderStatus:    o.Status,
	}
	if len(o.PurchaseUnits) > 0 {
		res.Reference = o.PurchaseUnits[0].ReferenceID
		if a := o.PurchaseUnits[0].Amount; a != nil {
			res.Amount = payment.NullAmount(a.Value)
			res.Currency = a.CurrencyCode
		}
	}
	if cp := o.firstCapture(); cp != nil {
		res.TransactionID = cp.ID
		if cp.Amount != nil {
			res.Amount = payment.NullAmount(cp.Amount.Value)
			res.Currency = cp.Amount.CurrencyCode
		}
	}
	return res, nil
}

// NormalizeStatus maps a PayPal order status onto the gateway statuses.
func NormalizeStatus(status string) payment.Status {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return payment.StatusCompleted
	case "VOIDED", "DECLINED", "FAILED":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}

// do authenticates and performs an order call. A 401 drops the cached token
// so the next request re-authenticates.
func (c *Client) do(ctx context.Context, call providers.Call, fallback string, out any) error {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return err
	}
	if call.Header == nil {
		call.Header = http.Header{}
	}
	call.Header.Set("Authorization", "Bearer "+token)

	resp, err := providers.Do(ctx, c.http, call)
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", call.Operation).Msg("paypal request failed")
		return err
	}
	if !resp.OK() {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		perr := providers.Rejected(call, resp, fallback)
		c.logger.Warn().Int("status", resp.StatusCode).Str("operation", call.Operation).Msg(perr.Message)
		return perr
	}
	return resp.Decode(call, out)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) fetchToken(ctx context.Context) (tokencache.Grant, error) {
	call := providers.Call{
		Provider:  name,
		Operation: "authenticate",
		Method:    http.MethodPost,
		URL:       c.cfg.BaseURL + "/v1/oauth2/token",
		Form:      url.Values{"grant_type": {"client_credentials"}},
		BasicAuth: &providers.Credentials{Username: c.cfg.ClientID, Password: c.cfg.ClientSecret},
	}
	resp, err := providers.Do(ctx, c.http, call)
	if err != nil {
		return tokencache.Grant{}, err
	}
	if !resp.OK() {
		perr := providers.Rejected(call, resp, "Failed to authenticate with PayPal")
		perr.Err = domainErrors.ErrAuthenticationFailed
		return tokencache.Grant{}, perr
	}

	var tr tokenResponse
	if err := resp.Decode(call, &tr); err != nil {
		return tokencache.Grant{}, err
	}
	if tr.AccessToken == "" {
		return tokencache.Grant{}, &domainErrors.ProviderError{
			Provider:   name,
			Operation:  call.Operation,
			StatusCode: http.StatusBadGateway,
			Message:    "PayPal returned no access token",
			Payload:    resp.Payload(),
			Err:        domainErrors.ErrAuthenticationFailed,
		}
	}

	c.logger.Debug().Int64("expires_in", tr.ExpiresIn).Msg("paypal access token refreshed")
	return tokencache.Grant{Value: tr.AccessToken, Lifetime: time.Duration(tr.ExpiresIn) * time.Second}, nil
}

func (c *Client) configured() error {
	var missing []string
	if c.cfg.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.cfg.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return domainErrors.NotConfigured(name, missing...)
	}
	return nil
}
