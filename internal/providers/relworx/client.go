// Package relworx implements Relworx mobile-money collection requests.
package relworx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/rs/zerolog"
)

const (
	name = string(payment.ProviderRelworx)

	acceptHeader = "application/vnd.relworx.v2"

	defaultMessage = "Payment request initiated successfully"
)

// SupportedCurrencies are the mobile-money currencies Relworx collects in.
var SupportedCurrencies = map[string]bool{"UGX": true, "KES": true, "TZS": true}

type Config struct {
	BaseURL   string
	APIKey    string
	AccountNo string
}

// Client sends mobile-money payment requests. Authentication is a static API
// key, so there is no token cache.
type Client struct {
	cfg    Config
	http   providers.HTTPDoer
	logger zerolog.Logger
}

func New(cfg Config, httpClient providers.HTTPDoer, logger zerolog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With().Str("provider", name).Logger(),
	}
}

func (c *Client) Name() payment.Provider { return payment.ProviderRelworx }

// Validate implements providers.Provider.
func (c *Client) Validate(req payment.Request) error { return Validate(req) }

// Validate runs the request checks in order: presence, msisdn format,
// amount sign, currency. The first failure is returned.
func Validate(req payment.Request) error {
	var missing []string
	if strings.TrimSpace(req.MSISDN) == "" {
		missing = append(missing, "msisdn")
	}
	if req.Amount.IsZero() {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(req.Currency) == "" {
		missing = append(missing, "currency")
	}
	if strings.TrimSpace(req.Reference) == "" {
		missing = append(missing, "reference")
	}
	if len(missing) > 0 {
		return domainErrors.Invalid(domainErrors.ErrMissingFields, strings.Join(missing, ","),
			"Missing required fields: "+strings.Join(missing, ", "))
	}
	if !strings.HasPrefix(req.MSISDN, "+") {
		return domainErrors.Invalid(domainErrors.ErrInvalidMSISDN, "msisdn",
			"Invalid phone number format. Must be in international format (e.g., +256701345678)")
	}
	if !req.Amount.IsPositive() {
		return domainErrors.Invalid(domainErrors.ErrInvalidAmount, "amount", "Amount must be greater than 0")
	}
	if !SupportedCurrencies[req.Currency] {
		return domainErrors.Invalid(domainErrors.ErrInvalidCurrency, "currency",
			"Invalid currency. Supported currencies: UGX, KES, TZS")
	}
	return nil
}

type requestPaymentBody struct {
	AccountNo   string      `json:"account_no"`
	Reference   string      `json:"reference"`
	MSISDN      string      `json:"msisdn"`
	Currency    string      `json:"currency"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
}

type requestPaymentResponse struct {
	Success           *bool  `json:"success"`
	Message           string `json:"message"`
	InternalReference string `json:"internal_reference"`
}

// Initiate asks the subscriber's handset to approve a collection. The
// payment stays pending until the subscriber confirms.
func (c *Client) Initiate(ctx context.Context, req payment.Request) (*payment.Result, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if err := c.configured(); err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = "Payment for order " + req.Reference
	}
	currency := req.Currency

	call := providers.Call{
		Provider:  name,
		Operation: "request_payment",
		Method:    http.MethodPost,
		URL:       c.cfg.BaseURL + "/mobile-money/request-payment",
		Header:    c.headers(),
		Body: requestPaymentBody{
			AccountNo:   c.cfg.AccountNo,
			Reference:   req.Reference,
			MSISDN:      req.MSISDN,
			Currency:    currency,
			Amount:      json.Number(req.Amount.String()),
			Description: description,
		},
	}
	resp, err := c.do(ctx, call, "Failed to request Relworx payment")
	if err != nil {
		return nil, err
	}

	var out requestPaymentResponse
	if err := resp.Decode(call, &out); err != nil {
		return nil, err
	}

	msg := out.Message
	if msg == "" {
		msg = defaultMessage
	}

	c.logger.Info().Str("reference", req.Reference).Str("internal_reference", out.InternalReference).Msg("relworx payment requested")

	return &payment.Result{
		Success:           true,
		Provider:          payment.ProviderRelworx,
		Status:            payment.StatusPending,
		Reference:         req.Reference,
		ProviderReference: out.InternalReference,
		Amount:            payment.NullAmount(req.Amount.String()),
		Currency:          currency,
		Message:           msg,
		Raw:               resp.Payload(),
	}, nil
}

type requestStatusResponse struct {
	Success               *bool       `json:"success"`
	Status                string      `json:"status"`
	Message               string      `json:"message"`
	CustomerReference     string      `json:"customer_reference"`
	InternalReference     string      `json:"internal_reference"`
	Amount                json.Number `json:"amount"`
	Currency              string      `json:"currency"`
	TransactionID         string      `json:"transaction_id"`
	ProviderTransactionID string      `json:"provider_transaction_id"`
}

// QueryStatus checks a collection by its internal reference.
func (c *Client) QueryStatus(ctx context.Context, internalRef string) (*payment.Result, error) {
	if strings.TrimSpace(internalRef) == "" {
		return nil, domainErrors.Invalid(domainErrors.ErrMissingFields, "reference", "Missing required parameters: reference")
	}
	if err := c.configured(); err != nil {
		return nil, err
	}

	call := providers.Call{
		Provider:  name,
		Operation: "check_request_status",
		Method:    http.MethodGet,
		URL: c.cfg.BaseURL + "/mobile-money/check-request-status?" + url.Values{
			"internal_reference": {internalRef},
			"account_no":         {c.cfg.AccountNo},
		}.Encode(),
		Header: c.headers(),
	}
	resp, err := c.do(ctx, call, "Failed to check Relworx request status")
	if err != nil {
		return nil, err
	}

	var st requestStatusResponse
	if err := resp.Decode(call, &st); err != nil {
		return nil, err
	}

	txID := st.TransactionID
	if txID == "" {
		txID = st.ProviderTransactionID
	}

	return &payment.Result{
		Success:           true,
		Provider:          payment.ProviderRelworx,
		Status:            payment.NormalizeStatus(st.Status),
		Reference:         st.CustomerReference,
		ProviderReference: internalRef,
		TransactionID:     txID,
		Amount:            payment.NullAmount(st.Amount.String()),
		Currency:          st.Currency,
		ProviderStatus:    st.Status,
		Message:           st.Message,
		Raw:               resp.Payload(),
	}, nil
}

func (c *Client) do(ctx context.Context, call providers.Call, fallback string) (*providers.Response, error) {
	resp, err := providers.Do(ctx, c.http, call)
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", call.Operation).Msg("relworx request failed")
		return nil, err
	}
	if !resp.OK() {
		perr := providers.Rejected(call, resp, fallback)
		c.logger.Warn().Int("status", resp.StatusCode).Str("operation", call.Operation).Msg(perr.Message)
		return nil, perr
	}
	return resp, nil
}

func (c *Client) headers() http.Header {
	return http.Header{
		"Authorization": []string{"Bearer " + c.cfg.APIKey},
		"Accept":        []string{acceptHeader},
	}
}

func (c *Client) configured() error {
	var missing []string
	if c.cfg.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.cfg.AccountNo == "" {
		missing = append(missing, "account_no")
	}
	if len(missing) > 0 {
		return domainErrors.NotConfigured(name, missing...)
	}
	return nil
}
