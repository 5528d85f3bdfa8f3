package controller

import (
	"encoding/json"

	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// Response is the envelope every payment endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// --- Request DTOs ---
// Presence is checked here; amount sign, currency and phone format are
// checked by the domain and the provider clients. Amounts accept JSON numbers
// and numeric strings.

// PayPalPaymentRequest holds the input for creating a PayPal order.
type PayPalPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"required"`
	Reference   string          `json:"reference" validate:"required"`
	Description string          `json:"description,omitempty"`
}

// CaptureRequest holds the PayPal order to capture.
type CaptureRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// PesapalPaymentRequest holds the input for submitting a Pesapal order.
type PesapalPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"required"`
	Reference   string          `json:"reference" validate:"required"`
	Description string          `json:"description,omitempty"`
	CallbackURL string          `json:"callback_url,omitempty" validate:"omitempty,url"`
	Email       string          `json:"email,omitempty" validate:"omitempty,email"`
	PhoneNumber string          `json:"phone_number,omitempty"`
	FirstName   string          `json:"first_name,omitempty"`
	LastName    string          `json:"last_name,omitempty"`
}

// RelworxPaymentRequest holds the input for a mobile money collection.
type RelworxPaymentRequest struct {
	MSISDN      string  `json:"msisdn" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"required"`
	Reference   string          `json:"reference" validate:"required"`
	Description string          `json:"description,omitempty"`
}

func (r PayPalPaymentRequest) toDomain() payment.Request {
	return payment.Request{
		Amount:      r.Amount,
		Currency:    r.Currency,
		Reference:   r.Reference,
		Description: r.Description,
	}
}

func (r PesapalPaymentRequest) toDomain() payment.Request {
	return payment.Request{
		Amount:      r.Amount,
		Currency:    r.Currency,
		Reference:   r.Reference,
		Description: r.Description,
		CallbackURL: r.CallbackURL,
		Customer: payment.Customer{
			Email:     r.Email,
			Phone:     r.PhoneNumber,
			FirstName: r.FirstName,
			LastName:  r.LastName,
		},
	}
}

func (r RelworxPaymentRequest) toDomain() payment.Request {
	return payment.Request{
		MSISDN:      r.MSISDN,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Reference:   r.Reference,
		Description: r.Description,
	}
}

// --- Response DTOs ---

// PayPalOrderResponse is returned when a PayPal order is created.
type PayPalOrderResponse struct {
	OrderID     string         `json:"order_id"`
	Reference   string         `json:"reference"`
	Amount      json.Number    `json:"amount,omitempty"`
	Currency    string         `json:"currency"`
	Status      payment.Status `json:"status"`
	ApprovalURL string         `json:"approval_url"`
}

// CaptureResponse is returned when a PayPal order is captured.
type CaptureResponse struct {
	OrderID       string         `json:"order_id"`
	Reference     string         `json:"reference,omitempty"`
	Status        payment.Status `json:"status"`
	Amount        json.Number    `json:"amount,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
}

// RelworxPaymentResponse is returned when a collection request is accepted.
type RelworxPaymentResponse struct {
	InternalReference string         `json:"internal_reference"`
	Reference         string         `json:"reference"`
	Amount            json.Number    `json:"amount,omitempty"`
	Currency          string         `json:"currency"`
	Status            payment.Status `json:"status"`
}

// StatusResponse reports the state of a payment.
type StatusResponse struct {
	Reference     string         `json:"reference"`
	Status        payment.Status `json:"status"`
	Amount        json.Number    `json:"amount,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
}

func toPayPalOrderResponse(res *payment.Result) PayPalOrderResponse {
	return PayPalOrderResponse{
		OrderID:     res.ProviderReference,
		Reference:   res.Reference,
		Amount:      amountNumber(res.Amount),
		Currency:    res.Currency,
		Status:      res.Status,
		ApprovalURL: res.ApprovalURL,
	}
}

func toCaptureResponse(res *payment.Result) CaptureResponse {
	return CaptureResponse{
		OrderID:       res.ProviderReference,
		Reference:     res.Reference,
		Status:        res.Status,
		Amount:        amountNumber(res.Amount),
		Currency:      res.Currency,
		TransactionID: res.TransactionID,
	}
}

func toRelworxPaymentResponse(res *payment.Result) RelworxPaymentResponse {
	return RelworxPaymentResponse{
		InternalReference: res.ProviderReference,
		Reference:         res.Reference,
		Amount:            amountNumber(res.Amount),
		Currency:          res.Currency,
		Status:            res.Status,
	}
}

func toStatusResponse(res *payment.Result) StatusResponse {
	txID := res.TransactionID
	if txID == "" {
		txID = res.ProviderReference
	}
	return StatusResponse{
		Reference:     res.Reference,
		Status:        res.Status,
		Amount:        amountNumber(res.Amount),
		Currency:      res.Currency,
		TransactionID: txID,
	}
}

// amountNumber renders an amount as a JSON number without going through
// float64. Unknown amounts are omitted.
func amountNumber(d decimal.NullDecimal) json.Number {
	if !d.Valid {
		return ""
	}
	return json.Number(d.Decimal.String())
}
