package payment

import (
	"encoding/json"
	"strings"

	"github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Provider is the tag a caller uses to select a payment provider.
type Provider string

const (
	ProviderPayPal  Provider = "paypal"
	ProviderPesapal Provider = "pesapal"
	ProviderRelworx Provider = "relworx"
)

// Status is the normalized state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Customer carries optional billing details forwarded to providers that accept them.
type Customer struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
}

// Request is a normalized request to initiate a payment. Reference is the
// caller's idempotency key and must be unique per attempt.
type Request struct {
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	Description string
	MSISDN      string
	CallbackURL string
	Customer    Customer
}

// Validate checks the fields every provider requires: presence of amount,
// currency and reference, then a positive amount.
func (r Request) Validate() error {
	var missing []string
	if r.Amount.IsZero() {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(r.Currency) == "" {
		missing = append(missing, "currency")
	}
	if strings.TrimSpace(r.Reference) == "" {
		missing = append(missing, "reference")
	}
	if len(missing) > 0 {
		return errors.Invalid(errors.ErrMissingFields, strings.Join(missing, ","),
			"Missing required fields: "+strings.Join(missing, ", "))
	}
	if !r.Amount.IsPositive() {
		return errors.Invalid(errors.ErrInvalidAmount, "amount", "Amount must be greater than 0")
	}
	return nil
}

// Result is the outcome of an initiation, capture or status query.
type Result struct {
	Success           bool
	Provider          Provider
	Status            Status
	Reference         string
	ProviderReference string
	TransactionID     string
	Amount            decimal.NullDecimal
	Currency          string
	ApprovalURL       string
	ProviderStatus    string
	Message           string
	Raw               json.RawMessage
}

// StatusQuery asks for the current state of a payment previously initiated
// with Reference.
type StatusQuery struct {
	Reference string
	Provider  Provider
}

// Validate checks that both the reference and the provider tag are present.
func (q StatusQuery) Validate() error {
	var missing []string
	if strings.TrimSpace(q.Reference) == "" {
		missing = append(missing, "reference")
	}
	if q.Provider == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return errors.Invalid(errors.ErrMissingFields, strings.Join(missing, ","),
			"Missing required parameters: "+strings.Join(missing, ", "))
	}
	return nil
}

// NormalizeStatus maps a provider status string onto the three normalized
// values. Unknown and empty values are treated as pending.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "complete", "success", "successful", "succeeded", "paid":
		return StatusCompleted
	case "failed", "failure", "declined", "cancelled", "canceled", "reversed",
		"voided", "expired", "invalid", "rejected":
		return StatusFailed
	default:
		return StatusPending
	}
}

// NullAmount parses a provider amount, returning an invalid NullDecimal when
// the value is empty or unparsable.
func NullAmount(raw string) decimal.NullDecimal {
	if strings.TrimSpace(raw) == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
