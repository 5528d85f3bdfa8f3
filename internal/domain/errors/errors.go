package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

var (
	// Caller errors
	ErrMissingFields         = errors.New("missing required fields")
	ErrInvalidMSISDN         = errors.New("invalid msisdn")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidCurrency       = errors.New("invalid currency")
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnsupportedProvider   = errors.New("unsupported payment provider")
	ErrOperationNotSupported = errors.New("operation not supported by provider")

	// Configuration errors
	ErrProviderNotConfigured = errors.New("payment provider not configured")

	// Provider errors
	ErrProviderRejected     = errors.New("payment rejected by provider")
	ErrAuthenticationFailed = errors.New("provider authentication failed")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
	ErrProviderTimeout      = errors.New("provider request timeout")

	// Store errors
	ErrOrderNotFound = errors.New("order not found")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError is a caller error: the request is rejected before any
// outbound call is made.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Invalid creates a validation error classified by one of the caller sentinels.
func Invalid(err error, field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// NotConfigured reports the configuration keys a provider is missing.
func NotConfigured(provider string, keys ...string) error {
	return fmt.Errorf("%w: %s requires %v", ErrProviderNotConfigured, provider, keys)
}

// ProviderError is an upstream API response with a non-success status. The
// status code and payload are forwarded to the caller unchanged.
type ProviderError struct {
	Provider   string
	Operation  string
	StatusCode int
	Message    string
	Payload    json.RawMessage
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Operation, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error {
	if e.Err == nil {
		return ErrProviderRejected
	}
	return e.Err
}

// TransportError covers network failures, timeouts and unreadable provider
// responses.
type TransportError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline or client timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, ErrProviderTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Is lets errors.Is(err, ErrProviderTimeout) match timed out transport errors.
func (e *TransportError) Is(target error) bool {
	return target == ErrProviderTimeout && e.Timeout()
}
