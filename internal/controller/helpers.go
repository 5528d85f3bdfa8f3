package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

// newValidator reports fields by their JSON names so messages match the
// request body the caller sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// A zero or absent decimal amount fails "required".
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok && !d.IsZero() {
			return d.String()
		}
		return ""
	}, decimal.Decimal{})
	return v
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// Caller errors keep their own message; message here is used for the rest.
var errorMappings = []errorMapping{
	{domainErrors.ErrMissingFields, http.StatusBadRequest, "missing_fields", ""},
	{domainErrors.ErrInvalidMSISDN, http.StatusBadRequest, "invalid_msisdn", ""},
	{domainErrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount", ""},
	{domainErrors.ErrInvalidCurrency, http.StatusBadRequest, "invalid_currency", ""},
	{domainErrors.ErrUnsupportedProvider, http.StatusBadRequest, "unsupported_provider", ""},
	{domainErrors.ErrOperationNotSupported, http.StatusBadRequest, "operation_not_supported", ""},
	{domainErrors.ErrProviderNotConfigured, http.StatusInternalServerError, "provider_not_configured", "Payment provider is not configured"},
	{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable", "Payment provider is temporarily unavailable, try again later"},
	{domainErrors.ErrOrderNotFound, http.StatusNotFound, "not_found", "Order not found"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// writeError converts any error into the failure envelope. Provider
// rejections keep the provider's status and payload.
func writeError(w http.ResponseWriter, err error) {
	resp := Response{Success: false}

	var providerErr *domainErrors.ProviderError
	if errors.As(err, &providerErr) {
		status := providerErr.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		resp.Message = providerErr.Message
		if len(providerErr.Payload) > 0 {
			resp.Error = providerErr.Payload
		}
		resp.Code = "provider_error"
		if errors.Is(err, domainErrors.ErrAuthenticationFailed) {
			resp.Code = "authentication_failed"
		}
		log.Warn().Err(err).Int("status", status).Msg("provider rejected request")
		writeJSON(w, status, resp)
		return
	}

	var transportErr *domainErrors.TransportError
	if errors.As(err, &transportErr) {
		resp.Message = "Internal server error"
		resp.Code = "transport_error"
		if transportErr.Timeout() {
			resp.Message = "Payment provider did not respond in time"
			resp.Code = "provider_timeout"
		}
		log.Error().Err(err).Msg("provider call failed")
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Message = validationErr.Message
		resp.Code = "validation_error"
		for _, m := range errorMappings {
			if m.status == http.StatusBadRequest && errors.Is(err, m.err) {
				resp.Code = m.code
				break
			}
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			resp.Message = m.message
			if m.status >= http.StatusInternalServerError {
				log.Error().Err(err).Msg(m.message)
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		resp.Message = domainErr.Message
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Message = "Internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

// decodeAndValidate decodes a JSON body and checks its validate tags. All
// missing required fields are reported together.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.Invalid(domainErrors.ErrInvalidInput, "body", "Invalid JSON body")
	}
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return domainErrors.Invalid(domainErrors.ErrInvalidInput, "body", err.Error())
	}

	var missing []string
	for _, fe := range ve {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		}
	}
	if len(missing) > 0 {
		return domainErrors.Invalid(domainErrors.ErrMissingFields, strings.Join(missing, ","),
			"Missing required fields: "+strings.Join(missing, ", "))
	}
	return domainErrors.Invalid(domainErrors.ErrInvalidInput, ve[0].Field(), ve[0].Field()+" failed "+ve[0].Tag()+" validation")
}
