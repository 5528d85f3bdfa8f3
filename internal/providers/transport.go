package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBody = 1 << 20

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns the outbound client shared by all provider clients.
// The timeout bounds every call including reading the body.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Call describes one outbound request. Body is JSON-encoded; Form, when set,
// is sent url-encoded instead.
type Call struct {
	Provider  string
	Operation string
	Method    string
	URL       string
	Header    http.Header
	Body      any
	Form      url.Values

	// BasicAuth, when set, is sent as the request's basic credentials.
	BasicAuth *Credentials
}

type Credentials struct {
	Username string
	Password string
}

// Response is a provider reply read in full.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do performs the call. Network failures, timeouts and unreadable bodies come
// back as *TransportError; any HTTP status is returned as a Response.
func Do(ctx context.Context, client HTTPDoer, call Call) (*Response, error) {
	var body io.Reader
	contentType := ""
	switch {
	case call.Form != nil:
		body = strings.NewReader(call.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case call.Body != nil:
		payload, err := json.Marshal(call.Body)
		if err != nil {
			return nil, transportError(call, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return nil, transportError(call, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if call.BasicAuth != nil {
		req.SetBasicAuth(call.BasicAuth.Username, call.BasicAuth.Password)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(call, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, transportError(call, fmt.Errorf("read response: %w", err))
	}

	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// Decode unmarshals a JSON body, reporting malformed JSON as a transport error.
func (r *Response) Decode(call Call, out any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return transportError(call, fmt.Errorf("empty response body (status %d)", r.StatusCode))
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return transportError(call, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

// Payload returns the body as raw JSON, quoting it when the provider sent
// something that is not JSON.
func (r *Response) Payload() json.RawMessage {
	trimmed := bytes.TrimSpace(r.Body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(string(trimmed))
	return quoted
}

// Rejected builds the ProviderError for a non-success response, taking the
// provider's own message when it has one.
func Rejected(call Call, resp *Response, fallback string) *domainErrors.ProviderError {
	msg := providerMessage(resp.Body)
	if msg == "" {
		msg = fallback
	}
	return &domainErrors.ProviderError{
		Provider:   call.Provider,
		Operation:  call.Operation,
		StatusCode: resp.StatusCode,
		Message:    msg,
		Payload:    resp.Payload(),
	}
}

// providerMessage looks for the message fields used by PayPal, Pesapal and
// Relworx error bodies.
func providerMessage(body []byte) string {
	var envelope struct {
		Message          string          `json:"message"`
		ErrorDescription string          `json:"error_description"`
		Error            json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	if envelope.ErrorDescription != "" {
		return envelope.ErrorDescription
	}
	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var s string
		if json.Unmarshal(envelope.Error, &s) == nil {
			return s
		}
	}
	return ""
}

func transportError(call Call, err error) *domainErrors.TransportError {
	return &domainErrors.TransportError{
		Provider:  call.Provider,
		Operation: call.Operation,
		Err:       err,
	}
}
