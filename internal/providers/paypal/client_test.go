package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayPal struct {
	server     *httptest.Server
	authCalls  atomic.Int64
	orderCalls atomic.Int64

	authStatus int
	authBody   string

	orderStatus int
	orderBody   string

	lastRequestID atomic.Value
	lastAuth      atomic.Value
	lastOrder     atomic.Value
}

func newFakePayPal(t *testing.T) *fakePayPal {
	t.Helper()
	f := &fakePayPal{
		authStatus:  http.StatusOK,
		authBody:    `{"access_token":"tok-1","token_type":"Bearer","expires_in":32400}`,
		orderStatus: http.StatusCreated,
		orderBody: `{"id":"5O190127TN364715T","status":"CREATED","links":[
			{"href":"https://api-m.paypal.com/v2/checkout/orders/5O190127TN364715T","rel":"self","method":"GET"},
			{"href":"https://www.paypal.com/checkoutnow?token=5O190127TN364715T","rel":"approve","method":"GET"}]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.authCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		w.WriteHeader(f.authStatus)
		_, _ = w.Write([]byte(f.authBody))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		f.orderCalls.Add(1)
		f.lastRequestID.Store(r.Header.Get("PayPal-Request-Id"))
		f.lastAuth.Store(r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.lastOrder.Store(body)

		w.WriteHeader(f.orderStatus)
		_, _ = w.Write([]byte(f.orderBody))
	})
	mux.HandleFunc("/v2/checkout/orders/", func(w http.ResponseWriter, r *http.Request) {
		f.orderCalls.Add(1)
		f.lastRequestID.Store(r.Header.Get("PayPal-Request-Id"))
		f.lastAuth.Store(r.Header.Get("Authorization"))

		w.WriteHeader(f.orderStatus)
		_, _ = w.Write([]byte(f.orderBody))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePayPal) client() *Client {
	return New(Config{
		BaseURL:      f.server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, f.server.Client(), zerolog.Nop())
}

func validRequest() payment.Request {
	return payment.Request{
		Amount:      decimal.NewFromFloat(25.5),
		Currency:    "USD",
		Reference:   "ORD-1001",
		Description: "Order #1001",
	}
}

func TestClient_Initiate_Success(t *testing.T) {
	f := newFakePayPal(t)
	c := f.client()

	res, err := c.Initiate(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, payment.StatusPending, res.Status)
	assert.Equal(t, "5O190127TN364715T", res.ProviderReference)
	assert.Equal(t, "ORD-1001", res.Reference)
	assert.Equal(t, "https://www.paypal.com/checkoutnow?token=5O190127TN364715T", res.ApprovalURL)
	assert.Equal(t, "USD", res.Currency)
	assert.True(t, res.Amount.Valid)
	assert.Equal(t, "25.5", res.Amount.Decimal.String())

	assert.Equal(t, "Bearer tok-1", f.lastAuth.Load())
	assert.Equal(t, "ORD-1001", f.lastRequestID.Load())

	body := f.lastOrder.Load().(map[string]any)
	assert.Equal(t, "CAPTURE", body["intent"])
	units := body["purchase_units"].([]any)
	require.Len(t, units, 1)
	unit := units[0].(map[string]any)
	assert.Equal(t, "ORD-1001", unit["reference_id"])
	assert.Equal(t, "Order #1001", unit["description"])
	assert.Equal(t, map[string]any{"currency_code": "USD", "value": "25.50"}, unit["amount"])
	assert.NotContains(t, body, "application_context")
}

func TestClient_Initiate_RequestIDStableAcrossRetries(t *testing.T) {
	f := newFakePayPal(t)
	c := f.client()
	req := validRequest()
	req.Reference = "ORD-1001/retry:a+b"

	for i := 0; i < 3; i++ {
		_, err := c.Initiate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, req.Reference, f.lastRequestID.Load())
	}
	assert.Equal(t, int64(1), f.authCalls.Load(), "token must be reused")
	assert.Equal(t, int64(3), f.orderCalls.Load())
}

func TestClient_Initiate_NoApproveLink(t *testing.T) {
	f := newFakePayPal(t)
	f.orderBody = `{"id":"ORDER-2","status":"CREATED","links":[{"href":"https://x/self","rel":"self"}]}`

	res, err := f.client().Initiate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Empty(t, res.ApprovalURL)
	assert.Equal(t, "ORDER-2", res.ProviderReference)
	assert.Equal(t, payment.StatusPending, res.Status)
	assert.True(t, res.Success)
}

func TestClient_Initiate_ApplicationContext(t *testing.T) {
	f := newFakePayPal(t)
	c := New(Config{
		BaseURL:      f.server.URL + "/",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		ReturnURL:    "https://shop.example.com/return",
		CancelURL:    "https://shop.example.com/cancel",
	}, f.server.Client(), zerolog.Nop())

	_, err := c.Initiate(context.Background(), validRequest())
	require.NoError(t, err)

	body := f.lastOrder.Load().(map[string]any)
	assert.Equal(t, map[string]any{
		"return_url": "https://shop.example.com/return",
		"cancel_url": "https://shop.example.com/cancel",
	}, body["application_context"])
}

func TestClient_Initiate_CallerErrorsMakeNoCalls(t *testing.T) {
	tests := []struct {
		name    string
		mod     func(r *payment.Request)
		wantErr error
	}{
		{"missing amount", func(r *payment.Request) { r.Amount = decimal.Zero }, domainErrors.ErrMissingFields},
		{"missing currency", func(r *payment.Request) { r.Currency = "" }, domainErrors.ErrMissingFields},
		{"missing reference", func(r *payment.Request) { r.Reference = "" }, domainErrors.ErrMissingFields},
		{"negative amount", func(r *payment.Request) { r.Amount = decimal.NewFromInt(-5) }, domainErrors.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePayPal(t)
			req := validRequest()
			tt.mod(&req)

			_, err := f.client().Initiate(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.authCalls.Load())
			assert.Zero(t, f.orderCalls.Load())
		})
	}
}

func TestClient_NotConfigured(t *testing.T) {
	f := newFakePayPal(t)
	c := New(Config{BaseURL: f.server.URL}, f.server.Client(), zerolog.Nop())

	_, err := c.Initiate(context.Background(), validRequest())
	require.ErrorIs(t, err, domainErrors.ErrProviderNotConfigured)
	assert.Contains(t, err.Error(), "client_id")

	_, err = c.Capture(context.Background(), "ORDER-1")
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotConfigured)
	assert.Zero(t, f.authCalls.Load())
}

func TestClient_Initiate_ProviderRejection(t *testing.T) {
	f := newFakePayPal(t)
	f.orderStatus = http.StatusUnprocessableEntity
	f.orderBody = `{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed.","debug_id":"abc"}`

	_, err := f.client().Initiate(context.Background(), validRequest())

	var perr *domainErrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)
	assert.Equal(t, "The requested action could not be performed.", perr.Message)
	assert.JSONEq(t, f.orderBody, string(perr.Payload))
	assert.Equal(t, int64(1), f.orderCalls.Load(), "rejections are not retried")
}

func TestClient_Initiate_DefaultRejectionMessage(t *testing.T) {
	f := newFakePayPal(t)
	f.orderStatus = http.StatusBadRequest
	f.orderBody = `{"name":"INVALID_REQUEST"}`

	_, err := f.client().Initiate(context.Background(), validRequest())

	var perr *domainErrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Failed to create PayPal order", perr.Message)
}

func TestClient_UnauthorizedDropsToken(t *testing.T) {
	f := newFakePayPal(t)
	c := f.client()

	_, err := c.Initiate(context.Background(), validRequest())
	require.NoError(t, err)

	f.orderStatus = http.StatusUnauthorized
	f.orderBody = `{"error":"invalid_token","error_description":"Token signature verification failed"}`
	_, err = c.Initiate(context.Background(), validRequest())
	var perr *domainErrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)

	_, cached := c.tokens.Peek()
	assert.False(t, cached)

	f.orderStatus = http.StatusCreated
	f.orderBody = `{"id":"ORDER-3","status":"CREATED","links":[]}`
	_, err = c.Initiate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.authCalls.Load())
}

func TestClient_AuthenticationFailure(t *testing.T) {
	f := newFakePayPal(t)
	f.authStatus = http.StatusUnauthorized
	f.authBody = `{"error":"invalid_client","error_description":"Client Authentication failed"}`

	_, err := f.client().Initiate(context.Background(), validRequest())

	var perr *domainErrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Equal(t, "Client Authentication failed", perr.Message)
	assert.ErrorIs(t, err, domainErrors.ErrAuthenticationFailed)
	assert.Zero(t, f.orderCalls.Load())
}

func TestClient_AuthenticationWithoutToken(t *testing.T) {
	f := newFakePayPal(t)
	f.authBody = `{"token_type":"Bearer"}`

	_, err := f.client().Initiate(context.Background(), validRequest())

	var perr *domainErrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	assert.ErrorIs(t, err, domainErrors.ErrAuthenticationFailed)
}

func TestClient_Capture(t *testing.T) {
	f := newFakePayPal(t)
	f.orderStatus = http.StatusCreated
	f.orderBody = `{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"reference_id":"ORD-1001",
		"payments":{"captures":[{"id":"3C679366HH908993F","status":"COMPLETED","amount":{"currency_code":"USD","value":"25.50"}}]}}]}`

	res, err := f.client().Capture(context.Background(), "ORDER-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, payment.StatusCompleted, res.Status)
	assert.Equal(t, "COMPLETED", res.ProviderStatus)
	assert.Equal(t, "ORDER-1", res.ProviderReference)
	assert.Equal(t, "3C679366HH908993F", res.TransactionID)
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, "25.5", res.Amount.Decimal.String())
	assert.Equal(t, "capture-ORDER-1", f.lastRequestID.Load())
}

func TestClient_Capture_MissingNestedFields(t *testing.T) {
	f := newFakePayPal(t)
	f.orderBody = `{"id":"ORDER-1","status":"APPROVED","purchase_units":[{"reference_id":"ORD-1001"}]}`

	res, err := f.client().Capture(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, res.Status)
	assert.Empty(t, res.TransactionID)
	assert.False(t, res.Amount.Valid)
	assert.Empty(t, res.Currency)
}

func TestClient_Capture_EmptyOrderID(t *testing.T) {
	f := newFakePayPal(t)

	_, err := f.client().Capture(context.Background(), " ")
	assert.ErrorIs(t, err, domainErrors.ErrMissingFields)
	assert.Zero(t, f.authCalls.Load())
}

func TestClient_QueryStatus(t *testing.T) {
	f := newFakePayPal(t)
	f.orderStatus = http.StatusOK
	f.orderBody = `{"id":"ORDER-1","status":"APPROVED","purchase_units":[{"reference_id":"ORD-1001",
		"amount":{"currency_code":"EUR","value":"10.00"}}]}`

	res, err := f.client().QueryStatus(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, res.Status)
	assert.Equal(t, "APPROVED", res.ProviderStatus)
	assert.Equal(t, "ORD-1001", res.Reference)
	assert.Equal(t, "EUR", res.Currency)
	assert.Equal(t, "10", res.Amount.Decimal.String())
}

func TestClient_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	c := New(Config{BaseURL: slow.URL, ClientID: "id", ClientSecret: "secret"},
		&http.Client{Timeout: 20 * time.Millisecond}, zerolog.Nop())

	_, err := c.Initiate(context.Background(), validRequest())
	var terr *domainErrors.TransportError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Timeout())
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]payment.Status{
		"COMPLETED":             payment.StatusCompleted,
		"VOIDED":                payment.StatusFailed,
		"DECLINED":              payment.StatusFailed,
		"FAILED":                payment.StatusFailed,
		"CREATED":               payment.StatusPending,
		"SAVED":                 payment.StatusPending,
		"APPROVED":              payment.StatusPending,
		"PAYER_ACTION_REQUIRED": payment.StatusPending,
		"":                      payment.StatusPending,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeStatus(in), in)
	}
}
