package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/idempotency"
	"github.com/cassiomorais/paygate/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	calls  atomic.Int32
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := h.calls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	fmt.Fprintf(w, `{"success":true,"call":%d}`, n)
}

func post(handler http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payments/relworx", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotency(IdempotencyOptions{
		Store:  memory.NewIdempotencyStore(),
		Locker: memory.NewLocker(),
		TTL:    time.Hour,
	})(next)

	first := post(handler, "key-1")
	second := post(handler, "key-1")

	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Empty(t, first.Header().Get(HeaderReplayed))
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
}

func TestIdempotency_WithoutKeyAlwaysProcesses(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotency(IdempotencyOptions{Store: memory.NewIdempotencyStore()})(next)

	post(handler, "")
	post(handler, "")

	assert.Equal(t, int32(2), next.calls.Load())
}

func TestIdempotency_DistinctKeys(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotency(IdempotencyOptions{Store: memory.NewIdempotencyStore()})(next)

	post(handler, "key-1")
	post(handler, "key-2")

	assert.Equal(t, int32(2), next.calls.Load())
}

func TestIdempotency_StatusesStored(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		replayed bool
	}{
		{"success is stored", http.StatusOK, true},
		{"caller error is stored", http.StatusBadRequest, true},
		{"server error is not stored", http.StatusInternalServerError, false},
		{"unavailable is not stored", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &countingHandler{status: tt.status}
			handler := Idempotency(IdempotencyOptions{Store: memory.NewIdempotencyStore()})(next)

			post(handler, "key")
			second := post(handler, "key")

			assert.Equal(t, tt.status, second.Code)
			if tt.replayed {
				assert.Equal(t, int32(1), next.calls.Load())
				assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
			} else {
				assert.Equal(t, int32(2), next.calls.Load())
			}
		})
	}
}

func TestIdempotency_InFlightConflict(t *testing.T) {
	locker := memory.NewLocker()
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotency(IdempotencyOptions{
		Store:  memory.NewIdempotencyStore(),
		Locker: locker,
	})(next)

	release, err := locker.Acquire(context.Background(), "POST /payments/relworx key-1", time.Minute)
	require.NoError(t, err)

	w := post(handler, "key-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"request_in_flight"`)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Equal(t, int32(0), next.calls.Load())

	require.NoError(t, release(context.Background()))
	w = post(handler, "key-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestIdempotency_KeyScopedToRoute(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotency(IdempotencyOptions{Store: memory.NewIdempotencyStore()})(next)

	post(handler, "key-1")
	req := httptest.NewRequest(http.MethodPost, "/payments/paypal", strings.NewReader(`{}`))
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int32(2), next.calls.Load())
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*idempotency.Entry, error) {
	return nil, errors.New("store down")
}

func (failingStore) Set(context.Context, *idempotency.Entry) error {
	return errors.New("store down")
}

func TestIdempotency_StoreFailureStillServes(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Idempotency(IdempotencyOptions{Store: failingStore{}})(next)

	w := post(handler, "key-1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), next.calls.Load())
}
