package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/idempotency"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	host := mr.Host()

	client, err := NewClient(context.Background(), &config.RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewClient_GivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	host := mr.Host()
	mr.Close()

	_, err = NewClient(context.Background(), &config.RedisConfig{
		Host:              host,
		Port:              port,
		ConnectRetries:    2,
		ConnectRetryDelay: time.Millisecond,
	})
	assert.Error(t, err)
}

func TestNewClient_WrongPasswordIsNotRetried(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	start := time.Now()
	_, err = NewClient(context.Background(), &config.RedisConfig{
		Host:              mr.Host(),
		Port:              port,
		Password:          "wrong",
		ConnectRetries:    5,
		ConnectRetryDelay: time.Second,
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func testOrder() *payment.Order {
	return &payment.Order{
		Reference:         "ORD-1",
		Provider:          payment.ProviderPayPal,
		ProviderReference: "5O190127TN364715T",
		Status:            payment.StatusPending,
		Amount:            decimal.RequireFromString("25.50"),
		Currency:          "USD",
	}
}

func TestOrderStore_SaveAndGet(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewOrderStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testOrder()))

	o, err := s.GetByReference(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderPayPal, o.Provider)
	assert.Equal(t, "5O190127TN364715T", o.ProviderReference)
	assert.True(t, o.Amount.Equal(decimal.RequireFromString("25.5")))
	assert.False(t, o.CreatedAt.IsZero())

	o, err = s.GetByProviderReference(ctx, payment.ProviderPayPal, "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", o.Reference)

	assert.Equal(t, time.Hour, mr.TTL(orderKeyPrefix+"ORD-1"))
	assert.Equal(t, time.Hour, mr.TTL(providerRefKey(payment.ProviderPayPal, "5O190127TN364715T")))
}

func TestOrderStore_NotFound(t *testing.T) {
	_, client := newTestClient(t)
	s := NewOrderStore(client, 0)

	_, err := s.GetByReference(context.Background(), "nope")
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)

	_, err = s.GetByProviderReference(context.Background(), payment.ProviderRelworx, "nope")
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)
}

func TestOrderStore_UpdateKeepsCreatedAtAndReindexes(t *testing.T) {
	_, client := newTestClient(t)
	s := NewOrderStore(client, 0)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t0 }

	require.NoError(t, s.Save(ctx, testOrder()))

	s.now = func() time.Time { return t0.Add(time.Minute) }
	updated := testOrder()
	updated.Status = payment.StatusCompleted
	updated.ProviderReference = "NEW-ID"
	require.NoError(t, s.Save(ctx, updated))

	o, err := s.GetByReference(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, o.Status)
	assert.True(t, o.CreatedAt.Equal(t0))
	assert.True(t, o.UpdatedAt.Equal(t0.Add(time.Minute)))

	_, err = s.GetByProviderReference(ctx, payment.ProviderPayPal, "5O190127TN364715T")
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)
	_, err = s.GetByProviderReference(ctx, payment.ProviderPayPal, "NEW-ID")
	assert.NoError(t, err)
}

func TestOrderStore_BackendDown(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewOrderStore(client, 0)
	mr.Close()

	_, err := s.GetByReference(context.Background(), "ORD-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainErrors.ErrOrderNotFound)
}

func TestIdempotencyStore(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewIdempotencyStore(client)
	ctx := context.Background()
	now := time.Now()

	e, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, e)

	require.NoError(t, s.Set(ctx, &idempotency.Entry{
		Key:            "key-1",
		ResponseBody:   `{"success":true}`,
		ResponseStatus: 201,
		CreatedAt:      now,
		ExpiresAt:      now.Add(30 * time.Minute),
	}))

	e, err = s.Get(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 201, e.ResponseStatus)
	assert.Equal(t, `{"success":true}`, e.ResponseBody)

	mr.FastForward(31 * time.Minute)
	e, err = s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestIdempotencyStore_SkipsExpiredEntries(t *testing.T) {
	mr, client := newTestClient(t)
	s := NewIdempotencyStore(client)

	require.NoError(t, s.Set(context.Background(), &idempotency.Entry{
		Key:       "old",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	assert.False(t, mr.Exists(idempotencyKeyPrefix+"old"))
}

func TestLocker(t *testing.T) {
	mr, client := newTestClient(t)
	l := NewLocker(client)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("paygate:lock:key-1"))

	_, err = l.Acquire(ctx, "key-1", time.Minute)
	assert.ErrorIs(t, err, idempotency.ErrInFlight)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("paygate:lock:key-1"))

	assert.Error(t, release(ctx), "double release reports the lock as gone")
}

func TestLocker_Expires(t *testing.T) {
	mr, client := newTestClient(t)
	l := NewLocker(client)
	ctx := context.Background()

	_, err := l.Acquire(ctx, "key-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = l.Acquire(ctx, "key-1", time.Second)
	assert.NoError(t, err)
}
