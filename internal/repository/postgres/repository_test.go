package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/idempotency"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow copies values into Scan destinations in order.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int:
			*p = r.values[i].(int)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("unsupported scan type")
		}
	}
	return nil
}

type fakeDB struct {
	row      fakeRow
	execTag  pgconn.CommandTag
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return f.row
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	return f.execTag, f.execErr
}

func TestOrderRepository_GetByReference(t *testing.T) {
	created := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{
		"REF1", "relworx", "RLWX-1", "pending", "5000.0000", "UGX", created, created,
	}}}
	repo := NewOrderRepository(db)

	o, err := repo.GetByReference(context.Background(), "REF1")
	require.NoError(t, err)

	assert.Equal(t, payment.ProviderRelworx, o.Provider)
	assert.Equal(t, payment.StatusPending, o.Status)
	assert.Equal(t, "RLWX-1", o.ProviderReference)
	assert.True(t, o.Amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, created, o.CreatedAt)
	assert.Equal(t, []any{"REF1"}, db.lastArgs)
}

func TestOrderRepository_NotFound(t *testing.T) {
	repo := NewOrderRepository(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	_, err := repo.GetByReference(context.Background(), "missing")
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)

	_, err = repo.GetByProviderReference(context.Background(), payment.ProviderPayPal, "missing")
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)
}

func TestOrderRepository_QueryError(t *testing.T) {
	repo := NewOrderRepository(&fakeDB{row: fakeRow{err: errors.New("connection reset")}})

	_, err := repo.GetByReference(context.Background(), "REF1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainErrors.ErrOrderNotFound)
}

func TestOrderRepository_Save(t *testing.T) {
	now := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{now, now}}}
	repo := NewOrderRepository(db)

	order := &payment.Order{
		Reference:         "ORD-1",
		Provider:          payment.ProviderPayPal,
		ProviderReference: "5O190127TN364715T",
		Status:            payment.StatusPending,
		Amount:            decimal.RequireFromString("25.50"),
		Currency:          "USD",
	}
	require.NoError(t, repo.Save(context.Background(), order))

	assert.Equal(t, now, order.CreatedAt)
	assert.Contains(t, db.lastSQL, "ON CONFLICT (reference)")
	require.Len(t, db.lastArgs, 7)
	assert.Equal(t, "ORD-1", db.lastArgs[1])
	assert.Equal(t, "paypal", db.lastArgs[2])
	assert.Equal(t, "25.5", db.lastArgs[5])
}

func TestIdempotencyRepository_Get(t *testing.T) {
	now := time.Now()
	db := &fakeDB{row: fakeRow{values: []any{"key-1", `{"success":true}`, 201, now, now.Add(time.Hour)}}}
	repo := NewIdempotencyRepository(db)

	e, err := repo.Get(context.Background(), "key-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 201, e.ResponseStatus)
	assert.Contains(t, db.lastSQL, "expires_at > NOW()")

	repo = NewIdempotencyRepository(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
	e, err = repo.Get(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestIdempotencyRepository_SetAndCleanup(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("DELETE 3")}
	repo := NewIdempotencyRepository(db)
	now := time.Now()

	require.NoError(t, repo.Set(context.Background(), &idempotency.Entry{
		Key: "key-1", ResponseBody: "{}", ResponseStatus: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	assert.Equal(t, "key-1", db.lastArgs[0])

	n, err := repo.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	db.execErr = errors.New("down")
	assert.Error(t, repo.Set(context.Background(), &idempotency.Entry{Key: "k"}))
}
