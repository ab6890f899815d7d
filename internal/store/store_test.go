package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyTime accepts any value (used for timestamps we can't predict exactly).
var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	return true
})

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestCreatePurchase(t *testing.T) {
	s, mockPool := newTestStore(t)

	rec := &schemas.PurchaseRecord{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		ProductURL:    "https://shop.example.com/widget",
		ProductConfig: schemas.ProductConfig{Quantity: 2},
	}

	mockPool.ExpectExec(flexibleSQLMatcher(`INSERT INTO purchases`)).
		WithArgs(rec.ID, rec.UserID, rec.ProductURL, []byte(`{"quantity":2}`), "created", anyTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreatePurchase(context.Background(), rec))
	assert.Equal(t, schemas.StatusCreated, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetPurchase(t *testing.T) {
	t.Run("should map missing rows to ErrPurchaseNotFound", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		id := uuid.New()

		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, user_id, product_url`)).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err := s.GetPurchase(context.Background(), id)
		assert.ErrorIs(t, err, schemas.ErrPurchaseNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should decode jsonb columns", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		id := uuid.New()
		userID := uuid.New()
		now := time.Now().UTC()

		rows := pgxmock.NewRows([]string{
			"id", "user_id", "product_url", "product_config", "status", "steps", "error",
			"created_at", "updated_at", "completed_at",
		}).AddRow(
			id, userID, "https://shop.example.com/widget",
			[]byte(`{"quantity":2,"options":{"size":"M"}}`),
			"processing",
			[]byte(`{"navigate":{"status":"info","content":"landed","timestamp":"2026-03-14T09:26:53Z"}}`),
			"", now, now, (*time.Time)(nil),
		)
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, user_id, product_url`)).
			WithArgs(id).
			WillReturnRows(rows)

		rec, err := s.GetPurchase(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusProcessing, rec.Status)
		assert.Equal(t, 2, rec.ProductConfig.Quantity)
		assert.Equal(t, "M", rec.ProductConfig.Options["size"])
		require.Contains(t, rec.Steps, schemas.StepNavigate)
		assert.Equal(t, "landed", rec.Steps[schemas.StepNavigate].Content)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestUpdateStatus(t *testing.T) {
	t.Run("should apply a legal transition", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		id := uuid.New()

		mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE purchases SET status`)).
			WithArgs(id, "processing", anyTime).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.UpdateStatus(context.Background(), id, schemas.StatusProcessing))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject an illegal transition", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		id := uuid.New()

		// The guard lives in the WHERE clause: an illegal transition
		// matches zero rows.
		mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE purchases SET status`)).
			WithArgs(id, "completed", anyTime).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := s.UpdateStatus(context.Background(), id, schemas.StatusCompleted)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "illegal status transition")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestUpsertStep(t *testing.T) {
	s, mockPool := newTestStore(t)
	id := uuid.New()

	isStepEntry := ArgumentMatcherFunc(func(v interface{}) bool {
		b, ok := v.([]byte)
		return ok && strings.Contains(string(b), `"fill_form"`) && strings.Contains(string(b), `"info"`)
	})

	mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE purchases SET steps = steps ||`)).
		WithArgs(id, isStepEntry, anyTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpsertStep(context.Background(), id, schemas.StepFillForm, schemas.Step{
		Status:  schemas.StepInfo,
		Content: "Filled 4 fields on attempt 1.",
	})
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestUpsertStepUnknownPurchase(t *testing.T) {
	s, mockPool := newTestStore(t)
	id := uuid.New()

	mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE purchases SET steps = steps ||`)).
		WithArgs(id, anyTime, anyTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpsertStep(context.Background(), id, schemas.StepNavigate, schemas.Step{Status: schemas.StepInfo})
	assert.ErrorIs(t, err, schemas.ErrPurchaseNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestMarkCompleted(t *testing.T) {
	t.Run("should finalize a processing purchase", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		id := uuid.New()

		mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE purchases SET status = 'completed'`)).
			WithArgs(id, anyTime).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.MarkCompleted(context.Background(), id))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should refuse when not processing", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		id := uuid.New()

		mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE purchases SET status = 'completed'`)).
			WithArgs(id, anyTime).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := s.MarkCompleted(context.Background(), id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not in a completable state")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestSetError(t *testing.T) {
	s, mockPool := newTestStore(t)
	id := uuid.New()

	mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE purchases SET error`)).
		WithArgs(id, "Payment error: card declined", anyTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SetError(context.Background(), id, "Payment error: card declined"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetUser(t *testing.T) {
	s, mockPool := newTestStore(t)
	id := uuid.New()

	rows := pgxmock.NewRows([]string{"id", "name", "email", "phone", "address"}).
		AddRow(id, "Jane Doe", "jane@example.com", "555-0100",
			[]byte(`{"street":"1 Main St","city":"Springfield","state":"IL","zip":"62701","country":"US"}`))
	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, name, email, phone, address FROM users`)).
		WithArgs(id).
		WillReturnRows(rows)

	u, err := s.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", u.Name)
	assert.Equal(t, "Springfield", u.Address.City)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	s, mockPool := newTestStore(t)
	id := uuid.New()

	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, name, email, phone, address FROM users`)).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetUser(context.Background(), id)
	assert.ErrorIs(t, err, schemas.ErrUserNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetPaymentMethods(t *testing.T) {
	s, mockPool := newTestStore(t)

	defaultID := uuid.New()
	otherID := uuid.New()
	rows := pgxmock.NewRows([]string{
		"id", "is_default", "card_number", "card_holder", "expiry_month", "expiry_year", "cvv",
	}).
		AddRow(defaultID, true, "4242424242424242", "Jane Doe", "04", "2028", "123").
		AddRow(otherID, false, "5555555555554444", "Jane Doe", "11", "2027", "999")

	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, is_default, card_number`)).
		WillReturnRows(rows)

	cards, err := s.GetPaymentMethods(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 2)
	// Default-first ordering comes from the query itself.
	assert.Equal(t, defaultID, cards[0].ID)
	assert.True(t, cards[0].IsDefault)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
