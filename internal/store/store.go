package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL implementation of schemas.Repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Repository = (*Store)(nil)

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the schema when absent. Steps and product config live
// in jsonb; step upserts merge server-side so concurrent writers never
// clobber each other's entries.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            address JSONB NOT NULL DEFAULT '{}'::jsonb
        );`,
		`CREATE TABLE IF NOT EXISTS payment_methods (
            id UUID PRIMARY KEY,
            is_default BOOLEAN NOT NULL DEFAULT FALSE,
            card_number TEXT NOT NULL,
            card_holder TEXT NOT NULL DEFAULT '',
            expiry_month TEXT NOT NULL,
            expiry_year TEXT NOT NULL,
            cvv TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS purchases (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL,
            product_url TEXT NOT NULL,
            product_config JSONB NOT NULL DEFAULT '{}'::jsonb,
            status TEXT NOT NULL,
            steps JSONB NOT NULL DEFAULT '{}'::jsonb,
            error TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            completed_at TIMESTAMPTZ
        );`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_user ON purchases (user_id);`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreatePurchase inserts a new record. The record's timestamps are set
// here, in UTC, so the caller never races the database clock.
func (s *Store) CreatePurchase(ctx context.Context, rec *schemas.PurchaseRecord) error {
	cfg, err := rec.MarshalConfig()
	if err != nil {
		return fmt.Errorf("failed to marshal product config: %w", err)
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = schemas.StatusCreated
	}

	query := `
        INSERT INTO purchases (id, user_id, product_url, product_config, status, steps, error, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, '', $6, $6);
    `
	if _, err := s.pool.Exec(ctx, query, rec.ID, rec.UserID, rec.ProductURL, cfg, string(rec.Status), now); err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

// GetPurchase loads one record by id.
func (s *Store) GetPurchase(ctx context.Context, id uuid.UUID) (*schemas.PurchaseRecord, error) {
	query := `
        SELECT id, user_id, product_url, product_config, status, steps, error, created_at, updated_at, completed_at
        FROM purchases WHERE id = $1;
    `
	var (
		rec       schemas.PurchaseRecord
		cfgRaw    []byte
		stepsRaw  []byte
		statusStr string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.UserID, &rec.ProductURL, &cfgRaw,
		&statusStr, &stepsRaw, &rec.Error,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schemas.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase: %w", err)
	}

	rec.Status = schemas.PurchaseStatus(statusStr)
	if len(cfgRaw) > 0 {
		if err := json.Unmarshal(cfgRaw, &rec.ProductConfig); err != nil {
			return nil, fmt.Errorf("failed to decode product config: %w", err)
		}
	}
	if len(stepsRaw) > 0 {
		if err := json.Unmarshal(stepsRaw, &rec.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps: %w", err)
		}
	}
	return &rec, nil
}

// UpdateStatus moves the purchase to a new lifecycle state. The legality
// check runs inside the UPDATE so concurrent writers cannot regress a
// terminal state; an illegal transition affects zero rows and is
// reported as an error.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status schemas.PurchaseStatus) error {
	query := `
        UPDATE purchases SET status = $2, updated_at = $3
        WHERE id = $1 AND (
            (status = 'created' AND $2 = 'processing') OR
            (status = 'processing' AND $2 IN ('completed', 'failed'))
        );
    `
	tag, err := s.pool.Exec(ctx, query, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("illegal status transition to %q for purchase %s", status, id)
	}
	return nil
}

// UpsertStep merges one step entry into the record's steps map. The
// jsonb || operator replaces only the written key.
func (s *Store) UpsertStep(ctx context.Context, id uuid.UUID, key string, step schemas.Step) error {
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}
	entry, err := json.Marshal(schemas.Steps{key: step})
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}

	query := `
        UPDATE purchases SET steps = steps || $2::jsonb, updated_at = $3
        WHERE id = $1;
    `
	tag, err := s.pool.Exec(ctx, query, id, entry, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert step %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return schemas.ErrPurchaseNotFound
	}
	return nil
}

// SetError records the failure message without touching status; the
// status transition is its own, guarded write.
func (s *Store) SetError(ctx context.Context, id uuid.UUID, msg string) error {
	query := `UPDATE purchases SET error = $2, updated_at = $3 WHERE id = $1;`
	tag, err := s.pool.Exec(ctx, query, id, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schemas.ErrPurchaseNotFound
	}
	return nil
}

// MarkCompleted finalizes a successful run: status to completed plus the
// completion timestamp, in one guarded write.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	query := `
        UPDATE purchases SET status = 'completed', completed_at = $2, updated_at = $2
        WHERE id = $1 AND status = 'processing';
    `
	tag, err := s.pool.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("purchase %s was not in a completable state", id)
	}
	return nil
}

// GetUser loads one user record, address included.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*schemas.User, error) {
	query := `SELECT id, name, email, phone, address FROM users WHERE id = $1;`

	var (
		u       schemas.User
		addrRaw []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &addrRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schemas.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if len(addrRaw) > 0 {
		if err := json.Unmarshal(addrRaw, &u.Address); err != nil {
			return nil, fmt.Errorf("failed to decode address: %w", err)
		}
	}
	return &u, nil
}

// GetPaymentMethods returns all stored cards, default first so profile
// assembly can fall back to index zero.
func (s *Store) GetPaymentMethods(ctx context.Context) ([]schemas.PaymentMethod, error) {
	query := `
        SELECT id, is_default, card_number, card_holder, expiry_month, expiry_year, cvv
        FROM payment_methods ORDER BY is_default DESC, id ASC;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment methods: %w", err)
	}
	defer rows.Close()

	var cards []schemas.PaymentMethod
	for rows.Next() {
		var pm schemas.PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.IsDefault, &pm.CardNumber, &pm.CardHolder,
			&pm.ExpiryMonth, &pm.ExpiryYear, &pm.CVV); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		cards = append(cards, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return cards, nil
}
