// api/schemas/interfaces.go
package schemas

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrPurchaseNotFound is returned by repositories when no record
	// exists for the requested id.
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrUserNotFound is returned when the purchase references a user
	// that no longer exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoPaymentMethod means the card list was empty; the run fails
	// before any browser interaction.
	ErrNoPaymentMethod = errors.New("no payment methods found")
)

// Repository is the persistence surface the engine consumes. Writes are
// independent, idempotent, step-keyed upserts; duplicate writes under
// retry are safe.
type Repository interface {
	GetPurchase(ctx context.Context, id uuid.UUID) (*PurchaseRecord, error)
	CreatePurchase(ctx context.Context, rec *PurchaseRecord) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status PurchaseStatus) error
	UpsertStep(ctx context.Context, id uuid.UUID, key string, step Step) error
	SetError(ctx context.Context, id uuid.UUID, msg string) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error

	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetPaymentMethods(ctx context.Context) ([]PaymentMethod, error)
}
