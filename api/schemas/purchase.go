// api/schemas/purchase.go
package schemas

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus tracks the lifecycle of a purchase run.
type PurchaseStatus string

const (
	StatusCreated    PurchaseStatus = "created"
	StatusProcessing PurchaseStatus = "processing"
	StatusCompleted  PurchaseStatus = "completed"
	StatusFailed     PurchaseStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal,
// monotonic transition. Terminal states never transition out.
func (s PurchaseStatus) CanTransition(next PurchaseStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s PurchaseStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepStatus grades a single workflow step.
type StepStatus string

const (
	StepInfo    StepStatus = "info"
	StepWarning StepStatus = "warning"
	StepError   StepStatus = "error"
)

// Step keys. One per workflow phase; writes are upserts so re-running a
// phase replaces only its own entry.
const (
	StepNavigate     = "navigate"
	StepConfigure    = "configure"
	StepAddToCart    = "add_to_cart"
	StepCheckoutNav  = "checkout_nav"
	StepFillForm     = "fill_form"
	StepPaymentCheck = "payment_check"
	StepFinalize     = "finalize"
)

// Step records the outcome of one workflow phase.
type Step struct {
	Status    StepStatus `json:"status"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

// Steps maps step keys to their latest recorded state.
type Steps map[string]Step

// Merge applies an upsert: the entry under key is replaced, every other
// entry is left intact.
func (s Steps) Merge(key string, step Step) Steps {
	out := make(Steps, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[key] = step
	return out
}

// ProductConfig carries the buyer's product selections. Quantity is
// handled separately from named options (size, color, ...).
type ProductConfig struct {
	Quantity int               `json:"quantity"`
	Options  map[string]string `json:"options,omitempty"`
}

// PurchaseRecord is the persisted state of one automated purchase.
// Only the engine mutates it after creation.
type PurchaseRecord struct {
	ID            uuid.UUID      `json:"id"`
	UserID        uuid.UUID      `json:"user_id"`
	ProductURL    string         `json:"product_url"`
	ProductConfig ProductConfig  `json:"product_config"`
	Status        PurchaseStatus `json:"status"`
	Steps         Steps          `json:"steps"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Snapshot renders the record for external consumers: identifiers
// stringified, dates ISO-formatted. Callers poll this; there is no
// in-process channel to observe progress.
func (p *PurchaseRecord) Snapshot() map[string]any {
	snap := map[string]any{
		"id":          p.ID.String(),
		"user_id":     p.UserID.String(),
		"product_url": p.ProductURL,
		"status":      string(p.Status),
		"created_at":  p.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":  p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if len(p.Steps) > 0 {
		steps := make(map[string]any, len(p.Steps))
		for k, st := range p.Steps {
			steps[k] = map[string]any{
				"status":    string(st.Status),
				"content":   st.Content,
				"timestamp": st.Timestamp.UTC().Format(time.RFC3339),
			}
		}
		snap["steps"] = steps
	}
	if p.Error != "" {
		snap["error"] = p.Error
	}
	if p.CompletedAt != nil {
		snap["completed_at"] = p.CompletedAt.UTC().Format(time.RFC3339)
	}
	return snap
}

// MarshalConfig serializes the product config for jsonb storage.
func (p *PurchaseRecord) MarshalConfig() ([]byte, error) {
	return json.Marshal(p.ProductConfig)
}
