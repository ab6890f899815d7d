// internal/locator/locator.go
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
)

// ErrNotFound signals an exhausted strategy cascade. Expected and
// non-fatal; callers fall back or retry, they never propagate it past
// the component boundary.
var ErrNotFound = errors.New("no matching element found")

// PageEvaluator is the slice of the browser session the locator needs.
type PageEvaluator interface {
	Evaluate(ctx context.Context, script string, res interface{}) error
	Sleep(ctx context.Context, d time.Duration) error
}

// Locator resolves semantic roles to concrete page elements via the
// strategy cascades in strategy.go.
type Locator struct {
	logger *zap.Logger
}

// New creates a Locator.
func New(logger *zap.Logger) *Locator {
	return &Locator{logger: logger.Named("locator")}
}

// Find runs the cascade for role and returns a selector addressing the
// first visible, enabled match. The element is tagged in-page so the
// selector stays valid while the page holds still.
func (l *Locator) Find(ctx context.Context, page PageEvaluator, role schemas.ButtonRole) (string, error) {
	table, err := Table(role)
	if err != nil {
		return "", err
	}
	tableJSON, err := encodeTable(table)
	if err != nil {
		return "", err
	}

	token := fmt.Sprintf("autocart-%s-%d", role, time.Now().UnixNano())
	var matched string
	if err := page.Evaluate(ctx, buildProbeJS(tableJSON, token), &matched); err != nil {
		return "", fmt.Errorf("probe evaluation failed for role %s: %w", role, err)
	}
	if matched == "" {
		return "", ErrNotFound
	}

	l.logger.Debug("Element located.",
		zap.String("role", string(role)),
		zap.String("strategy", matched))
	return fmt.Sprintf(`[data-autocart-id=%q]`, token), nil
}
