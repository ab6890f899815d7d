// internal/locator/clicker.go
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
)

// OutcomeChecker scans the page for payment-failure signals after a
// payment-class activation.
type OutcomeChecker interface {
	CheckPaymentError(ctx context.Context, page PageEvaluator) (string, bool)
}

// Clicker activates buttons for semantic actions. A true result means
// an activation occurred, never business success.
type Clicker struct {
	locator *Locator
	checker OutcomeChecker
	settle  time.Duration
	logger  *zap.Logger
}

// NewClicker wires a Clicker. checker may be nil when outcome detection
// is handled entirely by the caller.
func NewClicker(logger *zap.Logger, loc *Locator, checker OutcomeChecker, settle time.Duration) *Clicker {
	return &Clicker{
		locator: loc,
		checker: checker,
		settle:  settle,
		logger:  logger.Named("clicker"),
	}
}

// clickJS scrolls the element into view and clicks it. The JS click runs
// first; many overlay-heavy pages intercept trusted pointer events but
// honor the DOM click.
const clickJS = `((sel) => {
    const el = document.querySelector(sel);
    if (!el) return false;
    el.scrollIntoView({block: 'center'});
    el.click();
    return true;
})(%q)`

// Click tries each role in order and activates the first located button.
// For payment-class roles it waits the settle period and then invokes
// the outcome checker; the returned message, if any, is a site-reported
// payment failure.
func (c *Clicker) Click(ctx context.Context, page PageEvaluator, roles ...schemas.ButtonRole) (bool, string) {
	for _, role := range roles {
		selector, err := c.locator.Find(ctx, page, role)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			c.logger.Warn("Locator failed for role.", zap.String("role", string(role)), zap.Error(err))
			continue
		}

		var clicked bool
		if err := page.Evaluate(ctx, fmt.Sprintf(clickJS, selector), &clicked); err != nil || !clicked {
			c.logger.Warn("Click failed; element may have gone stale.",
				zap.String("role", string(role)), zap.Error(err))
			continue
		}

		c.logger.Info("Activated button.", zap.String("role", string(role)))

		if err := page.Sleep(ctx, c.settle); err != nil {
			return true, ""
		}

		if role.PaymentClass() && c.checker != nil {
			if msg, found := c.checker.CheckPaymentError(ctx, page); found {
				c.logger.Error("Payment error detected after activation.", zap.String("message", msg))
				return true, msg
			}
		}
		return true, ""
	}
	return false, ""
}
