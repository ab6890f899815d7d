// internal/outcome/detector.go
package outcome

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/internal/locator"
)

// paymentErrorNeedles are phrases merchants use when a charge is
// rejected. Matched case-insensitively against banner text and dialog
// messages.
var paymentErrorNeedles = []string{
	"declined",
	"failed",
	"invalid",
	"insufficient",
	"payment error",
	"could not be processed",
	"unable to process",
	"try a different",
	"expired",
	"cvc",
}

// confirmationNeedles signal a completed order on the page itself.
var confirmationNeedles = []string{
	"thank you for your order",
	"thank you for your purchase",
	"order confirmed",
	"order complete",
	"your order has been placed",
	"order number",
	"confirmation number",
	"receipt",
}

// bannerScanJS collects the text of visible elements whose class or
// role marks them as an error surface. Text is truncated per element;
// the first matching phrase is all the caller needs.
const bannerScanJS = `(() => {
    const sels = [
        '[class*="error"]', '[class*="alert"]', '[class*="warning"]',
        '[class*="failed"]', '[class*="invalid"]', '[class*="danger"]',
        '[role="alert"]', '.message--error', '.notice--error',
    ];
    const out = [];
    const seen = new Set();
    for (const sel of sels) {
        for (const el of document.querySelectorAll(sel)) {
            if (seen.has(el)) continue;
            seen.add(el);
            const style = window.getComputedStyle(el);
            if (style.display === 'none' || style.visibility === 'hidden') continue;
            const rect = el.getBoundingClientRect();
            if (rect.width === 0 || rect.height === 0) continue;
            const text = (el.textContent || '').trim();
            if (text && text.length <= 400) out.push(text);
            if (out.length >= 20) return out;
        }
    }
    return out;
})()`

// bodyTextJS returns the page's visible text, bounded. Used for
// confirmation phrasing which rarely lives in a dedicated banner.
const bodyTextJS = `(() => {
    const text = (document.body && document.body.innerText) || '';
    return text.slice(0, 20000);
})()`

// DialogSource yields the most recent JavaScript dialog message, if one
// fired since the last check.
type DialogSource interface {
	TakeLastDialog() (string, bool)
}

// Detector inspects the page after payment-class activations. It reads
// signals the site itself emits; it never decides success on its own.
type Detector struct {
	dialogs DialogSource
	logger  *zap.Logger
}

// New creates a Detector. dialogs may be nil when the session does not
// record dialogs.
func New(logger *zap.Logger, dialogs DialogSource) *Detector {
	return &Detector{dialogs: dialogs, logger: logger.Named("outcome")}
}

// matchNeedle returns the first needle contained in text.
func matchNeedle(text string, needles []string) (string, bool) {
	lc := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lc, n) {
			return n, true
		}
	}
	return "", false
}

// CheckPaymentError reports a site-surfaced payment failure: a recorded
// JavaScript dialog carrying a failure phrase, or a visible error
// banner. The returned string is the site's own message, suitable for
// the purchase record verbatim.
func (d *Detector) CheckPaymentError(ctx context.Context, page locator.PageEvaluator) (string, bool) {
	if d.dialogs != nil {
		if msg, ok := d.dialogs.TakeLastDialog(); ok {
			if _, hit := matchNeedle(msg, paymentErrorNeedles); hit {
				d.logger.Warn("Payment failure reported via dialog.", zap.String("message", msg))
				return msg, true
			}
			d.logger.Debug("Dialog observed without failure phrasing.", zap.String("message", msg))
		}
	}

	var banners []string
	if err := page.Evaluate(ctx, bannerScanJS, &banners); err != nil {
		d.logger.Debug("Banner scan failed.", zap.Error(err))
		return "", false
	}
	for _, text := range banners {
		if _, hit := matchNeedle(text, paymentErrorNeedles); hit {
			d.logger.Warn("Payment failure banner found.", zap.String("message", text))
			return text, true
		}
	}
	return "", false
}

// DetectConfirmation scans the visible page text for order-confirmation
// phrasing. A hit is strong evidence the purchase went through; a miss
// proves nothing, so the caller combines it with the navigation signal.
func (d *Detector) DetectConfirmation(ctx context.Context, page locator.PageEvaluator) (bool, string) {
	var body string
	if err := page.Evaluate(ctx, bodyTextJS, &body); err != nil {
		d.logger.Debug("Body text scan failed.", zap.Error(err))
		return false, ""
	}
	if phrase, hit := matchNeedle(body, confirmationNeedles); hit {
		d.logger.Info("Confirmation phrasing found on page.", zap.String("phrase", phrase))
		return true, phrase
	}
	return false, ""
}

// ConfirmationURL reports whether the URL itself looks like an order
// confirmation page.
func ConfirmationURL(url string) bool {
	lc := strings.ToLower(url)
	for _, marker := range []string{"confirmation", "thank", "order-received", "order_received", "success"} {
		if strings.Contains(lc, marker) {
			return true
		}
	}
	return false
}
