// internal/classify/classifier.go
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
	"github.com/xkilldash9x/autocart/internal/locator"
)

// keywordTable holds the per-role keyword sets. Roles are tested in
// schemas.ClassifierOrder; the first match wins, so billing phrasing
// beats the broader shipping and payment vocabularies on elements that
// mention both.
var keywordTable = map[schemas.FieldRole][]string{
	schemas.FieldBilling: {
		"billing", "bill to", "bill address", "billing address", "bill information",
	},
	schemas.FieldShipping: {
		"shipping", "ship to", "delivery", "shipping address", "ship address",
		"delivery address", "recipient",
	},
	schemas.FieldPayment: {
		"payment", "card", "credit", "cvv", "cvc", "expir", "card number",
		"cardholder", "security code", "payment method",
	},
	schemas.FieldContact: {
		"email", "phone", "contact", "mobile", "telephone", "e-mail",
	},
}

// RoleFor classifies a single element's context string. Deterministic:
// the same context always yields the same role.
func RoleFor(contextText string) schemas.FieldRole {
	lc := strings.ToLower(contextText)
	for _, role := range schemas.ClassifierOrder {
		for _, keyword := range keywordTable[role] {
			if strings.Contains(lc, keyword) {
				return role
			}
		}
	}
	return schemas.FieldUnknown
}

// enumerateJS tags every visible, enabled input-like element and returns
// its generated selector together with the context string used for
// classification: id, name, class, placeholder, associated label, and up
// to three ancestor levels of surrounding text.
const enumerateJS = `((token) => {
    const visible = (el) => {
        const style = window.getComputedStyle(el);
        if (style.display === 'none' || style.visibility === 'hidden') return false;
        if (el.type === 'hidden') return false;
        const rect = el.getBoundingClientRect();
        return rect.width > 0 && rect.height > 0;
    };

    const out = [];
    let n = 0;
    for (const el of document.querySelectorAll('input, select, textarea')) {
        if (!visible(el) || el.disabled) continue;

        let ctx = (el.id || '') + ' ' + (el.getAttribute('name') || '') + ' ' +
                  (el.className || '') + ' ' + (el.getAttribute('placeholder') || '') + ' ' +
                  (el.getAttribute('aria-label') || '') + ' ' +
                  (el.getAttribute('autocomplete') || '');

        if (el.id) {
            const label = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
            if (label) ctx += ' ' + (label.textContent || '');
        }

        let parent = el.parentElement;
        for (let i = 0; i < 3 && parent; i++) {
            const t = (parent.textContent || '').trim();
            if (t && t.length <= 160) ctx += ' ' + t;
            parent = parent.parentElement;
        }

        const id = token + '-' + (n++);
        el.setAttribute('data-autocart-field', id);
        out.push({sel: '[data-autocart-field="' + id + '"]', ctx: ctx, tag: el.tagName.toLowerCase()});
    }
    return out;
})(%q)`

type enumeratedField struct {
	Sel string `json:"sel"`
	Ctx string `json:"ctx"`
	Tag string `json:"tag"`
}

// Classifier tags form elements with semantic roles.
type Classifier struct {
	logger *zap.Logger
}

// New creates a Classifier.
func New(logger *zap.Logger) *Classifier {
	return &Classifier{logger: logger.Named("classifier")}
}

// Classify enumerates the current page's form elements and assigns each
// a role. Unmatched elements land in the unknown bucket rather than
// being dropped; their count tells the engine how complete a fill pass
// can be. The classification is valid for this page visit only.
func (c *Classifier) Classify(ctx context.Context, page locator.PageEvaluator) (schemas.FieldClassification, error) {
	token := fmt.Sprintf("autocart-f%d", time.Now().UnixNano())

	var fields []enumeratedField
	if err := page.Evaluate(ctx, fmt.Sprintf(enumerateJS, token), &fields); err != nil {
		return nil, fmt.Errorf("field enumeration failed: %w", err)
	}

	classification := schemas.FieldClassification{}
	for _, f := range fields {
		role := RoleFor(f.Ctx)
		classification[role] = append(classification[role], f.Sel)
	}

	c.logger.Info("Classified form fields.",
		zap.Int("total", len(fields)),
		zap.Int("billing", len(classification[schemas.FieldBilling])),
		zap.Int("shipping", len(classification[schemas.FieldShipping])),
		zap.Int("payment", len(classification[schemas.FieldPayment])),
		zap.Int("contact", len(classification[schemas.FieldContact])),
		zap.Int("unknown", len(classification[schemas.FieldUnknown])))

	return classification, nil
}
