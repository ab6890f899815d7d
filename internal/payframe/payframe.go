// internal/payframe/payframe.go
//
// Payment providers host card fields inside isolated embedded documents
// the parent page cannot query. Same-origin frames are reachable through
// contentDocument; cross-origin frames are separate CDP targets and need
// their own attachment. Some integrations keep all four fields in one
// frame, others spread card/expiry/cvv/name across several, one field
// per frame — both layouts are handled here.
package payframe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
)

// fieldKind identifies one sensitive payment field.
type fieldKind string

const (
	fieldCard   fieldKind = "card"
	fieldExpiry fieldKind = "expiry"
	fieldCVV    fieldKind = "cvv"
	fieldHolder fieldKind = "holder"
)

// fieldSelectors maps each field to the selectors payment providers use
// for it. The card set doubles as the frame-confirmation probe: a
// context only counts as a payment frame once a card-number-shaped
// field is found inside it.
var fieldSelectors = map[fieldKind]string{
	fieldCard:   `input[name='number'], input[name='cardnumber'], input[autocomplete='cc-number'], input[data-elements-stable-field-name='cardNumber']`,
	fieldExpiry: `input[name='exp-date'], input[name='expiry'], input[autocomplete='cc-exp'], input[data-elements-stable-field-name='cardExpiry']`,
	fieldCVV:    `input[name='verification_value'], input[name='cvc'], input[autocomplete='cc-csc'], input[data-elements-stable-field-name='cardCvc']`,
	fieldHolder: `input[name='name'], input[name='cardholder-name'], input[name='cardholder'], input[name='nameOnAccount'], input[autocomplete='cc-name'], input[data-elements-stable-field-name='cardHolder']`,
}

// fieldValues resolves the profile data each field receives.
func fieldValues(pm schemas.PaymentMethod) map[fieldKind]string {
	return map[fieldKind]string{
		fieldCard:   pm.CardNumber,
		fieldExpiry: pm.ExpiryMMYY(),
		fieldCVV:    pm.CVV,
		fieldHolder: pm.CardHolder,
	}
}

// writeFieldJS is the framework-compatible write sequence: focus, clear,
// assign through the native value setter (bypassing any intercepting
// property the hosting page's framework installed), then dispatch
// input/change/blur. Naive assignment is silently ignored by most
// reactive frameworks.
const writeFieldJS = `
    const writeField = (doc, field, value) => {
        field.scrollIntoView({block: 'center'});
        field.focus();
        const setter = Object.getOwnPropertyDescriptor(
            (doc.defaultView || window).HTMLInputElement.prototype, 'value').set;
        setter.call(field, '');
        setter.call(field, value);
        field.dispatchEvent(new Event('input', {bubbles: true}));
        field.dispatchEvent(new Event('change', {bubbles: true}));
        field.dispatchEvent(new Event('blur', {bubbles: true}));
    };
`

// Session is the browser surface the handler drives.
type Session interface {
	Evaluate(ctx context.Context, script string, res interface{}) error
	Context() context.Context
}

// Handler locates and fills payment fields inside isolated frames.
type Handler struct {
	logger *zap.Logger
}

// New creates a Handler.
func New(logger *zap.Logger) *Handler {
	return &Handler{logger: logger.Named("payframe")}
}

// FillPaymentFields attempts all strategies in order: same-origin frames
// first (single frame holding the full field set, then one-field-per-
// frame), then cross-origin frame targets. Returns true once a card
// number was written somewhere; a false result is an expected outcome on
// pages that render payment fields in the plain DOM.
func (h *Handler) FillPaymentFields(ctx context.Context, sess Session, pm schemas.PaymentMethod) bool {
	if filled := h.fillSameOrigin(ctx, sess, pm); filled {
		return true
	}
	return h.fillCrossOrigin(ctx, sess, pm)
}

// sameOriginJS walks every same-origin iframe. Each frame is probed for
// a card-shaped field; a frame with card and cvv gets all four fields,
// otherwise each frame takes the one field it matches. A second
// card-shaped field in a later frame is treated as the expiry input —
// some providers reuse the same input name for both.
const sameOriginJS = `((cfg) => {
    %s
    const kinds = ['card', 'expiry', 'cvv', 'holder'];
    let cardWritten = false;
    let cardSeen = false;

    const frames = document.querySelectorAll(
        "iframe[name^='__privateStripeFrame'], iframe.stripe-element, iframe.card-fields-iframe, iframe");
    const seen = new Set();
    for (const frame of frames) {
        if (seen.has(frame)) continue;
        seen.add(frame);
        let doc;
        try {
            doc = frame.contentDocument;
        } catch (e) {
            continue; // cross-origin, handled elsewhere
        }
        if (!doc) continue;

        const cardField = doc.querySelector(cfg.selectors.card);
        const cvvField = doc.querySelector(cfg.selectors.cvv);

        if (cardField && cvvField) {
            for (const kind of kinds) {
                const field = doc.querySelector(cfg.selectors[kind]);
                if (field && cfg.values[kind]) writeField(doc, field, cfg.values[kind]);
            }
            return true;
        }

        for (const kind of kinds) {
            const field = doc.querySelector(cfg.selectors[kind]);
            if (!field || !cfg.values[kind]) continue;
            if (kind === 'card' && cardSeen) {
                writeField(doc, field, cfg.values.expiry);
                break;
            }
            writeField(doc, field, cfg.values[kind]);
            if (kind === 'card') {
                cardSeen = true;
                cardWritten = true;
            }
            break;
        }
    }
    return cardWritten;
})(%s)`

func (h *Handler) fillSameOrigin(ctx context.Context, sess Session, pm schemas.PaymentMethod) bool {
	cfg := struct {
		Selectors map[fieldKind]string `json:"selectors"`
		Values    map[fieldKind]string `json:"values"`
	}{fieldSelectors, fieldValues(pm)}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		h.logger.Error("Could not encode frame fill config.", zap.Error(err))
		return false
	}

	var filled bool
	script := fmt.Sprintf(sameOriginJS, writeFieldJS, cfgJSON)
	if err := sess.Evaluate(ctx, script, &filled); err != nil {
		h.logger.Debug("Same-origin frame fill failed.", zap.Error(err))
		return false
	}
	if filled {
		h.logger.Info("Filled payment fields in same-origin frame.",
			zap.String("card", pm.MaskedNumber()))
	}
	return filled
}

// frameFillJS writes whichever payment fields exist in the attached
// frame's own document. Used against cross-origin frame targets where
// each frame typically holds a single field.
const frameFillJS = `((cfg) => {
    %s
    const kinds = ['card', 'expiry', 'cvv', 'holder'];
    const written = [];
    for (const kind of kinds) {
        const field = document.querySelector(cfg.selectors[kind]);
        if (!field || !cfg.values[kind]) continue;
        writeField(document, field, cfg.values[kind]);
        written.push(kind);
    }
    return written;
})(%s)`

// paymentFrameURL reports whether a target URL looks like a payment
// provider's embedded document.
func paymentFrameURL(url string) bool {
	lc := strings.ToLower(url)
	for _, marker := range []string{"stripe", "braintree", "adyen", "checkout", "payment", "card"} {
		if strings.Contains(lc, marker) {
			return true
		}
	}
	return false
}

func (h *Handler) fillCrossOrigin(ctx context.Context, sess Session, pm schemas.PaymentMethod) bool {
	targets, err := chromedp.Targets(sess.Context())
	if err != nil {
		h.logger.Debug("Could not enumerate frame targets.", zap.Error(err))
		return false
	}

	cfg := struct {
		Selectors map[fieldKind]string `json:"selectors"`
		Values    map[fieldKind]string `json:"values"`
	}{fieldSelectors, fieldValues(pm)}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return false
	}
	script := fmt.Sprintf(frameFillJS, writeFieldJS, cfgJSON)

	cardWritten := false
	cardSeen := false
	for _, t := range targets {
		if t.Type != "iframe" && !paymentFrameURL(t.URL) {
			continue
		}
		if t.Type == "page" {
			continue
		}

		// Attach to the frame's own target; it is unreachable from the
		// parent page's script context.
		frameCtx, cancel := chromedp.NewContext(sess.Context(), chromedp.WithTargetID(t.TargetID))
		evalCtx, evalCancel := context.WithTimeout(frameCtx, 10*time.Second)

		var written []string
		err := chromedp.Run(evalCtx, chromedp.Evaluate(script, &written))
		evalCancel()
		cancel()
		if err != nil {
			h.logger.Debug("Frame target fill failed.", zap.String("url", t.URL), zap.Error(err))
			continue
		}
		for _, kind := range written {
			if kind == string(fieldCard) {
				if cardSeen {
					// Duplicate card-shaped field across frames; the
					// value written was the card number, but the frame
					// most likely wanted the expiry. Rewrite it.
					h.rewriteAsExpiry(sess, t.TargetID, pm)
				} else {
					cardSeen = true
					cardWritten = true
				}
			}
		}
	}

	if cardWritten {
		h.logger.Info("Filled payment fields across isolated frames.",
			zap.String("card", pm.MaskedNumber()))
	}
	return cardWritten
}

// rewriteAsExpiry overwrites a frame's card-shaped field with the expiry
// value. Covers providers that render the expiry input with card-number
// markup in a separate frame.
func (h *Handler) rewriteAsExpiry(sess Session, id target.ID, pm schemas.PaymentMethod) {
	frameCtx, cancel := chromedp.NewContext(sess.Context(), chromedp.WithTargetID(id))
	defer cancel()
	evalCtx, evalCancel := context.WithTimeout(frameCtx, 5*time.Second)
	defer evalCancel()

	script := fmt.Sprintf(`((sel, value) => {
        %s
        const field = document.querySelector(sel);
        if (field) writeField(document, field, value);
        return !!field;
    })(%q, %q)`, writeFieldJS, fieldSelectors[fieldCard], pm.ExpiryMMYY())

	if err := chromedp.Run(evalCtx, chromedp.Evaluate(script, nil)); err != nil {
		h.logger.Debug("Expiry rewrite failed.", zap.Error(err))
	}
}
