// internal/formfill/filler.go
package formfill

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
	"github.com/xkilldash9x/autocart/internal/locator"
)

// rule maps context keywords to a profile value. Rules are evaluated in
// slice order and the first match wins, so more specific phrasings must
// precede the broader ones they contain: "full name" before
// "first"/"last", apartment and line-2 variants before the bare
// "address".
type rule struct {
	needles []string
	value   func(schemas.UserProfile) string
}

// addressRules route billing, shipping, and contact fields.
var addressRules = []rule{
	{[]string{"email", "e-mail"}, func(p schemas.UserProfile) string { return p.Email }},
	{[]string{"phone", "mobile", "telephone"}, func(p schemas.UserProfile) string { return p.Phone }},
	{[]string{"full name", "fullname", "full_name", "your name"}, func(p schemas.UserProfile) string { return p.FullName() }},
	{[]string{"first"}, func(p schemas.UserProfile) string { return p.FirstName }},
	{[]string{"last", "surname", "family"}, func(p schemas.UserProfile) string { return p.LastName }},
	{[]string{"apt", "suite", "unit", "address2", "address-2", "address 2", "line2", "line-2", "line 2"},
		func(p schemas.UserProfile) string { return p.Address.Apt }},
	{[]string{"street", "address"}, func(p schemas.UserProfile) string { return p.Address.Street }},
	{[]string{"city", "town"}, func(p schemas.UserProfile) string { return p.Address.City }},
	{[]string{"state", "province", "region"}, func(p schemas.UserProfile) string { return p.Address.State }},
	{[]string{"zip", "postal", "postcode"}, func(p schemas.UserProfile) string { return p.Address.Zip }},
	{[]string{"country"}, func(p schemas.UserProfile) string { return p.Address.Country }},
	{[]string{"name"}, func(p schemas.UserProfile) string { return p.FullName() }},
}

// paymentRules route fields classified as payment. A bare "name" here is
// the cardholder, not the customer.
var paymentRules = []rule{
	{[]string{"card number", "cardnumber", "card-number", "ccnumber", "cc-number", "number"},
		func(p schemas.UserProfile) string { return p.Payment.CardNumber }},
	{[]string{"month", "exp-month", "expmonth"}, func(p schemas.UserProfile) string { return p.Payment.ExpiryMonth }},
	{[]string{"year", "exp-year", "expyear"}, func(p schemas.UserProfile) string { return p.Payment.ExpiryYear }},
	{[]string{"expir", "exp-date", "exp date", "mm/yy", "mm / yy"},
		func(p schemas.UserProfile) string { return p.Payment.ExpiryMMYY() }},
	{[]string{"cvv", "cvc", "security code", "verification"}, func(p schemas.UserProfile) string { return p.Payment.CVV }},
	{[]string{"holder", "name"}, func(p schemas.UserProfile) string { return p.Payment.CardHolder }},
	{[]string{"email", "e-mail"}, func(p schemas.UserProfile) string { return p.Email }},
	{[]string{"zip", "postal", "postcode"}, func(p schemas.UserProfile) string { return p.Address.Zip }},
}

// ValueFor resolves the profile value for a classified field from its
// context text. Pure: the same inputs always yield the same decision.
// Unknown-role fields are never routed.
func ValueFor(role schemas.FieldRole, contextText string, p schemas.UserProfile) (string, bool) {
	if role == schemas.FieldUnknown {
		return "", false
	}
	rules := addressRules
	if role == schemas.FieldPayment {
		rules = paymentRules
	}
	lc := strings.ToLower(contextText)
	for _, r := range rules {
		for _, needle := range r.needles {
			if strings.Contains(lc, needle) {
				v := r.value(p)
				return v, v != ""
			}
		}
	}
	return "", false
}

// describeJS re-reads the context blob for one tagged element so routing
// can run Go-side. Returns tag and type alongside so selects and
// checkboxes take their own write paths.
const describeJS = `((sel) => {
    const el = document.querySelector(sel);
    if (!el) return null;
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
    return {ctx: ctx, tag: el.tagName.toLowerCase(), type: (el.type || '').toLowerCase()};
})(%q)`

// writeInputJS performs the full write sequence on a text-like input:
// focus, clear, native value setter, input/change/blur dispatch.
const writeInputJS = `((sel, value) => {
    const el = document.querySelector(sel);
    if (!el) return false;
    el.scrollIntoView({block: 'center'});
    el.focus();
    const proto = el.tagName === 'TEXTAREA' ? window.HTMLTextAreaElement.prototype
                                            : window.HTMLInputElement.prototype;
    const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
    setter.call(el, '');
    setter.call(el, value);
    el.dispatchEvent(new Event('input', {bubbles: true}));
    el.dispatchEvent(new Event('change', {bubbles: true}));
    el.dispatchEvent(new Event('blur', {bubbles: true}));
    return true;
})(%q, %q)`

// selectOptionJS picks the first option whose text or value contains the
// target, case-insensitive. Exact value match is tried first so "US"
// does not land on "Australia".
const selectOptionJS = `((sel, value) => {
    const el = document.querySelector(sel);
    if (!el || el.tagName !== 'SELECT') return false;
    const lc = value.toLowerCase();
    let pick = -1;
    for (let i = 0; i < el.options.length; i++) {
        if (el.options[i].value.toLowerCase() === lc) { pick = i; break; }
    }
    if (pick < 0) {
        for (let i = 0; i < el.options.length; i++) {
            const opt = el.options[i];
            if (opt.text.toLowerCase().includes(lc) || opt.value.toLowerCase().includes(lc)) {
                pick = i;
                break;
            }
        }
    }
    if (pick < 0) return false;
    el.selectedIndex = pick;
    el.dispatchEvent(new Event('change', {bubbles: true}));
    return true;
})(%q, %q)`

// checkboxJS drives a checkbox to the wanted state through a click so
// bound handlers fire; falls back to direct assignment plus a change
// event when the click did not take.
const checkboxJS = `((sel, want) => {
    const el = document.querySelector(sel);
    if (!el || el.type !== 'checkbox') return false;
    if (el.checked === want) return true;
    el.scrollIntoView({block: 'center'});
    el.click();
    if (el.checked !== want) {
        el.checked = want;
        el.dispatchEvent(new Event('change', {bubbles: true}));
    }
    return el.checked === want;
})(%q, %t)`

// savePaymentSweepJS unchecks every visible "save/remember this card"
// style checkbox. Run once per fill pass; storing card details on the
// merchant side is never wanted.
const savePaymentSweepJS = `(() => {
    const needles = ['save', 'remember', 'store', 'keep'];
    const cardish = ['card', 'payment', 'billing', 'info', 'detail'];
    let swept = 0;
    for (const el of document.querySelectorAll('input[type="checkbox"]')) {
        if (!el.checked) continue;
        const style = window.getComputedStyle(el);
        if (style.display === 'none' || style.visibility === 'hidden') continue;
        let ctx = (el.id || '') + ' ' + (el.getAttribute('name') || '') + ' ' + (el.className || '');
        if (el.id) {
            const label = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
            if (label) ctx += ' ' + (label.textContent || '');
        }
        if (el.parentElement) ctx += ' ' + (el.parentElement.textContent || '');
        const lc = ctx.toLowerCase();
        if (!needles.some(n => lc.includes(n)) || !cardish.some(n => lc.includes(n))) continue;
        el.click();
        if (el.checked) {
            el.checked = false;
            el.dispatchEvent(new Event('change', {bubbles: true}));
        }
        swept++;
    }
    return swept;
})()`

// Report summarizes one fill pass.
type Report struct {
	Written        int
	Skipped        int
	PaymentWritten bool
	SaveUnchecked  int
}

type fieldInfo struct {
	Ctx  string `json:"ctx"`
	Tag  string `json:"tag"`
	Type string `json:"type"`
}

// Filler writes profile data into classified form fields.
type Filler struct {
	logger *zap.Logger
}

// New creates a Filler.
func New(logger *zap.Logger) *Filler {
	return &Filler{logger: logger.Named("formfill")}
}

// Fill writes the profile into every classified field in classifier
// order. Unknown-role fields are never touched. Selects match options
// by substring, checkboxes in classified roles are driven checked
// (consent-style boxes inside the form), and save-payment checkboxes
// are swept off at the end. Individual field failures are skipped, not
// fatal: partial progress still moves the purchase forward and the
// engine re-runs the pass.
func (f *Filler) Fill(ctx context.Context, page locator.PageEvaluator, cls schemas.FieldClassification, p schemas.UserProfile) (Report, error) {
	var rep Report

	for _, role := range schemas.ClassifierOrder {
		for _, sel := range cls[role] {
			var info *fieldInfo
			if err := page.Evaluate(ctx, fmt.Sprintf(describeJS, sel), &info); err != nil || info == nil {
				rep.Skipped++
				continue
			}

			switch {
			case info.Tag == "select":
				value, ok := ValueFor(role, info.Ctx, p)
				if !ok {
					rep.Skipped++
					continue
				}
				var done bool
				if err := page.Evaluate(ctx, fmt.Sprintf(selectOptionJS, sel, value), &done); err != nil || !done {
					rep.Skipped++
					continue
				}
				rep.Written++

			case info.Type == "checkbox":
				var done bool
				if err := page.Evaluate(ctx, fmt.Sprintf(checkboxJS, sel, true), &done); err != nil || !done {
					rep.Skipped++
					continue
				}
				rep.Written++

			case info.Type == "radio" || info.Type == "submit" || info.Type == "button":
				rep.Skipped++

			default:
				value, ok := ValueFor(role, info.Ctx, p)
				if !ok {
					rep.Skipped++
					continue
				}
				var done bool
				if err := page.Evaluate(ctx, fmt.Sprintf(writeInputJS, sel, value), &done); err != nil || !done {
					rep.Skipped++
					continue
				}
				rep.Written++
				if role == schemas.FieldPayment {
					rep.PaymentWritten = true
				}
			}
		}
	}

	var swept int
	if err := page.Evaluate(ctx, savePaymentSweepJS, &swept); err == nil {
		rep.SaveUnchecked = swept
	}

	f.logger.Info("Fill pass complete.",
		zap.Int("written", rep.Written),
		zap.Int("skipped", rep.Skipped),
		zap.Bool("payment_in_dom", rep.PaymentWritten),
		zap.Int("save_boxes_unchecked", rep.SaveUnchecked))

	if rep.Written == 0 && rep.Skipped > 0 {
		return rep, fmt.Errorf("no classified fields could be written")
	}
	return rep, nil
}
