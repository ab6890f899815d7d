// internal/locator/productconfig.go
package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
)

// quantityJS locates a quantity field (input or select) and sets it.
// The native value setter bypasses framework-installed property
// interceptors; a plain assignment is silently ignored by most reactive
// UI stacks.
const quantityJS = `((qty) => {
    const blob = (el) => ((el.id || '') + ' ' + (el.getAttribute('name') || '') + ' ' +
        (el.className || '') + ' ' + (el.getAttribute('aria-label') || '') + ' ' +
        (el.getAttribute('placeholder') || '')).toLowerCase();

    const visible = (el) => {
        const style = window.getComputedStyle(el);
        if (style.display === 'none' || style.visibility === 'hidden') return false;
        const rect = el.getBoundingClientRect();
        return rect.width > 0 && rect.height > 0;
    };

    const isQty = (el) => blob(el).includes('quantity') || blob(el).includes('qty');

    for (const el of document.querySelectorAll('input, select')) {
        if (!visible(el) || el.disabled) continue;
        if (!isQty(el) && !(el.tagName === 'INPUT' && el.type === 'number' && el.hasAttribute('min'))) continue;

        if (el.tagName === 'SELECT') {
            for (let i = 0; i < el.options.length; i++) {
                if (el.options[i].value === String(qty) || el.options[i].text.trim() === String(qty)) {
                    el.selectedIndex = i;
                    el.dispatchEvent(new Event('change', {bubbles: true}));
                    return true;
                }
            }
            continue;
        }

        const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, 'value').set;
        setter.call(el, String(qty));
        el.dispatchEvent(new Event('input', {bubbles: true}));
        el.dispatchEvent(new Event('change', {bubbles: true}));
        return true;
    }
    return false;
})(%d)`

// optionJS applies one named product option. Dropdowns are matched by
// surrounding context and options by case-insensitive substring against
// text and value; swatch-style options are clicked by visible text.
const optionJS = `((name, value) => {
    const lcName = name.toLowerCase();
    const lcValue = value.toLowerCase();

    const visible = (el) => {
        const style = window.getComputedStyle(el);
        if (style.display === 'none' || style.visibility === 'hidden') return false;
        const rect = el.getBoundingClientRect();
        return rect.width > 0 && rect.height > 0;
    };

    const contextOf = (el) => {
        let text = (el.id || '') + ' ' + (el.getAttribute('name') || '') + ' ' + (el.className || '');
        let parent = el.parentElement;
        for (let i = 0; i < 3 && parent; i++) {
            const t = parent.textContent || '';
            if (t.length < 200) text += ' ' + t;
            parent = parent.parentElement;
        }
        return text.toLowerCase();
    };

    for (const sel of document.querySelectorAll('select')) {
        if (!visible(sel) || sel.disabled) continue;
        if (!contextOf(sel).includes(lcName)) continue;
        for (let i = 0; i < sel.options.length; i++) {
            const opt = sel.options[i];
            if (opt.text.toLowerCase().includes(lcValue) || opt.value.toLowerCase().includes(lcValue)) {
                sel.selectedIndex = i;
                sel.dispatchEvent(new Event('change', {bubbles: true}));
                return true;
            }
        }
    }

    // Swatches: labels, buttons, radio wrappers carrying the value text.
    for (const el of document.querySelectorAll('label, button, [role="radio"], [role="option"]')) {
        if (!visible(el)) continue;
        const text = (el.textContent || '').trim().toLowerCase();
        if (text === lcValue || (text.includes(lcValue) && text.length < lcValue.length + 10)) {
            el.scrollIntoView({block: 'center'});
            el.click();
            return true;
        }
    }
    return false;
})(%s, %s)`

// ApplyConfig applies quantity and named options to the product page,
// best-effort. The returned error aggregates what could not be applied;
// callers record it as a warning, never a fatal failure.
func (l *Locator) ApplyConfig(ctx context.Context, page PageEvaluator, cfg schemas.ProductConfig) error {
	var failures []string

	if cfg.Quantity > 1 {
		var ok bool
		if err := page.Evaluate(ctx, fmt.Sprintf(quantityJS, cfg.Quantity), &ok); err != nil {
			failures = append(failures, fmt.Sprintf("quantity: %v", err))
		} else if !ok {
			failures = append(failures, "quantity: no quantity field found")
		} else {
			l.logger.Info("Set product quantity.", zap.Int("quantity", cfg.Quantity))
		}
	}

	for name, value := range cfg.Options {
		nameJSON, _ := json.Marshal(name)
		valueJSON, _ := json.Marshal(value)
		var ok bool
		if err := page.Evaluate(ctx, fmt.Sprintf(optionJS, nameJSON, valueJSON), &ok); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		} else if !ok {
			failures = append(failures, fmt.Sprintf("%s: no matching control for %q", name, value))
		} else {
			l.logger.Info("Applied product option.", zap.String("option", name), zap.String("value", value))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("could not apply all product configuration: %s", strings.Join(failures, "; "))
	}
	return nil
}
