// internal/locator/probe.go
package locator

import "fmt"

// probeJS walks a strategy cascade in-page. Strategies run strictly in
// table order; within a strategy the first visible candidate wins. The
// winner is tagged with the caller's token under data-autocart-id so
// later actions address exactly the element the probe found, even if
// the DOM shifts underneath a re-query.
//
// Returns the name of the matching strategy kind, or "" when the
// cascade is exhausted (an expected outcome, not an error).
const probeHelpersJS = `
    const ACTIONABLE = 'button, a, input[type="button"], input[type="submit"], [role="button"]';

    const visible = (el) => {
        if (!el) return false;
        const style = window.getComputedStyle(el);
        if (style.display === 'none' || style.visibility === 'hidden') return false;
        const rect = el.getBoundingClientRect();
        return rect.width > 0 && rect.height > 0;
    };

    const enabled = (el) => !el.disabled && el.getAttribute('aria-disabled') !== 'true';

    const ownText = (el) => {
        const t = (el.textContent || '') + ' ' + (el.value || '');
        return t.toLowerCase();
    };

    const attrBlob = (el) => ((el.id || '') + ' ' + (el.className || '') + ' ' + (el.getAttribute('name') || '')).toLowerCase();

    const candidates = (strategy) => {
        const out = [];
        switch (strategy.kind) {
        case 'text':
            for (const el of document.querySelectorAll(ACTIONABLE)) {
                if (strategy.needles.some(n => ownText(el).includes(n))) out.push(el);
            }
            break;
        case 'attr':
            for (const el of document.querySelectorAll(ACTIONABLE)) {
                if (strategy.needles.some(n => attrBlob(el).includes(n))) out.push(el);
            }
            break;
        case 'aria':
            for (const el of document.querySelectorAll('[role="button"], [aria-label]')) {
                const label = (el.getAttribute('aria-label') || '').toLowerCase();
                if (strategy.needles.some(n => label.includes(n))) out.push(el);
            }
            break;
        case 'marker':
            for (const n of strategy.needles) {
                for (const el of document.querySelectorAll(
                        '[data-testid*="' + n + '"], [data-test*="' + n + '"], [data-action*="' + n + '"]')) {
                    out.push(el);
                }
            }
            break;
        }
        return out;
    };
`

// buildProbeJS renders the full probe for one cascade and token.
func buildProbeJS(tableJSON, token string) string {
	return fmt.Sprintf(`(() => {
    %s
    const table = %s;
    for (const strategy of table) {
        for (const el of candidates(strategy)) {
            if (!visible(el) || !enabled(el)) continue;
            el.setAttribute('data-autocart-id', %q);
            return strategy.kind;
        }
    }
    return '';
})()`, probeHelpersJS, tableJSON, token)
}
