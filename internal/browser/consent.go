// internal/browser/consent.go
package browser

import (
	"context"
)

// ConsentSweepJS checks visible, unchecked agreement/consent checkboxes
// in one pass. Newsletter and subscription boxes are excluded; opting a
// user into marketing is not the same as accepting terms. Returns the
// number of boxes checked.
const ConsentSweepJS = `(() => {
    const AGREE = ['agree', 'consent', 'confirm', 'accept', 'terms', 'cookie'];
    const SKIP = ['newsletter', 'subscribe', 'marketing'];

    const visible = (el) => {
        if (!el.offsetParent && el.offsetWidth === 0 && el.offsetHeight === 0) return false;
        const style = window.getComputedStyle(el);
        return style.display !== 'none' && style.visibility !== 'hidden';
    };

    const contextText = (el) => {
        let text = (el.id || '') + ' ' + (el.name || '') + ' ' + (el.className || '');
        if (el.id) {
            const label = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
            if (label) text += ' ' + (label.textContent || '');
        }
        let parent = el.parentElement;
        for (let i = 0; i < 3 && parent; i++) {
            const t = parent.textContent || '';
            if (t.length < 200) text += ' ' + t;
            parent = parent.parentElement;
        }
        return text.toLowerCase();
    };

    let checked = 0;
    for (const box of document.querySelectorAll('input[type="checkbox"]')) {
        if (box.checked || box.disabled || !visible(box)) continue;
        const text = contextText(box);
        if (SKIP.some(k => text.includes(k))) continue;
        if (!AGREE.some(k => text.includes(k))) continue;
        box.scrollIntoView({block: 'center'});
        box.click();
        if (!box.checked) {
            // Some frameworks swallow the synthetic click; set directly.
            box.checked = true;
            box.dispatchEvent(new Event('change', {bubbles: true}));
        }
        checked++;
    }
    return checked;
})()`

// sweepConsentCheckboxes runs the consent sweep on the current page.
func (s *Session) sweepConsentCheckboxes(ctx context.Context) (int, error) {
	var n int
	if err := s.Evaluate(ctx, ConsentSweepJS, &n); err != nil {
		return 0, err
	}
	return n, nil
}
