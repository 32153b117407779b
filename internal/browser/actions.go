package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Script wraps a snippet body with the shared helpers. args are made
// available to the body as a const named ARGS.
func Script(body string, args any) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte("null")
	}
	return fmt.Sprintf("(() => {%s\nconst ARGS = %s;\n%s})()", jsHelpers, encoded, body)
}

// ScriptAsync is the promise-returning variant, for bodies that await.
func ScriptAsync(body string, args any) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte("null")
	}
	return fmt.Sprintf("(async () => {%s\nconst ARGS = %s;\n%s})()", jsHelpers, encoded, body)
}

// Click fires the full synthetic event storm at the first element
// matching the selector. It reports whether an element was found.
func (s *Session) Click(ctx context.Context, selector string) (bool, error) {
	var clicked bool
	err := s.Eval(ctx, Script(`
		const element = document.querySelector(ARGS.selector);
		return forceClick(element);
	`, map[string]string{"selector": selector}), &clicked)
	if err != nil {
		return false, fmt.Errorf("click %q: %w", selector, err)
	}
	return clicked, nil
}

// TypeInto places text into an input or contenteditable element and
// dispatches the input/change events the site listens for.
func (s *Session) TypeInto(ctx context.Context, selector, text string) (bool, error) {
	var typed bool
	err := s.Eval(ctx, Script(`
		const element = document.querySelector(ARGS.selector);
		if (!element) return false;
		simulateTyping(element, ARGS.text);
		return true;
	`, map[string]string{"selector": selector, "text": text}), &typed)
	if err != nil {
		return false, fmt.Errorf("type into %q: %w", selector, err)
	}
	return typed, nil
}

func (s *Session) ElementExists(ctx context.Context, selector string) (bool, error) {
	var exists bool
	err := s.Eval(ctx, Script(`
		return !!document.querySelector(ARGS.selector);
	`, map[string]string{"selector": selector}), &exists)
	if err != nil {
		return false, fmt.Errorf("probe %q: %w", selector, err)
	}
	return exists, nil
}

// WaitForElement polls until the selector matches something or the
// timeout expires.
func (s *Session) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	interval := 250 * time.Millisecond
	attempts := int(timeout/interval) + 1
	found, err := RetryPolicy{MaxAttempts: attempts, Interval: interval}.Do(ctx, func(ctx context.Context) (bool, error) {
		return s.ElementExists(ctx, selector)
	})
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	if !found {
		return fmt.Errorf("wait for %q: element did not appear within %s", selector, timeout)
	}
	return nil
}

// DismissPreferencePopup closes the occasional A/B preference dialog by
// clicking its ignore/skip control. It reports whether a popup was
// dismissed.
func (s *Session) DismissPreferencePopup(ctx context.Context) (bool, error) {
	var dismissed bool
	err := s.Eval(ctx, Script(`
		const dismissLabels = ['ignorar', 'ignore', 'pular', 'skip', 'dismiss', 'nao', 'no thanks'];
		const buttons = Array.from(document.querySelectorAll('button'));
		for (const btn of buttons) {
			const label = normalizeText(btn.getAttribute('aria-label') || btn.textContent || '');
			if (!dismissLabels.some(target => label === target || label.includes(target))) continue;
			const parent = btn.closest('div[role="dialog"], section, div');
			if (!parent) continue;
			const hasQuestion = parent.querySelector('h3') ||
				parent.textContent.includes('prefere') ||
				parent.textContent.includes('prefer');
			if (hasQuestion) {
				forceClick(btn);
				return true;
			}
		}
		return false;
	`, nil), &dismissed)
	if err != nil {
		return false, fmt.Errorf("dismiss preference popup: %w", err)
	}
	if dismissed {
		s.log.Debug().Msg("dismissed preference popup")
	}
	return dismissed, nil
}
