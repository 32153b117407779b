package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagine-pilot/internal/model"
)

var (
	ErrEditorNotFound = errors.New("prompt editor not found")
	ErrSubmitDisabled = errors.New("submit button is disabled")
	ErrSubmitMissing  = errors.New("submit button not found")
)

const selectModeBody = `
	const trigger = document.getElementById('model-select-trigger');
	if (!trigger) return false;

	const targetIsVideo = ARGS.mode === 'video';

	const checkCurrentMode = () => {
		const triggerText = normalizeText(trigger.textContent || '');
		const isVideo = /v[i]deo|video/i.test(triggerText);
		const isImage = /imag[em]|image/i.test(triggerText);
		return targetIsVideo ? isVideo : isImage;
	};

	if (checkCurrentMode()) return true;

	for (let attempt = 0; attempt < 6; attempt++) {
		await robustClick(trigger);
		await sleep(700);

		const menuItems = Array.from(document.querySelectorAll('[role="menuitem"]'));
		if (menuItems.length < 2) {
			await sleep(400);
			continue;
		}

		let targetOption = null;
		for (const item of menuItems) {
			const itemText = normalizeText(item.textContent || '');
			if (/duracao|duration|proporcao|proportion|aspect/i.test(itemText)) continue;

			const videoPattern = /^video|gerar.*v[i]deo|generate.*video/i;
			const imagePattern = /^imag[em]|gerar.*imag[em]|generate.*image/i;
			if (targetIsVideo && videoPattern.test(itemText)) {
				targetOption = item;
				break;
			}
			if (!targetIsVideo && imagePattern.test(itemText)) {
				targetOption = item;
				break;
			}
		}

		// fallback by menu position: image first, video second
		if (!targetOption && menuItems.length >= 2) {
			targetOption = menuItems[targetIsVideo ? 1 : 0];
		}

		if (targetOption) {
			for (let clickAttempt = 0; clickAttempt < 3; clickAttempt++) {
				await robustClick(targetOption);
				await sleep(900);
				if (checkCurrentMode()) return true;
			}
		}

		await sleep(500);
	}
	return false;
`

// SelectGenerationMode switches the composer between image and video
// output. Image-to-video runs use the video mode. It reports whether
// the mode ended up applied.
func (s *Session) SelectGenerationMode(ctx context.Context, mode model.Mode) (bool, error) {
	target := "image"
	if mode == model.ModeVideo || mode == model.ModeImageToVideo {
		target = "video"
	}
	var applied bool
	err := s.EvalAsync(ctx, ScriptAsync(selectModeBody, map[string]string{"mode": target}), &applied)
	if err != nil {
		return false, fmt.Errorf("select generation mode %q: %w", target, err)
	}
	s.log.Debug().Str("mode", target).Bool("applied", applied).Msg("generation mode selection")
	return applied, nil
}

const selectAspectRatioBody = `
	const normalizedTarget = (ARGS.ratio || '').replace(/\s+/g, '').toLowerCase();
	const findOption = () => {
		const buttons = Array.from(document.querySelectorAll('button'));
		return buttons.find(btn => {
			const label = (btn.getAttribute('aria-label') || btn.textContent || '').replace(/\s+/g, '').toLowerCase();
			return label.includes(normalizedTarget);
		});
	};
	const findTrigger = () => {
		const buttons = Array.from(document.querySelectorAll('button'));
		return buttons.find(btn => {
			const label = normalizeText(btn.getAttribute('aria-label') || btn.textContent || '');
			return btn.id === 'model-select-trigger' || label.includes('selecao de modelo') || label.includes('modelo') || label.includes('model');
		});
	};

	let option = findOption();
	if (!option || !isVisible(option)) {
		const trigger = findTrigger();
		if (trigger) {
			for (let i = 0; i < 3 && (!option || !isVisible(option)); i++) {
				forceClick(trigger);
				await sleep(400);
				option = findOption();
			}
		}
	}

	if (option) {
		forceClick(option);
		await sleep(200);
		return true;
	}
	return false;
`

// SelectAspectRatio picks the requested ratio from the model options
// menu. A miss is reported, not treated as an error: the site falls
// back to whatever ratio is already active.
func (s *Session) SelectAspectRatio(ctx context.Context, ratio string) (bool, error) {
	var applied bool
	err := s.EvalAsync(ctx, ScriptAsync(selectAspectRatioBody, map[string]string{"ratio": ratio}), &applied)
	if err != nil {
		return false, fmt.Errorf("select aspect ratio %q: %w", ratio, err)
	}
	if !applied {
		s.log.Warn().Str("ratio", ratio).Msg("aspect ratio option not found")
	}
	return applied, nil
}

const selectDurationBody = `
	const durationMap = {
		'5s': ['5', '5s', '5 seconds'],
		'6s': ['6', '6s', '6 seconds'],
		'10s': ['10', '10s', '10 seconds']
	};
	const possibleValues = durationMap[ARGS.duration] || [ARGS.duration];

	const buttons = Array.from(document.querySelectorAll('button'));
	let durationTrigger = null;
	for (const btn of buttons) {
		const text = normalizeText(btn.textContent);
		if (/\d+s|duration|duracao/i.test(text)) {
			durationTrigger = btn;
			break;
		}
	}
	if (!durationTrigger) return false;

	forceClick(durationTrigger);
	await sleep(800);

	const menuItems = Array.from(document.querySelectorAll('[role="menuitem"]'));
	for (const item of menuItems) {
		const itemText = normalizeText(item.textContent);
		for (const val of possibleValues) {
			if (itemText.includes(val.toLowerCase())) {
				forceClick(item);
				await sleep(500);
				return true;
			}
		}
	}
	return false;
`

// SelectVideoDuration opens the duration menu and picks the target
// length ("5s", "6s", "10s").
func (s *Session) SelectVideoDuration(ctx context.Context, duration string) (bool, error) {
	var applied bool
	err := s.EvalAsync(ctx, ScriptAsync(selectDurationBody, map[string]string{"duration": duration}), &applied)
	if err != nil {
		return false, fmt.Errorf("select video duration %q: %w", duration, err)
	}
	if !applied {
		s.log.Warn().Str("duration", duration).Msg("video duration option not found")
	}
	return applied, nil
}

// SubmitPrompt types the prompt, optionally applies an aspect ratio,
// and clicks the enabled submit button. A missing editor or a submit
// button that stays disabled is a fatal submission failure.
func (s *Session) SubmitPrompt(ctx context.Context, prompt, aspectRatio string) error {
	if err := s.WaitForElement(ctx, SelectorEditor, 10*time.Second); err != nil {
		return fmt.Errorf("%w: %v", ErrEditorNotFound, err)
	}
	typed, err := s.TypeInto(ctx, SelectorEditor, prompt)
	if err != nil {
		return err
	}
	if !typed {
		return ErrEditorNotFound
	}

	if aspectRatio != "" {
		if _, err := s.SelectAspectRatio(ctx, aspectRatio); err != nil {
			return err
		}
	}

	var status string
	err = s.EvalAsync(ctx, ScriptAsync(`
		await sleep(300);
		const submitButton = document.querySelector(ARGS.selector);
		if (!submitButton) return 'missing';
		if (submitButton.disabled) return 'disabled';
		forceClick(submitButton);
		return 'clicked';
	`, map[string]string{"selector": SelectorSubmitButton}), &status)
	if err != nil {
		return fmt.Errorf("submit prompt: %w", err)
	}
	switch status {
	case "clicked":
		return nil
	case "disabled":
		return ErrSubmitDisabled
	default:
		return ErrSubmitMissing
	}
}

const submitComposerBody = `
	const selectors = [
		'button[aria-label="Enviar"]',
		'button[aria-label="Submit"]',
		'button[type="submit"]',
		'form button:last-of-type'
	];
	for (const selector of selectors) {
		const submitBtn = document.querySelector(selector);
		if (submitBtn && !submitBtn.disabled && isVisible(submitBtn)) {
			forceClick(submitBtn);
			return true;
		}
	}

	// last resort: Enter keydown on the editor
	const editor = document.querySelector(ARGS.editor);
	if (editor) {
		editor.focus();
		editor.dispatchEvent(new KeyboardEvent('keydown', {
			key: 'Enter',
			code: 'Enter',
			keyCode: 13,
			which: 13,
			bubbles: true,
			cancelable: true
		}));
		return true;
	}
	return false;
`

// SubmitComposer clicks whatever submit control is available, falling
// back to an Enter keypress. Used by the image-to-video flow where the
// composer holds an uploaded image instead of typed text.
func (s *Session) SubmitComposer(ctx context.Context) error {
	var submitted bool
	err := s.EvalAsync(ctx, ScriptAsync(submitComposerBody, map[string]string{"editor": SelectorEditor}), &submitted)
	if err != nil {
		return fmt.Errorf("submit composer: %w", err)
	}
	if !submitted {
		return ErrSubmitMissing
	}
	return nil
}

// WaitForEditor waits for the composer editor with the retry cadence
// the upload flow expects.
func (s *Session) WaitForEditor(ctx context.Context) error {
	found, err := RetryPolicy{MaxAttempts: 10, Interval: 800 * time.Millisecond}.Do(ctx, func(ctx context.Context) (bool, error) {
		return s.ElementExists(ctx, SelectorEditor)
	})
	if err != nil {
		return fmt.Errorf("wait for editor: %w", err)
	}
	if !found {
		return ErrEditorNotFound
	}
	return nil
}

const uploadImageBody = `
	const findFileInput = async () => {
		let fileInput = document.querySelector('input[type="file"]');
		if (fileInput) return fileInput;

		const queryBar = document.querySelector('.query-bar') || document.querySelector('div[class*="query"]');
		if (queryBar) {
			fileInput = queryBar.querySelector('input[type="file"]');
			if (fileInput) return fileInput;
		}

		// open the attach menu to force the input into the DOM
		const attachBtn = document.querySelector('button[aria-label="Anexar"]') ||
			document.querySelector('button[aria-label="Attach"]');
		if (attachBtn) {
			forceClick(attachBtn);
			await sleep(600);
			const menuItems = document.querySelectorAll('[role="menuitem"]');
			if (menuItems.length > 0) forceClick(menuItems[0]);
			await sleep(600);
			fileInput = document.querySelector('input[type="file"]');
		}
		return fileInput;
	};

	const fileInput = await findFileInput();
	if (!fileInput) return { ok: false, reason: 'file input not found' };

	try {
		const resp = await fetch(ARGS.dataURL);
		const blob = await resp.blob();
		const file = new File([blob], ARGS.name, { type: blob.type || 'image/png' });
		const transfer = new DataTransfer();
		transfer.items.add(file);
		fileInput.files = transfer.files;
		fileInput.dispatchEvent(new Event('change', { bubbles: true }));
	} catch (err) {
		return { ok: false, reason: String(err) };
	}

	// confirm the preview landed
	for (let i = 0; i < 10; i++) {
		await sleep(500);
		const hasImagePreview = document.querySelector('img[src^="blob:"]') ||
			document.querySelector('[data-testid="drop-ui"]') ||
			document.querySelector('.query-bar img');
		if (hasImagePreview) return { ok: true };
	}
	return { ok: true, reason: 'no preview detected' };
`

type uploadResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// UploadImage stages a source image in the composer through the page's
// file input, synthesizing the file from a data URL.
func (s *Session) UploadImage(ctx context.Context, dataURL, name string) error {
	var res uploadResult
	err := s.EvalAsync(ctx, ScriptAsync(uploadImageBody, map[string]string{
		"dataURL": dataURL,
		"name":    name,
	}), &res)
	if err != nil {
		return fmt.Errorf("upload image %q: %w", name, err)
	}
	if !res.OK {
		return fmt.Errorf("upload image %q: %s", name, res.Reason)
	}
	if res.Reason != "" {
		s.log.Warn().Str("image", name).Str("note", res.Reason).Msg("upload finished without preview confirmation")
	}
	return nil
}
