package browser

// Selectors and label patterns for the generation site. The site ships
// localized labels, so text matching goes through normalizeText (lower
// case, diacritics stripped) and tries every language variant.
const (
	SelectorEditor       = ".tiptap.ProseMirror"
	SelectorSubmitButton = `button[aria-label="Enviar"]`
	SelectorMenuItem     = `[role="menuitem"]`
	SelectorListItem     = `div[role="listitem"]`
	SelectorFileInput    = `input[type="file"]`
	SelectorModeTrigger  = "model-select-trigger" // element id, not a CSS selector
)

// VideoURLMarker is the substring that identifies a finished generated
// video element src.
const VideoURLMarker = "generated_video"

// jsHelpers is prepended to every evaluated snippet. It mirrors the
// interaction primitives the site responds to: synthetic pointer event
// storms for clicks and input/change dispatch for typing.
const jsHelpers = `
function normalizeText(text) {
	return (text || '')
		.normalize('NFD')
		.replace(/\p{Diacritic}/gu, '')
		.toLowerCase()
		.trim();
}

function isVisible(element) {
	if (!element) return false;
	const style = window.getComputedStyle(element);
	return style.display !== 'none' &&
		style.visibility !== 'hidden' &&
		style.opacity !== '0' &&
		element.offsetParent !== null;
}

function sleep(ms) {
	return new Promise(resolve => setTimeout(resolve, ms));
}

function forceClick(element) {
	if (!element) return false;

	element.style.pointerEvents = 'auto';
	element.style.visibility = 'visible';
	element.style.opacity = '1';

	if (element.scrollIntoView) {
		element.scrollIntoView({ behavior: 'auto', block: 'center', inline: 'center' });
	}

	const events = [
		'pointerover', 'pointerenter', 'mouseover', 'mouseenter',
		'pointermove', 'mousemove',
		'pointerdown', 'mousedown',
		'focus', 'focusin',
		'pointerup', 'mouseup',
		'click'
	];

	const rect = element.getBoundingClientRect();
	const x = rect.left + rect.width / 2;
	const y = rect.top + rect.height / 2;

	events.forEach(type => {
		element.dispatchEvent(new MouseEvent(type, {
			bubbles: true,
			cancelable: true,
			view: window,
			clientX: x,
			clientY: y,
			buttons: 1
		}));
	});

	try { element.click(); } catch (e) { }
	return true;
}

async function robustClick(element) {
	if (!element) return false;

	element.scrollIntoView({ behavior: 'instant', block: 'center' });
	await sleep(100);
	try { element.focus(); } catch (e) { }
	await sleep(100);

	const rect = element.getBoundingClientRect();
	const x = rect.left + rect.width / 2;
	const y = rect.top + rect.height / 2;
	['pointerdown', 'mousedown', 'mouseup', 'click', 'pointerup'].forEach(type => {
		element.dispatchEvent(new PointerEvent(type, {
			bubbles: true,
			cancelable: true,
			view: window,
			clientX: x,
			clientY: y,
			pointerId: 1,
			pointerType: 'mouse',
			isPrimary: true,
			buttons: type.includes('down') ? 1 : 0
		}));
	});
	try { element.click(); } catch (e) { }
	await sleep(200);
	return true;
}

function simulateTyping(element, text) {
	element.focus();
	if (element.isContentEditable) {
		const p = document.createElement('p');
		p.textContent = text;
		element.replaceChildren(p);
	} else {
		element.value = text;
	}
	element.dispatchEvent(new Event('input', { bubbles: true }));
	element.dispatchEvent(new Event('change', { bubbles: true }));
}

function findMoreOptionsButton(parent) {
	parent = parent || document;
	const targets = ['mais opcoes', 'more options', 'mas opciones'];
	const buttons = Array.from(parent.querySelectorAll('button[aria-label], button'));

	const found = buttons.find(btn => {
		const label = normalizeText(btn.getAttribute('aria-label') || btn.title || btn.textContent);
		return targets.some(target => label.includes(target));
	});
	if (found) return found;

	for (const btn of Array.from(parent.querySelectorAll('button'))) {
		const svg = btn.querySelector('svg.lucide-ellipsis');
		if (svg && svg.querySelectorAll('circle').length === 3) return btn;
	}
	return null;
}

async function openMenuAndGetItems(button, maxAttempts) {
	maxAttempts = maxAttempts || 4;
	for (let i = 0; i < maxAttempts; i++) {
		forceClick(button);
		for (let j = 0; j < 6; j++) {
			await sleep(200);
			const items = Array.from(document.querySelectorAll('[role="menuitem"]'));
			if (items.length > 0) return items;
		}
		await sleep(300);
	}
	return [];
}
`
