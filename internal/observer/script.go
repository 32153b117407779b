package observer

// pageScript installs a MutationObserver on the document body and
// reports through the CDP binding. Two event kinds come back: "video"
// with the src of a newly appeared generated video, and a throttled
// "mutation" signal that tells the driver the results area changed
// (the image flows rescan on it). The guard keeps reinjection after
// reloads idempotent.
const pageScript = `(() => {
	if (window.__pilotObserverInstalled) return;
	window.__pilotObserverInstalled = true;

	const emit = (payload) => {
		try {
			if (typeof window.%s === 'function') {
				window.%s(JSON.stringify(payload));
			}
		} catch (err) { }
	};

	const seen = new Set();
	const reportVideo = (video) => {
		const src = video && video.src;
		if (!src || !src.includes('%s')) return;
		if (seen.has(src)) return;
		seen.add(src);
		emit({ kind: 'video', url: src });
	};

	const scanNode = (node) => {
		if (!(node instanceof Element)) return;
		const videos = node.matches('video') ? [node] : Array.from(node.querySelectorAll('video'));
		videos.forEach(reportVideo);
	};

	let mutationPending = false;
	const signalMutation = () => {
		if (mutationPending) return;
		mutationPending = true;
		setTimeout(() => {
			mutationPending = false;
			emit({ kind: 'mutation' });
		}, 250);
	};

	const start = () => {
		const observer = new MutationObserver((mutations) => {
			for (const mutation of mutations) {
				if (mutation.type === 'childList') {
					mutation.addedNodes.forEach(scanNode);
				} else if (mutation.type === 'attributes' && mutation.target instanceof Element) {
					if (mutation.target.matches('video')) reportVideo(mutation.target);
				}
			}
			signalMutation();
		});
		observer.observe(document.body, {
			childList: true,
			subtree: true,
			attributes: true,
			attributeFilter: ['src']
		});

		// catch videos that rendered before the observer attached
		document.querySelectorAll('video').forEach(reportVideo);
	};

	if (document.body) {
		start();
	} else {
		document.addEventListener('DOMContentLoaded', start, { once: true });
	}
})();`
