package capture

import (
	"context"

	"imagine-pilot/internal/browser"
)

// UpscaleResult reports how the HD workflow ended. Method "extension"
// means the HD video URL was harvested for a driver-side capture;
// "click" means the page's own download button had to be used.
type UpscaleResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Method  string `json:"method"`
}

const upscaleBody = `
	const videoElement = Array.from(document.querySelectorAll('video'))
		.find(v => v.src === ARGS.url) || document.querySelector('video[src*="generated_video"]');
	if (!videoElement) return { success: false, method: 'no-video' };

	let container = videoElement.closest('.relative.mx-auto');
	if (!container) {
		let parent = videoElement.parentElement;
		for (let i = 0; i < 8; i++) {
			if (parent && findMoreOptionsButton(parent)) {
				container = parent;
				break;
			}
			parent = parent ? parent.parentElement : null;
		}
	}

	const waitForUpscaleComplete = async (maxWaitTime) => {
		const startTime = Date.now();
		while ((Date.now() - startTime) < maxWaitTime) {
			const hdButton = Array.from(document.querySelectorAll('button')).find(btn => {
				const hdText = btn.querySelector('div.text-\\[10px\\]');
				return hdText && normalizeText(hdText.textContent) === 'hd';
			});

			if (hdButton) {
				await sleep(500);
				const hdVideo = document.querySelector('video#hd-video') ||
					Array.from(document.querySelectorAll('video')).find(v =>
						v.src && v.src.includes('generated_video') && v.style.visibility !== 'hidden');
				if (hdVideo && hdVideo.src) {
					return { success: true, url: hdVideo.src, method: 'extension' };
				}

				const downloadBtn = Array.from(document.querySelectorAll('button')).find(btn => {
					const label = normalizeText(btn.getAttribute('aria-label') || '');
					return label.includes('baixar') || label.includes('download');
				});
				if (downloadBtn) {
					forceClick(downloadBtn);
					return { success: true, url: '', method: 'click' };
				}
				return { success: false, method: 'no-download-button' };
			}

			await sleep(1000);
		}
		return { success: false, method: 'hd-timeout' };
	};

	const maxRetries = 30;
	for (let attempt = 0; attempt < maxRetries; attempt++) {
		const generatingText = container ? container.querySelector('span.text-white') : null;
		const isGenerating = generatingText &&
			(normalizeText(generatingText.textContent).includes('gerando') ||
			 normalizeText(generatingText.textContent).includes('generating'));
		if (isGenerating) {
			await sleep(1500);
			continue;
		}

		if (!videoElement.src || !videoElement.src.includes('generated_video')) {
			await sleep(1000);
			continue;
		}
		if (videoElement.readyState < 2) {
			await sleep(1000);
			continue;
		}

		if (container) {
			container.dispatchEvent(new MouseEvent('mouseover', { bubbles: true }));
			container.dispatchEvent(new MouseEvent('mouseenter', { bubbles: true }));
		}

		let moreOptionsBtn = container ? findMoreOptionsButton(container) : null;
		if (!moreOptionsBtn) moreOptionsBtn = findMoreOptionsButton(document);
		if (!moreOptionsBtn) {
			await sleep(1000);
			continue;
		}

		const menuItems = await openMenuAndGetItems(moreOptionsBtn, 5);
		if (!menuItems.length) {
			await sleep(1000);
			continue;
		}

		const upscaleItem = menuItems.find(item => {
			const text = normalizeText(item.textContent);
			return text.includes('upscale') || text.includes('ampliar');
		});
		if (upscaleItem) {
			forceClick(upscaleItem);
			await sleep(500);
			return await waitForUpscaleComplete(60000);
		}

		forceClick(moreOptionsBtn); // close the menu before retrying
		await sleep(1000);
	}
	return { success: false, method: 'retries-exhausted' };
`

// upscaleVideo drives the page's HD workflow for the given video URL:
// wait for the render to finish, open the per-item options menu, click
// the upscale entry, and wait for the HD variant.
func (d *Dispatcher) upscaleVideo(ctx context.Context, url string) UpscaleResult {
	var result UpscaleResult
	err := d.page.EvalAsync(ctx, browser.ScriptAsync(upscaleBody, map[string]string{"url": url}), &result)
	if err != nil {
		d.log.Warn().Err(err).Msg("upscale workflow failed")
		return UpscaleResult{Success: false, Method: "error"}
	}
	return result
}
