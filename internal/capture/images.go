package capture

import (
	"context"
	"fmt"
	"time"

	"imagine-pilot/internal/browser"
	"imagine-pilot/internal/observer"
)

const (
	imagePollInterval = 500 * time.Millisecond
	imagePollAttempts = 60
)

const collectGalleryBody = `
	const items = Array.from(document.querySelectorAll('div[role="listitem"]:not([data-pilot-swept="true"])'));
	return items.map((item, i) => {
		if (!item.dataset.pilotRef) {
			item.dataset.pilotRef = 'ref-' + Date.now() + '-' + i;
		}
		const image = item.querySelector('img[src^="data:image/"]');
		return { ref: item.dataset.pilotRef, src: image ? image.src : '' };
	});
`

type galleryItem struct {
	Ref string `json:"ref"`
	Src string `json:"src"`
}

// SweepImages captures every finished gallery image for the prompt, up
// to the per-prompt cap. Items still showing placeholders are left
// unmarked so a later sweep picks them up. The method is single-flight:
// mutation signals arrive in bursts and overlapping sweeps would race
// on the cap.
func (d *Dispatcher) SweepImages(ctx context.Context, promptIndex int, prompt string) {
	d.sweepMu.Lock()
	if d.sweepActive {
		d.sweepMu.Unlock()
		return
	}
	d.sweepActive = true
	d.sweepMu.Unlock()
	defer func() {
		d.sweepMu.Lock()
		d.sweepActive = false
		d.sweepMu.Unlock()
	}()

	if !d.run.Active() {
		return
	}

	maxPerPrompt := d.run.Settings().DownloadMultiCount
	already := d.bulkCount(promptIndex)
	if already >= maxPerPrompt {
		return
	}

	var items []galleryItem
	if err := d.page.Eval(ctx, browser.Script(collectGalleryBody, nil), &items); err != nil {
		d.log.Warn().Err(err).Msg("gallery scan failed")
		return
	}

	downloaded := already
	for _, item := range items {
		if downloaded >= maxPerPrompt {
			break
		}
		class := observer.ClassifyDataURL(item.Src)
		if !class.Final() {
			continue
		}

		if err := d.markSwept(ctx, item.Ref); err != nil {
			d.log.Warn().Err(err).Str("ref", item.Ref).Msg("mark swept failed")
			continue
		}
		downloaded++
		d.setBulkCount(promptIndex, downloaded)
		d.CaptureAndDownload(ctx, promptIndex, item.Src, "image", fmt.Sprintf("_%d", downloaded))
		d.run.SetImageDownloadInitiated(true)

		if !d.sleep(ctx, 300*time.Millisecond) {
			return
		}
	}
}

func (d *Dispatcher) markSwept(ctx context.Context, ref string) error {
	var ok bool
	return d.page.Eval(ctx, browser.Script(`
		const item = document.querySelector('[data-pilot-ref="' + ARGS.ref + '"]');
		if (!item) return false;
		item.dataset.pilotSwept = 'true';
		return true;
	`, map[string]string{"ref": ref}), &ok)
}

const pickNewestItemBody = `
	const items = Array.from(document.querySelectorAll('div[role="listitem"]:not([data-pilot-processed="true"])'));
	if (items.length === 0) return { found: false };

	// newest item renders closest to the top of the virtualized list
	items.sort((a, b) => {
		const topA = parseFloat(a.style.top) || Infinity;
		const topB = parseFloat(b.style.top) || Infinity;
		return topA - topB;
	});
	const item = items[0];
	if (!item.dataset.pilotRef) {
		item.dataset.pilotRef = 'ref-' + Date.now() + '-top';
	}
	return { found: true, ref: item.dataset.pilotRef };
`

const inspectItemBody = `
	const item = document.querySelector('[data-pilot-ref="' + ARGS.ref + '"]');
	if (!item) return { found: false };
	const playIcon = item.querySelector('svg.lucide-play');
	const image = item.querySelector('img[src^="data:image/"]');
	return {
		found: true,
		complete: !!playIcon,
		src: image ? image.src : ''
	};
`

type itemProbe struct {
	Found    bool   `json:"found"`
	Complete bool   `json:"complete"`
	Ref      string `json:"ref"`
	Src      string `json:"src"`
}

// InspectNewestImage runs the single-image capture: locate the newest
// gallery item, wait out the generation settle delay, then poll until
// the placeholder is replaced by a final render. On poll exhaustion it
// saves whatever the item currently shows rather than losing the
// prompt entirely. Like SweepImages it is single-flight: mutation
// signals fire in bursts and overlapping inspections would each
// capture the same container.
func (d *Dispatcher) InspectNewestImage(ctx context.Context, promptIndex int) {
	d.sweepMu.Lock()
	if d.inspectActive {
		d.sweepMu.Unlock()
		return
	}
	d.inspectActive = true
	d.sweepMu.Unlock()
	defer func() {
		d.sweepMu.Lock()
		d.inspectActive = false
		d.sweepMu.Unlock()
	}()

	if !d.run.Active() || d.run.ImageDownloadInitiated() {
		return
	}

	var picked itemProbe
	if err := d.page.Eval(ctx, browser.Script(pickNewestItemBody, nil), &picked); err != nil {
		d.log.Warn().Err(err).Msg("newest item scan failed")
		return
	}
	if !picked.Found {
		return
	}

	settle := time.Duration(max(5, d.run.Settings().DelaySeconds-8)) * time.Second
	d.log.Debug().Dur("settle", settle).Int("index", promptIndex).Msg("waiting before image inspection")
	if !d.sleep(ctx, settle) {
		return
	}

	var lastSrc string
	for attempt := 0; attempt < imagePollAttempts; attempt++ {
		if !d.run.Active() || d.run.ImageDownloadInitiated() {
			return
		}

		var probe itemProbe
		if err := d.page.Eval(ctx, browser.Script(inspectItemBody, map[string]string{"ref": picked.Ref}), &probe); err != nil {
			d.log.Warn().Err(err).Msg("image probe failed")
			return
		}
		if probe.Found {
			lastSrc = probe.Src
			if probe.Complete && observer.ClassifyDataURL(probe.Src).Final() {
				d.finishSingleImage(ctx, promptIndex, picked.Ref, probe.Src)
				return
			}
		}

		if !d.sleep(ctx, imagePollInterval) {
			return
		}
	}

	if lastSrc != "" {
		d.log.Warn().Int("index", promptIndex).Msg("image never finalized, capturing current state")
		d.finishSingleImage(ctx, promptIndex, picked.Ref, lastSrc)
	}
}

func (d *Dispatcher) finishSingleImage(ctx context.Context, promptIndex int, ref, src string) {
	d.run.SetImageDownloadInitiated(true)
	if err := d.page.Eval(ctx, browser.Script(`
		const item = document.querySelector('[data-pilot-ref="' + ARGS.ref + '"]');
		if (!item) return false;
		item.dataset.pilotProcessed = 'true';
		return true;
	`, map[string]string{"ref": ref}), new(bool)); err != nil {
		d.log.Warn().Err(err).Msg("mark processed failed")
	}
	d.CaptureAndDownload(ctx, promptIndex, src, "image", "")
}

func (d *Dispatcher) bulkCount(promptIndex int) int {
	d.sweepMu.Lock()
	defer d.sweepMu.Unlock()
	if d.bulkCounts == nil {
		return 0
	}
	return d.bulkCounts[promptIndex]
}

func (d *Dispatcher) setBulkCount(promptIndex, count int) {
	d.sweepMu.Lock()
	defer d.sweepMu.Unlock()
	if d.bulkCounts == nil {
		d.bulkCounts = make(map[int]int)
	}
	d.bulkCounts[promptIndex] = count
}
