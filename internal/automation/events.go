package automation

import (
	"context"

	"imagine-pilot/internal/model"
	"imagine-pilot/internal/observer"
)

// HandleMediaEvent reacts to one observer report. Video URLs are claimed
// and dispatched to the capturer; gallery mutations drive image capture in
// image mode. Safe to call from the observer pump goroutine.
func (e *Engine) HandleMediaEvent(ctx context.Context, ev observer.Event) {
	e.mu.Lock()
	run := e.run
	capt := e.capt
	e.mu.Unlock()
	if run == nil || capt == nil || !run.Active() {
		return
	}

	// The preference interstitial can land on top of anything; clear it
	// before looking at the page.
	if dismissed, err := e.driver.DismissPreferencePopup(ctx); err == nil && dismissed {
		e.log.Debug().Msg("dismissed preference popup")
	}

	switch ev.Kind {
	case observer.KindVideo:
		if !run.Settings().AutoDownload {
			return
		}
		ordinal, fresh := run.ClaimMediaURL(ev.URL)
		if !fresh {
			return
		}
		index := ordinal
		if run.Mode() == model.ModeImageToVideo {
			index = run.CurrentImageIndex()
		}
		e.log.Debug().Int("index", index).Str("url", truncate(ev.URL, 80)).
			Msg("video detected")
		go capt.ProcessVideo(ctx, index, ev.URL)
	case observer.KindMutation:
		if run.Mode() != model.ModeImage || !run.Settings().AutoDownload {
			return
		}
		index := run.LastSubmittedIndex()
		if index < 0 {
			return
		}
		item, ok := run.Item(index)
		if !ok {
			return
		}
		if run.Settings().DownloadAllImages {
			go capt.SweepImages(ctx, index, item.Label())
			return
		}
		if !run.ImageDownloadInitiated() {
			go capt.InspectNewestImage(ctx, index)
		}
	}
}

// Pump drains the observer stream into HandleMediaEvent until the channel
// closes or the context ends.
func (e *Engine) Pump(ctx context.Context, events <-chan observer.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.HandleMediaEvent(ctx, ev)
		}
	}
}
