package automation

import (
	"context"
	"fmt"
	"time"

	"imagine-pilot/internal/model"
)

const (
	submitSettle      = 500 * time.Millisecond
	redirectDefer     = 3 * time.Second
	composerSettle    = 2 * time.Second
	videoPollInterval = 1500 * time.Millisecond
	videoWaitCeiling  = 50 * time.Second
	videoWaitUpscale  = 80 * time.Second
	videoSafeguard    = 30 * time.Second
	upscaleSafeguard  = 65 * time.Second
	finalizePoll      = 500 * time.Millisecond
	finalizeAttempts  = 120
)

// advanceText runs the prompt loop for the image and video modes. One
// iteration submits one prompt; iterations keep going until the cursor
// runs off the end, the run is stopped, or a submit step fails outright.
func (e *Engine) advanceText(ctx context.Context, run *model.Run, capt Capturer) error {
	settings := run.Settings()
	for run.Active() {
		if run.Cursor() >= run.Len() {
			return e.finalizeText(ctx, run, capt)
		}

		proceed, err := e.ensureComposer(ctx, run, composerSettle)
		if err != nil {
			return err
		}
		if !proceed {
			continue
		}
		run.SetResumedAfterReload(false)
		run.SetImageDownloadInitiated(false)

		index := run.Cursor()
		item, ok := run.Item(index)
		if !ok {
			return fmt.Errorf("work item %d out of range", index)
		}

		// Video mode reasserts the generator before every prompt since
		// the site tends to reset it; image mode asserts once.
		if run.Mode() == model.ModeVideo || !run.ModeApplied() {
			if _, err := e.driver.SelectGenerationMode(ctx, run.Mode()); err != nil {
				e.log.Warn().Err(err).Msg("select generation mode")
			}
			run.SetModeApplied(true)
		}

		ratio := e.pickAspectRatio(ctx, settings)

		if err := run.TransitionTo(model.PhaseSubmitting); err != nil {
			return err
		}
		e.report(ctx, StatusUpdate{
			Message:  fmt.Sprintf("Submitting: %q", truncate(item.Label(), 30)),
			Type:     "running",
			Progress: fmt.Sprintf("Prompt %d of %d", index+1, run.Len()),
			Index:    index + 1,
			Total:    run.Len(),
		})

		if !e.sleep(ctx, submitSettle) {
			return ctx.Err()
		}
		run.SetLastSubmittedIndex(index)
		if err := e.driver.SubmitPrompt(ctx, item.Prompt, ratio); err != nil {
			return fmt.Errorf("submit prompt %d: %w", index+1, err)
		}
		if err := run.TransitionTo(model.PhaseWaitingGeneration); err != nil {
			return err
		}

		if run.Mode() == model.ModeVideo {
			e.waitForVideo(ctx, run, index)
		}
		if run.Mode() == model.ModeImage && settings.DownloadAllImages {
			wait := time.Duration(max(30, 2*settings.DelaySeconds)) * time.Second
			e.log.Debug().Dur("wait", wait).Msg("bulk image mode, waiting for the full set")
			if !e.sleep(ctx, wait) {
				return ctx.Err()
			}
		}

		run.AdvanceCursor()
		e.persist(run)
		if err := run.TransitionTo(model.PhaseRunning); err != nil {
			return err
		}

		if run.Cursor() >= run.Len() {
			continue
		}
		if settings.BreakEnabled && run.PromptsSinceBreak() >= settings.BreakPrompts {
			if err := e.takeBreak(ctx, run, settings); err != nil {
				return err
			}
			continue
		}
		delay := time.Duration(settings.DelaySeconds) * time.Second
		if run.Mode() == model.ModeVideo {
			// Generation was already awaited above, so only a short gap.
			delay = time.Duration(max(3, settings.DelaySeconds/2)) * time.Second
		}
		if !e.sleep(ctx, delay) {
			return ctx.Err()
		}
	}
	return nil
}

// ensureComposer redirects to the composer when the run needs a clean page
// (image mode always, any mode stranded on a result page). It returns
// false when the loop should re-evaluate from the top instead of
// submitting, that is after a deferral or a navigation.
func (e *Engine) ensureComposer(ctx context.Context, run *model.Run, settle time.Duration) (bool, error) {
	pc, err := e.driver.PageContext(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("read page context")
		return true, nil
	}
	needsComposer := run.Mode() == model.ModeImage || pc.OnResultPage
	if !needsComposer || run.ResumedAfterReload() {
		return true, nil
	}
	// A capture in flight (upscale, download) would be killed by the
	// navigation. Check again shortly instead.
	if run.ProcessingCount() > 0 {
		e.log.Debug().Int("processing", run.ProcessingCount()).
			Msg("deferring redirect until captures settle")
		if !e.sleep(ctx, redirectDefer) {
			return false, ctx.Err()
		}
		return false, nil
	}
	if err := run.TransitionTo(model.PhaseRedirecting); err != nil {
		return false, err
	}
	e.persist(run)
	if err := e.driver.NavigateComposer(ctx); err != nil {
		return false, fmt.Errorf("navigate to composer: %w", err)
	}
	run.SetResumedAfterReload(true)
	if err := run.TransitionTo(model.PhaseRunning); err != nil {
		return false, err
	}
	if !e.sleep(ctx, settle) {
		return false, ctx.Err()
	}
	return false, nil
}

// waitForVideo blocks until the submitted video is downloaded or safeguard
// timers say to move on. It never fails the run.
func (e *Engine) waitForVideo(ctx context.Context, run *model.Run, index int) {
	settings := run.Settings()
	ceiling := videoWaitCeiling
	safeguard := videoSafeguard
	if settings.UpscaleVideos {
		ceiling = videoWaitUpscale
		safeguard = upscaleSafeguard
	}
	var elapsed time.Duration
	for elapsed < ceiling {
		if !e.sleep(ctx, videoPollInterval) {
			return
		}
		elapsed += videoPollInterval
		if run.Downloaded(index) {
			e.log.Debug().Int("index", index).Dur("elapsed", elapsed).Msg("video captured")
			return
		}
		if elapsed >= safeguard {
			e.log.Debug().Int("index", index).Dur("elapsed", elapsed).
				Msg("video wait safeguard reached, moving on")
			return
		}
	}
	e.log.Debug().Int("index", index).Msg("video wait ceiling reached, moving on")
}

func (e *Engine) takeBreak(ctx context.Context, run *model.Run, settings model.Settings) error {
	minutes := settings.BreakMinutesMin
	if spread := settings.BreakMinutesMax - settings.BreakMinutesMin; spread > 0 {
		minutes += e.randIntn(spread + 1)
	}
	dur := time.Duration(minutes) * time.Minute
	run.BeginBreak(e.now().Add(dur))
	if err := run.TransitionTo(model.PhaseOnBreak); err != nil {
		return err
	}
	e.persist(run)
	e.report(ctx, StatusUpdate{
		Message: fmt.Sprintf("On a scheduled break for %d min", minutes),
		Type:    "break",
		Index:   run.Cursor(),
		Total:   run.Len(),
	})
	e.log.Info().Int("minutes", minutes).Msg("starting scheduled break")
	if !e.sleep(ctx, dur) {
		return ctx.Err()
	}
	run.EndBreak()
	if err := run.TransitionTo(model.PhaseRunning); err != nil {
		return err
	}
	e.persist(run)
	e.log.Info().Msg("break finished, resuming")
	return nil
}

// finalizeText waits for the last item's capture before terminalizing.
func (e *Engine) finalizeText(ctx context.Context, run *model.Run, capt Capturer) error {
	last := run.Len() - 1
	settings := run.Settings()
	needsWait := settings.AutoDownload && !run.Downloaded(last) && !run.ImageDownloadInitiated()
	if needsWait {
		e.report(ctx, StatusUpdate{
			Message: "Waiting for the last capture",
			Type:    "running",
			Index:   run.Len(),
			Total:   run.Len(),
		})
		for attempt := 0; attempt < finalizeAttempts; attempt++ {
			if run.Downloaded(last) || run.ImageDownloadInitiated() {
				break
			}
			if !e.sleep(ctx, finalizePoll) {
				return ctx.Err()
			}
		}
	}
	return e.complete(ctx, run, capt)
}

func (e *Engine) pickAspectRatio(ctx context.Context, settings model.Settings) string {
	if settings.RandomizeRatio && len(settings.AspectRatios) > 0 {
		ratio := settings.AspectRatios[e.randIndex(len(settings.AspectRatios))]
		e.report(ctx, StatusUpdate{Message: "Drew aspect ratio " + ratio, Type: "running"})
		return ratio
	}
	if settings.FixedRatio != "" {
		return settings.FixedRatio
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

