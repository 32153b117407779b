package automation

import (
	"context"
	"fmt"
	"time"

	"imagine-pilot/internal/model"
)

const (
	img2vidComposerSettle = 3 * time.Second
	img2vidUploadSettle   = 5 * time.Second
	img2vidStepSettle     = time.Second
	img2vidEditorSettle   = 1500 * time.Millisecond
	emergencyReloadDelay  = 5 * time.Second
)

// advanceImageToVideo runs the upload loop: one queued image per
// iteration, each followed by a composer reload since the site leaves the
// tab on the result page. Step failures skip the image and reload instead
// of killing the run.
func (e *Engine) advanceImageToVideo(ctx context.Context, run *model.Run, capt Capturer) error {
	settings := run.Settings()
	for run.Active() {
		index := run.CurrentImageIndex()
		if index >= run.Len() {
			return e.complete(ctx, run, capt)
		}
		// Keep the text-mode cursor in step so resume validation and
		// progress reporting agree on how far we got.
		if run.Cursor() < index {
			run.AdvanceCursor()
			continue
		}

		proceed, err := e.ensureComposer(ctx, run, img2vidComposerSettle)
		if err != nil {
			return err
		}
		if !proceed {
			continue
		}
		run.SetResumedAfterReload(false)

		item, ok := run.Item(index)
		if !ok {
			return fmt.Errorf("queued image %d out of range", index)
		}
		img, ok := e.queuedImage(item.ImageID)
		if !ok {
			e.log.Warn().Str("image_id", item.ImageID).Msg("queued image missing, skipping")
			e.skipImage(ctx, run, index)
			continue
		}

		e.report(ctx, StatusUpdate{
			Message:  fmt.Sprintf("Animating: %s", truncate(item.Label(), 30)),
			Type:     "running",
			Progress: fmt.Sprintf("Image %d of %d", index+1, run.Len()),
			Index:    index + 1,
			Total:    run.Len(),
		})
		if err := run.TransitionTo(model.PhaseSubmitting); err != nil {
			return err
		}

		if err := e.submitImage(ctx, run, img.Data, img.Name); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Warn().Err(err).Int("index", index).Msg("image step failed, emergency reload")
			e.report(ctx, StatusUpdate{
				Message: fmt.Sprintf("Image %d failed: %v", index+1, err),
				Type:    "error",
				Index:   index + 1,
				Total:   run.Len(),
			})
			e.skipImage(ctx, run, index)
			continue
		}

		if err := run.TransitionTo(model.PhaseWaitingGeneration); err != nil {
			return err
		}
		e.waitForVideo(ctx, run, index)

		run.SetCurrentImageIndex(index + 1)
		e.persist(run)
		if err := run.TransitionTo(model.PhaseRunning); err != nil {
			return err
		}
		if run.CurrentImageIndex() >= run.Len() {
			continue
		}

		reload := time.Duration(clampInt(settings.DelaySeconds, 3, 10)) * time.Second
		if !e.sleep(ctx, reload) {
			return ctx.Err()
		}
		if err := e.driver.NavigateComposer(ctx); err != nil {
			return fmt.Errorf("reload composer: %w", err)
		}
		run.SetResumedAfterReload(true)
		if !e.sleep(ctx, img2vidComposerSettle) {
			return ctx.Err()
		}
	}
	return nil
}

// submitImage performs the upload-and-generate sequence for one image.
func (e *Engine) submitImage(ctx context.Context, run *model.Run, dataURL, name string) error {
	if err := e.driver.WaitForEditor(ctx); err != nil {
		return fmt.Errorf("wait for composer editor: %w", err)
	}
	if !e.sleep(ctx, img2vidEditorSettle) {
		return ctx.Err()
	}
	if err := e.driver.UploadImage(ctx, dataURL, name); err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	if !e.sleep(ctx, img2vidUploadSettle) {
		return ctx.Err()
	}
	if _, err := e.driver.SelectGenerationMode(ctx, model.ModeVideo); err != nil {
		return fmt.Errorf("select video mode: %w", err)
	}
	if !e.sleep(ctx, img2vidStepSettle) {
		return ctx.Err()
	}
	if _, err := e.driver.SelectVideoDuration(ctx, run.Settings().VideoDuration); err != nil {
		e.log.Warn().Err(err).Msg("select video duration")
	}
	if !e.sleep(ctx, img2vidStepSettle) {
		return ctx.Err()
	}
	if err := e.driver.SubmitComposer(ctx); err != nil {
		return fmt.Errorf("submit composer: %w", err)
	}
	return nil
}

// skipImage advances past a failed image and reloads the composer after a
// short grace period.
func (e *Engine) skipImage(ctx context.Context, run *model.Run, index int) {
	run.SetCurrentImageIndex(index + 1)
	e.persist(run)
	if run.Phase() == model.PhaseSubmitting {
		if err := run.TransitionTo(model.PhaseRunning); err != nil {
			e.log.Warn().Err(err).Msg("return to running after skip")
		}
	}
	if !e.sleep(ctx, emergencyReloadDelay) {
		return
	}
	if err := e.driver.NavigateComposer(ctx); err != nil {
		e.log.Warn().Err(err).Msg("emergency composer reload")
		return
	}
	run.SetResumedAfterReload(true)
	e.sleep(ctx, img2vidComposerSettle)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
