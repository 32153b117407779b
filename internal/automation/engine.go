// Package automation owns the run state machine: it advances work items,
// schedules breaks, survives page reloads, and hands detected media off to
// the capture layer.
package automation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imagine-pilot/internal/browser"
	"imagine-pilot/internal/model"
	"imagine-pilot/internal/runstore"
)

var (
	ErrAlreadyRunning = errors.New("a run is already active")
	ErrNoWorkItems    = errors.New("no work items to run")
	ErrNotRunning     = errors.New("no run is active")
)

// Driver abstracts the browser layer. *browser.Session satisfies it.
type Driver interface {
	NavigateComposer(ctx context.Context) error
	PageContext(ctx context.Context) (browser.PageContext, error)
	SelectGenerationMode(ctx context.Context, mode model.Mode) (bool, error)
	SelectVideoDuration(ctx context.Context, duration string) (bool, error)
	SubmitPrompt(ctx context.Context, prompt, aspectRatio string) error
	SubmitComposer(ctx context.Context) error
	UploadImage(ctx context.Context, dataURL, name string) error
	WaitForEditor(ctx context.Context) error
	DismissPreferencePopup(ctx context.Context) (bool, error)
}

// Capturer abstracts the download side. *capture.Dispatcher satisfies it.
type Capturer interface {
	ProcessVideo(ctx context.Context, index int, url string)
	SweepImages(ctx context.Context, promptIndex int, prompt string)
	InspectNewestImage(ctx context.Context, promptIndex int)
	Wait()
}

// CapturerFactory builds a capturer bound to one run. The engine calls it
// once per started or resumed run, passing its own persist hook.
type CapturerFactory func(run *model.Run, persist func()) Capturer

// StatusUpdate is what the engine tells the outside world while working.
type StatusUpdate struct {
	Message  string `json:"message"`
	Type     string `json:"type"`
	Progress string `json:"progress,omitempty"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Elapsed  string `json:"elapsed,omitempty"`
}

// Reporter fans status out to whatever is listening (relay clients, the
// in-page overlay, the log).
type Reporter interface {
	Status(ctx context.Context, update StatusUpdate)
	Completed(ctx context.Context, runID string, downloaded, totalItems int)
	Failed(ctx context.Context, runID string, err error)
}

// Engine drives one run at a time. All mutation goes through its mutex;
// the advance loop itself runs on a dedicated goroutine.
type Engine struct {
	driver      Driver
	store       runstore.Store
	newCapturer CapturerFactory
	rep         Reporter
	log         zerolog.Logger

	// injected for tests
	sleep     func(ctx context.Context, d time.Duration) bool
	now       func() time.Time
	randIntn  func(n int) int
	randIndex func(n int) int

	mu     sync.Mutex
	run    *model.Run
	capt   Capturer
	queue  map[string]runstore.QueuedImage
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(driver Driver, store runstore.Store, factory CapturerFactory, rep Reporter, log zerolog.Logger) *Engine {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Engine{
		driver:      driver,
		store:       store,
		newCapturer: factory,
		rep:         rep,
		log:         log.With().Str("component", "automation").Logger(),
		sleep:       sleepCtx,
		now:         time.Now,
		randIntn:    rng.Intn,
		randIndex:   rng.Intn,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Start begins a text-prompt run. It rejects the call outright when a run
// is already active; the caller's state is untouched in that case.
func (e *Engine) Start(ctx context.Context, mode model.Mode, items []model.WorkItem, settings model.Settings) error {
	if !model.IsKnownMode(mode) || mode == model.ModeImageToVideo {
		return fmt.Errorf("mode %q cannot be started from prompts", mode)
	}
	if len(items) == 0 {
		return ErrNoWorkItems
	}
	run := model.NewRun(newRunID(e.now()), mode, items, settings.Normalized())
	if err := run.TransitionTo(model.PhaseRunning); err != nil {
		return err
	}
	return e.launch(ctx, run, nil)
}

// StartImageToVideo begins a run over the persisted image queue.
func (e *Engine) StartImageToVideo(ctx context.Context, settings model.Settings) error {
	images, found, err := e.store.LoadQueue()
	if err != nil {
		return fmt.Errorf("load image queue: %w", err)
	}
	if !found || len(images) == 0 {
		return ErrNoWorkItems
	}
	items := make([]model.WorkItem, 0, len(images))
	queue := make(map[string]runstore.QueuedImage, len(images))
	for _, img := range images {
		items = append(items, model.WorkItem{ImageID: img.ID, ImageName: img.Name})
		queue[img.ID] = img
	}
	run := model.NewRun(newRunID(e.now()), model.ModeImageToVideo, items, settings.Normalized())
	if err := run.TransitionTo(model.PhaseRunning); err != nil {
		return err
	}
	return e.launch(ctx, run, queue)
}

// Resume restores the persisted run and continues it. The page is given a
// short settle window before the first advance, matching a fresh reload.
func (e *Engine) Resume(ctx context.Context) error {
	snap, found, err := e.store.LoadState()
	if err != nil {
		return fmt.Errorf("load persisted run: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: no persisted run", runstore.ErrNotResumable)
	}
	if err := runstore.ValidateResumable(snap); err != nil {
		return err
	}
	run := model.RestoreRun(snap)
	var queue map[string]runstore.QueuedImage
	if run.Mode() == model.ModeImageToVideo {
		images, qFound, err := e.store.LoadQueue()
		if err != nil {
			return fmt.Errorf("load image queue: %w", err)
		}
		if !qFound {
			return fmt.Errorf("%w: image queue is missing", runstore.ErrNotResumable)
		}
		queue = make(map[string]runstore.QueuedImage, len(images))
		for _, img := range images {
			queue[img.ID] = img
		}
	}
	e.log.Info().Str("run_id", run.RunID()).Str("mode", string(run.Mode())).
		Int("cursor", run.Cursor()).Msg("resuming persisted run")
	return e.launch(ctx, run, queue)
}

func (e *Engine) launch(ctx context.Context, run *model.Run, queue map[string]runstore.QueuedImage) error {
	e.mu.Lock()
	if e.run != nil && e.run.Active() {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	// The starting call's context (a relay dispatch, a CLI command) may
	// end long before the run does; detach from its cancellation.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.run = run
	e.queue = queue
	e.capt = e.newCapturer(run, func() { e.persist(run) })
	e.cancel = cancel
	e.done = make(chan struct{})
	capt := e.capt
	done := e.done
	e.mu.Unlock()

	e.persist(run)
	go e.loop(runCtx, run, capt, done)
	return nil
}

func (e *Engine) loop(ctx context.Context, run *model.Run, capt Capturer, done chan struct{}) {
	defer close(done)
	var err error
	if run.Mode() == model.ModeImageToVideo {
		err = e.advanceImageToVideo(ctx, run, capt)
	} else {
		err = e.advanceText(ctx, run, capt)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || run.Phase() == model.PhaseStopped {
			return
		}
		e.fail(ctx, run, err)
	}
}

// Stop terminalizes the current run and discards its persisted state.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	run := e.run
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()
	if run == nil || !run.Active() {
		return ErrNotRunning
	}
	if err := run.TransitionTo(model.PhaseStopped); err != nil {
		return err
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if err := e.store.ClearState(); err != nil {
		e.log.Warn().Err(err).Msg("clear persisted state after stop")
	}
	e.report(ctx, StatusUpdate{Message: "Automation stopped", Type: "stopped"})
	e.log.Info().Str("run_id", run.RunID()).Msg("run stopped")
	return nil
}

// ResetQueue discards the image queue and any persisted run. It refuses to
// act while a run is in flight.
func (e *Engine) ResetQueue() error {
	e.mu.Lock()
	active := e.run != nil && e.run.Active()
	e.mu.Unlock()
	if active {
		return ErrAlreadyRunning
	}
	if err := e.store.ClearQueue(); err != nil {
		return fmt.Errorf("clear image queue: %w", err)
	}
	if err := e.store.ClearState(); err != nil {
		return fmt.Errorf("clear persisted state: %w", err)
	}
	return nil
}

// ClearState removes the persisted run blob without touching a live run.
func (e *Engine) ClearState() error {
	return e.store.ClearState()
}

// Done returns a channel closed when the current run's loop exits, or nil
// when nothing was ever started.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Status reports where the engine currently is. With no live run it falls
// back to the persisted snapshot, if any.
func (e *Engine) Status() (model.RunSnapshot, bool) {
	e.mu.Lock()
	run := e.run
	e.mu.Unlock()
	if run != nil {
		return run.Snapshot(), true
	}
	snap, found, err := e.store.LoadState()
	if err != nil || !found {
		return model.RunSnapshot{}, false
	}
	return snap, true
}

// report stamps the update with the run's elapsed time before fanning
// it out. The run clock is the one restored from disk on resume, so a
// resumed run keeps counting from its original start.
func (e *Engine) report(ctx context.Context, update StatusUpdate) {
	e.mu.Lock()
	run := e.run
	e.mu.Unlock()
	if update.Elapsed == "" && run != nil {
		if d := e.now().Sub(run.StartedAt()); d > 0 {
			update.Elapsed = d.Round(time.Second).String()
		}
	}
	e.rep.Status(ctx, update)
}

func (e *Engine) persist(run *model.Run) {
	if err := e.store.SaveState(run.Snapshot()); err != nil {
		e.log.Warn().Err(err).Str("run_id", run.RunID()).Msg("persist run state")
	}
}

func (e *Engine) complete(ctx context.Context, run *model.Run, capt Capturer) error {
	capt.Wait()
	if run.Phase() != model.PhaseCompleted {
		if err := run.TransitionTo(model.PhaseCompleted); err != nil {
			return err
		}
	}
	if err := e.store.ClearState(); err != nil {
		e.log.Warn().Err(err).Msg("clear persisted state after completion")
	}
	e.rep.Completed(ctx, run.RunID(), run.DownloadedCount(), run.Len())
	e.log.Info().Str("run_id", run.RunID()).Int("downloaded", run.DownloadedCount()).
		Msg("run completed")
	return nil
}

func (e *Engine) fail(ctx context.Context, run *model.Run, cause error) {
	if run.Active() {
		if err := run.TransitionTo(model.PhaseErrored); err != nil {
			e.log.Warn().Err(err).Msg("mark run errored")
		}
	}
	if err := e.store.ClearState(); err != nil {
		e.log.Warn().Err(err).Msg("clear persisted state after failure")
	}
	e.rep.Failed(ctx, run.RunID(), cause)
	e.log.Error().Err(cause).Str("run_id", run.RunID()).Msg("run failed")
}

func (e *Engine) queuedImage(id string) (runstore.QueuedImage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	img, ok := e.queue[id]
	return img, ok
}

func newRunID(now time.Time) string {
	return now.UTC().Format("20060102-150405")
}
