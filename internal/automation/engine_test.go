package automation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imagine-pilot/internal/browser"
	"imagine-pilot/internal/model"
	"imagine-pilot/internal/observer"
	"imagine-pilot/internal/runstore"
)

type fakeDriver struct {
	mu              sync.Mutex
	submits         []string
	ratios          []string
	uploads         []string
	durations       []string
	modes           []model.Mode
	navigations     int
	composerSubmits int
	pc              browser.PageContext
	submitErr       error
	submitGate      chan struct{}
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{pc: browser.PageContext{URL: "https://grok.com/imagine", Path: "/imagine", OnComposer: true}}
}

func (d *fakeDriver) NavigateComposer(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations++
	d.pc = browser.PageContext{URL: "https://grok.com/imagine", Path: "/imagine", OnComposer: true}
	return nil
}

func (d *fakeDriver) PageContext(ctx context.Context) (browser.PageContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pc, nil
}

func (d *fakeDriver) SelectGenerationMode(ctx context.Context, mode model.Mode) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modes = append(d.modes, mode)
	return true, nil
}

func (d *fakeDriver) SelectVideoDuration(ctx context.Context, duration string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.durations = append(d.durations, duration)
	return true, nil
}

func (d *fakeDriver) SubmitPrompt(ctx context.Context, prompt, aspectRatio string) error {
	d.mu.Lock()
	gate := d.submitGate
	d.submits = append(d.submits, prompt)
	d.ratios = append(d.ratios, aspectRatio)
	err := d.submitErr
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (d *fakeDriver) SubmitComposer(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.composerSubmits++
	return nil
}

func (d *fakeDriver) UploadImage(ctx context.Context, dataURL, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploads = append(d.uploads, name)
	return nil
}

func (d *fakeDriver) WaitForEditor(ctx context.Context) error { return nil }

func (d *fakeDriver) DismissPreferencePopup(ctx context.Context) (bool, error) {
	return false, nil
}

func (d *fakeDriver) submitted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.submits...)
}

type capturerCall struct {
	op    string
	index int
	url   string
}

type fakeCapturer struct {
	mu    sync.Mutex
	calls []capturerCall
	seen  chan capturerCall
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{seen: make(chan capturerCall, 16)}
}

func (c *fakeCapturer) record(call capturerCall) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
	select {
	case c.seen <- call:
	default:
	}
}

func (c *fakeCapturer) ProcessVideo(ctx context.Context, index int, url string) {
	c.record(capturerCall{op: "video", index: index, url: url})
}

func (c *fakeCapturer) SweepImages(ctx context.Context, promptIndex int, prompt string) {
	c.record(capturerCall{op: "sweep", index: promptIndex})
}

func (c *fakeCapturer) InspectNewestImage(ctx context.Context, promptIndex int) {
	c.record(capturerCall{op: "inspect", index: promptIndex})
}

func (c *fakeCapturer) Wait() {}

func (c *fakeCapturer) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.op == op {
			n++
		}
	}
	return n
}

func (c *fakeCapturer) next(t *testing.T) capturerCall {
	t.Helper()
	select {
	case call := <-c.seen:
		return call
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a capturer call")
		return capturerCall{}
	}
}

type fakeReporter struct {
	mu             sync.Mutex
	statuses       []StatusUpdate
	completed      int
	completedTotal int
	failed         []error
}

func (r *fakeReporter) Status(ctx context.Context, update StatusUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, update)
}

func (r *fakeReporter) Completed(ctx context.Context, runID string, downloaded, totalItems int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	r.completedTotal = totalItems
}

func (r *fakeReporter) Failed(ctx context.Context, runID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

func (r *fakeReporter) hasStatusType(typ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s.Type == typ {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T, driver *fakeDriver, capt *fakeCapturer) (*Engine, *fakeReporter, runstore.Store) {
	t.Helper()
	store := runstore.New(t.TempDir())
	rep := &fakeReporter{}
	engine := NewEngine(driver, store, func(run *model.Run, persist func()) Capturer {
		return capt
	}, rep, zerolog.Nop())
	engine.sleep = func(ctx context.Context, d time.Duration) bool {
		return ctx.Err() == nil
	}
	engine.now = func() time.Time { return time.Unix(1700000000, 0) }
	engine.randIntn = func(n int) int { return 0 }
	engine.randIndex = func(n int) int { return 0 }
	return engine, rep, store
}

func promptItems(prompts ...string) []model.WorkItem {
	items := make([]model.WorkItem, 0, len(prompts))
	for _, p := range prompts {
		items = append(items, model.WorkItem{Prompt: p})
	}
	return items
}

func waitDone(t *testing.T, engine *Engine) {
	t.Helper()
	select {
	case <-engine.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish in time")
	}
}

func TestStartRejectsEmptyAndDoubleStart(t *testing.T) {
	driver := newFakeDriver()
	driver.submitGate = make(chan struct{})
	engine, _, _ := newTestEngine(t, driver, newFakeCapturer())

	if err := engine.Start(context.Background(), model.ModeVideo, nil, model.Settings{}); !errors.Is(err, ErrNoWorkItems) {
		t.Fatalf("empty start = %v, want ErrNoWorkItems", err)
	}
	if err := engine.Start(context.Background(), model.ModeVideo, promptItems("a"), model.Settings{}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := engine.Start(context.Background(), model.ModeVideo, promptItems("b"), model.Settings{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start = %v, want ErrAlreadyRunning", err)
	}
	close(driver.submitGate)
	waitDone(t, engine)
}

func TestTextRunSubmitsEveryPromptAndCompletes(t *testing.T) {
	driver := newFakeDriver()
	engine, rep, store := newTestEngine(t, driver, newFakeCapturer())

	err := engine.Start(context.Background(), model.ModeVideo, promptItems("a cat", "a dog"), model.Settings{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, engine)

	if got := driver.submitted(); len(got) != 2 || got[0] != "a cat" || got[1] != "a dog" {
		t.Fatalf("submitted prompts = %v", got)
	}
	snap, found := engine.Status()
	if !found || snap.Phase != model.PhaseCompleted {
		t.Fatalf("final phase = %q (found=%v), want completed", snap.Phase, found)
	}
	rep.mu.Lock()
	completed, total := rep.completed, rep.completedTotal
	rep.mu.Unlock()
	if completed != 1 {
		t.Fatalf("completed reports = %d, want 1", completed)
	}
	if total != 2 {
		t.Fatalf("completed total = %d, want the run length 2", total)
	}
	if _, onDisk, err := store.LoadState(); err != nil || onDisk {
		t.Fatalf("state still on disk after completion (found=%v, err=%v)", onDisk, err)
	}
}

func TestVideoModeReassertsGeneratorPerPrompt(t *testing.T) {
	driver := newFakeDriver()
	engine, _, _ := newTestEngine(t, driver, newFakeCapturer())

	if err := engine.Start(context.Background(), model.ModeVideo, promptItems("a", "b", "c"), model.Settings{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, engine)

	driver.mu.Lock()
	modes := len(driver.modes)
	driver.mu.Unlock()
	if modes != 3 {
		t.Fatalf("mode selections = %d, want one per prompt", modes)
	}
}

func TestImageModeRedirectsToComposerEachPrompt(t *testing.T) {
	driver := newFakeDriver()
	engine, _, _ := newTestEngine(t, driver, newFakeCapturer())

	if err := engine.Start(context.Background(), model.ModeImage, promptItems("a", "b"), model.Settings{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, engine)

	driver.mu.Lock()
	navs := driver.navigations
	modes := len(driver.modes)
	driver.mu.Unlock()
	if navs != 2 {
		t.Fatalf("composer navigations = %d, want 2", navs)
	}
	if modes != 1 {
		t.Fatalf("mode selections = %d, want a single assert in image mode", modes)
	}
}

func TestStopTerminalizesAndClearsState(t *testing.T) {
	driver := newFakeDriver()
	driver.submitGate = make(chan struct{})
	engine, _, store := newTestEngine(t, driver, newFakeCapturer())

	if err := engine.Start(context.Background(), model.ModeVideo, promptItems("a", "b"), model.Settings{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	snap, found := engine.Status()
	if !found || snap.Phase != model.PhaseStopped {
		t.Fatalf("phase after stop = %q, want stopped", snap.Phase)
	}
	if _, onDisk, _ := store.LoadState(); onDisk {
		t.Fatalf("state survived stop")
	}
	if err := engine.Stop(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second stop = %v, want ErrNotRunning", err)
	}
}

func TestFailedSubmitReportsAndClearsState(t *testing.T) {
	driver := newFakeDriver()
	driver.submitErr = errors.New("editor never appeared")
	engine, rep, store := newTestEngine(t, driver, newFakeCapturer())

	if err := engine.Start(context.Background(), model.ModeVideo, promptItems("a"), model.Settings{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, engine)

	snap, _ := engine.Status()
	if snap.Phase != model.PhaseErrored {
		t.Fatalf("phase = %q, want errored", snap.Phase)
	}
	rep.mu.Lock()
	failures := len(rep.failed)
	rep.mu.Unlock()
	if failures != 1 {
		t.Fatalf("failure reports = %d, want 1", failures)
	}
	if _, onDisk, _ := store.LoadState(); onDisk {
		t.Fatalf("state survived failure")
	}
}

func TestScheduledBreakBetweenPrompts(t *testing.T) {
	driver := newFakeDriver()
	engine, rep, _ := newTestEngine(t, driver, newFakeCapturer())

	settings := model.Settings{BreakEnabled: true, BreakPrompts: 1, BreakMinutesMin: 2, BreakMinutesMax: 2}
	if err := engine.Start(context.Background(), model.ModeVideo, promptItems("a", "b"), settings); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, engine)

	if !rep.hasStatusType("break") {
		t.Fatalf("no break status was reported")
	}
	if got := driver.submitted(); len(got) != 2 {
		t.Fatalf("submitted = %d prompts, want both despite the break", len(got))
	}
}

func TestImageToVideoRunUploadsQueue(t *testing.T) {
	driver := newFakeDriver()
	capt := newFakeCapturer()
	engine, _, store := newTestEngine(t, driver, capt)

	images := []runstore.QueuedImage{
		{ID: "img-1", Name: "sunset.png", Data: "data:image/png;base64,aaaa"},
		{ID: "img-2", Name: "harbor.png", Data: "data:image/png;base64,bbbb"},
	}
	if err := store.SaveQueue(images); err != nil {
		t.Fatalf("save queue: %v", err)
	}
	if err := engine.StartImageToVideo(context.Background(), model.Settings{VideoDuration: "10s"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, engine)

	driver.mu.Lock()
	uploads := append([]string(nil), driver.uploads...)
	durations := append([]string(nil), driver.durations...)
	composerSubmits := driver.composerSubmits
	driver.mu.Unlock()
	if len(uploads) != 2 || uploads[0] != "sunset.png" || uploads[1] != "harbor.png" {
		t.Fatalf("uploads = %v", uploads)
	}
	if composerSubmits != 2 {
		t.Fatalf("composer submits = %d, want 2", composerSubmits)
	}
	for _, d := range durations {
		if d != "10s" {
			t.Fatalf("duration = %q, want 10s", d)
		}
	}
	snap, _ := engine.Status()
	if snap.Phase != model.PhaseCompleted {
		t.Fatalf("phase = %q, want completed", snap.Phase)
	}
}

func TestStartImageToVideoWithoutQueue(t *testing.T) {
	engine, _, _ := newTestEngine(t, newFakeDriver(), newFakeCapturer())
	if err := engine.StartImageToVideo(context.Background(), model.Settings{}); !errors.Is(err, ErrNoWorkItems) {
		t.Fatalf("start without queue = %v, want ErrNoWorkItems", err)
	}
}

func TestResumeContinuesPersistedRun(t *testing.T) {
	driver := newFakeDriver()
	engine, _, store := newTestEngine(t, driver, newFakeCapturer())

	run := model.NewRun("res-1", model.ModeVideo, promptItems("a", "b", "c"), model.DefaultSettings())
	if err := run.TransitionTo(model.PhaseRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}
	run.AdvanceCursor()
	if err := store.SaveState(run.Snapshot()); err != nil {
		t.Fatalf("save state: %v", err)
	}

	if err := engine.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, engine)

	if got := driver.submitted(); len(got) != 2 || got[0] != "b" {
		t.Fatalf("resumed submissions = %v, want the two remaining prompts", got)
	}
}

func TestResumeStatusElapsedCountsFromRunStart(t *testing.T) {
	driver := newFakeDriver()
	engine, rep, store := newTestEngine(t, driver, newFakeCapturer())

	run := model.NewRun("res-2", model.ModeVideo, promptItems("a"), model.DefaultSettings())
	snap := run.Snapshot()
	snap.StartedAt = time.Unix(1700000000, 0).Add(-90 * time.Second)
	if err := store.SaveState(snap); err != nil {
		t.Fatalf("save state: %v", err)
	}

	if err := engine.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, engine)

	rep.mu.Lock()
	statuses := append([]StatusUpdate(nil), rep.statuses...)
	rep.mu.Unlock()

	found := false
	for _, s := range statuses {
		if strings.HasPrefix(s.Message, "Submitting") {
			found = true
			if s.Elapsed != "1m30s" {
				t.Fatalf("elapsed = %q, want 1m30s from the persisted start", s.Elapsed)
			}
		}
	}
	if !found {
		t.Fatalf("no submit status reported")
	}
}

func TestResumeWithoutStateFails(t *testing.T) {
	engine, _, _ := newTestEngine(t, newFakeDriver(), newFakeCapturer())
	if err := engine.Resume(context.Background()); !errors.Is(err, runstore.ErrNotResumable) {
		t.Fatalf("resume = %v, want ErrNotResumable", err)
	}
}

func TestResetQueueRefusesWhileRunning(t *testing.T) {
	driver := newFakeDriver()
	driver.submitGate = make(chan struct{})
	engine, _, store := newTestEngine(t, driver, newFakeCapturer())

	if err := store.SaveQueue([]runstore.QueuedImage{{ID: "x", Name: "x.png", Data: "data:image/png;base64,aa"}}); err != nil {
		t.Fatalf("save queue: %v", err)
	}
	if err := engine.Start(context.Background(), model.ModeVideo, promptItems("a"), model.Settings{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.ResetQueue(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("reset while running = %v, want ErrAlreadyRunning", err)
	}
	close(driver.submitGate)
	waitDone(t, engine)

	if err := engine.ResetQueue(); err != nil {
		t.Fatalf("reset after run: %v", err)
	}
	if _, found, _ := store.LoadQueue(); found {
		t.Fatalf("queue survived reset")
	}
}

func TestMediaEventDispatchesVideoOnce(t *testing.T) {
	driver := newFakeDriver()
	driver.submitGate = make(chan struct{})
	capt := newFakeCapturer()
	engine, _, _ := newTestEngine(t, driver, capt)

	settings := model.Settings{AutoDownload: true}
	if err := engine.Start(context.Background(), model.ModeVideo, promptItems("a"), settings); err != nil {
		t.Fatalf("start: %v", err)
	}
	ev := observer.Event{Kind: observer.KindVideo, URL: "https://cdn/generated_video.mp4?id=1"}
	engine.HandleMediaEvent(context.Background(), ev)
	engine.HandleMediaEvent(context.Background(), ev)

	call := capt.next(t)
	if call.op != "video" || call.index != 0 {
		t.Fatalf("capturer call = %+v, want video index 0", call)
	}
	time.Sleep(50 * time.Millisecond)
	if n := capt.count("video"); n != 1 {
		t.Fatalf("video dispatches = %d, want 1 for a repeated URL", n)
	}
	close(driver.submitGate)
	waitDone(t, engine)
}

func TestMediaEventMutationTriggersImageCapture(t *testing.T) {
	driver := newFakeDriver()
	driver.submitGate = make(chan struct{})
	capt := newFakeCapturer()
	engine, _, _ := newTestEngine(t, driver, capt)

	settings := model.Settings{AutoDownload: true, DownloadAllImages: true}
	if err := engine.Start(context.Background(), model.ModeImage, promptItems("a"), settings); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Let the loop reach the submit so lastSubmittedIndex is set.
	deadline := time.Now().Add(2 * time.Second)
	for len(driver.submitted()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("prompt was never submitted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	engine.HandleMediaEvent(context.Background(), observer.Event{Kind: observer.KindMutation})
	call := capt.next(t)
	if call.op != "sweep" || call.index != 0 {
		t.Fatalf("capturer call = %+v, want sweep index 0", call)
	}
	close(driver.submitGate)
	waitDone(t, engine)
}

func TestCommandsRoundTrip(t *testing.T) {
	driver := newFakeDriver()
	engine, _, _ := newTestEngine(t, driver, newFakeCapturer())
	cmds := NewCommands(engine, zerolog.Nop())

	out, err := cmds.HandleCommand(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if resp, ok := out.(map[string]any); !ok || resp["ok"] != true {
		t.Fatalf("ping response = %#v", out)
	}

	params, _ := json.Marshal(map[string]any{"prompts": []string{"a cat", " "}, "mode": "video"})
	if _, err := cmds.HandleCommand(context.Background(), "startAutomation", params); err != nil {
		t.Fatalf("startAutomation: %v", err)
	}
	waitDone(t, engine)
	if got := driver.submitted(); len(got) != 1 || got[0] != "a cat" {
		t.Fatalf("submitted = %v, blank prompts should be dropped", got)
	}

	if _, err := cmds.HandleCommand(context.Background(), "clearState", nil); err != nil {
		t.Fatalf("clearState: %v", err)
	}
	if _, err := cmds.HandleCommand(context.Background(), "definitelyNot", nil); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("unknown command error = %v", err)
	}
}
