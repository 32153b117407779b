package model

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type Mode string

const (
	ModeImage        Mode = "image"
	ModeVideo        Mode = "video"
	ModeImageToVideo Mode = "image-to-video"
)

func IsKnownMode(mode Mode) bool {
	switch mode {
	case ModeImage, ModeVideo, ModeImageToVideo:
		return true
	}
	return false
}

// WorkItem is one unit of queued work: a prompt to submit in the text
// modes, or a queued source image in image-to-video mode.
type WorkItem struct {
	Prompt    string `json:"prompt,omitempty"`
	ImageID   string `json:"image_id,omitempty"`
	ImageName string `json:"image_name,omitempty"`
}

// Label returns the text used for filenames and progress reporting.
func (w WorkItem) Label() string {
	if prompt := strings.TrimSpace(w.Prompt); prompt != "" {
		return prompt
	}
	return strings.TrimSpace(w.ImageName)
}

// Run is the single mutable aggregate behind an automation session. All
// cross-goroutine coordination happens through its claim methods: a
// check-and-mark is one critical section, so the observer callback, the
// advance loop, and timer continuations can never double-claim an index
// or a media URL.
type Run struct {
	mu sync.Mutex

	runID    string
	mode     Mode
	items    []WorkItem
	settings Settings

	phase             string
	cursor            int
	currentImageIndex int
	lastSubmitted     int

	modeApplied        bool
	resumedAfterReload bool
	imageDownloadDone  bool

	promptsSinceBreak int
	breakUntil        time.Time

	startedAt time.Time

	processing map[int]struct{}
	upscaled   map[int]struct{}
	downloaded map[int]struct{}
	seenMedia  map[string]struct{}
	seenOrder  int
}

func NewRun(runID string, mode Mode, items []WorkItem, settings Settings) *Run {
	return &Run{
		runID:         runID,
		mode:          mode,
		items:         append([]WorkItem(nil), items...),
		settings:      settings.Normalized(),
		phase:         PhaseRunning,
		lastSubmitted: -1,
		startedAt:     time.Now().UTC(),
		processing:    make(map[int]struct{}),
		upscaled:      make(map[int]struct{}),
		downloaded:    make(map[int]struct{}),
		seenMedia:     make(map[string]struct{}),
	}
}

func (r *Run) RunID() string      { return r.runID }
func (r *Run) Mode() Mode         { return r.mode }
func (r *Run) Settings() Settings { return r.settings }
func (r *Run) Len() int           { return len(r.items) }

func (r *Run) StartedAt() time.Time { return r.startedAt }

func (r *Run) Item(index int) (WorkItem, bool) {
	if index < 0 || index >= len(r.items) {
		return WorkItem{}, false
	}
	return r.items[index], true
}

func (r *Run) Phase() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Run) TransitionTo(phase string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := transitionPhase(r.phase, phase, r.runID)
	if err != nil {
		return err
	}
	r.phase = next
	return nil
}

// Active reports whether the run is still doing (or scheduled to do)
// work. Terminal and idle phases are inactive.
func (r *Run) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return IsActivePhase(r.phase)
}

func (r *Run) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// AdvanceCursor moves past the current item and counts it toward the
// next break. It returns the new cursor position.
func (r *Run) AdvanceCursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor++
	r.promptsSinceBreak++
	return r.cursor
}

func (r *Run) CurrentImageIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentImageIndex
}

func (r *Run) SetCurrentImageIndex(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentImageIndex = index
}

func (r *Run) LastSubmittedIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSubmitted
}

func (r *Run) SetLastSubmittedIndex(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSubmitted = index
}

func (r *Run) ModeApplied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modeApplied
}

func (r *Run) SetModeApplied(applied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modeApplied = applied
}

func (r *Run) ResumedAfterReload() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resumedAfterReload
}

func (r *Run) SetResumedAfterReload(resumed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumedAfterReload = resumed
}

func (r *Run) ImageDownloadInitiated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.imageDownloadDone
}

func (r *Run) SetImageDownloadInitiated(done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imageDownloadDone = done
}

func (r *Run) PromptsSinceBreak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.promptsSinceBreak
}

// BeginBreak records the pause deadline and resets the counter that
// decides when the next break is due.
func (r *Run) BeginBreak(until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakUntil = until
	r.promptsSinceBreak = 0
}

func (r *Run) EndBreak() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakUntil = time.Time{}
}

func (r *Run) BreakUntil() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakUntil, !r.breakUntil.IsZero()
}

// ClaimProcessing marks an index as being handled. It returns false if
// another goroutine already holds the claim.
func (r *Run) ClaimProcessing(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.processing[index]; busy {
		return false
	}
	r.processing[index] = struct{}{}
	return true
}

func (r *Run) ReleaseProcessing(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processing, index)
}

func (r *Run) ProcessingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processing)
}

func (r *Run) MarkUpscaled(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upscaled[index] = struct{}{}
}

func (r *Run) Upscaled(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.upscaled[index]
	return ok
}

// MarkDownloaded records a completed capture for the index. It returns
// false if the index was already captured, so callers can use it as a
// claim.
func (r *Run) MarkDownloaded(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, done := r.downloaded[index]; done {
		return false
	}
	r.downloaded[index] = struct{}{}
	return true
}

func (r *Run) Downloaded(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.downloaded[index]
	return ok
}

func (r *Run) DownloadedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.downloaded)
}

// ClaimMediaURL claims a media URL the first time it is seen and
// returns its arrival ordinal (0-based). The ordinal is what maps a
// detected video back to a work item in the text modes: the page keeps
// results in submission order, so arrival order tracks the queue.
func (r *Run) ClaimMediaURL(url string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.seenMedia[url]; seen {
		return 0, false
	}
	r.seenMedia[url] = struct{}{}
	ordinal := r.seenOrder
	r.seenOrder++
	return ordinal, true
}

func (r *Run) SeenMediaCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seenOrder
}

// RunSnapshot is the serializable view of a Run. It is what the state
// store persists and what status reporting reads.
type RunSnapshot struct {
	RunID             string     `json:"run_id"`
	Mode              Mode       `json:"mode"`
	Items             []WorkItem `json:"items"`
	Settings          Settings   `json:"settings"`
	Phase             string     `json:"phase"`
	Cursor            int        `json:"cursor"`
	CurrentImageIndex int        `json:"current_image_index"`
	LastSubmitted     int        `json:"last_submitted_index"`
	ModeApplied       bool       `json:"mode_applied"`
	ImageDownloadDone bool       `json:"image_download_initiated"`
	PromptsSinceBreak int        `json:"prompts_since_break"`
	BreakUntil        time.Time  `json:"break_until,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	Processing        []int      `json:"processing,omitempty"`
	Upscaled          []int      `json:"upscaled,omitempty"`
	Downloaded        []int      `json:"downloaded,omitempty"`
	SeenMediaURLs     []string   `json:"seen_media_urls,omitempty"`
}

func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunSnapshot{
		RunID:             r.runID,
		Mode:              r.mode,
		Items:             append([]WorkItem(nil), r.items...),
		Settings:          r.settings,
		Phase:             r.phase,
		Cursor:            r.cursor,
		CurrentImageIndex: r.currentImageIndex,
		LastSubmitted:     r.lastSubmitted,
		ModeApplied:       r.modeApplied,
		ImageDownloadDone: r.imageDownloadDone,
		PromptsSinceBreak: r.promptsSinceBreak,
		BreakUntil:        r.breakUntil,
		StartedAt:         r.startedAt,
		Processing:        sortedIndexes(r.processing),
		Upscaled:          sortedIndexes(r.upscaled),
		Downloaded:        sortedIndexes(r.downloaded),
		SeenMediaURLs:     sortedKeys(r.seenMedia),
	}
}

// RestoreRun rebuilds a Run from a persisted snapshot. The restored run
// starts with the reload marker set: the next advance must skip
// redirects and re-apply the generation mode.
func RestoreRun(snap RunSnapshot) *Run {
	r := NewRun(snap.RunID, snap.Mode, snap.Items, snap.Settings)
	r.phase = snap.Phase
	if !IsKnownPhase(r.phase) || r.phase == "" {
		r.phase = PhaseRunning
	}
	r.cursor = snap.Cursor
	r.currentImageIndex = snap.CurrentImageIndex
	r.lastSubmitted = snap.LastSubmitted
	r.imageDownloadDone = snap.ImageDownloadDone
	r.promptsSinceBreak = snap.PromptsSinceBreak
	r.breakUntil = snap.BreakUntil
	if !snap.StartedAt.IsZero() {
		r.startedAt = snap.StartedAt
	}
	r.resumedAfterReload = true
	r.modeApplied = false
	for _, i := range snap.Processing {
		r.processing[i] = struct{}{}
	}
	for _, i := range snap.Upscaled {
		r.upscaled[i] = struct{}{}
	}
	for _, i := range snap.Downloaded {
		r.downloaded[i] = struct{}{}
	}
	for _, u := range snap.SeenMediaURLs {
		r.seenMedia[u] = struct{}{}
	}
	r.seenOrder = len(r.seenMedia)
	return r
}

func sortedIndexes(set map[int]struct{}) []int {
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
