package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"imagine-pilot/internal/model"
)

const (
	stateFileName = "state.json"
	queueFileName = "queue.json"
)

var ErrNotResumable = errors.New("persisted state is not resumable")

// Store persists the automation state under a single directory. The
// run snapshot is written after every meaningful transition so a killed
// or restarted driver can pick up where it left off.
type Store struct {
	dir string
}

func New(dir string) Store {
	return Store{dir: dir}
}

func (s Store) Dir() string       { return s.dir }
func (s Store) StatePath() string { return filepath.Join(s.dir, stateFileName) }
func (s Store) QueuePath() string { return filepath.Join(s.dir, queueFileName) }

func (s Store) SaveState(snap model.RunSnapshot) error {
	return WriteJSON(s.StatePath(), snap)
}

// LoadState reads the persisted snapshot. The second return value is
// false when no snapshot exists.
func (s Store) LoadState() (model.RunSnapshot, bool, error) {
	var snap model.RunSnapshot
	if _, err := os.Stat(s.StatePath()); err != nil {
		if os.IsNotExist(err) {
			return model.RunSnapshot{}, false, nil
		}
		return model.RunSnapshot{}, false, fmt.Errorf("stat state file: %w", err)
	}
	if err := ReadJSON(s.StatePath(), &snap); err != nil {
		return model.RunSnapshot{}, false, err
	}
	return snap, true, nil
}

func (s Store) ClearState() error {
	if err := os.Remove(s.StatePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear state file: %w", err)
	}
	return nil
}

// ValidateResumable decides whether a persisted snapshot should be
// picked up again. Stale terminal runs, empty queues, and exhausted
// cursors are discarded rather than resumed.
func ValidateResumable(snap model.RunSnapshot) error {
	if !model.IsKnownMode(snap.Mode) {
		return fmt.Errorf("%w: unknown mode %q", ErrNotResumable, snap.Mode)
	}
	if len(snap.Items) == 0 {
		return fmt.Errorf("%w: no work items", ErrNotResumable)
	}
	if !model.IsActivePhase(snap.Phase) {
		return fmt.Errorf("%w: phase %q is not active", ErrNotResumable, snap.Phase)
	}
	cursor := snap.Cursor
	if snap.Mode == model.ModeImageToVideo {
		cursor = snap.CurrentImageIndex
	}
	if cursor >= len(snap.Items) {
		return fmt.Errorf("%w: all %d items already processed", ErrNotResumable, len(snap.Items))
	}
	return nil
}

// QueuedImage is a source image staged for image-to-video runs. Data
// holds the full data URL so the upload step needs no disk round trip.
type QueuedImage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Data string `json:"data"`
}

type imageQueue struct {
	Images []QueuedImage `json:"images"`
}

func (s Store) SaveQueue(images []QueuedImage) error {
	return WriteJSON(s.QueuePath(), imageQueue{Images: images})
}

func (s Store) LoadQueue() ([]QueuedImage, bool, error) {
	if _, err := os.Stat(s.QueuePath()); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat queue file: %w", err)
	}
	var q imageQueue
	if err := ReadJSON(s.QueuePath(), &q); err != nil {
		return nil, false, err
	}
	return q.Images, true, nil
}

func (s Store) ClearQueue() error {
	if err := os.Remove(s.QueuePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear queue file: %w", err)
	}
	return nil
}
