package runstore

import (
	"errors"
	"path/filepath"
	"testing"

	"imagine-pilot/internal/model"
)

func TestStore_StateRoundTrip(t *testing.T) {
	store := New(t.TempDir())

	if _, found, err := store.LoadState(); err != nil || found {
		t.Fatalf("empty store: found=%v err=%v", found, err)
	}

	run := model.NewRun("run-1", model.ModeVideo, []model.WorkItem{{Prompt: "a"}, {Prompt: "b"}}, model.Settings{})
	run.AdvanceCursor()
	run.MarkDownloaded(0)
	run.ClaimMediaURL("blob:one")

	if err := store.SaveState(run.Snapshot()); err != nil {
		t.Fatalf("save state: %v", err)
	}

	snap, found, err := store.LoadState()
	if err != nil || !found {
		t.Fatalf("load state: found=%v err=%v", found, err)
	}
	if snap.RunID != "run-1" || snap.Cursor != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Downloaded) != 1 || snap.Downloaded[0] != 0 {
		t.Fatalf("downloaded set lost: %v", snap.Downloaded)
	}
	if len(snap.SeenMediaURLs) != 1 || snap.SeenMediaURLs[0] != "blob:one" {
		t.Fatalf("seen media URLs lost: %v", snap.SeenMediaURLs)
	}

	if err := store.ClearState(); err != nil {
		t.Fatalf("clear state: %v", err)
	}
	if _, found, err := store.LoadState(); err != nil || found {
		t.Fatalf("state survived clear: found=%v err=%v", found, err)
	}
	if err := store.ClearState(); err != nil {
		t.Fatalf("clear on empty store should be a no-op: %v", err)
	}
}

func TestValidateResumable(t *testing.T) {
	base := model.RunSnapshot{
		RunID: "run-1",
		Mode:  model.ModeImage,
		Items: []model.WorkItem{{Prompt: "a"}, {Prompt: "b"}},
		Phase: model.PhaseRunning,
	}

	if err := ValidateResumable(base); err != nil {
		t.Fatalf("expected resumable: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*model.RunSnapshot)
	}{
		{"no items", func(s *model.RunSnapshot) { s.Items = nil }},
		{"terminal phase", func(s *model.RunSnapshot) { s.Phase = model.PhaseCompleted }},
		{"idle phase", func(s *model.RunSnapshot) { s.Phase = model.PhaseIdle }},
		{"exhausted cursor", func(s *model.RunSnapshot) { s.Cursor = 2 }},
		{"unknown mode", func(s *model.RunSnapshot) { s.Mode = "carousel" }},
	}
	for _, tc := range cases {
		snap := base
		tc.mutate(&snap)
		err := ValidateResumable(snap)
		if err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		if !errors.Is(err, ErrNotResumable) {
			t.Fatalf("%s: error not tagged ErrNotResumable: %v", tc.name, err)
		}
	}

	// image-to-video resumes by image index, not prompt cursor
	i2v := base
	i2v.Mode = model.ModeImageToVideo
	i2v.Cursor = 2
	i2v.CurrentImageIndex = 1
	if err := ValidateResumable(i2v); err != nil {
		t.Fatalf("image-to-video should resume by image index: %v", err)
	}
}

func TestStore_QueueRoundTrip(t *testing.T) {
	store := New(t.TempDir())

	images := []QueuedImage{
		{ID: "img-1", Name: "sunset.jpg", Data: "data:image/jpeg;base64,AAAA"},
		{ID: "img-2", Name: "ocean.png", Data: "data:image/png;base64,BBBB"},
	}
	if err := store.SaveQueue(images); err != nil {
		t.Fatalf("save queue: %v", err)
	}

	loaded, found, err := store.LoadQueue()
	if err != nil || !found {
		t.Fatalf("load queue: found=%v err=%v", found, err)
	}
	if len(loaded) != 2 || loaded[0].ID != "img-1" || loaded[1].Name != "ocean.png" {
		t.Fatalf("queue mismatch: %+v", loaded)
	}

	if err := store.ClearQueue(); err != nil {
		t.Fatalf("clear queue: %v", err)
	}
	if _, found, _ := store.LoadQueue(); found {
		t.Fatalf("queue survived clear")
	}
}

func TestWriteBytes_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := WriteBytes(path, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("write bytes: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, ".impilot-tmp-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}
