package runstore

import (
	"testing"

	"imagine-pilot/internal/model"
)

func TestSettingsRoundTrip(t *testing.T) {
	store := New(t.TempDir())

	settings, stored, err := store.LoadSettings()
	if err != nil {
		t.Fatalf("load before save: %v", err)
	}
	if stored {
		t.Fatalf("stored = true before anything was saved")
	}
	if settings.DelaySeconds != model.DefaultDelaySeconds {
		t.Fatalf("default delay = %d, want %d", settings.DelaySeconds, model.DefaultDelaySeconds)
	}

	settings.DelaySeconds = 60
	settings.UpscaleVideos = true
	settings.AspectRatios = []string{"16:9"}
	settings.RandomizeRatio = true
	if err := store.SaveSettings(settings); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, stored, err := store.LoadSettings()
	if err != nil {
		t.Fatalf("load after save: %v", err)
	}
	if !stored {
		t.Fatalf("stored = false after save")
	}
	if loaded.DelaySeconds != 60 || !loaded.UpscaleVideos || !loaded.RandomizeRatio {
		t.Fatalf("loaded settings = %+v", loaded)
	}
}

func TestSaveSettingsNormalizes(t *testing.T) {
	store := New(t.TempDir())
	if err := store.SaveSettings(model.Settings{DelaySeconds: -5, FixedRatio: "  "}); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, _, err := store.LoadSettings()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.DelaySeconds != model.DefaultDelaySeconds {
		t.Fatalf("delay = %d, want normalized default", loaded.DelaySeconds)
	}
	if loaded.FixedRatio != model.DefaultFixedRatio {
		t.Fatalf("fixed ratio = %q, want %q", loaded.FixedRatio, model.DefaultFixedRatio)
	}
}
