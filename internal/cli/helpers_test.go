package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imagine-pilot/internal/model"
)

func TestReadPromptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.txt")
	content := "a cat in the rain\n\n# commented out\n  a dog on a boat  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}

	prompts, err := readPromptLines(path)
	if err != nil {
		t.Fatalf("readPromptLines: %v", err)
	}
	want := []string{"a cat in the rain", "a dog on a boat"}
	if len(prompts) != len(want) {
		t.Fatalf("prompts = %v, want %v", prompts, want)
	}
	for i := range want {
		if prompts[i] != want[i] {
			t.Fatalf("prompt[%d] = %q, want %q", i, prompts[i], want[i])
		}
	}
}

func TestParseRatioList(t *testing.T) {
	got := parseRatioList(" 3:2, 16:9;3:2\n1:1 ")
	want := []string{"3:2", "16:9", "1:1"}
	if len(got) != len(want) {
		t.Fatalf("ratios = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ratio[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSettingsFlagsApplyOverrides(t *testing.T) {
	base := model.DefaultSettings()
	sf := &settingsFlags{
		Delay:        -1,
		Ratios:       "16:9,9:16",
		Upscale:      "yes",
		MultiCount:   -1,
		BreakPrompts: -1,
		BreakMin:     -1,
		BreakMax:     -1,
		Duration:     "10s",
	}
	out, err := sf.apply(base)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.DelaySeconds != base.DelaySeconds {
		t.Fatalf("delay changed to %d despite sentinel", out.DelaySeconds)
	}
	if !out.RandomizeRatio || len(out.AspectRatios) != 2 {
		t.Fatalf("ratio pool not applied: %+v", out)
	}
	if !out.UpscaleVideos {
		t.Fatalf("upscale flag not applied")
	}
	if out.VideoDuration != "10s" {
		t.Fatalf("duration = %q, want 10s", out.VideoDuration)
	}
}

func TestSettingsFlagsApplyRejectsBadValues(t *testing.T) {
	base := model.DefaultSettings()
	sf := &settingsFlags{Delay: -1, MultiCount: -1, BreakPrompts: -1, BreakMin: -1, BreakMax: -1, Upscale: "maybe"}
	if _, err := sf.apply(base); err == nil || !strings.Contains(err.Error(), "--upscale") {
		t.Fatalf("bad upscale value error = %v", err)
	}
	sf = &settingsFlags{Delay: 0, MultiCount: -1, BreakPrompts: -1, BreakMin: -1, BreakMax: -1}
	if _, err := sf.apply(base); err == nil || !strings.Contains(err.Error(), "--delay") {
		t.Fatalf("zero delay error = %v", err)
	}
}

func TestLoadImageQueue(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"b.png":      []byte("png-bytes"),
		"a.jpg":      []byte("jpg-bytes"),
		"notes.txt":  []byte("skip me"),
		"sketch.gif": []byte("unsupported"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	images, err := loadImageQueue(dir)
	if err != nil {
		t.Fatalf("loadImageQueue: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("queued %d images, want 2", len(images))
	}
	if images[0].Name != "a.jpg" || images[1].Name != "b.png" {
		t.Fatalf("queue order = %s, %s", images[0].Name, images[1].Name)
	}
	if !strings.HasPrefix(images[0].Data, "data:image/jpeg;base64,") {
		t.Fatalf("jpeg data URL prefix wrong: %.40s", images[0].Data)
	}
	if images[0].ID == images[1].ID {
		t.Fatalf("image IDs collide: %s", images[0].ID)
	}
}

func TestLoadImageQueueEmptyDir(t *testing.T) {
	if _, err := loadImageQueue(t.TempDir()); err == nil {
		t.Fatalf("expected error for a directory with no images")
	}
}

func TestDirCheck(t *testing.T) {
	check := dirCheck("directory:state", filepath.Join(t.TempDir(), "nested", "state"))
	if !check.OK {
		t.Fatalf("writable nested dir flagged: %s", check.Message)
	}
	if check := dirCheck("directory:state", ""); check.OK {
		t.Fatalf("empty dir passed the check")
	}
}
