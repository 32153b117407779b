package capture

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testDataURL(t *testing.T, payload []byte) string {
	t.Helper()
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(payload)
}

func TestDiskSink_WritesMediaAndSidecar(t *testing.T) {
	dir := t.TempDir()
	sink := NewDiskSink(dir, zerolog.Nop())

	payload := []byte("jpeg-bytes")
	err := sink.Download(Request{
		URL:        testDataURL(t, payload),
		Filename:   "sunset_1700000000000.jpg",
		Kind:       "image",
		PromptText: "sunset over the ocean",
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "sunset_1700000000000.jpg"))
	if err != nil {
		t.Fatalf("read media: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("media payload mismatch: %q", got)
	}

	txt, err := os.ReadFile(filepath.Join(dir, "sunset_1700000000000.txt"))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if string(txt) != "sunset over the ocean" {
		t.Fatalf("sidecar mismatch: %q", txt)
	}
}

func TestDiskSink_UniquifiesCollidingNames(t *testing.T) {
	dir := t.TempDir()
	sink := NewDiskSink(dir, zerolog.Nop())

	for i := 0; i < 3; i++ {
		err := sink.Download(Request{
			URL:      testDataURL(t, []byte{byte(i)}),
			Filename: "cat_1700000000000.jpg",
			Kind:     "image",
		})
		if err != nil {
			t.Fatalf("download %d: %v", i, err)
		}
	}

	for _, name := range []string{
		"cat_1700000000000.jpg",
		"cat_1700000000000 (1).jpg",
		"cat_1700000000000 (2).jpg",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
}

func TestDiskSink_SubfolderAndUnknownScheme(t *testing.T) {
	dir := t.TempDir()
	sink := NewDiskSink(dir, zerolog.Nop())

	err := sink.Download(Request{
		URL:      testDataURL(t, []byte("x")),
		Filename: "renders/cat_1.jpg",
		Kind:     "image",
	})
	if err != nil {
		t.Fatalf("download into subfolder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "renders", "cat_1.jpg")); err != nil {
		t.Fatalf("expected subfolder file: %v", err)
	}

	err = sink.Download(Request{URL: "blob:https://grok.com/abc", Filename: "x.mp4", Kind: "video"})
	if err == nil {
		t.Fatalf("expected error for unresolvable blob URL")
	}
}
