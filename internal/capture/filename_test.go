package capture

import (
	"strings"
	"testing"
)

func TestSanitizeBaseName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"A Cat/Dog?", "A_CatDog"},
		{"sunset over the ocean", "sunset_over_the_ocean"},
		{`a:b*c?d"e<f>g|h`, "abcdefgh"},
		{"  padded  prompt  ", "padded_prompt"},
		{"émoji ☀ prompt", "moji_prompt"},
		{"///???", "image"},
		{"", "image"},
		{"under_score-dash kept", "under_score-dash_kept"},
	}

	for _, tc := range cases {
		if got := SanitizeBaseName(tc.in); got != tc.want {
			t.Fatalf("SanitizeBaseName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeBaseName_CapsLength(t *testing.T) {
	got := SanitizeBaseName(strings.Repeat("a", 250))
	if len(got) != 100 {
		t.Fatalf("len = %d, want 100", len(got))
	}
}

func TestExtensionFor(t *testing.T) {
	cases := []struct {
		url  string
		kind string
		want string
	}{
		{"blob:https://grok.com/abc", "video", "mp4"},
		{"data:image/jpeg;base64,AAAA", "image", "jpg"},
		{"data:image/webp;base64,AAAA", "image", "webp"},
		{"data:image/svg+xml;base64,AAAA", "image", "svg"},
		{"data:image/png;base64,AAAA", "image", "png"},
		{"https://example.com/picture", "image", "png"},
	}

	for _, tc := range cases {
		if got := ExtensionFor(tc.url, tc.kind); got != tc.want {
			t.Fatalf("ExtensionFor(%q, %q) = %q, want %q", tc.url, tc.kind, got, tc.want)
		}
	}
}

func TestBuildFilename(t *testing.T) {
	got := BuildFilename("", "A Cat/Dog?", 1700000000000, "data:image/png;base64,AAAA", "image")
	if got != "A_CatDog_1700000000000.png" {
		t.Fatalf("filename = %q", got)
	}

	got = BuildFilename("renders", "sunset", 1700000000000, "blob:x", "video")
	if got != "renders/sunset_1700000000000.mp4" {
		t.Fatalf("filename with subfolder = %q", got)
	}
}
