package observer

import (
	"strings"
	"testing"
)

func dataURL(mediaType string, payloadLen int) string {
	return "data:image/" + mediaType + ";base64," + strings.Repeat("A", payloadLen)
}

func TestClassifyDataURL(t *testing.T) {
	// 100 KB threshold in base64 characters: 100*1024/0.75
	bigPayload := 140000
	smallPayload := 40000

	cases := []struct {
		name        string
		src         string
		placeholder bool
		final       bool
	}{
		{"png placeholder", dataURL("png", bigPayload), true, false},
		{"large jpeg", dataURL("jpeg", bigPayload), false, true},
		{"large webp", dataURL("webp", bigPayload), false, true},
		{"small jpeg thumbnail", dataURL("jpeg", smallPayload), false, false},
		{"not a data url", "https://example.com/image.jpg", false, false},
		{"malformed data url", "data:image/jpeg;base64", false, false},
	}

	for _, tc := range cases {
		got := ClassifyDataURL(tc.src)
		if got.Placeholder != tc.placeholder {
			t.Fatalf("%s: placeholder = %v, want %v", tc.name, got.Placeholder, tc.placeholder)
		}
		if got.Final() != tc.final {
			t.Fatalf("%s: final = %v, want %v (class %+v)", tc.name, got.Final(), tc.final, got)
		}
	}
}

func TestClassifyDataURL_SizeEstimate(t *testing.T) {
	// 4096 base64 chars decode to 3072 bytes = 3 KB
	got := ClassifyDataURL(dataURL("jpeg", 4096))
	if got.SizeKB != 3.0 {
		t.Fatalf("size = %v KB, want 3.0", got.SizeKB)
	}
}
