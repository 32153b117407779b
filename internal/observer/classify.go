package observer

import "strings"

// Generated galleries render a PNG placeholder first and swap in a
// JPEG or WebP once the real image is ready. Anything under this size
// is treated as a thumbnail, not a finished render.
const minFinalImageKB = 100.0

// ImageClass is the verdict on one data URL found in the results area.
type ImageClass struct {
	Placeholder bool
	JPEG        bool
	WebP        bool
	SizeKB      float64
}

// Final reports whether the image is a finished render worth saving.
func (c ImageClass) Final() bool {
	return (c.JPEG || c.WebP) && c.SizeKB >= minFinalImageKB
}

// ClassifyDataURL inspects a data URL's media type and payload size.
// The size is estimated from the base64 length (3 payload bytes per 4
// encoded characters), which is exact enough for the threshold check.
func ClassifyDataURL(src string) ImageClass {
	var c ImageClass
	if !strings.HasPrefix(src, "data:image/") {
		return c
	}

	meta, payload, found := strings.Cut(src, ",")
	if !found {
		return c
	}

	switch {
	case strings.HasPrefix(meta, "data:image/png"):
		c.Placeholder = true
	case strings.HasPrefix(meta, "data:image/jpeg"), strings.HasPrefix(meta, "data:image/jpg"):
		c.JPEG = true
	case strings.HasPrefix(meta, "data:image/webp"):
		c.WebP = true
	}

	c.SizeKB = float64(len(payload)) * 0.75 / 1024.0
	return c
}
