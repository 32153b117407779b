package capture

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	maxBaseNameLen   = 100
	fallbackBaseName = "image"
)

var (
	illegalChars  = regexp.MustCompile(`[\\/:*?"<>|]`)
	unsafeChars   = regexp.MustCompile(`[^a-zA-Z0-9_\s-]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// SanitizeBaseName turns a prompt into a filesystem-safe file stem:
// path separators and other illegal characters are removed, remaining
// text is restricted to word characters, whitespace runs collapse to a
// single underscore, and the result is capped at 100 characters.
func SanitizeBaseName(prompt string) string {
	base := illegalChars.ReplaceAllString(prompt, "")
	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(base)
	base = whitespaceRun.ReplaceAllString(base, "_")
	if len(base) > maxBaseNameLen {
		base = base[:maxBaseNameLen]
	}
	if base == "" {
		return fallbackBaseName
	}
	return base
}

// ExtensionFor derives the file extension from the media kind and the
// source URL. Videos are always mp4; images take the data URL subtype
// with the jpeg->jpg and svg+xml->svg conventions, defaulting to png.
func ExtensionFor(url, kind string) string {
	if kind == "video" {
		return "mp4"
	}
	if rest, ok := strings.CutPrefix(url, "data:image/"); ok {
		subtype := rest
		if i := strings.IndexAny(subtype, ";,"); i >= 0 {
			subtype = subtype[:i]
		}
		switch subtype {
		case "jpeg":
			return "jpg"
		case "svg+xml":
			return "svg"
		case "":
			return "png"
		default:
			return subtype
		}
	}
	return "png"
}

// BuildFilename assembles the download-relative file name:
// [subfolder/]<sanitized>_<unix-ms>.<ext>.
func BuildFilename(subfolder, prompt string, timestampMS int64, url, kind string) string {
	name := fmt.Sprintf("%s_%d.%s", SanitizeBaseName(prompt), timestampMS, ExtensionFor(url, kind))
	if subfolder != "" {
		return path.Join(subfolder, name)
	}
	return name
}
