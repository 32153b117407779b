package model

import "strings"

const (
	DefaultDelaySeconds       = 45
	DefaultFixedRatio         = "3:2"
	DefaultDownloadMultiCount = 4
	DefaultBreakPrompts       = 90
	DefaultBreakMinutesMin    = 3
	DefaultBreakMinutesMax    = 3
	DefaultVideoDuration      = "6s"
)

// Settings carries the per-run knobs. Zero values are filled in by
// Normalized; callers should always go through it before use.
type Settings struct {
	DelaySeconds int `json:"delay_seconds"`

	RandomizeRatio bool     `json:"randomize_ratio"`
	AspectRatios   []string `json:"aspect_ratios,omitempty"`
	FixedRatio     string   `json:"fixed_ratio"`

	UpscaleVideos     bool   `json:"upscale_videos"`
	AutoDownload      bool   `json:"auto_download"`
	DownloadAllImages bool   `json:"download_all_images"`
	// Per-prompt cap on how many gallery images a bulk sweep may save.
	DownloadMultiCount int    `json:"download_multi_count"`
	SavePromptText     bool   `json:"save_prompt_text"`
	DownloadSubfolder  string `json:"download_subfolder,omitempty"`

	BreakEnabled    bool `json:"break_enabled"`
	BreakPrompts    int  `json:"break_prompts"`
	BreakMinutesMin int  `json:"break_minutes_min"`
	BreakMinutesMax int  `json:"break_minutes_max"`

	VideoDuration string `json:"video_duration"`
}

func DefaultSettings() Settings {
	return Settings{
		DelaySeconds:       DefaultDelaySeconds,
		FixedRatio:         DefaultFixedRatio,
		AutoDownload:       true,
		DownloadMultiCount: DefaultDownloadMultiCount,
		BreakPrompts:       DefaultBreakPrompts,
		BreakMinutesMin:    DefaultBreakMinutesMin,
		BreakMinutesMax:    DefaultBreakMinutesMax,
		VideoDuration:      DefaultVideoDuration,
	}
}

// Normalized returns a copy with invalid or missing values replaced by
// defaults. It never mutates the receiver.
func (s Settings) Normalized() Settings {
	out := s

	out.DelaySeconds = firstPositive(out.DelaySeconds, DefaultDelaySeconds)
	out.DownloadMultiCount = firstPositive(out.DownloadMultiCount, DefaultDownloadMultiCount)
	out.BreakPrompts = firstPositive(out.BreakPrompts, DefaultBreakPrompts)
	out.BreakMinutesMin = firstPositive(out.BreakMinutesMin, DefaultBreakMinutesMin)
	out.BreakMinutesMax = firstPositive(out.BreakMinutesMax, DefaultBreakMinutesMax)
	if out.BreakMinutesMax < out.BreakMinutesMin {
		out.BreakMinutesMax = out.BreakMinutesMin
	}

	out.FixedRatio = strings.TrimSpace(out.FixedRatio)
	if out.FixedRatio == "" {
		out.FixedRatio = DefaultFixedRatio
	}
	out.VideoDuration = strings.TrimSpace(out.VideoDuration)
	if out.VideoDuration == "" {
		out.VideoDuration = DefaultVideoDuration
	}
	out.DownloadSubfolder = strings.Trim(strings.TrimSpace(out.DownloadSubfolder), "/\\")

	ratios := make([]string, 0, len(out.AspectRatios))
	for _, r := range out.AspectRatios {
		r = strings.TrimSpace(r)
		if r != "" {
			ratios = append(ratios, r)
		}
	}
	out.AspectRatios = ratios
	if out.RandomizeRatio && len(out.AspectRatios) == 0 {
		out.RandomizeRatio = false
	}

	return out
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
