package config

import (
	"fmt"

	"github.com/yokitheyo/gamdlbot/internal/model"
)

// Presets is the ordered preset table shown to users.
type Presets []model.Preset

func DefaultPresets() Presets {
	return Presets{
		{ID: "default", Label: "Default", Args: []string{}},
		{ID: "audio_aac256", Label: "Audio (AAC 256kbps)", Args: []string{"--codec-song", "aac-legacy"}},
		{ID: "video_1080p", Label: "Video 1080p", Args: []string{"--quality-post", "best", "--codec-music-video", "h264,h265", "--resolution", "1080p"}},
		{ID: "video_4k", Label: "Video 4K", Args: []string{"--codec-music-video", "h265,h264", "--resolution", "2160p"}},
	}
}

// Lookup returns a copy of the preset so callers cannot mutate the table.
func (p Presets) Lookup(id string) (model.Preset, bool) {
	for _, pr := range p {
		if pr.ID == id {
			pr.Args = append([]string(nil), pr.Args...)
			return pr, true
		}
	}
	return model.Preset{}, false
}

// Label falls back to the id for unknown presets.
func (p Presets) Label(id string) string {
	if pr, ok := p.Lookup(id); ok && pr.Label != "" {
		return pr.Label
	}
	return id
}

func (p Presets) validate() error {
	seen := make(map[string]bool, len(p))
	for _, pr := range p {
		if pr.ID == "" {
			return fmt.Errorf("preset with empty id")
		}
		if seen[pr.ID] {
			return fmt.Errorf("duplicate preset %q", pr.ID)
		}
		seen[pr.ID] = true
	}
	return nil
}
