package types

import (
	"fmt"
	"sort"
	"strings"
)

// Platform describes a target distribution surface and its rendering rules.
type Platform struct {
	Name        string
	Width       int
	Height      int
	AspectRatio string
	MaxDuration float64
	FPS         int
}

var platforms = map[string]Platform{
	"youtube": {
		Name:        "youtube",
		Width:       1080,
		Height:      1920,
		AspectRatio: "9:16",
		MaxDuration: 60,
		FPS:         30,
	},
	"tiktok": {
		Name:        "tiktok",
		Width:       1080,
		Height:      1920,
		AspectRatio: "9:16",
		MaxDuration: 60,
		FPS:         30,
	},
	"instagram": {
		Name:        "instagram",
		Width:       1080,
		Height:      1920,
		AspectRatio: "9:16",
		MaxDuration: 90,
		FPS:         30,
	},
}

// PlatformByName resolves a platform by its CLI name.
func PlatformByName(name string) (Platform, error) {
	p, ok := platforms[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Platform{}, fmt.Errorf("unknown platform %q (supported: %s)", name, strings.Join(PlatformNames(), ", "))
	}
	return p, nil
}

// PlatformNames returns the supported platform names, sorted.
func PlatformNames() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Request is the immutable per-run brief, assembled once from CLI flags,
// config and environment before the pipeline starts.
type Request struct {
	Mission     string
	Platform    Platform
	DurationSec float64
	Style       string
	Voice       string
	Languages   []string // first entry is the primary language
	SessionID   string
	CheapMode   bool
	Subtitles   bool
	Music       bool
	Upload      bool
}

// PrimaryLanguage returns the language that drives the final video.
func (r Request) PrimaryLanguage() string {
	if len(r.Languages) == 0 {
		return "en"
	}
	return r.Languages[0]
}

// ExtraLanguages returns the non-primary languages, if any.
func (r Request) ExtraLanguages() []string {
	if len(r.Languages) < 2 {
		return nil
	}
	return r.Languages[1:]
}

// Script is the narration plan produced by the script writer.
type Script struct {
	Title    string    `json:"title"`
	Hook     string    `json:"hook"`
	CTA      string    `json:"cta"`
	Segments []Segment `json:"segments"`
	TotalSec float64   `json:"total_sec"`
}

// Segment is one narrated beat of the script with its visual brief.
type Segment struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	VisualPrompt string  `json:"visual_prompt"`
	Mood         string  `json:"mood,omitempty"`
	StartSec     float64 `json:"start_sec"`
	EndSec       float64 `json:"end_sec"`
	DurationSec  float64 `json:"duration_sec"`
	AudioFile    string  `json:"audio_file,omitempty"`
	ClipFile     string  `json:"clip_file,omitempty"`
}

// Distribution is the platform copy generated for a finished video.
type Distribution struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Hashtags        []string `json:"hashtags"`
	ThumbnailPrompt string   `json:"thumbnail_prompt,omitempty"`
}

// Summary records what a run produced and which provider served each
// modality. It is written to the session's metadata directory as both JSON
// and markdown.
type Summary struct {
	SessionID      string            `json:"session_id"`
	Mission        string            `json:"mission"`
	Platform       string            `json:"platform"`
	Style          string            `json:"style,omitempty"`
	DurationSec    float64           `json:"duration_sec"`
	CheapMode      bool              `json:"cheap_mode"`
	Languages      []string          `json:"languages,omitempty"`
	Title          string            `json:"title,omitempty"`
	Providers      map[string]string `json:"providers"`
	Placeholders   []string          `json:"placeholders,omitempty"`
	FinalVideo     string            `json:"final_video,omitempty"`
	Narrations     map[string]string `json:"narrations,omitempty"`
	SubtitleFiles  map[string]string `json:"subtitle_files,omitempty"`
	ConsensusScore float64           `json:"consensus_score,omitempty"`
	Distribution   *Distribution     `json:"distribution,omitempty"`
	YouTubeVideoID string            `json:"youtube_video_id,omitempty"`
	StartedAt      string            `json:"started_at"`
	FinishedAt     string            `json:"finished_at,omitempty"`
}

// TrendingTopic is a scored content suggestion from the research sources.
type TrendingTopic struct {
	Title       string   `json:"title"`
	Source      string   `json:"source"`
	SourceURL   string   `json:"source_url"`
	Score       int      `json:"score"`
	PublishedAt string   `json:"published_at,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Mission     string   `json:"mission"`
}
