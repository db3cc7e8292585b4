package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"viral-shorts-pipeline/types"
)

// Fixed session subdirectories.
const (
	DirFinal    = "final_output"
	DirClips    = "video_clips"
	DirAudio    = "audio_files"
	DirMetadata = "metadata"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Session owns one run's artifact directory. Every artifact path flows
// through it, so runs with different IDs can never write into each other.
// Sessions are never deleted by the program.
type Session struct {
	ID   string
	Root string
}

// NewID returns a fresh session ID: timestamp plus a short uuid.
func NewID() string {
	return time.Now().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

// New creates the session tree under baseDir. An empty id generates one; a
// supplied id must be a plain directory name (no separators, no dot paths).
func New(baseDir, id string) (*Session, error) {
	if id == "" {
		id = NewID()
	} else if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("invalid session id %q: letters, digits, - and _ only", id)
	}
	root := filepath.Join(baseDir, id)
	for _, sub := range []string{DirFinal, DirClips, DirAudio, DirMetadata} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	return &Session{ID: id, Root: root}, nil
}

// Open returns an existing session without touching the filesystem layout.
func Open(baseDir, id string) (*Session, error) {
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("invalid session id %q", id)
	}
	root := filepath.Join(baseDir, id)
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return &Session{ID: id, Root: root}, nil
}

// FinalVideo is the composed output path for a platform.
func (s *Session) FinalVideo(platform string) string {
	return filepath.Join(s.Root, DirFinal, fmt.Sprintf("%s_final.mp4", platform))
}

// ClipsDir holds segment clips and composition intermediates.
func (s *Session) ClipsDir() string { return filepath.Join(s.Root, DirClips) }

// AudioDir holds narration segments and the music bed.
func (s *Session) AudioDir() string { return filepath.Join(s.Root, DirAudio) }

// ClipPath is the produced clip for one script segment.
func (s *Session) ClipPath(index int) string {
	return filepath.Join(s.Root, DirClips, fmt.Sprintf("segment_%03d.mp4", index))
}

// RawVisualPath holds a provider's raw output (e.g. a still image) before
// it is turned into a clip.
func (s *Session) RawVisualPath(index int, ext string) string {
	return filepath.Join(s.Root, DirClips, fmt.Sprintf("segment_%03d_raw%s", index, ext))
}

// SegmentAudioPath is one segment's synthesized narration.
func (s *Session) SegmentAudioPath(lang string, index int) string {
	return filepath.Join(s.Root, DirAudio, fmt.Sprintf("%s_segment_%03d.mp3", lang, index))
}

// NarrationPath is the concatenated narration track for a language.
func (s *Session) NarrationPath(lang string) string {
	return filepath.Join(s.Root, DirAudio, fmt.Sprintf("narration_%s.mp3", lang))
}

// MusicBedPath is the prepared background track.
func (s *Session) MusicBedPath() string {
	return filepath.Join(s.Root, DirAudio, "music_bed.mp3")
}

// MixedAudioPath is the narration+music mix fed into the final mux.
func (s *Session) MixedAudioPath() string {
	return filepath.Join(s.Root, DirAudio, "mixed.m4a")
}

// SubtitlePath is the SRT file for a language.
func (s *Session) SubtitlePath(lang string) string {
	return filepath.Join(s.Root, DirMetadata, fmt.Sprintf("subtitles_%s.srt", lang))
}

// MetadataPath is a named file in the metadata directory.
func (s *Session) MetadataPath(name string) string {
	return filepath.Join(s.Root, DirMetadata, name)
}

func (s *Session) ScriptPath() string       { return s.MetadataPath("script.json") }
func (s *Session) AttemptLogPath() string   { return s.MetadataPath("generation_log.json") }
func (s *Session) DiscussionPath() string   { return s.MetadataPath("discussion.json") }
func (s *Session) DistributionPath() string { return s.MetadataPath("distribution.json") }

// SaveJSON persists v as indented JSON.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteSummary persists the run summary as JSON and as a readable
// markdown digest next to it.
func (s *Session) WriteSummary(sum *types.Summary) error {
	if err := SaveJSON(s.MetadataPath("summary.json"), sum); err != nil {
		return fmt.Errorf("write summary.json: %w", err)
	}
	if err := os.WriteFile(s.MetadataPath("summary.md"), []byte(renderSummaryMarkdown(sum)), 0o644); err != nil {
		return fmt.Errorf("write summary.md: %w", err)
	}
	return nil
}

func renderSummaryMarkdown(sum *types.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sum.SessionID)
	fmt.Fprintf(&b, "- **Mission**: %s\n", sum.Mission)
	fmt.Fprintf(&b, "- **Platform**: %s\n", sum.Platform)
	if sum.Style != "" {
		fmt.Fprintf(&b, "- **Style**: %s\n", sum.Style)
	}
	fmt.Fprintf(&b, "- **Target duration**: %.0fs\n", sum.DurationSec)
	fmt.Fprintf(&b, "- **Cheap mode**: %v\n", sum.CheapMode)
	if len(sum.Languages) > 0 {
		fmt.Fprintf(&b, "- **Languages**: %s\n", strings.Join(sum.Languages, ", "))
	}
	if sum.Title != "" {
		fmt.Fprintf(&b, "- **Title**: %s\n", sum.Title)
	}
	b.WriteString("\n## Providers\n\n")
	for _, modality := range []string{"text", "visual", "audio"} {
		if provider, ok := sum.Providers[modality]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", modality, provider)
		}
	}
	if len(sum.Placeholders) > 0 {
		fmt.Fprintf(&b, "\nPlaceholders substituted for: %s\n", strings.Join(sum.Placeholders, ", "))
	}
	if sum.FinalVideo != "" {
		fmt.Fprintf(&b, "\n## Output\n\n- %s\n", sum.FinalVideo)
	}
	for lang, path := range sum.Narrations {
		fmt.Fprintf(&b, "- narration (%s): %s\n", lang, path)
	}
	if sum.YouTubeVideoID != "" {
		fmt.Fprintf(&b, "\nUploaded: https://youtu.be/%s\n", sum.YouTubeVideoID)
	}
	fmt.Fprintf(&b, "\nStarted %s", sum.StartedAt)
	if sum.FinishedAt != "" {
		fmt.Fprintf(&b, ", finished %s", sum.FinishedAt)
	}
	b.WriteString("\n")
	return b.String()
}
