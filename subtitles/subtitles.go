package subtitles

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"viral-shorts-pipeline/render"
	"viral-shorts-pipeline/types"
)

// Timestamp renders seconds in the SRT HH:MM:SS,mmm form.
func Timestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int(sec*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// WriteSRT builds a subtitle file from segment timings. texts overrides
// segment text per index when non-empty, which is how translated tracks
// reuse the original timings.
func WriteSRT(path string, segments []types.Segment, texts []string, maxCharsPerLine int) error {
	if maxCharsPerLine <= 0 {
		maxCharsPerLine = 42
	}
	var b strings.Builder
	index := 1
	for i, seg := range segments {
		text := seg.Text
		if i < len(texts) && texts[i] != "" {
			text = texts[i]
		}
		text = strings.TrimSpace(text)
		if text == "" || seg.EndSec <= seg.StartSec {
			continue
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			index, Timestamp(seg.StartSec), Timestamp(seg.EndSec), wrap(text, maxCharsPerLine))
		index++
	}
	if index == 1 {
		return fmt.Errorf("no usable segments for subtitles")
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// wrap breaks text into subtitle lines without splitting words.
func wrap(text string, width int) string {
	words := strings.Fields(text)
	var lines []string
	var line strings.Builder
	for _, w := range words {
		if line.Len() > 0 && line.Len()+1+len(w) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(w)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// Burn renders the subtitles into the video. Styling follows the usual
// shorts look: bold white with a heavy outline, centered low.
func Burn(ctx context.Context, r render.Runner, video, srt, dst string, fontSize int) error {
	if fontSize <= 0 {
		fontSize = 16
	}
	style := fmt.Sprintf("FontSize=%d,Bold=1,PrimaryColour=&HFFFFFF&,OutlineColour=&H000000&,Outline=2,Alignment=2,MarginV=60", fontSize)
	filter := fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(srt), style)
	err := r.Run(ctx, "ffmpeg", "-y",
		"-i", video,
		"-vf", filter,
		"-c:v", "libx264", "-preset", "veryfast",
		"-c:a", "copy",
		dst,
	)
	if err != nil {
		return fmt.Errorf("burn subtitles: %w", err)
	}
	log.Info().Str("stage", "subtitles").Str("output", dst).Msg("subtitles burned")
	return nil
}

// escapeFilterPath quotes a path for use inside an ffmpeg filter string.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, `:`, `\:`)
	p = strings.ReplaceAll(p, `'`, `\'`)
	return p
}
