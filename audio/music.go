package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/render"
	"viral-shorts-pipeline/session"
)

var musicExtensions = map[string]bool{".mp3": true, ".wav": true, ".m4a": true, ".ogg": true}

// PickTrack resolves a music file for the style: explicit mapping first,
// then a filename containing the style, then the first track in the dir.
func PickTrack(cfg config.MusicConfig, style string) string {
	if cfg.Dir == "" {
		return ""
	}
	if name, ok := cfg.StyleTracks[strings.ToLower(style)]; ok {
		path := filepath.Join(cfg.Dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Warn().Str("stage", "music").Str("track", name).Msg("configured style track missing, scanning dir")
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return ""
	}
	var tracks []string
	for _, e := range entries {
		if e.IsDir() || !musicExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		tracks = append(tracks, e.Name())
	}
	if len(tracks) == 0 {
		return ""
	}
	sort.Strings(tracks)
	lowerStyle := strings.ToLower(style)
	for _, name := range tracks {
		if strings.Contains(strings.ToLower(name), lowerStyle) {
			return filepath.Join(cfg.Dir, name)
		}
	}
	return filepath.Join(cfg.Dir, tracks[0])
}

// PrepareBed trims or loops the track to the narration length. Volume and
// fades are applied later at mix time.
func PrepareBed(ctx context.Context, r render.Runner, src, dst string, durSec float64) error {
	srcDur, err := render.ProbeDuration(ctx, r, src)
	if err != nil {
		srcDur = durSec
	}
	args := []string{"-y"}
	if srcDur < durSec-0.05 {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args,
		"-i", src,
		"-t", strconv.FormatFloat(durSec, 'f', 3, 64),
		"-c:a", "libmp3lame", "-q:a", "5",
		dst,
	)
	return r.Run(ctx, "ffmpeg", args...)
}

// MusicBed picks and prepares the background track for the session.
// An empty path with nil error means no music, which is not a failure.
func MusicBed(ctx context.Context, r render.Runner, cfg config.MusicConfig, sess *session.Session, style string, durSec float64) (string, error) {
	if !cfg.Enabled {
		return "", nil
	}
	src := PickTrack(cfg, style)
	if src == "" {
		log.Warn().Str("stage", "music").Str("style", style).Msg("no music track available, continuing without music")
		return "", nil
	}
	dst := sess.MusicBedPath()
	if err := PrepareBed(ctx, r, src, dst, durSec); err != nil {
		return "", fmt.Errorf("prepare music bed from %s: %w", filepath.Base(src), err)
	}
	log.Info().Str("stage", "music").Str("track", filepath.Base(src)).Msg("music bed ready")
	return dst, nil
}
