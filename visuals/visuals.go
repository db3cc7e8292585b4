package visuals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"viral-shorts-pipeline/providers"
	"viral-shorts-pipeline/render"
	"viral-shorts-pipeline/session"
	"viral-shorts-pipeline/types"
)

var videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".webm": true, ".mkv": true}

// BlackClipPlaceholder returns the visual chain's terminal fallback: a
// deterministic black clip sized for the platform.
func BlackClipPlaceholder(r render.Runner, p types.Platform) providers.PlaceholderFunc {
	return func(ctx context.Context, req providers.Request) (string, error) {
		dur := req.DurationSec
		if dur <= 0 {
			dur = 3
		}
		if err := render.BlackClip(ctx, r, req.OutPath, dur, p); err != nil {
			return "", err
		}
		return req.OutPath, nil
	}
}

// Assembler runs the visual chain per segment and normalizes whatever
// comes back (clip, still or placeholder) into a platform-sized clip.
type Assembler struct {
	chain          *providers.Chain
	runner         render.Runner
	platform       types.Platform
	requestTimeout time.Duration
}

func NewAssembler(chain *providers.Chain, runner render.Runner, platform types.Platform, timeoutSec int) *Assembler {
	return &Assembler{
		chain:          chain,
		runner:         runner,
		platform:       platform,
		requestTimeout: time.Duration(timeoutSec) * time.Second,
	}
}

// SegmentClips is the assembled visual track, one clip per segment.
type SegmentClips struct {
	Files        []string
	Placeholders int
}

// Build produces one normalized clip per script segment and records the
// clip path back onto the segment.
func (a *Assembler) Build(ctx context.Context, sess *session.Session, script *types.Script, style string) (*SegmentClips, error) {
	if len(script.Segments) == 0 {
		return nil, fmt.Errorf("visuals: script has no segments")
	}
	out := &SegmentClips{Files: make([]string, 0, len(script.Segments))}
	for i := range script.Segments {
		seg := &script.Segments[i]
		prompt := seg.VisualPrompt
		if prompt == "" {
			prompt = seg.Text
		}
		req := providers.Request{
			Prompt:      prompt,
			Style:       style,
			DurationSec: seg.DurationSec,
			AspectRatio: a.platform.AspectRatio,
			OutPath:     sess.RawVisualPath(i, ".mp4"),
			Timeout:     a.requestTimeout,
		}
		res, err := a.chain.Generate(ctx, req)
		if err != nil {
			return nil, err
		}

		clip := sess.ClipPath(i)
		if res.Placeholder {
			// Placeholders are already final clips; moving instead of
			// re-encoding keeps them byte-identical across runs.
			if err := moveFile(res.Path, clip); err != nil {
				return nil, fmt.Errorf("segment %d: %w", i, err)
			}
			out.Placeholders++
		} else if videoExtensions[strings.ToLower(filepath.Ext(res.Path))] {
			if err := render.PrepareClip(ctx, a.runner, res.Path, clip, seg.DurationSec, a.platform); err != nil {
				return nil, fmt.Errorf("segment %d: normalize clip: %w", i, err)
			}
		} else {
			if err := render.StillToClip(ctx, a.runner, res.Path, clip, seg.DurationSec, a.platform); err != nil {
				return nil, fmt.Errorf("segment %d: animate still: %w", i, err)
			}
		}

		seg.ClipFile = clip
		out.Files = append(out.Files, clip)
		log.Info().Str("stage", "visuals").Int("segment", i).Str("provider", res.Provider).
			Bool("placeholder", res.Placeholder).Msg("segment clip ready")
	}
	return out, nil
}

func moveFile(src, dst string) error {
	if src == dst {
		return nil
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
