package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/types"
)

// TextGenerator is the text capability the script stages depend on.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, out any) error
}

// Narration pacing used for timing estimates.
const wordsPerSecond = 2.5

const writerPrompt = `You are a short-form video scriptwriter who consistently produces viral content.
Write a narration script for the brief below.

BRIEF: %s
PLATFORM: %s (vertical %s, hard cap %.0f seconds)
TARGET DURATION: %.0f seconds
STYLE: %s

Rules:
- Open with a hook that stops the scroll in the first two seconds.
- Exactly %d segments. Each segment is one spoken beat of 1-2 short sentences.
- Every segment needs a "visual_prompt": one concrete cinematic shot description
  (subject, action, camera, lighting). No text overlays in the shot.
- End with a short call to action.
- Plain spoken language. No hashtags, no emoji, no stage directions in "text".

Respond with ONLY valid JSON, no markdown, shaped exactly like:
{
  "title": "working title",
  "hook": "the opening line",
  "cta": "closing call to action",
  "segments": [
    {"text": "spoken narration", "visual_prompt": "shot description", "mood": "one of: energetic, dramatic, calm, funny, mysterious"}
  ]
}`

// Writer turns a mission brief into a timed script with one text call.
type Writer struct {
	cfg *config.Config
	gen TextGenerator
}

// NewWriter creates a script Writer.
func NewWriter(cfg *config.Config, gen TextGenerator) *Writer {
	return &Writer{cfg: cfg, gen: gen}
}

type scriptJSON struct {
	Title    string `json:"title"`
	Hook     string `json:"hook"`
	CTA      string `json:"cta"`
	Segments []struct {
		Text         string `json:"text"`
		VisualPrompt string `json:"visual_prompt"`
		Mood         string `json:"mood"`
	} `json:"segments"`
}

// Run generates the script. A failure here is fatal for the run: there is
// no narration to build anything else from.
func (w *Writer) Run(ctx context.Context, req types.Request) (*types.Script, error) {
	log.Info().Str("stage", "script").Str("platform", req.Platform.Name).Msg("writing script")

	beats := segmentCount(req.DurationSec)
	prompt := fmt.Sprintf(writerPrompt,
		req.Mission,
		req.Platform.Name,
		req.Platform.AspectRatio,
		req.Platform.MaxDuration,
		req.DurationSec,
		req.Style,
		beats,
	)

	tctx, cancel := context.WithTimeout(ctx, time.Duration(w.cfg.Text.TimeoutSec)*time.Second)
	defer cancel()

	var raw scriptJSON
	if err := w.gen.GenerateJSON(tctx, prompt, &raw); err != nil {
		return nil, fmt.Errorf("script generation: %w", err)
	}
	if len(raw.Segments) == 0 {
		return nil, fmt.Errorf("script generation: model returned no segments")
	}

	script := convert(raw, req.DurationSec)
	log.Info().Str("stage", "script").
		Str("title", script.Title).
		Int("segments", len(script.Segments)).
		Float64("total_sec", script.TotalSec).
		Msg("script ready")
	return script, nil
}

// segmentCount picks how many beats fit the target duration, roughly one
// every six seconds.
func segmentCount(durationSec float64) int {
	n := int(durationSec / 6)
	if n < 2 {
		n = 2
	}
	if n > 10 {
		n = 10
	}
	return n
}

// convert estimates per-segment durations from word count, then scales
// them so the total lands on the requested duration. Scaling is clamped so
// narration never has to race or crawl.
func convert(raw scriptJSON, targetSec float64) *types.Script {
	script := &types.Script{
		Title: strings.TrimSpace(raw.Title),
		Hook:  strings.TrimSpace(raw.Hook),
		CTA:   strings.TrimSpace(raw.CTA),
	}

	var estimates []float64
	var total float64
	for _, seg := range raw.Segments {
		est := float64(len(strings.Fields(seg.Text))) / wordsPerSecond
		if est < 2 {
			est = 2
		}
		estimates = append(estimates, est)
		total += est
	}

	scale := 1.0
	if total > 0 && targetSec > 0 {
		scale = targetSec / total
		if scale < 0.5 {
			scale = 0.5
		}
		if scale > 2.0 {
			scale = 2.0
		}
	}

	cursor := 0.0
	for i, seg := range raw.Segments {
		dur := estimates[i] * scale
		script.Segments = append(script.Segments, types.Segment{
			Index:        i,
			Text:         strings.TrimSpace(seg.Text),
			VisualPrompt: strings.TrimSpace(seg.VisualPrompt),
			Mood:         strings.ToLower(strings.TrimSpace(seg.Mood)),
			StartSec:     cursor,
			EndSec:       cursor + dur,
			DurationSec:  dur,
		})
		cursor += dur
	}
	script.TotalSec = cursor
	return script
}

// Retime recomputes segment boundaries after real audio durations are
// known, keeping the script and the narration track in step.
func Retime(script *types.Script, durations []float64) {
	cursor := 0.0
	for i := range script.Segments {
		if i < len(durations) && durations[i] > 0 {
			script.Segments[i].DurationSec = durations[i]
		}
		script.Segments[i].StartSec = cursor
		script.Segments[i].EndSec = cursor + script.Segments[i].DurationSec
		cursor = script.Segments[i].EndSec
	}
	script.TotalSec = cursor
}
