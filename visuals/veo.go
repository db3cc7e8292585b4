package visuals

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"viral-shorts-pipeline/gemini"
	"viral-shorts-pipeline/providers"
)

// Veo generates real video clips through the VEO models. Two instances
// cover the chain: veo-3 first, veo-2 as the cheaper retry.
type Veo struct {
	client        *genai.Client
	apiKey        string
	name          string
	model         string
	person        string
	negative      string
	generateAudio bool
	pollInterval  time.Duration
}

type VeoOptions struct {
	Name             string
	Model            string
	PersonGeneration string
	NegativePrompt   string
	GenerateAudio    bool
	PollIntervalSec  int
}

func NewVeo(client *genai.Client, apiKey string, opts VeoOptions) *Veo {
	interval := time.Duration(opts.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Veo{
		client:        client,
		apiKey:        apiKey,
		name:          opts.Name,
		model:         opts.Model,
		person:        opts.PersonGeneration,
		negative:      opts.NegativePrompt,
		generateAudio: opts.GenerateAudio,
		pollInterval:  interval,
	}
}

func (v *Veo) Name() string { return v.name }
func (v *Veo) Paid() bool   { return true }

func (v *Veo) Generate(ctx context.Context, req providers.Request) (string, error) {
	cfg := &genai.GenerateVideosConfig{
		AspectRatio:      req.AspectRatio,
		PersonGeneration: v.person,
		NegativePrompt:   v.negative,
	}
	if v.generateAudio {
		cfg.GenerateAudio = genai.Ptr(true)
	}
	if secs := clampInt32(req.DurationSec, 5, 8); secs > 0 {
		cfg.DurationSeconds = genai.Ptr(secs)
	}

	op, err := v.client.Models.GenerateVideos(ctx, v.model, req.Prompt, nil, cfg)
	if err != nil {
		return "", providers.Fail(v.name, gemini.Classify(err), err)
	}

	for !op.Done {
		select {
		case <-ctx.Done():
			return "", providers.Fail(v.name, providers.FailureTimeout, ctx.Err())
		case <-time.After(v.pollInterval):
		}
		op, err = v.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return "", providers.Fail(v.name, gemini.Classify(err), err)
		}
		log.Debug().Str("stage", "visuals").Str("provider", v.name).Msg("waiting on video operation")
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		// VEO reports safety filtering as an empty result set.
		return "", providers.Fail(v.name, providers.FailurePolicy,
			fmt.Errorf("operation finished with no videos, prompt likely filtered"))
	}
	video := op.Response.GeneratedVideos[0].Video
	if video == nil {
		return "", providers.Fail(v.name, providers.FailureUnavailable, fmt.Errorf("operation returned nil video"))
	}
	if err := v.save(ctx, video, req.OutPath); err != nil {
		return "", providers.Fail(v.name, providers.FailureUnavailable, err)
	}
	return req.OutPath, nil
}

func (v *Veo) save(ctx context.Context, video *genai.Video, dst string) error {
	if len(video.VideoBytes) > 0 {
		return os.WriteFile(dst, video.VideoBytes, 0o644)
	}
	if video.URI == "" {
		return fmt.Errorf("video has neither bytes nor URI")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, video.URI, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("x-goog-api-key", v.apiKey)
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download video: status %d", resp.StatusCode)
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	return nil
}

func clampInt32(v float64, lo, hi int32) int32 {
	n := int32(v)
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return n
}
