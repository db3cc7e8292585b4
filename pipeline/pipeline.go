package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"viral-shorts-pipeline/audio"
	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/metadata"
	"viral-shorts-pipeline/providers"
	"viral-shorts-pipeline/render"
	"viral-shorts-pipeline/script"
	"viral-shorts-pipeline/session"
	"viral-shorts-pipeline/subtitles"
	"viral-shorts-pipeline/types"
	"viral-shorts-pipeline/upload"
	"viral-shorts-pipeline/visuals"
)

// TextClient is the full text capability the pipeline consumes.
type TextClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, out any) error
	Rephrase(ctx context.Context, prompt string) (string, error)
}

// Deps carries everything a run needs, assembled once by the caller.
// There is no global state: two pipelines with different Deps can run in
// the same process without touching each other.
type Deps struct {
	Config          *config.Config
	Runner          render.Runner
	Text            TextClient
	AudioProviders  []providers.Provider // priority order
	VisualProviders []providers.Provider // priority order
	Uploader        *upload.Uploader     // nil disables uploading
}

// Pipeline runs one mission through every stage: discussion, script,
// narration, visuals, composition, subtitles, metadata, upload. Stages
// run strictly in sequence.
type Pipeline struct {
	deps Deps
}

func New(deps Deps) (*Pipeline, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("pipeline: nil config")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("pipeline: nil runner")
	}
	if deps.Text == nil {
		return nil, fmt.Errorf("pipeline: nil text client")
	}
	return &Pipeline{deps: deps}, nil
}

// Run executes the full pipeline for one request. On success the session
// holds a non-empty final video plus every intermediate artifact; the
// returned summary says which provider served each modality.
func (p *Pipeline) Run(ctx context.Context, req types.Request) (*types.Summary, error) {
	cfg := p.deps.Config
	if req.Mission == "" {
		return nil, fmt.Errorf("empty mission")
	}
	if req.DurationSec <= 0 {
		req.DurationSec = cfg.Pipeline.DefaultDurationSec
	}
	if max := req.Platform.MaxDuration; max > 0 && req.DurationSec > max {
		log.Warn().Str("stage", "pipeline").Float64("requested", req.DurationSec).
			Float64("max", max).Msg("duration exceeds platform limit, clamping")
		req.DurationSec = max
	}
	if len(req.Languages) == 0 {
		req.Languages = []string{"en"}
	}

	sess, err := session.New(cfg.Paths.OutputsDir, req.SessionID)
	if err != nil {
		return nil, err
	}
	req.SessionID = sess.ID
	attempts := providers.NewAttemptLog(sess.AttemptLogPath())

	summary := &types.Summary{
		SessionID:   sess.ID,
		Mission:     req.Mission,
		Platform:    req.Platform.Name,
		Style:       req.Style,
		DurationSec: req.DurationSec,
		CheapMode:   req.CheapMode,
		Languages:   req.Languages,
		Providers:   map[string]string{},
		Narrations:  map[string]string{},
		StartedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	log.Info().Str("stage", "pipeline").Str("session", sess.ID).Str("mission", req.Mission).
		Str("platform", req.Platform.Name).Bool("cheap", req.CheapMode).Msg("run started")

	brief := req.Mission
	// The persona round spends extra text calls, so cheap mode skips it.
	if cfg.Discussion.Enabled && !req.CheapMode {
		disc, err := script.NewDiscussion(cfg, p.deps.Text).Run(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("discussion: %w", err)
		}
		session.SaveJSON(sess.DiscussionPath(), disc)
		summary.ConsensusScore = disc.Consensus
		brief = disc.Brief
	}

	scriptReq := req
	scriptReq.Mission = brief
	sc, err := script.NewWriter(cfg, p.deps.Text).Run(ctx, scriptReq)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	summary.Title = sc.Title
	summary.Providers["text"] = "gemini"
	session.SaveJSON(sess.ScriptPath(), sc)

	audioChain := providers.NewChain("audio", req.CheapMode, attempts)
	for _, prov := range p.deps.AudioProviders {
		audioChain.Use(prov)
	}
	audioChain.WithRephrase(p.deps.Text.Rephrase)
	audioChain.WithPlaceholder(audio.SilentPlaceholder)
	synth := audio.NewSynthesizer(audioChain, p.deps.Runner, cfg.Audio.TimeoutSec)

	primary := req.PrimaryLanguage()
	texts := segmentTexts(sc)
	narration, err := synth.Narrate(ctx, sess, primary, req.Voice, texts, segmentDurations(sc))
	if err != nil {
		return nil, fmt.Errorf("narration: %w", err)
	}
	summary.Narrations[primary] = narration.Path

	// Real narration lengths replace the word-count estimates so clips
	// and subtitles line up with the audio.
	script.Retime(sc, narration.Durations)
	session.SaveJSON(sess.ScriptPath(), sc)

	translations := map[string][]string{}
	for _, lang := range req.ExtraLanguages() {
		translated, err := script.TranslateSegments(ctx, p.deps.Text, sc, lang)
		if err != nil {
			log.Warn().Str("stage", "translate").Str("lang", lang).Err(err).Msg("translation failed, skipping language")
			continue
		}
		translations[lang] = translated
		extra, err := synth.Narrate(ctx, sess, lang, req.Voice, translated, narration.Durations)
		if err != nil {
			return nil, fmt.Errorf("narration %s: %w", lang, err)
		}
		summary.Narrations[lang] = extra.Path
	}

	visualChain := providers.NewChain("visual", req.CheapMode, attempts)
	for _, prov := range p.deps.VisualProviders {
		visualChain.Use(prov)
	}
	visualChain.WithRephrase(p.deps.Text.Rephrase)
	visualChain.WithPlaceholder(visuals.BlackClipPlaceholder(p.deps.Runner, req.Platform))
	assembler := visuals.NewAssembler(visualChain, p.deps.Runner, req.Platform, cfg.Video.TimeoutSec)
	clips, err := assembler.Build(ctx, sess, sc, req.Style)
	if err != nil {
		return nil, fmt.Errorf("visuals: %w", err)
	}

	musicBed := ""
	if req.Music {
		musicBed, err = audio.MusicBed(ctx, p.deps.Runner, cfg.Music, sess, req.Style, sc.TotalSec)
		if err != nil {
			log.Warn().Str("stage", "music").Err(err).Msg("music bed failed, continuing without music")
			musicBed = ""
		}
	}

	finalVideo := sess.FinalVideo(req.Platform.Name)
	err = render.Compose(ctx, p.deps.Runner, render.ComposeInput{
		Clips:        clips.Files,
		Narration:    narration.Path,
		MusicBed:     musicBed,
		HookText:     sc.Hook,
		OutPath:      finalVideo,
		WorkDir:      sess.ClipsDir(),
		Platform:     req.Platform,
		MusicVolume:  cfg.Music.VolumeUnderNarration,
		MusicFadeSec: cfg.Music.FadeSec,
	})
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	summary.FinalVideo = finalVideo

	if req.Subtitles {
		summary.SubtitleFiles = p.subtitleTracks(ctx, sess, sc, req, translations, finalVideo, summary)
	}

	dist := p.distribution(ctx, req, sc)
	summary.Distribution = dist
	session.SaveJSON(sess.DistributionPath(), dist)

	if req.Upload && p.deps.Uploader != nil {
		videoID, err := p.deps.Uploader.Upload(ctx, summary.FinalVideo, dist)
		if err != nil {
			log.Warn().Str("stage", "upload").Err(err).Msg("upload failed, video kept locally")
		} else {
			summary.YouTubeVideoID = videoID
		}
	}

	for _, modality := range []string{"audio", "visual"} {
		if served := attempts.ServedBy(modality); served != "" {
			summary.Providers[modality] = served
		}
		if attempts.PlaceholderUsed(modality) {
			summary.Placeholders = append(summary.Placeholders, modality)
		}
	}
	summary.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	if err := sess.WriteSummary(summary); err != nil {
		return nil, err
	}
	log.Info().Str("stage", "pipeline").Str("session", sess.ID).Str("final", summary.FinalVideo).
		Int("audio_placeholders", narration.Placeholders).Int("visual_placeholders", clips.Placeholders).
		Msg("run finished")
	return summary, nil
}

// subtitleTracks writes one SRT per language and optionally burns the
// primary track into the final video. Subtitle failures never fail the
// run.
func (p *Pipeline) subtitleTracks(ctx context.Context, sess *session.Session, sc *types.Script, req types.Request, translations map[string][]string, finalVideo string, summary *types.Summary) map[string]string {
	cfg := p.deps.Config.Subtitles
	files := map[string]string{}

	primary := req.PrimaryLanguage()
	if err := subtitles.WriteSRT(sess.SubtitlePath(primary), sc.Segments, nil, cfg.MaxCharsPerLine); err != nil {
		log.Warn().Str("stage", "subtitles").Err(err).Msg("subtitle generation failed")
		return files
	}
	files[primary] = sess.SubtitlePath(primary)

	for lang, texts := range translations {
		if err := subtitles.WriteSRT(sess.SubtitlePath(lang), sc.Segments, texts, cfg.MaxCharsPerLine); err != nil {
			log.Warn().Str("stage", "subtitles").Str("lang", lang).Err(err).Msg("subtitle track failed")
			continue
		}
		files[lang] = sess.SubtitlePath(lang)
	}

	if cfg.Burn {
		burned := burnedPath(finalVideo)
		if err := subtitles.Burn(ctx, p.deps.Runner, finalVideo, files[primary], burned, cfg.FontSize); err != nil {
			log.Warn().Str("stage", "subtitles").Err(err).Msg("burn failed, keeping unsubtitled video")
		} else {
			summary.FinalVideo = burned
		}
	}
	return files
}

func (p *Pipeline) distribution(ctx context.Context, req types.Request, sc *types.Script) *types.Distribution {
	cfg := p.deps.Config.Metadata
	if !cfg.Enabled {
		return metadata.Fallback(cfg, &req, sc)
	}
	dist, err := metadata.Generate(ctx, p.deps.Text, cfg, &req, sc)
	if err != nil {
		log.Warn().Str("stage", "metadata").Err(err).Msg("distribution copy failed, using fallback")
		return metadata.Fallback(cfg, &req, sc)
	}
	return dist
}

func segmentTexts(sc *types.Script) []string {
	texts := make([]string, len(sc.Segments))
	for i, seg := range sc.Segments {
		texts[i] = seg.Text
	}
	return texts
}

func segmentDurations(sc *types.Script) []float64 {
	durations := make([]float64, len(sc.Segments))
	for i, seg := range sc.Segments {
		durations[i] = seg.DurationSec
	}
	return durations
}

func burnedPath(video string) string {
	const ext = ".mp4"
	if len(video) > len(ext) && video[len(video)-len(ext):] == ext {
		return video[:len(video)-len(ext)] + "_subtitled" + ext
	}
	return video + "_subtitled"
}
