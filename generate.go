package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"viral-shorts-pipeline/audio"
	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/gemini"
	"viral-shorts-pipeline/pipeline"
	"viral-shorts-pipeline/providers"
	"viral-shorts-pipeline/render"
	"viral-shorts-pipeline/types"
	"viral-shorts-pipeline/upload"
	"viral-shorts-pipeline/visuals"
)

var generateFlags struct {
	mission   string
	platform  string
	duration  float64
	style     string
	voice     string
	sessionID string
	noCheap   bool
	languages []string
	music     bool
	subtitles bool
	upload    bool
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the full generation pipeline for one mission",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := render.EnsureTools(); err != nil {
			return err
		}

		req, err := buildRequest(cfg)
		if err != nil {
			return err
		}
		deps, err := buildDeps(cmd, cfg, req)
		if err != nil {
			return err
		}
		p, err := pipeline.New(deps)
		if err != nil {
			return err
		}
		summary, err := p.Run(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Printf("\nSession: %s\nFinal video: %s\n", summary.SessionID, summary.FinalVideo)
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateFlags.mission, "mission", "", "what the video should convey (required)")
	f.StringVar(&generateFlags.platform, "platform", "", "target platform: youtube, tiktok or instagram")
	f.Float64Var(&generateFlags.duration, "duration", 0, "target duration in seconds")
	f.StringVar(&generateFlags.style, "style", "", "visual and narration style")
	f.StringVar(&generateFlags.voice, "voice", "", "TTS voice name")
	f.StringVar(&generateFlags.sessionID, "session-id", "", "reuse a session id instead of generating one")
	f.BoolVar(&generateFlags.noCheap, "no-cheap", false, "allow paid providers regardless of CHEAP_MODE")
	f.StringSliceVar(&generateFlags.languages, "languages", nil, "narration languages, primary first (e.g. en,es)")
	f.BoolVar(&generateFlags.music, "music", true, "mix a background music bed")
	f.BoolVar(&generateFlags.subtitles, "subtitles", true, "generate subtitle tracks")
	f.BoolVar(&generateFlags.upload, "upload", false, "upload the final video to YouTube")
	generateCmd.MarkFlagRequired("mission")
	rootCmd.AddCommand(generateCmd)
}

func buildRequest(cfg *config.Config) (types.Request, error) {
	platformName := generateFlags.platform
	if platformName == "" {
		platformName = cfg.Pipeline.DefaultPlatform
	}
	platform, err := types.PlatformByName(platformName)
	if err != nil {
		return types.Request{}, err
	}
	duration := generateFlags.duration
	if duration == 0 {
		duration = cfg.Pipeline.DefaultDurationSec
	}
	if duration < 0 {
		return types.Request{}, fmt.Errorf("duration must be positive, got %v", duration)
	}
	style := generateFlags.style
	if style == "" {
		style = cfg.Pipeline.DefaultStyle
	}
	voice := generateFlags.voice
	if voice == "" {
		voice = cfg.Audio.Voice
	}
	languages := generateFlags.languages
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	cheap := config.ResolveCheapMode(generateFlags.noCheap)
	if cheap {
		log.Info().Msg("cheap mode on: paid providers are excluded")
	}
	return types.Request{
		Mission:     generateFlags.mission,
		Platform:    platform,
		DurationSec: duration,
		Style:       style,
		Voice:       voice,
		Languages:   languages,
		SessionID:   generateFlags.sessionID,
		CheapMode:   cheap,
		Subtitles:   generateFlags.subtitles,
		Music:       generateFlags.music,
		Upload:      generateFlags.upload,
	}, nil
}

// buildDeps wires the provider chains in priority order. In cheap mode
// the paid providers are never constructed; the chain drops any paid
// provider at registration as well.
func buildDeps(cmd *cobra.Command, cfg *config.Config, req types.Request) (pipeline.Deps, error) {
	ctx := cmd.Context()
	apiKey := config.GeminiAPIKey()
	text, err := gemini.New(ctx, apiKey, cfg.Text.Model, cfg.Text.Temperature)
	if err != nil {
		return pipeline.Deps{}, err
	}

	var audioProviders []providers.Provider
	if !req.CheapMode {
		cloud, err := audio.NewCloudTTS(ctx, config.TTSAPIKey(), cfg.Audio.SpeakingRate)
		if err != nil {
			log.Warn().Err(err).Msg("cloud TTS unavailable, relying on free voices")
		} else {
			audioProviders = append(audioProviders, cloud)
		}
	}
	audioProviders = append(audioProviders, audio.NewGTTS())

	var visualProviders []providers.Provider
	if !req.CheapMode {
		visualProviders = append(visualProviders,
			visuals.NewVeo(text.Raw(), apiKey, visuals.VeoOptions{
				Name:             "veo-3",
				Model:            cfg.Video.Veo3Model,
				PersonGeneration: cfg.Video.PersonGeneration,
				NegativePrompt:   cfg.Video.NegativePrompt,
				GenerateAudio:    true,
				PollIntervalSec:  cfg.Video.PollIntervalSec,
			}),
			visuals.NewVeo(text.Raw(), apiKey, visuals.VeoOptions{
				Name:             "veo-2",
				Model:            cfg.Video.Veo2Model,
				PersonGeneration: cfg.Video.PersonGeneration,
				NegativePrompt:   cfg.Video.NegativePrompt,
				PollIntervalSec:  cfg.Video.PollIntervalSec,
			}),
			visuals.NewImagen(text.Raw(), cfg.Image.ImagenModel),
		)
	}
	visualProviders = append(visualProviders, visuals.NewPollinations(req.Platform.Width, req.Platform.Height))
	if cfg.Paths.AssetsDir != "" {
		visualProviders = append(visualProviders,
			visuals.NewLocalAssets(cfg.Paths.AssetsDir, cfg.Paths.AssetTags, cfg.Paths.AssetUsageLog))
	}

	var uploader *upload.Uploader
	if req.Upload {
		creds, err := upload.CredentialsFromEnv()
		if err != nil {
			return pipeline.Deps{}, err
		}
		uploader = upload.NewUploader(cfg.Upload, creds)
	}

	return pipeline.Deps{
		Config:          cfg,
		Runner:          render.ExecRunner{},
		Text:            text,
		AudioProviders:  audioProviders,
		VisualProviders: visualProviders,
		Uploader:        uploader,
	}, nil
}
