package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Text       TextConfig       `yaml:"text"`
	Video      VideoConfig      `yaml:"video"`
	Image      ImageConfig      `yaml:"image"`
	Audio      AudioConfig      `yaml:"audio"`
	Music      MusicConfig      `yaml:"music"`
	Subtitles  SubtitlesConfig  `yaml:"subtitles"`
	Discussion DiscussionConfig `yaml:"discussion"`
	Research   ResearchConfig   `yaml:"research"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Upload     UploadConfig     `yaml:"upload"`
	Paths      PathsConfig      `yaml:"paths"`
}

type PipelineConfig struct {
	DefaultPlatform    string  `yaml:"default_platform"`
	DefaultDurationSec float64 `yaml:"default_duration_sec"`
	DefaultStyle       string  `yaml:"default_style"`
}

type TextConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

type VideoConfig struct {
	Veo3Model        string `yaml:"veo3_model"`
	Veo2Model        string `yaml:"veo2_model"`
	PersonGeneration string `yaml:"person_generation"`
	NegativePrompt   string `yaml:"negative_prompt"`
	PollIntervalSec  int    `yaml:"poll_interval_sec"`
	TimeoutSec       int    `yaml:"timeout_sec"`
}

type ImageConfig struct {
	ImagenModel string `yaml:"imagen_model"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

type AudioConfig struct {
	Voice        string  `yaml:"voice"`
	SpeakingRate float64 `yaml:"speaking_rate"`
	SampleRate   int     `yaml:"sample_rate"`
	TimeoutSec   int     `yaml:"timeout_sec"`
}

type MusicConfig struct {
	Enabled              bool              `yaml:"enabled"`
	Dir                  string            `yaml:"dir"`
	VolumeUnderNarration float64           `yaml:"volume_under_narration"`
	FadeSec              float64           `yaml:"fade_sec"`
	StyleTracks          map[string]string `yaml:"style_tracks"`
}

type SubtitlesConfig struct {
	Enabled         bool `yaml:"enabled"`
	Burn            bool `yaml:"burn"`
	FontSize        int  `yaml:"font_size"`
	MaxCharsPerLine int  `yaml:"max_chars_per_line"`
}

type DiscussionConfig struct {
	Enabled            bool    `yaml:"enabled"`
	ConsensusThreshold float64 `yaml:"consensus_threshold"`
}

type ResearchConfig struct {
	Subreddits     []string `yaml:"subreddits"`
	NewsQueries    []string `yaml:"news_queries"`
	MinRedditScore int      `yaml:"min_reddit_score"`
	MinComments    int      `yaml:"min_comments"`
	LookbackDays   int      `yaml:"lookback_days"`
}

type MetadataConfig struct {
	Enabled       bool `yaml:"enabled"`
	TitleMaxChars int  `yaml:"title_max_chars"`
	HashtagCount  int  `yaml:"hashtag_count"`
}

type UploadConfig struct {
	Visibility      string `yaml:"visibility"`
	CategoryID      string `yaml:"category_id"`
	DefaultLanguage string `yaml:"default_language"`
}

type PathsConfig struct {
	OutputsDir    string `yaml:"outputs_dir"`
	AssetsDir     string `yaml:"assets_dir"`
	AssetTags     string `yaml:"asset_tags"`
	AssetUsageLog string `yaml:"asset_usage_log"`
}

// Load reads a YAML config file and fills in defaults for anything unset.
// A missing file is not an error: the defaults alone are a working config.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.DefaultPlatform == "" {
		c.Pipeline.DefaultPlatform = "youtube"
	}
	if c.Pipeline.DefaultDurationSec == 0 {
		c.Pipeline.DefaultDurationSec = 30
	}
	if c.Pipeline.DefaultStyle == "" {
		c.Pipeline.DefaultStyle = "dynamic"
	}
	if c.Text.Model == "" {
		c.Text.Model = "gemini-2.5-flash"
	}
	if c.Text.Temperature == 0 {
		c.Text.Temperature = 0.7
	}
	if c.Text.TimeoutSec == 0 {
		c.Text.TimeoutSec = 90
	}
	if c.Video.Veo3Model == "" {
		c.Video.Veo3Model = "veo-3.0-generate-001"
	}
	if c.Video.Veo2Model == "" {
		c.Video.Veo2Model = "veo-2.0-generate-001"
	}
	if c.Video.PersonGeneration == "" {
		c.Video.PersonGeneration = "allow_adult"
	}
	if c.Video.PollIntervalSec == 0 {
		c.Video.PollIntervalSec = 10
	}
	if c.Video.TimeoutSec == 0 {
		c.Video.TimeoutSec = 360
	}
	if c.Image.ImagenModel == "" {
		c.Image.ImagenModel = "imagen-3.0-generate-002"
	}
	if c.Image.TimeoutSec == 0 {
		c.Image.TimeoutSec = 90
	}
	if c.Audio.Voice == "" {
		c.Audio.Voice = "en-US-Neural2-F"
	}
	if c.Audio.SpeakingRate == 0 {
		c.Audio.SpeakingRate = 1.0
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 44100
	}
	if c.Audio.TimeoutSec == 0 {
		c.Audio.TimeoutSec = 60
	}
	if c.Music.VolumeUnderNarration == 0 {
		c.Music.VolumeUnderNarration = 0.18
	}
	if c.Music.FadeSec == 0 {
		c.Music.FadeSec = 1.5
	}
	if c.Subtitles.FontSize == 0 {
		c.Subtitles.FontSize = 14
	}
	if c.Subtitles.MaxCharsPerLine == 0 {
		c.Subtitles.MaxCharsPerLine = 38
	}
	if c.Discussion.ConsensusThreshold == 0 {
		c.Discussion.ConsensusThreshold = 0.5
	}
	if len(c.Research.Subreddits) == 0 {
		c.Research.Subreddits = []string{"videos", "interestingasfuck", "Damnthatsinteresting"}
	}
	if len(c.Research.NewsQueries) == 0 {
		c.Research.NewsQueries = []string{"viral video", "trending"}
	}
	if c.Research.MinRedditScore == 0 {
		c.Research.MinRedditScore = 500
	}
	if c.Research.LookbackDays == 0 {
		c.Research.LookbackDays = 3
	}
	if c.Metadata.TitleMaxChars == 0 {
		c.Metadata.TitleMaxChars = 90
	}
	if c.Metadata.HashtagCount == 0 {
		c.Metadata.HashtagCount = 8
	}
	if c.Upload.Visibility == "" {
		c.Upload.Visibility = "private"
	}
	if c.Upload.CategoryID == "" {
		c.Upload.CategoryID = "24"
	}
	if c.Upload.DefaultLanguage == "" {
		c.Upload.DefaultLanguage = "en"
	}
	if c.Paths.OutputsDir == "" {
		c.Paths.OutputsDir = "outputs"
	}
}

func (c *Config) validate() error {
	switch c.Upload.Visibility {
	case "private", "unlisted", "public":
	default:
		return fmt.Errorf("upload.visibility must be private, unlisted or public, got %q", c.Upload.Visibility)
	}
	if c.Music.VolumeUnderNarration < 0 || c.Music.VolumeUnderNarration > 1 {
		return fmt.Errorf("music.volume_under_narration must be within [0,1], got %.2f", c.Music.VolumeUnderNarration)
	}
	if c.Discussion.ConsensusThreshold < 0 || c.Discussion.ConsensusThreshold > 1 {
		return fmt.Errorf("discussion.consensus_threshold must be within [0,1], got %.2f", c.Discussion.ConsensusThreshold)
	}
	return nil
}

// ResolveCheapMode applies the cheap-mode precedence: the --no-cheap flag
// beats the CHEAP_MODE environment variable, which beats the default (on).
func ResolveCheapMode(noCheap bool) bool {
	if noCheap {
		return false
	}
	if v, ok := os.LookupEnv("CHEAP_MODE"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "off":
			return false
		}
		return true
	}
	return true
}

// GeminiAPIKey returns the text/video/image API key, preferring
// GEMINI_API_KEY and falling back to GOOGLE_API_KEY.
func GeminiAPIKey() string {
	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
}

// TTSAPIKey returns the Cloud TTS API key, falling back to the Gemini key
// when no dedicated one is set.
func TTSAPIKey() string {
	if key := strings.TrimSpace(os.Getenv("GOOGLE_TTS_API_KEY")); key != "" {
		return key
	}
	return GeminiAPIKey()
}
