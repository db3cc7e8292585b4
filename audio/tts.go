package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"viral-shorts-pipeline/providers"
	"viral-shorts-pipeline/render"
	"viral-shorts-pipeline/session"
)

// languageCodes maps short language codes to the BCP-47 codes the TTS
// voices are published under.
var languageCodes = map[string]string{
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
	"pt": "pt-BR",
	"hi": "hi-IN",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"ru": "ru-RU",
	"ar": "ar-XA",
	"id": "id-ID",
	"nl": "nl-NL",
	"pl": "pl-PL",
	"tr": "tr-TR",
	"vi": "vi-VN",
	"th": "th-TH",
	"zh": "cmn-CN",
}

func bcp47(lang string) string {
	if strings.Contains(lang, "-") {
		return lang
	}
	if code, ok := languageCodes[strings.ToLower(lang)]; ok {
		return code
	}
	return lang
}

// CloudTTS narrates text through the Google Cloud Text-to-Speech REST API.
type CloudTTS struct {
	svc  *texttospeech.Service
	rate float64
}

func NewCloudTTS(ctx context.Context, apiKey string, speakingRate float64) (*CloudTTS, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cloud tts: no API key configured")
	}
	svc, err := texttospeech.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("cloud tts: %w", err)
	}
	return &CloudTTS{svc: svc, rate: speakingRate}, nil
}

func (c *CloudTTS) Name() string { return "google-cloud-tts" }
func (c *CloudTTS) Paid() bool   { return true }

func (c *CloudTTS) Generate(ctx context.Context, req providers.Request) (string, error) {
	langCode := bcp47(req.Language)
	voice := &texttospeech.VoiceSelectionParams{LanguageCode: langCode}
	// The configured voice only applies to its own language; translated
	// narrations let the API pick a default voice for the language code.
	if strings.HasPrefix(req.Voice, langCode) {
		voice.Name = req.Voice
	}

	resp, err := c.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: req.Prompt},
		Voice: voice,
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  c.rate,
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", providers.Fail(c.Name(), classifyGoogleAPI(err), err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return "", providers.Fail(c.Name(), providers.FailureUnavailable, fmt.Errorf("decode audio content: %w", err))
	}
	if len(audio) == 0 {
		return "", providers.Fail(c.Name(), providers.FailureUnavailable, fmt.Errorf("empty audio content"))
	}
	if err := os.WriteFile(req.OutPath, audio, 0o644); err != nil {
		return "", providers.Fail(c.Name(), providers.FailureUnavailable, err)
	}
	return req.OutPath, nil
}

func classifyGoogleAPI(err error) providers.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return providers.FailureTimeout
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429:
			return providers.FailureQuota
		case 401, 403:
			return providers.FailureAuth
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted"):
		return providers.FailureQuota
	case strings.Contains(msg, "api key") || strings.Contains(msg, "permission") || strings.Contains(msg, "unauthenticated"):
		return providers.FailureAuth
	}
	return providers.FailureUnavailable
}

// GTTS narrates text through the gtts-cli binary, the free fallback when
// the cloud voice is unavailable or cheap mode excludes it.
type GTTS struct {
	binary string
}

func NewGTTS() *GTTS { return &GTTS{binary: "gtts-cli"} }

func (g *GTTS) Name() string { return "gtts" }
func (g *GTTS) Paid() bool   { return false }

func (g *GTTS) Generate(ctx context.Context, req providers.Request) (string, error) {
	lang := strings.ToLower(strings.SplitN(req.Language, "-", 2)[0])
	if lang == "" {
		lang = "en"
	}
	cmd := exec.CommandContext(ctx, g.binary, req.Prompt, "--lang", lang, "--output", req.OutPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		kind := providers.FailureUnavailable
		if errors.Is(err, exec.ErrNotFound) {
			err = fmt.Errorf("gtts-cli not installed: %w", err)
		} else if ctx.Err() != nil {
			kind = providers.FailureTimeout
		} else if msg := stderr.String(); msg != "" {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(msg))
		}
		return "", providers.Fail(g.Name(), kind, err)
	}
	if info, err := os.Stat(req.OutPath); err != nil || info.Size() == 0 {
		return "", providers.Fail(g.Name(), providers.FailureUnavailable, fmt.Errorf("gtts produced no audio"))
	}
	return req.OutPath, nil
}

const (
	wavSampleRate = 44100
	wavChannels   = 1
	wavBitDepth   = 16
)

// SilentWAV writes a silent PCM WAV of the given length. The file is a
// pure function of the duration, so repeated placeholder substitutions
// stay byte-identical.
func SilentWAV(path string, seconds float64) error {
	if seconds <= 0 {
		seconds = 1
	}
	samples := int(seconds * wavSampleRate)
	dataLen := samples * wavChannels * wavBitDepth / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(wavChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(wavSampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(wavSampleRate*wavChannels*wavBitDepth/8))
	binary.Write(&buf, binary.LittleEndian, uint16(wavChannels*wavBitDepth/8))
	binary.Write(&buf, binary.LittleEndian, uint16(wavBitDepth))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// SilentPlaceholder is the audio chain's terminal fallback. It swaps the
// extension to .wav since the silence is raw PCM, not MP3.
func SilentPlaceholder(_ context.Context, req providers.Request) (string, error) {
	path := strings.TrimSuffix(req.OutPath, filepath.Ext(req.OutPath)) + ".wav"
	if err := SilentWAV(path, req.DurationSec); err != nil {
		return "", err
	}
	return path, nil
}

// Narration is the product of synthesizing one language track.
type Narration struct {
	Path         string
	SegmentFiles []string
	Durations    []float64
	Placeholders int
}

// Synthesizer runs the audio provider chain per segment and joins the
// results into one narration track.
type Synthesizer struct {
	chain          *providers.Chain
	runner         render.Runner
	requestTimeout int
}

func NewSynthesizer(chain *providers.Chain, runner render.Runner, timeoutSec int) *Synthesizer {
	return &Synthesizer{chain: chain, runner: runner, requestTimeout: timeoutSec}
}

// Narrate synthesizes each segment text, probes real durations and
// concatenates the pieces into the session's narration track for lang.
// planned supplies per-segment target durations, used for placeholder
// length and as the duration fallback when probing fails.
func (s *Synthesizer) Narrate(ctx context.Context, sess *session.Session, lang, voice string, texts []string, planned []float64) (*Narration, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("narrate: no segment texts")
	}
	n := &Narration{
		SegmentFiles: make([]string, 0, len(texts)),
		Durations:    make([]float64, 0, len(texts)),
	}
	for i, text := range texts {
		plan := 3.0
		if i < len(planned) && planned[i] > 0 {
			plan = planned[i]
		}
		req := providers.Request{
			Prompt:      text,
			Voice:       voice,
			Language:    lang,
			DurationSec: plan,
			OutPath:     sess.SegmentAudioPath(lang, i),
			Timeout:     time.Duration(s.requestTimeout) * time.Second,
		}
		res, err := s.chain.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		if res.Placeholder {
			n.Placeholders++
		}
		dur, err := render.ProbeDuration(ctx, s.runner, res.Path)
		if err != nil || dur <= 0 {
			dur = plan
		}
		n.SegmentFiles = append(n.SegmentFiles, res.Path)
		n.Durations = append(n.Durations, dur)
		log.Debug().Str("stage", "audio").Str("lang", lang).Int("segment", i).
			Float64("duration", dur).Bool("placeholder", res.Placeholder).Msg("segment narrated")
	}

	n.Path = sess.NarrationPath(lang)
	if err := s.concat(ctx, n.SegmentFiles, n.Path); err != nil {
		return nil, fmt.Errorf("join narration: %w", err)
	}
	log.Info().Str("stage", "audio").Str("lang", lang).Int("segments", len(texts)).
		Int("placeholders", n.Placeholders).Msg("narration ready")
	return n, nil
}

// concat joins segment audio through the concat filter, which tolerates
// mixed codecs (MP3 narration next to WAV placeholders).
func (s *Synthesizer) concat(ctx context.Context, files []string, dst string) error {
	args := []string{"-y"}
	var filter strings.Builder
	for i, f := range files {
		args = append(args, "-i", f)
		fmt.Fprintf(&filter, "[%d:a]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[out]", len(files))
	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-c:a", "libmp3lame", "-q:a", "4",
		dst,
	)
	return s.runner.Run(ctx, "ffmpeg", args...)
}
