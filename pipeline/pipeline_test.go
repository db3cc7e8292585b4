package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/providers"
	"viral-shorts-pipeline/types"
)

const cannedScript = `{
  "title": "Test Short",
  "hook": "Watch this before it disappears.",
  "cta": "Follow for part two.",
  "segments": [
    {"text": "Testing one.", "visual_prompt": "wide shot of a test pattern", "mood": "energetic"},
    {"text": "Testing two.", "visual_prompt": "close-up of a stopwatch", "mood": "dramatic"}
  ]
}`

type fakeText struct {
	jsonCalls int
}

func (f *fakeText) Generate(_ context.Context, prompt string) (string, error) {
	return "approve", nil
}

func (f *fakeText) GenerateJSON(_ context.Context, prompt string, out any) error {
	f.jsonCalls++
	return json.Unmarshal([]byte(cannedScript), out)
}

func (f *fakeText) Rephrase(_ context.Context, prompt string) (string, error) {
	return "sanitized " + prompt, nil
}

// scriptedProvider either always fails with one kind or writes its output.
type scriptedProvider struct {
	name  string
	paid  bool
	kind  providers.FailureKind
	fail  bool
	calls int
}

func (p *scriptedProvider) Name() string { return p.name }
func (p *scriptedProvider) Paid() bool   { return p.paid }

func (p *scriptedProvider) Generate(_ context.Context, req providers.Request) (string, error) {
	p.calls++
	if p.fail {
		return "", providers.Fail(p.name, p.kind, fmt.Errorf("scripted %s", p.kind))
	}
	if err := os.WriteFile(req.OutPath, []byte(p.name+":"+req.Prompt), 0o644); err != nil {
		return "", err
	}
	return req.OutPath, nil
}

// panicProvider fails the test if the pipeline ever invokes it.
type panicProvider struct {
	t    *testing.T
	name string
}

func (p *panicProvider) Name() string { return p.name }
func (p *panicProvider) Paid() bool   { return true }

func (p *panicProvider) Generate(context.Context, providers.Request) (string, error) {
	p.t.Fatalf("paid provider %s was invoked in cheap mode", p.name)
	return "", nil
}

type fakeRunner struct {
	cmds [][]string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	r.cmds = append(r.cmds, append([]string{name}, args...))
	dst := args[len(args)-1]
	return os.WriteFile(dst, []byte(name+" "+strings.Join(args, " ")), 0o644)
}

func (r *fakeRunner) Output(context.Context, string, ...string) ([]byte, error) {
	return []byte("5.0\n"), nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Pipeline:  config.PipelineConfig{DefaultPlatform: "youtube", DefaultDurationSec: 30, DefaultStyle: "dynamic"},
		Text:      config.TextConfig{Model: "gemini-2.5-flash", TimeoutSec: 5},
		Video:     config.VideoConfig{TimeoutSec: 5},
		Audio:     config.AudioConfig{Voice: "en-US-Neural2-F", TimeoutSec: 5},
		Subtitles: config.SubtitlesConfig{Enabled: true, MaxCharsPerLine: 38},
		Upload:    config.UploadConfig{Visibility: "unlisted"},
		Paths:     config.PathsConfig{OutputsDir: t.TempDir()},
	}
}

func testRequest(t *testing.T) types.Request {
	platform, err := types.PlatformByName("youtube")
	require.NoError(t, err)
	return types.Request{
		Mission:     "test",
		Platform:    platform,
		DurationSec: 10,
		Style:       "dynamic",
		Voice:       "en-US-Neural2-F",
		Languages:   []string{"en"},
		Subtitles:   true,
	}
}

// The exhausted-video scenario: every video attempt hits a quota wall,
// narration works. The run must still finish with a playable final video
// built from placeholder clips and real narration.
func TestRunSurvivesExhaustedVideoChain(t *testing.T) {
	cfg := testConfig(t)
	text := &fakeText{}
	runner := &fakeRunner{}
	video := &scriptedProvider{name: "veo-3", paid: true, fail: true, kind: providers.FailureQuota}
	tts := &scriptedProvider{name: "fake-tts", paid: true}

	p, err := New(Deps{
		Config:          cfg,
		Runner:          runner,
		Text:            text,
		AudioProviders:  []providers.Provider{tts},
		VisualProviders: []providers.Provider{video},
	})
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), testRequest(t))
	require.NoError(t, err)

	// A completed run always leaves a non-empty final video.
	info, statErr := os.Stat(summary.FinalVideo)
	require.NoError(t, statErr)
	assert.Greater(t, info.Size(), int64(0))

	assert.Equal(t, []string{"visual"}, summary.Placeholders)
	assert.Equal(t, "placeholder", summary.Providers["visual"])
	assert.Equal(t, "fake-tts", summary.Providers["audio"])
	assert.Equal(t, "gemini", summary.Providers["text"])
	assert.Equal(t, 2, video.calls) // one per segment, no retry on quota
	assert.Equal(t, 2, tts.calls)
	assert.Equal(t, 1, text.jsonCalls) // script only; metadata stage is off

	sessionDir := filepath.Join(cfg.Paths.OutputsDir, summary.SessionID)

	var logged []providers.Attempt
	logData, err := os.ReadFile(filepath.Join(sessionDir, "metadata", "generation_log.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(logData, &logged))
	var quotaFailures, placeholders int
	for _, a := range logged {
		if a.Modality == "visual" && a.Failure == "quota_exceeded" {
			quotaFailures++
		}
		if a.Modality == "visual" && a.Outcome == "placeholder" {
			placeholders++
		}
	}
	assert.Equal(t, 2, quotaFailures)
	assert.Equal(t, 2, placeholders)

	// Narration retiming drives the script to the probed durations.
	var script types.Script
	scriptData, err := os.ReadFile(filepath.Join(sessionDir, "metadata", "script.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(scriptData, &script))
	assert.InDelta(t, 10.0, script.TotalSec, 1e-9)

	_, err = os.Stat(filepath.Join(sessionDir, "metadata", "subtitles_en.srt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(sessionDir, "metadata", "summary.json"))
	assert.NoError(t, err)
}

// Cheap mode must be structural: paid providers are dropped at
// registration, so they cannot be called even once.
func TestRunCheapModeNeverTouchesPaidProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Discussion = config.DiscussionConfig{Enabled: true, ConsensusThreshold: 0.6}
	runner := &fakeRunner{}
	freeTTS := &scriptedProvider{name: "gtts"}
	freeVisual := &scriptedProvider{name: "pollinations"}

	p, err := New(Deps{
		Config: cfg,
		Runner: runner,
		Text:   &fakeText{},
		AudioProviders: []providers.Provider{
			&panicProvider{t: t, name: "google-cloud-tts"},
			freeTTS,
		},
		VisualProviders: []providers.Provider{
			&panicProvider{t: t, name: "veo-3"},
			&panicProvider{t: t, name: "imagen"},
			freeVisual,
		},
	})
	require.NoError(t, err)

	req := testRequest(t)
	req.CheapMode = true
	summary, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, summary.CheapMode)
	assert.Equal(t, 2, freeTTS.calls)
	assert.Equal(t, 2, freeVisual.calls)
	assert.Equal(t, "gtts", summary.Providers["audio"])
	assert.Equal(t, "pollinations", summary.Providers["visual"])
	assert.Empty(t, summary.Placeholders)

	logData, err := os.ReadFile(filepath.Join(cfg.Paths.OutputsDir, summary.SessionID, "metadata", "generation_log.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(logData), "veo-3")
	assert.NotContains(t, string(logData), "google-cloud-tts")

	// The persona round spends text calls, so cheap mode skips it even
	// when enabled.
	discussionPath := filepath.Join(cfg.Paths.OutputsDir, summary.SessionID, "metadata", "discussion.json")
	_, statErr := os.Stat(discussionPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.Zero(t, summary.ConsensusScore)
}

func TestRunWritesDiscussionTranscript(t *testing.T) {
	cfg := testConfig(t)
	cfg.Discussion = config.DiscussionConfig{Enabled: true, ConsensusThreshold: 0.6}

	p, err := New(Deps{
		Config:          cfg,
		Runner:          &fakeRunner{},
		Text:            &fakeText{},
		AudioProviders:  []providers.Provider{&scriptedProvider{name: "fake-tts"}},
		VisualProviders: []providers.Provider{&scriptedProvider{name: "fake-visual"}},
	})
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), testRequest(t))
	require.NoError(t, err)

	// Every persona replied "approve", so the concept passes untouched.
	assert.Equal(t, 1.0, summary.ConsensusScore)
	discussionPath := filepath.Join(cfg.Paths.OutputsDir, summary.SessionID, "metadata", "discussion.json")
	data, err := os.ReadFile(discussionPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TrendScout")
}

func TestRunBurnsSubtitlesWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Subtitles.Burn = true

	p, err := New(Deps{
		Config:          cfg,
		Runner:          &fakeRunner{},
		Text:            &fakeText{},
		AudioProviders:  []providers.Provider{&scriptedProvider{name: "fake-tts"}},
		VisualProviders: []providers.Provider{&scriptedProvider{name: "fake-visual"}},
	})
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), testRequest(t))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(summary.FinalVideo, "_final_subtitled.mp4"))
	info, err := os.Stat(summary.FinalVideo)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRunRejectsEmptyMission(t *testing.T) {
	p, err := New(Deps{
		Config:          testConfig(t),
		Runner:          &fakeRunner{},
		Text:            &fakeText{},
		AudioProviders:  []providers.Provider{&scriptedProvider{name: "fake-tts"}},
		VisualProviders: []providers.Provider{&scriptedProvider{name: "fake-visual"}},
	})
	require.NoError(t, err)

	req := testRequest(t)
	req.Mission = ""
	_, err = p.Run(context.Background(), req)
	require.Error(t, err)
}

func TestRunClampsDurationToPlatformLimit(t *testing.T) {
	p, err := New(Deps{
		Config:          testConfig(t),
		Runner:          &fakeRunner{},
		Text:            &fakeText{},
		AudioProviders:  []providers.Provider{&scriptedProvider{name: "fake-tts"}},
		VisualProviders: []providers.Provider{&scriptedProvider{name: "fake-visual"}},
	})
	require.NoError(t, err)

	req := testRequest(t)
	req.DurationSec = 300
	summary, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 60.0, summary.DurationSec)
}
