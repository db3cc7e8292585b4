package visuals

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viral-shorts-pipeline/providers"
	"viral-shorts-pipeline/session"
	"viral-shorts-pipeline/types"
)

type fakeVisual struct {
	name    string
	paid    bool
	fail    bool
	kind    providers.FailureKind
	ext     string
	calls   int
	prompts []string
}

func (f *fakeVisual) Name() string { return f.name }
func (f *fakeVisual) Paid() bool   { return f.paid }

func (f *fakeVisual) Generate(_ context.Context, req providers.Request) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if f.fail {
		return "", providers.Fail(f.name, f.kind, nil)
	}
	path := req.OutPath
	if f.ext != "" {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + f.ext
	}
	return path, nil
}

type fakeRunner struct {
	cmds     [][]string
	duration string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	r.cmds = append(r.cmds, append([]string{name}, args...))
	return nil
}

func (r *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	r.cmds = append(r.cmds, append([]string{name}, args...))
	return []byte(r.duration + "\n"), nil
}

func (r *fakeRunner) joined() string {
	var b strings.Builder
	for _, cmd := range r.cmds {
		b.WriteString(strings.Join(cmd, " "))
		b.WriteString("\n")
	}
	return b.String()
}

func testSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(t.TempDir(), "")
	require.NoError(t, err)
	return sess
}

func testScript(segments int) *types.Script {
	sc := &types.Script{Title: "Honey never spoils", Hook: "This food outlives empires."}
	for i := 0; i < segments; i++ {
		sc.Segments = append(sc.Segments, types.Segment{
			Index:        i,
			Text:         "Archaeologists found edible honey in Egyptian tombs.",
			VisualPrompt: "macro shot of golden honey dripping",
			DurationSec:  4,
		})
	}
	return sc
}

func newTestChain(t *testing.T, ps ...providers.Provider) *providers.Chain {
	t.Helper()
	chain := providers.NewChain("visual", false, providers.NewAttemptLog(filepath.Join(t.TempDir(), "log.json")))
	for _, p := range ps {
		chain.Use(p)
	}
	return chain
}

func TestBuildMovesPlaceholdersWithoutReencoding(t *testing.T) {
	sess := testSession(t)
	platform, err := types.PlatformByName("youtube")
	require.NoError(t, err)

	chain := newTestChain(t, &fakeVisual{name: "veo-3", paid: true, fail: true, kind: providers.FailureQuota})
	chain.WithPlaceholder(func(_ context.Context, req providers.Request) (string, error) {
		if err := os.WriteFile(req.OutPath, []byte("FAKE-PLACEHOLDER"), 0o644); err != nil {
			return "", err
		}
		return req.OutPath, nil
	})

	runner := &fakeRunner{duration: "4.0"}
	asm := NewAssembler(chain, runner, platform, 30)

	sc := testScript(1)
	out, err := asm.Build(context.Background(), sess, sc, "cinematic")
	require.NoError(t, err)

	assert.Equal(t, 1, out.Placeholders)
	require.Len(t, out.Files, 1)
	assert.Equal(t, sess.ClipPath(0), out.Files[0])
	assert.Equal(t, sess.ClipPath(0), sc.Segments[0].ClipFile)

	data, err := os.ReadFile(sess.ClipPath(0))
	require.NoError(t, err)
	assert.Equal(t, "FAKE-PLACEHOLDER", string(data))

	_, err = os.Stat(sess.RawVisualPath(0, ".mp4"))
	assert.True(t, os.IsNotExist(err))

	assert.Empty(t, runner.cmds)
}

func TestBuildNormalizesVideoClips(t *testing.T) {
	sess := testSession(t)
	platform, err := types.PlatformByName("youtube")
	require.NoError(t, err)

	chain := newTestChain(t, &fakeVisual{name: "veo-3", paid: true})
	runner := &fakeRunner{duration: "4.0"}
	asm := NewAssembler(chain, runner, platform, 30)

	sc := testScript(1)
	out, err := asm.Build(context.Background(), sess, sc, "cinematic")
	require.NoError(t, err)

	assert.Equal(t, 0, out.Placeholders)
	joined := runner.joined()
	assert.Contains(t, joined, sess.RawVisualPath(0, ".mp4"))
	assert.Contains(t, joined, sess.ClipPath(0))
	assert.Contains(t, joined, "libx264")
	assert.NotContains(t, joined, "zoompan")
}

func TestBuildAnimatesStills(t *testing.T) {
	sess := testSession(t)
	platform, err := types.PlatformByName("youtube")
	require.NoError(t, err)

	chain := newTestChain(t, &fakeVisual{name: "imagen", paid: true, ext: ".png"})
	runner := &fakeRunner{duration: "4.0"}
	asm := NewAssembler(chain, runner, platform, 30)

	sc := testScript(1)
	_, err = asm.Build(context.Background(), sess, sc, "cinematic")
	require.NoError(t, err)

	joined := runner.joined()
	assert.Contains(t, joined, sess.RawVisualPath(0, ".png"))
	assert.Contains(t, joined, "zoompan")
	assert.Contains(t, joined, "-loop 1")
}

func TestBuildFallsBackToSegmentText(t *testing.T) {
	sess := testSession(t)
	platform, err := types.PlatformByName("youtube")
	require.NoError(t, err)

	provider := &fakeVisual{name: "pollinations", ext: ".png"}
	asm := NewAssembler(newTestChain(t, provider), &fakeRunner{duration: "4.0"}, platform, 30)

	sc := testScript(1)
	sc.Segments[0].VisualPrompt = ""
	_, err = asm.Build(context.Background(), sess, sc, "cinematic")
	require.NoError(t, err)

	require.Len(t, provider.prompts, 1)
	assert.Equal(t, sc.Segments[0].Text, provider.prompts[0])
}

func TestBuildRequiresSegments(t *testing.T) {
	sess := testSession(t)
	platform, err := types.PlatformByName("youtube")
	require.NoError(t, err)

	asm := NewAssembler(newTestChain(t), &fakeRunner{}, platform, 30)
	_, err = asm.Build(context.Background(), sess, &types.Script{}, "cinematic")
	assert.Error(t, err)
}

func TestBuildPropagatesChainErrors(t *testing.T) {
	sess := testSession(t)
	platform, err := types.PlatformByName("youtube")
	require.NoError(t, err)

	// No placeholder configured, so an exhausted chain aborts the build.
	chain := newTestChain(t, &fakeVisual{name: "veo-3", paid: true, fail: true, kind: providers.FailureQuota})
	asm := NewAssembler(chain, &fakeRunner{}, platform, 30)

	_, err = asm.Build(context.Background(), sess, testScript(1), "cinematic")
	assert.Error(t, err)
}
