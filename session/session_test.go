package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viral-shorts-pipeline/types"
)

func TestNewCreatesLayout(t *testing.T) {
	base := t.TempDir()
	sess, err := New(base, "run_a")
	require.NoError(t, err)

	assert.Equal(t, "run_a", sess.ID)
	for _, sub := range []string{DirFinal, DirClips, DirAudio, DirMetadata} {
		info, err := os.Stat(filepath.Join(base, "run_a", sub))
		require.NoError(t, err, sub)
		assert.True(t, info.IsDir())
	}
}

func TestNewGeneratesIDWhenEmpty(t *testing.T) {
	sess, err := New(t.TempDir(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Regexp(t, `^\d{8}_\d{6}_[0-9a-f]{8}$`, sess.ID)
}

func TestSessionsDoNotOverlap(t *testing.T) {
	base := t.TempDir()
	a, err := New(base, "run_a")
	require.NoError(t, err)
	b, err := New(base, "run_b")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(a.ClipPath(0), []byte("clip-a"), 0o644))
	require.NoError(t, os.WriteFile(b.ClipPath(0), []byte("clip-b"), 0o644))

	dataA, err := os.ReadFile(a.ClipPath(0))
	require.NoError(t, err)
	assert.Equal(t, "clip-a", string(dataA))

	entries, err := os.ReadDir(filepath.Join(base, "run_a", DirClips))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewRejectsUnsafeIDs(t *testing.T) {
	base := t.TempDir()
	for _, id := range []string{"../escape", "a/b", "has space", ".hidden"} {
		_, err := New(base, id)
		assert.Error(t, err, "id %q should be rejected", id)
	}
}

func TestOpenRequiresExistingSession(t *testing.T) {
	base := t.TempDir()
	_, err := Open(base, "missing")
	assert.Error(t, err)

	_, err = New(base, "present")
	require.NoError(t, err)
	sess, err := Open(base, "present")
	require.NoError(t, err)
	assert.Equal(t, "present", sess.ID)
}

func TestWriteSummaryProducesJSONAndMarkdown(t *testing.T) {
	sess, err := New(t.TempDir(), "run_a")
	require.NoError(t, err)

	sum := &types.Summary{
		SessionID:  "run_a",
		Mission:    "test mission",
		Platform:   "youtube",
		Providers:  map[string]string{"visual": "placeholder"},
		FinalVideo: sess.FinalVideo("youtube"),
		StartedAt:  "2026-01-01T00:00:00Z",
	}
	require.NoError(t, sess.WriteSummary(sum))

	jsonData, err := os.ReadFile(sess.MetadataPath("summary.json"))
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"test mission"`)

	mdData, err := os.ReadFile(sess.MetadataPath("summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(mdData), "test mission")
}

func TestPathHelpersStayInsideSession(t *testing.T) {
	base := t.TempDir()
	sess, err := New(base, "run_a")
	require.NoError(t, err)

	paths := []string{
		sess.FinalVideo("youtube"),
		sess.ClipPath(3),
		sess.RawVisualPath(3, ".png"),
		sess.SegmentAudioPath("en", 0),
		sess.NarrationPath("en"),
		sess.MusicBedPath(),
		sess.SubtitlePath("es"),
		sess.ScriptPath(),
		sess.AttemptLogPath(),
	}
	root := filepath.Join(base, "run_a") + string(os.PathSeparator)
	for _, p := range paths {
		assert.True(t, strings.HasPrefix(p, root), "path %s escapes session root", p)
	}
}
