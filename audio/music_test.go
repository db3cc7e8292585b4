package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/session"
)

func musicDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644))
	}
	return dir
}

func TestPickTrackPrefersConfiguredMapping(t *testing.T) {
	dir := musicDir(t, "calm_piano.mp3", "upbeat_energy.mp3")
	cfg := config.MusicConfig{
		Dir:         dir,
		StyleTracks: map[string]string{"cinematic": "calm_piano.mp3"},
	}
	assert.Equal(t, filepath.Join(dir, "calm_piano.mp3"), PickTrack(cfg, "Cinematic"))
}

func TestPickTrackScansWhenConfiguredTrackIsMissing(t *testing.T) {
	dir := musicDir(t, "real.mp3")
	cfg := config.MusicConfig{
		Dir:         dir,
		StyleTracks: map[string]string{"cinematic": "deleted.mp3"},
	}
	assert.Equal(t, filepath.Join(dir, "real.mp3"), PickTrack(cfg, "cinematic"))
}

func TestPickTrackMatchesStyleInFilename(t *testing.T) {
	dir := musicDir(t, "dramatic_strings.mp3", "upbeat.mp3")
	cfg := config.MusicConfig{Dir: dir}
	assert.Equal(t, filepath.Join(dir, "dramatic_strings.mp3"), PickTrack(cfg, "Dramatic"))
}

func TestPickTrackFallsBackToFirstSorted(t *testing.T) {
	dir := musicDir(t, "b_track.mp3", "a_track.mp3")
	cfg := config.MusicConfig{Dir: dir}
	assert.Equal(t, filepath.Join(dir, "a_track.mp3"), PickTrack(cfg, "jazz"))
}

func TestPickTrackIgnoresNonAudioFiles(t *testing.T) {
	dir := musicDir(t, "notes.txt", "cover.jpg")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	cfg := config.MusicConfig{Dir: dir}
	assert.Empty(t, PickTrack(cfg, "cinematic"))
}

func TestPickTrackWithoutDir(t *testing.T) {
	assert.Empty(t, PickTrack(config.MusicConfig{}, "cinematic"))
}

func TestMusicBedDisabled(t *testing.T) {
	sess, err := session.New(t.TempDir(), "")
	require.NoError(t, err)
	runner := &fakeRunner{}

	path, err := MusicBed(context.Background(), runner, config.MusicConfig{Enabled: false}, sess, "cinematic", 30)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, runner.cmds)
}

func TestMusicBedContinuesWithoutTracks(t *testing.T) {
	sess, err := session.New(t.TempDir(), "")
	require.NoError(t, err)
	cfg := config.MusicConfig{Enabled: true, Dir: t.TempDir()}

	path, err := MusicBed(context.Background(), &fakeRunner{}, cfg, sess, "cinematic", 30)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestMusicBedLoopsShortTracks(t *testing.T) {
	sess, err := session.New(t.TempDir(), "")
	require.NoError(t, err)
	dir := musicDir(t, "cinematic_theme.mp3")
	cfg := config.MusicConfig{Enabled: true, Dir: dir}

	runner := &fakeRunner{duration: "10.0"}
	path, err := MusicBed(context.Background(), runner, cfg, sess, "cinematic", 30)
	require.NoError(t, err)
	assert.Equal(t, sess.MusicBedPath(), path)

	require.Len(t, runner.cmds, 1)
	joined := strings.Join(runner.cmds[0], " ")
	assert.Contains(t, joined, "-stream_loop -1")
	assert.Contains(t, joined, "-t 30.000")
	assert.Contains(t, joined, "libmp3lame")
}

func TestMusicBedTrimsLongTracks(t *testing.T) {
	sess, err := session.New(t.TempDir(), "")
	require.NoError(t, err)
	dir := musicDir(t, "cinematic_theme.mp3")
	cfg := config.MusicConfig{Enabled: true, Dir: dir}

	runner := &fakeRunner{duration: "120.0"}
	_, err = MusicBed(context.Background(), runner, cfg, sess, "cinematic", 30)
	require.NoError(t, err)

	require.Len(t, runner.cmds, 1)
	joined := strings.Join(runner.cmds[0], " ")
	assert.NotContains(t, joined, "-stream_loop")
	assert.Contains(t, joined, "-t 30.000")
}
