package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/types"
)

type fakeGen struct {
	payload string
	err     error
}

func (f *fakeGen) GenerateJSON(_ context.Context, prompt string, out any) error {
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.payload), out)
}

func testInputs() (config.MetadataConfig, *types.Request, *types.Script) {
	cfg := config.MetadataConfig{Enabled: true, TitleMaxChars: 60, HashtagCount: 4}
	req := &types.Request{Mission: "why honey never spoils", Style: "dynamic"}
	script := &types.Script{Title: "Honey Never Dies", Hook: "This food can outlive you."}
	return cfg, req, script
}

func TestGenerateNormalizesCopy(t *testing.T) {
	cfg, req, script := testInputs()
	gen := &fakeGen{payload: `{
		"title": "  The 3000 Year Old Snack  ",
		"description": "Honey found in tombs is still edible. Would you taste it?",
		"hashtags": ["honey", "#Science", "food facts", "honey", "", "more", "extra"],
		"thumbnail_prompt": "golden honey jar in torchlight"
	}`}

	dist, err := Generate(context.Background(), gen, cfg, req, script)
	require.NoError(t, err)

	assert.Equal(t, "The 3000 Year Old Snack", dist.Title)
	assert.Equal(t, []string{"#honey", "#Science", "#foodfacts", "#more"}, dist.Hashtags)
	assert.NotEmpty(t, dist.ThumbnailPrompt)
}

func TestGenerateFailurePropagates(t *testing.T) {
	cfg, req, script := testInputs()
	_, err := Generate(context.Background(), &fakeGen{err: fmt.Errorf("model down")}, cfg, req, script)
	require.Error(t, err)
}

func TestFallbackUsesScript(t *testing.T) {
	cfg, req, script := testInputs()
	dist := Fallback(cfg, req, script)

	assert.Equal(t, "Honey Never Dies", dist.Title)
	assert.Equal(t, "This food can outlive you.", dist.Description)
	assert.Contains(t, dist.Hashtags, "#shorts")
	assert.Contains(t, dist.Hashtags, "#dynamic")
}

func TestClampTitleCutsAtWordBoundary(t *testing.T) {
	long := "This title keeps going and going far past any platform limit ever set"
	clamped := clampTitle(long, 40)

	assert.LessOrEqual(t, len(clamped), 40)
	assert.True(t, len(clamped) > 0)
	assert.Contains(t, clamped, "...")
	// No mid-word cut before the ellipsis.
	assert.NotContains(t, clamped, "goin...")

	assert.Equal(t, "short", clampTitle("short", 40))
	assert.Equal(t, "exact", clampTitle("exact", 5))
}

func TestNormalizeHashtagsDedupes(t *testing.T) {
	tags := normalizeHashtags([]string{"#One", "one", "two", "  ", "three"}, 10)
	assert.Equal(t, []string{"#One", "#two", "#three"}, tags)
}
