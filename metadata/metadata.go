package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/types"
)

// TextGenerator is the slice of the text capability this package needs.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, out any) error
}

const distributionPrompt = `You write distribution copy for short-form video.

Video title: %q
Mission: %q
Platform: %s

Return ONLY a JSON object:
{
  "title": "curiosity-driven title, max %d characters, no clickbait caps",
  "description": "2-3 sentences with a question to drive comments",
  "hashtags": [%d short hashtag strings without the # prefix],
  "thumbnail_prompt": "one-sentence image prompt for a thumbnail"
}`

// Generate asks the text model for platform copy. Callers should treat a
// failure as non-fatal and fall back to Fallback.
func Generate(ctx context.Context, gen TextGenerator, cfg config.MetadataConfig, req *types.Request, script *types.Script) (*types.Distribution, error) {
	var raw struct {
		Title           string   `json:"title"`
		Description     string   `json:"description"`
		Hashtags        []string `json:"hashtags"`
		ThumbnailPrompt string   `json:"thumbnail_prompt"`
	}
	prompt := fmt.Sprintf(distributionPrompt, script.Title, req.Mission, req.Platform.Name, cfg.TitleMaxChars, cfg.HashtagCount)
	if err := gen.GenerateJSON(ctx, prompt, &raw); err != nil {
		return nil, fmt.Errorf("distribution copy: %w", err)
	}
	if raw.Title == "" {
		raw.Title = script.Title
	}
	dist := &types.Distribution{
		Title:           clampTitle(raw.Title, cfg.TitleMaxChars),
		Description:     strings.TrimSpace(raw.Description),
		Hashtags:        normalizeHashtags(raw.Hashtags, cfg.HashtagCount),
		ThumbnailPrompt: strings.TrimSpace(raw.ThumbnailPrompt),
	}
	log.Info().Str("stage", "metadata").Str("title", dist.Title).Msg("distribution copy ready")
	return dist, nil
}

// Fallback builds serviceable copy from the script alone.
func Fallback(cfg config.MetadataConfig, req *types.Request, script *types.Script) *types.Distribution {
	title := script.Title
	if title == "" {
		title = req.Mission
	}
	return &types.Distribution{
		Title:       clampTitle(title, cfg.TitleMaxChars),
		Description: strings.TrimSpace(script.Hook),
		Hashtags:    normalizeHashtags([]string{"shorts", "viral", req.Style}, cfg.HashtagCount),
	}
}

// clampTitle cuts at a word boundary so truncation never ends mid-word.
func clampTitle(title string, max int) string {
	title = strings.TrimSpace(title)
	if max <= 0 || len(title) <= max {
		return title
	}
	cut := title[:max-3]
	if idx := strings.LastIndex(cut, " "); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func normalizeHashtags(tags []string, count int) []string {
	if count <= 0 {
		count = 5
	}
	seen := map[string]bool{}
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		tag = strings.ReplaceAll(tag, " ", "")
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, "#"+tag)
		if len(out) == count {
			break
		}
	}
	return out
}
