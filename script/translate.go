package script

import (
	"context"
	"encoding/json"
	"fmt"

	"viral-shorts-pipeline/types"
)

const translatePrompt = `Translate these short-video narration lines into the language with ISO 639-1 code %q.
Keep the energy, keep them speakable, do not expand them.
Reply with ONLY a JSON array of strings: same order, same count, nothing else.

LINES:
%s`

// TranslateSegments renders every segment's narration into another
// language. The returned slice is index-aligned with script.Segments.
func TranslateSegments(ctx context.Context, gen TextGenerator, script *types.Script, lang string) ([]string, error) {
	lines := make([]string, len(script.Segments))
	for i, seg := range script.Segments {
		lines[i] = seg.Text
	}
	encoded, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}

	var translated []string
	if err := gen.GenerateJSON(ctx, fmt.Sprintf(translatePrompt, lang, string(encoded)), &translated); err != nil {
		return nil, fmt.Errorf("translate to %s: %w", lang, err)
	}
	if len(translated) != len(script.Segments) {
		return nil, fmt.Errorf("translate to %s: got %d lines, want %d", lang, len(translated), len(script.Segments))
	}
	return translated, nil
}
