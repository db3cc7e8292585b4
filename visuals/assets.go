package visuals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"viral-shorts-pipeline/providers"
)

var assetExtensions = map[string]bool{".mp4": true, ".mov": true, ".png": true, ".jpg": true, ".jpeg": true}

// reuseCooldown keeps one clip from carrying several sessions in a row.
const reuseCooldown = 24 * time.Hour

// LocalAssets serves segments from an on-disk b-roll library, matched by
// tag overlap with the visual prompt. Free, offline, last before the
// placeholder.
type LocalAssets struct {
	dir       string
	tagsPath  string
	usagePath string
}

func NewLocalAssets(dir, tagsPath, usagePath string) *LocalAssets {
	return &LocalAssets{dir: dir, tagsPath: tagsPath, usagePath: usagePath}
}

func (a *LocalAssets) Name() string { return "local-assets" }
func (a *LocalAssets) Paid() bool   { return false }

func (a *LocalAssets) Generate(ctx context.Context, req providers.Request) (string, error) {
	if a.dir == "" {
		return "", providers.Fail(a.Name(), providers.FailureUnavailable, fmt.Errorf("no asset library configured"))
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return "", providers.Fail(a.Name(), providers.FailureUnavailable, fmt.Errorf("read asset dir: %w", err))
	}

	tags := a.loadTags()
	usage := a.loadUsage()
	now := time.Now()

	type candidate struct {
		name  string
		score int
	}
	words := promptWords(req.Prompt + " " + req.Style)
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !assetExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		if last, ok := usage[e.Name()]; ok && now.Sub(last) < reuseCooldown {
			continue
		}
		score := tagScore(words, e.Name(), tags[e.Name()])
		if score > 0 {
			candidates = append(candidates, candidate{name: e.Name(), score: score})
		}
	}
	if len(candidates) == 0 {
		return "", providers.Fail(a.Name(), providers.FailureUnavailable, fmt.Errorf("no asset matches prompt"))
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	chosen := candidates[0].name
	src := filepath.Join(a.dir, chosen)
	dst := strings.TrimSuffix(req.OutPath, filepath.Ext(req.OutPath)) + strings.ToLower(filepath.Ext(chosen))
	if err := copyFile(src, dst); err != nil {
		return "", providers.Fail(a.Name(), providers.FailureUnavailable, err)
	}

	usage[chosen] = now
	a.saveUsage(usage)
	return dst, nil
}

func (a *LocalAssets) loadTags() map[string][]string {
	tags := map[string][]string{}
	if a.tagsPath == "" {
		return tags
	}
	data, err := os.ReadFile(a.tagsPath)
	if err != nil {
		return tags
	}
	yaml.Unmarshal(data, &tags)
	return tags
}

func (a *LocalAssets) loadUsage() map[string]time.Time {
	usage := map[string]time.Time{}
	if a.usagePath == "" {
		return usage
	}
	data, err := os.ReadFile(a.usagePath)
	if err != nil {
		return usage
	}
	json.Unmarshal(data, &usage)
	return usage
}

func (a *LocalAssets) saveUsage(usage map[string]time.Time) {
	if a.usagePath == "" {
		return
	}
	data, err := json.MarshalIndent(usage, "", "  ")
	if err != nil {
		return
	}
	os.WriteFile(a.usagePath, data, 0o644)
}

func tagScore(words map[string]bool, filename string, tags []string) int {
	score := 0
	for _, tag := range tags {
		if words[strings.ToLower(tag)] {
			score += 2
		}
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, part := range strings.FieldsFunc(strings.ToLower(base), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}) {
		if words[part] {
			score++
		}
	}
	return score
}

func promptWords(s string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?\"'():;")
		if len(w) > 2 {
			words[w] = true
		}
	}
	return words
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy asset: %w", err)
	}
	return nil
}
