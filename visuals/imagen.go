package visuals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"viral-shorts-pipeline/gemini"
	"viral-shorts-pipeline/providers"
)

// Imagen generates a still per segment when both VEO tiers fail. The
// assembler turns stills into motion clips afterwards.
type Imagen struct {
	client *genai.Client
	model  string
}

func NewImagen(client *genai.Client, model string) *Imagen {
	return &Imagen{client: client, model: model}
}

func (im *Imagen) Name() string { return "imagen" }
func (im *Imagen) Paid() bool   { return true }

func (im *Imagen) Generate(ctx context.Context, req providers.Request) (string, error) {
	resp, err := im.client.Models.GenerateImages(ctx, im.model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    req.AspectRatio,
	})
	if err != nil {
		return "", providers.Fail(im.Name(), gemini.Classify(err), err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return "", providers.Fail(im.Name(), providers.FailurePolicy,
			fmt.Errorf("no images in response, prompt likely filtered"))
	}
	data := resp.GeneratedImages[0].Image.ImageBytes
	if len(data) == 0 {
		return "", providers.Fail(im.Name(), providers.FailureUnavailable, fmt.Errorf("empty image bytes"))
	}
	path := imagePath(req.OutPath)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", providers.Fail(im.Name(), providers.FailureUnavailable, err)
	}
	return path, nil
}

// imagePath swaps the chain's video extension for a still extension.
func imagePath(outPath string) string {
	return strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".png"
}
