package visuals

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"viral-shorts-pipeline/providers"
)

const pollinationsBase = "https://image.pollinations.ai/prompt/"

// minImageBytes rejects the tiny error pages the endpoint sometimes
// returns with a 200 status.
const minImageBytes = 8 * 1024

// Pollinations fetches free generated stills. It is the keyless fallback
// and the first visual provider in cheap mode.
type Pollinations struct {
	httpClient *http.Client
	width      int
	height     int
}

func NewPollinations(width, height int) *Pollinations {
	return &Pollinations{httpClient: http.DefaultClient, width: width, height: height}
}

func (p *Pollinations) Name() string { return "pollinations" }
func (p *Pollinations) Paid() bool   { return false }

func (p *Pollinations) Generate(ctx context.Context, req providers.Request) (string, error) {
	prompt := req.Prompt
	if req.Style != "" {
		prompt = fmt.Sprintf("%s, %s style, vertical composition, high detail", prompt, req.Style)
	}
	// Seeding from the prompt keeps reruns of the same session stable.
	endpoint := fmt.Sprintf("%s%s?width=%d&height=%d&seed=%d&nologo=true&model=flux",
		pollinationsBase, url.PathEscape(prompt), p.width, p.height, promptSeed(prompt))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", providers.Fail(p.Name(), providers.FailureUnavailable, err)
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		kind := providers.FailureUnavailable
		if ctx.Err() != nil {
			kind = providers.FailureTimeout
		}
		return "", providers.Fail(p.Name(), kind, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", providers.Fail(p.Name(), providers.FailureQuota, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", providers.Fail(p.Name(), providers.FailureUnavailable, fmt.Errorf("status %d", resp.StatusCode))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return "", providers.Fail(p.Name(), providers.FailureUnavailable, fmt.Errorf("unexpected content type %s", ct))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return "", providers.Fail(p.Name(), providers.FailureUnavailable, err)
	}
	if len(data) < minImageBytes {
		return "", providers.Fail(p.Name(), providers.FailureUnavailable,
			fmt.Errorf("response too small (%d bytes), likely an error page", len(data)))
	}
	path := imagePath(req.OutPath)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", providers.Fail(p.Name(), providers.FailureUnavailable, err)
	}
	return path, nil
}

func promptSeed(prompt string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return h.Sum32()
}
