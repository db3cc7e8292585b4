package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"viral-shorts-pipeline/providers"
)

// Client wraps the Gemini text capability. One instance is built per run
// and threaded explicitly through every stage that needs text generation.
type Client struct {
	genai       *genai.Client
	model       string
	temperature float32
}

// New dials the Gemini API.
func New(ctx context.Context, apiKey, model string, temperature float64) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key: set GEMINI_API_KEY or GOOGLE_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{genai: client, model: model, temperature: float32(temperature)}, nil
}

// Raw exposes the underlying genai client for the video and image
// providers, which share the same API key and backend.
func (c *Client) Raw() *genai.Client { return c.genai }

// Model returns the configured text model name.
func (c *Client) Model() string { return c.model }

// Generate runs a single text generation call.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(c.temperature)}
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", providers.Fail("gemini", Classify(err), err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", providers.Fail("gemini", providers.FailurePolicy, errors.New("empty response, likely a safety block"))
	}
	return text, nil
}

// GenerateJSON generates a reply and unmarshals it into out, stripping the
// markdown code fences the model sometimes wraps around JSON.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, out any) error {
	text, err := c.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	cleaned := StripFences(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("parse model JSON: %w (reply starts: %s)", err, snippet(cleaned))
	}
	return nil
}

const rephrasePrompt = `The following generation prompt was rejected by a content policy filter.
Rewrite it so it keeps the same meaning and visual intent but removes anything likely to trigger safety filters: real people's names, violence, brands, sensitive topics.
Reply with ONLY the rewritten prompt, nothing else.

PROMPT:
%s`

// Rephrase asks the model to sanitize a prompt after a content policy
// rejection. The fallback chains use it for their one-shot retry.
func (c *Client) Rephrase(ctx context.Context, prompt string) (string, error) {
	log.Info().Str("stage", "rephrase").Msg("sanitizing rejected prompt")
	out, err := c.Generate(ctx, fmt.Sprintf(rephrasePrompt, prompt))
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(out), `"`), nil
}

// StripFences removes a ```json ... ``` wrapper from a model reply.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Classify maps an error from the genai SDK onto the failure taxonomy.
func Classify(err error) providers.FailureKind {
	if err == nil {
		return providers.FailureUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return providers.FailureTimeout
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return providers.FailureQuota
		case 401, 403:
			return providers.FailureAuth
		}
		switch apiErr.Status {
		case "RESOURCE_EXHAUSTED":
			return providers.FailureQuota
		case "PERMISSION_DENIED", "UNAUTHENTICATED":
			return providers.FailureAuth
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "429"):
		return providers.FailureQuota
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthenticated") || strings.Contains(msg, "permission denied") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return providers.FailureAuth
	case strings.Contains(msg, "safety") || strings.Contains(msg, "policy") || strings.Contains(msg, "blocked") || strings.Contains(msg, "prohibited"):
		return providers.FailurePolicy
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
		return providers.FailureTimeout
	}
	return providers.FailureUnavailable
}

func snippet(s string) string {
	if len(s) <= 120 {
		return s
	}
	return s[:120] + "..."
}
