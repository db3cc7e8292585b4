package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PlaceholderFunc emits the deterministic fallback artifact for a request.
// Calling it twice with the same request must yield byte-identical files.
type PlaceholderFunc func(ctx context.Context, req Request) (string, error)

// RephraseFunc asks the text capability to sanitize a prompt after a
// content policy rejection.
type RephraseFunc func(ctx context.Context, prompt string) (string, error)

// Chain attempts providers in fixed priority order and substitutes a
// deterministic placeholder when all of them fail. It is a linear cascade:
// next provider on failure, stop on success. No backoff, no retry budget.
type Chain struct {
	modality    string
	cheap       bool
	providers   []Provider
	rephrase    RephraseFunc
	placeholder PlaceholderFunc
	log         *AttemptLog
}

// NewChain builds a chain for one modality. When cheap is set, Use drops
// paid providers at registration, so cheap mode cannot reach a paid code
// path at all.
func NewChain(modality string, cheap bool, attempts *AttemptLog) *Chain {
	return &Chain{modality: modality, cheap: cheap, log: attempts}
}

// Use appends a provider; registration order is attempt order.
func (c *Chain) Use(p Provider) {
	if p == nil {
		return
	}
	if c.cheap && p.Paid() {
		return
	}
	c.providers = append(c.providers, p)
}

// WithRephrase enables the one-shot prompt sanitization retry.
func (c *Chain) WithRephrase(f RephraseFunc) { c.rephrase = f }

// WithPlaceholder sets the terminal fallback.
func (c *Chain) WithPlaceholder(f PlaceholderFunc) { c.placeholder = f }

// ProviderNames returns the registered providers in attempt order.
func (c *Chain) ProviderNames() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Result is what a chain run produced.
type Result struct {
	Path        string
	Provider    string
	Placeholder bool
}

// Generate runs the cascade for one request. Provider failures never
// escape: the only error a caller can see is a failed placeholder (which
// aborts the run). On a content policy rejection the prompt is rephrased
// once and the same provider retried once; the sanitized prompt then
// carries over to the remaining providers.
func (c *Chain) Generate(ctx context.Context, req Request) (Result, error) {
	rephrased := false
	for _, p := range c.providers {
		res, err := c.attempt(ctx, p, req, rephrased)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%s generation canceled: %w", c.modality, ctx.Err())
		}
		if KindOf(err) == FailurePolicy && !rephrased && c.rephrase != nil {
			rephrased = true
			cleaned, rerr := c.rephrase(ctx, req.Prompt)
			if rerr == nil && cleaned != "" {
				req.Prompt = cleaned
				res, err = c.attempt(ctx, p, req, true)
				if err == nil {
					return res, nil
				}
				if ctx.Err() != nil {
					return Result{}, fmt.Errorf("%s generation canceled: %w", c.modality, ctx.Err())
				}
			}
		}
	}
	return c.substitute(ctx, req)
}

func (c *Chain) attempt(ctx context.Context, p Provider, req Request, rephrased bool) (Result, error) {
	actx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	start := time.Now()
	path, err := p.Generate(actx, req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = Fail(p.Name(), FailureTimeout, err)
		}
		c.log.Append(Attempt{
			Modality:   c.modality,
			Provider:   p.Name(),
			Outcome:    "failure",
			Failure:    KindOf(err).String(),
			Detail:     err.Error(),
			DurationMS: elapsed,
			Rephrased:  rephrased,
		})
		return Result{}, err
	}
	c.log.Append(Attempt{
		Modality:   c.modality,
		Provider:   p.Name(),
		Outcome:    "success",
		DurationMS: elapsed,
		Rephrased:  rephrased,
		Artifact:   path,
	})
	return Result{Path: path, Provider: p.Name()}, nil
}

func (c *Chain) substitute(ctx context.Context, req Request) (Result, error) {
	if c.placeholder == nil {
		return Result{}, fmt.Errorf("%s: all providers failed and no placeholder is configured", c.modality)
	}
	start := time.Now()
	path, err := c.placeholder(ctx, req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		c.log.Append(Attempt{
			Modality:   c.modality,
			Provider:   "placeholder",
			Outcome:    "failure",
			Failure:    FailureUnavailable.String(),
			Detail:     err.Error(),
			DurationMS: elapsed,
		})
		return Result{}, fmt.Errorf("%s placeholder: %w", c.modality, err)
	}
	c.log.Append(Attempt{
		Modality:   c.modality,
		Provider:   "placeholder",
		Outcome:    "placeholder",
		DurationMS: elapsed,
		Artifact:   path,
	})
	return Result{Path: path, Provider: "placeholder", Placeholder: true}, nil
}
