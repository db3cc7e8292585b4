package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies why a provider attempt failed.
type FailureKind int

const (
	// FailureUnavailable is the catch-all: missing local dependency,
	// network trouble, or an unclassified provider error.
	FailureUnavailable FailureKind = iota
	FailureQuota
	FailurePolicy
	FailureAuth
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureQuota:
		return "quota_exceeded"
	case FailurePolicy:
		return "content_policy_rejected"
	case FailureAuth:
		return "authentication_failed"
	case FailureTimeout:
		return "timeout"
	default:
		return "unavailable"
	}
}

// Error is a classified provider failure.
type Error struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Fail wraps err as a classified provider failure.
func Fail(provider string, kind FailureKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the failure kind from err.
func KindOf(err error) FailureKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureUnavailable
}

// Request is one modality generation request. It is ephemeral: assembled
// per segment (or per narration track) and never persisted.
type Request struct {
	Prompt      string
	Style       string
	Voice       string
	Language    string
	DurationSec float64
	AspectRatio string
	OutPath     string
	Timeout     time.Duration
}

// Provider produces one artifact file for a request. Implementations
// return the artifact path on success and a classified error on failure.
type Provider interface {
	Name() string
	Paid() bool
	Generate(ctx context.Context, req Request) (string, error)
}
