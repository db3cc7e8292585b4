package providers

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Attempt records one provider call and its outcome.
type Attempt struct {
	Timestamp  string `json:"timestamp"`
	Modality   string `json:"modality"`
	Provider   string `json:"provider"`
	Outcome    string `json:"outcome"` // success, failure or placeholder
	Failure    string `json:"failure,omitempty"`
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Rephrased  bool   `json:"rephrased,omitempty"`
	Artifact   string `json:"artifact,omitempty"`
}

// AttemptLog appends every chain attempt to a JSON file for post-hoc
// debugging. It is a flat log, not a metrics system.
type AttemptLog struct {
	path     string
	attempts []Attempt
}

// NewAttemptLog writes to path on every append. An empty path keeps the
// log in memory only (tests).
func NewAttemptLog(path string) *AttemptLog {
	return &AttemptLog{path: path}
}

// Append records an attempt, rewrites the log file and mirrors the record
// to the structured logger.
func (l *AttemptLog) Append(a Attempt) {
	if l == nil {
		return
	}
	a.Timestamp = time.Now().UTC().Format(time.RFC3339)
	l.attempts = append(l.attempts, a)
	l.flush()

	evt := log.Info()
	if a.Outcome == "failure" {
		evt = log.Warn()
	}
	evt.Str("modality", a.Modality).
		Str("provider", a.Provider).
		Str("outcome", a.Outcome).
		Str("failure", a.Failure).
		Int64("duration_ms", a.DurationMS).
		Bool("rephrased", a.Rephrased).
		Msg("generation attempt")
}

func (l *AttemptLog) flush() {
	if l.path == "" {
		return
	}
	data, err := json.MarshalIndent(l.attempts, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(l.path, data, 0o644)
}

// Attempts returns a copy of everything recorded so far.
func (l *AttemptLog) Attempts() []Attempt {
	if l == nil {
		return nil
	}
	out := make([]Attempt, len(l.attempts))
	copy(out, l.attempts)
	return out
}

// ServedBy lists the distinct providers that produced artifacts for a
// modality, in first-use order.
func (l *AttemptLog) ServedBy(modality string) string {
	if l == nil {
		return ""
	}
	seen := make(map[string]bool)
	var names []string
	for _, a := range l.attempts {
		if a.Modality != modality {
			continue
		}
		if a.Outcome != "success" && a.Outcome != "placeholder" {
			continue
		}
		if seen[a.Provider] {
			continue
		}
		seen[a.Provider] = true
		names = append(names, a.Provider)
	}
	return strings.Join(names, ", ")
}

// PlaceholderUsed reports whether a placeholder served the modality.
func (l *AttemptLog) PlaceholderUsed(modality string) bool {
	if l == nil {
		return false
	}
	for _, a := range l.attempts {
		if a.Modality == modality && a.Outcome == "placeholder" {
			return true
		}
	}
	return false
}
