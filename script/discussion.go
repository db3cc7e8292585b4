package script

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/types"
)

// The pre-production "discussion" is a fixed list of persona prompt
// templates sent one after another to the same text model. There are no
// independent agents: each turn sees the transcript so far, and the
// consensus score is a keyword heuristic over the replies.

// Persona is one templated reviewer voice.
type Persona struct {
	Name  string
	Brief string
}

var personas = []Persona{
	{"TrendScout", "You judge scroll-stopping potential. Is the hook strong enough for {{.Platform}}? Would this trend?"},
	{"StorySmith", "You judge narrative. Does the concept have a clear arc and payoff within {{.Duration}} seconds?"},
	{"VisualDirector", "You judge filmability. Can each beat become a striking vertical shot without text overlays?"},
	{"SoundDesigner", "You judge the audio side. Will narration pacing and a music bed carry this concept?"},
	{"PlatformStrategist", "You judge platform fit. Does this respect {{.Platform}} conventions and its {{.Duration}}s budget?"},
}

const turnTemplate = `You are {{.Name}}, a short-form video producer. {{.Role}}

CONCEPT: {{.Mission}}
STYLE: {{.Style}}

{{if .Transcript}}DISCUSSION SO FAR:
{{.Transcript}}

{{end}}Give your verdict in 2-3 sentences. Be concrete. If you approve, say "approve". If you have reservations, name the single biggest concern and a fix.`

var turnTmpl = template.Must(template.New("turn").Parse(turnTemplate))

// Turn is one persona's reply.
type Turn struct {
	Persona string `json:"persona"`
	Reply   string `json:"reply"`
}

// DiscussionResult is the transcript, its consensus score and the brief
// the script writer should use.
type DiscussionResult struct {
	Turns     []Turn  `json:"turns"`
	Consensus float64 `json:"consensus_score"`
	Brief     string  `json:"refined_brief"`
}

// Discussion runs the persona round.
type Discussion struct {
	cfg *config.Config
	gen TextGenerator
}

// NewDiscussion creates a Discussion stage.
func NewDiscussion(cfg *config.Config, gen TextGenerator) *Discussion {
	return &Discussion{cfg: cfg, gen: gen}
}

// Run sends each persona prompt in sequence and scores the replies. When
// consensus lands below the configured threshold, the reservations are
// folded into a refined brief; otherwise the original mission stands. The
// stage is advisory: individual turn failures are skipped, and only a
// fully failed round returns an error.
func (d *Discussion) Run(ctx context.Context, req types.Request) (*DiscussionResult, error) {
	result := &DiscussionResult{Brief: req.Mission}
	var transcript strings.Builder

	for _, p := range personas {
		prompt, err := renderTurn(p, req, transcript.String())
		if err != nil {
			return nil, fmt.Errorf("render persona %s: %w", p.Name, err)
		}
		reply, err := d.gen.Generate(ctx, prompt)
		if err != nil {
			log.Warn().Str("stage", "discussion").Str("persona", p.Name).Err(err).Msg("turn skipped")
			continue
		}
		reply = strings.TrimSpace(reply)
		result.Turns = append(result.Turns, Turn{Persona: p.Name, Reply: reply})
		fmt.Fprintf(&transcript, "%s: %s\n", p.Name, reply)
	}

	if len(result.Turns) == 0 {
		return nil, fmt.Errorf("discussion: every persona turn failed")
	}

	result.Consensus = Consensus(result.Turns)
	if result.Consensus < d.cfg.Discussion.ConsensusThreshold {
		result.Brief = refineBrief(req.Mission, result.Turns)
		log.Info().Str("stage", "discussion").
			Float64("consensus", result.Consensus).
			Msg("below threshold, folding feedback into the brief")
	} else {
		log.Info().Str("stage", "discussion").
			Float64("consensus", result.Consensus).
			Msg("concept approved")
	}
	return result, nil
}

func renderTurn(p Persona, req types.Request, transcript string) (string, error) {
	roleTmpl, err := template.New(p.Name).Parse(p.Brief)
	if err != nil {
		return "", err
	}
	var role strings.Builder
	if err := roleTmpl.Execute(&role, map[string]any{
		"Platform": req.Platform.Name,
		"Duration": int(req.DurationSec),
	}); err != nil {
		return "", err
	}

	var out strings.Builder
	err = turnTmpl.Execute(&out, map[string]any{
		"Name":       p.Name,
		"Role":       role.String(),
		"Mission":    req.Mission,
		"Style":      req.Style,
		"Transcript": transcript,
	})
	return out.String(), err
}

var agreeWords = []string{
	"approve", "agree", "strong", "works", "solid", "ready", "love", "yes", "great hook",
}

var reserveWords = []string{
	"concern", "worried", "risk", "weak", "revise", "unclear", "missing", "problem", "doubt", "won't work", "too long",
}

// Consensus scores the transcript in [0,1] by keyword matching: each turn
// contributes agreement hits against reservation hits, neutral turns count
// as 0.5.
func Consensus(turns []Turn) float64 {
	if len(turns) == 0 {
		return 0
	}
	var sum float64
	for _, t := range turns {
		reply := strings.ToLower(t.Reply)
		agree := countMatches(reply, agreeWords)
		reserve := countMatches(reply, reserveWords)
		if agree+reserve == 0 {
			sum += 0.5
			continue
		}
		sum += float64(agree) / float64(agree+reserve)
	}
	return sum / float64(len(turns))
}

func countMatches(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// refineBrief folds the reservations into the mission text verbatim. No
// synthesis happens here: the script writer sees the feedback as-is.
func refineBrief(mission string, turns []Turn) string {
	var b strings.Builder
	b.WriteString(mission)
	b.WriteString("\n\nIncorporate this production feedback:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "- %s: %s\n", t.Persona, truncate(t.Reply, 200))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
