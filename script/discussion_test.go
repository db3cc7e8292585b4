package script

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscussionApprovesAboveThreshold(t *testing.T) {
	gen := &fakeGen{replies: []string{"Approve. The hook is strong and the arc works."}}
	req := testRequest()

	result, err := NewDiscussion(testConfig(), gen).Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.Turns, 5)
	assert.GreaterOrEqual(t, result.Consensus, 0.6)
	// Approved concepts keep the original mission untouched.
	assert.Equal(t, req.Mission, result.Brief)
	assert.Equal(t, "TrendScout", result.Turns[0].Persona)
}

func TestDiscussionRefinesBriefBelowThreshold(t *testing.T) {
	gen := &fakeGen{replies: []string{"My concern is the hook feels weak. Revise the opening."}}
	req := testRequest()

	result, err := NewDiscussion(testConfig(), gen).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Less(t, result.Consensus, 0.6)
	assert.NotEqual(t, req.Mission, result.Brief)
	assert.Contains(t, result.Brief, req.Mission)
	assert.Contains(t, result.Brief, "TrendScout:")
	assert.Contains(t, result.Brief, "production feedback")
}

func TestDiscussionSkipsFailedTurns(t *testing.T) {
	gen := &fakeGen{err: fmt.Errorf("model down")}
	_, err := NewDiscussion(testConfig(), gen).Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every persona turn failed")
}

func TestDiscussionTurnsSeeTranscript(t *testing.T) {
	gen := &fakeGen{replies: []string{"Approve, works for me."}}
	_, err := NewDiscussion(testConfig(), gen).Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, gen.prompts, 5)
	assert.NotContains(t, gen.prompts[0], "DISCUSSION SO FAR")
	assert.Contains(t, gen.prompts[1], "DISCUSSION SO FAR")
	assert.Contains(t, gen.prompts[4], "TrendScout:")
}

func TestConsensusScoring(t *testing.T) {
	cases := []struct {
		name  string
		turns []Turn
		want  float64
	}{
		{"all agree", []Turn{{Reply: "approve"}, {Reply: "solid, works"}}, 1.0},
		{"all reserve", []Turn{{Reply: "big concern here"}, {Reply: "too weak"}}, 0.0},
		{"neutral", []Turn{{Reply: "interesting topic"}}, 0.5},
		{"split turn", []Turn{{Reply: "approve but one concern"}}, 0.5},
		{"empty", nil, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Consensus(tc.turns), 1e-9)
		})
	}
}

func TestTranslateSegmentsAlignsByIndex(t *testing.T) {
	script, err := NewWriter(testConfig(), &fakeGen{jsonOut: sampleScriptJSON}).Run(context.Background(), testRequest())
	require.NoError(t, err)

	gen := &fakeGen{jsonOut: `["uno", "dos", "tres"]`}
	lines, err := TranslateSegments(context.Background(), gen, script, "es")
	require.NoError(t, err)
	assert.Equal(t, []string{"uno", "dos", "tres"}, lines)
	assert.Contains(t, gen.prompts[0], `"es"`)
}

func TestTranslateSegmentsRejectsCountMismatch(t *testing.T) {
	script, err := NewWriter(testConfig(), &fakeGen{jsonOut: sampleScriptJSON}).Run(context.Background(), testRequest())
	require.NoError(t, err)

	gen := &fakeGen{jsonOut: `["solo una"]`}
	_, err = TranslateSegments(context.Background(), gen, script, "es")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 3")
}
