package aggregate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrollsafe/doomscroller/model"
)

func repeat(real, artificial float64, n int) []FrameScore {
	frames := make([]FrameScore, n)
	for i := range frames {
		frames[i] = FrameScore{Real: real, Artificial: artificial}
	}
	return frames
}

func TestStrongAIWithKeyword(t *testing.T) {
	v := Aggregate(repeat(0.03, 0.97, 16), true)
	require.Equal(t, model.LabelAIDetected, v.Label)
	require.InDelta(t, 0.97, v.Confidence, 1e-9)
	require.InDelta(t, 0.03, v.VoteShare.Real, 1e-9)
	require.InDelta(t, 0.97, v.VoteShare.Artificial, 1e-9)
}

func TestDefaultReal(t *testing.T) {
	v := Aggregate(repeat(0.8, 0.2, 16), false)
	require.Equal(t, model.LabelVerified, v.Label)
	require.InDelta(t, 0.8, v.Confidence, 1e-9)
	require.Equal(t, "default_real", v.Reason)
}

func TestSuspiciousNoKeyword(t *testing.T) {
	frames := append(repeat(0.05, 0.95, 4), repeat(0.6, 0.4, 12)...)
	v := Aggregate(frames, false)
	require.Equal(t, model.LabelSuspicious, v.Label)
}

func TestTooFewFrames(t *testing.T) {
	v := Aggregate(repeat(0.5, 0.99, 3), true)
	require.Equal(t, model.LabelVerified, v.Label)
	require.Equal(t, 0.5, v.Confidence)
	require.Equal(t, "too_few_frames_default_real", v.Reason)
}

func TestZeroFrames(t *testing.T) {
	v := Aggregate(nil, false)
	require.Equal(t, model.LabelVerified, v.Label)
	require.Equal(t, 0.5, v.VoteShare.Real)
	require.Equal(t, 0.5, v.VoteShare.Artificial)
}

func TestVeryStrongArtificialNoKeywords(t *testing.T) {
	v := Aggregate(repeat(0.02, 0.98, 16), false)
	require.Equal(t, model.LabelAIDetected, v.Label)
}

// property: for any frame list, the verdict is always one of the three
// labels and confidence is always in [0,1].
func TestAggregateAlwaysProducesValidVerdict(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	valid := map[model.Label]bool{
		model.LabelVerified:   true,
		model.LabelSuspicious: true,
		model.LabelAIDetected: true,
	}
	for i := 0; i < 500; i++ {
		n := rng.Intn(20)
		frames := make([]FrameScore, n)
		for j := range frames {
			a := rng.Float64()
			frames[j] = FrameScore{Real: 1 - a, Artificial: a}
		}
		hasKeywords := rng.Intn(2) == 0
		v := Aggregate(frames, hasKeywords)
		require.True(t, valid[v.Label], "unexpected label %q", v.Label)
		require.GreaterOrEqual(t, v.Confidence, 0.0)
		require.LessOrEqual(t, v.Confidence, 1.0)
		require.InDelta(t, 1.0, v.VoteShare.Real+v.VoteShare.Artificial, 1e-9)
	}
}

func TestVoteShareSumsToOneForAnyNonEmptyInput(t *testing.T) {
	for n := 1; n <= 10; n++ {
		v := Aggregate(repeat(0.5, 0.5, n), false)
		require.InDelta(t, 1.0, v.VoteShare.Real+v.VoteShare.Artificial, 1e-9)
	}
}
