package heuristics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrollsafe/doomscroller/model"
)

func TestCheckMatchesKeyword(t *testing.T) {
	r := Check("AI generated deepfake demo", "synthlab")
	require.Equal(t, string(model.LabelAIDetected), r.Result)
	require.Equal(t, 0.7, r.Confidence)
	require.Contains(t, r.Reason, "keyword_match")
}

func TestCheckCaseInsensitive(t *testing.T) {
	r := Check("Totally DEEPFAKE prank", "")
	require.Equal(t, string(model.LabelAIDetected), r.Result)
}

func TestCheckNoMatch(t *testing.T) {
	r := Check("My cat does a backflip", "catsdaily")
	require.Equal(t, string(model.LabelVerified), r.Result)
	require.Equal(t, "no_keywords", r.Reason)
}

func TestCheckToleratesNonASCII(t *testing.T) {
	r := Check("猫が踊る deepfake", "チャンネル")
	require.Equal(t, string(model.LabelAIDetected), r.Result)
}
