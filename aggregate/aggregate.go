// Package aggregate turns per-frame real/artificial probabilities plus an
// optional title/channel keyword signal into a single verdict. It holds no
// I/O; every decision is a pure function of its inputs, which is what lets
// aggregate_test.go exercise the rules directly with literal frame scores.
package aggregate

import (
	"sort"

	"github.com/scrollsafe/doomscroller/model"
)

// FrameScore is one frame's label-score pair from the classifier response.
type FrameScore struct {
	Real       float64
	Artificial float64
}

const (
	thresholdA80 = 0.80
	thresholdA90 = 0.90
	thresholdA95 = 0.95

	minFramesForVote = 4
)

type tally struct {
	total int

	realVotes       int
	artificialVotes int

	maxArtificial     float64
	top3MeanArtificial float64

	countA80, countA90, countA95 int
	fracA80, fracA90, fracA95   float64
}

func computeTally(frames []FrameScore) tally {
	t := tally{total: len(frames)}
	if t.total == 0 {
		return t
	}

	artificials := make([]float64, 0, t.total)
	for _, f := range frames {
		artificials = append(artificials, f.Artificial)
		if f.Real >= f.Artificial {
			t.realVotes++
		} else {
			t.artificialVotes++
		}
		if f.Artificial > t.maxArtificial {
			t.maxArtificial = f.Artificial
		}
		if f.Artificial >= thresholdA80 {
			t.countA80++
		}
		if f.Artificial >= thresholdA90 {
			t.countA90++
		}
		if f.Artificial >= thresholdA95 {
			t.countA95++
		}
	}

	t.fracA80 = float64(t.countA80) / float64(t.total)
	t.fracA90 = float64(t.countA90) / float64(t.total)
	t.fracA95 = float64(t.countA95) / float64(t.total)

	sorted := append([]float64(nil), artificials...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	top := 3
	if top > len(sorted) {
		top = len(sorted)
	}
	var sum float64
	for _, v := range sorted[:top] {
		sum += v
	}
	if top > 0 {
		t.top3MeanArtificial = sum / float64(top)
	}

	return t
}

func lowestOfTop5(frames []FrameScore) float64 {
	artificials := make([]float64, 0, len(frames))
	for _, f := range frames {
		artificials = append(artificials, f.Artificial)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(artificials)))
	n := 5
	if n > len(artificials) {
		n = len(artificials)
	}
	if n == 0 {
		return 0
	}
	return artificials[n-1]
}

// internal decision labels, mapped to external model.Label at the end.
type internalLabel string

const (
	internalReal       internalLabel = "real"
	internalArtificial internalLabel = "artificial"
	internalSuspicious internalLabel = "suspicious"
)

var labelMap = map[internalLabel]model.Label{
	internalArtificial: model.LabelAIDetected,
	internalReal:        model.LabelVerified,
	internalSuspicious:  model.LabelSuspicious,
}

// Aggregate applies the ordered decision rules to frames, folding in
// hasAIKeywords from the heuristics check, and returns the final verdict.
func Aggregate(frames []FrameScore, hasAIKeywords bool) model.Verdict {
	t := computeTally(frames)

	voteShare := model.VoteShare{Real: 0.5, Artificial: 0.5}
	if t.total > 0 {
		var sumReal, sumArtificial float64
		for _, f := range frames {
			sumReal += f.Real
			sumArtificial += f.Artificial
		}
		voteShare = model.VoteShare{
			Real:       sumReal / float64(t.total),
			Artificial: sumArtificial / float64(t.total),
		}
	}

	features := map[string]interface{}{
		"real_votes":            t.realVotes,
		"artificial_votes":      t.artificialVotes,
		"max_artificial":        t.maxArtificial,
		"top3_mean_artificial":  t.top3MeanArtificial,
		"count_a80":             t.countA80,
		"count_a90":             t.countA90,
		"count_a95":             t.countA95,
		"frac_a80":              t.fracA80,
		"frac_a90":              t.fracA90,
		"frac_a95":              t.fracA95,
		"has_ai_keywords":       hasAIKeywords,
		"total_frames":          t.total,
	}

	var internal internalLabel
	var confidence float64
	var reason string

	switch {
	case t.total < minFramesForVote:
		internal, confidence, reason = internalReal, 0.5, "too_few_frames_default_real"

	case hasAIKeywords && (t.fracA95 >= 0.35 ||
		(t.countA90 >= 4 && t.top3MeanArtificial >= 0.94) ||
		t.fracA90 >= 0.5):
		internal, confidence, reason = internalArtificial, t.maxArtificial, "strong_artificial_with_keywords"

	case !hasAIKeywords && (t.fracA95 >= 0.6 ||
		(t.countA95 >= 6 && t.top3MeanArtificial >= 0.97) ||
		(t.fracA90 >= 0.75 && lowestOfTop5(frames) >= 0.93)):
		internal, confidence, reason = internalArtificial, t.maxArtificial, "very_strong_artificial_no_keywords"

	case hasAIKeywords && (t.countA90 >= 1 || t.fracA80 >= 0.20 || t.maxArtificial >= 0.85):
		internal, confidence, reason = internalSuspicious, t.maxArtificial, "suspicious_with_keywords"

	case !hasAIKeywords && ((t.countA90 >= 3 && t.countA90 <= 5 && t.top3MeanArtificial >= 0.93) ||
		(t.fracA90 >= 0.30 && t.fracA90 <= 0.60 && t.maxArtificial >= 0.92) ||
		(t.fracA80 >= 0.40 && t.top3MeanArtificial >= 0.90)):
		internal, confidence, reason = internalSuspicious, t.maxArtificial, "suspicious_no_keywords"

	default:
		internal = internalReal
		confidence = 1 - t.maxArtificial
		if confidence < 0.6 {
			confidence = 0.6
		}
		reason = "default_real"
	}

	return model.Verdict{
		Label:      labelMap[internal],
		Confidence: confidence,
		Reason:     reason,
		VoteShare:  voteShare,
		Features:   features,
	}
}
