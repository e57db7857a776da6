// Package heuristics does a keyword scan of video title/channel text,
// independent of the frame classifier, to catch videos that announce
// themselves as AI-generated in their own metadata.
package heuristics

import (
	"fmt"
	"strings"

	"github.com/scrollsafe/doomscroller/model"
)

var keywords = []string{
	"ai generated",
	"ai-generated",
	"deepfake",
	"synthetic",
	"neural network",
	"generated with ai",
	"made with ai",
	"midjourney",
	"stable diffusion",
	"sora",
	"runway gen",
	"ai video",
	"this is not real",
	"not a real video",
}

// Check scans title and channel for known AI-disclosure keywords and
// returns a result consistent with the aggregator's keyword signal.
func Check(title, channel string) model.HeuristicResult {
	haystack := strings.ToLower(title + " " + channel)
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return model.HeuristicResult{
				Result:     string(model.LabelAIDetected),
				Confidence: 0.7,
				Reason:     fmt.Sprintf("keyword_match: %s", kw),
			}
		}
	}
	return model.HeuristicResult{
		Result:     string(model.LabelVerified),
		Confidence: 0.3,
		Reason:     "no_keywords",
	}
}
