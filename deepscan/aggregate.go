package deepscan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/scrollsafe/doomscroller/model"
)

const geminiPromptTemplate = `You are a forensic visual analyst. You will be given video frames (in order).
There are %d frames.
Task: for EACH frame, output (1) a verdict and (2) a confidence score.
Then output ONE short overall summary that synthesizes the evidence across all frames.

Verdict must be exactly one of: "ai-detected", "real", "suspicious".
Confidence must be a number from 0.0 to 1.0.

Be conservative and filter-aware:
- Do NOT classify as "ai-detected" based only on smooth skin, beauty filters, denoise, compression artifacts, bokeh, cinematic color grading, motion blur, or shallow depth of field.
- Use "ai-detected" only when there are clear structural/semantic clues such as impossible anatomy, warped or unstable text, object merging, identity drift, impossible causality, or scene-logic contradictions.
- Evaluate temporal consistency AND semantic/context plausibility together. A video can be temporally consistent but still synthetic due to implausible context/physics.
- If evidence is weak or explainable by filters/compression, prefer "suspicious" over "ai-detected".
- If cues are mostly soft visual style cues, cap confidence at 0.7.

Return a JSON object of shape {"frames":[{"frame":1,"verdict":"...","confidence":0.0,"reason":"max 16 words"}, ...], "summary":{"overall":"max 140 words"}}.`

const geminiRepairPromptPrefix = `Convert the following content into valid JSON with this schema only: {"frames":[{"frame":1,"verdict":"ai-detected|real|suspicious","confidence":0.0,"reason":"..."}],"summary":{"overall":"..."}}. Return JSON only.

CONTENT:
`

type geminiFrame struct {
	Frame      int     `json:"frame"`
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type geminiSummary struct {
	Overall string `json:"overall"`
}

type geminiPayload struct {
	Frames  []geminiFrame `json:"frames"`
	Summary geminiSummary `json:"summary"`
}

// callGemini invokes the model and, on a parse failure of its first
// response, makes one repair attempt with a stricter follow-up prompt
// before giving up.
func (p *Processor) callGemini(ctx context.Context, frames [][]byte) (geminiPayload, error) {
	if len(frames) == 0 {
		return geminiPayload{}, fmt.Errorf("no frames provided to gemini")
	}

	prompt := fmt.Sprintf(geminiPromptTemplate, len(frames))
	raw, err := p.gemini.GenerateContent(ctx, prompt, frames)
	if err != nil {
		return geminiPayload{}, fmt.Errorf("gemini generate content: %w", err)
	}

	payload, parseErr := parseGeminiResponse(raw)
	if parseErr == nil {
		return payload, nil
	}

	repairRaw, err := p.gemini.GenerateContent(ctx, geminiRepairPromptPrefix+raw, nil)
	if err != nil {
		return geminiPayload{}, fmt.Errorf("gemini repair attempt: %w", err)
	}
	return parseGeminiResponse(repairRaw)
}

var codeFenceRE = regexp.MustCompile("(?i)^```(?:json)?\\s*|\\s*```$")
var trailingCommaRE = regexp.MustCompile(`,\s*([}\]])`)
var frameBlockRE = regexp.MustCompile(`(?s)\{.*?\}`)
var frameNumRE = regexp.MustCompile(`"frame"\s*:\s*(\d+)`)
var verdictRE = regexp.MustCompile(`"verdict"\s*:\s*"([^"]+)"`)
var confidenceRE = regexp.MustCompile(`"confidence"\s*:\s*([0-9]*\.?[0-9]+)`)
var reasonRE = regexp.MustCompile(`(?s)"reason"\s*:\s*"(.*?)"\s*(?:,|\n\s*\})`)
var framesArrayRE = regexp.MustCompile(`(?s)"frames"\s*:\s*\[(.*?)\]\s*(?:,|\n|\r|\})`)
var overallRE = regexp.MustCompile(`(?s)"summary"\s*:\s*\{.*?"overall"\s*:\s*"(.*?)"\s*\}`)

// parseGeminiResponse tries a direct JSON decode first, then falls back to
// a tolerant regex extraction for model output that's JSON-like but not
// strictly valid (markdown fences, smart quotes, trailing commas).
func parseGeminiResponse(raw string) (geminiPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return geminiPayload{}, fmt.Errorf("gemini returned empty text")
	}

	sanitized := sanitizeJSONLike(raw)

	var direct geminiPayload
	if err := json.Unmarshal([]byte(sanitized), &direct); err == nil && len(direct.Frames) > 0 {
		return direct, nil
	}

	return extractGeminiResponse(sanitized)
}

func sanitizeJSONLike(raw string) string {
	s := codeFenceRE.ReplaceAllString(strings.TrimSpace(raw), "")
	s = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'").Replace(s)
	s = trailingCommaRE.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

func extractGeminiResponse(text string) (geminiPayload, error) {
	framesSection := text
	if m := framesArrayRE.FindStringSubmatch(text); m != nil {
		framesSection = m[1]
	}

	blocks := frameBlockRE.FindAllString(framesSection, -1)
	var frames []geminiFrame
	for _, block := range blocks {
		numMatch := frameNumRE.FindStringSubmatch(block)
		if numMatch == nil {
			continue
		}
		frameNum, _ := strconv.Atoi(numMatch[1])

		verdict := "suspicious"
		if m := verdictRE.FindStringSubmatch(block); m != nil {
			verdict = strings.TrimSpace(m[1])
		}

		confidence := 0.0
		if m := confidenceRE.FindStringSubmatch(block); m != nil {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				confidence = f
			}
		}

		reason := ""
		if m := reasonRE.FindStringSubmatch(block); m != nil {
			reason = strings.TrimSpace(m[1])
		}

		frames = append(frames, geminiFrame{Frame: frameNum, Verdict: verdict, Confidence: confidence, Reason: reason})
	}

	if len(frames) == 0 {
		return geminiPayload{}, fmt.Errorf("unable to parse gemini response into frame results")
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].Frame < frames[j].Frame })

	overall := ""
	if m := overallRE.FindStringSubmatch(text); m != nil {
		overall = strings.TrimSpace(m[1])
	}

	return geminiPayload{Frames: frames, Summary: geminiSummary{Overall: overall}}, nil
}

// aggregateResult is deepscan's own decision output, distinct from
// aggregate.Aggregate's: the evidence (a Gemini verdict enum per frame) and
// the precedence rule differ enough that unifying the two decision
// functions would obscure both.
type aggregateResult struct {
	Label      model.Label
	Confidence float64
	Reason     string
	VoteShare  model.VoteShare
	Features   map[string]interface{}
}

var verdictPrecedence = map[string]int{"ai-detected": 2, "suspicious": 1, "real": 0}

var verdictToLabel = map[string]model.Label{
	"ai-detected": model.LabelAIDetected,
	"suspicious":  model.LabelSuspicious,
	"real":        model.LabelVerified,
}

// aggregateGemini applies majority vote across per-frame verdicts, breaking
// ties by precedence (ai-detected > suspicious > real), and averages the
// confidence of the frames that agreed with the winning verdict.
func aggregateGemini(payload geminiPayload, frameCount int, cfg Config) (aggregateResult, error) {
	if len(payload.Frames) == 0 {
		return aggregateResult{}, fmt.Errorf("gemini payload missing frames")
	}

	normalized := make([]geminiFrame, 0, len(payload.Frames))
	for idx, f := range payload.Frames {
		verdict := strings.ToLower(strings.TrimSpace(f.Verdict))
		if _, ok := verdictPrecedence[verdict]; !ok {
			verdict = "suspicious"
		}
		confidence := f.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		reason := f.Reason
		if len(reason) > 140 {
			reason = reason[:140]
		}
		frameNum := f.Frame
		if frameNum == 0 {
			frameNum = idx + 1
		}
		normalized = append(normalized, geminiFrame{Frame: frameNum, Verdict: verdict, Confidence: confidence, Reason: reason})
	}

	counts := map[string]int{}
	for _, f := range normalized {
		counts[f.Verdict]++
	}

	chosen := "suspicious"
	bestCount := -1
	bestPrecedence := -1
	for verdict, count := range counts {
		prec := verdictPrecedence[verdict]
		if count > bestCount || (count == bestCount && prec > bestPrecedence) {
			chosen, bestCount, bestPrecedence = verdict, count, prec
		}
	}

	var chosenConfSum float64
	var chosenConfN int
	for _, f := range normalized {
		if f.Verdict == chosen {
			chosenConfSum += f.Confidence
			chosenConfN++
		}
	}
	confidence := 0.0
	if chosenConfN > 0 {
		confidence = chosenConfSum / float64(chosenConfN)
	}

	realVotes := float64(counts["real"])
	artificialVotes := float64(counts["ai-detected"])
	total := realVotes + artificialVotes
	voteShare := model.VoteShare{Real: 0.5, Artificial: 0.5}
	if total > 0 {
		voteShare = model.VoteShare{Real: realVotes / total, Artificial: artificialVotes / total}
	}

	label := verdictToLabel[chosen]
	if label == "" {
		label = model.LabelSuspicious
	}

	return aggregateResult{
		Label:      label,
		Confidence: confidence,
		Reason:     fmt.Sprintf("gemini: %s", orDefault(payload.Summary.Overall, "model_vote")),
		VoteShare:  voteShare,
		Features: map[string]interface{}{
			"gemini": map[string]interface{}{
				"model":        cfg.GeminiModel,
				"api_version":  cfg.GeminiVersion,
				"frames":       normalized,
				"summary":      payload.Summary,
			},
		},
	}, nil
}

func fallbackAggregate(cfg Config) aggregateResult {
	return aggregateResult{
		Label:      model.LabelSuspicious,
		Confidence: 0.55,
		Reason:     "gemini:parse_fallback",
		VoteShare:  model.VoteShare{Real: 0.5, Artificial: 0.5},
		Features: map[string]interface{}{
			"gemini": map[string]interface{}{
				"model":       cfg.GeminiModel,
				"api_version": cfg.GeminiVersion,
				"frames":      []geminiFrame{},
				"summary":     geminiSummary{Overall: "Model response parsing failed; returned cautious fallback."},
			},
		},
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type mergedResult struct {
	Label      model.Label
	Confidence float64
	Reason     string
	Features   map[string]interface{}
}

// applyHeuristics folds the metadata keyword scan and any client-supplied
// hint into the Gemini aggregate. The metadata scan never changes the label;
// it only raises the confidence of an ai-detected label it agrees with. A
// client hint can escalate the label to ai-detected, or from verified to
// suspicious. Neither softens the label back down.
func applyHeuristics(agg aggregateResult, heuristicsResult, clientHints *model.HeuristicResult) mergedResult {
	label := agg.Label
	if label == "" {
		label = model.LabelVerified
	}
	confidence := agg.Confidence
	reasons := []string{agg.Reason}

	features := map[string]interface{}{}
	for k, v := range agg.Features {
		features[k] = v
	}

	if heuristicsResult != nil {
		features["heuristics"] = heuristicsResult
		if heuristicsResult.Reason != "" {
			reasons = append(reasons, "metadata:"+heuristicsResult.Reason)
		}
		if heuristicsResult.Result == string(model.LabelAIDetected) && label == model.LabelAIDetected {
			confidence = maxFloat(confidence, heuristicsResult.Confidence)
		}
	}

	if clientHints != nil {
		features["client_hints"] = clientHints
		if clientHints.Reason != "" {
			reasons = append(reasons, "client:"+clientHints.Reason)
		}
		switch clientHints.Result {
		case string(model.LabelAIDetected):
			label = model.LabelAIDetected
			confidence = maxFloat(confidence, clientHints.Confidence)
		case string(model.LabelSuspicious):
			if label == model.LabelVerified {
				label = model.LabelSuspicious
				confidence = maxFloat(confidence, maxFloat(clientHints.Confidence, 0.6))
			}
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	nonEmpty := reasons[:0]
	for _, r := range reasons {
		if r != "" {
			nonEmpty = append(nonEmpty, r)
		}
	}

	return mergedResult{
		Label:      label,
		Confidence: confidence,
		Reason:     strings.Join(nonEmpty, "; "),
		Features:   features,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
