// Package deepscan implements the Gemini-backed verdict pipeline: a
// separate, heavier-weight analysis path from the main doomscroller
// aggregator, sharing its claim/lock cache mechanism but its own verdict
// space and precedence rule.
package deepscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scrollsafe/doomscroller/cache"
	"github.com/scrollsafe/doomscroller/heuristics"
	doomlog "github.com/scrollsafe/doomscroller/log"
	"github.com/scrollsafe/doomscroller/model"
	"github.com/scrollsafe/doomscroller/videoutils"
)

// GeminiClient is the boundary between this package and the actual Gemini
// SDK call. No example in the retrieval pack imports a Gemini SDK, so the
// real wire call lives behind this interface rather than a concrete
// dependency; production wiring supplies GeminiAdapter, which calls the
// generateContent REST endpoint directly.
type GeminiClient interface {
	// GenerateContent sends prompt plus the ordered JPEG frames and returns
	// the model's raw text response.
	GenerateContent(ctx context.Context, prompt string, frames [][]byte) (string, error)
}

// Config holds deep-scan's fixed tunables.
type Config struct {
	ModelVersion   string
	GeminiModel    string
	GeminiVersion  string
	JobStatusTTL   time.Duration
	LockTTL        time.Duration
}

// Job is the deep-scan task payload.
type Job struct {
	Platform     string                 `json:"platform"`
	VideoID      string                 `json:"video_id"`
	URL          string                 `json:"url"`
	ClientHints  *model.HeuristicResult `json:"client_hints,omitempty"`
	FrameDir     string                 `json:"frame_dir"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Processor runs one deep-scan job end to end.
type Processor struct {
	cfg    Config
	cache  cache.Cache
	gemini GeminiClient
}

// New builds a Processor.
func New(cfg Config, c cache.Cache, gemini GeminiClient) *Processor {
	return &Processor{cfg: cfg, cache: c, gemini: gemini}
}

type jobStatus struct {
	Status    string                 `json:"status"`
	UpdatedAt time.Time              `json:"updated_at"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func (p *Processor) storeStatus(ctx context.Context, jobID, status string, result map[string]interface{}, errMsg string) {
	payload := jobStatus{Status: status, UpdatedAt: time.Now().UTC(), Result: result, Error: errMsg}
	body, err := json.Marshal(payload)
	if err != nil {
		doomlog.LogError(jobID, "deepscan: failed to marshal job status", err)
		return
	}
	if err := p.cache.SetEX(ctx, cache.DeepScanJobKey(jobID), string(body), p.cfg.JobStatusTTL); err != nil {
		doomlog.LogError(jobID, "deepscan: failed to store job status", err)
	}
}

// Process runs the full deep-scan lifecycle for one job: acquire the
// per-video lock, load saved frames, call Gemini, aggregate, merge
// heuristics, and record the final status. Gemini/aggregation failures are
// expected failure modes — they fall back to a degraded "suspicious"
// verdict and Process still returns nil, matching the task's
// fire-and-forget contract for the model call itself. A non-nil return
// means the job's own infrastructure (lock, frame storage) failed and the
// caller should treat the delivery as a genuine processing failure rather
// than a completed or deliberately skipped one; "duplicate_in_progress" is
// a deliberate skip, not an error.
func (p *Processor) Process(ctx context.Context, jobID string, job Job) error {
	platform := strings.ToLower(job.Platform)
	if platform == "" {
		platform = "youtube"
	}

	if job.VideoID == "" || job.URL == "" {
		err := errors.New("missing video_id or url")
		p.storeStatus(ctx, jobID, "failed", nil, err.Error())
		return err
	}

	lockKey := cache.DeepScanLockKey(platform, job.VideoID)
	acquired, err := p.cache.SetNX(ctx, lockKey, p.cfg.LockTTL)
	if err != nil {
		p.storeStatus(ctx, jobID, "failed", nil, err.Error())
		return err
	}
	if !acquired {
		doomlog.Log(jobID, "deepscan skipped, lock held", "platform", platform, "video_id", job.VideoID)
		p.storeStatus(ctx, jobID, "failed", nil, "duplicate_in_progress")
		return nil
	}
	defer func() {
		if err := p.cache.Delete(ctx, lockKey); err != nil {
			doomlog.LogError(jobID, "deepscan: failed to release lock", err)
		}
		cleanupFrameDir(jobID, job.FrameDir)
	}()

	p.storeStatus(ctx, jobID, "running", nil, "")

	startedAt := time.Now()

	heuristicsResult := p.resolveHeuristics(ctx, jobID, platform, job)

	if job.FrameDir == "" {
		err := errors.New("frame directory not provided in job payload")
		p.storeStatus(ctx, jobID, "failed", nil, err.Error())
		return err
	}
	frames, err := loadSavedFrames(job.FrameDir)
	if err != nil {
		p.storeStatus(ctx, jobID, "failed", nil, err.Error())
		return err
	}

	inferenceStart := time.Now()
	payload, err := p.callGemini(ctx, frames)
	if err != nil {
		doomlog.LogError(jobID, "gemini call/parse failed, using suspicious fallback", err)
		payload = geminiPayload{Summary: geminiSummary{Overall: "Model response could not be parsed reliably."}}
	}
	inferenceDurationMs := float64(time.Since(inferenceStart).Microseconds()) / 1000.0
	doomlog.Log(jobID, "gemini inference completed", "frames", len(frames), "duration_ms", inferenceDurationMs)

	agg, err := aggregateGemini(payload, len(frames), p.cfg)
	if err != nil {
		doomlog.LogError(jobID, "gemini aggregation failed, using suspicious fallback", err)
		agg = fallbackAggregate(p.cfg)
	}

	merged := applyHeuristics(agg, heuristicsResult, job.ClientHints)

	analyzedAt := time.Now().UTC()
	result := map[string]interface{}{
		"label":         merged.Label,
		"confidence":    merged.Confidence,
		"reason":        merged.Reason,
		"vote_share":    agg.VoteShare,
		"features":      merged.Features,
		"frames_count":  len(frames),
		"batch_time_ms": inferenceDurationMs,
		"analyzed_at":   analyzedAt.Format(time.RFC3339),
		"model_version": p.cfg.ModelVersion,
		"platform":      platform,
		"video_id":      job.VideoID,
	}
	doomlog.Log(jobID, "deep scan result", "label", merged.Label, "confidence", merged.Confidence)

	p.storeStatus(ctx, jobID, "done", result, "")
	doomlog.Log(jobID, "deep scan job finished", "duration_ms", float64(time.Since(startedAt).Microseconds())/1000.0)
	return nil
}

// resolveHeuristics prefers a fresh YouTube lookup over client-supplied
// metadata, mirroring the source's "only trust client text as a fallback"
// stance.
func (p *Processor) resolveHeuristics(ctx context.Context, jobID, platform string, job Job) *model.HeuristicResult {
	title, channel := "", ""
	found := false

	if platform == "youtube" && job.VideoID != "" {
		info, err := videoutils.GetVideoInfo(ctx, job.VideoID)
		if err == nil {
			title, channel = info.Title, info.Channel
			found = true
		} else {
			doomlog.LogError(jobID, "deepscan: video info lookup failed, falling back to client metadata", err)
		}
	}
	if !found && job.Metadata != nil {
		title, _ = job.Metadata["title"].(string)
		channel, _ = job.Metadata["channel"].(string)
		if title == "" {
			title, _ = job.Metadata["description"].(string)
		}
		found = title != "" || channel != ""
	}
	if !found {
		return nil
	}

	result := heuristics.Check(title, channel)
	return &result
}

func loadSavedFrames(frameDir string) ([][]byte, error) {
	info, err := os.Stat(frameDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("frame directory not found: %s", frameDir)
	}

	matches, err := filepath.Glob(filepath.Join(frameDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("listing frames in %s: %w", frameDir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no frames found in %s", frameDir)
	}
	sort.Strings(matches)

	frames := make([][]byte, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("reading frame %s: %w", m, err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}

func cleanupFrameDir(jobID, frameDir string) {
	if frameDir == "" {
		return
	}
	if err := os.RemoveAll(frameDir); err != nil {
		doomlog.LogError(jobID, "deepscan: failed to remove frame directory", err, "dir", frameDir)
	}
}
