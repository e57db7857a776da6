// Package analyzer is the per-video state machine: claim the dedup key,
// extract frames, run inference, aggregate a verdict, persist it, cache a
// snapshot, and stamp the claim long-lived. Any failure past the claim step
// deletes the claim key so the job is retryable.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scrollsafe/doomscroller/aggregate"
	"github.com/scrollsafe/doomscroller/cache"
	"github.com/scrollsafe/doomscroller/extractor"
	"github.com/scrollsafe/doomscroller/heuristics"
	"github.com/scrollsafe/doomscroller/httpclient"
	doomlog "github.com/scrollsafe/doomscroller/log"
	"github.com/scrollsafe/doomscroller/model"
	"github.com/scrollsafe/doomscroller/resolver"
	"github.com/scrollsafe/doomscroller/store"
)

// Config carries the per-job tunables the worker loop reads once at
// startup and threads through every job.
type Config struct {
	ModelVersion        string
	TargetFrames        int
	FrameExtractTimeout time.Duration
	InferRequestTimeout time.Duration
	IdempotencyTTL      time.Duration
	IdempotencyStampTTL time.Duration
	ResolverURL         string
}

// Analyzer wires together the collaborators a single job touches.
type Analyzer struct {
	cfg        Config
	cache      cache.Cache
	store      *store.Store
	extractor  *extractor.Extractor
	infer      *httpclient.Client
	resolver   *resolver.Client
}

// New builds an Analyzer. If cfg.ResolverURL is set, extraction is
// delegated to the resolver HTTP service instead of running the extractor
// in-process; both contracts are interchangeable.
func New(cfg Config, c cache.Cache, s *store.Store, ex *extractor.Extractor, infer *httpclient.Client) *Analyzer {
	a := &Analyzer{cfg: cfg, cache: c, store: s, extractor: ex, infer: infer}
	if cfg.ResolverURL != "" {
		a.resolver = resolver.NewClient(cfg.ResolverURL)
	}
	return a
}

// Result describes what happened to a job, for logging and metrics.
type Result struct {
	Skipped bool
	Verdict model.Verdict
}

// Process runs one job through the full lifecycle. A skipped duplicate is
// reported as success (Result.Skipped == true), not an error.
func (a *Analyzer) Process(ctx context.Context, job model.AnalysisJob) (Result, error) {
	dedupKey := cache.DedupKey(job.Platform, job.VideoID, a.cfg.ModelVersion, a.cfg.TargetFrames)
	jobID := fmt.Sprintf("%s:%s", job.Platform, job.VideoID)

	claimed, err := a.cache.SetNX(ctx, dedupKey, a.cfg.IdempotencyTTL)
	if err != nil {
		return Result{}, fmt.Errorf("claiming dedup key: %w", err)
	}
	if !claimed {
		doomlog.Log(jobID, "skip duplicate in flight or already stamped")
		return Result{Skipped: true}, nil
	}

	verdict, frameCount, batchTimeMs, err := a.runPipeline(ctx, job)
	if err != nil {
		if delErr := a.cache.Delete(ctx, dedupKey); delErr != nil {
			doomlog.LogError(jobID, "failed to delete claim key after error", delErr)
		}
		return Result{}, err
	}

	if err := a.persist(ctx, job, verdict, frameCount, batchTimeMs); err != nil {
		if delErr := a.cache.Delete(ctx, dedupKey); delErr != nil {
			doomlog.LogError(jobID, "failed to delete claim key after persist error", delErr)
		}
		return Result{}, err
	}

	if err := a.cacheSnapshot(ctx, job, verdict); err != nil {
		doomlog.LogError(jobID, "snapshot cache write failed, datastore remains authoritative", err)
	}

	if err := a.cache.Expire(ctx, dedupKey, a.cfg.IdempotencyStampTTL); err != nil {
		doomlog.LogError(jobID, "failed to stamp claim key", err)
	}

	return Result{Verdict: verdict}, nil
}

func (a *Analyzer) runPipeline(ctx context.Context, job model.AnalysisJob) (model.Verdict, int, float64, error) {
	var inferResp model.InferenceResponse
	var frameCount int

	if a.resolver != nil {
		resp, err := a.resolver.Analyze(ctx, resolver.AnalyzeRequest{
			URL:          job.URL,
			Title:        job.Title,
			Channel:      job.Channel,
			TargetFrames: a.cfg.TargetFrames,
			Timeout:      int(a.cfg.FrameExtractTimeout.Seconds()),
		})
		if err != nil {
			return model.Verdict{}, 0, 0, fmt.Errorf("resolver analyze: %w", err)
		}
		if !resp.Success {
			return model.Verdict{}, 0, 0, fmt.Errorf("resolver reported failure: %s", resp.Error)
		}
		inferResp, frameCount = resp.Inference, resp.FramesCount
	} else {
		frames, err := a.extractor.Extract(ctx, job.URL, a.cfg.TargetFrames, a.cfg.FrameExtractTimeout)
		if err != nil {
			return model.Verdict{}, 0, 0, fmt.Errorf("extraction: %w", err)
		}

		resp, err := a.infer.Infer(ctx, frames)
		if err != nil {
			return model.Verdict{}, 0, 0, fmt.Errorf("inference: %w", err)
		}
		inferResp, frameCount = resp, len(frames)
	}

	scores := make([]aggregate.FrameScore, 0, len(inferResp.Results))
	for _, r := range inferResp.Results {
		scores = append(scores, aggregate.FrameScore{
			Real:       r.LabelScores["real"],
			Artificial: r.LabelScores["artificial"],
		})
	}

	h := heuristics.Check(job.Title, job.Channel)
	verdict := aggregate.Aggregate(scores, h.Result == string(model.LabelAIDetected))

	return verdict, frameCount, inferResp.BatchTimeMs, nil
}

func (a *Analyzer) persist(ctx context.Context, job model.AnalysisJob, verdict model.Verdict, frameCount int, batchTimeMs float64) error {
	rec := model.AnalysisRecord{
		Platform:     job.Platform,
		VideoID:      job.VideoID,
		SourceURL:    job.URL,
		AnalyzedAt:   time.Now().UTC(),
		Label:        verdict.Label,
		Confidence:   verdict.Confidence,
		Reason:       verdict.Reason,
		Features:     verdict.Features,
		ModelVersion: a.cfg.ModelVersion,
		FramePolicy:  fmt.Sprintf("even_%d", a.cfg.TargetFrames),
		BatchTimeMs:  batchTimeMs,
		FramesCount:  frameCount,
	}
	if job.Title != "" {
		rec.Title = &job.Title
	}
	if job.Channel != "" {
		rec.Channel = &job.Channel
	}
	if job.Region != "" {
		rec.Region = &job.Region
	}
	if job.PublishedAt != nil {
		rec.PublishedAt = job.PublishedAt
	}
	if job.ViewsPerHour != 0 {
		v := job.ViewsPerHour
		rec.ViewsPerHour = &v
	}

	return a.store.UpsertAnalysis(ctx, rec)
}

func (a *Analyzer) cacheSnapshot(ctx context.Context, job model.AnalysisJob, verdict model.Verdict) error {
	snapshot, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	key := cache.SnapshotKey(job.Platform, job.VideoID)
	return a.cache.SetEX(ctx, key, string(snapshot), time.Hour)
}
