// Package scheduler runs the two periodic background tasks: waking a
// scale-to-zero inference service, and firing discovery sweeps only once
// that service answers healthy.
package scheduler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/scrollsafe/doomscroller/httpclient"
	doomlog "github.com/scrollsafe/doomscroller/log"
	"github.com/scrollsafe/doomscroller/pipelineerr"
)

// InferenceHealthChecker is the subset of httpclient.Client the scheduler
// needs; an interface so tests can fake a cold/warm service.
type InferenceHealthChecker interface {
	Health(ctx context.Context, timeout time.Duration) (httpclient.HealthStatus, error)
}

// DiscoveryRunner runs one discovery sweep and reports how many jobs it
// enqueued.
type DiscoveryRunner interface {
	RunDiscoverySweep(ctx context.Context) (enqueued int, err error)
}

// Config holds the scheduler's fixed intervals and retry policy.
type Config struct {
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	DiscoveryInterval   time.Duration
	DiscoveryRetryDelay time.Duration
	DiscoveryMaxRetries int
}

// Scheduler drives wake_inference and run_discovery_job on their own
// tickers until ctx is canceled.
type Scheduler struct {
	cfg    Config
	health InferenceHealthChecker
	disc   DiscoveryRunner
}

// New builds a Scheduler.
func New(cfg Config, health InferenceHealthChecker, disc DiscoveryRunner) *Scheduler {
	return &Scheduler{cfg: cfg, health: health, disc: disc}
}

// Run blocks, running both periodic tasks on independent tickers, until ctx
// is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.runWakeInferenceLoop(ctx)
	s.runDiscoveryLoop(ctx)
}

func (s *Scheduler) runWakeInferenceLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.wakeInference(ctx); err != nil {
				doomlog.LogNoJob("wake_inference failed", "err", err)
			}
		}
	}
}

// wakeInference pings the classifier's health endpoint to keep a
// scale-to-zero deployment warm.
func (s *Scheduler) wakeInference(ctx context.Context) error {
	_, err := s.health.Health(ctx, s.cfg.HealthCheckTimeout)
	return err
}

func (s *Scheduler) runDiscoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDiscoveryJob(ctx, 0)
		}
	}
}

// runDiscoveryJob checks inference health first, retrying on a constant
// DiscoveryRetryDelay up to DiscoveryMaxRetries before giving up for this
// tick. On success it runs the discovery sweep.
func (s *Scheduler) runDiscoveryJob(ctx context.Context, _ int) {
	attempts := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.DiscoveryRetryDelay), uint64(s.cfg.DiscoveryMaxRetries)), ctx)

	err := backoff.Retry(func() error {
		if err := s.wakeInference(ctx); err != nil {
			coldErr := &pipelineerr.ErrSchedulerColdInference{Cause: err}
			attempts++
			doomlog.LogNoJob("run_discovery_job retrying, inference cold", "attempt", attempts, "err", coldErr)
			return coldErr
		}
		return nil
	}, policy)
	if err != nil {
		doomlog.LogNoJob("run_discovery_job giving up, inference still cold", "attempts", attempts, "err", err)
		return
	}

	enqueued, err := s.disc.RunDiscoverySweep(ctx)
	if err != nil {
		doomlog.LogNoJob("discovery sweep failed", "err", err)
		return
	}
	doomlog.LogNoJob("discovery sweep complete", "enqueued", enqueued)
}
