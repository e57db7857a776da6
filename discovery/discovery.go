// Package discovery runs the periodic sweep that asks every registered
// provider for fresh candidates, globally deduplicates and ranks them, and
// enqueues the survivors onto the broker. The provider registry mirrors the
// source's decorator-based registration as explicit, discoverable wiring:
// callers register a Provider by name and the sweep iterates whatever is
// registered, currently just YouTube.
package discovery

import (
	"context"
	"sort"
	"time"

	doomlog "github.com/scrollsafe/doomscroller/log"
	"github.com/scrollsafe/doomscroller/model"
)

// Provider produces ranked candidate descriptors for a time window. A
// provider's own internal failures are the provider's problem to log; the
// sweep treats a provider error as "zero candidates from this provider" and
// continues with the rest.
type Provider interface {
	Name() string
	DiscoverSince(ctx context.Context, since *time.Time, limit int) ([]model.VideoCandidate, error)
}

// Publisher enqueues a job at a priority; broker.Broker satisfies this.
type Publisher interface {
	Publish(ctx context.Context, job model.AnalysisJob, priority uint8) error
}

// Registry holds named providers. Populated at startup; read-only during a
// sweep.
type Registry struct {
	providers []Provider
}

// NewRegistry builds a Registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Config controls sweep limits and enqueue priority.
type Config struct {
	LimitPerProvider int
	TotalLimit       int
	Priority         uint8
	SinceHours       int // 0 means unset ("since the beginning")
}

// Sweep runs one discovery pass: query every provider, dedupe by
// (platform, video_id) preferring the higher views_per_hour, sort
// descending by views_per_hour, truncate to TotalLimit, and publish.
type Sweep struct {
	cfg      Config
	registry *Registry
	pub      Publisher
}

// NewSweep builds a Sweep.
func NewSweep(cfg Config, registry *Registry, pub Publisher) *Sweep {
	return &Sweep{cfg: cfg, registry: registry, pub: pub}
}

// RunDiscoverySweep implements scheduler.DiscoveryRunner.
func (s *Sweep) RunDiscoverySweep(ctx context.Context) (int, error) {
	var since *time.Time
	if s.cfg.SinceHours > 0 {
		t := time.Now().Add(-time.Duration(s.cfg.SinceHours) * time.Hour)
		since = &t
	}

	byKey := make(map[model.CandidateKey]model.VideoCandidate)
	for _, p := range s.registry.providers {
		candidates, err := p.DiscoverSince(ctx, since, s.cfg.LimitPerProvider)
		if err != nil {
			doomlog.LogNoJob("discovery provider failed, skipping", "provider", p.Name(), "err", err)
			continue
		}
		for _, c := range candidates {
			key := c.Key()
			existing, ok := byKey[key]
			if !ok || c.ViewsPerHour > existing.ViewsPerHour {
				byKey[key] = c
			}
		}
	}

	candidates := make([]model.VideoCandidate, 0, len(byKey))
	for _, c := range byKey {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ViewsPerHour > candidates[j].ViewsPerHour
	})
	if len(candidates) > s.cfg.TotalLimit {
		candidates = candidates[:s.cfg.TotalLimit]
	}

	enqueued := 0
	for _, c := range candidates {
		job := model.AnalysisJob{VideoCandidate: c, Priority: int(s.cfg.Priority)}
		if err := s.pub.Publish(ctx, job, s.cfg.Priority); err != nil {
			doomlog.LogNoJob("failed to enqueue discovered candidate", "platform", c.Platform, "video_id", c.VideoID, "err", err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}
