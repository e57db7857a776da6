// Command worker runs the main analysis loop: it consumes AnalysisJob
// deliveries off the broker and runs each one through the analyzer, while a
// Scheduler drives the periodic health-check and discovery-sweep ticks
// alongside it. Both run under one errgroup so a fatal failure in either
// brings the whole process down for a clean restart.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/scrollsafe/doomscroller/analyzer"
	"github.com/scrollsafe/doomscroller/broker"
	"github.com/scrollsafe/doomscroller/cache"
	"github.com/scrollsafe/doomscroller/config"
	"github.com/scrollsafe/doomscroller/discovery"
	"github.com/scrollsafe/doomscroller/discovery/youtube"
	"github.com/scrollsafe/doomscroller/extractor"
	"github.com/scrollsafe/doomscroller/httpclient"
	doomlog "github.com/scrollsafe/doomscroller/log"
	"github.com/scrollsafe/doomscroller/scheduler"
	"github.com/scrollsafe/doomscroller/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		glog.Fatalf("loading config: %v", err)
	}

	c, err := cache.New(cfg.RedisAppURL)
	if err != nil {
		glog.Fatalf("connecting to cache: %v", err)
	}
	defer c.Close()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		glog.Fatalf("connecting to database: %v", err)
	}
	defer db.Close()

	b, err := broker.Dial(cfg.BrokerURL)
	if err != nil {
		glog.Fatalf("connecting to broker: %v", err)
	}
	defer b.Close()

	ex := extractor.New(extractor.Config{
		CookiesFile:    cfg.YTDLPCookiesFile,
		CookiesBrowser: cfg.YTDLPCookiesBrowser,
		HTTPProxy:      cfg.HTTPProxy,
		HTTPSProxy:     cfg.HTTPSProxy,
	})

	infer := httpclient.New(httpclient.Config{
		BaseURL:        cfg.InferAPIURL,
		InferAPIKey:    cfg.InferAPIKey,
		BearerToken:    cfg.HFToken,
		RequestTimeout: cfg.InferRequestTimeout,
		MaxRetries:     3,
	})

	az := analyzer.New(analyzer.Config{
		ModelVersion:        config.ModelVersion(),
		TargetFrames:        cfg.InferTargetFrames,
		FrameExtractTimeout: cfg.FrameExtractTimeout,
		InferRequestTimeout: cfg.InferRequestTimeout,
		IdempotencyTTL:      cfg.IdempotencyTTL,
		IdempotencyStampTTL: cfg.IdempotencyStampTTL,
		ResolverURL:         cfg.ResolverURL,
	}, c, db, ex, infer)

	registry := discovery.NewRegistry(youtube.New(youtube.Config{
		APIKey:           cfg.YouTubeAPIKey,
		Regions:          cfg.YouTubeRegions,
		MaxResults:       cfg.YouTubeMaxResults,
		MaxPagesPerSweep: cfg.YouTubeMaxPagesPerSweep,
		RequestTimeout:   cfg.YouTubeRequestTimeout,
		SearchQuery:      cfg.YouTubeSearchQuery,
		TopPerRegion:     cfg.YouTubeTopPerRegion,
		PoliteDelay:      cfg.YouTubePoliteDelay,
	}))

	sweep := discovery.NewSweep(discovery.Config{
		LimitPerProvider: cfg.DiscoveryLimitPerProvider,
		TotalLimit:       cfg.DiscoveryTotalLimit,
		Priority:         uint8(cfg.DiscoveryPriority),
		SinceHours:       cfg.DiscoverySinceHours,
	}, registry, b)

	sched := scheduler.New(scheduler.Config{
		HealthCheckInterval: cfg.HealthCheckInterval,
		HealthCheckTimeout:  cfg.HealthCheckTimeout,
		DiscoveryInterval:   cfg.DiscoveryInterval,
		DiscoveryRetryDelay: cfg.DiscoveryRetryDelay,
		DiscoveryMaxRetries: cfg.DiscoveryMaxRetries,
	}, infer, sweep)

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	group.Go(func() error {
		return consumeLoop(ctx, b, az)
	})

	if err := group.Wait(); err != nil {
		doomlog.LogNoJob("worker shutting down", "reason", err)
	}
}

func consumeLoop(ctx context.Context, b *broker.Broker, az *analyzer.Analyzer) error {
	deliveries, err := b.Consume("doomscroller-worker")
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			job, err := broker.DecodeJob(d.Body)
			if err != nil {
				doomlog.LogNoJob("dropping undecodable delivery", "err", err)
				_ = d.Nack(false, false)
				continue
			}
			if _, err := az.Process(ctx, job); err != nil {
				doomlog.Log(job.Platform+":"+job.VideoID, "job processing failed", "err", err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case s := <-c:
		return errSignal(s.String())
	case <-ctx.Done():
		return nil
	}
}

type errSignal string

func (e errSignal) Error() string { return "caught signal=" + string(e) }
