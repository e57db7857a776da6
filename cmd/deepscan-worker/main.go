// Command deepscan-worker consumes the deep_scan queue and runs each
// payload through the Gemini-backed verdict pipeline in package deepscan.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/scrollsafe/doomscroller/broker"
	"github.com/scrollsafe/doomscroller/cache"
	"github.com/scrollsafe/doomscroller/config"
	"github.com/scrollsafe/doomscroller/deepscan"
	doomlog "github.com/scrollsafe/doomscroller/log"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		glog.Fatalf("loading config: %v", err)
	}
	if cfg.GeminiAPIKey == "" {
		glog.Fatal("GEMINI_API_KEY is required to run deepscan-worker")
	}

	c, err := cache.New(cfg.RedisAppURL)
	if err != nil {
		glog.Fatalf("connecting to cache: %v", err)
	}
	defer c.Close()

	b, err := broker.DialDeepScan(cfg.BrokerURL)
	if err != nil {
		glog.Fatalf("connecting to broker: %v", err)
	}
	defer b.Close()

	gemini := deepscan.NewGeminiAdapter(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiRequestTimeout)

	proc := deepscan.New(deepscan.Config{
		ModelVersion:  config.ModelVersion(),
		GeminiModel:   cfg.GeminiModel,
		GeminiVersion: cfg.GeminiVersion,
		JobStatusTTL:  cfg.DeepScanJobStatusTTL,
		LockTTL:       cfg.DeepScanLockTTL,
	}, c, gemini)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		s := <-sig
		glog.Infof("caught signal=%v, shutting down", s)
		cancel()
	}()

	deliveries, err := b.Consume("doomscroller-deepscan-worker")
	if err != nil {
		glog.Fatalf("starting consumer: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			jobID, job, err := broker.DecodeDeepScanJob(d.Body)
			if err != nil {
				doomlog.LogNoJob("dropping undecodable deep-scan delivery", "err", err)
				_ = d.Nack(false, false)
				continue
			}
			if err := proc.Process(ctx, jobID, job); err != nil {
				doomlog.LogError(jobID, "deep-scan job processing failed", err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
