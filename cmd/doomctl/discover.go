package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrollsafe/doomscroller/broker"
	"github.com/scrollsafe/doomscroller/config"
	"github.com/scrollsafe/doomscroller/discovery"
	"github.com/scrollsafe/doomscroller/discovery/youtube"
)

var discoverLimit int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one discovery sweep and enqueue the results",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "Override the configured total enqueue limit (0 uses config)")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	b, err := broker.Dial(cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer b.Close()

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

	totalLimit := cfg.DiscoveryTotalLimit
	if discoverLimit > 0 {
		totalLimit = discoverLimit
	}

	sweep := discovery.NewSweep(discovery.Config{
		LimitPerProvider: cfg.DiscoveryLimitPerProvider,
		TotalLimit:       totalLimit,
		Priority:         uint8(cfg.DiscoveryPriority),
		SinceHours:       cfg.DiscoverySinceHours,
	}, registry, b)

	enqueued, err := sweep.RunDiscoverySweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("running discovery sweep: %w", err)
	}

	fmt.Printf("enqueued %d candidates\n", enqueued)
	return nil
}
