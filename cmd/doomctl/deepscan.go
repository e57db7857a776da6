package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrollsafe/doomscroller/broker"
	"github.com/scrollsafe/doomscroller/config"
	"github.com/scrollsafe/doomscroller/deepscan"
)

var (
	deepScanPlatform string
	deepScanVideoID  string
	deepScanURL      string
	deepScanFrameDir string
)

var deepScanCmd = &cobra.Command{
	Use:   "deep-scan",
	Short: "Enqueue a Gemini-backed deep scan for an already-extracted frame set",
	RunE:  runDeepScan,
}

func init() {
	deepScanCmd.Flags().StringVar(&deepScanPlatform, "platform", "youtube", "Video platform")
	deepScanCmd.Flags().StringVar(&deepScanVideoID, "video-id", "", "Platform-specific video ID (required)")
	deepScanCmd.Flags().StringVar(&deepScanURL, "url", "", "Video URL (required)")
	deepScanCmd.Flags().StringVar(&deepScanFrameDir, "frame-dir", "", "Directory of frame_NNN.jpg files to scan (required)")
	_ = deepScanCmd.MarkFlagRequired("video-id")
	_ = deepScanCmd.MarkFlagRequired("url")
	_ = deepScanCmd.MarkFlagRequired("frame-dir")
	rootCmd.AddCommand(deepScanCmd)
}

func runDeepScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	b, err := broker.DialDeepScan(cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer b.Close()

	jobID, err := b.PublishJob(cmd.Context(), deepscan.Job{
		Platform: deepScanPlatform,
		VideoID:  deepScanVideoID,
		URL:      deepScanURL,
		FrameDir: deepScanFrameDir,
	})
	if err != nil {
		return fmt.Errorf("publishing deep-scan job: %w", err)
	}

	fmt.Printf("enqueued deep-scan job %s\n", jobID)
	return nil
}
