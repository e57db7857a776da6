package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrollsafe/doomscroller/broker"
	"github.com/scrollsafe/doomscroller/config"
	"github.com/scrollsafe/doomscroller/model"
)

var (
	enqueuePlatform string
	enqueueVideoID  string
	enqueueURL      string
	enqueuePriority uint8
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue a single video for analysis by hand",
	RunE:  runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueuePlatform, "platform", "youtube", "Video platform")
	enqueueCmd.Flags().StringVar(&enqueueVideoID, "video-id", "", "Platform-specific video ID (required)")
	enqueueCmd.Flags().StringVar(&enqueueURL, "url", "", "Video URL (required)")
	enqueueCmd.Flags().Uint8Var(&enqueuePriority, "priority", 5, "Broker priority, 0-9")
	_ = enqueueCmd.MarkFlagRequired("video-id")
	_ = enqueueCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	b, err := broker.Dial(cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer b.Close()

	job := model.AnalysisJob{
		VideoCandidate: model.VideoCandidate{
			Platform: enqueuePlatform,
			VideoID:  enqueueVideoID,
			URL:      enqueueURL,
		},
	}

	if err := b.Publish(cmd.Context(), job, enqueuePriority); err != nil {
		return fmt.Errorf("publishing job: %w", err)
	}

	fmt.Printf("enqueued %s:%s\n", enqueuePlatform, enqueueVideoID)
	return nil
}
