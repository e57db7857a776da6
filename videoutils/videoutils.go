// Package videoutils backfills video metadata for callers that only have a
// platform video ID, for cases where the caller's own payload didn't carry
// client-supplied title/channel text.
package videoutils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Metadata is the subset of a video's public metadata heuristics needs.
type Metadata struct {
	VideoID string
	Title   string
	Channel string
}

// oEmbedLookup is the shape YouTube's public oEmbed endpoint returns; it
// needs no API key, unlike the Data API used by the discovery provider.
type oEmbedLookup struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
}

// GetVideoInfo looks up title/channel for a YouTube video ID via the public
// oEmbed endpoint. It is a best-effort lookup: deep-scan falls back to
// whatever client-supplied metadata it has when this returns an error.
func GetVideoInfo(ctx context.Context, videoID string) (Metadata, error) {
	url := fmt.Sprintf("https://www.youtube.com/oembed?url=https://www.youtube.com/watch?v=%s&format=json", videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("oembed lookup for %s: %w", videoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("oembed lookup for %s: status %d", videoID, resp.StatusCode)
	}

	var out oEmbedLookup
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Metadata{}, fmt.Errorf("decoding oembed response for %s: %w", videoID, err)
	}

	return Metadata{VideoID: videoID, Title: out.Title, Channel: out.AuthorName}, nil
}
