// Package youtube implements the YouTube discovery provider: a two-phase
// search.list + videos.list sweep across configured regions, ranked by
// views-per-hour.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	doomlog "github.com/scrollsafe/doomscroller/log"
	"github.com/scrollsafe/doomscroller/model"
	"golang.org/x/time/rate"
)

const (
	defaultSearchEndpoint = "https://www.googleapis.com/youtube/v3/search"
	defaultVideosEndpoint = "https://www.googleapis.com/youtube/v3/videos"

	enrichBatchSize = 50
)

// Config is the provider's fixed, env-sourced tunables.
type Config struct {
	APIKey           string
	Regions          []string
	MaxResults       int
	MaxPagesPerSweep int
	RequestTimeout   time.Duration
	SearchQuery      string
	TopPerRegion     int
	PoliteDelay      time.Duration
}

// Provider implements discovery.Provider for YouTube.
type Provider struct {
	cfg            Config
	client         *http.Client
	limiter        *rate.Limiter
	searchEndpoint string
	videosEndpoint string
}

// New builds a YouTube discovery Provider. The page limiter enforces
// PoliteDelay between consecutive search.list/videos.list calls so a sweep
// doesn't hammer the API back-to-back; burst of 1 lets the very first call
// through immediately.
func New(cfg Config) *Provider {
	var limiter *rate.Limiter
	if cfg.PoliteDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.PoliteDelay), 1)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Provider{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.RequestTimeout},
		limiter:        limiter,
		searchEndpoint: defaultSearchEndpoint,
		videosEndpoint: defaultVideosEndpoint,
	}
}

// overrideEndpointsForTest points the provider at a local test server
// instead of the real YouTube API.
func (p *Provider) overrideEndpointsForTest(baseURL string) {
	p.searchEndpoint = baseURL + "/search"
	p.videosEndpoint = baseURL + "/videos"
}

// Name identifies this provider in logs.
func (p *Provider) Name() string { return "youtube" }

// DiscoverSince sweeps every configured region, paging search.list and
// enriching with videos.list, and returns the union ranked within each
// region by views-per-hour. 401/403 aborts that region; 429/5xx are
// retried by getJSON with a flat backoff; any terminal error is treated as
// "no candidates from this region" and the sweep moves on.
func (p *Provider) DiscoverSince(ctx context.Context, since *time.Time, limit int) ([]model.VideoCandidate, error) {
	var all []model.VideoCandidate

	for _, region := range p.cfg.Regions {
		regional, err := p.sweepRegion(ctx, region, since)
		if err != nil {
			doomlog.LogNoJob("youtube region sweep failed", "region", region, "err", err)
			continue
		}
		all = append(all, regional...)
	}

	if limit > 0 && len(all) > limit {
		sort.Slice(all, func(i, j int) bool { return all[i].ViewsPerHour > all[j].ViewsPerHour })
		all = all[:limit]
	}
	return all, nil
}

func (p *Provider) sweepRegion(ctx context.Context, region string, since *time.Time) ([]model.VideoCandidate, error) {
	var ids []string
	pageToken := ""

	for page := 0; page < p.cfg.MaxPagesPerSweep; page++ {
		resp, err := p.search(ctx, region, since, pageToken)
		if err != nil {
			return nil, err
		}
		ids = append(ids, resp.videoIDs()...)
		if resp.NextPageToken == "" || len(ids) >= p.cfg.TopPerRegion {
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(ids) > p.cfg.TopPerRegion {
		ids = ids[:p.cfg.TopPerRegion]
	}

	candidates, err := p.enrich(ctx, region, ids)
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ViewsPerHour > candidates[j].ViewsPerHour })
	if len(candidates) > p.cfg.TopPerRegion {
		candidates = candidates[:p.cfg.TopPerRegion]
	}
	return candidates, nil
}

type searchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

func (r *searchResponse) videoIDs() []string {
	ids := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids
}

func (p *Provider) search(ctx context.Context, region string, since *time.Time, pageToken string) (*searchResponse, error) {
	q := url.Values{}
	q.Set("key", p.cfg.APIKey)
	q.Set("part", "id")
	q.Set("type", "video")
	q.Set("regionCode", region)
	q.Set("q", p.cfg.SearchQuery)
	q.Set("maxResults", fmt.Sprintf("%d", p.cfg.MaxResults))
	if since != nil {
		q.Set("publishedAfter", since.UTC().Format(time.RFC3339))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var out searchResponse
	if err := p.getJSON(ctx, p.searchEndpoint+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string    `json:"title"`
			ChannelTitle string   `json:"channelTitle"`
			PublishedAt time.Time `json:"publishedAt"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (p *Provider) enrich(ctx context.Context, region string, ids []string) ([]model.VideoCandidate, error) {
	var candidates []model.VideoCandidate

	for start := 0; start < len(ids); start += enrichBatchSize {
		end := start + enrichBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		q := url.Values{}
		q.Set("key", p.cfg.APIKey)
		q.Set("part", "snippet,contentDetails,statistics")
		q.Set("id", strings.Join(batch, ","))

		var out videosResponse
		if err := p.getJSON(ctx, p.videosEndpoint+"?"+q.Encode(), &out); err != nil {
			return nil, err
		}

		for _, item := range out.Items {
			viewCount := parseViewCount(item.Statistics.ViewCount)
			publishedAt := item.Snippet.PublishedAt
			vph := viewsPerHour(viewCount, publishedAt)

			candidates = append(candidates, model.VideoCandidate{
				Platform:     "youtube",
				VideoID:      item.ID,
				URL:          fmt.Sprintf("https://www.youtube.com/watch?v=%s", item.ID),
				Title:        item.Snippet.Title,
				Channel:      item.Snippet.ChannelTitle,
				Region:       region,
				PublishedAt:  &publishedAt,
				ViewCount:    viewCount,
				ViewsPerHour: vph,
			})
		}
	}
	return candidates, nil
}

// viewsPerHour floors hours-since-published at 1 to avoid a division spike
// for videos published moments ago.
func viewsPerHour(viewCount int64, publishedAt time.Time) float64 {
	if publishedAt.IsZero() {
		return 0
	}
	hours := time.Since(publishedAt).Hours()
	if hours < 1 {
		hours = 1
	}
	return float64(viewCount) / math.Max(hours, 1)
}

func parseViewCount(s string) int64 {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0
	}
	return n
}

const (
	maxRetries   = 3
	retryBackoff = 500 * time.Millisecond
)

// getJSON issues one GET, retrying 429/5xx up to maxRetries with a flat
// backoff. 401/403 is a quota or auth failure and aborts immediately rather
// than retrying.
func (p *Provider) getJSON(ctx context.Context, u string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			return fmt.Errorf("youtube api auth/quota error: status %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			lastErr = fmt.Errorf("youtube api retryable error: status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("youtube api error: status %d", resp.StatusCode)
		}

		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return lastErr
}
