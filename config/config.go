// Package config loads and validates runtime parameters for the
// doomscroller pipeline from environment variables, using peterbourgon/ff
// the way its flag-parsing is used elsewhere in this codebase. Every setting
// is read from its environment variable; args passed to Load are also
// parsed as flags of the same names.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
)

// Config holds every environment-derived setting the pipeline binaries need.
type Config struct {
	DatabaseURL   string
	BrokerURL     string
	RedisAppURL   string
	InferAPIURL   string
	InferAPIKey   string
	HFToken       string
	ResolverURL   string

	InferTargetFrames   int
	InferRequestTimeout time.Duration

	FrameExtractTimeout time.Duration

	IdempotencyTTL      time.Duration
	IdempotencyStampTTL time.Duration
	DiscoveryDedupeTTL  time.Duration

	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration

	DiscoveryInterval        time.Duration
	DiscoveryLimitPerProvider int
	DiscoveryTotalLimit       int
	DiscoveryPriority         int
	DiscoverySinceHours       int // 0 means "not set"
	DiscoveryRetryDelay       time.Duration
	DiscoveryMaxRetries       int

	YouTubeAPIKey            string
	YouTubeRegions           []string
	YouTubeMaxResults        int
	YouTubeMaxPagesPerSweep  int
	YouTubeRequestTimeout    time.Duration
	YouTubeHoursBack         int
	YouTubeSearchQuery       string
	YouTubeTopPerRegion      int
	YouTubePoliteDelay       time.Duration

	YTDLPCookiesFile    string
	YTDLPCookiesBrowser string
	HTTPProxy           string
	HTTPSProxy          string

	ResolverListenAddr  string
	ResolverAPIToken    string
	ResolverMaxInFlight int

	GeminiAPIKey        string
	GeminiModel         string
	GeminiVersion       string
	GeminiRequestTimeout time.Duration
	DeepScanJobStatusTTL time.Duration
	DeepScanLockTTL      time.Duration

	LogLevel string
}

const modelVersion = "doom_v1"

// ModelVersion is the tag embedded in cache keys and persisted analysis rows.
func ModelVersion() string { return modelVersion }

func required(name string) (string, error) {
	return "", fmt.Errorf("missing required environment variable: %s", name)
}

// Load parses environment variables into a Config, failing fast (naming the
// missing variable) on any required-but-absent setting.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("doomscroller", flag.ContinueOnError)

	var c Config
	var regions, since string

	fs.StringVar(&c.DatabaseURL, "database-url", "", "Postgres connection string")
	fs.StringVar(&c.BrokerURL, "celery-broker-url", "", "AMQP broker URL")
	fs.StringVar(&c.RedisAppURL, "redis-app-url", "", "Redis cache URL")
	fs.StringVar(&c.InferAPIURL, "infer-api-url", "", "Base URL of the inference service")
	fs.StringVar(&c.InferAPIKey, "infer-api-key", "", "X-API-Key for the inference service")
	fs.StringVar(&c.HFToken, "hugging-face-api-key", "", "Bearer token for the inference service")
	fs.StringVar(&c.ResolverURL, "doomscroller-resolver-url", "", "Optional resolver service base URL")

	fs.IntVar(&c.InferTargetFrames, "infer-target-frames", 16, "Frames requested per inference call")
	fs.DurationVar(&c.InferRequestTimeout, "infer-request-timeout", 180*time.Second, "Per-attempt inference request timeout")

	fs.DurationVar(&c.FrameExtractTimeout, "frame-extract-timeout", 180*time.Second, "Per-subprocess extraction timeout")

	fs.DurationVar(&c.IdempotencyTTL, "idempotency-ttl-seconds", 86400*time.Second, "Claim TTL while a job is in flight")
	fs.DurationVar(&c.IdempotencyStampTTL, "idempotency-stamp-ttl-seconds", 259200*time.Second, "Stamp TTL after success")
	fs.DurationVar(&c.DiscoveryDedupeTTL, "discovery-dedupe-ttl-seconds", 86400*time.Second, "Discovery dedupe window")

	fs.DurationVar(&c.HealthCheckInterval, "health-check-interval-seconds", 30*time.Second, "wake_inference interval")
	fs.DurationVar(&c.HealthCheckTimeout, "health-check-timeout", 5*time.Second, "Health check HTTP timeout")

	fs.DurationVar(&c.DiscoveryInterval, "discovery-interval-seconds", 120*time.Second, "run_discovery_job interval")
	fs.IntVar(&c.DiscoveryLimitPerProvider, "discovery-limit-per-provider", 100, "Candidates pulled per provider")
	fs.IntVar(&c.DiscoveryTotalLimit, "discovery-total-limit", 100, "Candidates enqueued per sweep")
	fs.IntVar(&c.DiscoveryPriority, "discovery-priority", 5, "Broker priority for discovered jobs")
	fs.StringVar(&since, "discovery-since-hours", "", "Optional lookback window in hours")
	fs.DurationVar(&c.DiscoveryRetryDelay, "discovery-retry-delay-seconds", 90*time.Second, "Delay before retrying discovery on cold inference")
	fs.IntVar(&c.DiscoveryMaxRetries, "discovery-max-retries", 3, "Max discovery retries on cold inference")

	fs.StringVar(&c.YouTubeAPIKey, "youtube-api-key", "", "YouTube Data API key")
	fs.StringVar(&regions, "youtube-regions", "US", "Comma-separated region codes")
	fs.IntVar(&c.YouTubeMaxResults, "youtube-max-results", 50, "search.list page size, capped at 50")
	fs.IntVar(&c.YouTubeMaxPagesPerSweep, "youtube-max-pages-per-sweep", 2, "Max search.list pages per region per sweep")
	fs.DurationVar(&c.YouTubeRequestTimeout, "youtube-request-timeout", 10*time.Second, "Per-request timeout")
	fs.IntVar(&c.YouTubeHoursBack, "youtube-hours-back", 48, "Default discovery lookback")
	fs.StringVar(&c.YouTubeSearchQuery, "youtube-search-query", "#shorts", "search.list query")
	fs.IntVar(&c.YouTubeTopPerRegion, "youtube-top-per-region", 75, "Cap on ranked candidates per region")
	fs.DurationVar(&c.YouTubePoliteDelay, "youtube-polite-delay-seconds", 200*time.Millisecond, "Delay between paged requests")

	fs.StringVar(&c.YTDLPCookiesFile, "ytdlp-cookies-file", "", "Cookie jar file for yt-dlp")
	fs.StringVar(&c.YTDLPCookiesBrowser, "ytdlp-cookies-browser", "", "Browser cookie spec for yt-dlp")
	fs.StringVar(&c.HTTPProxy, "http-proxy", "", "Proxy for outbound extractor requests")
	fs.StringVar(&c.HTTPSProxy, "https-proxy", "", "Proxy for outbound extractor requests")

	fs.StringVar(&c.ResolverListenAddr, "resolver-listen-addr", ":8088", "Address the resolver HTTP server binds")
	fs.StringVar(&c.ResolverAPIToken, "resolver-api-token", "", "Optional bearer token required of resolver callers")
	fs.IntVar(&c.ResolverMaxInFlight, "resolver-max-in-flight", 8, "Max concurrent /analyze requests before 429")

	fs.StringVar(&c.GeminiAPIKey, "gemini-api-key", "", "Gemini API key, required only by the deep-scan worker")
	fs.StringVar(&c.GeminiModel, "gemini-model", "gemini-1.5-flash", "Gemini model name")
	fs.StringVar(&c.GeminiVersion, "gemini-api-version", "v1beta", "Gemini API version tag, recorded in job results")
	fs.DurationVar(&c.GeminiRequestTimeout, "gemini-request-timeout", 60*time.Second, "Per-call Gemini request timeout")
	fs.DurationVar(&c.DeepScanJobStatusTTL, "deep-scan-job-status-ttl-seconds", 3600*time.Second, "TTL for a deep-scan job's cached status")
	fs.DurationVar(&c.DeepScanLockTTL, "deep-scan-lock-ttl-seconds", 600*time.Second, "TTL for a deep-scan per-video lock")

	fs.StringVar(&c.LogLevel, "log-level", "INFO", "Log verbosity")

	if err := ff.Parse(fs, args, ff.WithEnvVarNoPrefix()); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if regions != "" {
		for _, r := range strings.Split(regions, ",") {
			r = strings.ToUpper(strings.TrimSpace(r))
			if r != "" {
				c.YouTubeRegions = append(c.YouTubeRegions, r)
			}
		}
	}
	if since != "" && since != "None" {
		if hours, err := strconv.Atoi(since); err == nil {
			c.DiscoverySinceHours = hours
		}
	}

	for name, v := range map[string]string{
		"DATABASE_URL":           c.DatabaseURL,
		"CELERY_BROKER_URL":      c.BrokerURL,
		"REDIS_APP_URL":          c.RedisAppURL,
		"INFER_API_URL":          c.InferAPIURL,
		"INFER_API_KEY":          c.InferAPIKey,
		"HUGGING_FACE_API_KEY":   c.HFToken,
	} {
		if v == "" {
			_, err := required(name)
			return Config{}, err
		}
	}

	if c.YTDLPCookiesFile != "" && c.YTDLPCookiesBrowser != "" {
		return Config{}, fmt.Errorf("YTDLP_COOKIES_FILE and YTDLP_COOKIES_BROWSER are mutually exclusive")
	}

	if c.YouTubeMaxResults > 50 {
		c.YouTubeMaxResults = 50
	}

	return c, nil
}
