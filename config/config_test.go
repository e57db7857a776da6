package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func baseEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/doom")
	t.Setenv("CELERY_BROKER_URL", "amqp://localhost")
	t.Setenv("REDIS_APP_URL", "redis://localhost")
	t.Setenv("INFER_API_URL", "https://infer.example.com")
	t.Setenv("INFER_API_KEY", "infer-key")
	t.Setenv("HUGGING_FACE_API_KEY", "hf-token")
}

func TestLoadDefaults(t *testing.T) {
	baseEnv(t)

	c, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, 16, c.InferTargetFrames)
	require.Equal(t, []string{"US"}, c.YouTubeRegions)
	require.Equal(t, 5, c.DiscoveryPriority)
	require.Equal(t, 0, c.DiscoverySinceHours)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("CELERY_BROKER_URL", "amqp://localhost")
	t.Setenv("REDIS_APP_URL", "redis://localhost")
	t.Setenv("INFER_API_URL", "https://infer.example.com")
	t.Setenv("INFER_API_KEY", "infer-key")
	t.Setenv("HUGGING_FACE_API_KEY", "hf-token")

	_, err := Load(nil)
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadRegionsUppercasedAndTrimmed(t *testing.T) {
	baseEnv(t)
	t.Setenv("YOUTUBE_REGIONS", " us, gb ,ca")

	c, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"US", "GB", "CA"}, c.YouTubeRegions)
}

func TestLoadMutuallyExclusiveCookies(t *testing.T) {
	baseEnv(t)
	t.Setenv("YTDLP_COOKIES_FILE", "/tmp/cookies.txt")
	t.Setenv("YTDLP_COOKIES_BROWSER", "chrome")

	_, err := Load(nil)
	require.Error(t, err)
}

func TestLoadSinceHoursParsed(t *testing.T) {
	baseEnv(t)
	t.Setenv("DISCOVERY_SINCE_HOURS", "12")

	c, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, 12, c.DiscoverySinceHours)
}
