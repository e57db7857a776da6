package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrollsafe/doomscroller/pipelineerr"
)

func TestParseDurationFormats(t *testing.T) {
	require.InDelta(t, 5.0, parseDuration("5"), 1e-9)
	require.InDelta(t, 330.0, parseDuration("05:30"), 1e-9)
	require.InDelta(t, 3723.0, parseDuration("01:02:03"), 1e-9)
	require.InDelta(t, 5.5, parseDuration("5.5"), 1e-9)
	require.Equal(t, 0.0, parseDuration(""))
	require.Equal(t, 0.0, parseDuration("garbage"))
}

func TestFPSFloorAndComputation(t *testing.T) {
	require.InDelta(t, 16.0/60.0, fps(16, 60), 1e-9)
	require.GreaterOrEqual(t, fps(1, 100000), minFPS)
}

func TestClassifyStderr(t *testing.T) {
	cases := []struct {
		stderr string
		want   pipelineerr.ExtractionKind
	}{
		{"ERROR: HTTP Error 403: Forbidden", pipelineerr.ExtractionForbidden403},
		{"401 Unauthorized", pipelineerr.ExtractionAuthRequired},
		{"429 Too Many Requests, rate limit exceeded", pipelineerr.ExtractionRateLimit},
		{"Failed to parse m3u8 manifest", pipelineerr.ExtractionHLSParse},
		{"segmentation fault", pipelineerr.ExtractionUnknown},
	}
	for _, c := range cases {
		require.Equal(t, c.want, classifyStderr(c.stderr))
	}
}

func TestReadFramesOrdersAndTruncates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_003.jpg", "frame_001.jpg", "frame_002.jpg", "ignore.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}

	frames, err := readFrames(dir, 2)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, "frame_001.jpg", string(frames[0]))
	require.Equal(t, "frame_002.jpg", string(frames[1]))
}

func TestReadFramesEmptyDir(t *testing.T) {
	dir := t.TempDir()
	frames, err := readFrames(dir, 16)
	require.NoError(t, err)
	require.Empty(t, frames)
}

func TestCookieArgsMutualExclusive(t *testing.T) {
	e := New(Config{CookiesFile: "cookies.txt"})
	require.Equal(t, []string{"--cookies", "cookies.txt"}, e.cookieArgs())

	e2 := New(Config{CookiesBrowser: "chrome"})
	require.Equal(t, []string{"--cookies-from-browser", "chrome"}, e2.cookieArgs())

	e3 := New(Config{})
	require.Nil(t, e3.cookieArgs())
}

func TestNewDefaultsToolPaths(t *testing.T) {
	e := New(Config{})
	require.Equal(t, "yt-dlp", e.cfg.YTDLPPath)
	require.Equal(t, "ffmpeg", e.cfg.FFmpegPath)
	require.Equal(t, "ffprobe", e.cfg.FFprobePath)
}
