// Package extractor runs the frame-extraction fallback ladder around
// yt-dlp and ffmpeg: pipe the fast path, retry with a stricter selector,
// fall back to a resolved direct URL, and finally a full download. Every
// stage returns ordered JPEG frames or a classified failure; the ladder
// stops at the first stage that succeeds.
package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/scrollsafe/doomscroller/model"
	"github.com/scrollsafe/doomscroller/pipelineerr"
)

// Config is read once at process startup and passed by value to every job;
// it never changes per-job.
type Config struct {
	YTDLPPath   string
	FFmpegPath  string
	FFprobePath string

	CookiesFile    string
	CookiesBrowser string

	HTTPProxy  string
	HTTPSProxy string
}

// Extractor runs the fallback ladder for a single video URL.
type Extractor struct {
	cfg Config
}

// New builds an Extractor bound to cfg. cfg.YTDLPPath/FFmpegPath/FFprobePath
// default to the bare binary names (resolved via PATH) when empty.
func New(cfg Config) *Extractor {
	if cfg.YTDLPPath == "" {
		cfg.YTDLPPath = "yt-dlp"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &Extractor{cfg: cfg}
}

const (
	fastSelector = "bestvideo*[ext=mp4]/bestvideo*/best[ext=mp4]/best"
	strictSelector = "best[ext=mp4]/best"

	minFPS = 0.01
	maxFPS = 1.0
)

type stageFunc func(e *Extractor, ctx context.Context, url string, targetFrames int, duration float64, dir string) error

var stages = []struct {
	name string
	run  stageFunc
}{
	{"fast", (*Extractor).tryFastPath},
	{"a", (*Extractor).tryFallbackA},
	{"b", (*Extractor).tryFallbackB},
	{"c", (*Extractor).tryFallbackC},
}

// Extract drives the fallback ladder for url, returning 1..targetFrames
// ordered JPEG blobs. timeout bounds every subprocess invocation within a
// single stage attempt, not the whole ladder.
func (e *Extractor) Extract(ctx context.Context, url string, targetFrames int, timeout time.Duration) (model.FrameSet, error) {
	if err := e.checkToolsPresent(); err != nil {
		return nil, err
	}

	duration := e.probeDuration(ctx, url, 30*time.Second)
	if duration <= 0 {
		duration = float64(targetFrames)
	}

	dir, err := os.MkdirTemp("", "doomscroller-extract-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var lastErr error
	var lastStage string
	var lastStderr string

	for _, stage := range stages {
		stageCtx, cancel := context.WithTimeout(ctx, timeout)
		err := stage.run(e, stageCtx, url, targetFrames, duration, dir)
		cancel()
		if err == nil {
			frames, readErr := readFrames(dir, targetFrames)
			if readErr != nil {
				return nil, readErr
			}
			if len(frames) > 0 {
				return frames, nil
			}
			err = fmt.Errorf("stage %s produced no frames", stage.name)
		}
		lastErr = err
		lastStage = stage.name
		if se, ok := err.(*stderrError); ok {
			lastStderr = se.stderr
		}
		clearDir(dir)
	}

	return nil, &pipelineerr.ExtractionError{
		Kind:   classifyStderr(lastStderr),
		Stage:  lastStage,
		Stderr: lastStderr,
	}
}

func (e *Extractor) checkToolsPresent() error {
	if _, err := exec.LookPath(e.cfg.YTDLPPath); err != nil {
		return &pipelineerr.ErrToolNotFound{Tool: e.cfg.YTDLPPath}
	}
	if _, err := exec.LookPath(e.cfg.FFmpegPath); err != nil {
		return &pipelineerr.ErrToolNotFound{Tool: e.cfg.FFmpegPath}
	}
	return nil
}

// fps computes the sampling rate for a given duration, floored and capped
// per the pipeline's cadence contract.
func fps(targetFrames int, duration float64) float64 {
	durationUnknown := duration <= 0
	f := float64(targetFrames) / math.Max(duration, 1e-6)
	if f < minFPS {
		f = minFPS
	}
	if durationUnknown && f > maxFPS {
		f = maxFPS
	}
	return f
}

func (e *Extractor) cookieArgs() []string {
	if e.cfg.CookiesFile != "" {
		return []string{"--cookies", e.cfg.CookiesFile}
	}
	if e.cfg.CookiesBrowser != "" {
		return []string{"--cookies-from-browser", e.cfg.CookiesBrowser}
	}
	return nil
}

func (e *Extractor) proxyEnv() []string {
	env := os.Environ()
	if e.cfg.HTTPProxy != "" {
		env = append(env, "HTTP_PROXY="+e.cfg.HTTPProxy)
	}
	if e.cfg.HTTPSProxy != "" {
		env = append(env, "HTTPS_PROXY="+e.cfg.HTTPSProxy)
	}
	return env
}

func (e *Extractor) ffmpegFilterArgs(targetFrames int, duration float64, outPattern string) []string {
	filter := fmt.Sprintf("fps=fps=%.6f:round=up,scale=-2:1080:force_original_aspect_ratio=decrease", fps(targetFrames, duration))
	return []string{
		"-nostdin",
		"-vf", filter,
		"-vsync", "vfr",
		"-q:v", "2",
		"-frames:v", strconv.Itoa(targetFrames),
		"-an",
		outPattern,
	}
}

// tryFastPath pipes yt-dlp's stdout directly into ffmpeg's stdin with the
// loosest format selector.
func (e *Extractor) tryFastPath(ctx context.Context, url string, targetFrames int, duration float64, dir string) error {
	return e.pipeStage(ctx, url, fastSelector, targetFrames, duration, dir)
}

// tryFallbackA is the same pipe topology with a stricter selector, for
// sites whose "best" loose selector yields an unplayable stream.
func (e *Extractor) tryFallbackA(ctx context.Context, url string, targetFrames int, duration float64, dir string) error {
	return e.pipeStage(ctx, url, strictSelector, targetFrames, duration, dir)
}

func (e *Extractor) pipeStage(ctx context.Context, url, selector string, targetFrames int, duration float64, dir string) error {
	dlArgs := append([]string{
		"-f", selector,
		"-o", "-",
		"--quiet", "--no-warnings",
	}, e.cookieArgs()...)
	dlArgs = append(dlArgs, url)

	dl := exec.CommandContext(ctx, e.cfg.YTDLPPath, dlArgs...)
	dl.Env = e.proxyEnv()

	dlStdout, err := dl.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening downloader stdout: %w", err)
	}
	dlStderr, err := dl.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening downloader stderr: %w", err)
	}

	ffArgs := append([]string{"-i", "pipe:0"}, e.ffmpegFilterArgs(targetFrames, duration, filepath.Join(dir, "frame_%03d.jpg"))...)
	ff := exec.CommandContext(ctx, e.cfg.FFmpegPath, ffArgs...)
	ff.Stdin = dlStdout
	ffStderr, err := ff.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening transcoder stderr: %w", err)
	}

	if err := dl.Start(); err != nil {
		return fmt.Errorf("starting downloader: %w", err)
	}

	stderrBuf := newDrainer(dlStderr)
	dlDone := make(chan error, 1)
	go func() { dlDone <- dl.Wait() }()

	if err := ff.Start(); err != nil {
		_ = killAndDrain(dl, dlStdout, stderrBuf, dlDone)
		return fmt.Errorf("starting transcoder: %w", err)
	}

	ffStderrBuf := newDrainer(ffStderr)
	ffDone := make(chan error, 1)
	go func() { ffDone <- ff.Wait() }()

	dlExited, ffExited := false, false
	var result error

loop:
	for {
		select {
		case dlErr := <-dlDone:
			dlExited = true
			if dlErr != nil {
				if !ffExited {
					_ = killAndDrain(ff, nil, ffStderrBuf, ffDone)
					ffExited = true
				}
				result = &stderrError{stage: "downloader", stderr: stderrBuf.String(), err: dlErr}
				break loop
			}
			if ffExited {
				break loop
			}
			// Downloader finished cleanly ahead of the transcoder; let the
			// transcoder drain whatever it still has buffered.
		case ffErr := <-ffDone:
			ffExited = true
			if !dlExited {
				// The transcoder frequently exits once it has its target
				// frame count (-frames:v), well before the downloader is
				// done streaming. Nothing reads the downloader's stdout
				// from here on, so it gets killed rather than left to
				// block on a full pipe or die on its own EPIPE.
				_ = killAndDrain(dl, dlStdout, stderrBuf, dlDone)
				dlExited = true
			}
			if ffErr != nil {
				result = &stderrError{stage: "transcoder", stderr: ffStderrBuf.String(), err: ffErr}
			}
			break loop
		case <-ctx.Done():
			if !dlExited {
				_ = killAndDrain(dl, dlStdout, stderrBuf, dlDone)
				dlExited = true
			}
			if !ffExited {
				_ = killAndDrain(ff, nil, ffStderrBuf, ffDone)
				ffExited = true
			}
			result = fmt.Errorf("pipe stage canceled: %w", ctx.Err())
			break loop
		}
	}

	stderrBuf.wait(time.Second)
	ffStderrBuf.wait(time.Second)

	return result
}

// tryFallbackB resolves the media URL and HTTP headers with yt-dlp, then
// has ffmpeg fetch the URL directly rather than piping bytes through.
func (e *Extractor) tryFallbackB(ctx context.Context, url string, targetFrames int, duration float64, dir string) error {
	resolvedURL, headers, err := e.resolveDirectURL(ctx, url)
	if err != nil {
		return err
	}

	args := []string{}
	if strings.Contains(resolvedURL, ".m3u8") {
		args = append(args, "-protocol_whitelist", "file,http,https,tcp,tls,crypto")
	}
	for key, val := range headers {
		switch strings.ToLower(key) {
		case "user-agent":
			args = append(args, "-user_agent", val)
		case "referer":
			args = append(args, "-referer", val)
		default:
			args = append(args, "-headers", fmt.Sprintf("%s: %s\r\n", key, val))
		}
	}
	args = append(args, "-i", resolvedURL)
	args = append(args, e.ffmpegFilterArgs(targetFrames, duration, filepath.Join(dir, "frame_%03d.jpg"))...)

	ff := exec.CommandContext(ctx, e.cfg.FFmpegPath, args...)
	ff.Env = e.proxyEnv()
	stderrPipe, err := ff.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening transcoder stderr: %w", err)
	}
	if err := ff.Start(); err != nil {
		return fmt.Errorf("starting transcoder: %w", err)
	}
	buf := newDrainer(stderrPipe)
	runErr := ff.Wait()
	buf.wait(time.Second)
	if runErr != nil {
		return &stderrError{stage: "transcoder_direct", stderr: buf.String(), err: runErr}
	}
	return nil
}

// tryFallbackC downloads the full file, probes its duration independently,
// then transcodes locally in a second pass.
func (e *Extractor) tryFallbackC(ctx context.Context, url string, targetFrames int, duration float64, dir string) error {
	localPath := filepath.Join(dir, "source.mp4")

	dlArgs := append([]string{
		"-f", strictSelector,
		"-o", localPath,
		"--quiet", "--no-warnings",
	}, e.cookieArgs()...)
	dlArgs = append(dlArgs, url)

	dl := exec.CommandContext(ctx, e.cfg.YTDLPPath, dlArgs...)
	dl.Env = e.proxyEnv()
	stderrPipe, err := dl.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening downloader stderr: %w", err)
	}
	if err := dl.Start(); err != nil {
		return fmt.Errorf("starting downloader: %w", err)
	}
	buf := newDrainer(stderrPipe)
	dlErr := dl.Wait()
	buf.wait(time.Second)
	if dlErr != nil {
		return &stderrError{stage: "downloader_full", stderr: buf.String(), err: dlErr}
	}

	localDuration := e.probeLocalDuration(ctx, localPath)
	if localDuration <= 0 {
		localDuration = duration
	}

	ffArgs := append([]string{"-i", localPath}, e.ffmpegFilterArgs(targetFrames, localDuration, filepath.Join(dir, "frame_%03d.jpg"))...)
	ff := exec.CommandContext(ctx, e.cfg.FFmpegPath, ffArgs...)
	ffStderrPipe, err := ff.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening transcoder stderr: %w", err)
	}
	if err := ff.Start(); err != nil {
		return fmt.Errorf("starting transcoder: %w", err)
	}
	ffBuf := newDrainer(ffStderrPipe)
	ffErr := ff.Wait()
	ffBuf.wait(time.Second)
	if ffErr != nil {
		return &stderrError{stage: "transcoder_local", stderr: ffBuf.String(), err: ffErr}
	}
	return nil
}

type ytDLPInfo struct {
	URL         string            `json:"url"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

// resolveDirectURL asks yt-dlp for the resolved media URL and any HTTP
// headers required to fetch it, without downloading.
func (e *Extractor) resolveDirectURL(ctx context.Context, url string) (string, map[string]string, error) {
	args := append([]string{
		"-f", strictSelector,
		"-j", "--quiet", "--no-warnings",
	}, e.cookieArgs()...)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, e.cfg.YTDLPPath, args...)
	cmd.Env = e.proxyEnv()

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", nil, fmt.Errorf("opening resolver stderr: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", nil, fmt.Errorf("opening resolver stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("starting resolver: %w", err)
	}

	stderrBuf := newDrainer(stderrPipe)
	stdoutBytes, readErr := io.ReadAll(stdout)
	runErr := cmd.Wait()
	stderrBuf.wait(time.Second)

	if runErr != nil {
		return "", nil, &stderrError{stage: "resolve_direct_url", stderr: stderrBuf.String(), err: runErr}
	}
	if readErr != nil {
		return "", nil, fmt.Errorf("reading resolver stdout: %w", readErr)
	}

	var info ytDLPInfo
	if err := json.Unmarshal(stdoutBytes, &info); err != nil {
		return "", nil, fmt.Errorf("decoding resolver output: %w", err)
	}
	if info.URL == "" {
		return "", nil, fmt.Errorf("resolver returned no url")
	}
	return info.URL, info.HTTPHeaders, nil
}

func (e *Extractor) probeDuration(ctx context.Context, url string, timeout time.Duration) float64 {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"--get-duration", "--quiet", "--no-warnings"}, e.cookieArgs()...)
	args = append(args, url)
	cmd := exec.CommandContext(ctx, e.cfg.YTDLPPath, args...)
	cmd.Env = e.proxyEnv()

	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	return parseDuration(strings.TrimSpace(string(out)))
}

func (e *Extractor) probeLocalDuration(ctx context.Context, path string) float64 {
	cmd := exec.CommandContext(ctx, e.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return f
}

var durationRE = regexp.MustCompile(`^(?:(\d+):)?(?:(\d+):)?(\d+(?:\.\d+)?)$`)

// parseDuration handles HH:MM:SS, MM:SS, and bare SS (int or float).
func parseDuration(s string) float64 {
	m := durationRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var hours, minutes float64
	if m[1] != "" && m[2] != "" {
		hours, _ = strconv.ParseFloat(m[1], 64)
		minutes, _ = strconv.ParseFloat(m[2], 64)
	} else if m[2] != "" {
		minutes, _ = strconv.ParseFloat(m[2], 64)
	} else if m[1] != "" {
		minutes, _ = strconv.ParseFloat(m[1], 64)
	}
	seconds, _ := strconv.ParseFloat(m[3], 64)
	return hours*3600 + minutes*60 + seconds
}

func classifyStderr(stderr string) pipelineerr.ExtractionKind {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return pipelineerr.ExtractionForbidden403
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized"):
		return pipelineerr.ExtractionAuthRequired
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return pipelineerr.ExtractionRateLimit
	case strings.Contains(lower, "m3u8") || strings.Contains(lower, "hls") || strings.Contains(lower, "dash"):
		return pipelineerr.ExtractionHLSParse
	default:
		return pipelineerr.ExtractionUnknown
	}
}

type stderrError struct {
	stage  string
	stderr string
	err    error
}

func (e *stderrError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.stage, e.err, e.stderr)
}

func (e *stderrError) Unwrap() error { return e.err }

// drainer reads a pipe to completion on a goroutine, keeping only the last
// drainerCap bytes so a chatty tool can't grow the buffer unbounded; this is
// the concurrent reader the piped stages need to avoid stdout/stderr
// deadlock.
type drainer struct {
	buf  bytes.Buffer
	done chan struct{}
}

const drainerCap = 64 * 1024

func newDrainer(r io.Reader) *drainer {
	d := &drainer{done: make(chan struct{})}
	go func() {
		defer close(d.done)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 4096), 1<<20)
		for scanner.Scan() {
			d.buf.WriteString(scanner.Text())
			d.buf.WriteByte('\n')
			if over := d.buf.Len() - drainerCap; over > 0 {
				d.buf.Next(over)
			}
		}
	}()
	return d
}

func (d *drainer) wait(budget time.Duration) {
	select {
	case <-d.done:
	case <-time.After(budget):
	}
}

func (d *drainer) String() string { return d.buf.String() }

// killAndDrain implements the pipe-stage failure protocol: signal cmd to
// terminate, close its stdout if the caller still holds it, give the
// stderr drainer a 1s budget to finish, then wait up to 5s on done (the
// result of cmd.Wait() running in another goroutine) before escalating to
// SIGKILL. cmd.Wait() must never be called more than once, which is why
// killAndDrain takes the in-flight result channel rather than calling Wait
// itself.
func killAndDrain(cmd *exec.Cmd, stdout io.Closer, stderrDrain *drainer, done <-chan error) error {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	if stdout != nil {
		_ = stdout.Close()
	}
	if stderrDrain != nil {
		stderrDrain.wait(time.Second)
	}
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGKILL)
		}
		return <-done
	}
}

func clearDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		_ = os.Remove(filepath.Join(dir, entry.Name()))
	}
}

// readFrames reads up to targetFrames JPEGs from dir in ascending filename
// order.
func readFrames(dir string, targetFrames int) (model.FrameSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scratch dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "frame_") && strings.HasSuffix(entry.Name(), ".jpg") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) > targetFrames {
		names = names[:targetFrames]
	}

	frames := make(model.FrameSet, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading frame %s: %w", name, err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}
