// Package httpclient wraps the two outbound HTTP calls the analyzer and
// scheduler make: the retrying multipart POST to the inference endpoint and
// the bearer-authenticated health check used to keep a scale-to-zero
// inference service warm.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/scrollsafe/doomscroller/model"
	"github.com/scrollsafe/doomscroller/pipelineerr"
)

// Client posts frame batches for inference and polls the classifier's
// health endpoint.
type Client struct {
	retryable  *retryablehttp.Client
	baseURL    string
	apiKey     string
	bearer     string
	reqTimeout time.Duration
}

// Config bundles the dial-out parameters that drive the retryable client's
// policy against the inference service.
type Config struct {
	BaseURL        string
	InferAPIKey    string
	BearerToken    string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
}

// New builds a Client whose retry policy is exponential backoff with jitter
// for inference calls: up to cfg.MaxRetries retries after the first attempt,
// waits starting at RetryWaitMin (default 2s) and capped at RetryWaitMax
// (default 30s).
func New(cfg Config) *Client {
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 2 * time.Second
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 30 * time.Second
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		d := retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
		if d <= 1 {
			return d
		}
		return d/2 + time.Duration(rand.Int63n(int64(d/2)))
	}
	rc.Logger = nil
	rc.HTTPClient.Timeout = cfg.RequestTimeout

	return &Client{
		retryable:  rc,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.InferAPIKey,
		bearer:     cfg.BearerToken,
		reqTimeout: cfg.RequestTimeout,
	}
}

// Infer posts frames as multipart/form-data to {baseURL}/v1/infer and
// decodes the classifier's response. Retries are handled by the underlying
// retryable client; CheckRetry there governs 5xx/429/network retry, while
// other 4xx responses are surfaced immediately as non-retryable.
func (c *Client) Infer(ctx context.Context, frames [][]byte) (model.InferenceResponse, error) {
	body, contentType, err := encodeMultipart(frames)
	if err != nil {
		return model.InferenceResponse{}, fmt.Errorf("encoding frames: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/infer", body)
	if err != nil {
		return model.InferenceResponse{}, fmt.Errorf("building inference request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.retryable.Do(req)
	if err != nil {
		return model.InferenceResponse{}, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return model.InferenceResponse{}, fmt.Errorf("reading inference response: %w", readErr)
	}

	if resp.StatusCode >= 400 {
		return model.InferenceResponse{}, &pipelineerr.InferenceError{
			Status:    resp.StatusCode,
			Retryable: resp.StatusCode >= 500,
			Body:      string(respBody),
		}
	}

	var out model.InferenceResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return model.InferenceResponse{}, fmt.Errorf("decoding inference response: %w", err)
	}
	return out, nil
}

func encodeMultipart(frames [][]byte) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for i, frame := range frames {
		filename := fmt.Sprintf("frame_%03d.jpg", i+1)
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, filename))
		header.Set("Content-Type", "image/jpeg")

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(frame); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// HealthStatus mirrors the classifier's /healthz payload.
type HealthStatus struct {
	Status             string `json:"status"`
	ModelID            string `json:"model_id"`
	Device             string `json:"device"`
	MaxBatch           int    `json:"max_batch"`
	MaxConcurrency     int    `json:"max_concurrency"`
	WarmupCompleted    bool   `json:"warmup_completed"`
}

// Health checks {baseURL}/healthz with bearer auth and a short timeout,
// used by the scheduler's wake_inference task.
func (c *Client) Health(ctx context.Context, timeout time.Duration) (HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("building health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.retryable.HTTPClient.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var out HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HealthStatus{}, fmt.Errorf("decoding health response: %w", err)
	}
	return out, nil
}
