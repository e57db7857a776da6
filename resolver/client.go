package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client calls a remote resolver service's POST /analyze, used by the
// analyzer when DOOMSCROLLER_RESOLVER_URL is configured in place of
// running the frame extractor in-process.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client against baseURL (no trailing slash expected).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 0}, // per-request timeout comes from ctx
	}
}

// Analyze calls POST {baseURL}/analyze with req and decodes the response.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return AnalyzeResponse{}, fmt.Errorf("marshaling resolver request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return AnalyzeResponse{}, fmt.Errorf("building resolver request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return AnalyzeResponse{}, fmt.Errorf("resolver request: %w", err)
	}
	defer resp.Body.Close()

	var out AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AnalyzeResponse{}, fmt.Errorf("decoding resolver response: %w", err)
	}
	return out, nil
}
