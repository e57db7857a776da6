package deepscan

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiAdapter is the one concrete GeminiClient: a REST call against
// Google's generateContent endpoint. No repo in the retrieval pack vendors
// a genai SDK, so this talks the wire protocol directly with the same
// retryablehttp client the inference path uses.
type GeminiAdapter struct {
	apiKey   string
	model    string
	endpoint string
	client   *retryablehttp.Client
	timeout  time.Duration
}

// NewGeminiAdapter builds an adapter bound to model, using apiKey for the
// `key` query parameter generateContent expects.
func NewGeminiAdapter(apiKey, model string, timeout time.Duration) *GeminiAdapter {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil

	return &GeminiAdapter{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultGeminiEndpoint,
		client:   rc,
		timeout:  timeout,
	}
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string             `json:"text,omitempty"`
	InlineData *geminiInlineData  `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiGenerateResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

// GenerateContent implements the deepscan.GeminiClient boundary.
func (a *GeminiAdapter) GenerateContent(ctx context.Context, prompt string, frames [][]byte) (string, error) {
	parts := make([]geminiPart, 0, len(frames)+1)
	parts = append(parts, geminiPart{Text: prompt})
	for _, f := range frames {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: "image/jpeg",
				Data:     base64.StdEncoding.EncodeToString(f),
			},
		})
	}

	body, err := json.Marshal(geminiGenerateRequest{Contents: []geminiContent{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("marshaling gemini request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", a.endpoint, a.model, a.apiKey)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling gemini: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed geminiGenerateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decoding gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response had no candidates")
	}

	var text string
	for _, p := range parsed.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text, nil
}
