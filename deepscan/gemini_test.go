package deepscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateContentReturnsConcatenatedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2) // prompt text + one frame

		_ = json.NewEncoder(w).Encode(geminiGenerateResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: `{"frames":[]}`}}}}},
		})
	}))
	defer srv.Close()

	a := NewGeminiAdapter("test-key", "gemini-test", 5*time.Second)
	a.endpoint = srv.URL

	text, err := a.GenerateContent(context.Background(), "classify these frames", [][]byte{[]byte("jpegbytes")})
	require.NoError(t, err)
	require.Equal(t, `{"frames":[]}`, text)
}

func TestGenerateContentSurfacesNon200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	a := NewGeminiAdapter("test-key", "gemini-test", 5*time.Second)
	a.endpoint = srv.URL
	a.client.RetryMax = 0

	_, err := a.GenerateContent(context.Background(), "prompt", nil)
	require.Error(t, err)
}
