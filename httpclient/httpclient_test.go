package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrollsafe/doomscroller/pipelineerr"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:        srv.URL,
		InferAPIKey:    "infer-key",
		BearerToken:    "hf-token",
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
		RetryWaitMin:   1 * time.Millisecond,
		RetryWaitMax:   5 * time.Millisecond,
	})
	return c, srv
}

func TestInferSendsAuthHeadersAndFrames(t *testing.T) {
	var gotAuth, gotKey string
	var gotParts int

	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, r.ParseMultipartForm(10<<20))
		gotParts = len(r.MultipartForm.File["files"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"label_scores":{"real":0.9,"artificial":0.1}}],"batch_time_ms":12.5,"model":{"id":"m1","device":"cpu"}}`))
	})

	resp, err := c.Infer(context.Background(), [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	require.Equal(t, "Bearer hf-token", gotAuth)
	require.Equal(t, "infer-key", gotKey)
	require.Equal(t, 2, gotParts)
	require.Len(t, resp.Results, 1)
	require.InDelta(t, 0.9, resp.Results[0].LabelScores["real"], 1e-9)
}

func TestInferRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32

	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results":[],"batch_time_ms":1}`))
	})

	_, err := c.Infer(context.Background(), [][]byte{[]byte("a")})
	require.NoError(t, err)
	require.GreaterOrEqual(t, int(atomic.LoadInt32(&attempts)), 2)
}

func TestInfer4xxIsNotRetriedAndSurfacesInferenceError(t *testing.T) {
	var attempts int32

	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad token"}`))
	})

	_, err := c.Infer(context.Background(), [][]byte{[]byte("a")})
	require.Error(t, err)
	var infErr *pipelineerr.InferenceError
	require.ErrorAs(t, err, &infErr)
	require.Equal(t, http.StatusUnauthorized, infErr.Status)
	require.False(t, infErr.Retryable)
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestHealthReturnsStatus(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"ok","model_id":"m1","device":"cpu","max_batch":16,"max_concurrency":4,"warmup_completed":true}`))
	})

	status, err := c.Health(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "ok", status.Status)
	require.True(t, status.WarmupCompleted)
}
