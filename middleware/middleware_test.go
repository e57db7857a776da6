package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func noopHandle(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func TestRequireBearerTokenPassesThroughWhenTokenEmpty(t *testing.T) {
	handle := RequireBearerToken("", noopHandle)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handle(rec, req, nil)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireBearerTokenRejectsMissingHeader(t *testing.T) {
	handle := RequireBearerToken("secret", noopHandle)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handle(rec, req, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearerTokenRejectsWrongToken(t *testing.T) {
	handle := RequireBearerToken("secret", noopHandle)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")

	handle(rec, req, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearerTokenAcceptsCorrectToken(t *testing.T) {
	handle := RequireBearerToken("secret", noopHandle)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")

	handle(rec, req, nil)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCapacityLimiterRejectsBeyondMax(t *testing.T) {
	limiter := NewCapacityLimiter(1, nil)

	release := make(chan struct{})
	blocking := limiter.Limit(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		<-release
		w.WriteHeader(http.StatusOK)
	})

	done := make(chan struct{})
	go func() {
		rec := httptest.NewRecorder()
		blocking(rec, httptest.NewRequest(http.MethodPost, "/analyze", nil), nil)
		close(done)
	}()

	// Give the first request time to register as in-flight before firing
	// the second.
	for limiter.inFlight.Load() != 1 {
		time.Sleep(time.Millisecond)
	}

	handle := limiter.Limit(noopHandle)
	rec := httptest.NewRecorder()
	handle(rec, httptest.NewRequest(http.MethodPost, "/analyze", nil), nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	close(release)
	<-done
}
