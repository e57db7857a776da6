package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	doomcache "github.com/scrollsafe/doomscroller/cache"
	"github.com/scrollsafe/doomscroller/model"
	"github.com/scrollsafe/doomscroller/store"
)

func newTestAnalyzer(t *testing.T, resolverURL string) (*Analyzer, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := doomcache.NewWithClient(redisClient)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := store.New(db)

	cfg := Config{
		ModelVersion:        "doom_v1",
		TargetFrames:        16,
		FrameExtractTimeout: 10 * time.Second,
		InferRequestTimeout: 10 * time.Second,
		IdempotencyTTL:      time.Minute,
		IdempotencyStampTTL: time.Hour,
		ResolverURL:         resolverURL,
	}
	a := New(cfg, c, s, nil, nil)
	return a, mock
}

func expectPersist(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO videos").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO analyses").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestProcessClaimsExtractsPersistsAndStamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"inference":{"results":[{"label_scores":{"real":0.9,"artificial":0.1}}],"batch_time_ms":5},"frames_count":1}`))
	}))
	defer srv.Close()

	a, mock := newTestAnalyzer(t, srv.URL)
	expectPersist(mock)

	job := model.AnalysisJob{VideoCandidate: model.VideoCandidate{Platform: "youtube", VideoID: "abc", URL: "https://youtube.com/watch?v=abc"}}

	result, err := a.Process(context.Background(), job)
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSecondJobObservesStampAndSkips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"inference":{"results":[{"label_scores":{"real":0.9,"artificial":0.1}}],"batch_time_ms":5},"frames_count":1}`))
	}))
	defer srv.Close()

	a, mock := newTestAnalyzer(t, srv.URL)
	expectPersist(mock)

	job := model.AnalysisJob{VideoCandidate: model.VideoCandidate{Platform: "youtube", VideoID: "abc", URL: "https://youtube.com/watch?v=abc"}}

	first, err := a.Process(context.Background(), job)
	require.NoError(t, err)
	require.False(t, first.Skipped)

	second, err := a.Process(context.Background(), job)
	require.NoError(t, err)
	require.True(t, second.Skipped)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedExtractionDeletesClaimForRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"extraction failed"}`))
	}))
	defer srv.Close()

	a, _ := newTestAnalyzer(t, srv.URL)
	job := model.AnalysisJob{VideoCandidate: model.VideoCandidate{Platform: "youtube", VideoID: "xyz", URL: "https://youtube.com/watch?v=xyz"}}

	_, err := a.Process(context.Background(), job)
	require.Error(t, err)

	claimed, err := a.cache.SetNX(context.Background(), doomcache.DedupKey("youtube", "xyz", "doom_v1", 16), time.Minute)
	require.NoError(t, err)
	require.True(t, claimed, "claim key should have been deleted, allowing retry")
}
