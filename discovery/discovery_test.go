package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrollsafe/doomscroller/model"
)

type stubProvider struct {
	name       string
	candidates []model.VideoCandidate
	err        error
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) DiscoverSince(ctx context.Context, since *time.Time, limit int) ([]model.VideoCandidate, error) {
	return p.candidates, p.err
}

type recordingPublisher struct {
	published []model.AnalysisJob
}

func (r *recordingPublisher) Publish(ctx context.Context, job model.AnalysisJob, priority uint8) error {
	r.published = append(r.published, job)
	return nil
}

func cand(platform, id string, vph float64) model.VideoCandidate {
	return model.VideoCandidate{Platform: platform, VideoID: id, ViewsPerHour: vph}
}

func TestSweepDedupesAcrossProvidersPreferringHigherViews(t *testing.T) {
	p1 := &stubProvider{name: "a", candidates: []model.VideoCandidate{cand("youtube", "x", 10)}}
	p2 := &stubProvider{name: "b", candidates: []model.VideoCandidate{cand("youtube", "x", 50)}}
	pub := &recordingPublisher{}

	sweep := NewSweep(Config{LimitPerProvider: 100, TotalLimit: 100, Priority: 5}, NewRegistry(p1, p2), pub)
	n, err := sweep.RunDiscoverySweep(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, pub.published, 1)
	require.Equal(t, 50.0, pub.published[0].ViewsPerHour)
}

func TestSweepSortsDescendingByViewsPerHour(t *testing.T) {
	p := &stubProvider{candidates: []model.VideoCandidate{
		cand("youtube", "low", 5),
		cand("youtube", "high", 99),
		cand("youtube", "mid", 40),
	}}
	pub := &recordingPublisher{}

	sweep := NewSweep(Config{LimitPerProvider: 100, TotalLimit: 100, Priority: 5}, NewRegistry(p), pub)
	_, err := sweep.RunDiscoverySweep(context.Background())
	require.NoError(t, err)

	require.Equal(t, "high", pub.published[0].VideoID)
	require.Equal(t, "mid", pub.published[1].VideoID)
	require.Equal(t, "low", pub.published[2].VideoID)
}

func TestSweepTruncatesToTotalLimit(t *testing.T) {
	p := &stubProvider{candidates: []model.VideoCandidate{
		cand("youtube", "a", 1), cand("youtube", "b", 2), cand("youtube", "c", 3),
	}}
	pub := &recordingPublisher{}

	sweep := NewSweep(Config{LimitPerProvider: 100, TotalLimit: 2, Priority: 5}, NewRegistry(p), pub)
	n, err := sweep.RunDiscoverySweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSweepSkipsFailingProviderWithoutFailingSweep(t *testing.T) {
	bad := &stubProvider{name: "bad", err: errors.New("quota exceeded")}
	good := &stubProvider{name: "good", candidates: []model.VideoCandidate{cand("youtube", "ok", 1)}}
	pub := &recordingPublisher{}

	sweep := NewSweep(Config{LimitPerProvider: 100, TotalLimit: 100, Priority: 5}, NewRegistry(bad, good), pub)
	n, err := sweep.RunDiscoverySweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
