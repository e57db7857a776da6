package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrollsafe/doomscroller/httpclient"
)

type fakeHealth struct {
	calls     int32
	failUntil int32
}

func (f *fakeHealth) Health(ctx context.Context, timeout time.Duration) (httpclient.HealthStatus, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failUntil {
		return httpclient.HealthStatus{}, errors.New("cold")
	}
	return httpclient.HealthStatus{Status: "ok"}, nil
}

type fakeDiscovery struct {
	calls int32
}

func (f *fakeDiscovery) RunDiscoverySweep(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return 5, nil
}

func TestRunDiscoveryJobRunsSweepWhenHealthy(t *testing.T) {
	health := &fakeHealth{}
	disc := &fakeDiscovery{}
	s := New(Config{DiscoveryMaxRetries: 3, DiscoveryRetryDelay: time.Millisecond}, health, disc)

	s.runDiscoveryJob(context.Background(), 0)

	require.Equal(t, int32(1), atomic.LoadInt32(&disc.calls))
}

func TestRunDiscoveryJobRetriesOnColdInferenceThenSucceeds(t *testing.T) {
	health := &fakeHealth{failUntil: 2}
	disc := &fakeDiscovery{}
	s := New(Config{DiscoveryMaxRetries: 5, DiscoveryRetryDelay: time.Millisecond}, health, disc)

	s.runDiscoveryJob(context.Background(), 0)

	require.Equal(t, int32(1), atomic.LoadInt32(&disc.calls))
	require.GreaterOrEqual(t, atomic.LoadInt32(&health.calls), int32(3))
}

func TestRunDiscoveryJobGivesUpAfterMaxRetries(t *testing.T) {
	health := &fakeHealth{failUntil: 100}
	disc := &fakeDiscovery{}
	s := New(Config{DiscoveryMaxRetries: 2, DiscoveryRetryDelay: time.Millisecond}, health, disc)

	s.runDiscoveryJob(context.Background(), 0)

	require.Equal(t, int32(0), atomic.LoadInt32(&disc.calls))
}
