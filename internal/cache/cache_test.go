package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/couchcryptid/geosearch/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- store doubles ---

type failingStore struct {
	mu     sync.Mutex
	reads  int
	writes int
	err    error
}

func (s *failingStore) Read(_ context.Context, _ string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return nil, false, s.err
}

func (s *failingStore) Write(_ context.Context, _ string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return s.err
}

func (s *failingStore) Delete(_ context.Context, _ string) error { return s.err }

// hangingStore ignores its context and never returns until released.
type hangingStore struct{ release chan struct{} }

func (s *hangingStore) Read(_ context.Context, _ string) ([]byte, bool, error) {
	<-s.release
	return nil, false, nil
}

func (s *hangingStore) Write(_ context.Context, _ string, _ []byte) error {
	<-s.release
	return nil
}

func (s *hangingStore) Delete(_ context.Context, _ string) error { return nil }

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func countingCompute(calls *int, results []domain.Result) func(context.Context) ([]domain.Result, error) {
	return func(context.Context) ([]domain.Result, error) {
		*calls++
		return results, nil
	}
}

var austin = []domain.Result{
	{Coordinates: domain.Coordinates{Lat: 30.2672, Lon: -97.7431}, FormattedAddress: "Austin, TX, USA", Provider: domain.Google},
	{Coordinates: domain.Coordinates{Lat: 30.3, Lon: -97.7}, FormattedAddress: "Austin County, TX, USA", Provider: domain.Google},
}

// --- tests ---

func TestFetchOrCompute_Disabled(t *testing.T) {
	calls := 0
	var c *ResultCache

	for range 3 {
		got, err := c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, austin))
		require.NoError(t, err)
		assert.Equal(t, austin, got)
	}
	assert.Equal(t, 3, calls)
	assert.False(t, New(nil).Enabled())
}

func TestFetchOrCompute_HitSkipsCompute(t *testing.T) {
	store, err := NewMemoryStore(10)
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	c := New(store, WithPrefix("geo"), WithLogger(discardLogger()), WithMetrics(metrics))

	calls := 0
	first, err := c.FetchOrCompute(context.Background(), "geo:address|austin", countingCompute(&calls, austin))
	require.NoError(t, err)
	second, err := c.FetchOrCompute(context.Background(), "geo:address|austin", countingCompute(&calls, nil))
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "compute should only run on the miss")
	assert.Equal(t, first, second, "order and content preserved through the store")
	assert.Equal(t, 1, store.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheEnabled), 0)
}

func TestFetchOrCompute_EmptyResultIsCached(t *testing.T) {
	store, err := NewMemoryStore(10)
	require.NoError(t, err)
	c := New(store, WithLogger(discardLogger()))

	calls := 0
	_, err = c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, []domain.Result{}))
	require.NoError(t, err)
	got, err := c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, austin))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFetchOrCompute_ComputeErrorNotCached(t *testing.T) {
	store, err := NewMemoryStore(10)
	require.NoError(t, err)
	c := New(store, WithLogger(discardLogger()))

	upstream := &domain.ProviderError{Provider: domain.Google, Kind: domain.ErrorKindNetwork, Message: "down"}
	_, err = c.FetchOrCompute(context.Background(), "k", func(context.Context) ([]domain.Result, error) {
		return nil, upstream
	})
	require.ErrorIs(t, err, upstream)
	assert.Equal(t, 0, store.Len())
}

func TestFetchOrCompute_StoreReadFailureDegrades(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	metrics := observability.NewMetricsForTesting()
	c := New(store, WithLogger(discardLogger()), WithMetrics(metrics))

	calls := 0
	got, err := c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, austin))
	require.NoError(t, err)
	assert.Equal(t, austin, got)
	assert.Equal(t, 1, calls)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("error")), 0, "read and write both failed")
}

func TestFetchOrCompute_BreakerOpensOnRepeatedFailures(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	c := New(store, WithLogger(discardLogger()))

	calls := 0
	for range 10 {
		_, err := c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, austin))
		require.NoError(t, err)
	}
	assert.Equal(t, 10, calls)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Less(t, store.reads+store.writes, 20, "open breaker should stop hitting the store")
}

func TestFetchOrCompute_HangingStoreIsBounded(t *testing.T) {
	store := &hangingStore{release: make(chan struct{})}
	t.Cleanup(func() { close(store.release) })
	c := New(store, WithTimeout(20*time.Millisecond), WithLogger(discardLogger()))

	calls := 0
	start := time.Now()
	got, err := c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, austin))
	require.NoError(t, err)
	assert.Equal(t, austin, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchOrCompute_UndecodableEntryIsReplaced(t *testing.T) {
	store, err := NewMemoryStore(10)
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), "k", []byte("{not json")))
	c := New(store, WithLogger(discardLogger()))

	calls := 0
	got, err := c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, austin))
	require.NoError(t, err)
	assert.Equal(t, austin, got)
	assert.Equal(t, 1, calls)

	_, err = c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "rewritten entry should now hit")
}

func TestResultCache_KeyUsesPrefix(t *testing.T) {
	c := New(nil, WithPrefix("geocoder"))
	assert.Equal(t, "geocoder:address|austin", c.Key(domain.Text("Austin"), domain.Options{}))

	assert.Equal(t, ":address|austin", New(nil).Key(domain.Text("Austin"), domain.Options{}))
}

func TestFetchOrCompute_CancelledCallersKeepBreakerClosed(t *testing.T) {
	store, err := NewMemoryStore(10)
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	c := New(store, WithLogger(discardLogger()), WithMetrics(metrics))

	calls := 0
	_, err = c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, austin))
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for range 10 {
		_, _ = c.FetchOrCompute(cancelled, "k", countingCompute(&calls, austin))
	}
	assert.Equal(t, gobreaker.StateClosed, c.breaker.State())
	assert.Zero(t, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("error")))

	before := calls
	got, err := c.FetchOrCompute(context.Background(), "k", countingCompute(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, austin, got)
	assert.Equal(t, before, calls, "live caller should hit the cached entry")
}

func TestResultCache_WarnLevels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{"open breaker", gobreaker.ErrOpenState, "level=DEBUG"},
		{"half-open limit", gobreaker.ErrTooManyRequests, "level=DEBUG"},
		{"caller gone", fmt.Errorf("%w: %w", errCallerGone, context.Canceled), "level=DEBUG"},
		{"store failure", errors.New("connection refused"), "level=WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			c := New(nil, WithLogger(logger))

			c.warn("read", "k", tt.err)
			assert.Contains(t, buf.String(), tt.level)
		})
	}
}
