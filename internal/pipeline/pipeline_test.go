package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/couchcryptid/geosearch/internal/observability"
	"github.com/couchcryptid/geosearch/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	mu      sync.Mutex
	batches [][]domain.RawEvent
	errs    []error
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	m.mu.Lock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		return nil, err
	}
	if len(m.batches) > 0 {
		b := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()
	// Block until cancelled to simulate waiting for messages.
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	if m.err != nil {
		return domain.OutputEvent{}, m.err
	}
	return domain.OutputEvent{Key: raw.Key, Value: raw.Value}, nil
}

type mockLoader struct {
	mu       sync.Mutex
	failures int
	loaded   []domain.OutputEvent
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) Loaded() []domain.OutputEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutputEvent(nil), m.loaded...)
}

type mockSearcher struct {
	results []domain.Result
	err     error
	queries []domain.Query
}

func (m *mockSearcher) Search(_ context.Context, q domain.Query, _ domain.Options) ([]domain.Result, error) {
	m.queries = append(m.queries, q)
	return m.results, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawRequest(key, body string, commits *atomic.Int64) domain.RawEvent {
	return domain.RawEvent{
		Key:   []byte(key),
		Value: []byte(body),
		Topic: "geocode-requests",
		Commit: func(context.Context) error {
			if commits != nil {
				commits.Add(1)
			}
			return nil
		},
	}
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- pipeline tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var commits atomic.Int64
	raw := rawRequest("r-1", `{"query":"Austin"}`, &commits)
	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 10)

	require.Error(t, p.CheckReadiness(context.Background()))
	runFor(t, p, 300*time.Millisecond)

	loaded := ldr.Loaded()
	require.Len(t, loaded, 1)
	assert.Equal(t, raw.Value, loaded[0].Value)
	assert.Equal(t, int64(1), commits.Load())
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesConsumed))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesProduced))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.Loaded())
}

func TestPipeline_Run_TransformErrorCommitsAndSkips(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawRequest("r-2", "{}", &commits)}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ext, &mockTransformer{err: errors.New("bad data")}, ldr, discardLogger(), metrics, 10)

	runFor(t, p, 300*time.Millisecond)

	assert.Empty(t, ldr.Loaded())
	assert.Equal(t, int64(1), commits.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TransformErrors))
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	ext := &mockExtractor{
		errs:    []error{errors.New("broker down")},
		batches: [][]domain.RawEvent{{rawRequest("r-3", `{"query":"x"}`, nil)}},
	}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	runFor(t, p, time.Second)

	assert.Len(t, ldr.Loaded(), 1)
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawRequest("r-4", `{"query":"x"}`, &commits)}}}
	ldr := &mockLoader{failures: 1}
	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	runFor(t, p, 500*time.Millisecond)

	assert.Empty(t, ldr.Loaded())
	assert.Zero(t, commits.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

// --- transformer tests ---

func TestGeocodeTransformer_Transform(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	searcher := &mockSearcher{results: []domain.Result{{
		Coordinates:      domain.Coordinates{Lat: 30.27, Lon: -97.74},
		FormattedAddress: "Austin, TX, USA",
		Provider:         domain.Google,
	}}}
	tfm := pipeline.NewTransformer(searcher, discardLogger())

	out, err := tfm.Transform(context.Background(), rawRequest("r-5", `{"query":"Austin, TX","region":"us"}`, nil))
	require.NoError(t, err)

	assert.Equal(t, []byte("r-5"), out.Key)
	assert.Equal(t, "address", out.Headers["classification"])
	assert.Equal(t, "ok", out.Headers["status"])
	assert.Equal(t, "2026-03-01T12:00:00Z", out.Headers["processed_at"])

	var resp domain.BatchResponse
	require.NoError(t, json.Unmarshal(out.Value, &resp))
	want := domain.BatchResponse{
		ID:             "r-5",
		Query:          "Austin, TX",
		Classification: domain.ClassAddress,
		Results:        searcher.results,
		ProcessedAt:    fake.Now().UTC(),
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []domain.Query{domain.Text("Austin, TX")}, searcher.queries)
}

func TestGeocodeTransformer_SearchErrorInResponse(t *testing.T) {
	searcher := &mockSearcher{err: &domain.ProviderError{Provider: domain.Google, Kind: domain.ErrorKindQuotaExceeded, Message: "quota"}}
	tfm := pipeline.NewTransformer(searcher, discardLogger())

	out, err := tfm.Transform(context.Background(), rawRequest("r-6", `{"lat":37.4,"lon":-122.1}`, nil))
	require.NoError(t, err)
	assert.Equal(t, "error", out.Headers["status"])
	assert.Equal(t, "coordinates", out.Headers["classification"])

	var resp domain.BatchResponse
	require.NoError(t, json.Unmarshal(out.Value, &resp))
	assert.NotEmpty(t, resp.Error)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestGeocodeTransformer_InvalidRequest(t *testing.T) {
	searcher := &mockSearcher{}
	tfm := pipeline.NewTransformer(searcher, discardLogger())

	_, err := tfm.Transform(context.Background(), rawRequest("r-7", `{"lat":37.4}`, nil))
	require.Error(t, err)
	assert.Empty(t, searcher.queries)
}
