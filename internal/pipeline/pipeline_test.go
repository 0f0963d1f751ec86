package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropsight/veg-analytics-service/internal/domain"
	"github.com/cropsight/veg-analytics-service/internal/observability"
	"github.com/cropsight/veg-analytics-service/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

// mockEvaluator passes each raw through as a single output event, recording
// the order it saw keys in. A non-nil err fails every message.
type mockEvaluator struct {
	err  error
	mu   sync.Mutex
	seen map[string][]int64
}

func (m *mockEvaluator) Evaluate(_ context.Context, raw domain.RawEvent) ([]domain.OutputEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	if m.seen == nil {
		m.seen = make(map[string][]int64)
	}
	m.seen[string(raw.Key)] = append(m.seen[string(raw.Key)], raw.Offset)
	m.mu.Unlock()
	return []domain.OutputEvent{{Key: raw.Key, Value: raw.Value, Headers: raw.Headers}}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.OutputEvent
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) events() []domain.OutputEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutputEvent(nil), m.loaded...)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func rawMessage(key string, offset int64) domain.RawEvent {
	return domain.RawEvent{
		Key:    []byte(key),
		Value:  []byte(`{}`),
		Topic:  "field-observations",
		Offset: offset,
	}
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := rawMessage("t1/f1", 1)

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ev := &mockEvaluator{}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, ev, ldr, slog.Default(), metrics, 10, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, ldr.events(), 1)
	assert.Equal(t, raw.Value, ldr.events()[0].Value)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	ev := &mockEvaluator{}
	ldr := &mockLoader{}

	p := pipeline.New(ext, ev, ldr, slog.Default(), newTestMetrics(), 10, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, ldr.events())
}

func TestPipeline_Run_EvaluationErrorSkipsAndCommits(t *testing.T) {
	var committed atomic.Int64
	raw := rawMessage("t1/f1", 7)
	raw.Commit = func(_ context.Context) error {
		committed.Add(1)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ev := &mockEvaluator{err: errors.New("bad message")}
	ldr := &mockLoader{}

	p := pipeline.New(ext, ev, ldr, slog.Default(), newTestMetrics(), 10, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, ldr.events())
	assert.Equal(t, int64(1), committed.Load(), "poison message must still be committed")
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_CommitsAfterLoad(t *testing.T) {
	var committed atomic.Bool
	raw := rawMessage("t1/f1", 3)
	raw.Commit = func(_ context.Context) error {
		committed.Store(true)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ev := &mockEvaluator{}
	ldr := &mockLoader{}

	p := pipeline.New(ext, ev, ldr, slog.Default(), newTestMetrics(), 10, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.True(t, committed.Load())
}

func TestPipeline_Run_PreservesPerFieldOrder(t *testing.T) {
	// Two fields interleaved in one batch: each field's messages must be
	// evaluated in arrival order even with multiple workers.
	batch := []domain.RawEvent{
		rawMessage("t1/f1", 1),
		rawMessage("t1/f2", 2),
		rawMessage("t1/f1", 3),
		rawMessage("t1/f2", 4),
		rawMessage("t1/f1", 5),
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{batch}}
	ev := &mockEvaluator{}
	ldr := &mockLoader{}

	p := pipeline.New(ext, ev, ldr, slog.Default(), newTestMetrics(), 10, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Len(t, ldr.events(), 5)
	assert.Equal(t, []int64{1, 3, 5}, ev.seen["t1/f1"])
	assert.Equal(t, []int64{2, 4}, ev.seen["t1/f2"])
}

func TestPipeline_Run_LoadErrorRetriesBatch(t *testing.T) {
	raw := rawMessage("t1/f1", 1)
	var committed atomic.Int64
	raw.Commit = func(_ context.Context) error {
		committed.Add(1)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ev := &mockEvaluator{}
	ldr := &mockLoader{err: errors.New("broker unavailable")}

	p := pipeline.New(ext, ev, ldr, slog.Default(), newTestMetrics(), 10, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.events())
	assert.Equal(t, int64(0), committed.Load(), "offsets must not be committed when the load fails")
}
