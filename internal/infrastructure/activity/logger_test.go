package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"streamfy/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memorySink struct {
	mu      sync.Mutex
	written []domain.Activity
	err     error
	block   chan struct{}
}

func (s *memorySink) Write(_ context.Context, batch []domain.Activity) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, batch...)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

type countingMetrics struct {
	mu       sync.Mutex
	dropped  int
	recorded int
}

func (m *countingMetrics) AddActivityDropped(n int) {
	m.mu.Lock()
	m.dropped += n
	m.mu.Unlock()
}

func (m *countingMetrics) AddActivityRecorded(n int) {
	m.mu.Lock()
	m.recorded += n
	m.mu.Unlock()
}

func TestAsyncLogger_WritesOnClose(t *testing.T) {
	sink := &memorySink{}
	metrics := &countingMetrics{}
	l := NewAsyncLogger(sink, Config{BatchSize: 100, FlushInterval: time.Hour}, metrics, zap.NewNop().Sugar())

	l.Record(context.Background(), domain.ActivityMessageSent, "Alice", map[string]interface{}{"room_id": "r1"})
	l.Record(context.Background(), domain.ActivityStreamStarted, "Bob", nil)

	require.NoError(t, l.Close(context.Background()))
	require.Equal(t, 2, sink.count())
	assert.Equal(t, domain.ActivityMessageSent, sink.written[0].Type)
	assert.Equal(t, "Alice", sink.written[0].Username)
	assert.False(t, sink.written[0].Timestamp.IsZero())
	assert.Equal(t, 2, metrics.recorded)
}

func TestAsyncLogger_RecordDoesNotBlockOnSlowSink(t *testing.T) {
	sink := &memorySink{block: make(chan struct{})}
	metrics := &countingMetrics{}
	l := NewAsyncLogger(sink, Config{BatchSize: 1, FlushInterval: time.Hour}, metrics, zap.NewNop().Sugar())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			l.Record(context.Background(), domain.ActivityMessageSent, "x", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on sink")
	}

	// the backlog behind the stuck write is bounded and overflow is counted
	assert.LessOrEqual(t, l.Pending(), 8)
	metrics.mu.Lock()
	dropped := metrics.dropped
	metrics.mu.Unlock()
	assert.Greater(t, dropped, 0)

	close(sink.block)
	require.NoError(t, l.Close(context.Background()))
	assert.Equal(t, 100, sink.count()+dropped)
	assert.Equal(t, 0, l.Pending())
}

func TestAsyncLogger_SinkFailureIsCountedNotPropagated(t *testing.T) {
	sink := &memorySink{err: errors.New("redis down")}
	metrics := &countingMetrics{}
	l := NewAsyncLogger(sink, Config{BatchSize: 10, FlushInterval: time.Hour}, metrics, zap.NewNop().Sugar())

	l.Record(context.Background(), domain.ActivityStreamEnded, "x", nil)
	require.NoError(t, l.Close(context.Background()))

	assert.Equal(t, 1, metrics.dropped)
	assert.Equal(t, 0, metrics.recorded)

	l.Record(context.Background(), domain.ActivityStreamEnded, "x", nil)
	assert.Equal(t, 2, metrics.dropped)
}

func TestZapSink_Write(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	err := sink.Write(context.Background(), []domain.Activity{{
		Type:      domain.ActivityStreamStarted,
		Username:  "Alice",
		Details:   map[string]interface{}{"room_id": "stream-1", "viewer_count": 1},
		Timestamp: time.Now(),
	}})
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "stream_started", fields["type"])
	assert.Equal(t, "Alice", fields["username"])
	assert.Equal(t, "activity", fields["log_type"])
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Record(context.Background(), domain.ActivityMessageSent, "a", nil)
	assert.Len(t, r.Records(), 1)
}
