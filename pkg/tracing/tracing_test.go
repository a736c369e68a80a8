package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTraceDJOperation_RecordsAttributesAndError(t *testing.T) {
	rec := installRecorder(t)

	ctx, span := TraceDJOperation(context.Background(), "vote", "abc")
	AddSpanAttributes(ctx, QueueLenKey.Int(3))
	RecordError(ctx, errors.New("track not found"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "dj.vote", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)

	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "abc", attrs["channel.id"])
	assert.Equal(t, "3", attrs["dj.queue_len"])
}

func TestTraceWebSocketMessage(t *testing.T) {
	rec := installRecorder(t)

	_, span := TraceWebSocketMessage(context.Background(), "join-room", "conn-1")
	span.End()

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, "websocket.join-room", rec.Ended()[0].Name())
}
