package activity

import (
	"context"
	"sync"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/pkg/batch"
	"streamfy/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// Metrics counts records that could not be written.
type Metrics interface {
	AddActivityDropped(n int)
	AddActivityRecorded(n int)
}

type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

// AsyncLogger buffers records and writes them to a Sink in batches from
// a background goroutine. Record never blocks on the sink and failed
// batches are logged and dropped.
type AsyncLogger struct {
	batcher *batch.Batcher[domain.Activity]
	sink    Sink
	breaker *circuitbreaker.CircuitBreaker
	metrics Metrics
	logger  *zap.SugaredLogger
	timeout time.Duration
	now     func() time.Time
}

var _ ports.ActivityLogger = (*AsyncLogger)(nil)

func NewAsyncLogger(sink Sink, cfg Config, metrics Metrics, logger *zap.SugaredLogger) *AsyncLogger {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	l := &AsyncLogger{
		sink:    sink,
		breaker: circuitbreaker.New("activity_sink", circuitbreaker.DefaultConfig()),
		metrics: metrics,
		logger:  logger,
		timeout: cfg.WriteTimeout,
		now:     time.Now,
	}
	l.batcher = batch.New(cfg.BatchSize, cfg.FlushInterval, l.write)
	l.batcher.OnError(func(err error, dropped int) {
		l.logger.Warnw("Dropped activity records", "count", dropped, "error", err)
		if l.metrics != nil {
			l.metrics.AddActivityDropped(dropped)
		}
	})
	return l
}

func (l *AsyncLogger) Record(_ context.Context, activityType domain.ActivityType, actorName string, details map[string]interface{}) {
	ok := l.batcher.Add(domain.Activity{
		Type:      activityType,
		Username:  actorName,
		Details:   details,
		Timestamp: l.now(),
	})
	if !ok && l.metrics != nil {
		l.metrics.AddActivityDropped(1)
	}
}

func (l *AsyncLogger) write(ctx context.Context, items []domain.Activity) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.sink.Write(ctx, items)
	})
	if err == nil && l.metrics != nil {
		l.metrics.AddActivityRecorded(len(items))
	}
	return err
}

// Pending returns how many records wait for the next write.
func (l *AsyncLogger) Pending() int {
	return l.batcher.Pending()
}

// Close flushes buffered records.
func (l *AsyncLogger) Close(ctx context.Context) error {
	return l.batcher.Stop(ctx)
}

// Recorder keeps records in memory. Intended for tests.
type Recorder struct {
	mu      sync.Mutex
	records []domain.Activity
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(_ context.Context, activityType domain.ActivityType, actorName string, details map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, domain.Activity{Type: activityType, Username: actorName, Details: details, Timestamp: time.Now()})
}

func (r *Recorder) Records() []domain.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Activity(nil), r.records...)
}
