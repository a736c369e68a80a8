package reliability

import (
	"context"
	"errors"
	"fmt"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/pkg/circuitbreaker"
	"streamfy/pkg/retry"
	"streamfy/pkg/tracing"

	"go.uber.org/zap"
)

// BreakerObserver is told about circuit breaker transitions.
type BreakerObserver interface {
	SetCircuitBreakerState(name string, state int)
}

// DJRepositoryWrapper adds retry with backoff and a circuit breaker around
// a DJ session store. Exhausted or short-circuited calls surface as
// domain.ErrStoreUnavailable; domain errors pass through untouched.
type DJRepositoryWrapper struct {
	repo    ports.DJSessionRepository
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

var _ ports.DJSessionRepository = (*DJRepositoryWrapper)(nil)

func NewDJRepositoryWrapper(
	repo ports.DJSessionRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	observer BreakerObserver, // may be nil
	logger *zap.SugaredLogger,
) *DJRepositoryWrapper {
	cbConfig.IsFailure = isStoreFault
	retryConfig.NonRetryable = append(retryConfig.NonRetryable, domain.ErrDJNotFound, circuitbreaker.ErrOpen, context.Canceled)

	w := &DJRepositoryWrapper{
		repo:    repo,
		retry:   retryConfig,
		breaker: circuitbreaker.New("dj_store", cbConfig),
		logger:  logger,
	}
	w.breaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Warnw("Circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
		if observer != nil {
			observer.SetCircuitBreakerState(name, int(to))
		}
	})
	return w
}

func isStoreFault(err error) bool {
	return err != nil && !errors.Is(err, domain.ErrDJNotFound)
}

func (w *DJRepositoryWrapper) Get(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "get", "dj_sessions")
	defer span.End()

	session, err := retry.Do(ctx, w.retry, func(ctx context.Context) (*domain.DJSession, error) {
		return circuitbreaker.Do(ctx, w.breaker, func(ctx context.Context) (*domain.DJSession, error) {
			return w.repo.Get(ctx, channelID)
		})
	})
	return session, w.translate(ctx, "get", channelID, err)
}

func (w *DJRepositoryWrapper) Save(ctx context.Context, session *domain.DJSession) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "save", "dj_sessions")
	defer span.End()

	err := retry.Retry(ctx, w.retry, func(ctx context.Context) error {
		return w.breaker.Execute(ctx, func(ctx context.Context) error {
			return w.repo.Save(ctx, session)
		})
	})
	return w.translate(ctx, "save", session.ChannelID, err)
}

func (w *DJRepositoryWrapper) ListChannels(ctx context.Context) ([]domain.ChannelID, error) {
	ids, err := retry.Do(ctx, w.retry, func(ctx context.Context) ([]domain.ChannelID, error) {
		return circuitbreaker.Do(ctx, w.breaker, w.repo.ListChannels)
	})
	return ids, w.translate(ctx, "list", "", err)
}

func (w *DJRepositoryWrapper) State() circuitbreaker.State {
	return w.breaker.State()
}

func (w *DJRepositoryWrapper) translate(ctx context.Context, op string, channelID domain.ChannelID, err error) error {
	if err == nil || errors.Is(err, domain.ErrDJNotFound) {
		return err
	}
	tracing.RecordError(ctx, err)
	w.logger.Errorw("DJ store operation failed",
		"operation", op,
		"channel_id", channelID,
		"error", err,
	)
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
