package monitoring

import (
	"context"
	"fmt"
	"time"

	"streamfy/internal/core/ports"
	"streamfy/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

func (h *HealthChecker) AddRedisCheck(client redis.Cmdable, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}

// AddRepositoryCheck lists DJ channels as a round trip through the
// session store.
func (h *HealthChecker) AddRepositoryCheck(repo ports.DJSessionRepository, timeout time.Duration) {
	h.AddCheck("dj_repository", func(ctx context.Context) error {
		_, err := repo.ListChannels(ctx)
		return err
	}, timeout)
}

// AddBreakerCheck fails while the breaker is open.
func (h *HealthChecker) AddBreakerCheck(name string, state func() circuitbreaker.State) {
	h.AddCheck(name, func(context.Context) error {
		if s := state(); s == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit breaker %s", s)
		}
		return nil
	}, time.Second)
}
