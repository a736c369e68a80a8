package repositories

import (
	"context"

	"streamfy/internal/core/ports"
	"streamfy/internal/infrastructure/activity"
	clusterbus "streamfy/internal/infrastructure/distributed"
	"streamfy/internal/infrastructure/reliability"
	"streamfy/internal/infrastructure/repositories/memory"
	redisrepo "streamfy/internal/infrastructure/repositories/redis"
	"streamfy/pkg/circuitbreaker"
	"streamfy/pkg/config"
	"streamfy/pkg/distributed"
	"streamfy/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory picks redis-backed or in-memory implementations
// depending on configuration and redis availability.
type RepositoryFactory struct {
	cfg         *config.Config
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to redis when enabled. A failed connection
// falls back to memory implementations rather than failing startup.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	f := &RepositoryFactory{cfg: cfg, logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(redisrepo.ClientOptions{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			logger.Warnw("Failed to connect to Redis, falling back to memory repositories", "error", err)
		} else {
			f.redisClient = client
		}
	}

	if f.redisClient != nil {
		logger.Info("Using Redis repositories")
	} else {
		logger.Info("Using memory repositories")
	}
	return f
}

// RedisClient returns nil when running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) CreatePresenceStore() ports.PresenceStore {
	return memory.NewPresenceStore()
}

// CreateDJRepository returns the session store wrapped with retry and a
// circuit breaker.
func (f *RepositoryFactory) CreateDJRepository(observer reliability.BreakerObserver) *reliability.DJRepositoryWrapper {
	var base ports.DJSessionRepository
	if f.redisClient != nil {
		base = redisrepo.NewRedisDJRepository(f.redisClient, f.cfg.Redis.KeyPrefix, f.cfg.DJ.SessionTTL)
	} else {
		base = memory.NewMemoryDJRepository()
	}

	p := f.cfg.Persistence
	retryCfg := retry.Config{
		Enabled:      p.Retry.Enabled,
		MaxAttempts:  p.Retry.MaxAttempts,
		InitialDelay: p.Retry.InitialDelay,
		MaxDelay:     p.Retry.MaxDelay,
		Multiplier:   p.Retry.Multiplier,
		Jitter:       true,
	}
	cbCfg := circuitbreaker.Config{
		FailureThreshold:    p.CircuitBreaker.FailureThreshold,
		SuccessThreshold:    p.CircuitBreaker.SuccessThreshold,
		Timeout:             p.CircuitBreaker.Timeout,
		MaxRequestsHalfOpen: p.CircuitBreaker.MaxRequestsHalfOpen,
	}
	return reliability.NewDJRepositoryWrapper(base, retryCfg, cbCfg, observer, f.logger)
}

// CreateLocker returns a cross-instance lock when redis is available and
// an in-process keyed mutex otherwise.
func (f *RepositoryFactory) CreateLocker() ports.KeyLocker {
	if f.redisClient != nil {
		manager := distributed.NewLockManager(f.redisClient, f.cfg.Redis.KeyPrefix+"lock:")
		return distributed.NewRedisLocker(manager, f.cfg.DJ.LockTTL, f.cfg.DJ.LockTimeout, f.logger)
	}
	return distributed.NewKeyedMutex()
}

func (f *RepositoryFactory) CreateActivitySink(base *zap.Logger) activity.Sink {
	if f.cfg.Activity.Sink == "redis" && f.redisClient != nil {
		return activity.NewRedisSink(f.redisClient, f.cfg.Redis.KeyPrefix+f.cfg.Activity.StreamKey, f.cfg.Activity.StreamMaxLen)
	}
	if f.cfg.Activity.Sink == "redis" {
		f.logger.Warn("Activity sink redis unavailable, writing activity to the log")
	}
	return activity.NewZapSink(base)
}

// CreateEventBus returns nil without redis; channel status then stays
// local to this instance.
func (f *RepositoryFactory) CreateEventBus(instanceID string) *clusterbus.EventBus {
	if f.redisClient == nil {
		return nil
	}
	return clusterbus.NewEventBus(f.redisClient, f.cfg.Redis.KeyPrefix, instanceID, f.logger)
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
