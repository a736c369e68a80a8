package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DJMetrics receives one observation per DJ operation.
type DJMetrics interface {
	ObserveDJOperation(operation, result string, duration time.Duration)
}

type djService struct {
	repo     ports.DJSessionRepository
	locker   ports.KeyLocker
	defaults domain.DJSettings
	metrics  DJMetrics
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewDJService(
	repo ports.DJSessionRepository,
	locker ports.KeyLocker,
	defaults domain.DJSettings,
	metrics DJMetrics, // may be nil
	logger *zap.SugaredLogger,
) ports.DJService {
	return &djService{
		repo:     repo,
		locker:   locker,
		defaults: defaults,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *djService) Initialize(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	return s.run(ctx, "initialize", channelID, func(ctx context.Context) (*domain.DJSession, error) {
		unlock, err := s.lock(ctx, channelID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		existing, err := s.repo.Get(ctx, channelID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrDJNotFound) {
			return nil, err
		}

		session := domain.NewDJSession(channelID, s.defaults, s.now())
		session.Touch(session.CreatedAt)
		if err := s.repo.Save(ctx, session); err != nil {
			return nil, err
		}
		s.logger.Infow("DJ session initialized", "channel_id", channelID)
		return session, nil
	})
}

func (s *djService) GetState(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	return s.repo.Get(ctx, channelID)
}

func (s *djService) ListChannels(ctx context.Context) ([]domain.ChannelID, error) {
	return s.repo.ListChannels(ctx)
}

func (s *djService) Enqueue(ctx context.Context, channelID domain.ChannelID, req ports.TrackRequest, submitter domain.Identity) (*domain.DJSession, error) {
	return s.mutate(ctx, "enqueue", channelID, func(session *domain.DJSession) error {
		return session.Enqueue(domain.Track{
			ID:            uuid.NewString(),
			Title:         req.Title,
			Artist:        req.Artist,
			URL:           req.URL,
			SubmittedBy:   submitter.UserID,
			SubmitterName: submitter.DisplayName,
			AddedAt:       s.now(),
		})
	})
}

func (s *djService) Vote(ctx context.Context, channelID domain.ChannelID, index int, voter domain.UserID) (*domain.DJSession, error) {
	return s.mutate(ctx, "vote", channelID, func(session *domain.DJSession) error {
		return session.Vote(index, voter)
	})
}

func (s *djService) PlayNext(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	return s.mutate(ctx, "play_next", channelID, func(session *domain.DJSession) error {
		return session.PlayNext(s.now())
	})
}

func (s *djService) Skip(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	return s.mutate(ctx, "skip", channelID, func(session *domain.DJSession) error {
		session.Skip(s.now())
		return nil
	})
}

func (s *djService) RemoveTrack(ctx context.Context, channelID domain.ChannelID, index int) (*domain.DJSession, error) {
	return s.mutate(ctx, "remove_track", channelID, func(session *domain.DJSession) error {
		return session.RemoveTrack(index)
	})
}

func (s *djService) ClearQueue(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	return s.mutate(ctx, "clear_queue", channelID, func(session *domain.DJSession) error {
		session.ClearQueue()
		return nil
	})
}

func (s *djService) UpdateSettings(ctx context.Context, channelID domain.ChannelID, patch domain.DJSettingsPatch) (*domain.DJSession, error) {
	return s.mutate(ctx, "update_settings", channelID, func(session *domain.DJSession) error {
		return session.Settings.Apply(patch)
	})
}

// mutate is the load, apply, persist cycle shared by every write. The
// session is persisted only when fn succeeds.
func (s *djService) mutate(ctx context.Context, op string, channelID domain.ChannelID, fn func(*domain.DJSession) error) (*domain.DJSession, error) {
	return s.run(ctx, op, channelID, func(ctx context.Context) (*domain.DJSession, error) {
		unlock, err := s.lock(ctx, channelID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		session, err := s.repo.Get(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if err := fn(session); err != nil {
			return nil, err
		}
		session.Touch(s.now())
		if err := s.repo.Save(ctx, session); err != nil {
			return nil, err
		}
		tracing.AddSpanAttributes(ctx, tracing.QueueLenKey.Int(len(session.Queue)))
		return session, nil
	})
}

func (s *djService) run(ctx context.Context, op string, channelID domain.ChannelID, fn func(context.Context) (*domain.DJSession, error)) (*domain.DJSession, error) {
	ctx, span := tracing.TraceDJOperation(ctx, op, string(channelID))
	defer span.End()

	start := time.Now()
	session, err := fn(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Debugw("DJ operation rejected", "operation", op, "channel_id", channelID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveDJOperation(op, resultLabel(err), time.Since(start))
	}
	return session, err
}

// lock takes the per-channel lock. Failures other than cancellation mean
// the lock backend is unreachable or saturated and surface as
// ErrStoreUnavailable.
func (s *djService) lock(ctx context.Context, channelID domain.ChannelID) (func(), error) {
	unlock, err := s.locker.Lock(ctx, lockKey(channelID))
	if err == nil {
		return unlock, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("lock dj session %s: %w", channelID, err)
	}
	return nil, fmt.Errorf("lock dj session %s: %w: %w", channelID, domain.ErrStoreUnavailable, err)
}

func lockKey(channelID domain.ChannelID) string {
	return "dj:" + string(channelID)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrDJNotFound), errors.Is(err, domain.ErrTrackNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCapabilityDisabled):
		return "disabled"
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrQueueEmpty), errors.Is(err, domain.ErrInvalidSettings):
		return "rejected"
	default:
		return "error"
	}
}
