package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/pkg/backup"

	"go.uber.org/zap"
)

type Config struct {
	Interval time.Duration
	Keep     int
}

// Scheduler periodically snapshots every DJ session into backup storage
// and prunes old snapshots.
type Scheduler struct {
	service  *backup.Service
	repo     ports.DJSessionRepository
	interval time.Duration
	keep     int
	logger   *zap.SugaredLogger
}

func NewScheduler(service *backup.Service, repo ports.DJSessionRepository, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		service:  service,
		repo:     repo,
		interval: cfg.Interval,
		keep:     cfg.Keep,
		logger:   logger,
	}
}

// Run snapshots on every tick until ctx is done, then takes a final
// snapshot so a clean shutdown loses nothing.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.runOnce(final)
			cancel()
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	name, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Errorw("DJ snapshot failed", "error", err)
		return
	}

	deleted, err := s.service.Prune(ctx, s.keep)
	if err != nil {
		s.logger.Warnw("Failed to prune old snapshots", "error", err)
	}
	s.logger.Debugw("DJ snapshot written", "backup_name", name, "pruned", len(deleted))
}

// Snapshot writes one backup holding every session the repository lists.
// Sessions that vanish between listing and loading are skipped.
func (s *Scheduler) Snapshot(ctx context.Context) (string, error) {
	channels, err := s.repo.ListChannels(ctx)
	if err != nil {
		return "", fmt.Errorf("list dj channels: %w", err)
	}

	snap := &backup.Snapshot{
		Records:  make(map[string]json.RawMessage, len(channels)),
		Metadata: map[string]interface{}{"kind": "dj_sessions"},
	}
	for _, id := range channels {
		session, err := s.repo.Get(ctx, id)
		if errors.Is(err, domain.ErrDJNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("load dj session %s: %w", id, err)
		}
		data, err := json.Marshal(session)
		if err != nil {
			return "", fmt.Errorf("encode dj session %s: %w", id, err)
		}
		snap.Records[string(id)] = data
	}
	snap.Metadata["sessions"] = len(snap.Records)

	return s.service.Create(ctx, snap)
}
