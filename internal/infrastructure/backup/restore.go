package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"streamfy/internal/core/domain"
	"streamfy/pkg/backup"
)

// Restore loads the newest snapshot into the repository. A session is
// written only when the store has none for that channel or holds an
// older version. It returns how many sessions were written.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	snap, name, err := s.service.Latest(ctx)
	if errors.Is(err, backup.ErrNoBackups) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	restored := 0
	for id, raw := range snap.Records {
		var session domain.DJSession
		if err := json.Unmarshal(raw, &session); err != nil {
			s.logger.Warnw("Skipping undecodable session in snapshot", "backup_name", name, "channel_id", id, "error", err)
			continue
		}
		if session.ChannelID == "" {
			session.ChannelID = domain.ChannelID(id)
		}

		current, err := s.repo.Get(ctx, session.ChannelID)
		switch {
		case err == nil && current.Version >= session.Version:
			continue
		case err != nil && !errors.Is(err, domain.ErrDJNotFound):
			return restored, fmt.Errorf("load dj session %s: %w", session.ChannelID, err)
		}

		if err := s.repo.Save(ctx, &session); err != nil {
			return restored, fmt.Errorf("restore dj session %s: %w", session.ChannelID, err)
		}
		restored++
	}

	s.logger.Infow("DJ sessions restored", "backup_name", name, "restored", restored, "in_snapshot", len(snap.Records))
	return restored, nil
}
