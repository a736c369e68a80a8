package memory

import (
	"context"
	"sort"
	"sync"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
)

type MemoryDJRepository struct {
	sessions map[domain.ChannelID]*domain.DJSession
	mu       sync.RWMutex
}

func NewMemoryDJRepository() ports.DJSessionRepository {
	return &MemoryDJRepository{
		sessions: make(map[domain.ChannelID]*domain.DJSession),
	}
}

// Get returns a private copy; callers may mutate it freely.
func (r *MemoryDJRepository) Get(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[channelID]
	if !exists {
		return nil, domain.ErrDJNotFound
	}
	return session.Clone(), nil
}

func (r *MemoryDJRepository) Save(ctx context.Context, session *domain.DJSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ChannelID] = session.Clone()
	return nil
}

func (r *MemoryDJRepository) ListChannels(ctx context.Context) ([]domain.ChannelID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ChannelID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
