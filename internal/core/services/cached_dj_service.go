package services

import (
	"context"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/pkg/cache"
)

// CachedDJService serves GetState from a short-lived cache. Polling
// clients hit the cache; every write through this instance refreshes it.
type CachedDJService struct {
	ports.DJService
	cache *cache.Cache[*domain.DJSession]
}

// NewCachedDJService wraps base with a cache of ttl.
func NewCachedDJService(base ports.DJService, ttl time.Duration) *CachedDJService {
	return &CachedDJService{
		DJService: base,
		cache:     cache.New[*domain.DJSession](ttl),
	}
}

func (s *CachedDJService) Stop() {
	s.cache.Stop()
}

func (s *CachedDJService) GetState(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	session, err := s.cache.GetOrLoad(ctx, string(channelID), func(ctx context.Context) (*domain.DJSession, error) {
		return s.DJService.GetState(ctx, channelID)
	}, notOlder)
	if err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

func (s *CachedDJService) Initialize(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	return s.store(s.DJService.Initialize(ctx, channelID))
}

func (s *CachedDJService) Enqueue(ctx context.Context, channelID domain.ChannelID, req ports.TrackRequest, submitter domain.Identity) (*domain.DJSession, error) {
	return s.store(s.DJService.Enqueue(ctx, channelID, req, submitter))
}

func (s *CachedDJService) Vote(ctx context.Context, channelID domain.ChannelID, index int, voter domain.UserID) (*domain.DJSession, error) {
	return s.store(s.DJService.Vote(ctx, channelID, index, voter))
}

func (s *CachedDJService) PlayNext(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	return s.store(s.DJService.PlayNext(ctx, channelID))
}

func (s *CachedDJService) Skip(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	return s.store(s.DJService.Skip(ctx, channelID))
}

func (s *CachedDJService) RemoveTrack(ctx context.Context, channelID domain.ChannelID, index int) (*domain.DJSession, error) {
	return s.store(s.DJService.RemoveTrack(ctx, channelID, index))
}

func (s *CachedDJService) ClearQueue(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	return s.store(s.DJService.ClearQueue(ctx, channelID))
}

func (s *CachedDJService) UpdateSettings(ctx context.Context, channelID domain.ChannelID, patch domain.DJSettingsPatch) (*domain.DJSession, error) {
	return s.store(s.DJService.UpdateSettings(ctx, channelID, patch))
}

func (s *CachedDJService) store(session *domain.DJSession, err error) (*domain.DJSession, error) {
	if err != nil {
		return nil, err
	}
	s.cache.SetIf(string(session.ChannelID), session.Clone(), notOlder)
	return session, nil
}

// CacheStats reports the session cache counters.
func (s *CachedDJService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// notOlder keeps the newest snapshot when writers and loads finish out of
// order.
func notOlder(cached, incoming *domain.DJSession) bool {
	return cached.Version <= incoming.Version
}
