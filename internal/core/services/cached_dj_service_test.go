package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDJService struct {
	ports.DJService
	gets atomic.Int32
}

func (s *countingDJService) GetState(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	s.gets.Add(1)
	return s.DJService.GetState(ctx, channelID)
}

// gatedDJService holds GetState after the read until release is closed.
type gatedDJService struct {
	ports.DJService
	loaded  chan *domain.DJSession
	release chan struct{}
}

func (s *gatedDJService) GetState(ctx context.Context, channelID domain.ChannelID) (*domain.DJSession, error) {
	session, err := s.DJService.GetState(ctx, channelID)
	s.loaded <- session
	<-s.release
	return session, err
}

func TestCachedDJService_ServesPollsFromCache(t *testing.T) {
	base, _ := newTestDJService(t, domain.DefaultDJSettings())
	counting := &countingDJService{DJService: base}
	svc := NewCachedDJService(counting, time.Minute)
	defer svc.Stop()
	ctx := context.Background()

	_, err := base.Initialize(ctx, "ch")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := svc.GetState(ctx, "ch")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), counting.gets.Load())
}

func TestCachedDJService_WritesRefreshCache(t *testing.T) {
	base, _ := newTestDJService(t, domain.DefaultDJSettings())
	counting := &countingDJService{DJService: base}
	svc := NewCachedDJService(counting, time.Minute)
	defer svc.Stop()
	ctx := context.Background()

	_, err := svc.Initialize(ctx, "ch")
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, "ch", ports.TrackRequest{Title: "one"}, alice())
	require.NoError(t, err)

	state, err := svc.GetState(ctx, "ch")
	require.NoError(t, err)
	assert.Len(t, state.Queue, 1)
	assert.Equal(t, int32(0), counting.gets.Load())

	// callers get copies
	state.Queue = nil
	again, err := svc.GetState(ctx, "ch")
	require.NoError(t, err)
	assert.Len(t, again.Queue, 1)
}

func TestCachedDJService_ErrorsAreNotCached(t *testing.T) {
	base, _ := newTestDJService(t, domain.DefaultDJSettings())
	svc := NewCachedDJService(base, time.Minute)
	defer svc.Stop()
	ctx := context.Background()

	_, err := svc.GetState(ctx, "ch")
	assert.ErrorIs(t, err, domain.ErrDJNotFound)

	_, err = base.Initialize(ctx, "ch")
	require.NoError(t, err)

	state, err := svc.GetState(ctx, "ch")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelID("ch"), state.ChannelID)

	_, err = svc.Vote(ctx, "ch", 3, "u")
	assert.ErrorIs(t, err, domain.ErrTrackNotFound)
}

func TestCachedDJService_KeepsNewestSnapshot(t *testing.T) {
	base, _ := newTestDJService(t, domain.DefaultDJSettings())
	svc := NewCachedDJService(base, time.Minute)
	defer svc.Stop()

	newer := domain.NewDJSession("ch", domain.DefaultDJSettings(), time.Now())
	newer.Version = 5
	older := newer.Clone()
	older.Version = 4

	_, err := svc.store(newer, nil)
	require.NoError(t, err)
	_, err = svc.store(older, nil)
	require.NoError(t, err)

	state, err := svc.GetState(context.Background(), "ch")
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.Version)
}

func TestCachedDJService_SlowLoadDoesNotOverwriteNewerWrite(t *testing.T) {
	base, _ := newTestDJService(t, domain.DefaultDJSettings())
	ctx := context.Background()
	_, err := base.Initialize(ctx, "ch")
	require.NoError(t, err)

	gated := &gatedDJService{DJService: base, loaded: make(chan *domain.DJSession, 1), release: make(chan struct{})}
	svc := NewCachedDJService(gated, time.Minute)
	defer svc.Stop()

	polled := make(chan *domain.DJSession, 1)
	go func() {
		state, err := svc.GetState(ctx, "ch")
		assert.NoError(t, err)
		polled <- state
	}()

	stale := <-gated.loaded
	require.Equal(t, int64(1), stale.Version)

	written, err := svc.Enqueue(ctx, "ch", ports.TrackRequest{Title: "one"}, alice())
	require.NoError(t, err)
	require.Equal(t, int64(2), written.Version)

	close(gated.release)
	<-polled

	state, err := svc.GetState(ctx, "ch")
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.Version)
	assert.Len(t, state.Queue, 1)
	assert.Equal(t, 1, svc.CacheStats().Size)
}
