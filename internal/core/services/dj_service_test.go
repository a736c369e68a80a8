package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/internal/infrastructure/repositories/memory"
	"streamfy/pkg/distributed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedOp struct {
	operation, result string
}

type fakeDJMetrics struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (m *fakeDJMetrics) ObserveDJOperation(operation, result string, _ time.Duration) {
	m.mu.Lock()
	m.ops = append(m.ops, recordedOp{operation, result})
	m.mu.Unlock()
}

func (m *fakeDJMetrics) last() recordedOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops[len(m.ops)-1]
}

// failingSaveRepo accepts reads but rejects every write.
type failingSaveRepo struct {
	ports.DJSessionRepository
}

func (failingSaveRepo) Save(context.Context, *domain.DJSession) error {
	return domain.ErrStoreUnavailable
}

func newTestDJService(t *testing.T, settings domain.DJSettings) (*djService, *fakeDJMetrics) {
	t.Helper()
	metrics := &fakeDJMetrics{}
	svc := NewDJService(memory.NewMemoryDJRepository(), distributed.NewKeyedMutex(), settings, metrics, zap.NewNop().Sugar()).(*djService)
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return svc, metrics
}

func alice() domain.Identity { return domain.Identity{UserID: "u-alice", DisplayName: "alice"} }

func TestDJService_InitializeIsIdempotent(t *testing.T) {
	svc, _ := newTestDJService(t, domain.DefaultDJSettings())
	ctx := context.Background()

	first, err := svc.Initialize(ctx, "ch")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, domain.DJStateIdle, first.State())

	_, err = svc.Enqueue(ctx, "ch", ports.TrackRequest{Title: "one", Artist: "a"}, alice())
	require.NoError(t, err)

	again, err := svc.Initialize(ctx, "ch")
	require.NoError(t, err)
	assert.Len(t, again.Queue, 1, "re-initializing must not reset the session")
	assert.Equal(t, int64(2), again.Version)
}

func TestDJService_OperationsRequireSession(t *testing.T) {
	svc, metrics := newTestDJService(t, domain.DefaultDJSettings())
	ctx := context.Background()

	_, err := svc.GetState(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrDJNotFound)

	_, err = svc.Skip(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrDJNotFound)
	assert.Equal(t, recordedOp{"skip", "not_found"}, metrics.last())
}

func TestDJService_EnqueueStampsSubmitter(t *testing.T) {
	svc, metrics := newTestDJService(t, domain.DefaultDJSettings())
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "ch")
	require.NoError(t, err)

	session, err := svc.Enqueue(ctx, "ch", ports.TrackRequest{Title: "one", Artist: "a", URL: "https://x/1"}, alice())
	require.NoError(t, err)
	require.Len(t, session.Queue, 1)

	tr := session.Queue[0]
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, domain.UserID("u-alice"), tr.SubmittedBy)
	assert.Equal(t, "alice", tr.SubmitterName)
	assert.False(t, tr.AddedAt.IsZero())
	assert.Equal(t, recordedOp{"enqueue", "ok"}, metrics.last())
}

func TestDJService_RejectedMutationIsNotPersisted(t *testing.T) {
	svc, metrics := newTestDJService(t, domain.DJSettings{AllowViewerRequests: true, MaxQueueSize: 1, VotingEnabled: true})
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "ch")
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, "ch", ports.TrackRequest{Title: "one"}, alice())
	require.NoError(t, err)

	_, err = svc.Enqueue(ctx, "ch", ports.TrackRequest{Title: "two"}, alice())
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Equal(t, recordedOp{"enqueue", "rejected"}, metrics.last())

	state, err := svc.GetState(ctx, "ch")
	require.NoError(t, err)
	assert.Len(t, state.Queue, 1)
	assert.Equal(t, int64(2), state.Version)
}

func TestDJService_SaveFailureSurfaces(t *testing.T) {
	base := memory.NewMemoryDJRepository()
	require.NoError(t, base.Save(context.Background(), domain.NewDJSession("ch", domain.DefaultDJSettings(), time.Now())))

	metrics := &fakeDJMetrics{}
	svc := NewDJService(failingSaveRepo{base}, distributed.NewKeyedMutex(), domain.DefaultDJSettings(), metrics, zap.NewNop().Sugar())

	_, err := svc.Skip(context.Background(), "ch")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, recordedOp{"skip", "error"}, metrics.last())
}

type brokenLocker struct{ err error }

func (l brokenLocker) Lock(context.Context, string) (func(), error) { return nil, l.err }

func TestDJService_LockFailureIsStoreUnavailable(t *testing.T) {
	repo := memory.NewMemoryDJRepository()
	require.NoError(t, repo.Save(context.Background(), domain.NewDJSession("ch", domain.DefaultDJSettings(), time.Now())))

	metrics := &fakeDJMetrics{}
	svc := NewDJService(repo, brokenLocker{errors.New("dial tcp 10.0.0.5:6379: connect: connection refused")}, domain.DefaultDJSettings(), metrics, zap.NewNop().Sugar())

	_, err := svc.Enqueue(context.Background(), "ch", ports.TrackRequest{Title: "one"}, alice())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, recordedOp{"enqueue", "error"}, metrics.last())

	_, err = svc.Initialize(context.Background(), "other")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = repo.Get(context.Background(), "other")
	assert.ErrorIs(t, err, domain.ErrDJNotFound)
}

func TestDJService_LockCancellationIsNotStoreUnavailable(t *testing.T) {
	svc := NewDJService(memory.NewMemoryDJRepository(), brokenLocker{context.Canceled}, domain.DefaultDJSettings(), nil, zap.NewNop().Sugar())

	_, err := svc.Skip(context.Background(), "ch")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestDJService_UpdateSettings(t *testing.T) {
	svc, _ := newTestDJService(t, domain.DefaultDJSettings())
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "ch")
	require.NoError(t, err)

	off := false
	session, err := svc.UpdateSettings(ctx, "ch", domain.DJSettingsPatch{VotingEnabled: &off})
	require.NoError(t, err)
	assert.False(t, session.Settings.VotingEnabled)

	zero := 0
	_, err = svc.UpdateSettings(ctx, "ch", domain.DJSettingsPatch{MaxQueueSize: &zero})
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)
}

// A full listening session: requests, votes reorder the queue, playback
// advances and archives.
func TestDJService_Scenario(t *testing.T) {
	svc, _ := newTestDJService(t, domain.DefaultDJSettings())
	ctx := context.Background()
	ch := domain.ChannelID("stream-1")

	_, err := svc.Initialize(ctx, ch)
	require.NoError(t, err)

	for _, title := range []string{"first", "second", "third"} {
		_, err := svc.Enqueue(ctx, ch, ports.TrackRequest{Title: title, Artist: "band"}, alice())
		require.NoError(t, err)
	}

	session, err := svc.Vote(ctx, ch, 2, "u-bob")
	require.NoError(t, err)
	assert.Equal(t, "third", session.Queue[0].Title)
	assert.Equal(t, 1, session.Queue[0].Votes)

	session, err = svc.Vote(ctx, ch, 0, "u-bob")
	require.NoError(t, err)
	assert.Equal(t, 0, session.Queue[0].Votes, "second vote withdraws")

	session, err = svc.PlayNext(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, "third", session.CurrentTrack.Title)
	assert.Equal(t, domain.DJStatePlaying, session.State())

	session, err = svc.Skip(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, "first", session.CurrentTrack.Title)
	require.Len(t, session.PlayedTracks, 1)
	assert.Equal(t, "third", session.PlayedTracks[0].Title)

	session, err = svc.RemoveTrack(ctx, ch, 0)
	require.NoError(t, err)
	assert.Empty(t, session.Queue)

	_, err = svc.PlayNext(ctx, ch)
	assert.ErrorIs(t, err, domain.ErrQueueEmpty)

	session, err = svc.Skip(ctx, ch)
	require.NoError(t, err)
	assert.Nil(t, session.CurrentTrack)
	assert.Len(t, session.PlayedTracks, 2)

	channels, err := svc.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ChannelID{ch}, channels)
}

func TestDJService_ConcurrentWritesAreSerialized(t *testing.T) {
	svc, _ := newTestDJService(t, domain.DJSettings{AllowViewerRequests: true, MaxQueueSize: 100, VotingEnabled: true})
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "ch")
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, "ch", ports.TrackRequest{Title: "anthem"}, alice())
	require.NoError(t, err)

	const writers = 40
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Enqueue(ctx, "ch", ports.TrackRequest{Title: fmt.Sprintf("t%d", i)}, alice())
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			// anthem is the only track with votes, so it stays at index 0
			_, err := svc.Vote(ctx, "ch", 0, domain.UserID(fmt.Sprintf("voter-%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := svc.GetState(ctx, "ch")
	require.NoError(t, err)
	assert.Len(t, state.Queue, writers+1)
	assert.Equal(t, "anthem", state.Queue[0].Title)
	assert.Equal(t, writers, state.Queue[0].Votes)
	assert.Equal(t, int64(2+2*writers), state.Version)
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "not_found", resultLabel(fmt.Errorf("wrap: %w", domain.ErrTrackNotFound)))
	assert.Equal(t, "disabled", resultLabel(domain.ErrCapabilityDisabled))
	assert.Equal(t, "rejected", resultLabel(domain.ErrQueueEmpty))
	assert.Equal(t, "error", resultLabel(errors.New("boom")))
}
