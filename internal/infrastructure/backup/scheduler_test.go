package backup

import (
	"context"
	"testing"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/infrastructure/repositories/memory"
	"streamfy/pkg/backup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, dir string) (*Scheduler, *backup.Service) {
	t.Helper()
	storage, err := backup.NewFileStorage(dir)
	require.NoError(t, err)
	service := backup.NewService(storage, "1")
	sched := NewScheduler(service, memory.NewMemoryDJRepository(), Config{Interval: time.Hour, Keep: 3}, zap.NewNop().Sugar())
	return sched, service
}

func seedSession(t *testing.T, s *Scheduler, id domain.ChannelID, titles ...string) *domain.DJSession {
	t.Helper()
	session := domain.NewDJSession(id, domain.DefaultDJSettings(), time.Now())
	for _, title := range titles {
		require.NoError(t, session.Enqueue(domain.Track{ID: title, Title: title}))
	}
	require.NoError(t, session.Vote(0, "u-1"))
	require.NoError(t, session.PlayNext(time.Now()))
	session.Touch(time.Now())
	require.NoError(t, s.repo.Save(context.Background(), session))
	return session
}

func TestScheduler_SnapshotThenRestore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src, _ := newTestScheduler(t, dir)
	seedSession(t, src, "ch-a", "one", "two")
	seedSession(t, src, "ch-b", "three")

	name, err := src.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	dst, _ := newTestScheduler(t, dir)
	n, err := dst.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := dst.repo.Get(ctx, "ch-a")
	require.NoError(t, err)
	assert.Equal(t, "one", got.CurrentTrack.Title)
	require.Len(t, got.Queue, 1)
	assert.Equal(t, "two", got.Queue[0].Title)
	assert.Equal(t, int64(1), got.Version)

	// a second restore finds nothing newer
	n, err = dst.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_RestoreKeepsNewerSessions(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src, _ := newTestScheduler(t, dir)
	seedSession(t, src, "ch-a", "old")
	_, err := src.Snapshot(ctx)
	require.NoError(t, err)

	dst, _ := newTestScheduler(t, dir)
	newer := seedSession(t, dst, "ch-a", "fresh")
	newer.Touch(time.Now())
	require.NoError(t, dst.repo.Save(ctx, newer))

	n, err := dst.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := dst.repo.Get(ctx, "ch-a")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.CurrentTrack.Title)
}

func TestScheduler_RestoreWithoutBackups(t *testing.T) {
	sched, _ := newTestScheduler(t, t.TempDir())
	n, err := sched.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_RunPrunesAndSnapshotsOnStop(t *testing.T) {
	dir := t.TempDir()
	sched, service := newTestScheduler(t, dir)
	sched.interval = 5 * time.Millisecond
	seedSession(t, sched, "ch-a", "one")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	// names carry millisecond resolution, so several ticks produce several files
	require.Eventually(t, func() bool {
		names, err := service.List(context.Background())
		return err == nil && len(names) == 3
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	names, err := service.List(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(names), 4, "final snapshot is written after the last prune")

	snap, _, err := service.Latest(context.Background())
	require.NoError(t, err)
	assert.Contains(t, snap.Records, "ch-a")
}
