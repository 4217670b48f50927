package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	// a single pooled connection keeps the in-memory DB visible everywhere
	// and serializes the concurrent writers the way the MySQL row lock does
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&DailyRecord{}, &OutOfScopeEvent{}))
	return NewRepo(gdb)
}

func TestRecord_RunningAverage(t *testing.T) {
	repo := newTestRepo(t)
	repo.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, Sample{UserID: 1, ResponseMs: 100, TokensUsed: 40}))
	require.NoError(t, repo.Record(ctx, Sample{UserID: 1, ResponseMs: 300, UsedFallback: true, HadError: true}))
	require.NoError(t, repo.Record(ctx, Sample{UserID: 2, ResponseMs: 200, TokensUsed: 60}))

	rec, err := repo.Day(ctx, "2026-03-14")
	require.NoError(t, err)

	assert.Equal(t, int64(3), rec.TotalMessages)
	assert.Equal(t, int64(2), rec.UniqueUsers)
	assert.InDelta(t, 200.0, rec.AvgResponseMs, 0.001)
	assert.Equal(t, int64(2), rec.ModelCalls)
	assert.Equal(t, int64(1), rec.FallbackCount)
	assert.Equal(t, int64(1), rec.ErrorCount)
	assert.Equal(t, int64(100), rec.TotalTokens)
}

func TestRecord_ConcurrentWriters(t *testing.T) {
	repo := newTestRepo(t)
	repo.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	const calls = 100
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- repo.Record(ctx, Sample{
				UserID:     uint64(n%10 + 1),
				ResponseMs: 100,
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := repo.Day(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(calls), rec.TotalMessages, "no lost updates")
	assert.Equal(t, int64(10), rec.UniqueUsers)
	assert.InDelta(t, 100.0, rec.AvgResponseMs, 0.001)
}

func TestRecordRejection(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordRejection(ctx, 4, "¿Qué tinte de pelo me queda mejor?", "offtopic_term", 0.98))

	var events []OutOfScopeEvent
	require.NoError(t, repo.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(4), events[0].UserID)
	assert.Equal(t, "offtopic_term", events[0].Reason)

	// rejections never touch the daily aggregate
	_, err := repo.Day(ctx, repo.now().Format("2006-01-02"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
