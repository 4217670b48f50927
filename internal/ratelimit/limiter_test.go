package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestLimiter(t *testing.T, hourly, daily int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // keep the in-memory DB on one connection
	require.NoError(t, gdb.AutoMigrate(&RateLimitRecord{}))

	return New(rdb, gdb, hourly, daily), mr
}

func TestAdmit_HourlyLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 20, 100)
	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		d, err := l.Admit(ctx, 7)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d should be admitted", i+1)
	}

	d, err := l.Admit(ctx, 7)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Hour)

	// other users are unaffected
	d, err = l.Admit(ctx, 8)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAdmit_HourRollover(t *testing.T) {
	l, _ := newTestLimiter(t, 2, 100)
	base := time.Date(2026, 3, 14, 10, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := l.Admit(ctx, 1)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Admit(ctx, 1)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// crossing the hour boundary starts a fresh hourly window
	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	d, err = l.Admit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAdmit_DailyLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 100, 3)
	base := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := l.Admit(ctx, 2)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := l.Admit(ctx, 2)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	// daily is the binding constraint: hint points at midnight, not the hour
	assert.Greater(t, d.RetryAfter, time.Hour)

	// denied calls must not have consumed hourly quota either
	var rec RateLimitRecord
	require.NoError(t, l.db.First(&rec, "user_id = ?", uint64(2)).Error)
	assert.Equal(t, 3, rec.HourlyCount)
	assert.Equal(t, 3, rec.DailyCount)
}

func TestAdmit_BlockedUser(t *testing.T) {
	l, _ := newTestLimiter(t, 20, 100)
	base := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	require.NoError(t, l.db.Create(&RateLimitRecord{UserID: 9, IsBlocked: true}).Error)

	d, err := l.Admit(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestAdmit_ConcurrentSameUser(t *testing.T) {
	l, _ := newTestLimiter(t, 10, 100)
	base := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	ctx := context.Background()
	const calls = 30
	results := make(chan bool, calls)
	for i := 0; i < calls; i++ {
		go func() {
			d, err := l.Admit(ctx, 5)
			if err != nil {
				results <- false
				return
			}
			results <- d.Allowed
		}()
	}

	allowed := 0
	for i := 0; i < calls; i++ {
		if <-results {
			allowed++
		}
	}
	// exactly the quota is admitted, no bypass under concurrency
	assert.Equal(t, 10, allowed)
}
