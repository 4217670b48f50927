package usercontext

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

	"github.com/vitalpath/coach-gateway/internal/domaindata"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis, *gorm.DB) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // keep the in-memory DB on one connection
	require.NoError(t, db.AutoMigrate(
		&domaindata.FoodEntry{}, &domaindata.Workout{},
		&domaindata.Profile{}, &domaindata.Insight{},
	))

	return NewService(rdb, domaindata.NewRepo(db), 5*time.Minute), mr, db
}

func seedUser(t *testing.T, db *gorm.DB, userID uint64, now time.Time) {
	t.Helper()
	score := 7.5
	require.NoError(t, db.Create(&domaindata.Profile{UserID: userID, DailyCalorieTarget: 2000}).Error)
	require.NoError(t, db.Create(&domaindata.FoodEntry{
		UserID: userID, Name: "Lentejas", Calories: 600, ConsumedAt: now.Add(-2 * time.Hour),
	}).Error)
	require.NoError(t, db.Create(&domaindata.FoodEntry{
		UserID: userID, Name: "Yogur", Calories: 150, ConsumedAt: now.Add(-1 * time.Hour),
	}).Error)
	require.NoError(t, db.Create(&domaindata.Workout{
		UserID: userID, Name: "Fuerza torso", DurationMin: 45,
		PerformanceScore: &score, PerformedAt: now.Add(-26 * time.Hour),
	}).Error)
	require.NoError(t, db.Create(&domaindata.Insight{
		UserID: userID, Type: "nutrition", Title: "Más proteína en desayunos",
		Description: "d", KeyEvidence: "media de 12g", Actionable: "añade huevo", CreatedAt: now,
	}).Error)
}

func TestSummary_BuildAndCache(t *testing.T) {
	svc, _, db := newTestService(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	seedUser(t, db, 1, now)

	ctx := context.Background()

	first, fromCache, err := svc.Summary(ctx, 1)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 750, first.TodayCalories)
	assert.Equal(t, 2000, first.CalorieTarget)
	require.NotNil(t, first.LastMeal)
	assert.Equal(t, "Yogur", first.LastMeal.Name)
	require.NotNil(t, first.LastWorkout)
	assert.Equal(t, "Fuerza torso", first.LastWorkout.Name)
	require.NotNil(t, first.LastWorkout.PerformanceScore)
	assert.Equal(t, 1, first.WeekWorkouts)
	assert.Equal(t, 750, first.WeekCalories)
	require.Len(t, first.Insights, 1)

	// domain data changes, but a live cache entry is returned unchanged
	require.NoError(t, db.Create(&domaindata.FoodEntry{
		UserID: 1, Name: "Fruta", Calories: 100, ConsumedAt: now,
	}).Error)

	second, fromCache, err := svc.Summary(ctx, 1)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, first.TodayCalories, second.TodayCalories)
	assert.Equal(t, first.LastMeal.Name, second.LastMeal.Name)
	assert.Equal(t, first.WeekCalories, second.WeekCalories)
	assert.Equal(t, first.Insights, second.Insights)
}

func TestSummary_RebuildAfterTTL(t *testing.T) {
	svc, mr, db := newTestService(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	seedUser(t, db, 2, now)

	ctx := context.Background()
	_, fromCache, err := svc.Summary(ctx, 2)
	require.NoError(t, err)
	require.False(t, fromCache)

	require.NoError(t, db.Create(&domaindata.FoodEntry{
		UserID: 2, Name: "Batido", Calories: 250, ConsumedAt: now,
	}).Error)

	mr.FastForward(5*time.Minute + time.Second)

	rebuilt, fromCache, err := svc.Summary(ctx, 2)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 1000, rebuilt.TodayCalories)
}

func TestSummary_InsightsBestEffort(t *testing.T) {
	svc, _, db := newTestService(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	seedUser(t, db, 3, now)

	// break only the insights table; the summary must still build
	require.NoError(t, db.Migrator().DropTable(&domaindata.Insight{}))

	sum, fromCache, err := svc.Summary(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 750, sum.TodayCalories)
	assert.Empty(t, sum.Insights)
}

func TestSummary_EmptyUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	sum, fromCache, err := svc.Summary(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Zero(t, sum.TodayCalories)
	assert.Nil(t, sum.LastMeal)
	assert.Nil(t, sum.LastWorkout)
}
