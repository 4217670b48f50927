package domaindata

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// TodayNutrition returns the calorie sum of today's entries and the most
// recent meal, both relative to the local calendar day of now.
func (r *Repo) TodayNutrition(ctx context.Context, userID uint64, now time.Time) (total int, lastMeal *FoodEntry, err error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var sum struct{ Total int }
	if err := r.db.WithContext(ctx).Model(&FoodEntry{}).
		Select("COALESCE(SUM(calories), 0) AS total").
		Where("user_id = ? AND consumed_at >= ?", userID, dayStart).
		Scan(&sum).Error; err != nil {
		return 0, nil, err
	}

	var meal FoodEntry
	err = r.db.WithContext(ctx).
		Where("user_id = ? AND consumed_at >= ?", userID, dayStart).
		Order("consumed_at DESC").
		First(&meal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sum.Total, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return sum.Total, &meal, nil
}

// LatestWorkout returns the most recent workout or nil when none exists.
func (r *Repo) LatestWorkout(ctx context.Context, userID uint64) (*Workout, error) {
	var w Workout
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("performed_at DESC").
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// WeekStats returns workout count and food-calorie sum over the trailing 7 days.
func (r *Repo) WeekStats(ctx context.Context, userID uint64, now time.Time) (workouts int64, calories int, err error) {
	since := now.AddDate(0, 0, -7)

	if err := r.db.WithContext(ctx).Model(&Workout{}).
		Where("user_id = ? AND performed_at >= ?", userID, since).
		Count(&workouts).Error; err != nil {
		return 0, 0, err
	}

	var sum struct{ Total int }
	if err := r.db.WithContext(ctx).Model(&FoodEntry{}).
		Select("COALESCE(SUM(calories), 0) AS total").
		Where("user_id = ? AND consumed_at >= ?", userID, since).
		Scan(&sum).Error; err != nil {
		return 0, 0, err
	}
	return workouts, sum.Total, nil
}

// CalorieTarget returns the profile's daily target, 0 when no profile exists.
func (r *Repo) CalorieTarget(ctx context.Context, userID uint64) (int, error) {
	var p Profile
	err := r.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return p.DailyCalorieTarget, nil
}

// TopInsights returns the newest precomputed insights, capped at limit.
func (r *Repo) TopInsights(ctx context.Context, userID uint64, limit int) ([]Insight, error) {
	if limit <= 0 || limit > 10 {
		limit = 3
	}
	var out []Insight
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
