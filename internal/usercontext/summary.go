package usercontext

import "time"

// Summary is a point-in-time projection of a user's recent domain data,
// used to ground model replies. Derived and read-only; unset optional
// fields are omitted from the cached JSON.
type Summary struct {
	TodayCalories int `json:"today_calories"`
	CalorieTarget int `json:"calorie_target,omitempty"`

	LastMeal    *MealBrief    `json:"last_meal,omitempty"`
	LastWorkout *WorkoutBrief `json:"last_workout,omitempty"`

	WeekWorkouts int `json:"week_workouts"`
	WeekCalories int `json:"week_calories"`

	Insights []Insight `json:"insights,omitempty"`
}

type MealBrief struct {
	Name       string    `json:"name"`
	Calories   int       `json:"calories"`
	ConsumedAt time.Time `json:"consumed_at"`
}

type WorkoutBrief struct {
	Name             string    `json:"name"`
	DurationMin      int       `json:"duration_min"`
	PerformanceScore *float64  `json:"performance_score,omitempty"`
	PerformedAt      time.Time `json:"performed_at"`
}

type Insight struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	KeyEvidence string `json:"key_evidence,omitempty"`
	Actionable  string `json:"actionable,omitempty"`
}

// cacheEntry is the JSON document stored under the per-user Redis key. The
// key's TTL is the expiry; no expires_at bookkeeping of our own.
type cacheEntry struct {
	UserID      uint64    `json:"user_id"`
	LastUpdated time.Time `json:"last_updated"`
	Summary     Summary   `json:"summary"`
}
