package domaindata

import "time"

// Read-only models over the fitness/nutrition collections owned by the CRUD
// side of the product. The gateway never writes these tables.

type FoodEntry struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	UserID     uint64    `gorm:"index;not null"`
	Name       string    `gorm:"type:varchar(128);not null"`
	Calories   int       `gorm:"not null"`
	ConsumedAt time.Time `gorm:"index;not null"`
}

func (FoodEntry) TableName() string { return "food_entries" }

type Workout struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement"`
	UserID           uint64    `gorm:"index;not null"`
	Name             string    `gorm:"type:varchar(128);not null"`
	DurationMin      int       `gorm:"not null"`
	PerformanceScore *float64  `gorm:""`
	PerformedAt      time.Time `gorm:"index;not null"`
}

func (Workout) TableName() string { return "workouts" }

type Profile struct {
	UserID             uint64 `gorm:"primaryKey"`
	DailyCalorieTarget int    `gorm:"not null"`
}

func (Profile) TableName() string { return "profiles" }

// Insight is a precomputed personal finding produced by the insights pipeline.
type Insight struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	UserID      uint64    `gorm:"index;not null"`
	Type        string    `gorm:"type:varchar(32);not null"`
	Title       string    `gorm:"type:varchar(160);not null"`
	Description string    `gorm:"type:text;not null"`
	KeyEvidence string    `gorm:"type:text"`
	Actionable  string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index"`
}

func (Insight) TableName() string { return "insights" }
