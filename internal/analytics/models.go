package analytics

import (
	"encoding/json"
	"time"
)

// DailyRecord aggregates gateway traffic for one calendar day. Arithmetic on
// it is not commutative (running weighted mean), so every update runs inside
// a transaction.
type DailyRecord struct {
	Date          string  `gorm:"primaryKey;size:10"` // YYYY-MM-DD
	TotalMessages int64   `gorm:"not null;default:0"`
	UniqueUsers   int64   `gorm:"not null;default:0"`
	AvgResponseMs float64 `gorm:"not null;default:0"`
	ModelCalls    int64   `gorm:"not null;default:0"`
	FallbackCount int64   `gorm:"not null;default:0"`
	ErrorCount    int64   `gorm:"not null;default:0"`
	TotalTokens   int64   `gorm:"not null;default:0"`

	// UsersJSON is the serialized user-id set backing UniqueUsers.
	UsersJSON string `gorm:"type:text;not null;default:'[]'"`

	UpdatedAt time.Time
}

func (DailyRecord) TableName() string { return "analytics_daily" }

func (r *DailyRecord) userSet() (map[uint64]struct{}, error) {
	var ids []uint64
	raw := r.UsersJSON
	if raw == "" {
		raw = "[]"
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (r *DailyRecord) setUserSet(set map[uint64]struct{}) error {
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	r.UsersJSON = string(b)
	r.UniqueUsers = int64(len(set))
	return nil
}

// OutOfScopeEvent is one rejected message, kept as an audit trail for tuning
// the scope rules.
type OutOfScopeEvent struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	UserID     uint64    `gorm:"index;not null"`
	Message    string    `gorm:"type:text;not null"`
	Reason     string    `gorm:"type:varchar(64);not null"`
	Confidence float64   `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index"`
}

func (OutOfScopeEvent) TableName() string { return "out_of_scope_events" }
