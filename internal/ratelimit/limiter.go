package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultHourlyLimit = 20
	DefaultDailyLimit  = 100
)

// admitScript increments the hourly and daily counters for one user in a
// single atomic step. A rejected call must not consume quota, so the script
// undoes its own increments before reporting a denial.
//
// KEYS[1] hourly bucket, KEYS[2] daily bucket
// ARGV[1] hourly limit, ARGV[2] daily limit, ARGV[3]/[4] bucket TTLs in ms
// Returns {allowed, binding} where binding is 1=hour, 2=day, 0=none.
var admitScript = redis.NewScript(`
local h = redis.call('INCR', KEYS[1])
if h == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
if h > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return {0, 1}
end
local d = redis.call('INCR', KEYS[2])
if d == 1 then
  redis.call('PEXPIRE', KEYS[2], ARGV[4])
end
if d > tonumber(ARGV[2]) then
  redis.call('DECR', KEYS[1])
  redis.call('DECR', KEYS[2])
  return {0, 2}
end
return {1, 0}
`)

type Decision struct {
	Allowed bool

	// RetryAfter is the wait until the binding window resets; only set on
	// denial.
	RetryAfter time.Duration
}

// Limiter enforces rolling hourly and daily per-user quotas. Counters live in
// Redis under window-bucketed keys, so crossing a clock boundary naturally
// starts a fresh count and concurrent requests from one user cannot bypass
// the quota. A gorm mirror row is kept best-effort for support tooling and
// carries the manual block flag.
type Limiter struct {
	rdb         *redis.Client
	db          *gorm.DB
	HourlyLimit int
	DailyLimit  int

	now func() time.Time
}

func New(rdb *redis.Client, db *gorm.DB, hourly, daily int) *Limiter {
	if hourly <= 0 {
		hourly = DefaultHourlyLimit
	}
	if daily <= 0 {
		daily = DefaultDailyLimit
	}
	return &Limiter{rdb: rdb, db: db, HourlyLimit: hourly, DailyLimit: daily, now: time.Now}
}

// RateLimitRecord mirrors the live counters for inspection and holds the
// manual block flag. It is not the admission source of truth.
type RateLimitRecord struct {
	UserID      uint64    `gorm:"primaryKey"`
	HourlyCount int       `gorm:"not null;default:0"`
	DailyCount  int       `gorm:"not null;default:0"`
	WindowStart time.Time `gorm:""`
	LastReset   time.Time `gorm:""`
	IsBlocked   bool      `gorm:"not null;default:false"`
	UpdatedAt   time.Time
}

func (RateLimitRecord) TableName() string { return "rate_limit_records" }

// Admit consumes one quota unit for userID, or reports when the next call is
// allowed. Retried calls consume fresh quota by design.
func (l *Limiter) Admit(ctx context.Context, userID uint64) (Decision, error) {
	now := l.now()
	hourStart := now.Truncate(time.Hour)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	nextHour := hourStart.Add(time.Hour)
	nextDay := dayStart.AddDate(0, 0, 1)

	blocked, err := l.isBlocked(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if blocked {
		return Decision{Allowed: false, RetryAfter: nextDay.Sub(now)}, nil
	}

	hKey := fmt.Sprintf("ratelimit:%d:h:%s", userID, hourStart.Format("2006010215"))
	dKey := fmt.Sprintf("ratelimit:%d:d:%s", userID, dayStart.Format("20060102"))

	// bucket TTLs outlive the window slightly so late stragglers still see
	// the counter instead of resurrecting it at zero
	hTTL := nextHour.Sub(now) + time.Minute
	dTTL := nextDay.Sub(now) + time.Minute

	res, err := admitScript.Run(ctx, l.rdb,
		[]string{hKey, dKey},
		l.HourlyLimit, l.DailyLimit, hTTL.Milliseconds(), dTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit admit: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("ratelimit admit: unexpected script reply %v", res)
	}

	if res[0] != 1 {
		retry := nextHour.Sub(now)
		if res[1] == 2 {
			retry = nextDay.Sub(now)
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	l.mirror(ctx, userID, hKey, dKey, hourStart, dayStart)
	return Decision{Allowed: true}, nil
}

func (l *Limiter) isBlocked(ctx context.Context, userID uint64) (bool, error) {
	if l.db == nil {
		return false, nil
	}
	var rec RateLimitRecord
	err := l.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.IsBlocked, nil
}

// mirror upserts the inspection row. Failures only log: the Redis counters
// already hold the admitted call.
func (l *Limiter) mirror(ctx context.Context, userID uint64, hKey, dKey string, hourStart, dayStart time.Time) {
	if l.db == nil {
		return
	}
	hc, _ := l.rdb.Get(ctx, hKey).Int()
	dc, _ := l.rdb.Get(ctx, dKey).Int()

	rec := RateLimitRecord{
		UserID:      userID,
		HourlyCount: hc,
		DailyCount:  dc,
		WindowStart: hourStart,
		LastReset:   dayStart,
	}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"hourly_count", "daily_count", "window_start", "last_reset", "updated_at",
		}),
	}).Create(&rec).Error
	if err != nil {
		log.Printf("ratelimit: mirror upsert failed user=%d err=%v", userID, err)
	}
}
