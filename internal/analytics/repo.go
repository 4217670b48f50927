package analytics

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const recordRetries = 5

type Repo struct {
	db *gorm.DB

	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

// Sample is one finished chat turn.
type Sample struct {
	UserID       uint64
	ResponseMs   int64
	TokensUsed   int
	HadError     bool
	UsedFallback bool
}

// Record folds one sample into today's aggregate. The read-modify-write runs
// in a transaction with a locked row on MySQL; concurrent writers on SQLite
// serialize on the database lock instead, and transient lock/deadlock errors
// are retried.
func (r *Repo) Record(ctx context.Context, s Sample) error {
	date := r.now().Format("2006-01-02")

	var err error
	for attempt := 0; attempt < recordRetries; attempt++ {
		if err = r.recordOnce(ctx, date, s); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return err
}

func (r *Repo) recordOnce(ctx context.Context, date string, s Sample) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// make sure the day's row exists before locking it
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&DailyRecord{Date: date, UsersJSON: "[]"}).Error; err != nil {
			return err
		}

		q := tx
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var rec DailyRecord
		if err := q.First(&rec, "date = ?", date).Error; err != nil {
			return err
		}

		set, err := rec.userSet()
		if err != nil {
			return err
		}
		set[s.UserID] = struct{}{}
		if err := rec.setUserSet(set); err != nil {
			return err
		}

		// running weighted mean, weighted by the pre-increment count
		rec.AvgResponseMs = (rec.AvgResponseMs*float64(rec.TotalMessages) + float64(s.ResponseMs)) /
			float64(rec.TotalMessages+1)
		rec.TotalMessages++
		rec.TotalTokens += int64(s.TokensUsed)

		if s.UsedFallback {
			rec.FallbackCount++
		} else {
			rec.ModelCalls++
		}
		if s.HadError {
			rec.ErrorCount++
		}

		return tx.Save(&rec).Error
	})
}

// RecordRejection appends one out-of-scope audit row. Rejections do not touch
// the daily aggregate: the pipeline short-circuits before the model call.
func (r *Repo) RecordRejection(ctx context.Context, userID uint64, message, reason string, confidence float64) error {
	return r.db.WithContext(ctx).Create(&OutOfScopeEvent{
		UserID:     userID,
		Message:    message,
		Reason:     reason,
		Confidence: confidence,
	}).Error
}

// Day returns the aggregate for a YYYY-MM-DD date.
func (r *Repo) Day(ctx context.Context, date string) (*DailyRecord, error) {
	var rec DailyRecord
	if err := r.db.WithContext(ctx).First(&rec, "date = ?", date).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}
