package usercontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vitalpath/coach-gateway/internal/domaindata"
)

const maxInsights = 3

// Service builds user context summaries and caches them in Redis with a
// short TTL so consecutive turns do not re-read the domain tables. Two
// concurrent rebuilds of an expired entry may both write; last writer wins,
// which is fine for a read-only projection.
type Service struct {
	rdb    *redis.Client
	domain *domaindata.Repo
	ttl    time.Duration

	now func() time.Time
}

func NewService(rdb *redis.Client, domain *domaindata.Repo, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{rdb: rdb, domain: domain, ttl: ttl, now: time.Now}
}

func cacheKey(userID uint64) string {
	return fmt.Sprintf("usercontext:%d", userID)
}

// Summary returns the cached summary when the entry is still live, otherwise
// rebuilds it from the domain tables and writes it back.
func (s *Service) Summary(ctx context.Context, userID uint64) (Summary, bool, error) {
	raw, err := s.rdb.Get(ctx, cacheKey(userID)).Bytes()
	if err == nil {
		var entry cacheEntry
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			return entry.Summary, true, nil
		}
		// corrupt entry: rebuild below
		log.Printf("usercontext: corrupt cache entry user=%d", userID)
	} else if !errors.Is(err, redis.Nil) {
		// redis down degrades to a direct rebuild, not a failed request
		log.Printf("usercontext: cache read failed user=%d err=%v", userID, err)
	}

	summary, err := s.build(ctx, userID)
	if err != nil {
		return Summary{}, false, err
	}

	entry := cacheEntry{UserID: userID, LastUpdated: s.now(), Summary: summary}
	if b, err := json.Marshal(entry); err == nil {
		if err := s.rdb.Set(ctx, cacheKey(userID), b, s.ttl).Err(); err != nil {
			log.Printf("usercontext: cache write failed user=%d err=%v", userID, err)
		}
	}
	return summary, false, nil
}

// build fans out the four domain reads. Every read is best-effort: a failed
// sub-query logs and leaves its fields absent rather than failing the summary.
func (s *Service) build(ctx context.Context, userID uint64) (Summary, error) {
	now := s.now()
	var out Summary

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		total, meal, err := s.domain.TodayNutrition(gctx, userID, now)
		if err != nil {
			log.Printf("usercontext: today nutrition failed user=%d err=%v", userID, err)
			return nil
		}
		out.TodayCalories = total
		if meal != nil {
			out.LastMeal = &MealBrief{Name: meal.Name, Calories: meal.Calories, ConsumedAt: meal.ConsumedAt}
		}
		target, err := s.domain.CalorieTarget(gctx, userID)
		if err != nil {
			log.Printf("usercontext: calorie target failed user=%d err=%v", userID, err)
			return nil
		}
		out.CalorieTarget = target
		return nil
	})

	g.Go(func() error {
		w, err := s.domain.LatestWorkout(gctx, userID)
		if err != nil {
			log.Printf("usercontext: latest workout failed user=%d err=%v", userID, err)
			return nil
		}
		if w != nil {
			out.LastWorkout = &WorkoutBrief{
				Name:             w.Name,
				DurationMin:      w.DurationMin,
				PerformanceScore: w.PerformanceScore,
				PerformedAt:      w.PerformedAt,
			}
		}
		return nil
	})

	g.Go(func() error {
		workouts, calories, err := s.domain.WeekStats(gctx, userID, now)
		if err != nil {
			log.Printf("usercontext: week stats failed user=%d err=%v", userID, err)
			return nil
		}
		out.WeekWorkouts = int(workouts)
		out.WeekCalories = calories
		return nil
	})

	g.Go(func() error {
		insights, err := s.domain.TopInsights(gctx, userID, maxInsights)
		if err != nil {
			log.Printf("usercontext: insights failed user=%d err=%v", userID, err)
			return nil
		}
		for _, in := range insights {
			out.Insights = append(out.Insights, Insight{
				Type:        in.Type,
				Title:       in.Title,
				Description: in.Description,
				KeyEvidence: in.KeyEvidence,
				Actionable:  in.Actionable,
			})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return out, nil
}
