package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"

	"github.com/vitalpath/coach-gateway/internal/ai"
	"github.com/vitalpath/coach-gateway/internal/analytics"
	"github.com/vitalpath/coach-gateway/internal/chat"
	"github.com/vitalpath/coach-gateway/internal/config"
	"github.com/vitalpath/coach-gateway/internal/db"
	"github.com/vitalpath/coach-gateway/internal/domaindata"
	"github.com/vitalpath/coach-gateway/internal/ratelimit"
	"github.com/vitalpath/coach-gateway/internal/scope"
	"github.com/vitalpath/coach-gateway/internal/store/rabbitmq"
	"github.com/vitalpath/coach-gateway/internal/store/redisstore"
	"github.com/vitalpath/coach-gateway/internal/usercontext"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := chat.NewRepo(gdb)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	rules, err := scope.LoadRules(cfg.ScopeRulesPath)
	if err != nil {
		log.Printf("scope rules: %v, using built-in defaults", err)
		rules = scope.DefaultRules()
	}

	// Provider registry (route by configured provider + model)
	reg := ai.NewRegistry()
	reg.RegisterWithDefaultModel("openai", cfg.OpenAIModel, func(model string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model, cfg.OpenAISiteURL, cfg.OpenAIAppName), nil
	})
	reg.RegisterWithDefaultModel("ollama", cfg.OllamaModel, func(model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})

	svc := chat.NewService(
		repo,
		reg,
		scope.NewClassifier(rules),
		ratelimit.New(rds.Client, gdb, cfg.ChatHourlyLimit, cfg.ChatDailyLimit),
		usercontext.NewService(rds.Client, domaindata.NewRepo(gdb), cfg.ContextCacheTTL),
		analytics.NewRepo(gdb),
		chat.Options{
			Provider:          cfg.AIProvider,
			ContextWindowSize: cfg.ChatContextWindowSize,
			ModelTimeout:      cfg.ModelTimeout,
			MaxMessageLen:     cfg.MaxMessageLen,
			MaxTokens:         cfg.MaxTokens,
			Temperature:       cfg.Temperature,
		},
	)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	// same declaration as the publisher: mismatched queue arguments make the
	// broker refuse whichever process starts second
	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("declare topology: %v", err)
	}

	//  strict concurrency control
	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// housekeeping: idle sessions go inactive once a night
	cr := cron.New()
	if _, err := cr.AddFunc("15 3 * * *", func() {
		cutoff := time.Now().AddDate(0, 0, -30)
		n, err := repo.DeactivateIdleSessions(context.Background(), cutoff)
		if err != nil {
			log.Printf("deactivate idle sessions: %v", err)
			return
		}
		if n > 0 {
			log.Printf("deactivated %d idle sessions", n)
		}
	}); err != nil {
		log.Fatalf("cron: %v", err)
	}
	cr.Start()
	defer cr.Stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, repo, m.JobID, cfg.RequestBudget); err != nil {
					log.Printf("worker=%d job %s failed cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob runs the generation half of the pipeline for one queued turn.
// Admission already happened at enqueue time; model failures inside
// CompleteTurn become fallback replies, so a failed job means the store
// itself misbehaved.
func handleJob(ctx context.Context, svc *chat.Service, repo *chat.Repo, jobID string, budget time.Duration) error {
	start := time.Now()

	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	jctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	_, assistantMsgID, err := svc.CompleteTurn(jctx, j.UserID, j.SessionID, j.Prompt, start)
	if err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	if err := repo.MarkJobSucceeded(ctx, jobID, assistantMsgID); err != nil {
		return err
	}

	if total := time.Since(start); total > 2*time.Second {
		log.Printf("job_timing job=%s total=%s", jobID, total)
	}
	return nil
}
