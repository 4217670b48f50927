package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/vitalpath/coach-gateway/internal/ai"
	"github.com/vitalpath/coach-gateway/internal/analytics"
	"github.com/vitalpath/coach-gateway/internal/chat"
	"github.com/vitalpath/coach-gateway/internal/config"
	"github.com/vitalpath/coach-gateway/internal/db"
	"github.com/vitalpath/coach-gateway/internal/domaindata"
	"github.com/vitalpath/coach-gateway/internal/httpapi"
	"github.com/vitalpath/coach-gateway/internal/httpapi/handlers"
	"github.com/vitalpath/coach-gateway/internal/models"
	"github.com/vitalpath/coach-gateway/internal/ratelimit"
	"github.com/vitalpath/coach-gateway/internal/scope"
	"github.com/vitalpath/coach-gateway/internal/store/rabbitmq"
	"github.com/vitalpath/coach-gateway/internal/store/redisstore"
	"github.com/vitalpath/coach-gateway/internal/usercontext"
)

func buildRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.RegisterWithDefaultModel("openai", cfg.OpenAIModel, func(model string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model, cfg.OpenAISiteURL, cfg.OpenAIAppName), nil
	})
	reg.RegisterWithDefaultModel("ollama", cfg.OllamaModel, func(model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	return reg
}

func loadScopeRules(path string) scope.Rules {
	rules, err := scope.LoadRules(path)
	if err != nil {
		log.Printf("scope rules: %v, using built-in defaults", err)
		return scope.DefaultRules()
	}
	return rules
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(
		&models.User{},
		&chat.Session{}, &chat.Message{}, &chat.Job{},
		&ratelimit.RateLimitRecord{},
		&analytics.DailyRecord{}, &analytics.OutOfScopeEvent{},
		&domaindata.FoodEntry{}, &domaindata.Workout{}, &domaindata.Profile{}, &domaindata.Insight{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(context.Background()); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	classifier := scope.NewClassifier(loadScopeRules(cfg.ScopeRulesPath))
	limiter := ratelimit.New(rds.Client, gdb, cfg.ChatHourlyLimit, cfg.ChatDailyLimit)
	contexts := usercontext.NewService(rds.Client, domaindata.NewRepo(gdb), cfg.ContextCacheTTL)
	analyticsRepo := analytics.NewRepo(gdb)

	chatSvc := chat.NewService(
		chat.NewRepo(gdb),
		buildRegistry(cfg),
		classifier,
		limiter,
		contexts,
		analyticsRepo,
		chat.Options{
			Provider:          cfg.AIProvider,
			Model:             "",
			ContextWindowSize: cfg.ChatContextWindowSize,
			ModelTimeout:      cfg.ModelTimeout,
			MaxMessageLen:     cfg.MaxMessageLen,
			MaxTokens:         cfg.MaxTokens,
			Temperature:       cfg.Temperature,
		},
	)

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer rabbit.Close()

	h := handlers.NewHandler(gdb, cfg, rds, chatSvc, rabbit)
	r := httpapi.NewRouter(cfg, h)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("api listening addr=%s provider=%s", addr, cfg.AIProvider)
	if err := r.Run(addr); err != nil {
		log.Fatalf("http serve: %v", err)
	}
}
