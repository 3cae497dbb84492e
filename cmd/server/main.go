package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/emailmind/emailmind/internal/ai"
	"github.com/emailmind/emailmind/internal/analytics"
	"github.com/emailmind/emailmind/internal/api"
	"github.com/emailmind/emailmind/internal/auth"
	"github.com/emailmind/emailmind/internal/billing"
	"github.com/emailmind/emailmind/internal/config"
	"github.com/emailmind/emailmind/internal/insight"
	"github.com/emailmind/emailmind/internal/repository/postgres"
	"github.com/emailmind/emailmind/internal/service/mailbox"
	"github.com/emailmind/emailmind/internal/worker"
)

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openRedis(cfg config.RedisConfig) (*redis.Client, error) {
	url := cfg.URL
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// newAnalyzer picks the configured AI backend. Bedrock wins when both are
// enabled since it runs on the same AWS account as the rest of the stack.
func newAnalyzer(ctx context.Context, cfg *config.Config) (ai.Analyzer, error) {
	if cfg.Bedrock.Enabled {
		log.Printf("Using Bedrock analyzer (model %s)", cfg.Bedrock.ModelID)
		return ai.NewBedrockClient(ctx, cfg.Bedrock.Region, cfg.Bedrock.ModelID)
	}
	if cfg.OpenAI.Enabled {
		log.Printf("Using OpenAI analyzer (model %s)", cfg.OpenAI.Model)
		return ai.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Timeout()), nil
	}
	return nil, fmt.Errorf("no AI backend enabled: set openai.enabled or bedrock.enabled")
}

func main() {
	log.Println("Starting EmailMind API server...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	redisClient, err := openRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to redis")

	ctx := context.Background()

	analyzer, err := newAnalyzer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize AI backend: %v", err)
	}

	// Repositories.
	users := postgres.NewUserRepo(db)
	accounts := postgres.NewAccountRepo(db)
	emails := postgres.NewEmailRepo(db)
	attachments := postgres.NewAttachmentRepo(db)
	subscriptions := postgres.NewSubscriptionRepo(db)
	insights := postgres.NewInsightRepo(db)
	stats := postgres.NewStatsRepo(db)

	// Services.
	authManager := auth.NewManager(cfg.Auth, users)
	mailboxes := mailbox.NewService(accounts, emails)
	analyticsSvc := analytics.NewService(db)
	insightSvc := insight.NewService(stats, insights, analyzer)
	billingSvc := billing.NewService(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.PriceIDs, users, subscriptions)
	if !cfg.Stripe.Enabled {
		log.Println("Stripe is not configured; billing endpoints will reject requests")
	}

	queue := worker.NewQueue(redisClient)
	health := worker.NewHealthMonitor(db, redisClient, queue)
	go health.Run(ctx)

	server := api.NewServer(api.Config{
		Auth:        authManager,
		Users:       users,
		Mailboxes:   mailboxes,
		Attachments: attachments,
		Analytics:   analyticsSvc,
		Insights:    insightSvc,
		Billing:     billingSvc,
		Queue:       queue,
		Health:      health,
	})

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
