package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/emailmind/emailmind/internal/ai"
	"github.com/emailmind/emailmind/internal/config"
	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/ingest"
	"github.com/emailmind/emailmind/internal/insight"
	"github.com/emailmind/emailmind/internal/pkg/distlock"
	"github.com/emailmind/emailmind/internal/report"
	"github.com/emailmind/emailmind/internal/repository/postgres"
	"github.com/emailmind/emailmind/internal/service/mailbox"
	"github.com/emailmind/emailmind/internal/storage"
	"github.com/emailmind/emailmind/internal/worker"
)

const (
	syncConsumers = 2
	aiConsumers   = 2
)

func main() {
	log.Println("Starting EmailMind background workers...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("Failed to ping database: %v", err)
	}
	cancelPing()
	log.Println("Connected to database")

	redisURL := cfg.Redis.URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Invalid redis URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// AI backend.
	var analyzer ai.Analyzer
	if cfg.Bedrock.Enabled {
		analyzer, err = ai.NewBedrockClient(ctx, cfg.Bedrock.Region, cfg.Bedrock.ModelID)
		if err != nil {
			log.Fatalf("Failed to initialize Bedrock: %v", err)
		}
		log.Printf("Using Bedrock analyzer (model %s)", cfg.Bedrock.ModelID)
	} else if cfg.OpenAI.Enabled {
		analyzer = ai.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Timeout())
		log.Printf("Using OpenAI analyzer (model %s)", cfg.OpenAI.Model)
	} else {
		log.Fatalf("No AI backend enabled: set openai.enabled or bedrock.enabled")
	}

	// Mailbox providers.
	fetchers := ingest.NewRegistry()
	if cfg.Gmail.ClientID != "" {
		fetchers.Register(domain.ProviderGmail, ingest.NewGmailFetcher(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret))
	} else {
		log.Println("Gmail OAuth is not configured; gmail accounts will not sync")
	}
	fetchers.Register(domain.ProviderIMAP, ingest.NewIMAPFetcher())
	fetchers.Register(domain.ProviderOutlook, ingest.NewOutlookFetcher())

	// Repositories.
	users := postgres.NewUserRepo(db)
	accounts := postgres.NewAccountRepo(db)
	emails := postgres.NewEmailRepo(db)
	attachmentMeta := postgres.NewAttachmentRepo(db)
	insightStore := postgres.NewInsightRepo(db)
	stats := postgres.NewStatsRepo(db)

	queue := worker.NewQueue(redisClient)

	// Attachment blob storage is optional.
	var blobs worker.AttachmentSaver
	var attachments worker.AttachmentMetaStore
	if cfg.Storage.Enabled {
		store, err := storage.NewAttachmentStore(ctx, cfg.Storage.S3Bucket, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
		if err != nil {
			log.Fatalf("Failed to initialize attachment storage: %v", err)
		}
		blobs = store
		attachments = attachmentMeta
		log.Printf("Attachment storage enabled (bucket %s)", cfg.Storage.S3Bucket)
	}

	maxFetch := cfg.Sync.MaxFetchPerSync
	processor := worker.NewSyncProcessor(fetchers, accounts, emails, users, queue, blobs, attachments, maxFetch)
	aiWorker := worker.NewAIWorker(analyzer, emails, accounts, queue)

	scheduler := worker.NewScheduler(
		users, accounts, queue, aiWorker,
		distlock.New(redisClient, db, "emailmind:scheduler", 10*time.Minute),
		cfg.Sync.Interval(), cfg.Sync.StaleAfter(), cfg.Sync.BatchSize,
	)

	// Weekly digest email is optional.
	var reportWorker *worker.ReportWorker
	if cfg.Reports.Enabled {
		sender, err := report.NewSESSender(ctx, cfg.Reports.AWSRegion, cfg.Reports.FromAddress)
		if err != nil {
			log.Fatalf("Failed to initialize SES sender: %v", err)
		}
		mailboxes := mailbox.NewService(accounts, emails)
		insightSvc := insight.NewService(stats, insightStore, analyzer)
		reportWorker = worker.NewReportWorker(users, mailboxes, insightSvc, report.NewService(sender), queue)
		scheduler = scheduler.WithReportWorker(reportWorker)
		log.Printf("Weekly reports enabled (from %s)", cfg.Reports.FromAddress)
	}

	health := worker.NewHealthMonitor(db, redisClient, queue)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("Started %s", name)
			fn(ctx)
		}()
	}

	for i := 0; i < syncConsumers; i++ {
		run(fmt.Sprintf("sync consumer %d", i+1), func(ctx context.Context) { processor.Run(ctx, queue) })
	}
	for i := 0; i < aiConsumers; i++ {
		run(fmt.Sprintf("ai consumer %d", i+1), aiWorker.Run)
	}
	if reportWorker != nil {
		run("report consumer", reportWorker.Run)
	}
	run("scheduler", scheduler.Run)
	run("health monitor", health.Run)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down workers...")
	cancel()
	wg.Wait()
	log.Println("Workers stopped")
}
