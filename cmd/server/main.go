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

	"github.com/ignite/followup-engine/internal/api"
	"github.com/ignite/followup-engine/internal/config"
	"github.com/ignite/followup-engine/internal/msgraph"
	"github.com/ignite/followup-engine/internal/render"
	"github.com/ignite/followup-engine/internal/repository/postgres"
	"github.com/ignite/followup-engine/internal/ses"
	"github.com/ignite/followup-engine/internal/service/followup"
	"github.com/ignite/followup-engine/internal/worker"
)

func main() {
	log.Println("Followup engine starting")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database.url (or DATABASE_URL) is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable, falling back to advisory locks: %v", err)
			redisClient = nil
		}
	}

	emails := postgres.NewEmailRepo(db)
	attempts := postgres.NewAttemptRepo(db)

	transport := buildTransport(cfg)

	scheduler := followup.NewScheduler(followup.Deps{
		Emails:    emails,
		Attempts:  attempts,
		History:   attempts,
		Templates: postgres.NewTemplateRepo(db),
		Settings:  postgres.NewSettingsRepo(db),
		Bounces:   emails,
		Renderer:  render.New(),
		Transport: transport,
	})
	if cfg.Scheduler.Mailbox != "" {
		scheduler.SetMailbox(cfg.Scheduler.Mailbox)
		log.Printf("Scheduling restricted to mailbox %s", cfg.Scheduler.Mailbox)
	}

	runner := worker.NewRunner(scheduler, db)
	if redisClient != nil {
		runner.SetRedisClient(redisClient)
	}
	runner.SetPollInterval(cfg.Scheduler.PollInterval())
	runner.SetSendInterval(cfg.Scheduler.SendInterval())
	runner.SetSendBatch(cfg.Scheduler.SendBatchSize)
	if len(cfg.Scheduler.SlotTimes) > 0 {
		loc, err := time.LoadLocation(cfg.Scheduler.SlotTimezone)
		if err != nil {
			log.Fatalf("Invalid slot timezone %q: %v", cfg.Scheduler.SlotTimezone, err)
		}
		if err := runner.SetSlotTimes(cfg.Scheduler.SlotTimes, loc); err != nil {
			log.Fatalf("Invalid slot config: %v", err)
		}
	}
	if err := runner.Start(); err != nil {
		log.Fatalf("Failed to start runner: %v", err)
	}

	handlers := api.NewFollowupHandlers(scheduler, runner.Stats)
	router := api.SetupRoutes(handlers, cfg.Server.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // slot passes send synchronously
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// buildTransport picks the mail provider: Graph when a tenant is configured,
// SES as the fallback, dry-run Graph when neither has credentials.
func buildTransport(cfg *config.Config) followup.Transport {
	if cfg.Graph.Configured() {
		log.Println("Mail transport: Microsoft Graph")
		return msgraph.New(cfg.Graph)
	}
	if cfg.SES.Configured() {
		log.Println("Mail transport: AWS SES")
		sender, err := ses.New(cfg.SES)
		if err != nil {
			log.Fatalf("Failed to initialize SES: %v", err)
		}
		return sender
	}
	log.Println("Mail transport: none configured, running in dry-run mode")
	graphCfg := cfg.Graph
	graphCfg.DryRun = true
	return msgraph.New(graphCfg)
}
