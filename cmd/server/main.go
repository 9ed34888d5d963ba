package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/Serph91P/streamvault/internal/config"
	"github.com/Serph91P/streamvault/internal/database"
	"github.com/Serph91P/streamvault/internal/eventsub"
	"github.com/Serph91P/streamvault/internal/jobs"
	"github.com/Serph91P/streamvault/internal/logging"
	"github.com/Serph91P/streamvault/internal/redis"
	"github.com/Serph91P/streamvault/internal/server"
	"github.com/Serph91P/streamvault/internal/twitch"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Error("Failed to ping Redis", "error", err)
		os.Exit(1)
	}

	return client
}

func runGracefulShutdown(srv *server.Server, coordinator *eventsub.Coordinator, cancelWorkers context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		cancelWorkers()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			slog.Error("Webhook listener shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	// Construct repositories
	streamerRepo := database.NewStreamerRepo(pool)
	streamRepo := database.NewStreamRepo(pool)
	subscriptionRepo := database.NewSubscriptionRepo(pool)
	eventLogRepo := database.NewEventLogRepo(pool)

	twitchClient, err := twitch.NewClient(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.CallbackURL(), cfg.TwitchWebhookSecret, clock)
	if err != nil {
		slog.Error("Failed to create Twitch client", "error", err)
		os.Exit(1)
	}

	registry := eventsub.NewRegistry(twitchClient, streamerRepo, subscriptionRepo, clock, cfg.SubscribeMaxAttempts, cfg.SubscribeAttemptTimeout)
	dispatcher := eventsub.NewDispatcher(streamerRepo, streamRepo, eventLogRepo, clock)

	receiver := twitch.NewReceiver(cfg.TwitchWebhookSecret)
	webhookHandler := eventsub.NewWebhookHandler(receiver, dispatcher, registry)
	listener := eventsub.NewListener(cfg.EventSubWebhookPort, config.WebhookCallbackPath, webhookHandler, cfg.ListenerBindTimeout)
	coordinator := eventsub.NewCoordinator(twitchClient, listener)

	svc := eventsub.NewService(coordinator, registry, streamerRepo)

	queue := jobs.NewQueue(redisClient)
	worker := jobs.NewWorker(queue, svc, cfg.JobTimeout)
	reconciler := eventsub.NewReconciler(registry, coordinator, cfg.ReconcileInterval, clock)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	go worker.Run(workerCtx)
	go reconciler.Run(workerCtx)

	// Warm up the session and listener so the first job does not pay for it.
	go func() {
		ctx, cancel := context.WithTimeout(workerCtx, 30*time.Second)
		defer cancel()
		if err := coordinator.Ensure(ctx); err != nil {
			slog.Warn("EventSub bring-up failed at startup, will retry on demand", "error", err)
		}
	}()

	srv := server.NewServer(cfg, svc, queue, streamerRepo, pool, redisClient)

	done := runGracefulShutdown(srv, coordinator, cancelWorkers)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
