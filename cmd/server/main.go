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

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/holy-jesus/holynotifier/internal/app"
	"github.com/holy-jesus/holynotifier/internal/config"
	"github.com/holy-jesus/holynotifier/internal/logging"
	"github.com/holy-jesus/holynotifier/internal/redis"
	"github.com/holy-jesus/holynotifier/internal/server"
	"github.com/holy-jesus/holynotifier/internal/telegram"
	"github.com/holy-jesus/holynotifier/internal/twitch"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// setupWebhookSecret uses the configured secret when present and otherwise
// generates one on first boot and persists it, so deliveries stay verifiable
// across restarts.
func setupWebhookSecret(ctx context.Context, cfg *config.Config, secrets *redis.SecretRepo) string {
	if cfg.WebhookSecret != "" {
		return cfg.WebhookSecret
	}
	secret, err := secrets.LoadOrCreate(ctx)
	if err != nil {
		slog.Error("Failed to load or create webhook secret", "error", err)
		os.Exit(1)
	}
	return secret
}

func runGracefulShutdown(srv *server.Server, reconciler *app.Reconciler) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		reconciler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	ctx := context.Background()

	redisClient := setupRedis(ctx, cfg)
	defer func() { _ = redisClient.Close() }()

	channelRepo := redis.NewChannelRepo(redisClient)
	tokenRepo := redis.NewTokenRepo(redisClient)
	watchlistRepo := redis.NewWatchlistRepo(redisClient)
	secretRepo := redis.NewSecretRepo(redisClient)

	webhookSecret := setupWebhookSecret(ctx, cfg, secretRepo)

	tokens := twitch.NewAppTokenSource(tokenRepo, cfg.TwitchClientID, cfg.TwitchClientSecret, clock)
	client := twitch.NewClient(tokens, cfg.TwitchClientID, cfg.WebhookCallbackURL, webhookSecret, clock)

	verifier, err := twitch.NewVerifier(webhookSecret, clock)
	if err != nil {
		slog.Error("Failed to create delivery verifier", "error", err)
		os.Exit(1)
	}

	notifier, err := telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, clock)
	if err != nil {
		slog.Error("Failed to create telegram notifier", "error", err)
		os.Exit(1)
	}

	dispatcher := app.NewDispatcher(channelRepo, notifier, client, clock)
	reconciler := app.NewReconciler(client, channelRepo, watchlistRepo, cfg.ReconcileInterval, clock)
	appSvc := app.NewService(client, watchlistRepo, reconciler)

	// One pass at boot so subscriptions exist before the first delivery, then
	// the periodic loop keeps them converged.
	if _, err := reconciler.Reconcile(ctx); err != nil {
		slog.Error("Initial reconciliation failed", "error", err)
		if reportErr := notifier.ReportError(ctx, "initial reconciliation failed: "+err.Error()); reportErr != nil {
			slog.Warn("Failed to report initial reconciliation failure", "error", reportErr)
		}
	}
	go reconciler.Start(ctx)

	srv := server.NewServer(cfg, verifier, dispatcher, appSvc, notifier, redisClient, clock)

	done := runGracefulShutdown(srv, reconciler)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
