// cmd/tracker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"macro-tracker/config"
	"macro-tracker/internal/auth"
	"macro-tracker/internal/bot"
	"macro-tracker/internal/db"
	"macro-tracker/internal/gpt"
	"macro-tracker/internal/prefs"
	"macro-tracker/internal/server"
	"macro-tracker/internal/session"
	"macro-tracker/internal/totals"
	"macro-tracker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatalw("Failed to load config", "error", err)
	}

	l := logger.ForEnv(cfg.Env)
	defer l.Sync()
	l.Infow("Starting macro tracker", "env", cfg.Env, "db_driver", cfg.DB.Driver)

	if cfg.Auth.JWTSecret == "" {
		l.Fatal("Auth JWT secret is not configured")
	}

	store, closeStore := openStore(cfg, l)
	defer closeStore()

	prefStore, err := prefs.NewStore(cfg.Preferences.Dir)
	if err != nil {
		l.Fatalw("Failed to open preferences", "error", err)
	}

	sessions := session.NewManager(store, prefStore, l, totals.OptionsFrom(cfg.Cache))
	defer sessions.CloseAll()

	var estimator *gpt.Client
	if cfg.GPT.APIKey != "" {
		estimator = gpt.NewClientWithBaseURL(cfg.GPT.APIKey, cfg.GPT.BaseURL).WithModel(cfg.GPT.Model)
	} else {
		l.Warn("GPT API key is not configured, estimation disabled")
	}

	deps := server.Deps{
		Sessions:       sessions,
		Verifier:       auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         l,
	}
	if estimator != nil {
		deps.Estimator = estimator
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var telegramBot *bot.TelegramBot
	if cfg.Telegram.Token != "" {
		var botEstimator bot.Estimator
		if estimator != nil {
			botEstimator = estimator
		}
		telegramBot, err = bot.NewTelegramBot(cfg.Telegram.Token, sessions, botEstimator, l)
		if err != nil {
			l.Fatalw("Failed to create Telegram bot", "error", err)
		}
		if err := telegramBot.Start(ctx); err != nil {
			l.Fatalw("Failed to start Telegram bot", "error", err)
		}
		l.Info("Telegram bot started successfully")
	}

	httpServer := server.NewServer(cfg.Server.Port, server.NewRouter(deps), l)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		l.Errorw("Error during HTTP server shutdown", "error", err)
	}
	if telegramBot != nil {
		if err := telegramBot.Stop(shutdownCtx); err != nil {
			l.Errorw("Error during bot shutdown", "error", err)
		}
	}

	l.Info("Stopped")
}

// openStore connects to Postgres with retries, or returns the in-memory store
// when the driver is "memory".
func openStore(cfg *config.Config, l *logger.Logger) (db.Store, func()) {
	if cfg.DB.Driver == "memory" {
		l.Warn("Using in-memory store, data is lost on exit")
		return db.NewMemoryStore(), func() {}
	}

	var database *db.PostgresDB
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		database, err = db.NewPostgresDB(cfg.DB)
		if err == nil {
			break
		}
		l.Errorw("Failed to connect to database, retrying...", "attempt", i+1, "error", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if database == nil {
		l.Fatalw("Failed to connect to database after multiple attempts", "error", err)
	}

	if cfg.DB.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := database.Migrate(ctx); err != nil {
			l.Fatalw("Failed to apply schema", "error", err)
		}
	}
	return database, database.Close
}
