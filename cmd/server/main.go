package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neilnvaidya/owlby-api/internal/config"
	"github.com/neilnvaidya/owlby-api/internal/handler"
	"github.com/neilnvaidya/owlby-api/internal/pkg/logger"
	"github.com/neilnvaidya/owlby-api/internal/repository"
	"github.com/neilnvaidya/owlby-api/internal/server"
	"github.com/neilnvaidya/owlby-api/internal/server/middleware"
	"github.com/neilnvaidya/owlby-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err.Error())
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		ToStdout:   cfg.Log.ToStdout,
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		slog.Error("logger_init_failed", "error", err.Error())
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	db, err := repository.OpenDB(cfg.Database)
	if err != nil {
		slog.Error("database_open_failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	subRepo := repository.NewSubscriptionRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	client := repository.NewGeminiClient(cfg.AI)

	aiService := service.NewAIService(client, cfg)
	gateService := service.NewAccessGateService(subRepo, usageRepo, cfg)
	recorder := service.NewUsageRecorderService(usageRepo, cfg.UsageRecorder.Workers, cfg.UsageRecorder.QueueSize)
	limiter := service.NewSlidingWindowLimiter(time.Duration(cfg.RateLimit.IdleTTLSeconds) * time.Second)
	retention := service.NewUsageRetentionService(usageRepo, cfg)

	retention.Start()

	auth := middleware.NewAuthVerifier(
		cfg.Auth.JWTSecret,
		cfg.Auth.CacheSize,
		time.Duration(cfg.Auth.CacheTTLSeconds)*time.Second,
	)
	gen := handler.NewGenerateHandler(aiService, gateService, recorder, limiter, cfg.RateLimit)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.SetupRouter(cfg, gen, auth),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		slog.Info("server_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server_failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server_shutdown_failed", "error", err.Error())
	}

	retention.Stop()
	recorder.Stop()
	slog.Info("server_stopped")
}
