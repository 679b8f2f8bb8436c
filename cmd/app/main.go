package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-bot/internal/bot"
	"shop-bot/internal/broadcast"
	"shop-bot/internal/cache"
	"shop-bot/internal/config"
	"shop-bot/internal/convo"
	"shop-bot/internal/httpserver"
	"shop-bot/internal/logging"
	"shop-bot/internal/media"
	"shop-bot/internal/metrics"
	"shop-bot/internal/repo"
	"shop-bot/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.AppEnv)
	logger.Info("starting shop-bot", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var repository repo.Repository
	if cfg.DatabaseURL != "" {
		repository, err = repo.New(ctx, cfg.DatabaseURL, logger)
	} else {
		repository, err = repo.NewSQLite(ctx, cfg.SQLitePath, logger)
	}
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	settingsSource := cache.NewSettingsSource(repository, redisClient, cfg.SettingsCacheTTL, logger)
	mediaResolver := media.NewResolver(logger)

	convoEngine := convo.New(repository, settingsSource, mediaResolver, metricRegistry, logger, convo.Config{
		SearchLimit: cfg.SearchResultLimit,
	})

	manager := bot.New(settingsSource, bot.RouterHandler{Router: convoEngine}, metricRegistry, logger, bot.Config{
		APIEndpoint: cfg.TelegramAPIEndpoint,
		PollTimeout: cfg.PollTimeout,
	})
	defer manager.Shutdown()

	// An absent or rejected token at boot leaves the bot offline; the admin
	// surface can still save a working token and reconfigure later.
	if err := manager.Reconfigure(ctx); err != nil {
		if !errors.Is(err, bot.ErrInvalidCredential) {
			logger.Warn("initial bot connect failed", "error", err)
		} else {
			logger.Info("no usable bot token configured, staying offline")
		}
	}

	publisher := broadcast.New(func() (broadcast.Conn, bool) {
		client, ok := manager.Connection()
		if !ok {
			return nil, false
		}
		return client, true
	}, repository, settingsSource, mediaResolver, metricRegistry, logger)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Repository: repository,
		Settings:   settingsSource,
		Manager:    manager,
		Publisher:  publisher,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
