package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aman-churiwal/leetquery/internal/config"
	"github.com/aman-churiwal/leetquery/internal/logger"
	"github.com/aman-churiwal/leetquery/internal/server"
	"github.com/aman-churiwal/leetquery/internal/storage"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load env if it exists
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Setup(cfg.Server.LogLevel, cfg.Server.Environment)

	postgres, err := storage.NewPostgres(cfg.Database.DSN, storage.PostgresOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer postgres.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.AutoMigrate(); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}
	log.Info().Msg("connected to postgres")

	var redis *storage.RedisClient
	if cfg.Redis.Enabled {
		redis, err = storage.NewRedis(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redis.Close()
		log.Info().Str("addr", cfg.Redis.GetRedisAddr()).Msg("connected to redis")
	}

	srv, err := server.New(cfg, postgres, redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	go func() {
		if err := srv.Run(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
