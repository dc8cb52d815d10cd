package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimbuslabs/identity-system/internal/api"
	"github.com/nimbuslabs/identity-system/internal/core/service"
	"github.com/nimbuslabs/identity-system/internal/infrastructure/config"
	mongodb "github.com/nimbuslabs/identity-system/internal/infrastructure/db/mongo"
	redisdb "github.com/nimbuslabs/identity-system/internal/infrastructure/db/redis"
	"github.com/nimbuslabs/identity-system/internal/infrastructure/queue"
	"github.com/nimbuslabs/identity-system/pkg/logger"
)

// @title        Identity System API
// @version      1.0
// @description  Credential and session lifecycle service: login, refresh token rotation, logout, password change.
// @BasePath     /
func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	store := mongodb.NewUserRepository(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("mongo index creation failed")
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() {
		_ = rdb.Close()
	}()

	codec, err := service.NewTokenCodec(service.TokenCodecConfig{
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("token codec configuration invalid")
	}

	dispatcher := queue.NewDispatcher(cfg.SessionWorkers, store, log)
	dispatcher.Start(ctx)

	e := api.NewRouter(api.Deps{
		Mongo: db,
		Redis: rdb,
		Codec: codec,
		Sink:  dispatcher,
		Log:   log,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("identity service started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("identity service stopped")
}
