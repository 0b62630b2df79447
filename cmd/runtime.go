package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"recscribe/internal/config"
	"recscribe/internal/library"
	"recscribe/internal/logging"
	"recscribe/internal/media"
	"recscribe/internal/objectstore"
	"recscribe/internal/pipeline"
	"recscribe/internal/redis"
	"recscribe/internal/speech"
	"recscribe/internal/storage"
)

// loadConfig reads the config and configures logging from it.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.BasicConfig.LogLevel, cfg.BasicConfig.LogFormat, nil)
	return cfg, nil
}

func openDatabase(opts *rootOptions, cfg *config.Config) (*sql.DB, error) {
	db, err := storage.Open(opts.dbType, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, opts.dbType); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// openCache returns a nil client when redis is disabled; every caller
// treats that as "no cache".
func openCache(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		logrus.Info("redis disabled, running without cache")
		return nil, nil
	}
	return redis.NewRedisClient(cfg.Redis)
}

type backend struct {
	store    *objectstore.S3
	library  *library.Library
	pipeline *pipeline.Pipeline
}

func newBackend(ctx context.Context, cfg *config.Config, cache *redis.Client) (*backend, error) {
	store, err := objectstore.NewS3(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	lib := library.New(store, cache, library.Options{
		URLTTL:   cfg.Storage.URLTTL(),
		CacheTTL: cfg.BasicConfig.CacheTTL(),
	})
	pipe := pipeline.New(store, speech.NewClient(cfg.Speech), media.NewConverter(cfg.Speech.FFmpegPath), lib, cfg.BasicConfig.CallbackHost)
	return &backend{store: store, library: lib, pipeline: pipe}, nil
}
