package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"adaptrix/internal/adapter/repo"
	"adaptrix/internal/infra"
	"adaptrix/internal/storage"
	"adaptrix/internal/sweeper"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	prefix := flag.String("prefix", "", "only sweep keys under this prefix")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.Component(infra.NewLogger(cfg.AppEnv), "sweeper")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: db connection failed")
	}
	defer pool.Close()

	var store storage.ObjectStore
	if cfg.StorageDriver == infra.StorageDriverMinio {
		store, err = storage.NewMinioStore(storage.MinioOptions{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicURL,
		})
	} else {
		store, err = storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: failed to configure storage")
	}

	jobs := repo.NewJobRepository(infra.NewSQLRunner(pool, logger))
	sw, err := sweeper.New(store, jobs, sweeper.Options{
		Prefix:   *prefix,
		Grace:    cfg.SweepGrace,
		Interval: cfg.SweepInterval,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: invalid configuration")
	}

	if *once {
		if _, err := sw.SweepOnce(ctx); err != nil {
			logger.Fatal().Err(err).Msg("sweeper: sweep failed")
		}
		return
	}
	if err := sw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("sweeper: stopped with error")
	}
	logger.Info().Msg("sweeper: stopped")
}
