package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"adaptrix/internal/adapter/repo"
	"adaptrix/internal/domain"
	"adaptrix/internal/http/handlers"
	"adaptrix/internal/http/httpapi"
	"adaptrix/internal/infra"
	"adaptrix/internal/infra/credentials"
	"adaptrix/internal/infra/geoip"
	"adaptrix/internal/lifecycle"
	"adaptrix/internal/media"
	"adaptrix/internal/notify"
	"adaptrix/internal/processor"
	"adaptrix/internal/storage"
	"adaptrix/internal/transcription"
)

func main() {
	// Optional .env
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, infra.Component(logger, "sql"))
	jobs := repo.NewJobRepository(runner)
	creds := credentials.NewStore(runner)

	store, static, err := newObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to configure storage")
	}

	trigger, err := processor.NewClient(processor.Options{
		URL:    cfg.ProcessorWebhookURL,
		Token:  cfg.ProcessorWebhookToken,
		Logger: infra.Component(logger, "processor"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure processor webhook")
	}

	thumbnailer, err := media.NewThumbnailer(store, jobs, media.ThumbnailerOptions{
		FFmpegPath: cfg.FFmpegPath,
		CacheSize:  cfg.ThumbnailCacheSize,
		Logger:     infra.Component(logger, "thumbnails"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure thumbnails")
	}

	controller, err := lifecycle.New(jobs, store, trigger, infra.Component(logger, "lifecycle"), lifecycle.Config{
		AllowedTypes:  cfg.AllowedVideoTypes,
		MaxBytes:      cfg.MaxUploadBytes(),
		PollInterval:  cfg.PollInterval,
		StageInterval: cfg.StageInterval,
		Timeout:       cfg.ProcessingTimeout,
		Retention:     cfg.SessionRetention,
	}, lifecycle.WithFinishHook(warmThumbnail(ctx, jobs, thumbnailer, logger)))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure lifecycle controller")
	}
	defer controller.Close()

	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer countries.Close()

	app := &handlers.App{
		Videos:     controller,
		Store:      store,
		Thumbnails: thumbnailer,
		Feedback:   repo.NewFeedbackRepository(runner),
		Mailer: notify.NewFeedbackMailer(notify.FeedbackMailerOptions{
			Key:    credentials.Resolver(creds, credentials.ProviderSendGrid, cfg.SendGridAPIKey),
			From:   cfg.FeedbackFromEmail,
			To:     cfg.FeedbackToEmail,
			Logger: infra.Component(logger, "feedback"),
		}),
		Detector: transcription.NewWhisperClient(transcription.WhisperOptions{
			BaseURL: cfg.OpenAIBaseURL,
			Key:     credentials.Resolver(creds, credentials.ProviderOpenAI, cfg.OpenAIAPIKey),
		}),
		DB:             dbpool,
		Logger:         logger,
		CallbackSecret: cfg.ProcessorCallbackSecret,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:      cfg.RateLimitPerMin,
		DefaultLocale:  "en",
		CountryLookup:  countries.Lookup(),
		Logger:         infra.Component(logger, "http"),
		Static:         static,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("storage", cfg.StorageDriver).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// newObjectStore returns the configured store and, for the filesystem
// driver, a handler serving its files under /static.
func newObjectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, http.Handler, error) {
	if cfg.StorageDriver == infra.StorageDriverMinio {
		store, err := storage.NewMinioStore(storage.MinioOptions{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store, http.FileServer(http.Dir(store.BasePath())), nil
}

// warmThumbnail renders the thumbnail of each completed job in the background
// so the results page does not wait on ffmpeg.
func warmThumbnail(ctx context.Context, jobs domain.JobRepository, thumbs *media.Thumbnailer, logger zerolog.Logger) func(lifecycle.State) {
	return func(st lifecycle.State) {
		if st.Phase != lifecycle.PhaseCompleted || st.JobID == "" {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			job, err := jobs.GetByID(ctx, st.JobID)
			if err != nil {
				logger.Warn().Err(err).Str("job_id", st.JobID).Msg("thumbnail warmup: load job failed")
				return
			}
			if _, err := thumbs.Thumbnail(ctx, job); err != nil {
				logger.Warn().Err(err).Str("job_id", st.JobID).Msg("thumbnail warmup failed")
			}
		}()
	}
}
