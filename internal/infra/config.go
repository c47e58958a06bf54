package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageDriverFilesystem = "filesystem"
	StorageDriverMinio      = "minio"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	DBMaxConns  int32
	JWTSecret   string

	StorageDriver  string
	StoragePath    string
	StorageBaseURL string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string

	ProcessorWebhookURL     string
	ProcessorWebhookToken   string
	ProcessorCallbackSecret string

	MaxUploadMB       int
	AllowedVideoTypes []string
	PollInterval      time.Duration
	StageInterval     time.Duration
	ProcessingTimeout time.Duration
	SessionRetention  time.Duration

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	SendGridAPIKey    string
	FeedbackFromEmail string
	FeedbackToEmail   string

	GeoIPDBPath        string
	FFmpegPath         string
	ThumbnailCacheSize int

	SweepInterval time.Duration
	SweepGrace    time.Duration

	CORSAllowedOrigins []string
	RateLimitPerMin    int
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 10)),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverFilesystem)),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "videos"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", true),
		MinioPublicURL: os.Getenv("MINIO_PUBLIC_URL"),

		ProcessorWebhookURL:     os.Getenv("PROCESSOR_WEBHOOK_URL"),
		ProcessorWebhookToken:   os.Getenv("PROCESSOR_WEBHOOK_TOKEN"),
		ProcessorCallbackSecret: os.Getenv("PROCESSOR_CALLBACK_SECRET"),

		MaxUploadMB:       getEnvInt("MAX_UPLOAD_MB", 1000),
		AllowedVideoTypes: getEnvList("ALLOWED_VIDEO_TYPES", []string{"video/mp4", "video/quicktime"}),
		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		StageInterval:     time.Second * time.Duration(getEnvInt("STAGE_INTERVAL_SECONDS", 3)),
		ProcessingTimeout: time.Minute * time.Duration(getEnvInt("PROCESSING_TIMEOUT_MINUTES", 10)),
		SessionRetention:  time.Minute * time.Duration(getEnvInt("SESSION_RETENTION_MINUTES", 15)),

		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		FeedbackFromEmail: getEnv("FEEDBACK_FROM_EMAIL", "noreply@adaptrix.app"),
		FeedbackToEmail:   getEnv("FEEDBACK_TO_EMAIL", "feedback@adaptrix.app"),

		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		ThumbnailCacheSize: getEnvInt("THUMBNAIL_CACHE_SIZE", 512),

		SweepInterval: time.Minute * time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 30)),
		SweepGrace:    time.Minute * time.Duration(getEnvInt("SWEEP_GRACE_MINUTES", 60)),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 900)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 930)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.ProcessorWebhookURL == "" {
		return nil, fmt.Errorf("PROCESSOR_WEBHOOK_URL is required")
	}

	switch cfg.StorageDriver {
	case StorageDriverFilesystem:
	case StorageDriverMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio driver")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.DBMaxConns <= 0 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be positive")
	}

	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}

	return cfg, nil
}

// MaxUploadBytes is the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
