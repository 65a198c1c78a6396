package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	LogMode    string
	APIBaseURL string
	APITimeout time.Duration

	SessionKey      string
	CookieSecure    bool
	CORSAllowOrigin string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Email/password accounts at an Identity Toolkit compatible provider.
	IdentityAPIKey      string
	IdentityAccountsURL string
	IdentityTokenURL    string

	CacheBackend string
	CacheTTL     time.Duration
	RedisAddr    string

	UploadBackend       string
	ImgBBAPIKey         string
	ImgBBEndpoint       string
	MinioEndpoint       string
	MinioPublicEndpoint string
	MinioAccessKey      string
	MinioSecretKey      string
	MinioBucket         string
	MinioUseSSL         bool

	DatabaseDriver string
	DatabaseURL    string

	TracingEnabled   bool
	OTLPEndpoint     string
	OTLPInsecure     bool
	TraceSampleRatio float64

	PaymentPollAttempts int
	PaymentPollInterval time.Duration
	PageSize            int
}

// Load reads .env when present and then the process environment.
// A missing .env file is not an error.
func Load() (Config, bool) {
	loadedDotenv := godotenv.Load() == nil

	cfg := Config{
		Port:       envOrDefault("PORT", "8080"),
		LogMode:    envOrDefault("LOG_MODE", "dev"),
		APIBaseURL: strings.TrimRight(envOrDefault("API_BASE_URL", "https://digital-life-lessons-server-alpha.vercel.app/api"), "/"),
		APITimeout: time.Duration(envInt("API_TIMEOUT_SECONDS", 15)) * time.Second,

		SessionKey:   os.Getenv("SESSION_KEY"),
		CookieSecure: envBool("COOKIE_SECURE", false),

		CORSAllowOrigin: os.Getenv("CORS_ALLOW_ORIGIN"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		IdentityAPIKey:      os.Getenv("IDENTITY_API_KEY"),
		IdentityAccountsURL: envOrDefault("IDENTITY_ACCOUNTS_URL", "https://identitytoolkit.googleapis.com/v1"),
		IdentityTokenURL:    envOrDefault("IDENTITY_TOKEN_URL", "https://securetoken.googleapis.com/v1/token"),

		CacheBackend: strings.ToLower(envOrDefault("CACHE_BACKEND", "memory")),
		CacheTTL:     time.Duration(envInt("CACHE_TTL_SECONDS", 60)) * time.Second,
		RedisAddr:    os.Getenv("REDIS_ADDR"),

		UploadBackend:       strings.ToLower(envOrDefault("UPLOAD_BACKEND", "imgbb")),
		ImgBBAPIKey:         os.Getenv("IMGBB_API_KEY"),
		ImgBBEndpoint:       envOrDefault("IMGBB_ENDPOINT", "https://api.imgbb.com/1/upload"),
		MinioEndpoint:       os.Getenv("MINIO_INTERNAL_ENDPOINT"),
		MinioPublicEndpoint: os.Getenv("MINIO_PUBLIC_ENDPOINT"),
		MinioAccessKey:      os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:      os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:         envOrDefault("MINIO_BUCKET", "life-lessons"),
		MinioUseSSL:         envBool("MINIO_USE_SSL", false),

		DatabaseDriver: strings.ToLower(envOrDefault("DATABASE_DRIVER", "postgres")),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		TracingEnabled:   envBool("TRACING_ENABLED", false),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSampleRatio: envFloat("OTEL_SAMPLER_RATIO", 1),

		PaymentPollAttempts: envInt("PAYMENT_POLL_ATTEMPTS", 10),
		PaymentPollInterval: time.Duration(envInt("PAYMENT_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		PageSize:            envInt("PAGE_SIZE", 6),
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 6
	}
	if cfg.TraceSampleRatio < 0 || cfg.TraceSampleRatio > 1 {
		cfg.TraceSampleRatio = 1
	}
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = 15 * time.Second
	}
	if cfg.PaymentPollInterval < 0 {
		cfg.PaymentPollInterval = 0
	}
	return cfg, loadedDotenv
}

// PaymentWait bounds the whole post-checkout wait for the premium flag,
// slow profile polls included.
func (c Config) PaymentWait() time.Duration {
	return time.Duration(max(c.PaymentPollAttempts, 1))*c.PaymentPollInterval + c.APITimeout
}

// WriteTimeout fits the payment wait plus the verify and reload calls
// around it.
func (c Config) WriteTimeout() time.Duration {
	return c.PaymentWait() + 2*c.APITimeout + 10*time.Second
}

// OAuthConfigured reports whether identity provider login can be offered.
func (c Config) OAuthConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// PasswordLoginConfigured reports whether email/password accounts can be
// offered.
func (c Config) PasswordLoginConfigured() bool { return c.IdentityAPIKey != "" }

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
