package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/s/lifelessons/internal/api"
	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/config"
	"github.com/s/lifelessons/internal/database"
	"github.com/s/lifelessons/internal/engagement"
	"github.com/s/lifelessons/internal/handlers"
	"github.com/s/lifelessons/internal/logger"
	"github.com/s/lifelessons/internal/querycache"
	"github.com/s/lifelessons/internal/storage"
	"github.com/s/lifelessons/internal/telemetry"
	"github.com/s/lifelessons/internal/upload"
	"github.com/s/lifelessons/web"
)

const devSessionKey = "lifelessons-dev-session-key-change-me"

func main() {
	// ---------------------------
	// 0. Config and logging
	// ---------------------------
	cfg, loadedDotenv := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	if !loadedDotenv {
		log.Debug("no .env file, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Init(ctx, log, cfg)

	// ---------------------------
	// 1. Query cache
	// ---------------------------
	var backend querycache.Backend
	switch cfg.CacheBackend {
	case "redis":
		rc, err := querycache.NewRedis(log, cfg.RedisAddr, 10*cfg.CacheTTL)
		if err != nil {
			log.Fatal("redis query cache unavailable", "error", err)
		}
		defer rc.Close()
		backend = rc
	default:
		mem := querycache.NewMemory()
		mem.StartJanitor(ctx, log, time.Minute, 10*cfg.CacheTTL)
		backend = mem
	}
	cache := querycache.New(backend, cfg.CacheTTL, log)

	// ---------------------------
	// 2. API client and identity
	// ---------------------------
	client := api.New(log, cfg.APIBaseURL, cfg.APITimeout, telemetry.Transport(http.DefaultTransport))

	var provider auth.Provider
	if cfg.OAuthConfigured() {
		provider = auth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	} else {
		log.Warn("GOOGLE_* not set, Google login disabled")
	}
	var passwords auth.PasswordProvider
	if cfg.PasswordLoginConfigured() {
		passwords = auth.NewPasswordAccounts(log, cfg.IdentityAPIKey, cfg.IdentityAccountsURL, cfg.IdentityTokenURL,
			cfg.APITimeout, telemetry.Transport(http.DefaultTransport))
	} else {
		log.Warn("IDENTITY_API_KEY not set, email/password accounts disabled")
	}

	sessionKey := cfg.SessionKey
	if sessionKey == "" {
		if cfg.LogMode == "prod" {
			log.Fatal("SESSION_KEY is required in production")
		}
		log.Warn("SESSION_KEY not set, using the development key")
		sessionKey = devSessionKey
	}
	sessions := auth.NewSessions(log, auth.NewCookieStore([]byte(sessionKey), cfg.CookieSecure))
	resolver := auth.NewResolver(log, sessions, cache, client, provider, passwords)

	// ---------------------------
	// 3. Image uploads
	// ---------------------------
	var uploader upload.Uploader
	switch cfg.UploadBackend {
	case "minio":
		m, err := upload.NewMinio(ctx, log, upload.MinioConfig{
			Endpoint:       cfg.MinioEndpoint,
			PublicEndpoint: cfg.MinioPublicEndpoint,
			AccessKey:      cfg.MinioAccessKey,
			SecretKey:      cfg.MinioSecretKey,
			Bucket:         cfg.MinioBucket,
			UseSSL:         cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatal("minio unavailable", "error", err)
		}
		uploader = m
	default:
		if cfg.ImgBBAPIKey == "" {
			log.Warn("IMGBB_API_KEY not set, image uploads will fail")
		}
		uploader = upload.NewImgBB(log, cfg.ImgBBEndpoint, cfg.ImgBBAPIKey, telemetry.Transport(http.DefaultTransport))
	}

	// ---------------------------
	// 4. Activity history
	// ---------------------------
	var activity storage.Recorder = storage.Nop{}
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, log, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("database unavailable", "error", err)
		}
		if err := database.AutoMigrate(db); err != nil {
			log.Fatal("migration failed", "error", err)
		}
		activity = storage.NewActivities(db, log)
	} else {
		log.Info("DATABASE_URL not set, activity history disabled")
	}

	// ---------------------------
	// 5. Handlers and routes
	// ---------------------------
	tmpl, err := handlers.NewRenderer(web.Templates())
	if err != nil {
		log.Fatal("template parse failed", "error", err)
	}
	h := handlers.NewHandler(handlers.Deps{
		Log:        log,
		API:        client,
		Cache:      cache,
		Sessions:   sessions,
		Resolver:   resolver,
		Provider:   provider,
		Passwords:  passwords,
		Engagement: engagement.NewService(log, cache, client),
		Uploader:   uploader,
		Activity:   activity,
		Tmpl:       tmpl,
		Config:     cfg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes(log, cfg, h, resolver, sessions),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.WriteTimeout(),
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("server started", "addr", "http://localhost:"+cfg.Port, "api", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracer shutdown failed", "error", err)
	}
}
