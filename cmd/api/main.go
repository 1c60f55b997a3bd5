package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deepukochumon/ecg-analyzer/internal/application"
	"github.com/deepukochumon/ecg-analyzer/internal/application/analysis"
	"github.com/deepukochumon/ecg-analyzer/internal/application/history"
	"github.com/deepukochumon/ecg-analyzer/internal/application/intake"
	"github.com/deepukochumon/ecg-analyzer/internal/config"
	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/analyzer"
	historydb "github.com/deepukochumon/ecg-analyzer/internal/infra/db"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/httpserver"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/notify"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/preview"
	minioStore "github.com/deepukochumon/ecg-analyzer/internal/infra/storage"
	"github.com/deepukochumon/ecg-analyzer/internal/logging"
	"github.com/deepukochumon/ecg-analyzer/internal/middleware"
)

func main() {
	// load config
	path := config.Path()
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error (%s): %v\n", path, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// connect history database
	db, repo, err := historydb.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("database init error")
	}
	defer db.Close()

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}

	// notification sinks
	inbox := notify.NewInbox(0)
	sinks := notify.Fanout{inbox, notify.Log{Logger: log.With().Str("component", "notify").Logger()}}
	if cfg.Redis.Enabled {
		pub, err := notify.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
		if err != nil {
			log.Fatal().Err(err).Msg("redis init error")
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		checkers["redis"] = pub
		log.Info().Str("channel", pub.Channel()).Msg("publishing notifications to redis")
	}
	var notifier ecg.Notifier = sinks

	bridge := &history.Bridge{
		Repo:     repo,
		Notifier: notifier,
		Clock:    application.SystemClock{},
		Log:      log.With().Str("component", "history").Logger(),
	}

	// init minio (optional document archive)
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("minio init error")
		}
		bridge.Artifacts = store
		checkers["minio"] = store
	}

	registry := preview.NewRegistry()
	sessions := analysis.NewManager(analysis.Deps{
		Validator: intake.Validator{MaxBytes: cfg.Limits.MaxFileBytes, Extensions: intake.DefaultExtensions},
		Previews:  registry,
		Transport: analyzer.NewClient(cfg.Analyzer.BaseURL, cfg.AnalyzerTimeout()),
		Decoder:   analyzer.Decoder{},
		History:   bridge,
		Notifier:  notifier,
		Clock:     application.SystemClock{},
		Log:       log.With().Str("component", "analysis").Logger(),
	})
	sessions.OnCreate = inbox.Open
	sessions.OnClose = inbox.Forget
	sessions.StartJanitor(ctx, time.Minute, cfg.SessionIdle())

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
	limiter.StartCleanup(ctx)

	var draining atomic.Bool

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(httpserver.Options{
		Sessions:       sessions,
		History:        bridge,
		Previews:       registry,
		Inbox:          inbox,
		Metrics:        middleware.NewMetrics(),
		Limiter:        limiter,
		Checkers:       checkers,
		Draining:       draining.Load,
		Log:            log,
		UserHeader:     cfg.Server.UserHeader,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxFileBytes:   cfg.Limits.MaxFileBytes,
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 60 * time.Second,
		// wait=true analyses hold the response until the analyzer answers
		WriteTimeout: cfg.AnalyzerTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Info().Str("addr", addr).Str("analyzer", cfg.Analyzer.BaseURL).Str("driver", cfg.Database.Driver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down server...")
	draining.Store(true)

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	sessions.CloseAll()
	bridge.Wait()
	log.Info().Int("previews_left", registry.Len()).Msg("stopped")
}
