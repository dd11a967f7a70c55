package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/template"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/studiobell/dispatch/internal/api"
	"github.com/studiobell/dispatch/internal/audit"
	"github.com/studiobell/dispatch/internal/client"
	"github.com/studiobell/dispatch/internal/config"
	"github.com/studiobell/dispatch/internal/model"
	"github.com/studiobell/dispatch/internal/ratelimit"
	"github.com/studiobell/dispatch/internal/repo"
	"github.com/studiobell/dispatch/internal/scheduler"
	"github.com/studiobell/dispatch/internal/service"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadAll()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var (
		store    repo.QueueRepository
		settings repo.SettingsRepository
		queueDB  *sql.DB
	)
	if cfg.Database.PostgresURL != "" {
		db, err := sql.Open("pgx", cfg.Database.PostgresURL)
		if err != nil {
			logger.Error("failed to open postgres", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			logger.Error("failed to ping postgres", "err", err)
			os.Exit(1)
		}

		store = repo.NewPostgresQueue(db)
		settings = repo.NewPostgresSettings(db)
		queueDB = db
	} else {
		logger.Warn("POSTGRES_URL not set; queue state is in-memory and not durable")
		store = repo.NewMemoryQueue()
		settings = repo.NewMemorySettings()
	}

	rateWindow := rateLimitWindow(ctx, settings, cfg, logger)

	var limiter ratelimit.Limiter
	switch {
	case cfg.Redis.Enabled:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		limiter, err = ratelimit.NewRedisLimiter(rdb, rateWindow)
	case queueDB != nil:
		limiter, err = ratelimit.NewPostgresLimiter(queueDB, rateWindow)
	default:
		logger.Warn("REDIS_ADDR not set; rate limit state is per-process")
		limiter, err = ratelimit.NewMemoryLimiter(rateWindow)
	}
	if err != nil {
		logger.Error("failed to build rate limiter", "err", err)
		os.Exit(1)
	}

	sink := audit.NewSlogSink(logger)

	processor, err := service.NewProcessor(
		store,
		limiter,
		client.NewWebhookClient(cfg.Webhook.URL),
		service.ProcessorConfig{
			SendTimeout: cfg.Queue.SendTimeout,
			StaleAfter:  cfg.Queue.StaleAfter,
			Workers:     cfg.Queue.Workers,
			Audit:       sink,
			Logger:      logger,
		},
	)
	if err != nil {
		logger.Error("failed to build processor", "err", err)
		os.Exit(1)
	}

	tmplText := cfg.Reminders.Template
	if tmplText == "" {
		tmplText = service.DefaultReminderTemplate
	}
	tmpl, err := template.New("reminder").Parse(tmplText)
	if err != nil {
		logger.Error("invalid reminder template", "err", err)
		os.Exit(1)
	}

	var lessons service.LessonSource = client.NoLessons{}
	if url := os.Getenv("LESSONS_URL"); url != "" {
		lessons = client.NewLessonAPI(url)
	} else {
		logger.Warn("LESSONS_URL not set; reminder scheduling has no lesson data")
	}

	reminders, err := service.NewReminderService(store, settings, lessons, tmpl, service.ReminderConfig{
		Priority: cfg.Reminders.Priority,
		Audit:    sink,
	})
	if err != nil {
		logger.Error("failed to build reminder service", "err", err)
		os.Exit(1)
	}

	sched, err := scheduler.New("queue-processor", cfg.Queue.PollInterval, processor.Tick)
	if err != nil {
		logger.Error("failed to build scheduler", "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(store, settings, reminders, sched, sink)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      loggingMiddleware(api.Router(handler)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			"addr", cfg.Server.Address,
			"poll_interval", cfg.Queue.PollInterval.String(),
			"workers", cfg.Queue.Workers,
			"rate_limit", rateWindow.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}

// rateLimitWindow prefers the operator-set settings record over env config.
func rateLimitWindow(ctx context.Context, settings repo.SettingsRepository, cfg *config.Config, logger *slog.Logger) time.Duration {
	s, err := settings.Get(ctx)
	if err != nil {
		logger.Warn("failed to load channel settings; using env rate limit", "err", err)
		return time.Duration(cfg.Queue.RateLimitSeconds) * time.Second
	}
	if s.RateLimitSeconds < model.MinRateLimitSeconds || s.RateLimitSeconds > model.MaxRateLimitSeconds {
		return time.Duration(cfg.Queue.RateLimitSeconds) * time.Second
	}
	return time.Duration(s.RateLimitSeconds) * time.Second
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
