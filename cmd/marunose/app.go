package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"marunose/internal/admin"
	"marunose/internal/api"
	"marunose/internal/config"
	"marunose/internal/db"
	"marunose/internal/gateway"
	"marunose/internal/github"
	"marunose/internal/metrics"
	"marunose/internal/ratelimit"
	"marunose/internal/scheduler"
	"marunose/internal/security"
	"marunose/internal/summarize"
	"marunose/internal/summary"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// app holds everything the server owns so it can be shut down in order.
type app struct {
	handler   http.Handler
	db        db.Service
	limiter   *ratelimit.Limiter
	scheduler *scheduler.Scheduler
	events    *security.Logger
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	database, err := db.NewService(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("Database initialized", "type", cfg.Database.Type)

	a := &app{db: database}
	m := metrics.New("marunose")

	a.events = security.NewLogger(log.With("component", "security"),
		security.WithRetention(cfg.Security.MaxEvents, cfg.Security.TrimTo),
		security.WithBurstDetection(cfg.Security.BurstThreshold, cfg.Security.BurstWindowDuration()),
		security.WithRecorder(m),
	)
	a.limiter = ratelimit.New(
		ratelimit.WithSweep(cfg.RateLimit.SweepIntervalDuration(), cfg.RateLimit.SweepMaxAgeDuration()),
		ratelimit.WithLogger(log.With("component", "ratelimit")),
	)

	gh := github.NewClient(github.Options{
		BaseURL:           cfg.GitHub.BaseURL,
		Token:             cfg.GitHub.Token,
		Timeout:           cfg.GitHub.TimeoutDuration(),
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		Recorder:          m,
	})

	var providers []summary.Provider
	if cfg.Summary.OpenAIAPIKey != "" {
		providers = append(providers, summary.NewOpenAI(cfg.Summary.OpenAIAPIKey, summary.OpenAIOptions{
			BaseURL: cfg.Summary.OpenAIBaseURL,
			Model:   cfg.Summary.OpenAIModel,
			Timeout: cfg.Summary.TimeoutDuration(),
		}))
	}
	if cfg.Summary.GeminiAPIKey != "" {
		gemini, err := summary.NewGemini(ctx, cfg.Summary.GeminiAPIKey, cfg.Summary.GeminiModel)
		if err != nil {
			database.Close()
			return nil, err
		}
		providers = append(providers, gemini)
		a.closers = append(a.closers, gemini.Close)
	}
	log.Info("Summary providers configured", "count", len(providers))

	chain := summary.NewChain(log.With("component", "summary"), m, providers...)
	summarizer := summarize.NewService(gh, chain, log.With("component", "summarize"))

	gate := gateway.New(database, a.limiter, a.events, m, gateway.Config{
		Validate: gateway.Limits{
			MaxRequests: cfg.RateLimit.ValidateMaxRequests,
			Window:      cfg.RateLimit.WindowDuration(),
		},
		Summarize: gateway.Limits{
			MaxRequests: cfg.RateLimit.SummarizeMaxRequests,
			Window:      cfg.RateLimit.WindowDuration(),
		},
	}, log.With("component", "gateway"))

	router := gin.New()
	// Use our custom recovery middleware instead of the default one.
	router.Use(api.Recovery(log))

	// If debug mode is enabled, add the logger middleware
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	api.SetupRoutes(router, api.NewHandler(gate, summarizer, log), m.Handler())
	if cfg.Admin.Password != "" {
		admin.SetupRoutes(router, database, a.events, cfg, log.With("component", "admin"))
	}

	a.handler = router
	if len(cfg.CORS.AllowedOrigins) > 0 {
		a.handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-API-Key"},
		}).Handler(router)
	}

	a.scheduler = scheduler.NewScheduler(database, cfg.Scheduler.UsageResetSpec, log.With("component", "scheduler"))
	return a, nil
}

// start launches the background workers.
func (a *app) start() error {
	a.limiter.Start()
	return a.scheduler.Start()
}

// close stops the background workers and releases resources.
func (a *app) close() error {
	a.limiter.Stop()
	a.scheduler.Stop()

	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}
