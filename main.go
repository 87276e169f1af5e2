package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"coderats/internal/analytics"
	"coderats/internal/auth"
	"coderats/internal/config"
	"coderats/internal/db"
	"coderats/internal/github"
	"coderats/internal/handlers"
	"coderats/internal/leaderboard"
	"coderats/internal/rdb"
	"coderats/internal/refresh"
	"coderats/internal/telemetry"
	"coderats/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if cfg.GitHubToken == "" {
		log.Println("WARNING: GITHUB_TOKEN not set, rank job uses the unauthenticated API (60 req/hr limit)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	// Redis
	cache, err := rdb.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer cache.Close()

	gh := github.NewClient(cfg.GitHubToken)

	ph := analytics.New(cfg.PostHogAPIKey)
	defer ph.Close()

	boards := leaderboard.NewBuilder(database, cache)
	refresher := refresh.NewService(database, gh, cache, boards)

	// Rank job
	job := worker.New(database, gh, cache, cfg.RankBatchSize, cfg.RankBatchDelay, worker.Hooks{
		Invalidate: boards.Invalidate,
		Completed: func(res worker.Result) {
			ph.RankJobCompleted(res.Updated, res.Errors, res.TotalUsers)
		},
	})
	job.Start(ctx, cfg.RankInterval)

	h := handlers.New(handlers.Deps{
		Store:     database,
		Boards:    boards,
		Refresher: refresher,
		Job:       job,
		Telemetry: telemetry.NewCollector(database, job),
		Sessions:  auth.NewSessions(cfg.JWTSecret),
		OAuth: &auth.OAuth{
			ClientID:     cfg.GitHubOAuthClientID,
			ClientSecret: cfg.GitHubOAuthClientSecret,
			RedirectURI:  cfg.BaseURL + "/auth/github/callback",
		},
		States:    cache,
		Analytics: ph,
		Config:    cfg,
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cache.RateLimit(300, time.Minute))
	r.Mount("/", h.Routes())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: the admin telemetry stream is long-lived.
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[server] shutdown: %v", err)
		}
	}()

	log.Printf("coderats listening on http://localhost:%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Println("[server] stopped")
}
