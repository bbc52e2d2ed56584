package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/you/rtps/apps/api/handlers"
	"github.com/you/rtps/apps/api/internal/config"
	"github.com/you/rtps/apps/api/internal/logging"
	"github.com/you/rtps/apps/api/repository"
)

func main() {
	// Load base .env first, then .env.local (which overrides for local development)
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	if err := run(); err != nil {
		logging.LogError(slog.Default(), "api server exited", err)
		os.Exit(1)
	}
}

// run wires and serves the API. Deferred cleanup runs before main exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(os.Stdout, logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	connector, err := openConnector(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer connector.Close()

	logger.Info("database connection established")

	frequencyRepo := repository.NewFrequencyRepository(connector, cfg.QueryTimeout())
	frequencyHandler := handlers.NewFrequencyHandler(frequencyRepo)
	healthHandler := handlers.NewHealthHandler(frequencyRepo, cfg.HealthTimeout())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(handlers.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{handlers.RequestIDHeader},
	}))

	healthHandler.Mount(r)
	frequencyHandler.Mount(r)
	r.Handle("/metrics", promhttp.Handler())

	// Static file serving (if configured)
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	logger.Info("API server starting",
		slog.String("addr", ":"+cfg.Port),
		slog.Any("endpoints", []string{
			"GET /api/rtps/v1/frequency?{zone|bus|rail|transit}",
			"GET /api/rtps/frequency?{zone|bus|rail|transit}",
			"GET /health",
			"GET /metrics",
		}),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// openConnector picks PostgreSQL when DATABASE_URL is set, SQLite otherwise
func openConnector(cfg *config.Config, logger *slog.Logger) (repository.Connector, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.UsePostgres() {
		logger.Info("connecting to PostgreSQL database")
		return repository.NewPostgresConnector(ctx, cfg.DatabaseURL)
	}

	logger.Info("connecting to SQLite database", slog.String("path", cfg.SQLitePath))
	return repository.NewSQLiteConnector(ctx, cfg.SQLitePath)
}
