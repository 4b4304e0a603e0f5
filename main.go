package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/your-username/loki-clickhouse-gateway/internal/api"
	"github.com/your-username/loki-clickhouse-gateway/internal/auth"
	"github.com/your-username/loki-clickhouse-gateway/internal/config"
	"github.com/your-username/loki-clickhouse-gateway/internal/database"
	"github.com/your-username/loki-clickhouse-gateway/internal/detect"
	"github.com/your-username/loki-clickhouse-gateway/internal/limits"
	"github.com/your-username/loki-clickhouse-gateway/internal/loki"
	"github.com/your-username/loki-clickhouse-gateway/internal/patterns"
	"github.com/your-username/loki-clickhouse-gateway/internal/tail"
	"github.com/your-username/loki-clickhouse-gateway/internal/translator"
)

var version = "dev"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found")
	}

	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_LEVEL") == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	api.Version = version
	log.Info().Str("version", version).Msg("Starting Loki ClickHouse Gateway")

	cfg := config.Load()

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
	}
	defer db.Close()

	// Pattern extraction: built-in pipeline plus any configured extra rules.
	var extraRules []patterns.Rule
	if cfg.Patterns.RulesFile != "" {
		extraRules, err = patterns.LoadRules(cfg.Patterns.RulesFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Patterns.RulesFile).Msg("Failed to load pattern rules")
		}
		log.Info().Int("rules", len(extraRules)).Str("file", cfg.Patterns.RulesFile).Msg("Loaded extra pattern rules")
	}
	extractor := patterns.NewExtractor(extraRules...)

	// Pattern persistence is best-effort: a missing table is created up
	// front, and later store failures never fail reads.
	var patternStore patterns.Store
	if cfg.Patterns.Table != "" {
		store := patterns.NewClickHouseStore(db, cfg.Patterns.Table)
		if err := store.EnsureSchema(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Pattern table setup failed, persistence disabled")
		} else {
			patternStore = store
		}
	}

	svc := loki.NewService(
		db,
		translator.New(cfg.Database.LogsTable),
		limits.NewMiddleware(cfg.Limits),
		patterns.NewMiner(extractor, patternStore),
		detect.NewDetector(),
	)
	tailer := tail.NewTailer(svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Scope-OrgID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", api.Root())
	r.Get("/ready", api.Ready(svc))
	r.Get("/health", api.Health(svc))

	r.Route("/loki/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWT.Secret))

		r.Get("/query", api.Query(svc))
		r.Get("/query_range", api.QueryRange(svc))
		r.Get("/labels", api.Labels(svc))
		r.Get("/label/{name}/values", api.LabelValues(svc))
		r.Get("/series", api.Series(svc))
		r.Get("/detected_labels", api.DetectedLabels(svc))
		r.Get("/detected_fields", api.DetectedFields(svc))
		r.Get("/detected_field/{name}/values", api.DetectedFieldValues(svc))
		r.Get("/index/stats", api.IndexStats(svc))
		r.Get("/index/volume", api.IndexVolume(svc))
		r.Get("/index/volume_range", api.IndexVolumeRange(svc))
		r.Get("/patterns", api.Patterns(svc))
		r.Get("/status/buildinfo", api.BuildInfo())
		r.HandleFunc("/tail", tailer.Handler())
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// Graceful shutdown
	done := make(chan bool, 1)
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}
		close(done)
	}()

	log.Info().Str("port", cfg.Server.Port).Str("table", cfg.Database.LogsTable).Msg("Server started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed to start")
	}

	<-done
	log.Info().Msg("Server stopped")
}
