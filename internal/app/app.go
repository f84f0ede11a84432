package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Divyansh-Kumawat/ocean-ai/features/job"
	"github.com/Divyansh-Kumawat/ocean-ai/features/script"
	"github.com/Divyansh-Kumawat/ocean-ai/features/source"
	"github.com/Divyansh-Kumawat/ocean-ai/features/stats"
	"github.com/Divyansh-Kumawat/ocean-ai/features/testcase"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/adapter/gemini"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/config"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/middleware"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/retrieval"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/settings"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/worker"
)

// VectorStore is everything the app needs from the vector index. The
// weaviate adapter satisfies it; tests swap in a mock.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	StoreChunk(ctx context.Context, chunk worker.Chunk) error
	DeleteBySource(ctx context.Context, sourceID string) error
	CountChunks(ctx context.Context) (int, error)
	Search(ctx context.Context, vector []float32, limit int) ([]retrieval.Hit, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// Options lets tests inject the model-facing adapters. Nil fields fall
// back to the Gemini clients configured through settings.
type Options struct {
	Embedder  worker.Embedder
	Generator testcase.Generator
}

type App struct {
	Handler          http.Handler
	SourceService    *source.Service
	EmbedderConsumer *worker.EmbedderConsumer
	ResultConsumer   *worker.ResultConsumer

	port int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	taskPub TaskPublisher,
	logger *slog.Logger,
	opts *Options,
) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)

	// Seed Gemini API key from the environment on first boot.
	if cfg.GeminiAPIKey != "" {
		ctx := context.Background()
		set, err := settingsService.Get(ctx)
		if err == nil {
			if set.GeminiAPIKey == "" {
				set.GeminiAPIKey = cfg.GeminiAPIKey
				if err := settingsService.Update(ctx, set); err != nil {
					slog.Warn("failed to seed gemini api key", "error", err)
				} else {
					slog.Info("seeded gemini api key from environment")
				}
			}
		} else {
			slog.Warn("failed to fetch settings for seeding", "error", err)
		}
	}
	settingsHandler := settings.NewHandler(settingsService)

	// Feature: Source
	sourceRepo := source.NewPostgresRepo(db)
	sourceService := source.NewService(sourceRepo, taskPub, vecStore,
		cfg.ChunkMaxBytes, cfg.ChunkOverlap, cfg.MaxDocSizeMB*1024*1024)
	sourceHandler := source.NewHandler(sourceService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub)
	jobHandler := job.NewHandler(jobService)

	// Adapters: model clients switch keys at call time via settings.
	embedder := opts.Embedder
	if embedder == nil {
		embedder = gemini.NewDynamicEmbedder(settingsService)
	}
	generator := opts.Generator
	if generator == nil {
		generator = gemini.NewGenerator(settingsService, cfg.GenerationModel)
	}

	// Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedder, vecStore, sourceRepo, settingsService, queryLogger)

	// Feature: Test cases
	validator, err := testcase.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("test case schema error: %w", err)
	}
	testcaseRepo := testcase.NewPostgresRepo(db)
	testcaseService := testcase.NewService(retrievalService, generator, testcaseRepo, validator,
		time.Duration(cfg.GenerateTimeoutSecs)*time.Second)
	testcaseHandler := testcase.NewHandler(testcaseService)

	// Feature: Scripts
	scriptService := script.NewService(testcaseRepo, sourceRepo)
	scriptHandler := script.NewHandler(scriptService)

	// Feature: Stats
	statsHandler := stats.NewHandler(sourceRepo, jobRepo, testcaseRepo, vecStore)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /sources", middleware.CorrelationID(enableCORS(sourceHandler.Create)))
	mux.Handle("GET /sources", middleware.CorrelationID(enableCORS(sourceHandler.List)))
	mux.Handle("GET /sources/{id}", middleware.CorrelationID(enableCORS(sourceHandler.Get)))
	mux.Handle("DELETE /sources/{id}", middleware.CorrelationID(enableCORS(sourceHandler.Delete)))
	mux.Handle("POST /sources/{id}/resync", middleware.CorrelationID(enableCORS(sourceHandler.ReSync)))

	mux.Handle("POST /testcases/generate", middleware.CorrelationID(enableCORS(testcaseHandler.Generate)))
	mux.Handle("GET /testcases", middleware.CorrelationID(enableCORS(testcaseHandler.List)))
	mux.Handle("GET /testcases/{id}", middleware.CorrelationID(enableCORS(testcaseHandler.Get)))

	mux.Handle("POST /scripts/synthesize", middleware.CorrelationID(enableCORS(scriptHandler.Synthesize)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Workers
	embedderConsumer := worker.NewEmbedderConsumer(embedder, vecStore, taskPub).
		WithTimeout(time.Duration(cfg.EmbedTimeoutSecs) * time.Second)
	resultConsumer := worker.NewResultConsumer(sourceRepo, jobRepo)

	port := cfg.ServerPort
	if port == 0 {
		port = 8081
	}

	return &App{
		Handler:          mux,
		SourceService:    sourceService,
		EmbedderConsumer: embedderConsumer,
		ResultConsumer:   resultConsumer,
		port:             port,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
