// Command server starts the conversational-AI evaluation service: the HTTP
// API and the in-process job worker share one binary and one DB pool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/blob"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/chatapi"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/app"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/eval"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	jobRepo := postgres.NewJobRepo(pool)
	runRepo := postgres.NewEvalRunRepo(pool)
	threadEvalRepo := postgres.NewThreadEvalRepo(pool)
	advEvalRepo := postgres.NewAdversarialEvalRepo(pool)
	apiLogRepo := postgres.NewApiLogRepo(pool)
	settingsRepo := postgres.NewSettingsRepo(pool)
	listingRepo := postgres.NewListingRepo(pool)
	sessionRepo := postgres.NewSessionRepo(pool)
	evaluatorRepo := postgres.NewEvaluatorRepo(pool)
	promptRepo := postgres.NewPromptRepo(pool)
	schemaRepo := postgres.NewSchemaRepo(pool)
	historyRepo := postgres.NewHistoryRepo(pool)
	fileRepo := postgres.NewFileRepo(pool)

	blobs, err := blob.New(cfg)
	if err != nil {
		slog.Error("blob store init failed", slog.Any("error", err))
		os.Exit(1)
	}

	provider, err := ai.NewProvider(cfg)
	if err != nil {
		slog.Error("llm provider init failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("llm provider ready", slog.String("provider", provider.Provider()), slog.String("model", provider.Model()))

	chat := chatapi.New(cfg)

	deps := eval.Deps{
		Jobs:        jobRepo,
		Runs:        runRepo,
		ThreadEvals: threadEvalRepo,
		AdvEvals:    advEvalRepo,
		ApiLogs:     apiLogRepo,
		Settings:    settingsRepo,
		Listings:    listingRepo,
		Sessions:    sessionRepo,
		Evaluators:  evaluatorRepo,
		Prompts:     promptRepo,
		Schemas:     schemaRepo,
		History:     historyRepo,
		Blobs:       blobs,
		Chat:        chat,
		Probe:       eval.NewCancelRegistry(jobRepo),
		NewAudited: func() eval.AuditedClient {
			return ai.NewAudited(provider, apiLogRepo)
		},
		NewChat: func(url, apiKey string) domain.ChatAPI {
			return chatapi.NewWithCredentials(url, apiKey, cfg.ChatHTTPTimeout)
		},
		Cfg: cfg,
	}

	seeder := eval.Seeder{Prompts: promptRepo, Schemas: schemaRepo, Evaluators: evaluatorRepo}
	if _, err := seeder.Run(ctx); err != nil {
		slog.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	worker := eval.NewWorker(deps)
	worker.RecoverStuck(ctx)
	go worker.Run(ctx)

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	srv := &httpserver.Server{
		Cfg:         cfg,
		Jobs:        jobRepo,
		Runs:        runRepo,
		ThreadEvals: threadEvalRepo,
		AdvEvals:    advEvalRepo,
		ApiLogs:     apiLogRepo,
		Files:       fileRepo,
		Blobs:       blobs,
		Settings:    settingsRepo,
		Canceller:   worker,
		DBCheck:     pool.Ping,
	}
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.APIPort))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
