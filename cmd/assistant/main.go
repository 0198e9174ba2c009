package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"spokehub/internal/actions"
	"spokehub/internal/actions/google"
	"spokehub/internal/cli"
	"spokehub/internal/config"
	"spokehub/internal/executor"
	"spokehub/internal/inferencer"
	"spokehub/internal/llm_client"
	"spokehub/internal/loader"
	"spokehub/internal/logger"
	"spokehub/internal/metrics"
	"spokehub/internal/orchestrator"
	"spokehub/internal/planner"
	"spokehub/internal/store"
	"spokehub/internal/telemetry"
)

const version = "0.1.0"

func main() {
	cli.Execute(bootstrap)
}

func bootstrap(ctx context.Context, configPath string) (*cli.App, error) {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.Config{File: cfg.Log.File, Level: cfg.Log.Level}); err != nil {
		return nil, fmt.Errorf("could not initialize logger: %w", err)
	}
	log := logger.Log

	loc, err := time.LoadLocation(cfg.Google.Timezone)
	if err != nil {
		log.Warn("unknown timezone, using UTC", zap.String("timezone", cfg.Google.Timezone), zap.Error(err))
		loc = time.UTC
	}

	shutdownTracing, err := initTracing(cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, fmt.Errorf("open database: %w", err)
	}

	closeAll := func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
		logger.Sync()
	}

	llm, err := llm_client.New(llm_client.Config{
		Backend:    cfg.LLM.Backend,
		Model:      cfg.LLM.Model,
		OllamaHost: cfg.LLM.Host,
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("could not initialize LLM client: %w", err)
	}

	deps := actions.Deps{Todos: db.Todos(), Location: loc}
	if cfg.Google.ClientID != "" {
		deps.Google = google.NewAuth(cfg.Google.ClientID, cfg.Google.ClientSecret, db.Tokens(), log)
	} else {
		log.Warn("google client id not configured, calendar and gmail are disabled")
	}

	caps, err := loader.DiscoverAndBind(ctx, cfg.Spokes.Dir, actions.Catalog(deps), log)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load integrations: %w", err)
	}

	recorder := metrics.NewRecorder()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, recorder, log); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	inf := inferencer.New(llm, inferencer.WithLogger(log), inferencer.WithLocation(loc))
	pl := planner.New(caps.Registry, llm, planner.WithLogger(log), planner.WithLocation(loc))

	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithRecorder(recorder),
		orchestrator.WithHistory(db.History(), cfg.Orchestrator.History),
	}
	if cfg.Orchestrator.Synthesize {
		opts = append(opts, orchestrator.WithSynthesis(llm))
	}
	orch := orchestrator.New(pl, func() orchestrator.Runner {
		return executor.New(caps, inf,
			executor.WithLogger(log),
			executor.WithRecorder(recorder),
			executor.WithTimeout(cfg.Executor.Timeout),
			executor.WithInference(cfg.Executor.Inference),
		)
	}, opts...)

	return &cli.App{
		Processor: orch,
		Registry:  caps.Registry,
		Log:       log,
		Close:     closeAll,
	}, nil
}

func initTracing(cfg config.TelemetryConfig) (telemetry.ShutdownFunc, error) {
	if !cfg.Enabled {
		return telemetry.Init(telemetry.Config{})
	}
	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	shutdown, err := telemetry.Init(telemetry.Config{
		Enabled:     true,
		ServiceName: "spokehub",
		Version:     version,
		Output:      f,
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		defer f.Close()
		return shutdown(ctx)
	}, nil
}
