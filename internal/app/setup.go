package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reviewly/reviewly/internal/catalog"
	"github.com/reviewly/reviewly/internal/chat"
	"github.com/reviewly/reviewly/internal/config"
	"github.com/reviewly/reviewly/internal/database"
	"github.com/reviewly/reviewly/internal/embedding"
	"github.com/reviewly/reviewly/internal/history"
	"github.com/reviewly/reviewly/internal/llm"
	"github.com/reviewly/reviewly/internal/observability"
	"github.com/reviewly/reviewly/internal/report"
	"github.com/reviewly/reviewly/internal/search"
	"github.com/reviewly/reviewly/internal/session"
	"github.com/reviewly/reviewly/internal/tool"
	"github.com/reviewly/reviewly/internal/user"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	a.Catalog, err = catalog.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Users, err = user.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}
	a.History, err = history.NewStore(pool, cfg.HistoryRetention, logger)
	if err != nil {
		return nil, err
	}
	a.Reporter, err = provideReporter(pool, logger)
	if err != nil {
		return nil, err
	}

	engine, err := provideSearchEngine(pool, cfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher, err := tool.NewDispatcher(tool.Config{
		Searcher: engine,
		Users:    a.Users,
		Reporter: a.Reporter,
		History:  a.History,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	a.Orchestrator, err = provideOrchestrator(cfg, dispatcher, a.Catalog, logger)
	if err != nil {
		return nil, err
	}

	a.Sessions, err = session.NewRegistry(a.Users, a.Catalog, cfg.SessionIdleTimeout, logger)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.Sessions.Run(runCtx)

	return a, nil
}

// provideOtelShutdown sets up OTLP tracing. Export failures never fail
// startup; tracing is best-effort.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	shutdown, err := observability.Setup(ctx, observability.Config{
		AgentHost:   cfg.Tracing.AgentHost,
		Environment: cfg.Tracing.Environment,
		ServiceName: cfg.Tracing.ServiceName,
	}, logger)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without tracing", "error", err)
		return func() {}
	}

	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("flushing traces on shutdown", "error", err)
		}
	}
}

func provideSearchEngine(pool *pgxpool.Pool, cfg *config.Config, logger *slog.Logger) (*search.Engine, error) {
	embedder, err := embedding.NewClient(embedding.Config{
		APIKey:    cfg.EmbeddingAPIKey,
		BaseURL:   cfg.EmbeddingBaseURL,
		Model:     cfg.EmbeddingModel,
		Dimension: config.EmbeddingDimension,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return search.NewEngine(search.NewPG(pool), embedder, logger)
}

func provideOrchestrator(cfg *config.Config, dispatcher *tool.Dispatcher, products *catalog.Store, logger *slog.Logger) (*chat.Orchestrator, error) {
	client, err := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	return chat.New(chat.Config{
		Client:        client,
		Tools:         dispatcher,
		Products:      products,
		Logger:        logger,
		Model:         cfg.ModelName,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		MaxToolRounds: cfg.MaxToolRounds,
	})
}

func provideReporter(pool *pgxpool.Pool, logger *slog.Logger) (*report.Reporter, error) {
	logins, err := report.NewLoginStore(pool)
	if err != nil {
		return nil, err
	}
	return report.NewReporter(logins, report.NewHTTPGeolocator("", nil), logger)
}
