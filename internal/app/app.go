// Package app wires the application together: configuration, logging,
// database pool, upstream clients, stores, the tool dispatcher, the chat
// orchestrator and the session registry.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reviewly/reviewly/internal/catalog"
	"github.com/reviewly/reviewly/internal/chat"
	"github.com/reviewly/reviewly/internal/config"
	"github.com/reviewly/reviewly/internal/history"
	"github.com/reviewly/reviewly/internal/report"
	"github.com/reviewly/reviewly/internal/session"
	"github.com/reviewly/reviewly/internal/user"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DBPool       *pgxpool.Pool
	Catalog      *catalog.Store
	Users        *user.Store
	History      *history.Store
	Reporter     *report.Reporter
	Orchestrator *chat.Orchestrator
	Sessions     *session.Registry

	otelCleanup func()
	cancel      context.CancelFunc
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
