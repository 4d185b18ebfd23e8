// Package app wires the application components together.
//
// Setup builds the full dependency graph in order: database pool and
// migrations, Genkit with the configured AI provider, embedding client,
// knowledge store, ingestion pipeline, chat engine, and MCP server.
// Commands consume the assembled App and own the transport layer
// (HTTP server or stdio).
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/config"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/embedding"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/ingest"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/mcp"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/rag"
)

// App is the application container holding all wired components.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	DBPool   *pgxpool.Pool
	Embedder *embedding.Client
	Store    *knowledge.Store
	Pipeline *ingest.Pipeline
	Engine   *rag.Engine
	MCP      *mcp.Server
}

// Ready reports whether the storage backend is reachable.
// Wired into the HTTP server's /ready endpoint.
func (a *App) Ready(ctx context.Context) error {
	return a.DBPool.Ping(ctx)
}

// Close releases all resources. Safe to call on a partially
// initialized App.
func (a *App) Close() error {
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}
	return nil
}
