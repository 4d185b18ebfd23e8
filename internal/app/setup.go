package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/db"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/chunker"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/config"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/embedding"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/ingest"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/mcp"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/rag"
)

// ServerName identifies this service to MCP clients.
const ServerName = "khub"

// Setup builds the application from configuration.
// On any failure, resources acquired so far are released.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (a *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			_ = a.Close()
		}
	}()

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, emb, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	client, err := embedding.New(emb, embedding.Config{
		Dimension: knowledge.VectorDimension,
		Logger:    logger.With("component", "embedding"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}
	a.Embedder = client

	store, err := knowledge.NewStore(pool, logger.With("component", "knowledge"))
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}
	a.Store = store

	pipeline, err := ingest.New(client, store, chunker.Config{}, logger.With("component", "ingest"))
	if err != nil {
		return nil, fmt.Errorf("creating ingestion pipeline: %w", err)
	}
	a.Pipeline = pipeline

	engine, err := rag.New(g, cfg.FullModelName(), cfg.Temperature, client, store, logger.With("component", "rag"))
	if err != nil {
		return nil, fmt.Errorf("creating chat engine: %w", err)
	}
	a.Engine = engine

	mcpServer, err := mcp.NewServer(mcp.Config{
		Name:     ServerName,
		Version:  version,
		Store:    store,
		Embedder: client,
		Logger:   logger.With("component", "mcp"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	a.MCP = mcpServer

	logger.Info("application initialized",
		"provider", cfg.Provider,
		"model", cfg.FullModelName(),
		"embedder", cfg.FullEmbedderName(),
	)
	return a, nil
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Debug("database pool ready", "host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider and
// returns the embedder registered by that provider's plugin.
//
// Ollama requires explicit model and embedder registration; the Google
// providers auto-discover models and expose a lookup helper.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, ai.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, ollama.Embedder(g, cfg.OllamaHost), nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
		return g, googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), nil
	}
}
