// Package api serves the REST and streaming HTTP surface: knowledge
// base CRUD, document upload/removal, SSE chat, health probes, and the
// mounted MCP endpoint.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/config"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/ingest"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/rag"
)

// kbStore is the slice of knowledge.Store the handlers need.
type kbStore interface {
	CreateKnowledgeBase(ctx context.Context, title, description, icon string) (knowledge.KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context) ([]knowledge.KnowledgeBase, error)
	GetKnowledgeBase(ctx context.Context, id uuid.UUID) (knowledge.KnowledgeBase, error)
	UpdateKnowledgeBase(ctx context.Context, id uuid.UUID, params knowledge.UpdateParams) (knowledge.KnowledgeBase, error)
	DeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error
	ListSources(ctx context.Context, kbID uuid.UUID) ([]knowledge.SourceFile, error)
	DeleteChunksBySource(ctx context.Context, kbID uuid.UUID, source string) (int, error)
}

// ingestor runs the document ingestion pipeline.
type ingestor interface {
	Ingest(ctx context.Context, kbID uuid.UUID, doc ingest.Document, onProgress ingest.ProgressFunc) (ingest.Result, error)
}

// chatter answers questions grounded in a knowledge base.
type chatter interface {
	Chat(ctx context.Context, kbID uuid.UUID, query string, cb rag.Callbacks) (rag.Answer, error)
}

// Server is the HTTP API server. Mount it behind an http.Server; it
// carries its own middleware stack.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	store    kbStore
	ingestor ingestor
	chatter  chatter

	maxUploadBytes int64
	ready          func(ctx context.Context) error
}

// ServerConfig configures the API server.
type ServerConfig struct {
	Logger   *slog.Logger
	Store    kbStore
	Ingestor ingestor
	Chatter  chatter

	// MCPHandler, when non-nil, is mounted at /mcp for streamable-HTTP
	// MCP clients.
	MCPHandler http.Handler

	// MaxUploadBytes caps document upload size. Zero applies the
	// config default.
	MaxUploadBytes int64

	// Ready reports backend readiness (typically a pool ping). Nil
	// means always ready.
	Ready func(ctx context.Context) error
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if cfg.Chatter == nil {
		return nil, errors.New("chatter is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.DefaultMaxUploadBytes
	}

	s := &Server{
		mux:            http.NewServeMux(),
		logger:         logger,
		store:          cfg.Store,
		ingestor:       cfg.Ingestor,
		chatter:        cfg.Chatter,
		maxUploadBytes: cfg.MaxUploadBytes,
		ready:          cfg.Ready,
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)

	s.mux.HandleFunc("GET /api/v1/knowledge-bases", s.handleListKnowledgeBases)
	s.mux.HandleFunc("POST /api/v1/knowledge-bases", s.handleCreateKnowledgeBase)
	s.mux.HandleFunc("GET /api/v1/knowledge-bases/{id}", s.handleGetKnowledgeBase)
	s.mux.HandleFunc("PATCH /api/v1/knowledge-bases/{id}", s.handleUpdateKnowledgeBase)
	s.mux.HandleFunc("DELETE /api/v1/knowledge-bases/{id}", s.handleDeleteKnowledgeBase)

	s.mux.HandleFunc("GET /api/v1/knowledge-bases/{id}/documents", s.handleListDocuments)
	s.mux.HandleFunc("POST /api/v1/knowledge-bases/{id}/documents", s.handleUploadDocument)
	s.mux.HandleFunc("DELETE /api/v1/knowledge-bases/{id}/documents/{source}", s.handleDeleteDocument)

	s.mux.HandleFunc("POST /api/v1/knowledge-bases/{id}/chat", s.handleChat)

	if cfg.MCPHandler != nil {
		s.mux.Handle("/mcp", cfg.MCPHandler)
	}

	return s, nil
}

// ServeHTTP implements http.Handler with the middleware stack:
// recovery -> logging -> routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")

	var handler http.Handler = s.mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}
