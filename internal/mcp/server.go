// Package mcp exposes the knowledge bases to MCP clients as a single
// query_knowledge tool. Agents address a knowledge base by
// human-readable subject, not UUID, so the tool surface stays stable as
// bases come and go.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
)

// Retrieval parameters for tool queries. Tighter than chat (0.5/5):
// tool output feeds an unattended agent, so precision beats recall.
const (
	QueryThreshold = 0.7
	QueryLimit     = 3
)

// QueryKnowledgeInput is the input schema for the query_knowledge tool.
type QueryKnowledgeInput struct {
	Subject string `json:"subject" jsonschema:"Name of the knowledge base to search, matched case-insensitively as a substring of the title"`
	Query   string `json:"query" jsonschema:"Natural-language question to answer from the knowledge base"`
}

// knowledgeStore is the slice of knowledge.Store the gateway needs.
type knowledgeStore interface {
	FindKnowledgeBaseByTitle(ctx context.Context, subject string) (knowledge.KnowledgeBase, error)
	SimilaritySearch(ctx context.Context, kbID uuid.UUID, queryVec []float32, threshold float64, limit int) ([]knowledge.SearchResult, error)
}

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Server wraps the MCP SDK server around the knowledge store.
type Server struct {
	mcpServer *mcp.Server
	store     knowledgeStore
	embedder  embedder
	logger    *slog.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name     string
	Version  string
	Store    knowledgeStore
	Embedder embedder
	Logger   *slog.Logger
}

// NewServer creates the MCP gateway and registers its tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		store:    cfg.Store,
		embedder: cfg.Embedder,
		logger:   logger,
	}

	if err := s.registerQueryKnowledge(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves MCP protocol traffic on the given transport until ctx is
// canceled. Blocking.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// HTTPHandler returns a streamable-HTTP handler for mounting the MCP
// endpoint inside the API server.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

func (s *Server) registerQueryKnowledge() error {
	schema, err := jsonschema.For[QueryKnowledgeInput](nil)
	if err != nil {
		return fmt.Errorf("schema for query_knowledge: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "query_knowledge",
		Description: "Search a knowledge base for information relevant to a question. " +
			"Returns the most relevant document excerpts with their source file names and similarity scores.",
		InputSchema: schema,
	}, s.QueryKnowledge)
	return nil
}

// QueryKnowledge handles the query_knowledge MCP tool call.
//
// An unknown subject and an empty search result are reported as
// successful text results, not protocol errors: the agent asked a
// well-formed question that simply has no answer here, and should relay
// that rather than retry.
func (s *Server) QueryKnowledge(ctx context.Context, req *mcp.CallToolRequest, input QueryKnowledgeInput) (*mcp.CallToolResult, any, error) {
	subject := strings.TrimSpace(input.Subject)
	query := strings.TrimSpace(input.Query)
	if subject == "" || query == "" {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "Both 'subject' and 'query' are required."}},
			IsError: true,
		}, nil, nil
	}

	kb, err := s.store.FindKnowledgeBaseByTitle(ctx, subject)
	if errors.Is(err, knowledge.ErrNotFound) {
		return textResult(fmt.Sprintf("Subject %q not found.", subject)), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolving subject: %w", err)
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.store.SimilaritySearch(ctx, kb.ID, vec, QueryThreshold, QueryLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("searching knowledge base: %w", err)
	}
	if len(results) == 0 {
		return textResult("No relevant information found in the documents."), nil, nil
	}

	s.logger.Info("tool query answered",
		"subject", subject, "knowledge_base_id", kb.ID, "results", len(results))
	return textResult(formatResults(kb.Title, results)), nil, nil
}

// formatResults renders retrieved chunks as source-tagged excerpts the
// calling agent can cite from.
func formatResults(title string, results []knowledge.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant excerpt(s) in %q:\n\n", len(results), title)
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "[Source: %s] (similarity: %.2f)\n%s", r.Chunk.Source, r.Similarity, r.Chunk.Content)
	}
	return b.String()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
