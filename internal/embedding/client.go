// Package embedding wraps a Genkit embedder behind the narrow client
// the ingestion pipeline and chat engine share.
//
// Ingestion and query embedding MUST go through the same Client so both
// sides of the similarity search live in the same vector space. The
// client pins the output dimensionality to the store's expected
// dimension and fails loudly on any mismatch.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Sentinel errors for embedding operations. Check with errors.Is().
var (
	// ErrEmptyInput indicates the text to embed was empty or blank.
	// Not retryable: the input itself is malformed.
	ErrEmptyInput = errors.New("empty embedding input")

	// ErrUnavailable indicates the upstream embedding call failed or
	// returned no vector. Callers may treat this as retryable.
	ErrUnavailable = errors.New("embedding unavailable")

	// ErrDimensionMismatch indicates the model returned a vector whose
	// length differs from the configured store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Config holds the client parameters.
type Config struct {
	// Dimension is the vector length the store expects. Required.
	Dimension int

	// Limiter bounds upstream request rate across ingestion batches and
	// query embedding. Nil installs a default of 10 req/s, burst 20.
	Limiter *rate.Limiter

	// Logger for debugging. Nil uses slog.Default().
	Logger *slog.Logger
}

// Client converts text to fixed-length float32 vectors via an
// ai.Embedder. Safe for concurrent use.
type Client struct {
	embedder  ai.Embedder
	dimension int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates an embedding Client.
func New(embedder ai.Embedder, cfg Config) (*Client, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 20)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		embedder:  embedder,
		dimension: cfg.Dimension,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// Dimension returns the configured vector length.
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed converts text to a vector of the configured dimension.
// One upstream call per invocation; batching is the caller's concern.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	dim := int32(c.dimension) // #nosec G115 -- validated positive in New
	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, store expects %d", ErrDimensionMismatch, len(vec), c.dimension)
	}

	c.logger.Debug("embedded text", "length", len(text), "dimension", len(vec))
	return vec, nil
}
