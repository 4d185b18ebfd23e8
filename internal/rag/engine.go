// Package rag implements retrieval-augmented chat over a knowledge
// base: embed the question, fetch the most similar chunks, and stream a
// grounded answer with source citations.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
)

// Retrieval parameters for chat. The lower threshold (vs. the MCP
// gateway's 0.7) favors recall: a human reader can ignore a marginal
// chunk, an unattended tool consumer cannot.
const (
	SearchThreshold = 0.5
	SearchLimit     = 5
)

// ErrGeneration indicates the language model call failed after
// retrieval succeeded.
var ErrGeneration = errors.New("answer generation failed")

// DeltaFunc receives incremental answer text as the model produces it.
// Returning an error aborts generation.
type DeltaFunc func(delta string) error

// Callbacks carries the streaming hooks for Chat. OnSources fires once
// after retrieval, before any delta, so clients can render citations
// immediately. Either hook may be nil.
type Callbacks struct {
	OnSources func(sources []Source) error
	OnDelta   DeltaFunc
}

// Source is one cited source file with its best similarity score.
type Source struct {
	Name       string  `json:"name"`
	Similarity float32 `json:"similarity"`
}

// Answer is a completed chat response.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// embedder is the slice of embedding.Client the engine needs.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// searcher is the slice of knowledge.Store the engine needs.
type searcher interface {
	SimilaritySearch(ctx context.Context, kbID uuid.UUID, queryVec []float32, threshold float64, limit int) ([]knowledge.SearchResult, error)
}

// generator produces answer text from a system and user prompt,
// streaming deltas as they arrive. Abstracted so tests can fake the
// model.
type generator interface {
	Generate(ctx context.Context, system, prompt string, onDelta DeltaFunc) (string, error)
}

// Engine answers questions grounded in one knowledge base.
// Safe for concurrent use.
type Engine struct {
	embedder  embedder
	store     searcher
	generator generator
	logger    *slog.Logger
}

// New creates a chat Engine backed by a Genkit model.
func New(g *genkit.Genkit, modelName string, temperature float32, emb embedder, store searcher, logger *slog.Logger) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	gen := &genkitGenerator{g: g, modelName: modelName, temperature: temperature}
	return newWithGenerator(gen, emb, store, logger)
}

func newWithGenerator(gen generator, emb embedder, store searcher, logger *slog.Logger) (*Engine, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: emb, store: store, generator: gen, logger: logger}, nil
}

// Chat answers a question using only material from the given knowledge
// base. Citations fire through cb.OnSources before the first delta; the
// returned Answer carries the full text and the cited sources in
// retrieval order.
//
// When nothing in the knowledge base clears the similarity threshold,
// the model is still invoked, with an instruction stating that no
// relevant material was found and to say so.
func (e *Engine) Chat(ctx context.Context, kbID uuid.UUID, query string, cb Callbacks) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, fmt.Errorf("%w: query is required", knowledge.ErrValidation)
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return Answer{}, fmt.Errorf("embedding query: %w", err)
	}

	results, err := e.store.SimilaritySearch(ctx, kbID, vec, SearchThreshold, SearchLimit)
	if err != nil {
		return Answer{}, fmt.Errorf("searching knowledge base: %w", err)
	}

	sources := collectSources(results)
	if cb.OnSources != nil {
		if err := cb.OnSources(sources); err != nil {
			return Answer{}, err
		}
	}

	if len(results) == 0 {
		e.logger.Debug("no chunks above threshold", "knowledge_base_id", kbID)
	}

	text, err := e.generator.Generate(ctx, systemPrompt, buildUserPrompt(query, results), cb.OnDelta)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %s", ErrGeneration, err)
	}
	if strings.TrimSpace(text) == "" {
		text = NoMaterialAnswer
	}

	answer := Answer{Text: text, Sources: sources}
	e.logger.Info("chat answered",
		"knowledge_base_id", kbID, "retrieved", len(results), "sources", len(answer.Sources))
	return answer, nil
}

// collectSources deduplicates source filenames in retrieval order,
// keeping each file's best similarity.
func collectSources(results []knowledge.SearchResult) []Source {
	seen := make(map[string]int, len(results))
	var sources []Source
	for _, r := range results {
		if idx, ok := seen[r.Chunk.Source]; ok {
			if r.Similarity > sources[idx].Similarity {
				sources[idx].Similarity = r.Similarity
			}
			continue
		}
		seen[r.Chunk.Source] = len(sources)
		sources = append(sources, Source{Name: r.Chunk.Source, Similarity: r.Similarity})
	}
	return sources
}

// genkitGenerator is the production generator backed by genkit.Generate
// with streaming.
type genkitGenerator struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
}

func (gg *genkitGenerator) Generate(ctx context.Context, system, prompt string, onDelta DeltaFunc) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(gg.modelName),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(gg.temperature),
		}),
	}
	if onDelta != nil {
		opts = append(opts, ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			return onDelta(chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, gg.g, opts...)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
