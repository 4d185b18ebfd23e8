// Package ingest turns uploaded documents into stored, embedded chunks.
//
// The pipeline validates the upload, splits it into overlapping chunks,
// embeds the chunks in bounded concurrent batches, and stores the whole
// batch atomically. A progress callback reports coarse stages so a
// client can render an upload bar.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/chunker"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
)

// Sentinel errors for ingestion. Check with errors.Is().
var (
	// ErrEmptyDocument indicates the upload contained no usable text.
	ErrEmptyDocument = errors.New("empty document")

	// ErrUnsupportedFormat indicates the file is not a supported
	// plain-text format or is not valid UTF-8.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrNoChunksEmbedded indicates every chunk of the document failed
	// to embed, so nothing was stored.
	ErrNoChunksEmbedded = errors.New("no chunks embedded")
)

// EmbedBatchSize is the number of chunks embedded concurrently.
// Matches the upstream API's comfortable parallelism without tripping
// rate limits.
const EmbedBatchSize = 5

// supportedExtensions lists the plain-text formats the pipeline accepts.
var supportedExtensions = []string{".txt", ".md", ".markdown", ".text"}

// Progress stage percentages. Embedding progresses linearly from
// StageEmbeddingStart to StageEmbeddingEnd as batches complete.
const (
	StageValidated     = 10
	StageChunked       = 20
	StageEmbeddingEnd  = 80
	StageStored        = 90
	StageDone          = 100
	stageEmbeddingSpan = StageEmbeddingEnd - StageChunked
)

// ProgressFunc receives progress updates during ingestion. Percent is
// monotonically non-decreasing across calls. Nil callbacks are allowed.
type ProgressFunc func(stage string, percent int)

// Document is an upload to ingest: the original filename plus its raw
// bytes.
type Document struct {
	Name string
	Data []byte
}

// Result summarizes a completed ingestion.
type Result struct {
	Chunks   int `json:"chunks"`   // chunks produced by the splitter
	Inserted int `json:"inserted"` // chunks embedded and stored
	Dropped  int `json:"dropped"`  // chunks skipped after embed failure
}

// embedder is the slice of embedding.Client the pipeline needs.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// chunkStore is the slice of knowledge.Store the pipeline needs.
type chunkStore interface {
	InsertChunks(ctx context.Context, chunks []knowledge.Chunk) (int, error)
}

// Pipeline ingests documents into a knowledge base.
// Safe for concurrent use; concurrent ingestions into the same
// knowledge base serialize at the store's advisory lock.
type Pipeline struct {
	embedder embedder
	store    chunkStore
	cfg      chunker.Config
	logger   *slog.Logger
}

// New creates an ingestion Pipeline. A zero chunker.Config gets the
// default 1000/200 geometry.
func New(emb embedder, store chunkStore, cfg chunker.Config, logger *slog.Logger) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{embedder: emb, store: store, cfg: cfg, logger: logger}, nil
}

// Ingest validates, chunks, embeds, and stores one document into the
// given knowledge base. Individual chunks whose embedding fails are
// dropped with a warning; the rest of the document still lands. Only
// when every chunk fails does Ingest return ErrNoChunksEmbedded.
//
// The stored batch is atomic: on a storage error nothing persists.
func (p *Pipeline) Ingest(ctx context.Context, kbID uuid.UUID, doc Document, onProgress ProgressFunc) (Result, error) {
	report := func(stage string, percent int) {
		if onProgress != nil {
			onProgress(stage, percent)
		}
	}

	if err := validateDocument(doc); err != nil {
		return Result{}, err
	}
	report("validated", StageValidated)

	chunks, err := chunker.Split(string(doc.Data), p.cfg)
	if err != nil {
		return Result{}, fmt.Errorf("splitting document: %w", err)
	}
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.Name)
	}
	report("chunked", StageChunked)

	vectors, dropped := p.embedChunks(ctx, chunks, report)
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if len(dropped) == len(chunks) {
		return Result{}, fmt.Errorf("%w: all %d chunks failed for %s", ErrNoChunksEmbedded, len(chunks), doc.Name)
	}

	rows := make([]knowledge.Chunk, 0, len(chunks))
	for i, vec := range vectors {
		if vec == nil {
			continue
		}
		rows = append(rows, knowledge.Chunk{
			KnowledgeBaseID: kbID,
			Content:         chunks[i],
			Source:          doc.Name,
			SourceSize:      int64(len(doc.Data)),
			Embedding:       vec,
		})
	}

	inserted, err := p.store.InsertChunks(ctx, rows)
	if err != nil {
		return Result{}, fmt.Errorf("storing chunks: %w", err)
	}
	report("stored", StageStored)

	result := Result{Chunks: len(chunks), Inserted: inserted, Dropped: len(dropped)}
	p.logger.Info("document ingested",
		"knowledge_base_id", kbID, "source", doc.Name,
		"chunks", result.Chunks, "inserted", result.Inserted, "dropped", result.Dropped)

	report("done", StageDone)
	return result, nil
}

// embedChunks embeds all chunks in batches of EmbedBatchSize, preserving
// chunk order. vectors[i] is nil for chunks whose embedding failed;
// dropped lists their indexes.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []string, report ProgressFunc) (vectors [][]float32, dropped []int) {
	vectors = make([][]float32, len(chunks))

	batches := (len(chunks) + EmbedBatchSize - 1) / EmbedBatchSize
	for b := 0; b < batches; b++ {
		if ctx.Err() != nil {
			return vectors, dropped
		}

		start := b * EmbedBatchSize
		end := min(start+EmbedBatchSize, len(chunks))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				vec, err := p.embedder.Embed(gctx, chunks[i])
				if err != nil {
					// Drop this chunk, keep the document going. Context
					// cancellation is handled by the caller's ctx check.
					p.logger.Warn("chunk embedding failed, dropping chunk",
						"chunk_index", i, "error", err)
					return nil
				}
				vectors[i] = vec
				return nil
			})
		}
		_ = g.Wait() // goroutines never return errors; failures are drops

		percent := StageChunked + stageEmbeddingSpan*(b+1)/batches
		report("embedding", percent)
	}

	for i, vec := range vectors {
		if vec == nil {
			dropped = append(dropped, i)
		}
	}
	return vectors, dropped
}

func validateDocument(doc Document) error {
	if strings.TrimSpace(doc.Name) == "" {
		return fmt.Errorf("%w: document name is required", ErrUnsupportedFormat)
	}

	ext := strings.ToLower(filepath.Ext(doc.Name))
	if !slices.Contains(supportedExtensions, ext) {
		return fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedFormat, ext, strings.Join(supportedExtensions, ", "))
	}

	if !utf8.Valid(doc.Data) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrUnsupportedFormat, doc.Name)
	}
	if len(strings.TrimSpace(string(doc.Data))) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyDocument, doc.Name)
	}
	return nil
}
