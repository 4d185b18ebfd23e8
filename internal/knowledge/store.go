// Package knowledge persists knowledge bases and their embedded chunks
// in PostgreSQL + pgvector, and serves cosine similarity search over
// them. All similarity-scoped reads and writes are keyed by knowledge
// base ID; chunks from one knowledge base never appear in another's
// results.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// kbCols is the standard SELECT column list for knowledge bases,
// including the derived document count.
const kbCols = `kb.id, kb.title, kb.description, kb.icon, kb.created_at,
	(SELECT COUNT(DISTINCT c.source) FROM chunks c WHERE c.knowledge_base_id = kb.id) AS document_count`

// Store manages knowledge bases and chunks backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines. Writes that
// touch a knowledge base's chunk set (batch insert, delete-by-source)
// serialize on a per-knowledge-base advisory lock so concurrent
// ingestions and deletions cannot interleave partial state.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// CreateKnowledgeBase inserts a new knowledge base and returns it with
// generated ID and timestamp. Title must be non-blank and at most
// MaxTitleLength characters.
func (s *Store) CreateKnowledgeBase(ctx context.Context, title, description, icon string) (KnowledgeBase, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return KnowledgeBase{}, err
	}
	if icon == "" {
		icon = "book"
	}

	var kb KnowledgeBase
	err := s.pool.QueryRow(ctx, `
		INSERT INTO knowledge_bases (title, description, icon)
		VALUES ($1, $2, $3)
		RETURNING id, title, description, icon, created_at`,
		title, description, icon,
	).Scan(&kb.ID, &kb.Title, &kb.Description, &kb.Icon, &kb.CreatedAt)
	if err != nil {
		return KnowledgeBase{}, fmt.Errorf("%w: creating knowledge base: %s", ErrStorage, err)
	}

	s.logger.Info("knowledge base created", "id", kb.ID, "title", kb.Title)
	return kb, nil
}

// ListKnowledgeBases returns all knowledge bases newest-first, each with
// its derived document count.
func (s *Store) ListKnowledgeBases(ctx context.Context) ([]KnowledgeBase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+kbCols+`
		FROM knowledge_bases kb
		ORDER BY kb.created_at DESC, kb.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing knowledge bases: %s", ErrStorage, err)
	}
	defer rows.Close()

	return scanKnowledgeBases(rows)
}

// GetKnowledgeBase returns one knowledge base by ID.
func (s *Store) GetKnowledgeBase(ctx context.Context, id uuid.UUID) (KnowledgeBase, error) {
	var kb KnowledgeBase
	err := s.pool.QueryRow(ctx, `
		SELECT `+kbCols+`
		FROM knowledge_bases kb
		WHERE kb.id = $1`, id,
	).Scan(&kb.ID, &kb.Title, &kb.Description, &kb.Icon, &kb.CreatedAt, &kb.DocumentCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return KnowledgeBase{}, fmt.Errorf("%w: knowledge base %s", ErrNotFound, id)
	}
	if err != nil {
		return KnowledgeBase{}, fmt.Errorf("%w: getting knowledge base: %s", ErrStorage, err)
	}
	return kb, nil
}

// FindKnowledgeBaseByTitle resolves a human-readable subject to a
// knowledge base by case-insensitive substring match on the title.
// When several match, the oldest wins so established subjects keep
// resolving the same way as new ones are added.
func (s *Store) FindKnowledgeBaseByTitle(ctx context.Context, subject string) (KnowledgeBase, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return KnowledgeBase{}, fmt.Errorf("%w: subject is required", ErrValidation)
	}

	var kb KnowledgeBase
	err := s.pool.QueryRow(ctx, `
		SELECT `+kbCols+`
		FROM knowledge_bases kb
		WHERE kb.title ILIKE '%' || $1 || '%'
		ORDER BY kb.created_at ASC, kb.id ASC
		LIMIT 1`, escapeLike(subject),
	).Scan(&kb.ID, &kb.Title, &kb.Description, &kb.Icon, &kb.CreatedAt, &kb.DocumentCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return KnowledgeBase{}, fmt.Errorf("%w: no knowledge base matching %q", ErrNotFound, subject)
	}
	if err != nil {
		return KnowledgeBase{}, fmt.Errorf("%w: finding knowledge base: %s", ErrStorage, err)
	}
	return kb, nil
}

// UpdateKnowledgeBase applies the non-nil fields of params and returns
// the updated knowledge base. A nil field leaves the stored value
// unchanged; a set-but-blank title is rejected.
func (s *Store) UpdateKnowledgeBase(ctx context.Context, id uuid.UUID, params UpdateParams) (KnowledgeBase, error) {
	if params.Title != nil {
		trimmed := strings.TrimSpace(*params.Title)
		if err := validateTitle(trimmed); err != nil {
			return KnowledgeBase{}, err
		}
		params.Title = &trimmed
	}

	var kb KnowledgeBase
	err := s.pool.QueryRow(ctx, `
		UPDATE knowledge_bases SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			icon = COALESCE($4, icon)
		WHERE id = $1
		RETURNING id, title, description, icon, created_at`,
		id, params.Title, params.Description, params.Icon,
	).Scan(&kb.ID, &kb.Title, &kb.Description, &kb.Icon, &kb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return KnowledgeBase{}, fmt.Errorf("%w: knowledge base %s", ErrNotFound, id)
	}
	if err != nil {
		return KnowledgeBase{}, fmt.Errorf("%w: updating knowledge base: %s", ErrStorage, err)
	}

	kb.DocumentCount, err = countDocuments(ctx, s.pool, id)
	if err != nil {
		return KnowledgeBase{}, err
	}
	return kb, nil
}

// DeleteKnowledgeBase removes a knowledge base; its chunks go with it
// via ON DELETE CASCADE.
func (s *Store) DeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_bases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting knowledge base: %s", ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: knowledge base %s", ErrNotFound, id)
	}

	s.logger.Info("knowledge base deleted", "id", id)
	return nil
}

// InsertChunks persists a batch of embedded chunks in one transaction.
// All chunks must target the same, existing knowledge base and carry
// embeddings of VectorDimension length. On any failure the whole batch
// is rolled back: either every chunk persists or none does.
//
// The per-knowledge-base advisory lock serializes this against
// concurrent InsertChunks and DeleteChunksBySource on the same base, so
// a re-upload that deletes the old version cannot interleave with the
// insert of the new one.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	kbID := chunks[0].KnowledgeBaseID
	for i, c := range chunks {
		if c.KnowledgeBaseID != kbID {
			return 0, fmt.Errorf("%w: chunk %d targets knowledge base %s, batch targets %s",
				ErrValidation, i, c.KnowledgeBaseID, kbID)
		}
		if len(c.Embedding) != VectorDimension {
			return 0, fmt.Errorf("%w: chunk %d embedding has %d dimensions, want %d",
				ErrValidation, i, len(c.Embedding), VectorDimension)
		}
		if c.Content == "" {
			return 0, fmt.Errorf("%w: chunk %d has empty content", ErrValidation, i)
		}
		if c.Source == "" {
			return 0, fmt.Errorf("%w: chunk %d has empty source", ErrValidation, i)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %s", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockKnowledgeBase(ctx, tx, kbID); err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (knowledge_base_id, content, source, source_size, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			c.KnowledgeBaseID, c.Content, c.Source, c.SourceSize, pgvector.NewVector(c.Embedding))
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isForeignKeyViolation(err) {
				return 0, fmt.Errorf("%w: knowledge base %s", ErrNotFound, kbID)
			}
			return 0, fmt.Errorf("%w: inserting chunks: %s", ErrStorage, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("%w: closing batch: %s", ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: committing chunks: %s", ErrStorage, err)
	}

	s.logger.Info("chunks inserted",
		"knowledge_base_id", kbID, "count", len(chunks), "source", chunks[0].Source)
	return len(chunks), nil
}

// ListSources returns the deduplicated per-file view of a knowledge
// base's chunks, newest upload first. The representative chunk ID and
// upload time come from the most recently inserted chunk of each source.
func (s *Store) ListSources(ctx context.Context, kbID uuid.UUID) ([]SourceFile, error) {
	// Existence check first so an unknown base is a 404, not an empty list.
	if _, err := s.GetKnowledgeBase(ctx, kbID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT source, id, source_size, created_at, chunk_count FROM (
			SELECT DISTINCT ON (source)
				source, id, source_size, created_at,
				COUNT(*) OVER (PARTITION BY source) AS chunk_count
			FROM chunks
			WHERE knowledge_base_id = $1
			ORDER BY source, created_at DESC, id DESC
		) latest
		ORDER BY created_at DESC, source ASC`, kbID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing sources: %s", ErrStorage, err)
	}
	defer rows.Close()

	var files []SourceFile
	for rows.Next() {
		var f SourceFile
		if err := rows.Scan(&f.Name, &f.ChunkID, &f.SizeBytes, &f.UploadedAt, &f.ChunkCount); err != nil {
			return nil, fmt.Errorf("%w: scanning source: %s", ErrStorage, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading sources: %s", ErrStorage, err)
	}
	return files, nil
}

// DeleteChunksBySource removes every chunk of one source file from a
// knowledge base and returns the number removed. An unknown kb+source
// pair is ErrNotFound.
func (s *Store) DeleteChunksBySource(ctx context.Context, kbID uuid.UUID, source string) (int, error) {
	if strings.TrimSpace(source) == "" {
		return 0, fmt.Errorf("%w: source is required", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %s", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockKnowledgeBase(ctx, tx, kbID); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM chunks
		WHERE knowledge_base_id = $1 AND source = $2`, kbID, source)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting chunks: %s", ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("%w: source %q in knowledge base %s", ErrNotFound, source, kbID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: committing delete: %s", ErrStorage, err)
	}

	deleted := int(tag.RowsAffected())
	s.logger.Info("source deleted", "knowledge_base_id", kbID, "source", source, "chunks", deleted)
	return deleted, nil
}

// SimilaritySearch returns up to limit chunks of one knowledge base
// whose cosine similarity to the query vector is at least threshold,
// most similar first. Ties break newest-first so fresher material wins.
func (s *Store) SimilaritySearch(ctx context.Context, kbID uuid.UUID, queryVec []float32, threshold float64, limit int) ([]SearchResult, error) {
	if len(queryVec) != VectorDimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, want %d",
			ErrValidation, len(queryVec), VectorDimension)
	}
	if limit <= 0 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be in 1..%d, got %d", ErrValidation, MaxListLimit, limit)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, knowledge_base_id, content, source, source_size, created_at,
			1 - (embedding <=> $2) AS similarity
		FROM chunks
		WHERE knowledge_base_id = $1
			AND 1 - (embedding <=> $2) >= $3
		ORDER BY similarity DESC, created_at DESC, id DESC
		LIMIT $4`,
		kbID, pgvector.NewVector(queryVec), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %s", ErrStorage, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Chunk.ID, &r.Chunk.KnowledgeBaseID, &r.Chunk.Content,
			&r.Chunk.Source, &r.Chunk.SourceSize, &r.Chunk.CreatedAt,
			&r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning result: %s", ErrStorage, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading results: %s", ErrStorage, err)
	}
	return results, nil
}

func countDocuments(ctx context.Context, q querier, kbID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRow(ctx,
		`SELECT COUNT(DISTINCT source) FROM chunks WHERE knowledge_base_id = $1`, kbID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: counting documents: %s", ErrStorage, err)
	}
	return n, nil
}

// lockKnowledgeBase takes the per-knowledge-base transaction-scoped
// advisory lock. pg_advisory_xact_lock releases automatically at
// commit/rollback.
func lockKnowledgeBase(ctx context.Context, q querier, kbID uuid.UUID) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, kbID.String()); err != nil {
		return fmt.Errorf("%w: acquiring advisory lock: %s", ErrStorage, err)
	}
	return nil
}

func scanKnowledgeBases(rows pgx.Rows) ([]KnowledgeBase, error) {
	var out []KnowledgeBase
	for rows.Next() {
		var kb KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.Title, &kb.Description, &kb.Icon, &kb.CreatedAt, &kb.DocumentCount); err != nil {
			return nil, fmt.Errorf("%w: scanning knowledge base: %s", ErrStorage, err)
		}
		out = append(out, kb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading knowledge bases: %s", ErrStorage, err)
	}
	return out, nil
}

func validateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}
	return nil
}

// escapeLike neutralizes LIKE metacharacters in user-supplied subjects
// so "100%" matches literally instead of as a wildcard.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	// 23503: foreign_key_violation
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
