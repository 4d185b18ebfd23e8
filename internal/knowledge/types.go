package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding dimensionality the schema expects.
// text-embedding-004 outputs 768 dimensions; the chunks.embedding
// column is declared vector(768) to match.
const VectorDimension = 768

// KnowledgeBase is a named, isolated retrieval scope.
// DocumentCount is derived from the chunk table (distinct sources),
// never stored.
type KnowledgeBase struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	CreatedAt     time.Time `json:"createdAt"`
	DocumentCount int       `json:"documentCount"`
}

// Chunk is the atomic persisted unit: a bounded substring of an
// uploaded file together with its embedding. Chunks sharing the same
// Source within a knowledge base form one logical document and are
// deleted together.
type Chunk struct {
	ID              uuid.UUID `json:"id"`
	KnowledgeBaseID uuid.UUID `json:"knowledgeBaseId"`
	Content         string    `json:"content"`
	Source          string    `json:"source"`
	SourceSize      int64     `json:"sourceSize"`
	Embedding       []float32 `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
}

// SourceFile is the derived, deduplicated per-file view of a knowledge
// base's chunks, grouped by source filename. The representative chunk
// is the most recently inserted one.
type SourceFile struct {
	Name       string    `json:"name"`
	ChunkID    uuid.UUID `json:"chunkId"`
	SizeBytes  int64     `json:"sizeBytes"`
	ChunkCount int       `json:"chunkCount"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// SearchResult is one similarity-search hit. Similarity is cosine
// similarity in [-1, 1]; results are filtered by the caller's threshold
// so in practice values are >= that threshold.
type SearchResult struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity"`
}

// UpdateParams holds the optional fields of a knowledge-base update.
// Nil pointers leave the stored value unchanged.
type UpdateParams struct {
	Title       *string
	Description *string
	Icon        *string
}
