package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/log"
)

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{name: "valid", title: "Kubernetes Operations"},
		{name: "empty", title: "", wantErr: true},
		{name: "max length", title: strings.Repeat("a", MaxTitleLength)},
		{name: "too long", title: strings.Repeat("a", MaxTitleLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTitle(tt.title)
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Errorf("validateTitle(%q) = %v, want ErrValidation", tt.title, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateTitle(%q) = %v, want nil", tt.title, err)
			}
		})
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
	}

	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503"}
	if !isForeignKeyViolation(fk) {
		t.Error("isForeignKeyViolation(23503) = false, want true")
	}
	if isForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("isForeignKeyViolation(23505) = true, want false")
	}
	if isForeignKeyViolation(errors.New("plain")) {
		t.Error("isForeignKeyViolation(non-pg error) = true, want false")
	}
}

// Validation paths below return before the pool is touched, so a
// zero-pool Store is safe here.

func TestInsertChunks_Validation(t *testing.T) {
	s := &Store{logger: log.NewNop()}
	ctx := context.Background()
	kbID := uuid.New()
	otherID := uuid.New()

	goodEmbedding := make([]float32, VectorDimension)

	tests := []struct {
		name   string
		chunks []Chunk
	}{
		{
			name: "mixed knowledge bases",
			chunks: []Chunk{
				{KnowledgeBaseID: kbID, Content: "a", Source: "f.txt", Embedding: goodEmbedding},
				{KnowledgeBaseID: otherID, Content: "b", Source: "f.txt", Embedding: goodEmbedding},
			},
		},
		{
			name: "wrong embedding dimension",
			chunks: []Chunk{
				{KnowledgeBaseID: kbID, Content: "a", Source: "f.txt", Embedding: make([]float32, 3)},
			},
		},
		{
			name: "empty content",
			chunks: []Chunk{
				{KnowledgeBaseID: kbID, Content: "", Source: "f.txt", Embedding: goodEmbedding},
			},
		},
		{
			name: "empty source",
			chunks: []Chunk{
				{KnowledgeBaseID: kbID, Content: "a", Source: "", Embedding: goodEmbedding},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.InsertChunks(ctx, tt.chunks); !errors.Is(err, ErrValidation) {
				t.Errorf("InsertChunks() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestInsertChunks_EmptyBatch(t *testing.T) {
	s := &Store{logger: log.NewNop()}
	n, err := s.InsertChunks(context.Background(), nil)
	if err != nil {
		t.Fatalf("InsertChunks(nil) error = %v", err)
	}
	if n != 0 {
		t.Errorf("InsertChunks(nil) = %d, want 0", n)
	}
}

func TestSimilaritySearch_Validation(t *testing.T) {
	s := &Store{logger: log.NewNop()}
	ctx := context.Background()
	kbID := uuid.New()
	vec := make([]float32, VectorDimension)

	if _, err := s.SimilaritySearch(ctx, kbID, make([]float32, 5), 0.5, 5); !errors.Is(err, ErrValidation) {
		t.Errorf("short vector: error = %v, want ErrValidation", err)
	}
	if _, err := s.SimilaritySearch(ctx, kbID, vec, 0.5, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("zero limit: error = %v, want ErrValidation", err)
	}
	if _, err := s.SimilaritySearch(ctx, kbID, vec, 0.5, MaxListLimit+1); !errors.Is(err, ErrValidation) {
		t.Errorf("excess limit: error = %v, want ErrValidation", err)
	}
}

func TestDeleteChunksBySource_Validation(t *testing.T) {
	s := &Store{logger: log.NewNop()}
	if _, err := s.DeleteChunksBySource(context.Background(), uuid.New(), "  "); !errors.Is(err, ErrValidation) {
		t.Errorf("blank source: error = %v, want ErrValidation", err)
	}
}
