package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/log"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/testutil"
)

type fakeStore struct {
	kb        knowledge.KnowledgeBase
	findErr   error
	results   []knowledge.SearchResult
	searchErr error

	gotSubject   string
	gotThreshold float64
	gotLimit     int
}

func (f *fakeStore) FindKnowledgeBaseByTitle(_ context.Context, subject string) (knowledge.KnowledgeBase, error) {
	f.gotSubject = subject
	if f.findErr != nil {
		return knowledge.KnowledgeBase{}, f.findErr
	}
	return f.kb, nil
}

func (f *fakeStore) SimilaritySearch(_ context.Context, _ uuid.UUID, _ []float32, threshold float64, limit int) ([]knowledge.SearchResult, error) {
	f.gotThreshold = threshold
	f.gotLimit = limit
	return f.results, f.searchErr
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return testutil.Vector(text, knowledge.VectorDimension), nil
}

func newTestServer(t *testing.T, store *fakeStore) *Server {
	t.Helper()
	s, err := NewServer(Config{
		Name:     "khub-test",
		Version:  "0.0.1",
		Store:    store,
		Embedder: &fakeEmbedder{},
		Logger:   log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

func resultText(t *testing.T, res *sdk.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(*sdk.TextContent)
	if !ok {
		t.Fatalf("content type %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestNewServer_Validation(t *testing.T) {
	if _, err := NewServer(Config{Version: "1", Store: &fakeStore{}, Embedder: &fakeEmbedder{}}); err == nil {
		t.Error("missing name: expected error")
	}
	if _, err := NewServer(Config{Name: "x", Version: "1", Embedder: &fakeEmbedder{}}); err == nil {
		t.Error("missing store: expected error")
	}
}

func TestQueryKnowledge_MissingArguments(t *testing.T) {
	s := newTestServer(t, &fakeStore{})

	for _, input := range []QueryKnowledgeInput{
		{Subject: "", Query: "q"},
		{Subject: "s", Query: "  "},
	} {
		res, _, err := s.QueryKnowledge(context.Background(), &sdk.CallToolRequest{}, input)
		if err != nil {
			t.Fatalf("QueryKnowledge(%+v) error = %v", input, err)
		}
		if !res.IsError {
			t.Errorf("QueryKnowledge(%+v) IsError = false, want true", input)
		}
	}
}

func TestQueryKnowledge_SubjectNotFound(t *testing.T) {
	store := &fakeStore{findErr: knowledge.ErrNotFound}
	s := newTestServer(t, store)

	res, _, err := s.QueryKnowledge(context.Background(), &sdk.CallToolRequest{},
		QueryKnowledgeInput{Subject: "nonexistent", Query: "anything"})
	if err != nil {
		t.Fatalf("QueryKnowledge() error = %v", err)
	}

	// Unknown subject is a successful text result, not a protocol error.
	if res.IsError {
		t.Error("IsError = true for unknown subject, want success result")
	}
	if got := resultText(t, res); !strings.Contains(got, `"nonexistent" not found`) {
		t.Errorf("text = %q, want subject-not-found message", got)
	}
}

func TestQueryKnowledge_NoResults(t *testing.T) {
	store := &fakeStore{kb: knowledge.KnowledgeBase{ID: uuid.New(), Title: "Docs"}}
	s := newTestServer(t, store)

	res, _, err := s.QueryKnowledge(context.Background(), &sdk.CallToolRequest{},
		QueryKnowledgeInput{Subject: "docs", Query: "anything"})
	if err != nil {
		t.Fatalf("QueryKnowledge() error = %v", err)
	}
	if res.IsError {
		t.Error("IsError = true for empty retrieval, want success result")
	}
	if got := resultText(t, res); got != "No relevant information found in the documents." {
		t.Errorf("text = %q", got)
	}
}

func TestQueryKnowledge_ReturnsTaggedExcerpts(t *testing.T) {
	kbID := uuid.New()
	store := &fakeStore{
		kb: knowledge.KnowledgeBase{ID: kbID, Title: "Ops Runbooks"},
		results: []knowledge.SearchResult{
			{Chunk: knowledge.Chunk{Source: "deploy.md", Content: "run make deploy"}, Similarity: 0.91},
			{Chunk: knowledge.Chunk{Source: "rollback.md", Content: "run make rollback"}, Similarity: 0.74},
		},
	}
	s := newTestServer(t, store)

	res, _, err := s.QueryKnowledge(context.Background(), &sdk.CallToolRequest{},
		QueryKnowledgeInput{Subject: "ops", Query: "how to deploy"})
	if err != nil {
		t.Fatalf("QueryKnowledge() error = %v", err)
	}

	text := resultText(t, res)
	for _, fragment := range []string{
		`2 relevant excerpt(s) in "Ops Runbooks"`,
		"[Source: deploy.md] (similarity: 0.91)\nrun make deploy",
		"[Source: rollback.md] (similarity: 0.74)\nrun make rollback",
		"---",
	} {
		if !strings.Contains(text, fragment) {
			t.Errorf("result missing %q:\n%s", fragment, text)
		}
	}

	// Tool retrieval uses the tighter threshold and limit.
	if store.gotThreshold != QueryThreshold {
		t.Errorf("threshold = %v, want %v", store.gotThreshold, QueryThreshold)
	}
	if store.gotLimit != QueryLimit {
		t.Errorf("limit = %d, want %d", store.gotLimit, QueryLimit)
	}
}

func TestQueryKnowledge_InternalFailures(t *testing.T) {
	// Store failures are protocol errors the SDK reports to the client.
	store := &fakeStore{findErr: knowledge.ErrStorage}
	s := newTestServer(t, store)

	_, _, err := s.QueryKnowledge(context.Background(), &sdk.CallToolRequest{},
		QueryKnowledgeInput{Subject: "docs", Query: "q"})
	if !errors.Is(err, knowledge.ErrStorage) {
		t.Errorf("find failure: error = %v, want ErrStorage", err)
	}

	store = &fakeStore{kb: knowledge.KnowledgeBase{ID: uuid.New(), Title: "Docs"}, searchErr: knowledge.ErrStorage}
	s = newTestServer(t, store)
	_, _, err = s.QueryKnowledge(context.Background(), &sdk.CallToolRequest{},
		QueryKnowledgeInput{Subject: "docs", Query: "q"})
	if !errors.Is(err, knowledge.ErrStorage) {
		t.Errorf("search failure: error = %v, want ErrStorage", err)
	}
}
