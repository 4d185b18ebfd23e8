package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/log"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, knowledge.VectorDimension)
	vec[0] = 1
	return vec, nil
}

type fakeSearcher struct {
	results []knowledge.SearchResult
	err     error

	gotThreshold float64
	gotLimit     int
}

func (f *fakeSearcher) SimilaritySearch(_ context.Context, _ uuid.UUID, _ []float32, threshold float64, limit int) ([]knowledge.SearchResult, error) {
	f.gotThreshold = threshold
	f.gotLimit = limit
	return f.results, f.err
}

type fakeGenerator struct {
	// deltas streamed before returning text.
	deltas []string
	text   string
	err    error

	gotSystem string
	gotPrompt string
	calls     int
}

func (f *fakeGenerator) Generate(_ context.Context, system, prompt string, onDelta DeltaFunc) (string, error) {
	f.calls++
	f.gotSystem = system
	f.gotPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	for _, d := range f.deltas {
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return "", err
			}
		}
	}
	return f.text, nil
}

func result(source, content string, similarity float32) knowledge.SearchResult {
	return knowledge.SearchResult{
		Chunk:      knowledge.Chunk{ID: uuid.New(), Source: source, Content: content},
		Similarity: similarity,
	}
}

func newTestEngine(t *testing.T, gen *fakeGenerator, search *fakeSearcher) *Engine {
	t.Helper()
	e, err := newWithGenerator(gen, &fakeEmbedder{}, search, log.NewNop())
	if err != nil {
		t.Fatalf("newWithGenerator() error = %v", err)
	}
	return e
}

func TestChat_BlankQuery(t *testing.T) {
	e := newTestEngine(t, &fakeGenerator{}, &fakeSearcher{})
	if _, err := e.Chat(context.Background(), uuid.New(), "   ", Callbacks{}); !errors.Is(err, knowledge.ErrValidation) {
		t.Errorf("Chat(blank) error = %v, want ErrValidation", err)
	}
}

func TestChat_EmbedFailure(t *testing.T) {
	embErr := errors.New("upstream down")
	e, _ := newWithGenerator(&fakeGenerator{}, &fakeEmbedder{err: embErr}, &fakeSearcher{}, log.NewNop())

	if _, err := e.Chat(context.Background(), uuid.New(), "question", Callbacks{}); !errors.Is(err, embErr) {
		t.Errorf("Chat() error = %v, want wrapped embed error", err)
	}
}

func TestChat_SearchFailure(t *testing.T) {
	e := newTestEngine(t, &fakeGenerator{}, &fakeSearcher{err: knowledge.ErrStorage})
	if _, err := e.Chat(context.Background(), uuid.New(), "question", Callbacks{}); !errors.Is(err, knowledge.ErrStorage) {
		t.Errorf("Chat() error = %v, want ErrStorage", err)
	}
}

func TestChat_UsesChatRetrievalParameters(t *testing.T) {
	search := &fakeSearcher{results: []knowledge.SearchResult{result("a.md", "text", 0.9)}}
	gen := &fakeGenerator{text: "answer"}
	e := newTestEngine(t, gen, search)

	if _, err := e.Chat(context.Background(), uuid.New(), "question", Callbacks{}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if search.gotThreshold != SearchThreshold {
		t.Errorf("threshold = %v, want %v", search.gotThreshold, SearchThreshold)
	}
	if search.gotLimit != SearchLimit {
		t.Errorf("limit = %d, want %d", search.gotLimit, SearchLimit)
	}
}

func TestChat_NoMaterial(t *testing.T) {
	gen := &fakeGenerator{
		deltas: []string{"I could not find ", "anything relevant."},
		text:   "I could not find anything relevant.",
	}
	e := newTestEngine(t, gen, &fakeSearcher{})

	var deltas []string
	var gotSources []Source
	sourcesCalled := false

	answer, err := e.Chat(context.Background(), uuid.New(), "question", Callbacks{
		OnSources: func(s []Source) error { sourcesCalled = true; gotSources = s; return nil },
		OnDelta:   func(d string) error { deltas = append(deltas, d); return nil },
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	// The model is still invoked, with the no-material instruction in
	// place of retrieved chunks, and answers in its own words.
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
	if !strings.Contains(gen.gotPrompt, noMaterialContext) {
		t.Errorf("prompt missing no-material instruction:\n%s", gen.gotPrompt)
	}
	if !strings.Contains(gen.gotPrompt, "Question: question") {
		t.Errorf("prompt missing question:\n%s", gen.gotPrompt)
	}
	if answer.Text != gen.text {
		t.Errorf("Text = %q, want the model's answer", answer.Text)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", answer.Sources)
	}
	if !sourcesCalled || len(gotSources) != 0 {
		t.Errorf("OnSources called=%v with %v, want called with empty", sourcesCalled, gotSources)
	}
	if strings.Join(deltas, "") != gen.text {
		t.Errorf("streamed %q, want the model's answer", strings.Join(deltas, ""))
	}
}

func TestChat_GroundedAnswer(t *testing.T) {
	search := &fakeSearcher{results: []knowledge.SearchResult{
		result("setup.md", "install with make", 0.92),
		result("faq.md", "common problems", 0.81),
		result("setup.md", "configure the daemon", 0.77),
	}}
	gen := &fakeGenerator{deltas: []string{"Install ", "with make."}, text: "Install with make."}
	e := newTestEngine(t, gen, search)

	var events []string
	answer, err := e.Chat(context.Background(), uuid.New(), "how do I install?", Callbacks{
		OnSources: func([]Source) error { events = append(events, "sources"); return nil },
		OnDelta:   func(d string) error { events = append(events, "delta:"+d); return nil },
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if answer.Text != "Install with make." {
		t.Errorf("Text = %q", answer.Text)
	}

	// Sources fire before any delta, deduplicated with best similarity.
	if len(events) == 0 || events[0] != "sources" {
		t.Errorf("events = %v, want sources first", events)
	}
	want := []Source{{Name: "setup.md", Similarity: 0.92}, {Name: "faq.md", Similarity: 0.81}}
	if len(answer.Sources) != len(want) {
		t.Fatalf("Sources = %v, want %v", answer.Sources, want)
	}
	for i := range want {
		if answer.Sources[i] != want[i] {
			t.Errorf("Sources[%d] = %v, want %v", i, answer.Sources[i], want[i])
		}
	}

	// The prompt carries every chunk tagged with its source, and the question.
	for _, fragment := range []string{
		"[Source: setup.md]\ninstall with make",
		"[Source: faq.md]\ncommon problems",
		"[Source: setup.md]\nconfigure the daemon",
		"Question: how do I install?",
	} {
		if !strings.Contains(gen.gotPrompt, fragment) {
			t.Errorf("prompt missing %q:\n%s", fragment, gen.gotPrompt)
		}
	}
	if gen.gotSystem != systemPrompt {
		t.Error("system prompt not passed through")
	}
}

func TestChat_GenerationFailure(t *testing.T) {
	search := &fakeSearcher{results: []knowledge.SearchResult{result("a.md", "text", 0.9)}}
	gen := &fakeGenerator{err: fmt.Errorf("model overloaded")}
	e := newTestEngine(t, gen, search)

	if _, err := e.Chat(context.Background(), uuid.New(), "question", Callbacks{}); !errors.Is(err, ErrGeneration) {
		t.Errorf("Chat() error = %v, want ErrGeneration", err)
	}
}

func TestChat_EmptyGenerationFallsBack(t *testing.T) {
	search := &fakeSearcher{results: []knowledge.SearchResult{result("a.md", "text", 0.9)}}
	gen := &fakeGenerator{text: "   "}
	e := newTestEngine(t, gen, search)

	answer, err := e.Chat(context.Background(), uuid.New(), "question", Callbacks{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer.Text != NoMaterialAnswer {
		t.Errorf("Text = %q, want fallback", answer.Text)
	}
}

func TestChat_DeltaAbortStopsGeneration(t *testing.T) {
	search := &fakeSearcher{results: []knowledge.SearchResult{result("a.md", "text", 0.9)}}
	abort := errors.New("client disconnected")
	gen := &fakeGenerator{deltas: []string{"one", "two"}, text: "one two"}
	e := newTestEngine(t, gen, search)

	_, err := e.Chat(context.Background(), uuid.New(), "question", Callbacks{
		OnDelta: func(string) error { return abort },
	})
	if !errors.Is(err, abort) && !errors.Is(err, ErrGeneration) {
		t.Errorf("Chat() error = %v, want abort propagated", err)
	}
}
