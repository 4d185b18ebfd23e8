// Package testutil provides shared testing utilities for Knowledge Hub:
// a mock Genkit embedder and a pgvector-enabled PostgreSQL container
// harness for store integration tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockEmbedder implements ai.Embedder for testing.
// It returns deterministic vectors derived from the input text so
// different texts embed differently, and tracks calls for assertions.
type MockEmbedder struct {
	// Dimension of returned vectors. Default 768 when zero.
	Dimension int

	// Err, when set, is returned from every Embed call.
	Err error

	// ReturnEmpty makes Embed return a response with no embeddings.
	ReturnEmpty bool

	// Delay simulates upstream latency; Embed honors ctx cancellation.
	Delay time.Duration

	mu     sync.Mutex
	calls  int
	inputs []string
}

func (m *MockEmbedder) Name() string { return "mock-embedder" }

func (m *MockEmbedder) Register(r api.Registry) {}

func (m *MockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	var text string
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		text = req.Input[0].Content[0].Text
	}

	m.mu.Lock()
	m.calls++
	m.inputs = append(m.inputs, text)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.Err != nil {
		return nil, m.Err
	}
	if m.ReturnEmpty {
		return &ai.EmbedResponse{}, nil
	}

	dim := m.Dimension
	if dim == 0 {
		dim = 768
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: Vector(text, dim)}},
	}, nil
}

// Calls returns the number of Embed invocations so far.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Inputs returns the texts passed to Embed in call order.
func (m *MockEmbedder) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.inputs))
	copy(out, m.inputs)
	return out
}

// Vector derives a deterministic unit-independent vector from text.
// Texts sharing a long prefix produce similar vectors, which is enough
// for similarity-ordering assertions in integration tests.
func Vector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i, r := range text {
		vec[(i+int(r))%dim] += float32(r%31) / 31
	}
	// Avoid the zero vector: cosine distance is undefined for it.
	if text == "" {
		vec[0] = 1
	}
	return vec
}
