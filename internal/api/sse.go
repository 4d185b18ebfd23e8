package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/rag"
)

// sseWriter streams chat responses as Server-Sent Events with JSON
// payloads. Event sequence for one chat: "sources" once, "chunk"
// repeatedly with the cumulative answer text, then "done" (or "error").
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not implement http.Flusher")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) writeEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	s.flusher.Flush()
	return nil
}

// WriteSources sends the citation list before any answer text.
func (s *sseWriter) WriteSources(sources []rag.Source) error {
	if sources == nil {
		sources = []rag.Source{}
	}
	return s.writeEvent("sources", map[string]any{"sources": sources})
}

// WriteChunk sends the answer accumulated so far. Clients replace their
// display text instead of appending, which makes reconnect glitches
// self-healing.
func (s *sseWriter) WriteChunk(cumulative string) error {
	return s.writeEvent("chunk", map[string]string{"text": cumulative})
}

// WriteDone closes the stream with the final answer.
func (s *sseWriter) WriteDone(answer rag.Answer) error {
	if answer.Sources == nil {
		answer.Sources = []rag.Source{}
	}
	return s.writeEvent("done", answer)
}

// WriteError reports a mid-stream failure. The HTTP status is already
// 200 by then, so the error travels in-band.
func (s *sseWriter) WriteError(message string) error {
	return s.writeEvent("error", map[string]string{"error": message})
}
