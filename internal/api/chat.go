package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/rag"
)

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat streams a grounded answer over SSE. Validation failures
// before the stream opens map to normal HTTP errors; once streaming has
// begun, failures travel as an in-band "error" event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: invalid JSON body: %s", knowledge.ErrValidation, err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, s.logger, fmt.Errorf("%w: message is required", knowledge.ErrValidation))
		return
	}

	// Resolve the knowledge base before committing to the stream so an
	// unknown ID is a clean 404.
	if _, err := s.store.GetKnowledgeBase(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}

	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	// The engine emits deltas; the wire protocol carries cumulative
	// text so clients replace rather than append.
	var cumulative strings.Builder

	answer, err := s.chatter.Chat(r.Context(), id, req.Message, rag.Callbacks{
		OnSources: func(sources []rag.Source) error {
			return stream.WriteSources(sources)
		},
		OnDelta: func(delta string) error {
			cumulative.WriteString(delta)
			return stream.WriteChunk(cumulative.String())
		},
	})
	if err != nil {
		s.logger.Error("chat stream failed", "knowledge_base_id", id, "error", err)
		_ = stream.WriteError("answer generation failed")
		return
	}

	if err := stream.WriteDone(answer); err != nil {
		s.logger.Debug("closing chat stream", "error", err)
	}
}
