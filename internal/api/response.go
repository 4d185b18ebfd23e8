package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/embedding"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/ingest"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/rag"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("writing response", "error", err)
	}
}

// writeError maps domain sentinel errors to HTTP status codes. Client
// mistakes are 4xx with the error message; upstream AI failures are
// 502; everything else is an opaque 500 so internals do not leak.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("internal error", "error", err)
		msg = "internal server error"
	} else {
		logger.Debug("request failed", "status", status, "error", err)
	}

	writeJSON(w, logger, status, errorBody{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, knowledge.ErrValidation),
		errors.Is(err, ingest.ErrEmptyDocument),
		errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, embedding.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, knowledge.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, embedding.ErrUnavailable),
		errors.Is(err, embedding.ErrDimensionMismatch),
		errors.Is(err, ingest.ErrNoChunksEmbedded),
		errors.Is(err, rag.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// pathID extracts and parses the {id} path value as a UUID.
// A malformed ID is a client error, not a 500.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid knowledge base ID %q", knowledge.ErrValidation, r.PathValue("id"))
	}
	return id, nil
}
