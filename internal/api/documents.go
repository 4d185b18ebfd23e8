package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/ingest"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
)

type uploadResponse struct {
	Source string `json:"source"`
	ingest.Result
}

type deleteDocumentResponse struct {
	Source  string `json:"source"`
	Deleted int    `json:"deleted"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	sources, err := s.store.ListSources(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if sources == nil {
		sources = []knowledge.SourceFile{}
	}
	writeJSON(w, s.logger, http.StatusOK, sources)
}

// handleUploadDocument ingests one multipart file ("file" field) into
// the knowledge base and responds once the whole pipeline finishes.
// Clients wanting progress use the SSE-free CLI or poll the documents
// list; the HTTP surface keeps upload synchronous.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	// The knowledge base must exist before we spend embedding calls.
	if _, err := s.store.GetKnowledgeBase(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, s.logger, fmt.Errorf("%w: upload exceeds %d bytes", knowledge.ErrValidation, s.maxUploadBytes))
			return
		}
		writeError(w, s.logger, fmt.Errorf("%w: parsing multipart form: %s", knowledge.ErrValidation, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: missing 'file' field", knowledge.ErrValidation))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, s.logger, fmt.Errorf("reading upload: %w", err))
		return
	}

	result, err := s.ingestor.Ingest(r.Context(), id, ingest.Document{
		Name: header.Filename,
		Data: data,
	}, nil)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, s.logger, http.StatusCreated, uploadResponse{
		Source: header.Filename,
		Result: result,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	source := r.PathValue("source")
	deleted, err := s.store.DeleteChunksBySource(r.Context(), id, source)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, deleteDocumentResponse{
		Source:  source,
		Deleted: deleted,
	})
}
