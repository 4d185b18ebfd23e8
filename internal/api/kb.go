package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
)

type createKnowledgeBaseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type updateKnowledgeBaseRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
}

func (s *Server) handleListKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListKnowledgeBases(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if list == nil {
		list = []knowledge.KnowledgeBase{}
	}
	writeJSON(w, s.logger, http.StatusOK, list)
}

func (s *Server) handleCreateKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	var req createKnowledgeBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: invalid JSON body: %s", knowledge.ErrValidation, err))
		return
	}

	kb, err := s.store.CreateKnowledgeBase(r.Context(), req.Title, req.Description, req.Icon)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, kb)
}

func (s *Server) handleGetKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	kb, err := s.store.GetKnowledgeBase(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, kb)
}

func (s *Server) handleUpdateKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var req updateKnowledgeBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: invalid JSON body: %s", knowledge.ErrValidation, err))
		return
	}
	if req.Title == nil && req.Description == nil && req.Icon == nil {
		writeError(w, s.logger, fmt.Errorf("%w: no fields to update", knowledge.ErrValidation))
		return
	}

	kb, err := s.store.UpdateKnowledgeBase(r.Context(), id, knowledge.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, kb)
}

func (s *Server) handleDeleteKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if err := s.store.DeleteKnowledgeBase(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
