package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/docket/core"
)

type knowledgeBaseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type knowledgeBaseResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Namespace   string    `json:"namespace"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newKnowledgeBaseResponse(kb *core.KnowledgeBase) knowledgeBaseResponse {
	return knowledgeBaseResponse{
		ID:          kb.ID,
		Name:        kb.Name,
		Description: kb.Description,
		Namespace:   kb.Namespace,
		CreatedAt:   kb.CreatedAt,
		UpdatedAt:   kb.UpdatedAt,
	}
}

func (s *Server) createKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	var req knowledgeBaseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kb, err := s.sys.KnowledgeBases().CreateKnowledgeBase(r.Context(), tenant(r), req.Name, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newKnowledgeBaseResponse(kb))
}

func (s *Server) listKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	kbs, err := s.sys.KnowledgeBases().ListKnowledgeBases(r.Context(), tenant(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]knowledgeBaseResponse, 0, len(kbs))
	for _, kb := range kbs {
		resp = append(resp, newKnowledgeBaseResponse(kb))
	}
	writeJSON(w, http.StatusOK, map[string]any{"knowledgeBases": resp})
}

func (s *Server) getKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	kb, err := s.sys.KnowledgeBases().GetKnowledgeBase(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newKnowledgeBaseResponse(kb))
}

func (s *Server) updateKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	var req knowledgeBaseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kb, err := s.sys.KnowledgeBases().UpdateKnowledgeBase(r.Context(), tenant(r), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newKnowledgeBaseResponse(kb))
}

func (s *Server) deleteKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	dropped, err := s.sys.KnowledgeBases().DeleteKnowledgeBase(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedChunks": dropped})
}
