package api

import (
	"net/http"

	"github.com/poiesic/docket/retrieval"
)

type searchRequest struct {
	Query           string `json:"query"`
	KnowledgeBaseID string `json:"knowledgeBaseId"`
}

type sourceResponse struct {
	DisplayName string  `json:"displayName"`
	Score       float32 `json:"score"`
	Chunks      int     `json:"chunks"`
}

type searchResponse struct {
	Class     string           `json:"class"`
	Reply     string           `json:"reply"`
	Answered  bool             `json:"answered"`
	Sources   []sourceResponse `json:"sources"`
	Names     []string         `json:"names,omitempty"`
	Truncated bool             `json:"truncated,omitempty"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	answer, err := s.sys.Retrieval().Answer(r.Context(), retrieval.Query{
		Text:            req.Query,
		TenantID:        tenant(r),
		KnowledgeBaseID: req.KnowledgeBaseID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSearchResponse(answer))
}

func newSearchResponse(answer *retrieval.Answer) searchResponse {
	p := answer.Payload
	resp := searchResponse{
		Class:     string(p.Class),
		Reply:     answer.Reply,
		Answered:  answer.Answered,
		Sources:   make([]sourceResponse, 0, len(p.Sources)),
		Names:     p.Names,
		Truncated: p.Truncated,
	}
	for _, src := range p.Sources {
		resp.Sources = append(resp.Sources, sourceResponse{
			DisplayName: src.DisplayName,
			Score:       src.Score,
			Chunks:      len(src.Chunks),
		})
	}
	return resp
}
