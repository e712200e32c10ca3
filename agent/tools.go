package agent

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/poiesic/docket/retrieval"
)

// SearchInput is the input schema of the search tool.
type SearchInput struct {
	Query           string `json:"query" jsonschema:"the question to answer from the knowledge base"`
	KnowledgeBaseID string `json:"knowledge_base_id,omitempty" jsonschema:"restrict the search to one knowledge base"`
}

// SearchOutput is the output schema of the search tool.
type SearchOutput struct {
	Reply     string   `json:"reply"`
	Answered  bool     `json:"answered"`
	Class     string   `json:"class"`
	Documents []string `json:"documents,omitempty"`
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	answer, err := s.answerer.Answer(ctx, retrieval.Query{
		Text:            input.Query,
		TenantID:        s.tenantID,
		KnowledgeBaseID: input.KnowledgeBaseID,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{
		Reply:    answer.Reply,
		Answered: answer.Answered,
		Class:    string(answer.Payload.Class),
	}
	if answer.Payload.Class == retrieval.ClassMany {
		out.Documents = answer.Payload.Names
	} else {
		for _, src := range answer.Payload.Sources {
			out.Documents = append(out.Documents, src.DisplayName)
		}
	}

	s.logger.Debug("search_knowledge", "class", out.Class, "answered", out.Answered)
	return nil, out, nil
}
