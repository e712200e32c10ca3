// Package agent exposes knowledge base search to conversational agents as
// an MCP tool.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/poiesic/docket/retrieval"
)

// Version is the MCP server version.
const Version = "0.1.0"

// ToolName is the name agents call the search tool by.
const ToolName = "search_knowledge"

var (
	// ErrAnswererRequired is returned when no answerer is provided.
	ErrAnswererRequired = errors.New("answerer required")

	// ErrTenantRequired is returned when no tenant is provided.
	ErrTenantRequired = errors.New("tenant required")
)

// Answerer answers knowledge base questions. *retrieval.Gateway implements it.
type Answerer interface {
	Answer(ctx context.Context, q retrieval.Query) (*retrieval.Answer, error)
}

// Server is an MCP server scoped to one tenant.
type Server struct {
	answerer Answerer
	tenantID string
	server   *mcp.Server
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewServer creates an MCP server answering for tenantID.
func NewServer(answerer Answerer, tenantID string, opts ...Option) (*Server, error) {
	if answerer == nil {
		return nil, ErrAnswererRequired
	}
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	s := &Server{
		answerer: answerer,
		tenantID: tenantID,
		server:   mcp.NewServer(&mcp.Implementation{Name: "docket", Version: Version}, nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "agent", "tenant", tenantID)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: ToolName,
		Description: "Search the organization's knowledge base. Returns a short answer when one to three " +
			"documents match, or a list of document names to choose from when many do.",
	}, s.handleSearch)

	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Run serves over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	s.logger.Info("MCP server listening", "addr", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
