// Package mcp exposes the pathway engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/care-pathway-engine/internal/domain"
)

// Classifier runs stage classification alone.
type Classifier interface {
	Classify(ctx context.Context, req *domain.EvaluationRequest) (domain.StageResult, error)
}

// CatalogLister lists the task catalog.
type CatalogLister interface {
	Summaries() []domain.DefinitionSummary
}

// Dependencies are the services behind the tools. Snapshots and Source are
// optional: without Snapshots the history tool reports an error and without
// Source evaluate_contact is not registered.
type Dependencies struct {
	Evaluator  domain.PathwayEvaluator
	Classifier Classifier
	Catalog    CatalogLister
	Snapshots  domain.SnapshotStore
	Source     domain.ReportSource
}

// Server wraps the SDK server and its tool handlers.
type Server struct {
	mcpServer *mcp.Server
	deps      Dependencies
	logger    *logrus.Logger
	tools     []string
}

// NewServer creates the MCP server and registers every tool.
func NewServer(info *mcp.Implementation, deps Dependencies, logger *logrus.Logger) (*Server, error) {
	if deps.Evaluator == nil || deps.Classifier == nil || deps.Catalog == nil {
		return nil, errors.New("evaluator, classifier and catalog are required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		mcpServer: mcp.NewServer(info, nil),
		deps:      deps,
		logger:    logger,
	}

	for _, def := range s.toolDefinitions() {
		s.mcpServer.AddTool(def.tool, def.handler)
		s.tools = append(s.tools, def.tool.Name)
		logger.WithField("tool_name", def.tool.Name).Debug("Registered MCP tool")
	}

	logger.WithField("tool_count", len(s.tools)).Info("Registered MCP tools")
	return s, nil
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run serves over stdio until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server stopped: %w", err)
	}
	return nil
}

// Call dispatches a tool by name without a transport.
func (s *Server) Call(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	for _, def := range s.toolDefinitions() {
		if def.tool.Name == name {
			return def.handler(ctx, &mcp.CallToolRequest{
				Params: &mcp.CallToolParams{Name: name, Arguments: arguments},
			})
		}
	}
	return nil, fmt.Errorf("%w: tool %q", domain.ErrNotFound, name)
}
