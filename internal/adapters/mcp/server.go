package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
	"github.com/docuquery/retrieval-engine/internal/core/ports"
)

const serverVersion = "1.0.0"

// Server exposes the retrieval engine as MCP tools over stdio so agent
// runtimes can call it without the HTTP surface.
type Server struct {
	retriever ports.DocumentRetriever
	usage     ports.UsageReporter
	defaults  domain.RetrievalOptions
	logger    *slog.Logger
}

func NewServer(
	retriever ports.DocumentRetriever,
	usage ports.UsageReporter,
	defaults domain.RetrievalOptions,
	logger *slog.Logger,
) *Server {
	if defaults.TopKInitial <= 0 || defaults.TopKFinal <= 0 {
		defaults = domain.DefaultRetrievalOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		retriever: retriever,
		usage:     usage,
		defaults:  defaults,
		logger:    logger,
	}
}

// ServeStdio blocks until stdin closes or ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	mcpServer := server.NewMCPServer("docuquery-retrieval", serverVersion,
		server.WithToolCapabilities(false),
	)

	mcpServer.AddTool(
		mcp.NewTool("retrieve",
			mcp.WithDescription("Retrieve document chunks relevant to a question, with adaptive multihop and hypothetical-passage strategies."),
			mcp.WithString("question", mcp.Required(), mcp.Description("The natural-language question to retrieve context for.")),
			mcp.WithString("document_id", mcp.Description("Restrict search to one document.")),
			mcp.WithString("section", mcp.Description("Restrict search to one section subtree.")),
			mcp.WithNumber("top_k", mcp.Description("Maximum chunks to return.")),
		),
		s.handleRetrieve,
	)
	mcpServer.AddTool(
		mcp.NewTool("usage_stats",
			mcp.WithDescription("Report cross-query usage counters: strategy split, hyde activation and fallback rates."),
		),
		s.handleUsageStats,
	)

	return server.ServeStdio(mcpServer, server.WithStdioContextFunc(func(context.Context) context.Context {
		return ctx
	}))
}

func (s *Server) handleRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	scope := domain.SearchScope{
		DocumentID: request.GetString("document_id", ""),
		Section:    request.GetString("section", ""),
	}

	opts := s.defaults
	if topK := request.GetInt("top_k", 0); topK > 0 {
		opts.TopKFinal = topK
		if opts.TopKFinal > opts.TopKInitial {
			opts.TopKInitial = opts.TopKFinal
		}
	}

	result, err := s.retriever.Retrieve(ctx, question, scope, opts)
	if err != nil {
		s.logger.Warn("mcp_retrieve_failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal retrieval result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) handleUsageStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(s.usage.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal usage snapshot: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}
