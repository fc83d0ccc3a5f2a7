// Package mcp exposes the retrieval pipeline as a Model Context Protocol
// tool server, so AI clients can query the tender corpus directly.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/core/ports"
)

const (
	serverName    = "tenderbot"
	serverVersion = "1.0.0"
)

// Server wraps an MCP stdio server around the retrieval service.
type Server struct {
	mcp       *server.MCPServer
	retrieval ports.RetrievalService
}

func NewServer(retrieval ports.RetrievalService) *Server {
	s := &Server{
		retrieval: retrieval,
	}

	s.mcp = server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool("tender_search",
		mcp.WithDescription("Search German tender documents. Accepts natural-language questions, DTAD identifiers, and region/year qualifiers (e.g. 'Bayern 2023'). Returns ranked document excerpts with sources."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question or lookup to run against the tender corpus."),
		),
	), s.handleTenderSearch)

	return s
}

// ServeStdio blocks serving JSON-RPC over stdin/stdout until the client
// disconnects or ctx is canceled.
func (s *Server) ServeStdio(ctx context.Context) error {
	slog.Info("mcp_server_starting", "name", serverName, "transport", "stdio")
	return server.ServeStdio(s.mcp, server.WithStdioContextFunc(
		func(context.Context) context.Context { return ctx },
	))
}

func (s *Server) handleTenderSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query cannot be empty"), nil
	}

	start := time.Now()
	result, err := s.retrieval.Retrieve(ctx, query)
	if err != nil {
		slog.Error("mcp_search_failed",
			"query", query,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}

	slog.Info("mcp_search_completed",
		"mode", result.Mode,
		"grounded", result.Grounded,
		"candidates", len(result.Candidates),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return mcp.NewToolResultText(formatResult(query, result)), nil
}

func toolErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return "the query could not be interpreted, rephrase it"
	case domain.IsKind(err, domain.ErrChunkNotFound):
		return "no document matches that identifier"
	case domain.IsKind(err, domain.ErrNoSignal):
		return "no retrieval source is available right now, try again later"
	default:
		return "search failed"
	}
}

// formatResult renders candidates as markdown. Order follows the engine's
// ranking; a not-grounded result keeps its candidates but says so up front.
func formatResult(query string, result *domain.RetrievalResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Results for %q\n\n", query)
	fmt.Fprintf(&b, "Mode: %s", result.Mode)
	if !result.Grounded {
		b.WriteString(" (low confidence: no candidate cleared the grounding threshold)")
	}
	b.WriteString("\n\n")

	if len(result.Candidates) == 0 {
		b.WriteString("No matching documents found.\n")
		return b.String()
	}

	for _, c := range result.Candidates {
		fmt.Fprintf(&b, "### %d. Document %s", c.Rank+1, c.Chunk.SourceDocumentID)
		if c.Chunk.Pages.Start > 0 {
			if c.Chunk.Pages.End > c.Chunk.Pages.Start {
				fmt.Fprintf(&b, " (pages %d-%d)", c.Chunk.Pages.Start, c.Chunk.Pages.End)
			} else {
				fmt.Fprintf(&b, " (page %d)", c.Chunk.Pages.Start)
			}
		}
		b.WriteString("\n")

		if !c.Chunk.DocumentDate.IsZero() {
			fmt.Fprintf(&b, "Date: %s\n", c.Chunk.DocumentDate.UTC().Format("2006-01-02"))
		}
		fmt.Fprintf(&b, "Score: %.3f\n\n", c.FinalScore)

		text := strings.TrimSpace(c.Chunk.Text)
		if text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}
