package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/semindex/internal/index"
	"github.com/Aman-CERP/semindex/internal/search"
	"github.com/Aman-CERP/semindex/internal/store"
	"github.com/Aman-CERP/semindex/pkg/version"
)

// Tool limits.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Searcher answers text queries. *search.Retriever implements it.
type Searcher interface {
	SearchText(ctx context.Context, query string, k int, filter *store.Filter, hybrid bool) ([]search.Result, error)
}

// StatsSource reports index totals. *index.Writer implements it.
type StatsSource interface {
	Statistics(ctx context.Context) (index.IndexStats, error)
}

// Server serves the search and index_stats tools.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	stats    StatsSource
	rootPath string
	logger   *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

const (
	searchDescription = "Semantic code and documentation search over the indexed tree. " +
		"Combines embedding similarity with keyword matching and returns ranked chunks with file paths and line ranges."
	indexStatsDescription = "Report how many files and chunks are indexed, which embedding model is in use, " +
		"and whether the index is consistent."
)

// NewServer creates a server. stats may be nil, in which case index_stats
// reports only the root path.
func NewServer(searcher Searcher, stats StatsSource, rootPath string) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}

	s := &Server{
		searcher: searcher,
		stats:    stats,
		rootPath: rootPath,
		logger:   slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "semindex", Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "search", Description: searchDescription},
		{Name: "index_stats", Description: indexStatsDescription},
	}
}

// CallTool invokes a tool in-process. search returns markdown and
// index_stats returns *IndexStatsOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		input, err := searchInputFromArgs(args)
		if err != nil {
			return nil, err
		}
		results, err := s.search(ctx, input)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(input.Query, results), nil
	case "index_stats":
		return s.indexStats(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func searchInputFromArgs(args map[string]any) (SearchInput, error) {
	var input SearchInput
	query, ok := args["query"].(string)
	if !ok {
		return input, NewInvalidParamsError("query parameter is required and must be a string")
	}
	input.Query = query
	if l, ok := args["limit"].(float64); ok {
		input.Limit = int(l)
	}
	if lang, ok := args["language"].(string); ok {
		input.Language = lang
	}
	if scope, ok := args["scope"].([]any); ok {
		for _, v := range scope {
			if str, ok := v.(string); ok {
				input.Scope = append(input.Scope, str)
			}
		}
	}
	if v, ok := args["vector_only"].(bool); ok {
		input.VectorOnly = v
	}
	return input, nil
}

func (s *Server) search(ctx context.Context, input SearchInput) ([]search.Result, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	limit := clampLimit(input.Limit, DefaultLimit, 1, MaxLimit)

	var filter *store.Filter
	if input.Language != "" || len(input.Scope) > 0 {
		filter = &store.Filter{Language: input.Language, PathPrefixes: input.Scope}
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", limit))

	results, err := s.searcher.SearchText(ctx, input.Query, limit, filter, !input.VectorOnly)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(results)))
	return results, nil
}

func (s *Server) indexStats(ctx context.Context) (*IndexStatsOutput, error) {
	out := &IndexStatsOutput{RootPath: s.rootPath, Consistent: true}
	if s.stats == nil {
		return out, nil
	}
	st, err := s.stats.Statistics(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	out.FileCount = st.TrackedFiles
	out.ChunkCount = st.TotalChunks
	out.VectorCount = st.StoreEntries
	out.LastIndexed = formatTimestamp(st.LastIndexedAt)
	out.Model = st.Model
	out.Dimensions = st.Dimensions
	out.Consistent = st.StoreEntries == st.TotalChunks
	return out, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "search", Description: searchDescription}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "index_stats", Description: indexStatsDescription}, s.mcpIndexStatsHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", 2))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	results, err := s.search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}
	return nil, out, nil
}

func (s *Server) mcpIndexStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (
	*mcp.CallToolResult,
	*IndexStatsOutput,
	error,
) {
	out, err := s.indexStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server on transport until ctx is canceled. Only "stdio"
// is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
