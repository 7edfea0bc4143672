// Package mcp exposes message search as Model Context Protocol tools served
// over stdio.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/store"
)

// Tool name constants.
const (
	ToolSearchMessages    = "search_messages"
	ToolCompileSearch     = "compile_search"
	ToolGetMessage        = "get_message"
	ToolListSavedSearches = "list_saved_searches"
	ToolRunSavedSearch    = "run_saved_search"
	ToolGetStats          = "get_stats"
)

// SearchStore defines the saved-search and statistics operations the tools
// need. *store.Store implements it.
type SearchStore interface {
	GetStats() (*store.Stats, error)
	ListSavedSearches() ([]*store.SavedSearch, error)
	GetSavedSearch(id int64) (*store.SavedSearch, error)
	GetSavedSearchByName(name string) (*store.SavedSearch, error)
}

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

func withOffset() mcp.ToolOption {
	return mcp.WithNumber("offset",
		mcp.Description("Number of results to skip for pagination (default 0)"),
	)
}

// NewServer builds the MCP server with every tool registered.
func NewServer(engine query.Engine, st SearchStore) *server.MCPServer {
	s := server.NewMCPServer(
		"msgsearch",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := &handlers{engine: engine, store: st}

	s.AddTool(searchMessagesTool(), h.searchMessages)
	s.AddTool(compileSearchTool(), h.compileSearch)
	s.AddTool(getMessageTool(), h.getMessage)
	s.AddTool(listSavedSearchesTool(), h.listSavedSearches)
	s.AddTool(runSavedSearchTool(), h.runSavedSearch)
	s.AddTool(getStatsTool(), h.getStats)
	return s
}

// Serve serves the tools over stdio. It blocks until stdin is closed or the
// context is cancelled.
func Serve(ctx context.Context, engine query.Engine, st SearchStore) error {
	stdio := server.NewStdioServer(NewServer(engine, st))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func searchMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMessages,
		mcp.WithDescription("Search mail using query syntax. Supports from:, to:, cc:, subject:, in:<folder>, is:unread, is:flagged, has:attachment, a leading - to negate, OR between terms, and free text or \"quoted phrases\" matched against message contents."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query (e.g. 'from:alice subject:meeting is:unread')"),
		),
		mcp.WithString("accounts",
			mcp.Description("Comma-separated account UUIDs to search (default all)"),
		),
		withLimit("20"),
		withOffset(),
	)
}

func compileSearchTool() mcp.Tool {
	return mcp.NewTool(ToolCompileSearch,
		mcp.WithDescription("Show the condition tree and SQL WHERE clause a search query compiles to, without running it."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query to compile"),
		),
	)
}

func getMessageTool() mcp.Tool {
	return mcp.NewTool(ToolGetMessage,
		mcp.WithDescription("Get full message details including recipients, body text and attachment metadata by message ID."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Message ID"),
		),
	)
}

func listSavedSearchesTool() mcp.Tool {
	return mcp.NewTool(ToolListSavedSearches,
		mcp.WithDescription("List saved searches with their queries, account scope and condition trees."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func runSavedSearchTool() mcp.Tool {
	return mcp.NewTool(ToolRunSavedSearch,
		mcp.WithDescription("Run a saved search by ID or name within its stored account scope."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("id",
			mcp.Description("Saved search ID"),
		),
		mcp.WithString("name",
			mcp.Description("Saved search name (used when id is not given)"),
		),
		withLimit("20"),
		withOffset(),
	)
}

func getStatsTool() mcp.Tool {
	return mcp.NewTool(ToolGetStats,
		mcp.WithDescription("Get database overview: accounts, folders, messages, threads, indexed messages and saved searches."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
