package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
)

const maxLimit = 1000

type handlers struct {
	engine query.Engine
	store  SearchStore
}

// searchResult is the response of the search tools.
type searchResult struct {
	Query    string                 `json:"query"`
	Tree     string                 `json:"tree"`
	Total    int64                  `json:"total"`
	Messages []query.MessageSummary `json:"messages"`
}

type compileResult struct {
	Query string        `json:"query"`
	Tree  string        `json:"tree"`
	SQL   string        `json:"sql"`
	Args  []interface{} `json:"args"`
}

type savedSearchInfo struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Query    string   `json:"query"`
	Accounts []string `json:"accounts"`
	Tree     string   `json:"tree"`
}

// getIDArg extracts a positive integer ID from the arguments map.
func getIDArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	if v != math.Trunc(v) || v < 1 || v > math.MaxInt64 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return int64(v), nil
}

func splitAccounts(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *handlers) searchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	queryStr, _ := args["query"].(string)
	tree := search.Parse(queryStr)
	if tree == nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	accounts, _ := args["accounts"].(string)

	return h.run(ctx, queryStr, tree, query.Options{
		AccountUUIDs: splitAccounts(accounts),
		Limit:        limitArg(args, "limit", 20),
		Offset:       limitArg(args, "offset", 0),
	})
}

func (h *handlers) run(ctx context.Context, queryStr string, tree search.Node, opts query.Options) (*mcp.CallToolResult, error) {
	total, err := h.engine.Count(ctx, tree, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	messages, err := h.engine.Search(ctx, tree, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if messages == nil {
		messages = []query.MessageSummary{}
	}
	return jsonResult(searchResult{
		Query:    queryStr,
		Tree:     search.Format(tree),
		Total:    total,
		Messages: messages,
	})
}

func (h *handlers) compileSearch(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queryStr, _ := req.GetArguments()["query"].(string)
	tree := search.Parse(queryStr)
	if tree == nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	compiled, err := search.Compile(tree)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compile failed: %v", err)), nil
	}
	args := compiled.Args
	if args == nil {
		args = []interface{}{}
	}
	return jsonResult(compileResult{
		Query: queryStr,
		Tree:  search.Format(tree),
		SQL:   compiled.SQL,
		Args:  args,
	})
}

func (h *handlers) getMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := getIDArg(req.GetArguments(), "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msg, err := h.engine.GetMessage(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("message %d not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get message failed: %v", err)), nil
	}
	return jsonResult(msg)
}

func (h *handlers) listSavedSearches(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	searches, err := h.store.ListSavedSearches()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list saved searches failed: %v", err)), nil
	}
	out := make([]savedSearchInfo, 0, len(searches))
	for _, ss := range searches {
		accounts := ss.AccountUUIDs
		if accounts == nil {
			accounts = []string{}
		}
		out = append(out, savedSearchInfo{
			ID:       ss.ID,
			Name:     ss.Name,
			Query:    ss.Query,
			Accounts: accounts,
			Tree:     search.Format(ss.Tree),
		})
	}
	return jsonResult(out)
}

func (h *handlers) runSavedSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	var ss *store.SavedSearch
	var err error
	if _, hasID := args["id"]; hasID {
		id, idErr := getIDArg(args, "id")
		if idErr != nil {
			return mcp.NewToolResultError(idErr.Error()), nil
		}
		ss, err = h.store.GetSavedSearch(id)
	} else if name, _ := args["name"].(string); name != "" {
		ss, err = h.store.GetSavedSearchByName(name)
	} else {
		return mcp.NewToolResultError("id or name parameter is required"), nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError("saved search not found"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load saved search failed: %v", err)), nil
	}

	return h.run(ctx, ss.Query, ss.Tree, query.Options{
		AccountUUIDs: ss.AccountUUIDs,
		Limit:        limitArg(args, "limit", 20),
		Offset:       limitArg(args, "offset", 0),
	})
}

func (h *handlers) getStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.store.GetStats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get stats failed: %v", err)), nil
	}
	return jsonResult(map[string]int64{
		"accounts":       stats.AccountCount,
		"folders":        stats.FolderCount,
		"messages":       stats.MessageCount,
		"threads":        stats.ThreadCount,
		"indexed":        stats.IndexedCount,
		"saved_searches": stats.SavedSearchCount,
		"database_bytes": stats.DatabaseSize,
	})
}

// limitArg extracts a non-negative integer from the arguments map, capped
// at maxLimit.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
