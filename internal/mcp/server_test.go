package mcp

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/query/querytest"
	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
	"github.com/wesm/msgsearch/internal/testutil"
	"github.com/wesm/msgsearch/internal/testutil/storetest"
)

// toolHandler is the function signature for MCP tool handler methods.
type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// callToolDirect invokes a handler directly with the given arguments.
func callToolDirect(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

// runTool invokes a handler, asserts no error, and unmarshals the JSON result into T.
func runTool[T any](t *testing.T, name string, fn toolHandler, args map[string]any) T {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, r)), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return out
}

// runToolExpectError invokes a handler and asserts it returns an error result.
func runToolExpectError(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if !r.IsError {
		t.Fatal("expected error result")
	}
	return r
}

func TestSearchMessages(t *testing.T) {
	var gotOpts query.Options
	eng := &querytest.MockEngine{
		SearchFunc: func(_ context.Context, _ search.Node, opts query.Options) ([]query.MessageSummary, error) {
			gotOpts = opts
			return []query.MessageSummary{{ID: 1, Subject: "Hello"}}, nil
		},
		CountFunc: func(context.Context, search.Node, query.Options) (int64, error) { return 7, nil },
	}
	h := &handlers{engine: eng}

	t.Run("valid query", func(t *testing.T) {
		res := runTool[searchResult](t, ToolSearchMessages, h.searchMessages, map[string]any{
			"query":    "from:Alice",
			"accounts": " acct-1, ,acct-2",
			"limit":    float64(5),
		})
		if res.Total != 7 || len(res.Messages) != 1 || res.Messages[0].Subject != "Hello" {
			t.Fatalf("unexpected result: %+v", res)
		}
		if res.Tree != `SENDER CONTAINS "alice"` {
			t.Errorf("tree = %s", res.Tree)
		}
		want := query.Options{AccountUUIDs: []string{"acct-1", "acct-2"}, Limit: 5}
		if diff := cmp.Diff(want, gotOpts); diff != "" {
			t.Errorf("options mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		runToolExpectError(t, ToolSearchMessages, h.searchMessages, map[string]any{})
	})

	t.Run("engine error", func(t *testing.T) {
		failing := &handlers{engine: &querytest.MockEngine{
			CountFunc: func(context.Context, search.Node, query.Options) (int64, error) {
				return 0, store.ErrFullTextUnavailable
			},
		}}
		r := runToolExpectError(t, ToolSearchMessages, failing.searchMessages, map[string]any{"query": "hello"})
		testutil.AssertContainsAll(t, resultText(t, r), "full-text")
	})
}

func TestCompileSearch(t *testing.T) {
	h := &handlers{}

	res := runTool[compileResult](t, ToolCompileSearch, h.compileSearch, map[string]any{"query": "is:flagged OR is:unread"})
	want := compileResult{
		Query: "is:flagged OR is:unread",
		Tree:  `(FLAGGED EQUALS "1" OR READ NOT_EQUALS "1")`,
		SQL:   "(flagged = ?) OR (read != ?)",
		Args:  []interface{}{"1", "1"},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("compile mismatch (-want +got):\n%s", diff)
	}

	runToolExpectError(t, ToolCompileSearch, h.compileSearch, map[string]any{"query": ""})
}

func TestGetMessage(t *testing.T) {
	eng := &querytest.MockEngine{
		Messages: map[int64]*query.MessageDetail{
			42: {MessageSummary: query.MessageSummary{ID: 42, Subject: "Test Message"}, BodyText: "Hello world"},
		},
	}
	h := &handlers{engine: eng}

	t.Run("found", func(t *testing.T) {
		msg := runTool[query.MessageDetail](t, ToolGetMessage, h.getMessage, map[string]any{"id": float64(42)})
		if msg.Subject != "Test Message" || msg.BodyText != "Hello world" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	})

	errorCases := []struct {
		name string
		args map[string]any
	}{
		{"not found", map[string]any{"id": float64(999)}},
		{"missing id", map[string]any{}},
		{"non-integer id", map[string]any{"id": float64(1.9)}},
		{"negative id", map[string]any{"id": float64(-1)}},
		{"overflow id", map[string]any{"id": float64(1e19)}},
		{"string id", map[string]any{"id": "42"}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			runToolExpectError(t, ToolGetMessage, h.getMessage, tt.args)
		})
	}
}

// savedEnv has a real store with two saved searches.
type savedEnv struct {
	*storetest.Fixture
	h      *handlers
	budget int64
}

func newSavedEnv(t *testing.T) *savedEnv {
	t.Helper()
	f := storetest.New(t)
	env := &savedEnv{Fixture: f, h: &handlers{engine: query.NewSQLiteEngine(f.Store), store: f.Store}}
	env.budget = f.NewMessage().WithSubject("Quarterly budget").Create()
	f.NewMessage().WithSubject("Lunch").Flagged().Create()

	for _, q := range []struct{ name, query string }{
		{"Budget", "subject:budget"},
		{"Starred", "is:flagged"},
	} {
		ss := &store.SavedSearch{Name: q.name, Query: q.query, Tree: search.Parse(q.query)}
		testutil.MustNoErr(t, f.Store.CreateSavedSearch(ss), "CreateSavedSearch")
	}
	return env
}

func TestListSavedSearches(t *testing.T) {
	env := newSavedEnv(t)

	list := runTool[[]savedSearchInfo](t, ToolListSavedSearches, env.h.listSavedSearches, nil)
	if len(list) != 2 {
		t.Fatalf("got %d searches, want 2", len(list))
	}
	if list[0].Name != "Budget" || list[0].Tree != `SUBJECT CONTAINS "budget"` {
		t.Errorf("first = %+v", list[0])
	}
	if list[1].Accounts == nil || len(list[1].Accounts) != 0 {
		t.Errorf("accounts = %v, want empty list", list[1].Accounts)
	}
}

func TestRunSavedSearch(t *testing.T) {
	env := newSavedEnv(t)

	t.Run("by id", func(t *testing.T) {
		list := runTool[[]savedSearchInfo](t, ToolListSavedSearches, env.h.listSavedSearches, nil)
		res := runTool[searchResult](t, ToolRunSavedSearch, env.h.runSavedSearch, map[string]any{"id": float64(list[0].ID)})
		if res.Total != 1 || len(res.Messages) != 1 || res.Messages[0].ID != env.budget {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("by name", func(t *testing.T) {
		res := runTool[searchResult](t, ToolRunSavedSearch, env.h.runSavedSearch, map[string]any{"name": "Starred"})
		if res.Total != 1 || res.Messages[0].Subject != "Lunch" {
			t.Errorf("result = %+v", res)
		}
	})

	errorCases := []struct {
		name string
		args map[string]any
	}{
		{"no selector", map[string]any{}},
		{"unknown id", map[string]any{"id": float64(9999)}},
		{"unknown name", map[string]any{"name": "Nope"}},
		{"bad id", map[string]any{"id": float64(0)}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			runToolExpectError(t, ToolRunSavedSearch, env.h.runSavedSearch, tt.args)
		})
	}
}

func TestGetStats(t *testing.T) {
	env := newSavedEnv(t)
	stats := runTool[map[string]int64](t, ToolGetStats, env.h.getStats, nil)
	if stats["messages"] != 2 || stats["saved_searches"] != 2 || stats["accounts"] != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestToolDefinitions(t *testing.T) {
	tools := []struct {
		tool     mcp.Tool
		name     string
		required []string
	}{
		{searchMessagesTool(), ToolSearchMessages, []string{"query"}},
		{compileSearchTool(), ToolCompileSearch, []string{"query"}},
		{getMessageTool(), ToolGetMessage, []string{"id"}},
		{listSavedSearchesTool(), ToolListSavedSearches, nil},
		{runSavedSearchTool(), ToolRunSavedSearch, nil},
		{getStatsTool(), ToolGetStats, nil},
	}
	for _, tt := range tools {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.name {
				t.Errorf("Name = %q, want %q", tt.tool.Name, tt.name)
			}
			if got, want := strings.Join(tt.tool.InputSchema.Required, ","), strings.Join(tt.required, ","); got != want {
				t.Errorf("required = %q, want %q", got, want)
			}
		})
	}
	if NewServer(&querytest.MockEngine{}, nil) == nil {
		t.Error("NewServer returned nil")
	}
}

func TestLimitArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{"missing", map[string]any{}, 20},
		{"valid", map[string]any{"limit": float64(50)}, 50},
		{"zero", map[string]any{"limit": float64(0)}, 0},
		{"negative", map[string]any{"limit": float64(-5)}, 0},
		{"NaN", map[string]any{"limit": math.NaN()}, 0},
		{"over max", map[string]any{"limit": float64(5000)}, maxLimit},
		{"+Inf", map[string]any{"limit": math.Inf(1)}, maxLimit},
		{"string", map[string]any{"limit": "10"}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := limitArg(tt.args, "limit", 20); got != tt.want {
				t.Errorf("limitArg() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSplitAccounts(t *testing.T) {
	if got := splitAccounts(""); got != nil {
		t.Errorf("splitAccounts(\"\") = %v, want nil", got)
	}
	if got := strings.Join(splitAccounts("a, b ,,c"), "|"); got != "a|b|c" {
		t.Errorf("splitAccounts = %s", got)
	}
}
