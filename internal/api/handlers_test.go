package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/msgsearch/internal/indexer"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/query/querytest"
	"github.com/wesm/msgsearch/internal/scheduler"
	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
	"github.com/wesm/msgsearch/internal/testutil/storetest"
)

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response (status %d): %v", w.Code, err)
	}
	return v
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// storeEnv serves from a real store and engine.
type storeEnv struct {
	*storetest.Fixture
	srv *Server
}

func newStoreEnv(t *testing.T) *storeEnv {
	t.Helper()
	f := storetest.New(t)
	srv := newServer(t, testConfig(t), Deps{
		Engine: query.NewSQLiteEngine(f.Store),
		Store:  f.Store,
	})
	return &storeEnv{Fixture: f, srv: srv}
}

func TestHandleStats(t *testing.T) {
	env := newStoreEnv(t)
	env.NewMessage().Create()
	env.NewMessage().Create()

	w := serve(env.srv, httptest.NewRequest("GET", "/api/v1/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[StatsResponse](t, w)
	if resp.TotalMessages != 2 || resp.TotalAccounts != 1 || resp.TotalFolders != 1 {
		t.Errorf("stats = %+v", resp)
	}
}

func TestHandleSearch_MockEngine(t *testing.T) {
	engine := &querytest.MockEngine{
		SearchResults: []query.MessageSummary{
			{ID: 1, Subject: "Quarterly budget", Date: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		},
	}
	srv := newServer(t, testConfig(t), Deps{Engine: engine})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/search?q=subject:budget+is:unread&account=acct-1&limit=5&offset=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[SearchResponse](t, w)
	if resp.Total != 1 || len(resp.Messages) != 1 || resp.Messages[0].Subject != "Quarterly budget" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Limit != 5 || resp.Offset != 2 {
		t.Errorf("limit/offset = %d/%d, want 5/2", resp.Limit, resp.Offset)
	}

	want := search.NewBuilder(search.NewCondition(search.FieldSubject, search.Contains, "budget")).
		And(search.NewCondition(search.FieldRead, search.NotEquals, "1")).
		Build()
	if got := resp.Tree; got != search.Format(want) {
		t.Errorf("tree = %s, want %s", got, search.Format(want))
	}
	searches := engine.Searches()
	if len(searches) != 2 {
		t.Fatalf("engine calls = %d, want 2 (count and search)", len(searches))
	}
	if diff := cmp.Diff(want, searches[1]); diff != "" {
		t.Errorf("searched tree mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleSearch_PassesAccountsAndClampsLimit(t *testing.T) {
	var got query.Options
	engine := &querytest.MockEngine{
		SearchFunc: func(_ context.Context, _ search.Node, opts query.Options) ([]query.MessageSummary, error) {
			got = opts
			return nil, nil
		},
	}
	cfg := testConfig(t)
	srv := newServer(t, cfg, Deps{Engine: engine})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/search?q=hello&account=a&account=b&limit=100000&include_deleted=true", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := query.Options{
		AccountUUIDs:   []string{"a", "b"},
		IncludeDeleted: true,
		Limit:          cfg.Search.MaxLimit,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
	if resp := decode[SearchResponse](t, w); resp.Messages == nil {
		t.Error("messages should encode as an empty array")
	}
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	srv := newServer(t, testConfig(t), Deps{Engine: &querytest.MockEngine{}})
	w := serve(srv, httptest.NewRequest("GET", "/api/v1/search?q=+", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if resp := decode[ErrorResponse](t, w); resp.Error != "missing_query" {
		t.Errorf("error = %q, want missing_query", resp.Error)
	}
}

func TestHandleSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unsupported", &search.UnsupportedError{Field: search.FieldRead, Attribute: search.Contains, Reason: "nope"}, http.StatusBadRequest, "unsupported_condition"},
		{"unknown folder", fmt.Errorf("%w %q", query.ErrUnknownFolder, "Nope"), http.StatusBadRequest, "unknown_folder"},
		{"no fts", store.ErrFullTextUnavailable, http.StatusNotImplemented, "fulltext_unavailable"},
		{"unknown account", fmt.Errorf("account x: %w", store.ErrNotFound), http.StatusNotFound, "not_found"},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &querytest.MockEngine{
				CountFunc: func(context.Context, search.Node, query.Options) (int64, error) {
					return 0, tt.err
				},
			}
			srv := newServer(t, testConfig(t), Deps{Engine: engine})
			w := serve(srv, httptest.NewRequest("GET", "/api/v1/search?q=hello", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp := decode[ErrorResponse](t, w); resp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestHandleSearch_RealEngine(t *testing.T) {
	env := newStoreEnv(t)
	archive := env.AddFolder("Archive")
	want := env.NewMessage().WithSubject("Quarterly budget").InFolder(archive).Create()
	env.NewMessage().WithSubject("Quarterly budget").Read().Create()
	env.NewMessage().WithSubject("Lunch").Create()

	w := serve(env.srv, httptest.NewRequest("GET", "/api/v1/search?q=subject:budget+is:unread+in:Archive", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[SearchResponse](t, w)
	if resp.Total != 1 || len(resp.Messages) != 1 || resp.Messages[0].ID != want {
		t.Errorf("response = %+v, want only message %d", resp, want)
	}

	w = serve(env.srv, httptest.NewRequest("GET", "/api/v1/search?q=in:Nowhere", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown folder status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCompile(t *testing.T) {
	srv := newServer(t, testConfig(t), Deps{})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/compile?q=from:Alice+-is:flagged", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[CompileResponse](t, w)
	want := CompileResponse{
		Query: "from:Alice -is:flagged",
		Tree:  `(SENDER CONTAINS "alice" AND NOT (FLAGGED EQUALS "1"))`,
		SQL:   "(sender_list LIKE ?) AND (NOT (flagged = ?))",
		Args:  []interface{}{"%alice%", "1"},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("compile mismatch (-want +got):\n%s", diff)
	}

	w = serve(srv, httptest.NewRequest("GET", "/api/v1/compile?q=", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleGetMessage(t *testing.T) {
	engine := &querytest.MockEngine{
		Messages: map[int64]*query.MessageDetail{
			7: {MessageSummary: query.MessageSummary{ID: 7, Subject: "Hello"}, BodyText: "Body text"},
		},
	}
	srv := newServer(t, testConfig(t), Deps{Engine: engine})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/messages/7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[query.MessageDetail](t, w); got.Subject != "Hello" || got.BodyText != "Body text" {
		t.Errorf("message = %+v", got)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/messages/99", http.StatusNotFound},
		{"/api/v1/messages/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := serve(srv, httptest.NewRequest("GET", tt.path, nil)); w.Code != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestHandleAccounts(t *testing.T) {
	env := newStoreEnv(t)
	env.NewMessage().Create()
	env.NewMessage().Read().Flagged().Create()
	env.NewMessage().Flagged().Create()

	w := serve(env.srv, httptest.NewRequest("GET", "/api/v1/accounts", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[map[string][]AccountInfo](t, w)
	accounts := resp["accounts"]
	if len(accounts) != 1 {
		t.Fatalf("accounts = %d, want 1", len(accounts))
	}
	if a := accounts[0]; a.UUID != "acct-1" || a.Unread != 2 || a.Flagged != 2 {
		t.Errorf("account = %+v, want 2 unread and 2 flagged", a)
	}

	w = serve(env.srv, httptest.NewRequest("GET", "/api/v1/accounts/acct-1/counts", nil))
	if got := decode[AccountCounts](t, w); got != (AccountCounts{UUID: "acct-1", Unread: 2, Flagged: 2}) {
		t.Errorf("counts = %+v", got)
	}

	w = serve(env.srv, httptest.NewRequest("GET", "/api/v1/accounts/missing/counts", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown account status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSavedSearchLifecycle(t *testing.T) {
	env := newStoreEnv(t)
	budget := env.NewMessage().WithSubject("Quarterly budget").Create()
	env.NewMessage().WithSubject("Lunch").Create()

	w := serve(env.srv, jsonRequest("POST", "/api/v1/searches", `{"name":"Budget","query":"subject:budget"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	created := decode[SavedSearchResponse](t, w)
	if created.ID == 0 || created.Tree != `SUBJECT CONTAINS "budget"` {
		t.Errorf("created = %+v", created)
	}
	if len(created.Accounts) != 0 {
		t.Errorf("accounts = %v, want all", created.Accounts)
	}
	base := fmt.Sprintf("/api/v1/searches/%d", created.ID)

	w = serve(env.srv, jsonRequest("POST", "/api/v1/searches", `{"name":"Budget","query":"lunch"}`))
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = serve(env.srv, httptest.NewRequest("GET", "/api/v1/searches", nil))
	list := decode[map[string][]SavedSearchResponse](t, w)["searches"]
	if len(list) != 1 || list[0].Name != "Budget" {
		t.Errorf("list = %+v", list)
	}

	w = serve(env.srv, httptest.NewRequest("GET", base+"/run", nil))
	run := decode[SearchResponse](t, w)
	if run.Total != 1 || len(run.Messages) != 1 || run.Messages[0].ID != budget {
		t.Errorf("run = %+v, want message %d", run, budget)
	}

	w = serve(env.srv, jsonRequest("PUT", base, `{"name":"Lunch","query":"subject:lunch","accounts":["acct-1"]}`))
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	if updated := decode[SavedSearchResponse](t, w); updated.Name != "Lunch" || len(updated.Accounts) != 1 {
		t.Errorf("updated = %+v", updated)
	}
	w = serve(env.srv, httptest.NewRequest("GET", base+"/run", nil))
	if run := decode[SearchResponse](t, w); run.Total != 1 || run.Messages[0].Subject != "Lunch" {
		t.Errorf("run after update = %+v", run)
	}

	if w := serve(env.srv, httptest.NewRequest("DELETE", base, nil)); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := serve(env.srv, httptest.NewRequest("GET", base, nil)); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := serve(env.srv, httptest.NewRequest("DELETE", base, nil)); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSavedSearchValidation(t *testing.T) {
	env := newStoreEnv(t)
	tests := []struct {
		name string
		body string
		code string
	}{
		{"bad json", `{`, "invalid_body"},
		{"missing name", `{"query":"hello"}`, "missing_name"},
		{"empty query", `{"name":"x","query":"  "}`, "missing_query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(env.srv, jsonRequest("POST", "/api/v1/searches", tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if resp := decode[ErrorResponse](t, w); resp.Error != tt.code {
				t.Errorf("error = %q, want %q", resp.Error, tt.code)
			}
		})
	}
	if w := serve(env.srv, jsonRequest("PUT", "/api/v1/searches/999", `{"name":"x","query":"y"}`)); w.Code != http.StatusNotFound {
		t.Errorf("update missing status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleIndexStatus(t *testing.T) {
	finished := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		state indexer.State
		want  IndexStatusResponse
	}{
		{indexer.Idle{}, IndexStatusResponse{State: "idle"}},
		{indexer.Rebuilding{Attempt: 2}, IndexStatusResponse{State: "rebuilding", Attempt: 2}},
		{indexer.Ready{Indexed: 42, Finished: finished}, IndexStatusResponse{State: "ready", Indexed: 42, Finished: &finished}},
		{indexer.Failed{Attempt: 3, Err: "disk full"}, IndexStatusResponse{State: "failed", Attempt: 3, Error: "disk full"}},
	}
	for _, tt := range tests {
		t.Run(tt.state.Name(), func(t *testing.T) {
			srv := newServer(t, testConfig(t), Deps{Index: mockIndex{state: tt.state}})
			w := serve(srv, httptest.NewRequest("GET", "/api/v1/index/status", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if diff := cmp.Diff(tt.want, decode[IndexStatusResponse](t, w)); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleIndexRebuild(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"running", fmt.Errorf("x: %w", scheduler.ErrJobRunning), http.StatusConflict},
		{"not scheduled", fmt.Errorf("x: %w", scheduler.ErrUnknownJob), http.StatusNotFound},
		{"stopped", scheduler.ErrStopped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &mockScheduler{triggerFn: func(string) error { return tt.err }}
			srv := newServer(t, testConfig(t), Deps{Scheduler: sched})
			w := serve(srv, httptest.NewRequest("POST", "/api/v1/index/rebuild", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if len(sched.triggered) != 1 || sched.triggered[0] != indexer.JobName {
				t.Errorf("triggered = %v, want [%s]", sched.triggered, indexer.JobName)
			}
		})
	}
}

func TestHandleIndexRebuild_ManualJob(t *testing.T) {
	ran := make(chan struct{})
	sched := scheduler.New()
	if err := sched.Add(indexer.JobName, "", func(context.Context) error {
		close(ran)
		return nil
	}); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	sched.Start()
	defer sched.Stop()

	srv := newServer(t, testConfig(t), Deps{Scheduler: sched})
	w := serve(srv, httptest.NewRequest("POST", "/api/v1/index/rebuild", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("rebuild job did not run")
	}
}

func TestHandleSchedulerStatus(t *testing.T) {
	sched := &mockScheduler{
		running: true,
		statuses: []scheduler.JobStatus{
			{Name: indexer.JobName, Schedule: "0 3 * * *", NextRun: time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)},
		},
	}
	srv := newServer(t, testConfig(t), Deps{Scheduler: sched})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/scheduler/status", nil))
	resp := decode[SchedulerStatusResponse](t, w)
	if !resp.Running || len(resp.Jobs) != 1 || resp.Jobs[0].Name != indexer.JobName {
		t.Errorf("status = %+v", resp)
	}
}
