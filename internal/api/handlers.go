package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wesm/msgsearch/internal/indexer"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/scheduler"
	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
)

// StatsResponse represents the database statistics.
type StatsResponse struct {
	TotalAccounts      int64 `json:"total_accounts"`
	TotalFolders       int64 `json:"total_folders"`
	TotalMessages      int64 `json:"total_messages"`
	TotalThreads       int64 `json:"total_threads"`
	IndexedMessages    int64 `json:"indexed_messages"`
	TotalSavedSearches int64 `json:"total_saved_searches"`
	DatabaseSize       int64 `json:"database_size_bytes"`
}

// SearchResponse is a page of search results.
type SearchResponse struct {
	Query    string                 `json:"query"`
	Tree     string                 `json:"tree"`
	Total    int64                  `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
	Messages []query.MessageSummary `json:"messages"`
}

// CompileResponse shows how a query string translates to SQL.
type CompileResponse struct {
	Query string        `json:"query"`
	Tree  string        `json:"tree"`
	SQL   string        `json:"sql"`
	Args  []interface{} `json:"args"`
}

// AccountInfo represents an account with its unread and flagged counts.
type AccountInfo struct {
	UUID        string `json:"uuid"`
	Email       string `json:"email"`
	Description string `json:"description,omitempty"`
	FolderMode  string `json:"folder_mode"`
	Unread      int64  `json:"unread"`
	Flagged     int64  `json:"flagged"`
}

// AccountCounts holds the unified unread and flagged counts of one account.
type AccountCounts struct {
	UUID    string `json:"uuid"`
	Unread  int64  `json:"unread"`
	Flagged int64  `json:"flagged"`
}

// SavedSearchRequest creates or updates a saved search.
type SavedSearchRequest struct {
	Name     string   `json:"name"`
	Query    string   `json:"query"`
	Accounts []string `json:"accounts"`
}

// SavedSearchResponse represents a stored search.
type SavedSearchResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	Accounts  []string  `json:"accounts"`
	Tree      string    `json:"tree"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndexStatusResponse describes the full-text index state.
type IndexStatusResponse struct {
	State    string     `json:"state"`
	Attempt  int        `json:"attempt,omitempty"`
	Indexed  int64      `json:"indexed,omitempty"`
	Finished *time.Time `json:"finished_at,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool                  `json:"running"`
	Jobs    []scheduler.JobStatus `json:"jobs"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeSearchError maps search, query and store errors to responses.
func (s *Server) writeSearchError(w http.ResponseWriter, err error, op string) {
	var unsupported *search.UnsupportedError
	switch {
	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, "unsupported_condition", err.Error())
	case errors.Is(err, query.ErrUnknownFolder):
		writeError(w, http.StatusBadRequest, "unknown_folder", err.Error())
	case errors.Is(err, store.ErrFullTextUnavailable):
		writeError(w, http.StatusNotImplemented, "fulltext_unavailable", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", op+" failed")
	}
}

func (s *Server) requireEngine(w http.ResponseWriter) bool {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "Query engine not available")
		return false
	}
	return true
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return false
	}
	return true
}

// pageParams reads limit and offset, clamped to the configured limits.
func (s *Server) pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return s.cfg.ClampLimit(limit), max(offset, 0)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	stats, err := s.store.GetStats()
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		TotalAccounts:      stats.AccountCount,
		TotalFolders:       stats.FolderCount,
		TotalMessages:      stats.MessageCount,
		TotalThreads:       stats.ThreadCount,
		IndexedMessages:    stats.IndexedCount,
		TotalSavedSearches: stats.SavedSearchCount,
		DatabaseSize:       stats.DatabaseSize,
	})
}

// handleSearch parses q into a condition tree and runs it. Repeated
// account parameters restrict the search to those account UUIDs.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}
	limit, offset := s.pageParams(r)
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted"))

	tree := search.Parse(q)
	opts := query.Options{
		AccountUUIDs:   r.URL.Query()["account"],
		IncludeDeleted: includeDeleted,
		Limit:          limit,
		Offset:         offset,
	}
	s.runSearch(w, r, q, tree, opts)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, q string, tree search.Node, opts query.Options) {
	total, err := s.engine.Count(r.Context(), tree, opts)
	if err != nil {
		s.writeSearchError(w, err, "search")
		return
	}
	messages, err := s.engine.Search(r.Context(), tree, opts)
	if err != nil {
		s.writeSearchError(w, err, "search")
		return
	}
	if messages == nil {
		messages = []query.MessageSummary{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:    q,
		Tree:     search.Format(tree),
		Total:    total,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
		Messages: messages,
	})
}

// handleCompile returns the tree and SQL for q without running it. Folder
// names are compiled as given, before they are resolved to folder IDs.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	tree := search.Parse(q)
	if tree == nil {
		writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' must contain at least one term")
		return
	}
	compiled, err := search.Compile(tree)
	if err != nil {
		s.writeSearchError(w, err, "compile")
		return
	}
	args := compiled.Args
	if args == nil {
		args = []interface{}{}
	}
	writeJSON(w, http.StatusOK, CompileResponse{
		Query: q,
		Tree:  search.Format(tree),
		SQL:   compiled.SQL,
		Args:  args,
	})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	id, ok := pathID(w, r, "Message ID must be a number")
	if !ok {
		return
	}
	msg, err := s.engine.GetMessage(r.Context(), id)
	if err != nil {
		s.writeSearchError(w, err, "get message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) || !s.requireEngine(w) {
		return
	}
	accounts, err := s.store.ListAccounts()
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list accounts")
		return
	}
	out := make([]AccountInfo, 0, len(accounts))
	for _, a := range accounts {
		counts, err := s.counts(r, a.UUID)
		if err != nil {
			s.writeSearchError(w, err, "count messages")
			return
		}
		out = append(out, AccountInfo{
			UUID:        a.UUID,
			Email:       a.Email,
			Description: a.Description,
			FolderMode:  string(a.FolderMode),
			Unread:      counts.Unread,
			Flagged:     counts.Flagged,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": out})
}

func (s *Server) handleAccountCounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	counts, err := s.counts(r, chi.URLParam(r, "uuid"))
	if err != nil {
		s.writeSearchError(w, err, "count messages")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) counts(r *http.Request, uuid string) (AccountCounts, error) {
	unread, err := s.engine.UnreadCount(r.Context(), uuid)
	if err != nil {
		return AccountCounts{}, err
	}
	flagged, err := s.engine.FlaggedCount(r.Context(), uuid)
	if err != nil {
		return AccountCounts{}, err
	}
	return AccountCounts{UUID: uuid, Unread: unread, Flagged: flagged}, nil
}

func savedSearchResponse(ss *store.SavedSearch) SavedSearchResponse {
	accounts := ss.AccountUUIDs
	if accounts == nil {
		accounts = []string{}
	}
	return SavedSearchResponse{
		ID:        ss.ID,
		Name:      ss.Name,
		Query:     ss.Query,
		Accounts:  accounts,
		Tree:      search.Format(ss.Tree),
		CreatedAt: ss.CreatedAt,
		UpdatedAt: ss.UpdatedAt,
	}
}

func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	searches, err := s.store.ListSavedSearches()
	if err != nil {
		s.writeSearchError(w, err, "list saved searches")
		return
	}
	out := make([]SavedSearchResponse, 0, len(searches))
	for _, ss := range searches {
		out = append(out, savedSearchResponse(ss))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"searches": out})
}

func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := pathID(w, r, "Search ID must be a number")
	if !ok {
		return
	}
	ss, err := s.store.GetSavedSearch(id)
	if err != nil {
		s.writeSearchError(w, err, "get saved search")
		return
	}
	writeJSON(w, http.StatusOK, savedSearchResponse(ss))
}

// decodeSavedSearch reads a request body into a saved search with its tree
// parsed from the query string.
func decodeSavedSearch(w http.ResponseWriter, r *http.Request) (*store.SavedSearch, bool) {
	var req SavedSearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be a JSON saved search")
		return nil, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "Saved search name is required")
		return nil, false
	}
	tree := search.Parse(req.Query)
	if tree == nil {
		writeError(w, http.StatusBadRequest, "missing_query", "Saved search query must contain at least one term")
		return nil, false
	}
	return &store.SavedSearch{
		Name:         req.Name,
		Query:        req.Query,
		AccountUUIDs: req.Accounts,
		Tree:         tree,
	}, true
}

func (s *Server) handleCreateSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	ss, ok := decodeSavedSearch(w, r)
	if !ok {
		return
	}
	if err := s.store.CreateSavedSearch(ss); err != nil {
		if errors.Is(err, store.ErrDuplicateSearch) {
			writeError(w, http.StatusConflict, "duplicate_name", err.Error())
			return
		}
		s.writeSearchError(w, err, "create saved search")
		return
	}
	s.logger.Info("saved search created", "id", ss.ID, "name", ss.Name)
	writeJSON(w, http.StatusCreated, savedSearchResponse(ss))
}

func (s *Server) handleUpdateSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := pathID(w, r, "Search ID must be a number")
	if !ok {
		return
	}
	ss, ok := decodeSavedSearch(w, r)
	if !ok {
		return
	}
	ss.ID = id
	if err := s.store.UpdateSavedSearch(ss); err != nil {
		if errors.Is(err, store.ErrDuplicateSearch) {
			writeError(w, http.StatusConflict, "duplicate_name", err.Error())
			return
		}
		s.writeSearchError(w, err, "update saved search")
		return
	}
	updated, err := s.store.GetSavedSearch(id)
	if err != nil {
		s.writeSearchError(w, err, "get saved search")
		return
	}
	writeJSON(w, http.StatusOK, savedSearchResponse(updated))
}

func (s *Server) handleDeleteSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := pathID(w, r, "Search ID must be a number")
	if !ok {
		return
	}
	if err := s.store.DeleteSavedSearch(id); err != nil {
		s.writeSearchError(w, err, "delete saved search")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunSearch runs a saved search within its stored account scope.
func (s *Server) handleRunSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) || !s.requireEngine(w) {
		return
	}
	id, ok := pathID(w, r, "Search ID must be a number")
	if !ok {
		return
	}
	ss, err := s.store.GetSavedSearch(id)
	if err != nil {
		s.writeSearchError(w, err, "get saved search")
		return
	}
	limit, offset := s.pageParams(r)
	s.runSearch(w, r, ss.Query, ss.Tree, query.Options{
		AccountUUIDs: ss.AccountUUIDs,
		Limit:        limit,
		Offset:       offset,
	})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer_unavailable", "Indexer not available")
		return
	}
	writeJSON(w, http.StatusOK, indexStatus(s.index.State()))
}

func indexStatus(st indexer.State) IndexStatusResponse {
	resp := IndexStatusResponse{State: st.Name()}
	switch st := st.(type) {
	case indexer.Rebuilding:
		resp.Attempt = st.Attempt
	case indexer.Ready:
		resp.Indexed = st.Indexed
		finished := st.Finished
		resp.Finished = &finished
	case indexer.Failed:
		resp.Attempt = st.Attempt
		resp.Error = st.Err
	}
	return resp
}

// handleIndexRebuild starts a background rebuild through the scheduler.
func (s *Server) handleIndexRebuild(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler not available")
		return
	}
	err := s.scheduler.Trigger(indexer.JobName)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"message": "Index rebuild started",
		})
	case errors.Is(err, scheduler.ErrJobRunning):
		writeError(w, http.StatusConflict, "rebuild_in_progress", "An index rebuild is already running")
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, "not_scheduled", "Index rebuild job is not registered")
	default:
		writeError(w, http.StatusServiceUnavailable, "scheduler_stopped", err.Error())
	}
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler not available")
		return
	}
	jobs := s.scheduler.Status()
	if jobs == nil {
		jobs = []scheduler.JobStatus{}
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.scheduler.IsRunning(),
		Jobs:    jobs,
	})
}

func pathID(w http.ResponseWriter, r *http.Request, msg string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", msg)
		return 0, false
	}
	return id, true
}
