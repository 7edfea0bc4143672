// Package api provides the HTTP API server for msgsearch.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/wesm/msgsearch/internal/config"
	"github.com/wesm/msgsearch/internal/indexer"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/scheduler"
	"github.com/wesm/msgsearch/internal/store"
)

// SearchStore defines the store operations the API needs beyond querying.
// *store.Store implements it.
type SearchStore interface {
	GetStats() (*store.Stats, error)
	ListAccounts() ([]*store.Account, error)
	ListSavedSearches() ([]*store.SavedSearch, error)
	GetSavedSearch(id int64) (*store.SavedSearch, error)
	CreateSavedSearch(ss *store.SavedSearch) error
	UpdateSavedSearch(ss *store.SavedSearch) error
	DeleteSavedSearch(id int64) error
}

// IndexStatus reports the full-text index state.
type IndexStatus interface {
	State() indexer.State
}

// JobScheduler defines the scheduler operations the API needs.
type JobScheduler interface {
	Trigger(name string) error
	Status() []scheduler.JobStatus
	IsRunning() bool
}

// Deps are the components the server serves from. Any of them may be nil;
// the routes that need a missing one answer 503.
type Deps struct {
	Engine    query.Engine
	Store     SearchStore
	Index     IndexStatus
	Scheduler JobScheduler
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	engine      query.Engine
	store       SearchStore
	index       IndexStatus
	scheduler   JobScheduler
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		engine:    deps.Engine,
		store:     deps.Store,
		index:     deps.Index,
		scheduler: deps.Scheduler,
		logger:    logger,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS is disabled when no origins are configured.
	r.Use(CORSMiddleware(CORSConfig{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         86400,
	}))

	rps, burst := s.cfg.Server.RateLimitPerSec, s.cfg.Server.RateLimitBurst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	s.rateLimiter = NewRateLimiter(rps, burst)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/stats", s.handleStats)

		r.Get("/search", s.handleSearch)
		r.Get("/compile", s.handleCompile)
		r.Get("/messages/{id}", s.handleGetMessage)

		r.Get("/accounts", s.handleListAccounts)
		r.Get("/accounts/{uuid}/counts", s.handleAccountCounts)

		r.Route("/searches", func(r chi.Router) {
			r.Get("/", s.handleListSearches)
			r.Post("/", s.handleCreateSearch)
			r.Get("/{id}", s.handleGetSearch)
			r.Put("/{id}", s.handleUpdateSearch)
			r.Delete("/{id}", s.handleDeleteSearch)
			r.Get("/{id}/run", s.handleRunSearch)
		})

		r.Get("/index/status", s.handleIndexStatus)
		r.Post("/index/rebuild", s.handleIndexRebuild)

		r.Get("/scheduler/status", s.handleSchedulerStatus)
	})

	return r
}

// Start begins listening for HTTP requests. It refuses to start when the
// bind address is exposed without an API key.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key from the Authorization or X-API-Key
// header. It is a no-op when no key is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		key = strings.TrimPrefix(key, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
