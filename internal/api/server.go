// Package api is the REST layer in front of the bug and developer
// controllers. Wire field names follow the web client (camelCase, `_id`).
package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/ai"
	"github.com/steveyegge/bugtracker/internal/developers"
	"github.com/steveyegge/bugtracker/internal/metrics"
	"github.com/steveyegge/bugtracker/internal/pageanalysis"
	"github.com/steveyegge/bugtracker/internal/tracker"
)

// DefaultMaxBodyBytes bounds request bodies, screenshots included
const DefaultMaxBodyBytes = 10 << 20

// Pinger is satisfied by storage backends
type Pinger interface {
	Ping(ctx context.Context) error
}

// AIStatus is satisfied by *ai.Client
type AIStatus interface {
	Model() string
	CircuitState() ai.CircuitState
	HealthCheck(ctx context.Context) error
}

// Config wires a Server
type Config struct {
	Tracker    *tracker.Service
	Developers *developers.Service
	Analyzer   *pageanalysis.Analyzer
	Store      Pinger
	AI         AIStatus // Optional; nil reports AI as disabled
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	UploadsDir    string
	MaxBodyBytes  int64
	AllowedOrigin string
}

// Server serves the bugtracker API
type Server struct {
	tracker    *tracker.Service
	developers *developers.Service
	analyzer   *pageanalysis.Analyzer
	store      Pinger
	ai         AIStatus
	metrics    *metrics.Metrics
	logger     *zap.Logger

	uploadsDir    string
	maxBodyBytes  int64
	allowedOrigin string
}

// New creates a Server
func New(cfg Config) (*Server, error) {
	if cfg.Tracker == nil || cfg.Developers == nil || cfg.Analyzer == nil {
		return nil, errors.New("tracker, developers and analyzer are required")
	}
	if cfg.UploadsDir == "" {
		return nil, errors.New("uploads dir is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	origin := cfg.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	return &Server{
		tracker:       cfg.Tracker,
		developers:    cfg.Developers,
		analyzer:      cfg.Analyzer,
		store:         cfg.Store,
		ai:            cfg.AI,
		metrics:       cfg.Metrics,
		logger:        logger.Named("api"),
		uploadsDir:    cfg.UploadsDir,
		maxBodyBytes:  maxBody,
		allowedOrigin: origin,
	}, nil
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /api/bugs", s.handleReport)
	mux.HandleFunc("GET /api/bugs", s.handleListBugs)
	mux.HandleFunc("GET /api/bugs/{id}", s.handleGetBug)
	mux.HandleFunc("GET /api/bugs/{id}/events", s.handleBugEvents)
	mux.HandleFunc("PATCH /api/bugs/{id}/severity", s.handleSetSeverity)
	mux.HandleFunc("PUT /api/bugs/{id}/resolve", s.handleResolve)

	mux.HandleFunc("POST /api/developers", s.handleCreateDeveloper)
	mux.HandleFunc("GET /api/developers", s.handleListDevelopers)
	// /email/{email} and /{id}/bugs overlap at /email/bugs, which ServeMux
	// refuses to register, so both go through one pattern.
	mux.HandleFunc("GET /api/developers/{first}/{second}", s.handleDeveloperLookup)

	mux.HandleFunc("POST /api/ai/analyze", s.handleAnalyze)

	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(noDirFS{http.Dir(s.uploadsDir)})))

	var h http.Handler = mux
	h = s.bodyLimit(h)
	h = s.cors(h)
	h = s.observe(h)
	h = s.recovery(h)
	return h
}

// Run serves on addr until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Bug Tracker API is running")
}

type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	AI      string `json:"ai"`
	Model   string `json:"model,omitempty"`
	AIError string `json:"aiError,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Storage: "ok", AI: "disabled"}
	code := http.StatusOK

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Storage = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if s.ai != nil {
		resp.AI = s.ai.CircuitState().String()
		resp.Model = s.ai.Model()
		if err := s.ai.HealthCheck(r.Context()); err != nil {
			resp.AIError = err.Error()
			if code == http.StatusOK {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, code, resp)
}

// noDirFS hides directory listings under /uploads
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
