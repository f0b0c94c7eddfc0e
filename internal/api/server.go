// Package api serves the local status API: health, tracked processes, presets and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dsqprocess/dsqprocess/internal/health"
	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/orchestrator"
	"github.com/dsqprocess/dsqprocess/internal/presets"
	"github.com/dsqprocess/dsqprocess/internal/procerr"
	"github.com/dsqprocess/dsqprocess/internal/registry"
)

// Monitor is the process monitor exposed by the API
type Monitor interface {
	Start(folder, exeName string, minutes int, opts ...orchestrator.StartOption) (orchestrator.Handle, error)
	Tracked() []registry.Entry
}

// Options configures a Server
type Options struct {
	Addr           string
	Monitor        Monitor
	Health         *health.Check
	Presets        *presets.Store
	Metrics        http.Handler
	DefaultMinutes int
	RateLimit      float64 // requests per second per client, 0 disables limiting
	Burst          int
	Logger         *logging.Logger
}

// Server is the status API
type Server struct {
	opts    Options
	logger  *logging.Logger
	router  *mux.Router
	limiter *Limiter
	http    *http.Server
}

// StartRequest is the body of POST /processes
type StartRequest struct {
	Folder     string `json:"folder"`
	Executable string `json:"executable"`
	Minutes    *int   `json:"minutes,omitempty"`
	Name       string `json:"name,omitempty"`
}

// ProcessesResponse is the body of GET /processes
type ProcessesResponse struct {
	Count     int              `json:"count"`
	Processes []registry.Entry `json:"processes"`
}

// New creates a Server and registers its routes
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}

	s := &Server{
		opts:   opts,
		logger: logger.Component("api"),
		router: mux.NewRouter(),
	}
	if opts.RateLimit > 0 {
		s.limiter = NewLimiter(opts.RateLimit, opts.Burst)
		s.router.Use(s.limiter.Middleware)
	}
	s.router.Use(s.logRequests)
	s.RegisterRoutes(s.router)
	return s
}

// RegisterRoutes registers all API routes on r
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.Health).Methods("GET")
	r.HandleFunc("/processes", s.ListProcesses).Methods("GET")
	r.HandleFunc("/processes", s.StartProcess).Methods("POST")
	r.HandleFunc("/processes/{pid:[0-9]+}", s.GetProcess).Methods("GET")
	r.HandleFunc("/presets", s.ListPresets).Methods("GET")
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics).Methods("GET")
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown is called
func (s *Server) ListenAndServe() error {
	s.http = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("status API listening", logging.Fields{"addr": s.opts.Addr})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Health reports the monitor health; unhealthy answers 503
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
		return
	}
	code := http.StatusOK
	if s.opts.Health.Status() == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, s.opts.Health.Report())
}

// ListProcesses returns the tracked processes
func (s *Server) ListProcesses(w http.ResponseWriter, r *http.Request) {
	entries := s.opts.Monitor.Tracked()
	if entries == nil {
		entries = []registry.Entry{}
	}
	writeJSON(w, http.StatusOK, ProcessesResponse{Count: len(entries), Processes: entries})
}

// GetProcess returns one tracked process by PID
func (s *Server) GetProcess(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(mux.Vars(r)["pid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pid")
		return
	}
	for _, e := range s.opts.Monitor.Tracked() {
		if e.PID == pid {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeError(w, http.StatusNotFound, "process not tracked")
}

// StartProcess places and launches a new fake process
func (s *Server) StartProcess(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	minutes := s.opts.DefaultMinutes
	if req.Minutes != nil {
		minutes = *req.Minutes
	}

	h, err := s.opts.Monitor.Start(req.Folder, req.Executable, minutes, orchestrator.WithDisplayName(req.Name))
	if err != nil {
		s.logger.Warn("start request failed", logging.Fields{"executable": req.Executable, "err": err})
		writeError(w, statusFor(err), procerr.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

// ListPresets returns official and custom presets, filtered by ?q=
func (s *Server) ListPresets(w http.ResponseWriter, r *http.Request) {
	if s.opts.Presets == nil {
		writeJSON(w, http.StatusOK, []presets.Preset{})
		return
	}
	list := presets.Filter(s.opts.Presets.Load(), r.URL.Query().Get("q"))
	if list == nil {
		list = []presets.Preset{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", logging.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		})
	})
}

func statusFor(err error) int {
	switch procerr.KindOf(err) {
	case procerr.KindInvalidInput:
		return http.StatusBadRequest
	case procerr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
