package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/config"
	"github.com/jetsetgo/gopass-terminal/internal/obs"
	"github.com/jetsetgo/gopass-terminal/internal/printer"
	"github.com/jetsetgo/gopass-terminal/internal/sale"
	"github.com/jetsetgo/gopass-terminal/internal/scanqueue"
)

// PassChecker validates pass numbers at an access point
type PassChecker interface {
	CheckPass(ctx context.Context, req cloud.PassCheckRequest) (*cloud.PassCheckResponse, error)
}

// Link reports the GoPass API connection state
type Link interface {
	Online() bool
	Status() cloud.ConnectionStatus
}

// Deps are the components the API exposes
type Deps struct {
	Config   *config.Config
	Scans    *scanqueue.Manager
	Desk     *sale.Desk
	Passes   PassChecker
	Link     Link
	Printers *printer.Manager
	Jobs     *printer.JobBuffer
	Logs     *obs.LogBuffer
	Metrics  *obs.Metrics
	Logger   *slog.Logger
	Version  string
}

// Server represents the local HTTP API used by the operator UI
type Server struct {
	deps    Deps
	logger  *slog.Logger
	router  chi.Router
	http    *http.Server
	started time.Time
}

// NewServer creates a new HTTP server
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = obs.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = obs.NewMetrics()
	}
	if d.Config == nil {
		d.Config = config.Default()
	}
	s := &Server{
		deps:    d,
		logger:  d.Logger.With("component", "api"),
		router:  chi.NewRouter(),
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Handle("/metrics", s.deps.Metrics.Handler())
	r.Get("/api/logs", s.handleLogs)
	r.Delete("/api/logs", s.handleClearLogs)

	r.Route("/api/scans", func(r chi.Router) {
		r.Post("/", s.handleScan)
		r.Post("/dismiss", s.handleDismiss)
		r.Post("/sync", s.handleSync)
		r.Get("/pending", s.handlePending)
	})
	r.Post("/api/passes/check", s.handleCheckPass)

	r.Route("/api/sale", func(r chi.Router) {
		r.Get("/", s.handleSaleView)
		r.Post("/flight/preset", s.handleSelectPreset)
		r.Post("/flight/verify", s.handleVerifyFlight)
		r.Post("/flight/manual", s.handleManualFlight)
		r.Post("/flight/reset", s.handleResetFlight)
		r.Post("/passengers", s.handleAddPassenger)
		r.Patch("/passengers/{index}", s.handleUpdatePassenger)
		r.Delete("/passengers/{index}", s.handleRemovePassenger)
		r.Post("/submit", s.handleSubmit)
	})
	r.Post("/api/payment/intent", s.handlePaymentIntent)

	r.Get("/api/printers", s.handleListPrinters)
	r.Post("/api/printers/{id}/test", s.handleTestPrint)
	r.Get("/api/print/jobs", s.handlePrintJobs)
	r.Post("/api/print/reprint", s.handleReprint)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address until Shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.deps.Config.Server.Host, s.deps.Config.Server.Port)
	return s.ListenAndServe(addr)
}

// ListenAndServe listens on addr until Shutdown
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("local API listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestID tags every request with a UUID, reusing the caller's when given
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		// The UI polls these constantly
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" || r.URL.Path == "/api/logs" {
			return
		}
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var ve *sale.ValidationError
	var se *cloud.ServerError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, scanqueue.ErrEmptyToken),
		errors.Is(err, scanqueue.ErrNoFlight):
		return http.StatusBadRequest
	case errors.Is(err, sale.ErrNoSuchPassenger),
		errors.Is(err, cloud.ErrFlightNotFound),
		errors.Is(err, printer.ErrPrinterNotFound):
		return http.StatusNotFound
	case errors.Is(err, sale.ErrWrongStep),
		errors.Is(err, sale.ErrNotEligible),
		errors.Is(err, sale.ErrConfirmationRequired),
		errors.Is(err, sale.ErrSubmitInFlight),
		errors.Is(err, scanqueue.ErrAwaitingDismissal),
		errors.Is(err, scanqueue.ErrScanInFlight),
		errors.Is(err, scanqueue.ErrReplayInProgress):
		return http.StatusConflict
	case cloud.IsTransport(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &se):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var ve *sale.ValidationError
	var se *cloud.ServerError
	switch {
	case errors.As(err, &ve):
		body.Error = "validation failed"
		body.Details = ve.Fields
	case errors.As(err, &se):
		body.Error = "GoPass API error"
		body.Details = se.Message
	case cloud.IsTransport(err):
		body.Error = "GoPass API unreachable"
		body.Details = err.Error()
	}

	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, status, body)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// StatusResponse is the agent overview shown in the UI header
type StatusResponse struct {
	Status        string                  `json:"status"`
	Version       string                  `json:"version"`
	TerminalID    string                  `json:"terminal_id"`
	Location      string                  `json:"location"`
	Uptime        string                  `json:"uptime"`
	Cloud         *cloud.ConnectionStatus `json:"cloud,omitempty"`
	PendingScans  int                     `json:"pending_scans"`
	Replaying     bool                    `json:"replaying"`
	PrintersCount int                     `json:"printers_count"`
	Settings      *cloud.PublicSettings   `json:"settings,omitempty"`
}

// settingsSource is implemented by the probe monitor, which refreshes the
// public settings on every probe
type settingsSource interface {
	Settings() cloud.PublicSettings
}

// handleStatus returns agent status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        "running",
		Version:       s.deps.Version,
		TerminalID:    s.deps.Config.Terminal.ID,
		Location:      s.deps.Config.Terminal.Location,
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		PrintersCount: len(s.deps.Config.Printers),
	}
	if s.deps.Link != nil {
		st := s.deps.Link.Status()
		resp.Cloud = &st
		if src, ok := s.deps.Link.(settingsSource); ok {
			settings := src.Settings()
			resp.Settings = &settings
		}
	}
	if s.deps.Scans != nil {
		resp.PendingScans = s.deps.Scans.PendingCount()
		resp.Replaying = s.deps.Scans.Replaying()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogs returns buffered log lines, optionally filtered with
// ?level=warn,error
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"logs": []obs.LogEntry{}})
		return
	}
	var levels []string
	if q := r.URL.Query().Get("level"); q != "" {
		levels = strings.Split(q, ",")
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": s.deps.Logs.Entries(levels)})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs != nil {
		s.deps.Logs.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListPrinters returns configured printers and, with ?probe=1,
// their reachability
func (s *Server) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	if s.deps.Printers == nil {
		writeJSON(w, http.StatusOK, map[string]any{"printers": []printer.Info{}})
		return
	}
	probe := r.URL.Query().Get("probe") == "1"
	writeJSON(w, http.StatusOK, map[string]any{"printers": s.deps.Printers.List(r.Context(), probe)})
}

// handleTestPrint sends a test receipt to a printer
func (s *Server) handleTestPrint(w http.ResponseWriter, r *http.Request) {
	if s.deps.Printers == nil {
		s.writeError(w, r, printer.ErrPrinterNotFound)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Printers.TestPrint(r.Context(), id, s.deps.Config.Terminal.ID); err != nil {
		if errors.Is(err, printer.ErrPrinterNotFound) {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "test print failed", Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Test print sent successfully"})
}

// handlePrintJobs returns recent ticket prints, newest first
func (s *Server) handlePrintJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []printer.JobRecord{}
	if s.deps.Jobs != nil {
		jobs = s.deps.Jobs.Entries()
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}
