package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/scanqueue"
)

// ScanRequest is the body of POST /api/scans
type ScanRequest struct {
	Token    string `json:"token"`
	FlightID string `json:"flight_id"`
	Location string `json:"location,omitempty"`
}

// ScanResult is the feedback screen for one scan
type ScanResult struct {
	scanqueue.Outcome
	Color   string `json:"color"`
	Pending int    `json:"pending"`
}

func (s *Server) result(out scanqueue.Outcome) ScanResult {
	return ScanResult{Outcome: out, Color: out.Color(), Pending: s.deps.Scans.PendingCount()}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	out, err := s.deps.Scans.SubmitLive(r.Context(), req.Token, req.FlightID, req.Location)
	if err != nil {
		var se *cloud.ServerError
		if errors.As(err, &se) {
			writeJSON(w, http.StatusBadGateway, struct {
				errorBody
				Outcome ScanResult `json:"outcome"`
			}{errorBody{Error: "GoPass API error", Details: se.Message}, s.result(out)})
			return
		}
		if out.Queued() {
			// Held in memory, not yet on disk; the operator still sees it queued
			s.logger.Error("queued scan not persisted", "token", out.Token, "error", err)
			writeJSON(w, http.StatusOK, s.result(out))
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.result(out))
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": s.deps.Scans.Dismiss()})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	online := s.deps.Link == nil || s.deps.Link.Online()
	report, err := s.deps.Scans.ReplayPending(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"online":  online,
		"report":  report,
		"pending": s.deps.Scans.PendingCount(),
	})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	scans := s.deps.Scans.Pending()
	if scans == nil {
		scans = []scanqueue.PendingScan{}
	}
	resp := map[string]any{"count": len(scans), "scans": scans}
	if out, ok := s.deps.Scans.Awaiting(); ok {
		resp["awaiting"] = s.result(out)
	}
	writeJSON(w, http.StatusOK, resp)
}

// PassCheckRequest is the body of POST /api/passes/check
type PassCheckRequest struct {
	PassNumber string `json:"pass_number"`
	Location   string `json:"location,omitempty"`
}

func (s *Server) handleCheckPass(w http.ResponseWriter, r *http.Request) {
	if s.deps.Passes == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "pass checking not configured"})
		return
	}
	var req PassCheckRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	req.PassNumber = strings.TrimSpace(req.PassNumber)
	if req.PassNumber == "" {
		s.badRequest(w, errors.New("pass_number is required"))
		return
	}
	if req.Location == "" {
		req.Location = s.deps.Config.Terminal.Location
	}

	resp, err := s.deps.Passes.CheckPass(r.Context(), cloud.PassCheckRequest{PassNumber: req.PassNumber, Location: req.Location})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
