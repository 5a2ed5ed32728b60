package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/sale"
)

// PresetRequest selects one of today's flights
type PresetRequest struct {
	FlightID    string  `json:"flight_id"`
	DisplayText string  `json:"display_text"`
	Price       float64 `json:"price,omitempty"`
}

// FlightQuery is a flight number and date typed by the operator
type FlightQuery struct {
	FlightNumber string `json:"flight_number"`
	FlightDate   string `json:"flight_date"`
	Domestic     bool   `json:"domestic,omitempty"`
}

// PassengerPatch edits any subset of a passenger row
type PassengerPatch struct {
	Name    *string `json:"name,omitempty"`
	DocNum  *string `json:"doc_num,omitempty"`
	DocType *string `json:"doc_type,omitempty"`
}

func (s *Server) viewOrError(w http.ResponseWriter, r *http.Request, v sale.DeskView, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSaleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Desk.View())
}

func (s *Server) handleSelectPreset(w http.ResponseWriter, r *http.Request) {
	var req PresetRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	v, err := s.deps.Desk.SelectFlight(sale.PresetFlight{
		ID:          req.FlightID,
		DisplayText: req.DisplayText,
		Price:       decimal.NewFromFloat(req.Price),
	})
	s.viewOrError(w, r, v, err)
}

func (s *Server) handleVerifyFlight(w http.ResponseWriter, r *http.Request) {
	var req FlightQuery
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	v, err := s.deps.Desk.VerifyFlight(r.Context(), req.FlightNumber, req.FlightDate)
	if errors.Is(err, cloud.ErrFlightNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":           "flight not found",
			"manual_override": true,
		})
		return
	}
	s.viewOrError(w, r, v, err)
}

func (s *Server) handleManualFlight(w http.ResponseWriter, r *http.Request) {
	var req FlightQuery
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	v, err := s.deps.Desk.SelectManual(req.FlightNumber, req.FlightDate, req.Domestic)
	s.viewOrError(w, r, v, err)
}

func (s *Server) handleResetFlight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(w, err)
		return
	}
	v, err := s.deps.Desk.ResetFlight(req.Confirmed)
	s.viewOrError(w, r, v, err)
}

func (s *Server) handleAddPassenger(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Desk.AddPassenger()
	s.viewOrError(w, r, v, err)
}

func passengerIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, errors.New("passenger index must be an integer")
	}
	return i, nil
}

func (s *Server) handleUpdatePassenger(w http.ResponseWriter, r *http.Request) {
	i, err := passengerIndex(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	var patch PassengerPatch
	if err := decodeBody(w, r, &patch); err != nil {
		s.badRequest(w, err)
		return
	}

	var edits []sale.PassengerEdit
	for _, f := range []struct {
		field sale.Field
		value *string
	}{
		{sale.FieldName, patch.Name},
		{sale.FieldDocumentNumber, patch.DocNum},
		{sale.FieldDocumentType, patch.DocType},
	} {
		if f.value != nil {
			edits = append(edits, sale.PassengerEdit{Field: f.field, Value: *f.value})
		}
	}

	v, err := s.deps.Desk.PatchPassenger(i, edits...)
	var ve *sale.ValidationError
	if errors.As(err, &ve) {
		// Nothing was applied; the unchanged desk lets the UI re-render
		writeJSON(w, http.StatusBadRequest, struct {
			errorBody
			Desk sale.DeskView `json:"desk"`
		}{errorBody{Error: "validation failed", Details: ve.Fields}, v})
		return
	}
	s.viewOrError(w, r, v, err)
}

func (s *Server) handleRemovePassenger(w http.ResponseWriter, r *http.Request) {
	i, err := passengerIndex(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	v, err := s.deps.Desk.RemovePassenger(i)
	s.viewOrError(w, r, v, err)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Desk.Submit(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"desk":   s.deps.Desk.View(),
	})
}

func (s *Server) handlePaymentIntent(w http.ResponseWriter, r *http.Request) {
	secret, err := s.deps.Desk.PaymentIntent(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"clientSecret": secret})
}

func (s *Server) handleReprint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PDFURL string `json:"pdf_url"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if req.PDFURL == "" {
		s.badRequest(w, errors.New("pdf_url is required"))
		return
	}
	job, err := s.deps.Desk.Reprint(r.Context(), req.PDFURL)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, struct {
			errorBody
			Job any `json:"job,omitempty"`
		}{errorBody{Error: "reprint failed", Details: err.Error()}, job})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}
