// Package sale implements the point-of-sale checkout: a pure Session value
// that moves through flight selection, passenger entry and submission, and
// the Desk controller that drives it against the GoPass API and the ticket
// printer.
package sale

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
)

// Step is the checkout stage
type Step int

const (
	SelectingFlight Step = iota
	EnteringPassengers
	Submitting
	Completed
)

func (s Step) String() string {
	switch s {
	case SelectingFlight:
		return "selecting_flight"
	case EnteringPassengers:
		return "entering_passengers"
	case Submitting:
		return "submitting"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// DocumentType is a travel document kind, in the labels the API stores
type DocumentType string

const (
	Passport      DocumentType = "Passeport"
	IdentityCard  DocumentType = "Carte d'Identité"
	DriverLicense DocumentType = "Permis de Conduire"
	VoterCard     DocumentType = "Carte d'Électeur"
)

// DocumentTypes lists the accepted document kinds in display order
var DocumentTypes = []DocumentType{Passport, IdentityCard, DriverLicense, VoterCard}

func (t DocumentType) valid() bool {
	for _, d := range DocumentTypes {
		if d == t {
			return true
		}
	}
	return false
}

// Field names an editable passenger attribute
type Field string

const (
	FieldName           Field = "name"
	FieldDocumentNumber Field = "doc_num"
	FieldDocumentType   Field = "doc_type"
)

// PassengerDraft is one passenger row as typed by the operator
type PassengerDraft struct {
	Name           string       `json:"name"`
	DocumentNumber string       `json:"doc_num"`
	DocumentType   DocumentType `json:"doc_type"`
}

func emptyDraft() PassengerDraft {
	return PassengerDraft{DocumentType: Passport}
}

func (d PassengerDraft) filled() int {
	n := 0
	if strings.TrimSpace(d.Name) != "" {
		n++
	}
	if strings.TrimSpace(d.DocumentNumber) != "" {
		n++
	}
	return n
}

// Full reports whether both name and document number are present
func (d PassengerDraft) Full() bool { return d.filled() == 2 }

// Partial reports a row with exactly one of name and document number.
// Partial rows block submission.
func (d PassengerDraft) Partial() bool { return d.filled() == 1 }

// Session is the state of one sale. Sessions are values: every transition
// returns a new Session and leaves the receiver untouched.
type Session struct {
	step       Step
	flight     FlightSelection
	passengers []PassengerDraft
	unitPrice  decimal.Decimal
	bands      PriceBands
}

// NewSession starts a sale waiting for a flight
func NewSession(bands PriceBands) Session {
	return Session{step: SelectingFlight, bands: bands, unitPrice: decimal.Zero}
}

func (s Session) Step() Step { return s.step }
func (s Session) Flight() FlightSelection { return s.flight }
func (s Session) UnitPrice() decimal.Decimal { return s.unitPrice }

// Passengers returns a copy of the passenger rows
func (s Session) Passengers() []PassengerDraft {
	return append([]PassengerDraft(nil), s.passengers...)
}

func (s Session) withPassengers(p []PassengerDraft) Session {
	s.passengers = p
	return s
}

// SelectFlight fixes the flight and its unit price and opens passenger
// entry with one empty row
func (s Session) SelectFlight(sel FlightSelection) (Session, error) {
	if s.step != SelectingFlight {
		return s, ErrWrongStep
	}
	if sel == nil {
		v := &ValidationError{}
		v.add("flight", "is required")
		return s, v
	}
	if p, ok := sel.(PresetFlight); ok && strings.TrimSpace(p.ID) == "" {
		v := &ValidationError{}
		v.add("flight_id", "is required")
		return s, v
	}

	s.flight = sel
	s.unitPrice = s.bands.PriceFor(sel)
	s.step = EnteringPassengers
	return s.withPassengers([]PassengerDraft{emptyDraft()}), nil
}

// AddPassenger appends an empty row
func (s Session) AddPassenger() (Session, error) {
	if s.step != EnteringPassengers {
		return s, ErrWrongStep
	}
	p := make([]PassengerDraft, len(s.passengers), len(s.passengers)+1)
	copy(p, s.passengers)
	return s.withPassengers(append(p, emptyDraft())), nil
}

// RemovePassenger drops row i. The last remaining row is never removed.
func (s Session) RemovePassenger(i int) (Session, error) {
	if s.step != EnteringPassengers {
		return s, ErrWrongStep
	}
	if i < 0 || i >= len(s.passengers) {
		return s, ErrNoSuchPassenger
	}
	if len(s.passengers) == 1 {
		return s, nil
	}
	p := make([]PassengerDraft, 0, len(s.passengers)-1)
	p = append(p, s.passengers[:i]...)
	p = append(p, s.passengers[i+1:]...)
	return s.withPassengers(p), nil
}

// UpdatePassenger sets one field of row i
func (s Session) UpdatePassenger(i int, field Field, value string) (Session, error) {
	if s.step != EnteringPassengers {
		return s, ErrWrongStep
	}
	if i < 0 || i >= len(s.passengers) {
		return s, ErrNoSuchPassenger
	}

	p := append([]PassengerDraft(nil), s.passengers...)
	switch field {
	case FieldName:
		p[i].Name = value
	case FieldDocumentNumber:
		p[i].DocumentNumber = value
	case FieldDocumentType:
		t := DocumentType(value)
		if !t.valid() {
			v := &ValidationError{}
			v.add(string(field), fmt.Sprintf("unknown document type %q", value))
			return s, v
		}
		p[i].DocumentType = t
	default:
		v := &ValidationError{}
		v.add(string(field), "is not an editable field")
		return s, v
	}
	return s.withPassengers(p), nil
}

// ResetFlight discards the flight and every passenger row. It needs an
// explicit confirmation because the rows are lost.
func (s Session) ResetFlight(confirmed bool) (Session, error) {
	if s.step == Submitting || s.step == Completed {
		return s, ErrWrongStep
	}
	if !confirmed {
		return s, ErrConfirmationRequired
	}
	return NewSession(s.bands), nil
}

// CanSubmit reports whether at least one row is full and none is partial.
// Blank rows are ignored.
func (s Session) CanSubmit() bool {
	if s.step != EnteringPassengers {
		return false
	}
	full := 0
	for _, d := range s.passengers {
		switch {
		case d.Partial():
			return false
		case d.Full():
			full++
		}
	}
	return full > 0
}

// Total is the displayed price: every row, blank ones included, times the
// unit price
func (s Session) Total() decimal.Decimal {
	return s.unitPrice.Mul(decimal.NewFromInt(int64(len(s.passengers))))
}

// BeginSubmit moves an eligible session to Submitting
func (s Session) BeginSubmit() (Session, error) {
	if s.step != EnteringPassengers {
		return s, ErrWrongStep
	}
	if !s.CanSubmit() {
		return s, ErrNotEligible
	}
	s.step = Submitting
	return s, nil
}

// Complete records that the server accepted the sale
func (s Session) Complete() (Session, error) {
	if s.step != Submitting {
		return s, ErrWrongStep
	}
	s.step = Completed
	return s, nil
}

// Completed reports whether the last submission was accepted and the
// session has not been recycled yet
func (s Session) Completed() bool { return s.step == Completed }

// Next recycles a completed session for the following customer: the flight
// stays, the rows reset to one empty draft
func (s Session) Next() (Session, error) {
	if s.step != Completed {
		return s, ErrWrongStep
	}
	s.step = EnteringPassengers
	return s.withPassengers([]PassengerDraft{emptyDraft()}), nil
}

// Payload builds the sale request. Only full rows are included.
func (s Session) Payload() (cloud.SaleRequest, error) {
	if s.flight == nil {
		return cloud.SaleRequest{}, ErrWrongStep
	}

	passengers := make([]cloud.SalePassenger, 0, len(s.passengers))
	for _, d := range s.passengers {
		if !d.Full() {
			continue
		}
		passengers = append(passengers, cloud.SalePassenger{
			Name:    strings.TrimSpace(d.Name),
			DocNum:  strings.TrimSpace(d.DocumentNumber),
			DocType: string(d.DocumentType),
		})
	}

	req := cloud.SaleRequest{
		FlightMode:         s.flight.Mode(),
		Passengers:         passengers,
		Price:              s.unitPrice.InexactFloat64(),
		VerificationSource: s.flight.Source(),
	}
	switch f := s.flight.(type) {
	case PresetFlight:
		req.FlightID = &f.ID
	case VerifiedFlight:
		req.ManualFlightNumber = &f.Number
		req.ManualFlightDate = &f.Date
		req.FlightDetails = f.Details
	case ManualFlight:
		req.ManualFlightNumber = &f.Number
		req.ManualFlightDate = &f.Date
	}
	return req, nil
}

// FullPassengers counts the rows that would be sold
func (s Session) FullPassengers() int {
	n := 0
	for _, d := range s.passengers {
		if d.Full() {
			n++
		}
	}
	return n
}
