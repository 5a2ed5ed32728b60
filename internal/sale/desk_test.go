package sale

import (
	"context"
	"errors"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/printer"
)

type fakeClient struct {
	mu       sync.Mutex
	requests []cloud.SaleRequest
	keys     []string
	submit   func(cloud.SaleRequest) (*cloud.SaleResponse, error)
	verify   func(number, date string) (*cloud.FlightVerification, error)
	intents  []cloud.PaymentIntentRequest
	block    chan struct{}
	entered  chan struct{}
}

func (c *fakeClient) SubmitSale(_ context.Context, req cloud.SaleRequest, key string) (*cloud.SaleResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.keys = append(c.keys, key)
	c.mu.Unlock()
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.block != nil {
		<-c.block
	}
	if c.submit != nil {
		return c.submit(req)
	}
	tickets := make([]cloud.Ticket, len(req.Passengers))
	for i, p := range req.Passengers {
		tickets[i] = cloud.Ticket{PDFURL: "/pdf/" + p.DocNum, PassengerName: p.Name, Price: req.Price}
	}
	return &cloud.SaleResponse{Success: true, Tickets: tickets, TotalPrice: req.Price * float64(len(tickets))}, nil
}

func (c *fakeClient) VerifyFlight(_ context.Context, number, date string) (*cloud.FlightVerification, error) {
	if c.verify != nil {
		return c.verify(number, date)
	}
	return nil, cloud.ErrFlightNotFound
}

func (c *fakeClient) CreatePaymentIntent(_ context.Context, req cloud.PaymentIntentRequest) (string, error) {
	c.intents = append(c.intents, req)
	return "pi_secret", nil
}

type fakePrinter struct {
	printed  [][]cloud.Ticket
	reprints []string
}

func (p *fakePrinter) PrintTickets(_ context.Context, tickets []cloud.Ticket) []printer.JobRecord {
	p.printed = append(p.printed, tickets)
	out := make([]printer.JobRecord, len(tickets))
	for i, t := range tickets {
		out[i] = printer.JobRecord{TicketRef: t.PDFURL, Status: printer.JobCompleted}
	}
	return out
}

func (p *fakePrinter) Reprint(_ context.Context, ref string) (printer.JobRecord, error) {
	p.reprints = append(p.reprints, ref)
	return printer.JobRecord{TicketRef: ref, Reprint: true, Status: printer.JobCompleted}, nil
}

func newDesk(t *testing.T, c *fakeClient, p *fakePrinter) *Desk {
	t.Helper()
	cfg := DeskConfig{Client: c, NewKey: func() string { return "key-1" }}
	if p != nil {
		cfg.Printer = p
	}
	d, err := NewDesk(cfg)
	if err != nil {
		t.Fatalf("NewDesk: %v", err)
	}
	return d
}

func fill(t *testing.T, d *Desk, rows ...[2]string) {
	t.Helper()
	for i, r := range rows {
		if i > 0 {
			if _, err := d.AddPassenger(); err != nil {
				t.Fatalf("AddPassenger: %v", err)
			}
		}
		if _, err := d.UpdatePassenger(i, FieldName, r[0]); err != nil {
			t.Fatalf("UpdatePassenger: %v", err)
		}
		if _, err := d.UpdatePassenger(i, FieldDocumentNumber, r[1]); err != nil {
			t.Fatalf("UpdatePassenger: %v", err)
		}
	}
}

func TestDeskSubmitPresetSale(t *testing.T) {
	c := &fakeClient{}
	p := &fakePrinter{}
	d := newDesk(t, c, p)

	if _, err := d.SelectFlight(PresetFlight{ID: "12", DisplayText: "CAA 101"}); err != nil {
		t.Fatalf("SelectFlight: %v", err)
	}
	fill(t, d, [2]string{"Jean", "Doc1"}, [2]string{"Marie", "Doc2"})
	if v := d.View(); v.Session.Total != 100 || !v.Session.CanSubmit {
		t.Fatalf("view before submit = %+v", v.Session)
	}

	res, err := d.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(c.requests) != 1 || len(c.requests[0].Passengers) != 2 || c.requests[0].Price != 50 {
		t.Fatalf("requests = %+v", c.requests)
	}
	if c.keys[0] != "key-1" || res.IdempotencyKey != "key-1" {
		t.Fatalf("idempotency key = %q", c.keys[0])
	}
	if res.Sale.TotalPrice != 100 || len(res.PrintJobs) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(p.printed) != 1 || p.printed[0][0].PassengerName != "Jean" || p.printed[0][1].PassengerName != "Marie" {
		t.Fatalf("printed = %+v", p.printed)
	}

	v := d.View()
	if v.Submitting || v.SalesTotal != 100 || v.TicketsSold != 2 || len(v.History) != 2 {
		t.Fatalf("desk view = %+v", v)
	}
	if v.Session.Step != EnteringPassengers.String() || len(v.Session.Passengers) != 1 || v.Session.Flight == nil {
		t.Fatalf("session after sale = %+v", v.Session)
	}
	if v.Session.Passengers[0].Name != "" || v.Session.Passengers[0].DocumentType != Passport {
		t.Fatalf("row not reset: %+v", v.Session.Passengers[0])
	}

	// Next customer on the same flight adds to the session tally
	fill(t, d, [2]string{"Paul", "Doc3"})
	if _, err := d.Submit(context.Background()); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if v := d.View(); v.SalesTotal != 150 || v.TicketsSold != 3 {
		t.Fatalf("tally = %v / %d", v.SalesTotal, v.TicketsSold)
	}
}

func TestDeskSubmitFailureRestoresSession(t *testing.T) {
	c := &fakeClient{submit: func(cloud.SaleRequest) (*cloud.SaleResponse, error) {
		return nil, &cloud.ServerError{Op: "submit sale", StatusCode: 500, Message: "Données passager incomplètes"}
	}}
	p := &fakePrinter{}
	d := newDesk(t, c, p)
	d.SelectFlight(PresetFlight{ID: "12"})
	fill(t, d, [2]string{"Jean", "Doc1"}, [2]string{"Marie", "Doc2"})
	before := d.View().Session

	_, err := d.Submit(context.Background())
	var se *cloud.ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	after := d.View()
	if after.Submitting || after.Session.Step != before.Step || len(after.Session.Passengers) != 2 {
		t.Fatalf("session not restored: %+v", after.Session)
	}
	if after.Session.Passengers[1].Name != "Marie" || after.SalesTotal != 0 {
		t.Fatalf("state after failure = %+v", after)
	}
	if len(p.printed) != 0 {
		t.Fatalf("nothing should print after a failed sale")
	}
}

func TestDeskRejectsConcurrentSubmit(t *testing.T) {
	c := &fakeClient{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	d := newDesk(t, c, nil)
	d.SelectFlight(PresetFlight{ID: "12"})
	fill(t, d, [2]string{"Jean", "Doc1"})

	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background())
		done <- err
	}()
	<-c.entered

	if _, err := d.Submit(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}
	if _, err := d.AddPassenger(); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("edits must wait for the submission, got %v", err)
	}
	if v := d.View(); !v.Submitting || v.Session.Step != Submitting.String() {
		t.Fatalf("view while pending = %+v", v)
	}

	close(c.block)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(c.requests) != 1 {
		t.Fatalf("sale sent %d times", len(c.requests))
	}
}

func TestDeskSubmitNotEligible(t *testing.T) {
	c := &fakeClient{}
	d := newDesk(t, c, nil)
	d.SelectFlight(PresetFlight{ID: "12"})
	fill(t, d, [2]string{"Jean", ""})
	if _, err := d.Submit(context.Background()); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
	if len(c.requests) != 0 {
		t.Fatalf("ineligible sale reached the network")
	}
}

func TestDeskVerifyFlight(t *testing.T) {
	details := json.RawMessage(`{"airline":"CAA"}`)
	c := &fakeClient{verify: func(number, date string) (*cloud.FlightVerification, error) {
		if number != "BU123" {
			return nil, cloud.ErrFlightNotFound
		}
		return &cloud.FlightVerification{
			Airline:   "CAA",
			Departure: cloud.AirportRef{IATA: "FIH"},
			Arrival:   cloud.AirportRef{IATA: "FBM"},
			Pricing:   cloud.FlightPricing{Type: "DOMESTIQUE", Amount: 15, Currency: "USD"},
			Details:   details,
		}, nil
	}}
	d := newDesk(t, c, nil)

	if _, err := d.VerifyFlight(context.Background(), "BU", "2026-10-17"); err == nil {
		t.Fatalf("short number must be rejected locally")
	}
	if _, err := d.VerifyFlight(context.Background(), "ZZ999", "2026-10-17"); !errors.Is(err, cloud.ErrFlightNotFound) {
		t.Fatalf("expected ErrFlightNotFound, got %v", err)
	}
	if d.Session().Step() != SelectingFlight {
		t.Fatalf("not-found must leave flight selection open")
	}

	v, err := d.VerifyFlight(context.Background(), "BU123", "2026-10-17")
	if err != nil {
		t.Fatalf("VerifyFlight: %v", err)
	}
	if v.Session.Flight == nil || v.Session.Flight.Route != "FIH → FBM" || v.Session.Flight.Classification != Domestic {
		t.Fatalf("flight view = %+v", v.Session.Flight)
	}
	if v.Session.UnitPrice != 15 {
		t.Fatalf("unit price = %v", v.Session.UnitPrice)
	}

	fill(t, d, [2]string{"Jean", "Doc1"})
	if _, err := d.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	req := c.requests[0]
	if req.VerificationSource != SourceAPI || string(req.FlightDetails) != string(details) || *req.ManualFlightNumber != "BU123" {
		t.Fatalf("verified payload = %+v", req)
	}
}

func TestDeskManualOverrideAndPaymentIntent(t *testing.T) {
	c := &fakeClient{}
	d := newDesk(t, c, &fakePrinter{})

	if _, err := d.SelectManual("et840", "2026-10-17", false); err != nil {
		t.Fatalf("SelectManual: %v", err)
	}
	if v := d.View(); v.Session.UnitPrice != 55 || v.Session.Flight.Classification != International {
		t.Fatalf("manual view = %+v", v.Session)
	}
	if _, err := d.PaymentIntent(context.Background()); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("card payment on a manual flight: %v", err)
	}

	if _, err := d.ResetFlight(false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("unconfirmed reset: %v", err)
	}
	if _, err := d.ResetFlight(true); err != nil {
		t.Fatalf("ResetFlight: %v", err)
	}
	d.SelectFlight(PresetFlight{ID: "3"})
	fill(t, d, [2]string{"Jean", "Doc1"}, [2]string{"Marie", "Doc2"}, [2]string{"", ""})
	secret, err := d.PaymentIntent(context.Background())
	if err != nil || secret != "pi_secret" {
		t.Fatalf("secret=%q err=%v", secret, err)
	}
	if c.intents[0].FlightID != "3" || c.intents[0].Quantity != 2 {
		t.Fatalf("intent = %+v", c.intents[0])
	}
}

func TestDeskReprint(t *testing.T) {
	p := &fakePrinter{}
	d := newDesk(t, &fakeClient{}, p)
	job, err := d.Reprint(context.Background(), "/pdf/7")
	if err != nil || !job.Reprint || len(p.reprints) != 1 {
		t.Fatalf("job=%+v err=%v", job, err)
	}

	bare := newDesk(t, &fakeClient{}, nil)
	if _, err := bare.Reprint(context.Background(), "/pdf/7"); err == nil {
		t.Fatalf("expected error without a printer")
	}
}

func TestDeskPatchPassengerAtomic(t *testing.T) {
	d := newDesk(t, &fakeClient{}, nil)
	if _, err := d.SelectFlight(PresetFlight{ID: "12", Price: decimal.NewFromInt(50)}); err != nil {
		t.Fatalf("SelectFlight: %v", err)
	}

	_, err := d.PatchPassenger(0,
		PassengerEdit{Field: FieldName, Value: "Jean"},
		PassengerEdit{Field: FieldDocumentType, Value: "bogus"},
	)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if p := d.Session().Passengers()[0]; p.Name != "" || p.Partial() {
		t.Fatalf("row changed by a rejected patch: %+v", p)
	}

	v, err := d.PatchPassenger(0,
		PassengerEdit{Field: FieldName, Value: "Jean"},
		PassengerEdit{Field: FieldDocumentNumber, Value: "Doc1"},
		PassengerEdit{Field: FieldDocumentType, Value: string(VoterCard)},
	)
	if err != nil {
		t.Fatalf("PatchPassenger: %v", err)
	}
	if !v.Session.CanSubmit || v.Session.Passengers[0].DocumentType != VoterCard {
		t.Fatalf("view = %+v", v.Session)
	}
}
