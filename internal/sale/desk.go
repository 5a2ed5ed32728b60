package sale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/obs"
	"github.com/jetsetgo/gopass-terminal/internal/printer"
)

// Client is the part of the GoPass API the desk uses
type Client interface {
	SubmitSale(ctx context.Context, req cloud.SaleRequest, idempotencyKey string) (*cloud.SaleResponse, error)
	VerifyFlight(ctx context.Context, number, date string) (*cloud.FlightVerification, error)
	CreatePaymentIntent(ctx context.Context, req cloud.PaymentIntentRequest) (string, error)
}

// TicketPrinter spools issued tickets
type TicketPrinter interface {
	PrintTickets(ctx context.Context, tickets []cloud.Ticket) []printer.JobRecord
	Reprint(ctx context.Context, ref string) (printer.JobRecord, error)
}

// DeskConfig holds the Desk's collaborators. Client is required; a nil
// Printer skips printing.
type DeskConfig struct {
	Client  Client
	Printer TicketPrinter
	Bands   PriceBands
	Logger  *slog.Logger
	Metrics *obs.Metrics
	// NewKey generates idempotency keys; defaults to random UUIDs
	NewKey func() string
}

// Result is the outcome of an accepted sale
type Result struct {
	IdempotencyKey string              `json:"idempotency_key"`
	Sale           *cloud.SaleResponse `json:"sale"`
	PrintJobs      []printer.JobRecord `json:"print_jobs,omitempty"`
}

// DeskView is what the sale screen renders
type DeskView struct {
	Session     View           `json:"session"`
	Submitting  bool           `json:"submitting"`
	SalesTotal  float64        `json:"sales_total"`
	TicketsSold int            `json:"tickets_sold"`
	History     []cloud.Ticket `json:"history"`
}

// Desk is the point-of-sale controller for one operator session. It owns
// the current Session and serialises every change to it.
type Desk struct {
	client  Client
	printer TicketPrinter
	logger  *slog.Logger
	metrics *obs.Metrics
	newKey  func() string

	mu          sync.Mutex
	session     Session
	submitting  bool
	salesTotal  decimal.Decimal
	ticketsSold int
	history     []cloud.Ticket
}

// NewDesk creates a desk with an empty session
func NewDesk(cfg DeskConfig) (*Desk, error) {
	if cfg.Client == nil {
		return nil, errors.New("sale: desk needs a Client")
	}
	if cfg.Bands == (PriceBands{}) {
		cfg.Bands = DefaultBands()
	}
	if cfg.Logger == nil {
		cfg.Logger = obs.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics()
	}
	if cfg.NewKey == nil {
		cfg.NewKey = uuid.NewString
	}
	return &Desk{
		client:     cfg.Client,
		printer:    cfg.Printer,
		logger:     cfg.Logger.With("component", "desk"),
		metrics:    cfg.Metrics,
		newKey:     cfg.NewKey,
		session:    NewSession(cfg.Bands),
		salesTotal: decimal.Zero,
	}, nil
}

// Session returns the current session value
func (d *Desk) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// View projects the desk state
func (d *Desk) View() DeskView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked()
}

func (d *Desk) viewLocked() DeskView {
	return DeskView{
		Session:     d.session.View(),
		Submitting:  d.submitting,
		SalesTotal:  d.salesTotal.InexactFloat64(),
		TicketsSold: d.ticketsSold,
		History:     append([]cloud.Ticket{}, d.history...),
	}
}

// apply runs a pure transition against the current session
func (d *Desk) apply(fn func(Session) (Session, error)) (DeskView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitting {
		return d.viewLocked(), ErrSubmitInFlight
	}
	next, err := fn(d.session)
	if err != nil {
		return d.viewLocked(), err
	}
	d.session = next
	return d.viewLocked(), nil
}

// SelectFlight locks in a flight
func (d *Desk) SelectFlight(sel FlightSelection) (DeskView, error) {
	return d.apply(func(s Session) (Session, error) { return s.SelectFlight(sel) })
}

// SelectManual locks in an operator-entered flight at the domestic or
// international band
func (d *Desk) SelectManual(number, date string, domestic bool) (DeskView, error) {
	f, err := NewManualFlight(number, date, domestic)
	if err != nil {
		return d.View(), err
	}
	return d.SelectFlight(f)
}

// VerifyFlight looks the flight up in the registry and, when found, selects
// it at the registry price. cloud.ErrFlightNotFound is returned unwrapped
// so the caller can offer SelectManual instead.
func (d *Desk) VerifyFlight(ctx context.Context, number, date string) (DeskView, error) {
	if err := ValidateFlightQuery(number, date); err != nil {
		return d.View(), err
	}
	if s := d.Session(); s.Step() != SelectingFlight {
		return d.View(), ErrWrongStep
	}

	v, err := d.client.VerifyFlight(ctx, number, date)
	if err != nil {
		if errors.Is(err, cloud.ErrFlightNotFound) {
			d.logger.Info("flight not in registry", "number", number, "date", date)
		} else {
			d.logger.Error("flight verification failed", "number", number, "error", err)
		}
		return d.View(), err
	}
	f, err := newVerifiedFlight(number, date, v)
	if err != nil {
		return d.View(), err
	}
	return d.SelectFlight(f)
}

// AddPassenger appends an empty passenger row
func (d *Desk) AddPassenger() (DeskView, error) {
	return d.apply(Session.AddPassenger)
}

// RemovePassenger drops row i
func (d *Desk) RemovePassenger(i int) (DeskView, error) {
	return d.apply(func(s Session) (Session, error) { return s.RemovePassenger(i) })
}

// UpdatePassenger edits one field of row i
func (d *Desk) UpdatePassenger(i int, field Field, value string) (DeskView, error) {
	return d.apply(func(s Session) (Session, error) { return s.UpdatePassenger(i, field, value) })
}

// PassengerEdit sets one field of a passenger row
type PassengerEdit struct {
	Field Field
	Value string
}

// PatchPassenger applies several edits to row i as one change: if any edit
// is rejected the row is left as it was.
func (d *Desk) PatchPassenger(i int, edits ...PassengerEdit) (DeskView, error) {
	return d.apply(func(s Session) (Session, error) {
		if s.Step() != EnteringPassengers {
			return s, ErrWrongStep
		}
		if i < 0 || i >= len(s.Passengers()) {
			return s, ErrNoSuchPassenger
		}
		var err error
		for _, e := range edits {
			if s, err = s.UpdatePassenger(i, e.Field, e.Value); err != nil {
				return s, err
			}
		}
		return s, nil
	})
}

// ResetFlight returns to flight selection, discarding the passenger rows
func (d *Desk) ResetFlight(confirmed bool) (DeskView, error) {
	return d.apply(func(s Session) (Session, error) { return s.ResetFlight(confirmed) })
}

// Submit sends the sale once. While the request is pending every other
// change is refused. On failure the session is left exactly as it was. On
// success the tickets are printed in order and the session is recycled for
// the next customer with the same flight.
func (d *Desk) Submit(ctx context.Context) (Result, error) {
	d.mu.Lock()
	if d.submitting {
		d.mu.Unlock()
		return Result{}, ErrSubmitInFlight
	}
	prev := d.session
	next, err := prev.BeginSubmit()
	if err != nil {
		d.mu.Unlock()
		return Result{}, err
	}
	payload, err := prev.Payload()
	if err != nil {
		d.mu.Unlock()
		return Result{}, err
	}
	d.session = next
	d.submitting = true
	d.mu.Unlock()

	key := d.newKey()
	log := d.logger.With("idempotency_key", key)
	log.Info("submitting sale",
		"flight_mode", payload.FlightMode,
		"passengers", len(payload.Passengers),
		"price", payload.Price,
	)

	resp, err := d.client.SubmitSale(ctx, payload, key)
	if err != nil {
		d.mu.Lock()
		d.session = prev
		d.submitting = false
		d.mu.Unlock()
		d.metrics.Sales.WithLabelValues("failed").Inc()
		log.Error("sale failed", "error", err)
		return Result{IdempotencyKey: key}, fmt.Errorf("sale: submit: %w", err)
	}

	d.mu.Lock()
	d.session, _ = d.session.Complete()
	d.salesTotal = d.salesTotal.Add(decimal.NewFromFloat(resp.TotalPrice))
	d.ticketsSold += len(resp.Tickets)
	d.history = append(d.history, resp.Tickets...)
	d.mu.Unlock()

	d.metrics.Sales.WithLabelValues("completed").Inc()
	d.metrics.TicketsIssued.Add(float64(len(resp.Tickets)))
	log.Info("sale completed", "tickets", len(resp.Tickets), "total_price", resp.TotalPrice)

	res := Result{IdempotencyKey: key, Sale: resp}
	if d.printer != nil && len(resp.Tickets) > 0 {
		// The sale is final; a cancelled request must not stop its tickets
		res.PrintJobs = d.printer.PrintTickets(context.WithoutCancel(ctx), resp.Tickets)
	}

	d.mu.Lock()
	d.session, _ = d.session.Next()
	d.submitting = false
	d.mu.Unlock()
	return res, nil
}

// Reprint prints one already-issued ticket again
func (d *Desk) Reprint(ctx context.Context, ref string) (printer.JobRecord, error) {
	if d.printer == nil {
		return printer.JobRecord{}, errors.New("sale: no ticket printer configured")
	}
	return d.printer.Reprint(ctx, ref)
}

// PaymentIntent requests a card payment secret for the full rows of a
// preset-flight sale
func (d *Desk) PaymentIntent(ctx context.Context) (string, error) {
	s := d.Session()
	f, ok := s.Flight().(PresetFlight)
	if !ok {
		return "", fmt.Errorf("%w: card payment needs a scheduled flight", ErrWrongStep)
	}
	if !s.CanSubmit() {
		return "", ErrNotEligible
	}
	return d.client.CreatePaymentIntent(ctx, cloud.PaymentIntentRequest{
		FlightID: f.ID,
		Quantity: s.FullPassengers(),
	})
}
