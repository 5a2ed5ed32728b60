// Package scanqueue validates gate scans against the GoPass API and keeps
// every scan that could not be validated in a durable FIFO queue until a
// replay gets a verdict for it.
//
// Per token the lifecycle is
//
//	Captured -> LiveAttempt   -> Confirmed(outcome)
//	         -> QueuedOffline -> StillQueued ... -> Confirmed(outcome)
//
// Only transport failures and unusable server answers keep a token queued.
// A server verdict (valid, already scanned, wrong flight, expired, invalid,
// flight closed) is final.
package scanqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/localstore"
	"github.com/jetsetgo/gopass-terminal/internal/obs"
)

var (
	// ErrAwaitingDismissal rejects a scan while the previous outcome is
	// still on the operator's screen.
	ErrAwaitingDismissal = errors.New("scanqueue: previous outcome awaiting dismissal")
	// ErrScanInFlight rejects a scan while another live validation runs.
	ErrScanInFlight = errors.New("scanqueue: a scan is already being validated")
	// ErrReplayInProgress is returned when a replay pass is already running.
	ErrReplayInProgress = errors.New("scanqueue: replay already in progress")
	// ErrEmptyToken rejects blank scanner input.
	ErrEmptyToken = errors.New("scanqueue: empty token")
	// ErrNoFlight rejects a scan before a flight was chosen.
	ErrNoFlight = errors.New("scanqueue: no flight selected")
)

// Validator submits one scan to the GoPass API
type Validator interface {
	Scan(ctx context.Context, req cloud.ScanRequest) (*cloud.ScanResponse, error)
}

// Connectivity reports whether the GoPass API is believed reachable
type Connectivity interface {
	Online() bool
}

// Config holds the Manager's collaborators. Store, Validator and Link are
// required.
type Config struct {
	Store     localstore.Store
	Validator Validator
	Link      Connectivity
	// Location is the airport code sent with every scan
	Location string
	Logger   *slog.Logger
	Metrics  *obs.Metrics
	// Now defaults to time.Now
	Now func() time.Time
}

// ReplayReport summarises one replay pass
type ReplayReport struct {
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Retained  int       `json:"retained"`
	Outcomes  []Outcome `json:"outcomes,omitempty"`
}

// Manager owns the offline queue and the scan feedback gate
type Manager struct {
	store     localstore.Store
	validator Validator
	link      Connectivity
	location  string
	logger    *slog.Logger
	metrics   *obs.Metrics
	now       func() time.Time

	mu        sync.Mutex
	queue     []PendingScan
	awaiting  *Outcome
	scanning  bool
	replaying bool
}

// New loads the persisted queue and returns a ready Manager
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Store == nil || cfg.Validator == nil || cfg.Link == nil {
		return nil, errors.New("scanqueue: Store, Validator and Link are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = obs.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	queue, err := loadQueue(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:     cfg.Store,
		validator: cfg.Validator,
		link:      cfg.Link,
		location:  cfg.Location,
		logger:    cfg.Logger.With("component", "scanqueue"),
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		queue:     queue,
	}
	m.metrics.PendingScans.Set(float64(len(queue)))
	if len(queue) > 0 {
		m.logger.Info("pending scans restored", "count", len(queue))
	}
	return m, nil
}

// RecordScan appends a scan to the offline queue and persists the whole
// queue before returning. If persisting fails the scan is still held in
// memory and written with the next successful save.
func (m *Manager) RecordScan(ctx context.Context, token, flightID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(ctx, token, flightID)
}

func (m *Manager) recordLocked(ctx context.Context, token, flightID string) error {
	m.queue = append(m.queue, PendingScan{Token: token, FlightID: flightID, CapturedAt: m.now().UTC()})
	m.metrics.PendingScans.Set(float64(len(m.queue)))
	m.logger.Info("scan queued offline", "token", token, "flight_id", flightID, "pending", len(m.queue))

	if err := saveQueue(context.WithoutCancel(ctx), m.store, m.queue); err != nil {
		m.logger.Error("pending queue not persisted", "error", err)
		return err
	}
	return nil
}

// SubmitLive validates a scan against the API. When the terminal is offline
// or the request fails in transit the scan is queued and an OFFLINE outcome
// is returned without error. An unusable server answer returns an ERROR
// outcome together with the *cloud.ServerError.
//
// Every returned outcome must be acknowledged with Dismiss before the next
// scan is accepted.
func (m *Manager) SubmitLive(ctx context.Context, token, flightID, location string) (Outcome, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Outcome{}, ErrEmptyToken
	}
	if flightID == "" {
		return Outcome{}, ErrNoFlight
	}
	if location == "" {
		location = m.location
	}

	m.mu.Lock()
	if m.awaiting != nil {
		m.mu.Unlock()
		return Outcome{}, ErrAwaitingDismissal
	}
	if m.scanning {
		m.mu.Unlock()
		return Outcome{}, ErrScanInFlight
	}

	if !m.link.Online() {
		err := m.recordLocked(ctx, token, flightID)
		out := Outcome{Code: CodeOffline, Token: token, FlightID: flightID, Message: "scan recorded offline"}
		m.awaiting = &out
		m.mu.Unlock()
		m.metrics.ScanOutcomes.WithLabelValues(string(out.Code), "live").Inc()
		return out, err
	}
	m.scanning = true
	m.mu.Unlock()

	resp, err := m.validator.Scan(ctx, cloud.ScanRequest{Token: token, FlightID: flightID, Location: location})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanning = false

	var out Outcome
	switch {
	case err == nil:
		out = outcomeFromResponse(token, flightID, resp)
	case cloud.IsTransport(err):
		m.logger.Warn("live scan failed in transit", "token", token, "error", err)
		err = m.recordLocked(ctx, token, flightID)
		out = Outcome{Code: CodeOffline, Token: token, FlightID: flightID, Message: "network error, scan recorded"}
	default:
		m.logger.Error("live scan rejected by server", "token", token, "error", err)
		out = Outcome{Code: CodeError, Token: token, FlightID: flightID, Message: err.Error()}
	}

	m.awaiting = &out
	m.metrics.ScanOutcomes.WithLabelValues(string(out.Code), "live").Inc()
	return out, err
}

// Dismiss acknowledges the outcome on screen and re-opens scanning. It
// reports whether there was anything to dismiss.
func (m *Manager) Dismiss() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	had := m.awaiting != nil
	m.awaiting = nil
	return had
}

// Awaiting returns the outcome waiting for dismissal, if any
func (m *Manager) Awaiting() (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.awaiting == nil {
		return Outcome{}, false
	}
	return *m.awaiting, true
}

// ReplayPending makes one FIFO pass over the queue. It is a no-op, without
// any network call, when the queue is empty or the terminal is offline.
//
// Entries that get a server verdict are dropped. Entries that fail in
// transit or get an unusable answer are kept in their original order. The
// surviving set is persisted once, after the pass; scans recorded while the
// pass was running are kept behind the survivors. A crash mid-pass therefore
// re-delivers entries that were already confirmed, and the server is
// expected to answer those with ALREADY_SCANNED.
func (m *Manager) ReplayPending(ctx context.Context) (ReplayReport, error) {
	m.mu.Lock()
	if m.replaying {
		m.mu.Unlock()
		return ReplayReport{}, ErrReplayInProgress
	}
	if len(m.queue) == 0 || !m.link.Online() {
		m.mu.Unlock()
		return ReplayReport{}, nil
	}
	snapshot := append([]PendingScan(nil), m.queue...)
	m.replaying = true
	m.mu.Unlock()

	m.metrics.ReplayPasses.Inc()
	m.logger.Info("replaying pending scans", "count", len(snapshot))

	report := ReplayReport{}
	retained := make([]PendingScan, 0)
	for i, scan := range snapshot {
		if ctx.Err() != nil {
			retained = append(retained, snapshot[i:]...)
			break
		}
		report.Attempted++

		resp, err := m.validator.Scan(ctx, cloud.ScanRequest{Token: scan.Token, FlightID: scan.FlightID, Location: m.location})
		if err != nil {
			m.logger.Warn("replay failed for one scan", "token", scan.Token, "error", err)
			retained = append(retained, scan)
			continue
		}
		out := outcomeFromResponse(scan.Token, scan.FlightID, resp)
		report.Delivered++
		report.Outcomes = append(report.Outcomes, out)
		m.metrics.ScanOutcomes.WithLabelValues(string(out.Code), "replay").Inc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaying = false

	// Only this pass removes entries, so anything past the snapshot was
	// appended while it ran.
	next := append(retained, m.queue[len(snapshot):]...)
	m.queue = next
	report.Retained = len(retained)
	m.metrics.PendingScans.Set(float64(len(m.queue)))

	m.logger.Info("replay finished",
		"delivered", report.Delivered,
		"retained", report.Retained,
		"pending", len(m.queue),
	)

	if err := saveQueue(context.WithoutCancel(ctx), m.store, m.queue); err != nil {
		m.logger.Error("pending queue not persisted after replay", "error", err)
		return report, fmt.Errorf("scanqueue: replay: %w", err)
	}
	return report, ctx.Err()
}

// Pending returns a copy of the queue in replay order
func (m *Manager) Pending() []PendingScan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PendingScan(nil), m.queue...)
}

// PendingCount is the offline indicator's number
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Replaying reports whether a replay pass is running
func (m *Manager) Replaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaying
}
