package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/obs"
)

// Fetcher downloads a ticket document the API linked to
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// SpoolerConfig holds the Spooler's collaborators
type SpoolerConfig struct {
	Manager *Manager
	// PrinterID selects the ticket printer. Empty means Manager.Default.
	PrinterID string
	Fetcher   Fetcher
	// SettleDelay separates consecutive documents
	SettleDelay time.Duration
	Jobs        *JobBuffer
	Logger      *slog.Logger
	Metrics     *obs.Metrics
}

// Spooler prints ticket documents one at a time
type Spooler struct {
	manager   *Manager
	printerID string
	fetcher   Fetcher
	delay     time.Duration
	jobs      *JobBuffer
	logger    *slog.Logger
	metrics   *obs.Metrics

	// sleep waits between documents; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

// NewSpooler creates a spooler
func NewSpooler(cfg SpoolerConfig) (*Spooler, error) {
	if cfg.Manager == nil || cfg.Fetcher == nil {
		return nil, errors.New("printer: spooler needs a Manager and a Fetcher")
	}
	if cfg.Jobs == nil {
		cfg.Jobs = NewJobBuffer(100)
	}
	if cfg.Logger == nil {
		cfg.Logger = obs.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics()
	}
	return &Spooler{
		manager:   cfg.Manager,
		printerID: cfg.PrinterID,
		fetcher:   cfg.Fetcher,
		delay:     cfg.SettleDelay,
		jobs:      cfg.Jobs,
		logger:    cfg.Logger.With("component", "spooler"),
		metrics:   cfg.Metrics,
		sleep:     sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns the print history
func (s *Spooler) Jobs() *JobBuffer { return s.jobs }

func (s *Spooler) printer() (Printer, error) {
	if s.printerID != "" {
		return s.manager.GetPrinter(s.printerID)
	}
	return s.manager.Default()
}

// PrintTickets prints each ticket in order, waiting the settle delay
// between documents. A failed ticket is recorded and the rest still print.
// Cancelling ctx fails the tickets not yet started.
func (s *Spooler) PrintTickets(ctx context.Context, tickets []cloud.Ticket) []JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobRecord, 0, len(tickets))
	for i, t := range tickets {
		if i > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				s.logger.Warn("print run interrupted", "remaining", len(tickets)-i, "error", err)
			}
		}
		out = append(out, s.printOne(ctx, t.PDFURL, t.PassengerName, false))
	}
	return out
}

// Reprint prints a single already-issued ticket again
func (s *Spooler) Reprint(ctx context.Context, ref string) (JobRecord, error) {
	if ref == "" {
		return JobRecord{}, errors.New("printer: empty ticket reference")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.printOne(ctx, ref, "", true)
	if job.Status == JobFailed {
		return job, fmt.Errorf("printer: reprint %s: %s", ref, job.Error)
	}
	return job, nil
}

func (s *Spooler) printOne(ctx context.Context, ref, passenger string, reprint bool) JobRecord {
	job := JobRecord{
		ID:        uuid.NewString(),
		TicketRef: ref,
		Passenger: passenger,
		Reprint:   reprint,
		Status:    JobPrinting,
		CreatedAt: time.Now(),
	}

	p, err := s.printer()
	if err == nil {
		job.PrinterID = p.ID()
		job.PrinterName = p.Name()
	}
	s.jobs.Add(job)

	var size int
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		var doc []byte
		doc, err = s.fetcher.Fetch(ctx, ref)
		if err == nil {
			size = len(doc)
			err = p.Print(ctx, doc)
		}
	}

	final, ok := s.jobs.Finish(job.ID, size, err)
	if !ok {
		// evicted by a newer job while printing
		final = job
		final.DataSize = size
		final.Status = JobCompleted
		if err != nil {
			final.Status = JobFailed
			final.Error = err.Error()
		}
	}
	if err != nil {
		s.logger.Error("ticket print failed", "ticket", ref, "passenger", passenger, "error", err)
		s.metrics.PrintJobs.WithLabelValues(JobFailed).Inc()
	} else {
		s.logger.Info("ticket printed", "ticket", ref, "passenger", passenger, "bytes", size, "printer", job.PrinterID)
		s.metrics.PrintJobs.WithLabelValues(JobCompleted).Inc()
	}
	return final
}
