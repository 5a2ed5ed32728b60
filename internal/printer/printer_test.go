package printer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jetsetgo/gopass-terminal/internal/cloud"
	"github.com/jetsetgo/gopass-terminal/internal/config"
)

// memPrinter records documents instead of sending them
type memPrinter struct {
	id   string
	mu   sync.Mutex
	docs [][]byte
	fail map[string]bool
}

func (p *memPrinter) ID() string { return p.id }
func (p *memPrinter) Name() string { return "mem " + p.id }
func (p *memPrinter) Type() string { return "memory" }
func (p *memPrinter) Status(context.Context) string { return "online" }
func (p *memPrinter) Close() error { return nil }
func (p *memPrinter) Print(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[string(data)] {
		return errors.New("paper jam")
	}
	p.docs = append(p.docs, append([]byte(nil), data...))
	return nil
}

type mapFetcher map[string]string

func (f mapFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	doc, ok := f[ref]
	if !ok {
		return nil, &cloud.ServerError{Op: "fetch document", StatusCode: 404, Message: "not found"}
	}
	return []byte(doc), nil
}

func newTestSpooler(t *testing.T, p *memPrinter, f Fetcher) (*Spooler, *[]time.Duration) {
	t.Helper()
	m := NewManager()
	m.AddPrinter(p)
	s, err := NewSpooler(SpoolerConfig{Manager: m, Fetcher: f, SettleDelay: time.Second})
	if err != nil {
		t.Fatalf("NewSpooler: %v", err)
	}
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return s, &waits
}

func TestPrintTicketsSequentialWithSettleDelay(t *testing.T) {
	p := &memPrinter{id: "desk"}
	s, waits := newTestSpooler(t, p, mapFetcher{"/pdf/1": "DOC1", "/pdf/2": "DOC2", "/pdf/3": "DOC3"})

	jobs := s.PrintTickets(context.Background(), []cloud.Ticket{
		{PDFURL: "/pdf/1", PassengerName: "Jean"},
		{PDFURL: "/pdf/2", PassengerName: "Marie"},
		{PDFURL: "/pdf/3", PassengerName: "Paul"},
	})
	if len(jobs) != 3 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	for _, j := range jobs {
		if j.Status != JobCompleted || j.PrinterID != "desk" {
			t.Fatalf("job = %+v", j)
		}
	}
	got := []string{string(p.docs[0]), string(p.docs[1]), string(p.docs[2])}
	if strings.Join(got, ",") != "DOC1,DOC2,DOC3" {
		t.Fatalf("print order = %v", got)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second {
		t.Fatalf("settle waits = %v", *waits)
	}
}

func TestPrintFailureDoesNotAbortRun(t *testing.T) {
	p := &memPrinter{id: "desk", fail: map[string]bool{"DOC2": true}}
	s, _ := newTestSpooler(t, p, mapFetcher{"/pdf/1": "DOC1", "/pdf/2": "DOC2"})

	jobs := s.PrintTickets(context.Background(), []cloud.Ticket{
		{PDFURL: "/pdf/1"},
		{PDFURL: "/pdf/missing"},
		{PDFURL: "/pdf/2"},
		{PDFURL: "/pdf/1"},
	})
	want := []string{JobCompleted, JobFailed, JobFailed, JobCompleted}
	for i, j := range jobs {
		if j.Status != want[i] {
			t.Fatalf("job %d status = %s, want %s (%s)", i, j.Status, want[i], j.Error)
		}
	}
	if len(p.docs) != 2 {
		t.Fatalf("printed %d documents", len(p.docs))
	}
	if h := s.Jobs().Entries(); len(h) != 4 || h[0].Status != JobCompleted || h[1].Error == "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestReprint(t *testing.T) {
	p := &memPrinter{id: "desk"}
	s, _ := newTestSpooler(t, p, mapFetcher{"/pdf/9": "DOC9"})

	job, err := s.Reprint(context.Background(), "/pdf/9")
	if err != nil || !job.Reprint || job.Status != JobCompleted {
		t.Fatalf("job=%+v err=%v", job, err)
	}
	if _, err := s.Reprint(context.Background(), "/pdf/404"); err == nil {
		t.Fatalf("expected error for missing document")
	}
	if _, err := s.Reprint(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty reference")
	}
}

func TestNoPrinterFailsJobs(t *testing.T) {
	s, err := NewSpooler(SpoolerConfig{Manager: NewManager(), Fetcher: mapFetcher{}})
	if err != nil {
		t.Fatalf("NewSpooler: %v", err)
	}
	jobs := s.PrintTickets(context.Background(), []cloud.Ticket{{PDFURL: "/pdf/1"}})
	if len(jobs) != 1 || jobs[0].Status != JobFailed || !strings.Contains(jobs[0].Error, "not found") {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestJobBufferRing(t *testing.T) {
	jb := NewJobBuffer(2)
	jb.Add(JobRecord{ID: "a"})
	jb.Add(JobRecord{ID: "b"})
	jb.Add(JobRecord{ID: "c"})
	e := jb.Entries()
	if len(e) != 2 || e[0].ID != "c" || e[1].ID != "b" {
		t.Fatalf("entries = %+v", e)
	}
	if _, ok := jb.Finish("a", 0, nil); ok {
		t.Fatalf("evicted job should not be found")
	}
	rec, ok := jb.Finish("b", 10, errors.New("offline"))
	if !ok || rec.Status != JobFailed || rec.CompletedAt == nil || rec.DataSize != 10 {
		t.Fatalf("finished = %+v", rec)
	}
}

func TestNetworkPrinterSendsBytes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		received <- b
	}()

	addr := ln.Addr().(*net.TCPAddr)
	m, err := NewManagerFromConfig([]config.PrinterConfig{{ID: "desk", Name: "Desk", Type: "network", Address: "127.0.0.1", Port: addr.Port}})
	if err != nil {
		t.Fatalf("NewManagerFromConfig: %v", err)
	}
	if err := m.TestPrint(context.Background(), "desk", "POS-01"); err != nil {
		t.Fatalf("TestPrint: %v", err)
	}

	select {
	case b := <-received:
		if !bytes.HasPrefix(b, []byte{0x1B, 0x40}) || !bytes.Contains(b, []byte("GOPASS")) || !bytes.Contains(b, []byte("POS-01")) {
			t.Fatalf("receipt = %q", b)
		}
		if !bytes.HasSuffix(b, gsPartialCut) {
			t.Fatalf("receipt does not end with a cut")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("printer never received data")
	}

	if err := m.TestPrint(context.Background(), "nope", "POS-01"); !errors.Is(err, ErrPrinterNotFound) {
		t.Fatalf("expected ErrPrinterNotFound, got %v", err)
	}
}

func TestManagerFromConfigRejectsBadEntries(t *testing.T) {
	if _, err := NewManagerFromConfig([]config.PrinterConfig{{ID: "x", Type: "usb"}}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
	if _, err := NewManagerFromConfig([]config.PrinterConfig{{ID: "x", Type: "network"}}); err == nil {
		t.Fatalf("expected missing address error")
	}
}
