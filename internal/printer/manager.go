// Package printer drives the desk's thermal printers and spools issued
// GoPass tickets to them one at a time.
package printer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jetsetgo/gopass-terminal/internal/config"
)

// ErrPrinterNotFound is returned for an unknown printer ID
var ErrPrinterNotFound = errors.New("printer not found")

// Printer represents a thermal printer
type Printer interface {
	ID() string
	Name() string
	Type() string
	Status(ctx context.Context) string
	Print(ctx context.Context, data []byte) error
	Close() error
}

// Info describes a configured printer for the operator UI
type Info struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
}

// Manager manages the configured printers
type Manager struct {
	mu       sync.RWMutex
	printers map[string]Printer
}

// NewManager creates a new printer manager
func NewManager() *Manager {
	return &Manager{
		printers: make(map[string]Printer),
	}
}

// NewManagerFromConfig registers every configured printer
func NewManagerFromConfig(cfgs []config.PrinterConfig) (*Manager, error) {
	m := NewManager()
	for _, pc := range cfgs {
		switch pc.Type {
		case "network", "":
			if pc.Address == "" {
				return nil, fmt.Errorf("printer %q: address is required", pc.ID)
			}
			m.AddPrinter(NewNetworkPrinter(pc.ID, pc.Name, pc.Address, pc.Port))
		default:
			return nil, fmt.Errorf("printer %q: unsupported type %q", pc.ID, pc.Type)
		}
	}
	return m, nil
}

// AddPrinter adds a printer to the manager
func (m *Manager) AddPrinter(p Printer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.printers[p.ID()] = p
}

// GetPrinter gets a printer by ID
func (m *Manager) GetPrinter(id string) (Printer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.printers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPrinterNotFound, id)
	}
	return p, nil
}

// Default returns the printer tickets go to when none is configured
// explicitly: the only one, or the first by ID.
func (m *Manager) Default() (Printer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.printers) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrPrinterNotFound)
	}
	ids := make([]string, 0, len(m.printers))
	for id := range m.printers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return m.printers[ids[0]], nil
}

// List describes every printer. With probe set each one is contacted for
// its status.
func (m *Manager) List(ctx context.Context, probe bool) []Info {
	m.mu.RLock()
	ps := make([]Printer, 0, len(m.printers))
	for _, p := range m.printers {
		ps = append(ps, p)
	}
	m.mu.RUnlock()

	sort.Slice(ps, func(i, j int) bool { return ps[i].ID() < ps[j].ID() })
	out := make([]Info, len(ps))
	for i, p := range ps {
		out[i] = Info{ID: p.ID(), Name: p.Name(), Type: p.Type()}
		if probe {
			out[i].Status = p.Status(ctx)
		}
	}
	return out
}

// Print sends data to a printer
func (m *Manager) Print(ctx context.Context, printerID string, data []byte) error {
	p, err := m.GetPrinter(printerID)
	if err != nil {
		return err
	}
	return p.Print(ctx, data)
}

// TestPrint sends a test receipt to a printer
func (m *Manager) TestPrint(ctx context.Context, printerID, terminalID string) error {
	p, err := m.GetPrinter(printerID)
	if err != nil {
		return err
	}
	return p.Print(ctx, buildTestReceipt(terminalID))
}

// Close closes every printer
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, p := range m.printers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
