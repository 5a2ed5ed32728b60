package printer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultPort is the raw printing port
const DefaultPort = 9100

// NetworkPrinter represents a thermal printer reached over raw TCP
type NetworkPrinter struct {
	id      string
	name    string
	address string
	port    int

	// DialTimeout and WriteTimeout bound each print
	DialTimeout  time.Duration
	WriteTimeout time.Duration

	mu sync.Mutex
}

// NewNetworkPrinter creates a new network printer. A zero port means 9100.
func NewNetworkPrinter(id, name, address string, port int) *NetworkPrinter {
	if port == 0 {
		port = DefaultPort
	}
	return &NetworkPrinter{
		id:           id,
		name:         name,
		address:      address,
		port:         port,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func (p *NetworkPrinter) ID() string   { return p.id }
func (p *NetworkPrinter) Name() string { return p.name }
func (p *NetworkPrinter) Type() string { return "network" }

func (p *NetworkPrinter) addr() string {
	return net.JoinHostPort(p.address, strconv.Itoa(p.port))
}

func (p *NetworkPrinter) dial(ctx context.Context, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", p.addr())
}

// Status reports "online" when the printer accepts a connection
func (p *NetworkPrinter) Status(ctx context.Context) string {
	conn, err := p.dial(ctx, 2*time.Second)
	if err != nil {
		return "offline"
	}
	conn.Close()
	return "online"
}

// Print sends data to the printer. One connection is used per document and
// documents are never interleaved.
func (p *NetworkPrinter) Print(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.dial(ctx, p.DialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to printer %s: %w", p.id, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(p.WriteTimeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to send data to printer %s: %w", p.id, err)
	}
	return nil
}

// Close is a no-op; connections only live for one document
func (p *NetworkPrinter) Close() error { return nil }
