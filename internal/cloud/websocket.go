package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/jetsetgo/gopass-terminal/internal/config"
)

// IncomingMessage is a frame pushed by the cloud: "pong" answers a ping,
// "sync" asks the terminal to replay its offline queue now
type IncomingMessage struct {
	Type string `json:"type"`
}

// OutgoingMessage is the periodic "ping" frame, carrying the terminal ID
// and the number of scans still waiting for replay
type OutgoingMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminal_id,omitempty"`
	Pending    int    `json:"pending,omitempty"`
}

// WSMonitor keeps a WebSocket link to the cloud open and treats the link
// state as the connectivity signal. The cloud may also push a "sync"
// message to ask the terminal to replay its offline queue.
type WSMonitor struct {
	linkState

	config     *config.CloudConfig
	terminalID string
	logger     *slog.Logger
	dialer     *websocket.Dialer

	// PendingCount, when set, is reported in every ping
	PendingCount func() int

	connMu sync.Mutex
	conn   *websocket.Conn

	stop     context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// NewWSMonitor creates a new WebSocket connectivity monitor
func NewWSMonitor(cfg *config.CloudConfig, terminalID string, logger *slog.Logger, onChange func(online bool)) *WSMonitor {
	m := &WSMonitor{
		config:     cfg,
		terminalID: terminalID,
		logger:     logger,
		dialer:     websocket.DefaultDialer,
		done:       make(chan struct{}),
	}
	m.onChange = onChange
	return m
}

// Start begins the WebSocket connection and reconnection loop
func (m *WSMonitor) Start(ctx context.Context) {
	ctx, m.stop = context.WithCancel(ctx)
	go m.connectionLoop(ctx)
}

// Stop closes the WebSocket connection and waits for the loop to exit
func (m *WSMonitor) Stop() {
	m.stopOnce.Do(func() {
		if m.stop == nil {
			return
		}
		m.stop()
		m.connMu.Lock()
		if m.conn != nil {
			m.conn.Close()
		}
		m.connMu.Unlock()
		<-m.done
	})
}

// connectionLoop manages connection and reconnection
func (m *WSMonitor) connectionLoop(ctx context.Context) {
	defer close(m.done)
	delay := m.config.WSReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := m.connect(ctx)
		if err != nil {
			m.setOnline(false, err)
			m.setReconnecting()
			m.logger.Warn("websocket connection failed", "error", err, "retry_in", delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			// Exponential backoff
			delay *= 2
			if m.config.WSMaxReconnect > 0 && delay > m.config.WSMaxReconnect {
				delay = m.config.WSMaxReconnect
			}
			continue
		}

		// Connected successfully, reset delay
		delay = m.config.WSReconnectDelay
		if delay <= 0 {
			delay = time.Second
		}
		m.logger.Info("websocket connected")
		m.fire(m.setOnline(true, nil))

		m.runConnection(ctx, conn)
		m.setOnline(false, fmt.Errorf("websocket closed"))
	}
}

// connect establishes the WebSocket connection
func (m *WSMonitor) connect(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(m.config.WSEndpoint, "{terminal_id}", m.terminalID, 1)

	header := http.Header{}
	if m.config.APIKey != "" {
		header.Set("X-API-Key", m.config.APIKey)
	}
	if m.config.Tenant != "" {
		header.Set("X-DB-Name", m.config.Tenant)
	}

	conn, _, err := m.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, &TransportError{Op: "websocket dial", Err: err}
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()
	return conn, nil
}

// runConnection handles read/write on an established connection
func (m *WSMonitor) runConnection(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		m.readLoop(conn)
	}()

	go func() {
		defer wg.Done()
		defer conn.Close()
		m.writeLoop(connCtx, conn)
	}()

	wg.Wait()

	m.connMu.Lock()
	m.conn = nil
	m.connMu.Unlock()
}

// readLoop reads incoming messages from the WebSocket
func (m *WSMonitor) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		m.handleMessage(message)
	}
}

// writeLoop sends pings carrying the pending-scan count
func (m *WSMonitor) writeLoop(ctx context.Context, conn *websocket.Conn) {
	interval := m.config.WSPingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := OutgoingMessage{Type: "ping", TerminalID: m.terminalID}
			if m.PendingCount != nil {
				msg.Pending = m.PendingCount()
			}
			data, _ := json.Marshal(msg)
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				m.logger.Warn("websocket ping error", "error", err)
				return
			}
		}
	}
}

// handleMessage processes incoming WebSocket messages
func (m *WSMonitor) handleMessage(data []byte) {
	var msg IncomingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("unparseable websocket message", "error", err)
		return
	}

	switch msg.Type {
	case "pong":
		m.mu.Lock()
		m.lastSeen = time.Now()
		m.mu.Unlock()
	case "sync":
		m.mu.Lock()
		callbacks := append([]func(){}, m.onReconnect...)
		m.mu.Unlock()
		m.fire(callbacks)
	default:
		m.logger.Debug("unknown websocket message type", "type", msg.Type)
	}
}

