package cloud

import (
	"sync"
	"time"
)

// ConnectionStatus represents the cloud connection status
type ConnectionStatus struct {
	Connected    bool      `json:"connected"`
	Reconnecting bool      `json:"reconnecting"`
	LastError    string    `json:"last_error,omitempty"`
	LastSeen     time.Time `json:"last_seen,omitempty"`
}

// linkState is the connectivity bookkeeping shared by both monitors
type linkState struct {
	mu           sync.Mutex
	connected    bool
	reconnecting bool
	lastError    error
	lastSeen     time.Time
	onReconnect  []func()
	onChange     func(online bool)
}

// Online reports whether the GoPass API is currently reachable
func (l *linkState) Online() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Status returns the current connection status
func (l *linkState) Status() ConnectionStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	errStr := ""
	if l.lastError != nil {
		errStr = l.lastError.Error()
	}
	return ConnectionStatus{
		Connected:    l.connected,
		Reconnecting: l.reconnecting,
		LastError:    errStr,
		LastSeen:     l.lastSeen,
	}
}

// OnReconnect registers fn to run every time the link goes from offline to
// online. Each call runs on its own goroutine. Register before Start.
func (l *linkState) OnReconnect(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReconnect = append(l.onReconnect, fn)
}

// setOnline records a link transition and returns the reconnect callbacks
// to run when the link just came up. Callbacks are run by the caller,
// outside the lock.
func (l *linkState) setOnline(online bool, err error) []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	was := l.connected
	l.connected = online
	l.lastError = err
	if online {
		l.reconnecting = false
		l.lastSeen = time.Now()
	}
	if was != online && l.onChange != nil {
		l.onChange(online)
	}
	if online && !was {
		return append([]func(){}, l.onReconnect...)
	}
	return nil
}

// fire runs reconnect callbacks on their own goroutines so a long replay
// never stalls the probe or read loop
func (l *linkState) fire(callbacks []func()) {
	for _, fn := range callbacks {
		go fn()
	}
}

func (l *linkState) setReconnecting() {
	l.mu.Lock()
	l.reconnecting = true
	l.mu.Unlock()
}
