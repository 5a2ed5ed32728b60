package cloud

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeMonitor decides connectivity by polling GET /api/settings/public.
// The last fetched settings double as the terminal's branding.
type ProbeMonitor struct {
	linkState

	client   *Client
	interval time.Duration
	logger   *slog.Logger

	settingsMu sync.RWMutex
	settings   PublicSettings

	stop     context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// NewProbeMonitor creates a polling connectivity monitor. onChange, when
// non-nil, observes every online/offline flip.
func NewProbeMonitor(client *Client, interval time.Duration, logger *slog.Logger, onChange func(online bool)) *ProbeMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	p := &ProbeMonitor{
		client:   client,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
	p.onChange = onChange
	return p
}

// Start begins the probe loop
func (p *ProbeMonitor) Start(ctx context.Context) {
	ctx, p.stop = context.WithCancel(ctx)
	go p.probeLoop(ctx)
}

// Stop stops the probe loop and waits for it to exit
func (p *ProbeMonitor) Stop() {
	p.stopOnce.Do(func() {
		if p.stop != nil {
			p.stop()
			<-p.done
		}
	})
}

// Settings returns the most recently fetched public settings
func (p *ProbeMonitor) Settings() PublicSettings {
	p.settingsMu.RLock()
	defer p.settingsMu.RUnlock()
	return p.settings
}

func (p *ProbeMonitor) probeLoop(ctx context.Context) {
	defer close(p.done)

	// Probe immediately on start
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// Probe performs one connectivity check and fires reconnect callbacks when
// the link just came up. Any HTTP answer, even an error status, proves the
// server is reachable; only transport failures count as offline.
func (p *ProbeMonitor) Probe(ctx context.Context) error {
	settings, err := p.client.PublicSettings(ctx)
	if err != nil && IsTransport(err) {
		if p.Online() {
			p.logger.Warn("cloud unreachable", "error", err)
		}
		p.setOnline(false, err)
		return err
	}

	if settings != nil {
		p.settingsMu.Lock()
		p.settings = *settings
		p.settingsMu.Unlock()
	}

	callbacks := p.setOnline(true, err)
	if len(callbacks) > 0 {
		p.logger.Info("cloud reachable")
	}
	p.fire(callbacks)
	return err
}
