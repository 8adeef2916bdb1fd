package usecase

import (
	"context"
	"log/slog"
	"time"
)

const defaultPollInterval = 4 * time.Second

// Monitor periodically probes the session's current network
type Monitor struct {
	session  *Session
	interval time.Duration
	log      *slog.Logger
}

// NewMonitor creates a monitor polling every interval
func NewMonitor(session *Session, interval time.Duration, log *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Monitor{session: session, interval: interval, log: log}
}

// Run polls until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) {
	m.log.Debug("monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.session.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("monitor stopped")
			return
		case <-ticker.C:
			m.session.Poll(ctx)
		}
	}
}
