package offline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Probe reports whether the backend is reachable right now.
type Probe func(ctx context.Context) bool

type MonitorConfig struct {
	Initial       bool
	Probe         Probe
	ProbeInterval time.Duration
	// StableSamples is how many consecutive identical observations are
	// needed before a state flip is accepted.
	StableSamples int
}

// Monitor tracks connectivity from pushed events and periodic probes.
type Monitor struct {
	cfg MonitorConfig

	mu          sync.Mutex
	online      bool
	candidate   bool
	streak      int
	subscribers []func(online bool)
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.StableSamples <= 0 {
		cfg.StableSamples = 1
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 5 * time.Second
	}
	return &Monitor{cfg: cfg, online: cfg.Initial}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for accepted transitions.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Observe records one connectivity sample, either a platform event or a
// probe result.
func (m *Monitor) Observe(online bool) {
	m.mu.Lock()
	if online == m.online {
		m.streak = 0
		m.mu.Unlock()
		return
	}
	if m.streak > 0 && online == m.candidate {
		m.streak++
	} else {
		m.candidate = online
		m.streak = 1
	}
	if m.streak < m.cfg.StableSamples {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.streak = 0
	subscribers := append([]func(bool){}, m.subscribers...)
	m.mu.Unlock()

	slog.Info("connectivity_changed", "online", online)
	for _, fn := range subscribers {
		fn(online)
	}
}

// Run probes until ctx is done. Without a probe it only waits.
func (m *Monitor) Run(ctx context.Context) {
	if m.cfg.Probe == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeInterval)
			online := m.cfg.Probe(probeCtx)
			cancel()
			if ctx.Err() != nil {
				return
			}
			m.Observe(online)
		}
	}
}
