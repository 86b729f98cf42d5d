package wifi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// MonitorConfig tunes the scan loop.
type MonitorConfig struct {
	Interval   time.Duration // pause between scans
	Backoff    time.Duration // pause after a failed scan
	TargetSSID string        // lock to this network; empty locks to the strongest visible one
	Logger     *slog.Logger
}

// DefaultMonitorConfig returns the demo cadence.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval: 1500 * time.Millisecond,
		Backoff:  time.Second,
	}
}

// Reading is the monitor's latest view.
type Reading struct {
	SSID      string    `json:"ssid"`
	SignalDBm float64   `json:"signal_dbm"`
	At        time.Time `json:"at"`
	Networks  int       `json:"networks"`
}

// Monitor polls a Scanner and tracks the strongest signal of one SSID,
// which covers every access point of a mesh network. Run is the only writer.
type Monitor struct {
	scanner Scanner
	cfg     MonitorConfig
	logger  *slog.Logger

	mu      sync.RWMutex
	target  string
	current Reading
	errors  int
}

// NewMonitor creates a monitor reporting NoSignalDBm until the first scan.
func NewMonitor(scanner Scanner, cfg MonitorConfig) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		scanner: scanner,
		cfg:     cfg,
		logger:  logger.With("component", "wifi.monitor"),
		target:  cfg.TargetSSID,
		current: Reading{SSID: cfg.TargetSSID, SignalDBm: NoSignalDBm},
	}
}

// Current returns the strongest signal of the locked network in dBm.
func (m *Monitor) Current() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.SignalDBm
}

// Reading returns the latest full reading.
func (m *Monitor) Reading() Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SSID returns the locked network name, empty until locked.
func (m *Monitor) SSID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.target
}

// Errors returns the number of failed scans.
func (m *Monitor) Errors() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errors
}

// Run scans until ctx is cancelled. Scan failures are retried after the
// backoff and the last reading is kept. The first failure of a run of
// failures is logged loudly, the rest at debug.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("wifi monitor started", "interval", m.cfg.Interval, "ssid", m.SSID())
	defer m.logger.Info("wifi monitor stopped")

	failures := 0
	for {
		wait := m.cfg.Interval
		err := m.Poll(ctx)
		switch {
		case err == nil:
			if failures > 0 {
				m.logger.Info("scan recovered", "failures", failures)
			}
			failures = 0
		case ctx.Err() != nil:
			return
		default:
			wait = m.cfg.Backoff
			failures++
			m.logFailure(err, failures)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (m *Monitor) logFailure(err error, failures int) {
	switch {
	case failures > 1:
		m.logger.Debug("scan still failing", "failures", failures, "error", err)
	case errors.Is(err, ErrNoInterface):
		m.logger.Error("no wifi interface, idling", "error", err)
	default:
		m.logger.Warn("scan failed", "error", err)
	}
}

// Poll runs one scan and updates the reading.
func (m *Monitor) Poll(ctx context.Context) error {
	nets, err := m.scanner.Scan(ctx)
	if err != nil {
		m.mu.Lock()
		m.errors++
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.target == "" {
		if ssid, ok := strongestVisible(nets); ok {
			m.target = ssid
			m.logger.Info("locked onto network", "ssid", ssid)
		}
	}

	m.current = Reading{
		SSID:      m.target,
		SignalDBm: float64(strongestOf(nets, m.target)),
		At:        time.Now(),
		Networks:  len(nets),
	}
	return nil
}

// strongestVisible picks the non-hidden network with the best valid signal.
func strongestVisible(nets []Network) (string, bool) {
	best := NoSignalDBm
	ssid := ""
	for _, n := range nets {
		if n.Hidden() || n.SignalDBm >= 0 {
			continue
		}
		if n.SignalDBm > best {
			best = n.SignalDBm
			ssid = n.SSID
		}
	}
	return ssid, ssid != ""
}

// strongestOf returns the best signal among access points named ssid.
func strongestOf(nets []Network, ssid string) int {
	best := NoSignalDBm
	if ssid == "" {
		return best
	}
	for _, n := range nets {
		if n.SSID == ssid && n.SignalDBm < 0 && n.SignalDBm > best {
			best = n.SignalDBm
		}
	}
	return best
}
