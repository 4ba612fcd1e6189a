// internal/relay/monitor.go
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// HealthPath is the collector liveness endpoint consulted by probes.
// Only the status code matters; the body is never read.
const HealthPath = "/api/health"

// ErrNoEndpoints indicates the monitor was built without any candidate URL
var ErrNoEndpoints = errors.New("at least one endpoint is required")

// State is the reachability state of the collector set
type State int

const (
	// StateUnknown means no probe has run yet, or the last result was invalidated
	StateUnknown State = iota
	// StateProbing means a probe sweep is in progress
	StateProbing
	// StateAvailable means the active endpoint answered the last probe
	StateAvailable
	// StateUnavailable means no candidate endpoint answered the last probe
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateProbing:
		return "probing"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}

// Monitor tracks collector reachability. Probes are rate-limited: a probe
// is skipped and the cached result returned while the last successful
// check is younger than the configured interval. Failover is a linear
// sweep over the static endpoint list; the first endpoint that answers
// with a positive status becomes the active one for subsequent sends.
type Monitor struct {
	endpoints []string
	interval  time.Duration
	client    *http.Client
	log       *slog.Logger

	state     State
	activeIdx int
	lastCheck time.Time

	// now is swappable for tests
	now func() time.Time
}

// NewMonitor creates a reachability monitor. probeTimeout should be short
// relative to the send timeout (half is conventional) so a dead endpoint
// does not stall the sampling loop.
func NewMonitor(endpoints []string, interval, probeTimeout time.Duration, log *slog.Logger) (*Monitor, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if log == nil {
		log = slog.Default()
	}

	return &Monitor{
		endpoints: endpoints,
		interval:  interval,
		client:    &http.Client{Timeout: probeTimeout},
		log:       log,
		state:     StateUnknown,
		now:       time.Now,
	}, nil
}

// Probe reports whether a collector is reachable. While the last
// successful probe is younger than the interval the cached answer is
// returned without any request. Otherwise every candidate endpoint is
// tried in order and the sweep stops at the first responder.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.state == StateAvailable && m.now().Sub(m.lastCheck) < m.interval {
		return true
	}

	m.state = StateProbing
	for i, endpoint := range m.endpoints {
		if m.probeOne(ctx, endpoint) {
			m.state = StateAvailable
			m.activeIdx = i
			m.lastCheck = m.now()
			m.log.Debug("collector reachable",
				"op", "monitor.probe", "endpoint", endpoint)
			return true
		}
	}

	m.state = StateUnavailable
	m.lastCheck = m.now()
	m.log.Info("no collector endpoint reachable",
		"op", "monitor.probe", "candidates", len(m.endpoints))
	return false
}

func (m *Monitor) probeOne(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+HealthPath, nil)
	if err != nil {
		m.log.Warn("invalid endpoint URL",
			"op", "monitor.probe", "endpoint", endpoint, "error", err)
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 400
}

// Invalidate discards the cached reachability result, forcing a fresh
// sweep on the next Probe. Called after a send failure.
func (m *Monitor) Invalidate() {
	m.state = StateUnknown
	m.lastCheck = time.Time{}
}

// ActiveEndpoint returns the endpoint that answered the last successful
// probe. Before any successful probe it returns the first candidate.
func (m *Monitor) ActiveEndpoint() string {
	return m.endpoints[m.activeIdx]
}

// State returns the current reachability state
func (m *Monitor) State() State {
	return m.state
}
