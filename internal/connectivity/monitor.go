// Package connectivity implements the Connectivity Monitor (spec §4.4,
// component C4): a single effective-online signal derived from the
// logical-OR of an OS-advertised reachability hook and a periodic probe
// against a known endpoint, debounced to avoid flapping-driven sync
// storms.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Event is emitted only on an actual state transition (spec §4.4
// "Emits a transition only on actual state change").
type Event struct {
	Online bool
	At     time.Time
}

// Prober performs the lightweight reachability check. The default
// implementation issues a HEAD request against the replication
// surface's /ping endpoint (spec §6).
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber probes a URL with HEAD /ping.
type HTTPProber struct {
	Client  *http.Client
	PingURL string
}

// Probe reports whether the endpoint answered successfully.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.PingURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// OSHook reports the host-advertised reachability (e.g. a browser's
// navigator.onLine analogue, or a mobile platform's network-reachability
// callback). A caller embedding this engine wires its platform signal in
// here; the zero value always reports true so the probe alone can drive
// the monitor in environments with no such hook.
type OSHook func() bool

// Monitor derives and publishes the effective-online signal.
type Monitor struct {
	prober       Prober
	osHook       OSHook
	probeEvery   time.Duration
	debounce     time.Duration
	events       chan Event
	mu           sync.Mutex
	online       bool
	lastFlipTime time.Time
	cancel       context.CancelFunc
}

// New constructs a Monitor. probeEvery is the probe cadence
// (configuration surface's probeIntervalMs); debounce is the minimum
// dwell time before a transition is published.
func New(prober Prober, osHook OSHook, probeEvery, debounce time.Duration) *Monitor {
	if osHook == nil {
		osHook = func() bool { return true }
	}
	return &Monitor{
		prober:     prober,
		osHook:     osHook,
		probeEvery: probeEvery,
		debounce:   debounce,
		events:     make(chan Event, 16),
	}
}

// Events returns the channel of debounced state transitions.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Online returns the current effective-online signal.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start begins the periodic probe loop. Cancel the returned context (or
// call Stop) to tear it down.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.loop(ctx)
}

// Stop halts the probe loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.probeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

// sample derives the effective-online signal and, if the debounce
// window has passed since the last transition, publishes it.
func (m *Monitor) sample(ctx context.Context) {
	effective := m.osHook()
	if !effective && m.prober != nil {
		effective = m.prober.Probe(ctx)
	} else if m.prober != nil {
		// OS hook already says reachable; the probe still runs, but
		// under the logical-OR of spec §4.4 its result cannot turn a
		// reachable OS signal into offline: either signal being true is
		// enough.
		effective = effective || m.prober.Probe(ctx)
	}
	m.applyTransition(effective)
}

func (m *Monitor) applyTransition(effective bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if effective == m.online {
		return
	}
	if !m.lastFlipTime.IsZero() && now.Sub(m.lastFlipTime) < m.debounce {
		return
	}
	m.online = effective
	m.lastFlipTime = now
	select {
	case m.events <- Event{Online: effective, At: now}:
	default:
		// events channel full: drop rather than block the probe loop;
		// Online() remains the source of truth for late subscribers.
	}
}
