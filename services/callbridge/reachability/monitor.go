// Package reachability tracks whether the host application has confirmed it
// is alive, and forces a wake-up when it does not answer in time.
package reachability

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sebas/callbridge/services/callbridge/events"
)

// DefaultTimeout is how long a check waits for confirmation
const DefaultTimeout = 2 * time.Second

// Status is the progress of the current reachability check
type Status int

const (
	StatusUnknown Status = iota
	StatusChecking
	StatusReachable
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusChecking:
		return "checking"
	case StatusReachable:
		return "reachable"
	case StatusTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// State is the process-wide availability record
type State struct {
	Available   bool `json:"available"`
	Initialized bool `json:"initialized"`
	Reachable   bool `json:"reachable"`
}

// Options configures a Monitor
type Options struct {
	Timeout time.Duration
	Emit    func(events.Event)
	Builder *events.Builder
	// OnTimeout runs once per check that was not confirmed in time
	OnTimeout func(callID string, extras map[string]any)
}

// Monitor owns State and the reachability timer.
type Monitor struct {
	mu     sync.Mutex
	state  State
	status Status
	timer  *time.Timer
	// gen invalidates timers armed before the latest Confirm or Reset
	gen uint64

	timeout   time.Duration
	emit      func(events.Event)
	builder   *events.Builder
	onTimeout func(callID string, extras map[string]any)

	timeouts atomic.Int64
}

func NewMonitor(opts Options) *Monitor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Emit == nil {
		opts.Emit = func(events.Event) {}
	}
	if opts.OnTimeout == nil {
		opts.OnTimeout = func(string, map[string]any) {}
	}
	return &Monitor{
		timeout:   opts.Timeout,
		emit:      opts.Emit,
		builder:   opts.Builder,
		onTimeout: opts.OnTimeout,
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetAvailable records whether the application accepts calls. Becoming
// available also marks the application initialized.
func (m *Monitor) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Available = available
	if available {
		m.state.Initialized = true
	}
	slog.Debug("[Reachability] Availability set", "available", available)
}

// NeedsCheck reports whether an outbound request must confirm liveness:
// the application never initialized and is not known to be reachable.
func (m *Monitor) NeedsCheck() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.state.Initialized && !m.state.Reachable
}

// CanProceed reports whether both available and reachable are set.
func (m *Monitor) CanProceed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Available && m.state.Reachable
}

// Check sends a reachability-check event and arms the timer. A check that
// is already pending is not re-armed. It reports whether a timer was armed.
func (m *Monitor) Check(callID string, extras map[string]any) bool {
	m.mu.Lock()
	ev := m.builder.ReachabilityCheck(callID, extras)
	if m.status == StatusChecking {
		m.mu.Unlock()
		m.emit(ev)
		return false
	}

	m.status = StatusChecking
	m.gen++
	gen := m.gen
	m.timer = time.AfterFunc(m.timeout, func() {
		m.fire(gen, callID, extras)
	})
	m.mu.Unlock()

	slog.Debug("[Reachability] Checking", "call_id", callID, "timeout", m.timeout)
	m.emit(ev)
	return true
}

func (m *Monitor) fire(gen uint64, callID string, extras map[string]any) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusChecking {
		m.mu.Unlock()
		return
	}
	m.status = StatusTimedOut
	m.timer = nil
	m.mu.Unlock()

	m.timeouts.Add(1)
	slog.Warn("[Reachability] No confirmation, forcing wake-up", "call_id", callID, "timeout", m.timeout)
	m.onTimeout(callID, extras)
}

// Confirm records that the application is reachable. A pending timer is
// cancelled; if it already fired, the wake-up it triggered stands.
func (m *Monitor) Confirm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Reachable = true
	if m.status == StatusChecking {
		m.gen++
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
	}
	m.status = StatusReachable
	slog.Debug("[Reachability] Confirmed")
}

// Ping sends a reachability-check event without arming the timer.
func (m *Monitor) Ping() {
	m.emit(m.builder.ReachabilityCheck("", nil))
}

// Timeouts returns how many checks timed out.
func (m *Monitor) Timeouts() int64 {
	return m.timeouts.Load()
}

// Reset cancels any pending check and clears all flags.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = State{}
	m.status = StatusUnknown
}
