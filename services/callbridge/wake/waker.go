// Package wake starts the host application when a call needs it.
package wake

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sebas/callbridge/services/callbridge/events"
	"github.com/sebas/callbridge/services/callbridge/platform"
	"github.com/sebas/callbridge/services/callbridge/store"
)

const appKey = "_app"

// Options configures a Waker
type Options struct {
	// LeaseTTL bounds both the wake lock and the de-duplication window
	LeaseTTL time.Duration
	// LockTag names the wake lock
	LockTag string
}

// Waker runs the wake-up path: start the wake service, hold a best-effort
// wake lock, notify the wake receiver. Repeated wake-ups for the same call
// within the lease window are no-ops.
type Waker struct {
	services platform.Services
	emit     func(events.Event)
	builder  *events.Builder
	leases   *store.TTLStore[string, func()]
	ttl      time.Duration
	tag      string

	wakeups atomic.Int64
}

// New creates a Waker. emit delivers the wake-application event.
func New(services platform.Services, emit func(events.Event), builder *events.Builder, opts Options) *Waker {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 60 * time.Second
	}
	if opts.LockTag == "" {
		opts.LockTag = "callbridge:wake"
	}
	if emit == nil {
		emit = func(events.Event) {}
	}
	return &Waker{
		services: services,
		emit:     emit,
		builder:  builder,
		ttl:      opts.LeaseTTL,
		tag:      opts.LockTag,
		leases: store.NewTTLStore(opts.LeaseTTL/4, func(key string, release func()) {
			if release != nil {
				release()
			}
		}),
	}
}

// WakeIfStopped wakes the application if it is not running. It reports
// whether the wake-up path ran.
func (w *Waker) WakeIfStopped(callID string, extras map[string]any) bool {
	if w.services.IsApplicationRunning() {
		return false
	}
	return w.Wake(callID, extras)
}

// Wake runs the wake-up path unconditionally, once per call within the
// lease window. It reports whether this call did the work.
func (w *Waker) Wake(callID string, extras map[string]any) bool {
	key := callID
	if key == "" {
		key = appKey
	}
	if !w.leases.SetIfAbsent(key, nil, w.ttl) {
		slog.Debug("[Wake] Already woken", "call_id", callID)
		return false
	}

	started, err := w.services.StartWakeService(extras)
	if err != nil {
		slog.Warn("[Wake] Failed to start wake service", "call_id", callID, "error", err)
	}
	if started {
		release, err := w.services.AcquireWakeLock(w.tag, w.ttl)
		if err != nil {
			slog.Warn("[Wake] Wake lock unavailable", "call_id", callID, "error", err)
		} else {
			w.leases.Set(key, release, w.ttl)
		}
	}

	w.wakeups.Add(1)
	slog.Info("[Wake] Waking application", "call_id", callID, "service_started", started)
	w.emit(w.builder.Wake(callID, extras))
	return true
}

// Release drops the lease for callID, releasing its wake lock.
func (w *Waker) Release(callID string) {
	if callID == "" {
		callID = appKey
	}
	if release, ok := w.leases.Delete(callID); ok && release != nil {
		release()
	}
}

// Count returns how many wake-ups ran.
func (w *Waker) Count() int64 {
	return w.wakeups.Load()
}

// Close releases every held wake lock.
func (w *Waker) Close() {
	w.leases.Close()
}
