// Package coordinator turns platform connection requests into registered
// call sessions and routes every later platform callback to its session.
package coordinator

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/sebas/callbridge/services/callbridge/events"
	"github.com/sebas/callbridge/services/callbridge/platform"
	"github.com/sebas/callbridge/services/callbridge/procctx"
	"github.com/sebas/callbridge/services/callbridge/session"
)

// Coordinator implements the platform callbacks and the session hooks.
type Coordinator struct {
	pc *procctx.Context

	// fgMu guards the foreground service against concurrent register and
	// release. Acquired after the process mutex and a session's op lock.
	fgMu     sync.Mutex
	fgActive bool
}

var (
	_ platform.ConnectionHandler = (*Coordinator)(nil)
	_ session.Hooks              = (*Coordinator)(nil)
)

func New(pc *procctx.Context) *Coordinator {
	return &Coordinator{pc: pc}
}

// Context returns the process context the coordinator works on.
func (c *Coordinator) Context() *procctx.Context {
	return c.pc
}

// --- connection creation ---

// OnCreateIncomingConnection creates a ringing inbound session. Without an
// active account no session is created and a failed result is returned.
func (c *Coordinator) OnCreateIncomingConnection(req platform.ConnectionRequest) platform.ConnectionResult {
	if !c.pc.Accounts.HasActiveAccount() {
		slog.Warn("[Coordinator] Incoming connection without an active account")
		return platform.ConnectionResult{Failed: true, Cause: session.CauseError.String()}
	}

	extras := maps.Clone(req.Extras)
	if extras == nil {
		extras = map[string]any{}
	}
	id := fixMissingCallID(extras)
	handle := platform.StringExtra(extras, platform.ExtraHandle)
	if handle == "" && !req.Address.IsZero() {
		handle = req.Address.Part
		extras[platform.ExtraHandle] = handle
	}

	s := c.newSession(id, session.DirectionIncoming, handle, extras)
	if err := s.Ring(); err != nil {
		slog.Error("[Coordinator] Ring failed", "call_id", id, "error", err)
		return platform.ConnectionResult{CallID: id, Failed: true, Cause: session.CauseError.String()}
	}
	if err := c.register(s); err != nil {
		return platform.ConnectionResult{CallID: id, Failed: true, Cause: session.CauseError.String()}
	}

	slog.Info("[Coordinator] Incoming call", "call_id", id, "handle", handle)
	return platform.ConnectionResult{CallID: id}
}

// OnCreateOutgoingConnection creates a dialing outbound session once the
// application is confirmed available and reachable. A rejected request
// fails with cause local and a connection-failed event.
func (c *Coordinator) OnCreateOutgoingConnection(req platform.ConnectionRequest) platform.ConnectionResult {
	extras := maps.Clone(req.Extras)
	if extras == nil {
		extras = map[string]any{}
	}
	fixMissingHandle(req.Address, extras)
	id := fixMissingCallID(extras)
	handle := platform.StringExtra(extras, platform.ExtraHandle)
	name := platform.StringExtra(extras, platform.ExtraName)

	if c.pc.Reachability.NeedsCheck() {
		c.pc.Reachability.Check(id, extras)
	}

	if !c.wakeAndCheckAvailability(id, extras) {
		cause := session.CauseLocal.String()
		slog.Warn("[Coordinator] Outgoing call refused, application not available", "call_id", id, "handle", handle)
		c.pc.Emit(c.pc.Builder.ConnectionFailed(id, handle, name, cause, extras))
		return platform.ConnectionResult{CallID: id, Failed: true, Cause: cause}
	}

	s := c.newSession(id, session.DirectionOutgoing, handle, extras)
	if err := s.Dial(); err != nil {
		slog.Error("[Coordinator] Dial failed", "call_id", id, "error", err)
		return platform.ConnectionResult{CallID: id, Failed: true, Cause: session.CauseError.String()}
	}
	if err := c.register(s); err != nil {
		return platform.ConnectionResult{CallID: id, Failed: true, Cause: session.CauseError.String()}
	}

	slog.Info("[Coordinator] Outgoing call", "call_id", id, "handle", handle)
	return platform.ConnectionResult{CallID: id}
}

func (c *Coordinator) OnCreateIncomingConnectionFailed(req platform.ConnectionRequest) {
	c.connectionFailed("incoming", req)
}

func (c *Coordinator) OnCreateOutgoingConnectionFailed(req platform.ConnectionRequest) {
	c.connectionFailed("outgoing", req)
}

func (c *Coordinator) connectionFailed(direction string, req platform.ConnectionRequest) {
	id := platform.StringExtra(req.Extras, platform.ExtraCallID)
	handle := platform.StringExtra(req.Extras, platform.ExtraHandle)
	if handle == "" {
		handle = req.Address.Part
	}
	slog.Warn("[Coordinator] Platform failed to create connection", "direction", direction, "call_id", id, "handle", handle)
	c.pc.Emit(c.pc.Builder.ConnectionFailed(id, handle,
		platform.StringExtra(req.Extras, platform.ExtraName), session.CauseError.String(), req.Extras))
}

// wakeAndCheckAvailability wakes the application if it is not running, then
// reports whether an outgoing call may proceed: true means both the
// available and reachable flags are set.
func (c *Coordinator) wakeAndCheckAvailability(callID string, extras map[string]any) bool {
	c.pc.Waker.WakeIfStopped(callID, extras)
	return c.pc.Reachability.CanProceed()
}

func (c *Coordinator) newSession(id string, dir session.Direction, handle string, extras map[string]any) *session.Session {
	opts := c.pc.Options(context.Background())
	caps, selfManaged := c.pc.Accounts.SessionCapabilities(opts)
	return session.New(id, dir, session.Options{
		Handle:       handle,
		Name:         platform.StringExtra(extras, platform.ExtraName),
		Extras:       extras,
		Capabilities: caps,
		SelfManaged:  selfManaged,
		Builder:      c.pc.Builder,
		Hooks:        c,
	})
}

// register adds s to the registry, starts the foreground service and
// announces s. When other calls exist, every session becomes conferenceable.
// The announce event is queued before the process mutex is released so no
// command on s can publish ahead of it.
func (c *Coordinator) register(s *session.Session) error {
	var err error
	c.pc.Do(func() {
		if err = c.registerLocked(s); err != nil {
			return
		}
		slog.Debug("[Coordinator] Session registered", "call_id", s.ID)
		s.Announce()
	})
	return err
}

// registerLocked requires the process mutex.
func (c *Coordinator) registerLocked(s *session.Session) error {
	c.fgMu.Lock()
	defer c.fgMu.Unlock()

	if err := c.pc.Registry.Register(s.ID, s); err != nil {
		slog.Warn("[Coordinator] Register failed", "call_id", s.ID, "error", err)
		return err
	}
	if c.pc.Registry.Len() > 1 {
		for _, other := range c.pc.Registry.Sessions() {
			other.GrantCapabilities(session.CapConference)
		}
	}
	c.startForegroundLocked()
	return nil
}

func fixMissingCallID(extras map[string]any) string {
	id := platform.StringExtra(extras, platform.ExtraCallID)
	if id == "" {
		id = uuid.NewString()
		extras[platform.ExtraCallID] = id
		slog.Debug("[Coordinator] Generated missing call id", "call_id", id)
	}
	return id
}

// fixMissingHandle makes the platform-resolved address win over the handle
// supplied in extras.
func fixMissingHandle(addr platform.Address, extras map[string]any) {
	if addr.IsZero() {
		return
	}
	if current := platform.StringExtra(extras, platform.ExtraHandle); current != addr.Part {
		if current != "" {
			slog.Debug("[Coordinator] Replacing handle with platform address", "handle", current, "address", addr.Part)
		}
		extras[platform.ExtraHandle] = addr.Part
	}
}

// --- foreground service ---

// startForegroundLocked requires fgMu.
func (c *Coordinator) startForegroundLocked() {
	if c.fgActive || c.pc.Platform.APILevel() < platform.APIForegroundService {
		return
	}
	opts, ok := c.pc.Options(context.Background()).Foreground()
	if !ok {
		slog.Debug("[Coordinator] Foreground service not configured")
		return
	}
	if err := c.pc.Platform.StartForeground(opts); err != nil {
		slog.Warn("[Coordinator] Failed to start foreground service", "error", err)
		return
	}
	c.fgActive = true
	slog.Debug("[Coordinator] Foreground service started", "channel", opts.ChannelID)
}

// stopForegroundLocked requires fgMu.
func (c *Coordinator) stopForegroundLocked() {
	if !c.fgActive {
		return
	}
	if err := c.pc.Platform.StopForeground(); err != nil {
		slog.Warn("[Coordinator] Failed to stop foreground service", "error", err)
	}
	c.fgActive = false
	slog.Debug("[Coordinator] Foreground service stopped")
}

// ForegroundActive reports whether the foreground service is running.
func (c *Coordinator) ForegroundActive() bool {
	c.fgMu.Lock()
	defer c.fgMu.Unlock()
	return c.fgActive
}

// --- session hooks ---

func (c *Coordinator) Emit(ev events.Event) {
	c.pc.Emit(ev)
}

func (c *Coordinator) AudioModeVoIP(s *session.Session) {
	if err := c.pc.Platform.SetAudioModeVoIP(); err != nil {
		slog.Warn("[Coordinator] Failed to set audio mode", "call_id", s.ID, "error", err)
	}
}

// Released deregisters a disconnected session and stops the foreground
// service once no session is left.
func (c *Coordinator) Released(s *session.Session) {
	c.fgMu.Lock()
	defer c.fgMu.Unlock()

	if current, ok := c.pc.Registry.Lookup(s.ID); ok && current == s {
		c.pc.Registry.Remove(s.ID)
	}
	c.pc.Conferences.Leave(s.ID)
	c.pc.Waker.Release(s.ID)

	if c.pc.Registry.Len() == 0 {
		c.stopForegroundLocked()
	}
	slog.Info("[Coordinator] Call released", "call_id", s.ID, "cause", s.Cause())
}

// --- session access ---

// WithSession runs fn on the session for id under the process mutex.
// Unknown ids are ignored, as are transitions refused because the call
// already ended.
func (c *Coordinator) WithSession(id string, fn func(s *session.Session) error) error {
	var (
		err   error
		found bool
	)
	c.pc.Do(func() {
		s, ok := c.pc.Registry.Lookup(id)
		if !ok {
			return
		}
		found = true
		err = fn(s)
	})

	if !found {
		slog.Debug("[Coordinator] Ignoring command for unknown call", "call_id", id)
		return nil
	}
	if err != nil && session.Ignorable(err) {
		slog.Debug("[Coordinator] Ignoring stale command", "call_id", id, "error", err)
		return nil
	}
	return err
}

// Lookup returns a snapshot of the session for id.
func (c *Coordinator) Lookup(id string) (session.Info, bool) {
	s, ok := c.pc.Registry.Lookup(id)
	if !ok {
		return session.Info{}, false
	}
	return s.Snapshot(), true
}

// Snapshots returns a copy of every live session.
func (c *Coordinator) Snapshots() []session.Info {
	sessions := c.pc.Registry.Sessions()
	out := make([]session.Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// ActiveIDs returns the ids of every registered session.
func (c *Coordinator) ActiveIDs() []string {
	return c.pc.Registry.List()
}

// HasActiveOutgoing reports whether an outbound call is in progress.
func (c *Coordinator) HasActiveOutgoing() bool {
	for _, s := range c.pc.Registry.Sessions() {
		if s.Direction == session.DirectionOutgoing && !s.IsTerminated() {
			return true
		}
	}
	return false
}

// EndAll hangs up every session and empties the registry.
func (c *Coordinator) EndAll() []string {
	var ended []string
	c.pc.Do(func() {
		for _, s := range c.pc.Registry.Sessions() {
			if err := s.Hangup(); err != nil && !session.Ignorable(err) {
				slog.Warn("[Coordinator] Hangup failed", "call_id", s.ID, "error", err)
			}
			ended = append(ended, s.ID)
		}

		c.fgMu.Lock()
		defer c.fgMu.Unlock()
		if leftover := c.pc.Registry.ClearAll(); len(leftover) > 0 {
			slog.Warn("[Coordinator] Dropped sessions left after hangup", "count", len(leftover))
		}
		c.stopForegroundLocked()
	})
	slog.Info("[Coordinator] Ended all calls", "count", len(ended))
	return ended
}

// Conference merges two live sessions into a group and takes both off hold.
func (c *Coordinator) Conference(first, second string) error {
	var err error
	c.pc.Do(func() {
		a, okA := c.pc.Registry.Lookup(first)
		b, okB := c.pc.Registry.Lookup(second)
		if !okA || !okB {
			slog.Debug("[Coordinator] Conference with unknown call", "first", first, "second", second)
			return
		}
		if _, err = c.pc.Conferences.Merge(first, second); err != nil {
			return
		}
		for _, s := range []*session.Session{a, b} {
			if uerr := s.Unhold(); uerr != nil && !session.Ignorable(uerr) {
				slog.Warn("[Coordinator] Unhold on merge failed", "call_id", s.ID, "error", uerr)
			}
		}
	})
	return err
}
