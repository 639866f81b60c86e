// Package session implements the per-call connection entity and its state
// machine.
package session

import (
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/sebas/callbridge/services/callbridge/events"
)

// Hooks receives the side effects of a session that reach outside of it.
// Hooks are invoked after the session's fields have been updated, in the
// order the effects were produced, and never with the field lock held.
type Hooks interface {
	// Emit delivers an outbound event
	Emit(ev events.Event)
	// AudioModeVoIP switches the platform audio mode to calls
	AudioModeVoIP(s *Session)
	// Released is called once when the session reaches the terminal state
	Released(s *Session)
}

type noopHooks struct{}

func (noopHooks) Emit(events.Event)      {}
func (noopHooks) AudioModeVoIP(*Session) {}
func (noopHooks) Released(*Session)      {}

// Options configures a new session
type Options struct {
	Handle          string
	Name            string
	Extras          map[string]any
	Capabilities    Capability
	SelfManaged     bool
	SupportedRoutes Route
	Route           Route
	Builder         *events.Builder
	Hooks           Hooks
}

// Session is one tracked call, from creation to disconnection.
type Session struct {
	// ID is stable for the session's lifetime
	ID        string
	Direction Direction
	CreatedAt time.Time

	// opMu serializes operations so effects dispatch in state-change order
	opMu sync.Mutex

	mu             sync.RWMutex
	remoteHandle   string
	displayName    string
	state          State
	audio          AudioState
	caps           Capability
	selfManaged    bool
	extras         map[string]any
	cause          Cause
	audioModeVoIP  bool
	stateChangedAt time.Time
	answeredAt     time.Time
	endedAt        time.Time

	builder *events.Builder
	hooks   Hooks
}

// New creates a session in StateInitializing.
func New(id string, dir Direction, opts Options) *Session {
	now := time.Now()
	supported := opts.SupportedRoutes
	if supported == 0 {
		supported = AllRoutes
	}
	route := opts.Route
	if route == 0 {
		route = RouteEarpiece
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = noopHooks{}
	}
	extras := make(map[string]any, len(opts.Extras))
	maps.Copy(extras, opts.Extras)

	return &Session{
		ID:             id,
		Direction:      dir,
		CreatedAt:      now,
		remoteHandle:   opts.Handle,
		displayName:    opts.Name,
		state:          StateInitializing,
		audio:          AudioState{Route: route, SupportedRoutes: supported},
		caps:           opts.Capabilities | CapMute,
		selfManaged:    opts.SelfManaged,
		extras:         extras,
		stateChangedAt: now,
		builder:        opts.Builder,
		hooks:          hooks,
	}
}

// Info is a point-in-time copy of a session
type Info struct {
	ID           string
	Handle       string
	Name         string
	Direction    Direction
	State        State
	Audio        AudioState
	Capabilities Capability
	SelfManaged  bool
	Cause        Cause
	Extras       map[string]any
	VoIPAudio    bool
	CreatedAt    time.Time
	ChangedAt    time.Time
	AnsweredAt   time.Time
	EndedAt      time.Time
}

// Snapshot returns a copy of the session fields
func (s *Session) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:           s.ID,
		Handle:       s.remoteHandle,
		Name:         s.displayName,
		Direction:    s.Direction,
		State:        s.state,
		Audio:        s.audio,
		Capabilities: s.caps,
		SelfManaged:  s.selfManaged,
		Cause:        s.cause,
		Extras:       maps.Clone(s.extras),
		VoIPAudio:    s.audioModeVoIP,
		CreatedAt:    s.CreatedAt,
		ChangedAt:    s.stateChangedAt,
		AnsweredAt:   s.answeredAt,
		EndedAt:      s.endedAt,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Handle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteHandle
}

func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

func (s *Session) Audio() AudioState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audio
}

func (s *Session) Capabilities() Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

func (s *Session) Cause() Cause {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cause
}

// Extras returns a copy of the application metadata
func (s *Session) Extras() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.extras)
}

// IsTerminated returns true once the session is disconnected
func (s *Session) IsTerminated() bool {
	return s.State().IsTerminal()
}

// pending collects work to run after the field lock is released
type pending struct {
	events   []events.Event
	voip     bool
	released bool
}

func (s *Session) dispatch(p pending) {
	if p.voip {
		s.hooks.AudioModeVoIP(s)
	}
	for _, ev := range p.events {
		s.hooks.Emit(ev)
	}
	if p.released {
		s.hooks.Released(s)
	}
}

// Announce emits show-incoming or start-outgoing with the full session
// metadata. Called once the session is registered.
func (s *Session) Announce() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	eventType := events.CallShowIncoming
	if s.Direction == DirectionOutgoing {
		eventType = events.CallStartOutgoing
	}
	ev := s.callEventLocked(eventType)
	s.mu.RUnlock()

	s.dispatch(pending{events: []events.Event{ev}})
}

func (s *Session) callEventLocked(eventType events.EventType) events.Event {
	return s.builder.Call(eventType, s.ID).
		Handle(s.remoteHandle).
		Name(s.displayName).
		Direction(s.Direction.String()).
		Extras(s.extras).
		Build()
}

// apply runs one signal through Transition and applies its effects.
// cause is recorded when the signal disconnects the session; notify=false
// suppresses the end event.
func (s *Session) apply(sig Signal, cause Cause, notify bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	from := s.state
	if sig == SignalHold && !from.IsTerminal() && !s.caps.Has(CapHold) {
		s.mu.Unlock()
		return ErrHoldNotSupported
	}
	next, effects, err := Transition(from, sig)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	now := time.Now()
	if next != from {
		s.state = next
		s.stateChangedAt = now
	}
	if next == StateDisconnected {
		s.cause = cause
		s.endedAt = now
	}

	var p pending
	for _, eff := range effects {
		switch eff {
		case EffectAudioModeVoIP:
			s.audioModeVoIP = true
			p.voip = true
		case EffectGainHold:
			s.caps |= CapHold
		case EffectEmitAnswered:
			s.answeredAt = now
			p.events = append(p.events, s.callEventLocked(events.CallAnswered))
		case EffectEmitAudioSession:
			if s.answeredAt.IsZero() {
				s.answeredAt = now
			}
			p.events = append(p.events, s.callEventLocked(events.CallAudioSessionActivated))
		case EffectEmitHold:
			p.events = append(p.events, s.builder.HoldToggled(s.ID, true, s.extras))
		case EffectEmitUnhold:
			p.events = append(p.events, s.builder.HoldToggled(s.ID, false, s.extras))
		case EffectEmitEnd:
			if notify {
				p.events = append(p.events, s.builder.Ended(s.ID, cause.String(), s.extras))
			}
		case EffectEmitReject:
			p.events = append(p.events, s.builder.Rejected(s.ID, cause.String(), s.extras))
		case EffectDeregister:
			p.released = true
		}
	}
	s.mu.Unlock()

	if next != from {
		slog.Debug("[Session] State changed", "call_id", s.ID, "from", from, "to", next, "signal", sig)
	}
	s.dispatch(p)
	return nil
}

// Ring moves a new inbound session to ringing
func (s *Session) Ring() error {
	return s.apply(SignalRing, CauseUnknown, true)
}

// Dial moves a new outbound session to dialing
func (s *Session) Dial() error {
	return s.apply(SignalDial, CauseUnknown, true)
}

// Answer is the user answering a ringing call
func (s *Session) Answer() error {
	return s.apply(SignalAnswer, CauseUnknown, true)
}

// Connected is the platform reporting an established outbound call
func (s *Session) Connected() error {
	return s.apply(SignalConnected, CauseUnknown, true)
}

// SetCurrent marks the call active without emitting events
func (s *Session) SetCurrent() error {
	return s.apply(SignalSetCurrent, CauseUnknown, true)
}

// Hold places an active call on hold. Requires CapHold.
func (s *Session) Hold() error {
	return s.apply(SignalHold, CauseUnknown, true)
}

// Unhold resumes a held call
func (s *Session) Unhold() error {
	return s.apply(SignalUnhold, CauseUnknown, true)
}

// SetHold calls Hold or Unhold
func (s *Session) SetHold(hold bool) error {
	if hold {
		return s.Hold()
	}
	return s.Unhold()
}

// Hangup is a local disconnect
func (s *Session) Hangup() error {
	return s.apply(SignalHangup, CauseLocal, true)
}

// Reject declines a call
func (s *Session) Reject() error {
	return s.apply(SignalReject, CauseRejected, true)
}

// Abort ends a call the user was never alerted to
func (s *Session) Abort() error {
	return s.apply(SignalAbort, CauseRejected, true)
}

// ReportDisconnect ends the call with a cause derived from reason. The end
// event is only emitted when notify is true.
func (s *Session) ReportDisconnect(reason int, notify bool) error {
	return s.apply(SignalRemoteEnd, CauseFromReason(reason), notify)
}

// SetMuted updates the mute flag, emitting mute-toggled only on change.
func (s *Session) SetMuted(muted bool) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state.IsTerminal() || s.audio.Muted == muted {
		s.mu.Unlock()
		return false
	}
	s.audio.Muted = muted
	ev := s.builder.MuteToggled(s.ID, muted, s.extras)
	s.mu.Unlock()

	s.dispatch(pending{events: []events.Event{ev}})
	return true
}

// SetAudioRoute updates the audio route, emitting route-changed only on
// change. Routes outside the supported set are ignored.
func (s *Session) SetAudioRoute(route Route) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state.IsTerminal() || s.audio.Route == route || !s.audio.SupportedRoutes.Has(route) {
		s.mu.Unlock()
		return false
	}
	s.audio.Route = route
	ev := s.builder.RouteChanged(s.ID, int(route), route.String(), s.extras)
	s.mu.Unlock()

	s.dispatch(pending{events: []events.Event{ev}})
	return true
}

// SetAudioState applies a platform-reported audio state. Mute and route
// events are emitted independently, each only when its value changed.
func (s *Session) SetAudioState(state AudioState) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	var p pending
	if state.SupportedRoutes != 0 {
		s.audio.SupportedRoutes = state.SupportedRoutes
	}
	if s.audio.Muted != state.Muted {
		s.audio.Muted = state.Muted
		p.events = append(p.events, s.builder.MuteToggled(s.ID, state.Muted, s.extras))
	}
	if state.Route != 0 && s.audio.Route != state.Route {
		s.audio.Route = state.Route
		p.events = append(p.events, s.builder.RouteChanged(s.ID, int(state.Route), state.Route.String(), s.extras))
	}
	s.mu.Unlock()

	s.dispatch(p)
}

// PlayDigit emits a DTMF event carrying the digit and the session extras.
// The lifecycle state is unchanged.
func (s *Session) PlayDigit(digit rune) error {
	if !ValidDigit(digit) {
		return ErrInvalidDigit
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	if s.state.IsTerminal() {
		s.mu.RUnlock()
		return ErrTerminated
	}
	ev := s.builder.DTMF(s.ID, string(digit), s.extras)
	s.mu.RUnlock()

	s.dispatch(pending{events: []events.Event{ev}})
	return nil
}

// UpdateDisplay changes the caller name and handle. Empty values leave the
// current value in place.
func (s *Session) UpdateDisplay(name, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.displayName = name
		s.extras["name"] = name
	}
	if handle != "" {
		s.remoteHandle = handle
		s.extras["handle"] = handle
	}
}

// MergeExtras merges platform-reported metadata into the session extras
func (s *Session) MergeExtras(extras map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.extras, extras)
}

// GrantCapabilities adds capabilities, e.g. hold reported mid-session
func (s *Session) GrantCapabilities(c Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps |= c
}

// Ignorable reports whether err is an expected outcome that callers treat
// as a no-op, such as a command arriving after disconnect or a hold request
// on a call without the hold capability.
func Ignorable(err error) bool {
	return errors.Is(err, ErrTerminated) || errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrHoldNotSupported)
}
