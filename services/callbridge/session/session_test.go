package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/sebas/callbridge/services/callbridge/events"
)

type recordingHooks struct {
	mu       sync.Mutex
	events   []events.Event
	voip     int
	released int
}

func (h *recordingHooks) Emit(ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHooks) AudioModeVoIP(*Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.voip++
}

func (h *recordingHooks) Released(*Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released++
}

func (h *recordingHooks) types() []events.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.EventType, len(h.events))
	for i, e := range h.events {
		out[i] = e.Type()
	}
	return out
}

func newTestSession(t *testing.T, dir Direction, caps Capability) (*Session, *recordingHooks) {
	t.Helper()
	hooks := &recordingHooks{}
	s := New("B", dir, Options{
		Handle:       "+15550001",
		Name:         "Bob",
		Extras:       map[string]any{"callUUID": "B", "ticket": 7},
		Capabilities: caps,
		Builder:      events.NewBuilder("test"),
		Hooks:        hooks,
	})
	return s, hooks
}

func equalTypes(a, b []events.EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		signal  Signal
		want    State
		effects []Effect
		wantErr error
	}{
		{"ring", StateInitializing, SignalRing, StateRinging, nil, nil},
		{"dial", StateInitializing, SignalDial, StateDialing, nil, nil},
		{"answer", StateRinging, SignalAnswer, StateActive, []Effect{EffectGainHold, EffectAudioModeVoIP, EffectEmitAnswered, EffectEmitAudioSession}, nil},
		{"connected", StateDialing, SignalConnected, StateActive, []Effect{EffectGainHold, EffectAudioModeVoIP, EffectEmitAudioSession}, nil},
		{"hold", StateActive, SignalHold, StateHeld, []Effect{EffectEmitHold}, nil},
		{"hold again", StateHeld, SignalHold, StateHeld, nil, nil},
		{"unhold", StateHeld, SignalUnhold, StateActive, []Effect{EffectEmitUnhold}, nil},
		{"hangup from ringing", StateRinging, SignalHangup, StateDisconnected, []Effect{EffectEmitEnd, EffectDeregister}, nil},
		{"reject", StateRinging, SignalReject, StateDisconnected, []Effect{EffectEmitReject, EffectDeregister}, nil},
		{"abort from initializing", StateInitializing, SignalAbort, StateDisconnected, []Effect{EffectEmitEnd, EffectDeregister}, nil},
		{"remote end from held", StateHeld, SignalRemoteEnd, StateDisconnected, []Effect{EffectEmitEnd, EffectDeregister}, nil},
		{"answer skipping ring", StateInitializing, SignalAnswer, StateInitializing, nil, ErrInvalidTransition},
		{"hold while ringing", StateRinging, SignalHold, StateRinging, nil, ErrInvalidTransition},
		{"disconnected is final", StateDisconnected, SignalRing, StateDisconnected, nil, ErrTerminated},
		{"no second hangup", StateDisconnected, SignalHangup, StateDisconnected, nil, ErrTerminated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects, err := Transition(tt.from, tt.signal)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Transition() error = %v, want %v", err, tt.wantErr)
				}
				var te *TransitionError
				if !errors.As(err, &te) {
					t.Errorf("error should be a *TransitionError, got %T", err)
				}
			} else if err != nil {
				t.Fatalf("Transition() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Transition() state = %v, want %v", got, tt.want)
			}
			if len(effects) != len(tt.effects) {
				t.Fatalf("Transition() effects = %v, want %v", effects, tt.effects)
			}
			for i := range effects {
				if effects[i] != tt.effects[i] {
					t.Errorf("effect[%d] = %v, want %v", i, effects[i], tt.effects[i])
				}
			}
			if err == nil && got != tt.from && !tt.from.CanTransitionTo(got) {
				t.Errorf("%v -> %v not in the transition table", tt.from, got)
			}
		})
	}
}

func TestActiveOnlyReachableThroughInitializing(t *testing.T) {
	signals := []Signal{SignalRing, SignalDial, SignalAnswer, SignalConnected, SignalSetCurrent,
		SignalHold, SignalUnhold, SignalHangup, SignalRemoteEnd, SignalReject, SignalAbort}

	// Every state reachable from Initializing; Active must never be one step
	// away from Initializing itself.
	for _, sig := range signals {
		next, _, err := Transition(StateInitializing, sig)
		if err == nil && next == StateActive {
			t.Errorf("signal %v jumps from initializing straight to active", sig)
		}
	}
	for _, sig := range signals {
		next, _, _ := Transition(StateDisconnected, sig)
		if next != StateDisconnected {
			t.Errorf("signal %v leaves disconnected", sig)
		}
	}
}

func TestCauseFromReason(t *testing.T) {
	tests := []struct {
		reason int
		want   Cause
	}{
		{1, CauseError},
		{2, CauseRemote},
		{3, CauseBusy},
		{4, CauseAnsweredElsewhere},
		{5, CauseRemote},
		{6, CauseMissed},
		{0, CauseOther},
		{99, CauseOther},
		{-1, CauseOther},
	}
	for _, tt := range tests {
		if got := CauseFromReason(tt.reason); got != tt.want {
			t.Errorf("CauseFromReason(%d) = %v, want %v", tt.reason, got, tt.want)
		}
	}
}

func TestInboundAnswer(t *testing.T) {
	s, hooks := newTestSession(t, DirectionIncoming, 0)

	if err := s.Ring(); err != nil {
		t.Fatalf("Ring() error = %v", err)
	}
	s.Announce()
	if err := s.Answer(); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if got := s.State(); got != StateActive {
		t.Errorf("State() = %v, want active", got)
	}
	if !s.Capabilities().Has(CapHold) {
		t.Error("answer should grant hold")
	}
	want := []events.EventType{events.CallShowIncoming, events.CallAnswered, events.CallAudioSessionActivated}
	if got := hooks.types(); !equalTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if hooks.voip != 1 {
		t.Errorf("AudioModeVoIP called %d times, want 1", hooks.voip)
	}

	answered := hooks.events[1].(*events.CallEvent)
	if answered.Handle != "+15550001" || answered.Name != "Bob" || answered.Extras["ticket"] != 7 {
		t.Errorf("answered event = %+v", answered)
	}
}

func TestHoldRequiresCapability(t *testing.T) {
	s, hooks := newTestSession(t, DirectionOutgoing, 0)
	_ = s.Dial()

	err := s.Hold()
	if !errors.Is(err, ErrHoldNotSupported) {
		t.Errorf("Hold() error = %v, want ErrHoldNotSupported", err)
	}
	if !Ignorable(err) {
		t.Error("a hold without the capability should be ignorable")
	}

	if err := s.Connected(); err != nil {
		t.Fatalf("Connected() error = %v", err)
	}
	if err := s.Hold(); err != nil {
		t.Fatalf("Hold() error = %v", err)
	}
	if err := s.Hold(); err != nil {
		t.Fatalf("second Hold() error = %v", err)
	}
	if err := s.Unhold(); err != nil {
		t.Fatalf("Unhold() error = %v", err)
	}

	want := []events.EventType{events.CallAudioSessionActivated, events.CallHoldToggled, events.CallHoldToggled}
	if got := hooks.types(); !equalTypes(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if !hooks.events[1].(*events.HoldEvent).Hold || hooks.events[2].(*events.HoldEvent).Hold {
		t.Error("hold events should carry true then false")
	}
}

func TestSetMutedOnlyEmitsOnChange(t *testing.T) {
	s, hooks := newTestSession(t, DirectionIncoming, 0)
	_ = s.Ring()

	if !s.SetMuted(true) {
		t.Error("first SetMuted(true) should report a change")
	}
	if s.SetMuted(true) {
		t.Error("second SetMuted(true) should be a no-op")
	}

	got := hooks.types()
	if len(got) != 1 || got[0] != events.CallMuteToggled {
		t.Fatalf("events = %v, want one mute-toggled", got)
	}
	if !hooks.events[0].(*events.MuteEvent).Muted {
		t.Error("mute event should carry muted=true")
	}
}

func TestSetAudioRoute(t *testing.T) {
	s, hooks := newTestSession(t, DirectionIncoming, 0)

	if s.SetAudioRoute(RouteEarpiece) {
		t.Error("route is already earpiece")
	}
	if !s.SetAudioRoute(RouteSpeaker) {
		t.Fatal("SetAudioRoute(speaker) should report a change")
	}
	if s.SetAudioRoute(Route(64)) {
		t.Error("unsupported route should be ignored")
	}

	if len(hooks.events) != 1 {
		t.Fatalf("got %d events, want 1", len(hooks.events))
	}
	ev := hooks.events[0].(*events.RouteEvent)
	if ev.Route != 8 || ev.RouteName != "SPEAKER" {
		t.Errorf("route event = %+v, want 8/SPEAKER", ev)
	}
}

func TestSetAudioStateEmitsPerField(t *testing.T) {
	s, hooks := newTestSession(t, DirectionIncoming, 0)

	s.SetAudioState(AudioState{Muted: true, Route: RouteBluetooth})
	s.SetAudioState(AudioState{Muted: true, Route: RouteBluetooth})
	s.SetAudioState(AudioState{Muted: false, Route: RouteBluetooth})

	want := []events.EventType{events.CallMuteToggled, events.CallRouteChanged, events.CallMuteToggled}
	if got := hooks.types(); !equalTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestPlayDigit(t *testing.T) {
	s, hooks := newTestSession(t, DirectionIncoming, 0)
	_ = s.Ring()
	_ = s.Answer()
	before := s.State()

	if err := s.PlayDigit('7'); err != nil {
		t.Fatalf("PlayDigit() error = %v", err)
	}
	if err := s.PlayDigit('x'); !errors.Is(err, ErrInvalidDigit) {
		t.Errorf("PlayDigit('x') error = %v, want ErrInvalidDigit", err)
	}
	if s.State() != before {
		t.Errorf("DTMF changed state to %v", s.State())
	}

	last := hooks.events[len(hooks.events)-1].(*events.DTMFEvent)
	if last.Digits != "7" || last.Extras["callUUID"] != "B" {
		t.Errorf("dtmf event = %+v", last)
	}
}

func TestDisconnectPaths(t *testing.T) {
	tests := []struct {
		name      string
		end       func(s *Session) error
		cause     Cause
		wantTypes []events.EventType
	}{
		{"hangup", (*Session).Hangup, CauseLocal, []events.EventType{events.CallEnded}},
		{"reject", (*Session).Reject, CauseRejected, []events.EventType{events.CallRejected}},
		{"abort", (*Session).Abort, CauseRejected, []events.EventType{events.CallEnded}},
		{"remote busy", func(s *Session) error { return s.ReportDisconnect(3, true) }, CauseBusy, []events.EventType{events.CallEnded}},
		{"remote silent", func(s *Session) error { return s.ReportDisconnect(6, false) }, CauseMissed, nil},
		{"unmapped reason", func(s *Session) error { return s.ReportDisconnect(99, true) }, CauseOther, []events.EventType{events.CallEnded}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, hooks := newTestSession(t, DirectionIncoming, 0)
			_ = s.Ring()

			if err := tt.end(s); err != nil {
				t.Fatalf("end error = %v", err)
			}
			if s.State() != StateDisconnected {
				t.Errorf("State() = %v, want disconnected", s.State())
			}
			if s.Cause() != tt.cause {
				t.Errorf("Cause() = %v, want %v", s.Cause(), tt.cause)
			}
			if got := hooks.types(); !equalTypes(got, tt.wantTypes) {
				t.Errorf("events = %v, want %v", got, tt.wantTypes)
			}
			if hooks.released != 1 {
				t.Errorf("Released called %d times, want 1", hooks.released)
			}

			// Nothing leaves the terminal state and nothing is released twice.
			if err := s.Hangup(); !errors.Is(err, ErrTerminated) {
				t.Errorf("Hangup after disconnect error = %v, want ErrTerminated", err)
			}
			if s.SetMuted(true) {
				t.Error("SetMuted on a disconnected session should be a no-op")
			}
			if hooks.released != 1 {
				t.Errorf("Released called %d times after extra signals", hooks.released)
			}
		})
	}
}

func TestUpdateDisplayAndExtras(t *testing.T) {
	s, _ := newTestSession(t, DirectionOutgoing, 0)

	s.UpdateDisplay("Robert", "")
	s.MergeExtras(map[string]any{"foo": "bar"})

	info := s.Snapshot()
	if info.Name != "Robert" || info.Handle != "+15550001" {
		t.Errorf("display = %q/%q", info.Name, info.Handle)
	}
	if info.Extras["foo"] != "bar" || info.Extras["name"] != "Robert" {
		t.Errorf("extras = %v", info.Extras)
	}

	// snapshot extras are a copy
	info.Extras["foo"] = "mutated"
	if s.Extras()["foo"] != "bar" {
		t.Error("Snapshot should not expose the internal map")
	}
}

func TestCapabilityString(t *testing.T) {
	if got := (CapMute | CapHold).String(); got != "mute|hold" {
		t.Errorf("String() = %q", got)
	}
	if got := Capability(0).String(); got != "none" {
		t.Errorf("String() = %q", got)
	}
}

func TestConcurrentMuteToggles(t *testing.T) {
	s, hooks := newTestSession(t, DirectionIncoming, 0)
	_ = s.Ring()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetMuted(i%2 == 0)
		}(i)
	}
	wg.Wait()

	// Consecutive mute events must alternate; equal neighbours would mean
	// a redundant event slipped through.
	var prev *bool
	for _, ev := range hooks.events {
		m := ev.(*events.MuteEvent).Muted
		if prev != nil && *prev == m {
			t.Fatalf("two consecutive mute events with muted=%v", m)
		}
		prev = &m
	}
}
