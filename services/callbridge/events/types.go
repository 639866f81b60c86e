// Package events defines the notifications sent to the application and the
// ordered delivery path that carries them.
package events

import (
	"maps"
	"strings"
	"time"
)

// EventType identifies the type of event
type EventType string

const (
	// CallShowIncoming fires when an inbound session is ringing
	CallShowIncoming EventType = "call.show_incoming"
	// CallStartOutgoing fires when an outbound session has been created
	CallStartOutgoing EventType = "call.start_outgoing"
	// CallAnswered fires when the user answers through the platform
	CallAnswered EventType = "call.answered"
	// CallAudioSessionActivated fires once the call audio mode is set
	CallAudioSessionActivated EventType = "call.audio_session_activated"
	// CallEnded fires when a session disconnects
	CallEnded EventType = "call.ended"
	// CallRejected fires when an inbound session is rejected
	CallRejected EventType = "call.rejected"
	CallHoldToggled EventType = "call.hold_toggled"
	CallMuteToggled EventType = "call.mute_toggled"
	CallRouteChanged EventType = "call.route_changed"
	CallDTMF EventType = "call.dtmf"
	// CallConnectionFailed fires when an outbound request could not proceed
	CallConnectionFailed EventType = "call.connection_failed"

	// AppReachabilityCheck asks the application to confirm it is alive
	AppReachabilityCheck EventType = "app.reachability_check"
	// AppWake is delivered to the process-wake receiver
	AppWake EventType = "app.wake"
)

// Suffix returns the part after the namespace ("call." or "app.")
func (t EventType) Suffix() string {
	s := string(t)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// IsApp reports whether the event is addressed to the application process
// rather than to a single call
func (t EventType) IsApp() bool {
	return strings.HasPrefix(string(t), "app.")
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Subject() string
	Timestamp() time.Time
	CallID() string
}

// BaseEvent contains fields common to all events
type BaseEvent struct {
	// EventID is a unique identifier for this event instance
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	EventTime time.Time `json:"event_time"`
	// CallUUID is the session id, empty for app events not tied to a call
	CallUUID string `json:"call_id,omitempty"`
	NodeID   string `json:"node_id,omitempty"`
}

func (e *BaseEvent) Type() EventType      { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e *BaseEvent) CallID() string       { return e.CallUUID }

// Subject returns the routing subject.
// Format: callbridge.calls.<call_id>.<suffix> or callbridge.app.<suffix>
func (e *BaseEvent) Subject() string {
	if e.EventType.IsApp() {
		return AppSubject(e.EventType.Suffix())
	}
	return CallSubject(e.CallUUID, e.EventType.Suffix())
}

// CallEvent carries the session metadata. Used for show-incoming,
// start-outgoing, answered and audio-session-activated.
type CallEvent struct {
	BaseEvent
	Handle    string         `json:"handle,omitempty"`
	Name      string         `json:"name,omitempty"`
	Direction string         `json:"direction,omitempty"`
	Extras    map[string]any `json:"extras,omitempty"`
}

// EndedEvent fires for both end and reject
type EndedEvent struct {
	BaseEvent
	Cause  string         `json:"cause"`
	Extras map[string]any `json:"extras,omitempty"`
}

// HoldEvent carries the new hold flag
type HoldEvent struct {
	BaseEvent
	Hold   bool           `json:"hold"`
	Extras map[string]any `json:"extras,omitempty"`
}

// MuteEvent carries the new mute flag
type MuteEvent struct {
	BaseEvent
	Muted  bool           `json:"muted"`
	Extras map[string]any `json:"extras,omitempty"`
}

// RouteEvent carries the numeric audio route and its name
type RouteEvent struct {
	BaseEvent
	Route     int            `json:"route"`
	RouteName string         `json:"route_name"`
	Extras    map[string]any `json:"extras,omitempty"`
}

// DTMFEvent carries one digit and the session extras
type DTMFEvent struct {
	BaseEvent
	Digits string         `json:"digits"`
	Extras map[string]any `json:"extras,omitempty"`
}

// FailedEvent fires when an outbound connection was refused
type FailedEvent struct {
	BaseEvent
	Handle string         `json:"handle,omitempty"`
	Name   string         `json:"name,omitempty"`
	Cause  string         `json:"cause"`
	Extras map[string]any `json:"extras,omitempty"`
}

// AppEvent is addressed to the application process as a whole
type AppEvent struct {
	BaseEvent
	Extras map[string]any `json:"extras,omitempty"`
}

func copyExtras(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}
