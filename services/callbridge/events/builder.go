package events

import (
	"time"

	"github.com/google/uuid"
)

// Builder provides construction of events with consistent defaults.
type Builder struct {
	nodeID string
	now    func() time.Time
}

// NewBuilder creates an event builder stamped with nodeID.
func NewBuilder(nodeID string) *Builder {
	return &Builder{nodeID: nodeID, now: time.Now}
}

func (b *Builder) newBase(eventType EventType, callID string) BaseEvent {
	if b == nil {
		return BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			EventTime: time.Now().UTC(),
			CallUUID:  callID,
		}
	}
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventTime: b.now().UTC(),
		CallUUID:  callID,
		NodeID:    b.nodeID,
	}
}

// CallBuilder constructs a CallEvent.
type CallBuilder struct {
	event *CallEvent
}

// Call starts building a CallEvent of the given type.
func (b *Builder) Call(eventType EventType, callID string) *CallBuilder {
	return &CallBuilder{
		event: &CallEvent{BaseEvent: b.newBase(eventType, callID)},
	}
}

func (cb *CallBuilder) Handle(handle string) *CallBuilder {
	cb.event.Handle = handle
	return cb
}

func (cb *CallBuilder) Name(name string) *CallBuilder {
	cb.event.Name = name
	return cb
}

func (cb *CallBuilder) Direction(direction string) *CallBuilder {
	cb.event.Direction = direction
	return cb
}

func (cb *CallBuilder) Extras(extras map[string]any) *CallBuilder {
	cb.event.Extras = copyExtras(extras)
	return cb
}

func (cb *CallBuilder) Build() *CallEvent {
	return cb.event
}

// Ended builds an end event.
func (b *Builder) Ended(callID, cause string, extras map[string]any) *EndedEvent {
	return &EndedEvent{
		BaseEvent: b.newBase(CallEnded, callID),
		Cause:     cause,
		Extras:    copyExtras(extras),
	}
}

// Rejected builds a reject event.
func (b *Builder) Rejected(callID, cause string, extras map[string]any) *EndedEvent {
	return &EndedEvent{
		BaseEvent: b.newBase(CallRejected, callID),
		Cause:     cause,
		Extras:    copyExtras(extras),
	}
}

func (b *Builder) HoldToggled(callID string, hold bool, extras map[string]any) *HoldEvent {
	return &HoldEvent{BaseEvent: b.newBase(CallHoldToggled, callID), Hold: hold, Extras: copyExtras(extras)}
}

func (b *Builder) MuteToggled(callID string, muted bool, extras map[string]any) *MuteEvent {
	return &MuteEvent{BaseEvent: b.newBase(CallMuteToggled, callID), Muted: muted, Extras: copyExtras(extras)}
}

func (b *Builder) RouteChanged(callID string, route int, name string, extras map[string]any) *RouteEvent {
	return &RouteEvent{
		BaseEvent: b.newBase(CallRouteChanged, callID),
		Route:     route,
		RouteName: name,
		Extras:    copyExtras(extras),
	}
}

func (b *Builder) DTMF(callID, digits string, extras map[string]any) *DTMFEvent {
	return &DTMFEvent{
		BaseEvent: b.newBase(CallDTMF, callID),
		Digits:    digits,
		Extras:    copyExtras(extras),
	}
}

// ConnectionFailed builds a connection-failed event.
func (b *Builder) ConnectionFailed(callID, handle, name, cause string, extras map[string]any) *FailedEvent {
	return &FailedEvent{
		BaseEvent: b.newBase(CallConnectionFailed, callID),
		Handle:    handle,
		Name:      name,
		Cause:     cause,
		Extras:    copyExtras(extras),
	}
}

// ReachabilityCheck builds a reachability-check event. callID may be empty.
func (b *Builder) ReachabilityCheck(callID string, extras map[string]any) *AppEvent {
	return &AppEvent{BaseEvent: b.newBase(AppReachabilityCheck, callID), Extras: copyExtras(extras)}
}

// Wake builds a wake-application event. callID may be empty.
func (b *Builder) Wake(callID string, extras map[string]any) *AppEvent {
	return &AppEvent{BaseEvent: b.newBase(AppWake, callID), Extras: copyExtras(extras)}
}
