package session

import "strings"

// Route is an audio route. Values match the platform's bit values so a
// set of routes can be stored as a mask.
type Route int

const (
	RouteEarpiece     Route = 1
	RouteBluetooth    Route = 2
	RouteWiredHeadset Route = 4
	RouteSpeaker      Route = 8

	// RouteWiredOrEarpiece is the platform's combined mask
	RouteWiredOrEarpiece = RouteEarpiece | RouteWiredHeadset

	// AllRoutes is the default supported route mask
	AllRoutes = RouteEarpiece | RouteBluetooth | RouteWiredHeadset | RouteSpeaker
)

// String returns the route name the application expects
func (r Route) String() string {
	switch r {
	case RouteEarpiece:
		return "EARPIECE"
	case RouteBluetooth:
		return "BLUETOOTH"
	case RouteWiredHeadset:
		return "WIRED_HEADSET"
	case RouteSpeaker:
		return "SPEAKER"
	case RouteWiredOrEarpiece:
		return "WIRED_OR_EARPIECE"
	default:
		return "UNKNOWN"
	}
}

// Has reports whether every bit of other is set in r
func (r Route) Has(other Route) bool {
	return other != 0 && r&other == other
}

// ParseRoute accepts a route name, case-insensitive. "PHONE" and "HEADSET"
// are accepted as aliases.
func ParseRoute(s string) (Route, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EARPIECE", "PHONE":
		return RouteEarpiece, true
	case "BLUETOOTH":
		return RouteBluetooth, true
	case "WIRED_HEADSET", "HEADSET":
		return RouteWiredHeadset, true
	case "SPEAKER":
		return RouteSpeaker, true
	}
	return 0, false
}

// AudioState is the audio sub-state of a session
type AudioState struct {
	Muted           bool
	Route           Route
	SupportedRoutes Route
}

// Capability is a bitset of what a session may do
type Capability int

const (
	CapMute Capability = 1 << iota
	CapHold
	CapSelfManaged
	CapConference
)

// Has reports whether c includes all of other
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	var parts []string
	if c.Has(CapMute) {
		parts = append(parts, "mute")
	}
	if c.Has(CapHold) {
		parts = append(parts, "hold")
	}
	if c.Has(CapSelfManaged) {
		parts = append(parts, "self-managed")
	}
	if c.Has(CapConference) {
		parts = append(parts, "conference")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ValidDigit reports whether r is a DTMF character
func ValidDigit(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '*' || r == '#':
		return true
	case r >= 'A' && r <= 'D':
		return true
	}
	return false
}
