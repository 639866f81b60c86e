package events

import "fmt"

// Subject naming conventions.
//
// Hierarchy:
//   callbridge.calls.<call_id>.<event_suffix>  - Per-call events
//   callbridge.app.<event_suffix>              - Application process events
//
// Wildcard subscriptions:
//   callbridge.calls.>                         - All call events
//   callbridge.calls.*.ended                   - All call.ended events
//   callbridge.calls.<call_id>.*               - All events for one call

const (
	// SubjectPrefix is the root of all callbridge subjects
	SubjectPrefix = "callbridge"

	SubjectCalls = SubjectPrefix + ".calls"
	SubjectApp   = SubjectPrefix + ".app"
)

// CallSubject returns the subject for a specific call event.
func CallSubject(callID, suffix string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectCalls, callID, suffix)
}

// AppSubject returns the subject for an application event.
func AppSubject(suffix string) string {
	return SubjectApp + "." + suffix
}

// AllCallEventsSubject returns a wildcard subject for all events of one call.
func AllCallEventsSubject(callID string) string {
	return fmt.Sprintf("%s.%s.*", SubjectCalls, callID)
}

// MatchSubject reports whether subject matches pattern. The pattern supports
// "*" for exactly one token and a trailing ">" for one or more tokens.
func MatchSubject(pattern, subject string) bool {
	if pattern == "" || pattern == ">" {
		return true
	}
	pt := splitTokens(pattern)
	st := splitTokens(subject)
	for i, p := range pt {
		if p == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

func splitTokens(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
