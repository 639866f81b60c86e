package platform

import (
	"fmt"
	"strings"

	"github.com/emiago/sipgo/sip"
)

// Address schemes.
const (
	SchemeTel  = "tel"
	SchemeSIP  = "sip"
	SchemeSIPS = "sips"
)

// Address is a dialable address: a scheme and its scheme-specific part.
type Address struct {
	Scheme string
	Part   string
}

// NewAddress builds an address, defaulting to the tel scheme.
func NewAddress(scheme, part string) Address {
	if scheme == "" {
		scheme = SchemeTel
	}
	return Address{Scheme: strings.ToLower(scheme), Part: part}
}

func (a Address) String() string {
	if a.Part == "" {
		return ""
	}
	return a.Scheme + ":" + a.Part
}

func (a Address) IsZero() bool {
	return a.Part == ""
}

// ParseAddress parses "scheme:part". SIP addresses are validated with the
// SIP URI parser and normalized to user@host[:port]. Strings without a
// scheme are treated as tel numbers.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	scheme, part, ok := strings.Cut(s, ":")
	if !ok {
		return NewAddress(SchemeTel, s), nil
	}
	scheme = strings.ToLower(scheme)

	switch scheme {
	case SchemeSIP, SchemeSIPS:
		var uri sip.Uri
		if err := sip.ParseUri(s, &uri); err != nil {
			return Address{}, fmt.Errorf("invalid sip address %q: %w", s, err)
		}
		if uri.Host == "" {
			return Address{}, fmt.Errorf("sip address %q has no host", s)
		}
		hostPort := uri.Host
		if uri.Port > 0 {
			hostPort = fmt.Sprintf("%s:%d", uri.Host, uri.Port)
		}
		if uri.User != "" {
			hostPort = uri.User + "@" + hostPort
		}
		return Address{Scheme: scheme, Part: hostPort}, nil
	case SchemeTel:
		if part == "" {
			return Address{}, fmt.Errorf("empty tel address")
		}
		return Address{Scheme: SchemeTel, Part: part}, nil
	default:
		if part == "" {
			return Address{}, fmt.Errorf("empty %s address", scheme)
		}
		return Address{Scheme: scheme, Part: part}, nil
	}
}

// Request extras keys shared with the application.
const (
	ExtraCallID     = "callUUID"
	ExtraHandle     = "handle"
	ExtraName       = "name"
	ExtraAdditional = "additionalData"
)

// CallExtras builds the extras bundle attached to a call request.
func CallExtras(callID, handle, name string, additional map[string]any) map[string]any {
	extras := map[string]any{
		ExtraCallID: callID,
		ExtraHandle: handle,
		ExtraName:   name,
	}
	if additional != nil {
		extras[ExtraAdditional] = additional
	}
	return extras
}

// StringExtra returns extras[key] if it is a string.
func StringExtra(extras map[string]any, key string) string {
	if v, ok := extras[key].(string); ok {
		return v
	}
	return ""
}

// ConnectionRequest is a platform request to create a connection
type ConnectionRequest struct {
	Address Address
	Account AccountHandle
	Extras  map[string]any
}

// ConnectionResult is the coordinator's answer to a ConnectionRequest
type ConnectionResult struct {
	CallID string
	Failed bool
	Cause  string
}
