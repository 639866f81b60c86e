// Package settings holds the persisted options document. The document is an
// opaque key-value map; a few keys are interpreted by the bridge.
package settings

import (
	"encoding/json"
	"maps"

	"github.com/sebas/callbridge/services/callbridge/platform"
)

// Keys interpreted by the bridge.
const (
	KeySelfManaged           = "isSelfManaged"
	KeySupportsHolding       = "supportsHolding"
	KeyHandleScheme          = "handleSchema"
	KeyImageName             = "imageName"
	KeyAppName               = "appName"
	KeyConnectionManager     = "connectionManager"
	KeyForegroundService     = "foregroundService"
	KeyAdditionalPermissions = "additionalPermissions"

	DefaultHandleScheme = platform.SchemeTel
)

// Settings is the options document.
type Settings map[string]any

// Clone returns a shallow copy.
func (s Settings) Clone() Settings {
	if s == nil {
		return Settings{}
	}
	return maps.Clone(s)
}

// Merge returns a copy of s with the top-level keys of other written over it.
func (s Settings) Merge(other Settings) Settings {
	out := s.Clone()
	maps.Copy(out, other)
	return out
}

func (s Settings) Has(key string) bool {
	v, ok := s[key]
	return ok && v != nil
}

func (s Settings) Bool(key string) bool {
	b, _ := s[key].(bool)
	return b
}

func (s Settings) String(key string) string {
	str, _ := s[key].(string)
	return str
}

// Int accepts the numeric types produced by JSON, YAML and Go callers.
func (s Settings) Int(key string) (int, bool) {
	switch v := s[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Map returns a nested document, or nil.
func (s Settings) Map(key string) Settings {
	switch v := s[key].(type) {
	case Settings:
		return v
	case map[string]any:
		return Settings(v)
	}
	return nil
}

// Strings returns a string list. Non-string entries are skipped.
func (s Settings) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func (s Settings) SelfManaged() bool {
	return s.Bool(KeySelfManaged)
}

func (s Settings) SupportsHolding() bool {
	return s.Bool(KeySupportsHolding)
}

// HandleScheme is the address scheme for outgoing calls, tel by default.
func (s Settings) HandleScheme() string {
	if scheme := s.String(KeyHandleScheme); scheme != "" {
		return scheme
	}
	return DefaultHandleScheme
}

// Foreground returns the foreground service options, if configured.
func (s Settings) Foreground() (platform.ForegroundOptions, bool) {
	fg := s.Map(KeyForegroundService)
	if fg == nil {
		return platform.ForegroundOptions{}, false
	}
	opts := platform.ForegroundOptions{
		ChannelID:         fg.String("channelId"),
		ChannelName:       fg.String("channelName"),
		NotificationTitle: fg.String("notificationTitle"),
		NotificationIcon:  fg.String("notificationIcon"),
	}
	if id, ok := fg.Int("notificationId"); ok {
		opts.NotificationID = id
	}
	return opts, true
}

// WithForeground returns a copy with the foreground service options set.
func (s Settings) WithForeground(opts platform.ForegroundOptions) Settings {
	fg := map[string]any{
		"channelId":         opts.ChannelID,
		"channelName":       opts.ChannelName,
		"notificationTitle": opts.NotificationTitle,
	}
	if opts.NotificationIcon != "" {
		fg["notificationIcon"] = opts.NotificationIcon
	}
	if opts.NotificationID != 0 {
		fg["notificationId"] = opts.NotificationID
	}
	return s.Merge(Settings{KeyForegroundService: fg})
}
