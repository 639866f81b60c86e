package transport

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Args is the argument map of one command.
type Args map[string]any

func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Int accepts the float64 numbers Struct values decode to.
func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func (a Args) Map(key string) map[string]any {
	m, _ := a[key].(map[string]any)
	return m
}

func (a Args) Strings(key string) []string {
	list, _ := a[key].([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Require fails with InvalidArgument when a key is missing.
func (a Args) Require(keys ...string) error {
	for _, k := range keys {
		if !a.Has(k) {
			return status.Errorf(codes.InvalidArgument, "missing argument %q", k)
		}
	}
	return nil
}
