// Package logger installs the process-wide slog handler. Lines look like
// "[15:04:05] [INFO] [Coordinator] Session registered call_id=A".
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	levelVar slog.LevelVar
	writeMu  sync.Mutex
)

// SetLevel sets the global log level
func SetLevel(levelStr string) {
	levelVar.Set(ParseLevel(levelStr))
}

// GetLevel returns the current log level as a string
func GetLevel() string {
	return strings.ToLower(levelVar.Level().String())
}

// ParseLevel parses a level name. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// lineHandler writes one formatted line per record to every output
type lineHandler struct {
	outs  []io.Writer
	attrs []slog.Attr
	group string
}

func (h *lineHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= levelVar.Level()
}

func (h *lineHandler) Handle(ctx context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(record.Time.Format("15:04:05"))
	b.WriteString("] [")
	b.WriteString(record.Level.String())
	b.WriteString("] ")
	b.WriteString(record.Message)

	for _, a := range h.attrs {
		h.writeAttr(&b, a)
	}
	record.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, a)
		return true
	})
	b.WriteByte('\n')

	line := []byte(b.String())
	writeMu.Lock()
	defer writeMu.Unlock()
	for _, out := range h.outs {
		if out != nil {
			_, _ = out.Write(line)
		}
	}
	return nil
}

func (h *lineHandler) writeAttr(b *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	if h.group != "" {
		b.WriteString(h.group)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.Resolve().String())
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &c
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return &c
}

// New returns a logger writing to outputs without installing it.
func New(outputs ...io.Writer) *slog.Logger {
	return slog.New(&lineHandler{outs: outputs})
}

// InitLogger initializes the global logger with one or more output writers
func InitLogger(outputs ...io.Writer) {
	slog.SetDefault(New(outputs...))
}
