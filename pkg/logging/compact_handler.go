package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// CompactHandler writes one line per record for terminals:
//
//	[LEVEL] HH:MM:SS message | key=value key=value
type CompactHandler struct {
	opts  slog.HandlerOptions
	mu    *sync.Mutex
	out   io.Writer
	color bool

	prefix string // pre-rendered attributes from WithAttrs
	group  string
}

// NewCompactHandler creates a compact console handler writing to w
func NewCompactHandler(w io.Writer, opts *slog.HandlerOptions) *CompactHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &CompactHandler{opts: *opts, mu: &sync.Mutex{}, out: w}
}

func (h *CompactHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

var levelColors = map[slog.Level]*color.Color{
	LevelTrace:      color.New(color.FgHiBlack),
	slog.LevelDebug: color.New(color.FgCyan),
	slog.LevelInfo:  color.New(color.FgGreen),
	slog.LevelWarn:  color.New(color.FgYellow),
	slog.LevelError: color.New(color.FgRed, color.Bold),
}

func levelTag(l slog.Level) string {
	switch {
	case l < slog.LevelDebug:
		return "[TRACE]"
	case l < slog.LevelInfo:
		return "[DEBUG]"
	case l < slog.LevelWarn:
		return "[INFO] "
	case l < slog.LevelError:
		return "[WARN] "
	}
	return "[ERROR]"
}

func (h *CompactHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	tag := levelTag(r.Level)
	if c, ok := levelColors[r.Level]; ok && h.color {
		tag = c.Sprint(tag)
	}
	sb.WriteString(tag)
	sb.WriteByte(' ')
	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	attrs := h.prefix
	r.Attrs(func(a slog.Attr) bool {
		if !a.Equal(slog.Attr{}) {
			attrs += " " + h.formatAttr(a)
		}
		return true
	})
	if attrs != "" {
		sb.WriteString(" |")
		sb.WriteString(attrs)
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *CompactHandler) formatAttr(a slog.Attr) string {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	v := a.Value.Resolve()

	switch a.Key {
	case "requestID", "snapshot":
		// IDs are UUIDs; the first block is enough to correlate lines
		if s := v.String(); len(s) > 8 {
			return key + "=" + s[:8]
		}
	case "error":
		return key + "=" + strconv.Quote(v.String())
	}

	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\n\"=") {
			s = strconv.Quote(s)
		}
		return key + "=" + s
	case slog.KindFloat64:
		return key + "=" + strconv.FormatFloat(v.Float64(), 'g', 4, 64)
	case slog.KindTime:
		return key + "=" + v.Time().Format(time.RFC3339)
	case slog.KindGroup:
		parts := make([]string, 0, len(v.Group()))
		for _, ga := range v.Group() {
			parts = append(parts, h.formatAttr(slog.Attr{Key: a.Key + "." + ga.Key, Value: ga.Value}))
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprintf("%s=%v", key, v.Any())
}

func (h *CompactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	for _, a := range attrs {
		c.prefix += " " + h.formatAttr(a)
	}
	return &c
}

func (h *CompactHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group != "" {
		name = c.group + "." + name
	}
	c.group = name
	return &c
}
