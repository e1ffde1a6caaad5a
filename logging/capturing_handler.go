package logging

import (
	"context"
	"log/slog"
	"strings"
)

// CapturingHandler records every log record into a LogCollector under a fixed
// activity key and then forwards it to the wrapped handler.
type CapturingHandler struct {
	next       slog.Handler
	collector  *LogCollector
	activityID string
	attrs      []slog.Attr
	prefix     string // dotted group path applied to record attributes
}

// NewCapturingHandler wraps next so that records are captured for activityID.
func NewCapturingHandler(next slog.Handler, collector *LogCollector, activityID string) *CapturingHandler {
	return &CapturingHandler{
		next:       next,
		collector:  collector,
		activityID: activityID,
	}
}

// Enabled reports true for every level. Level filtering of the forwarded
// output happens in Handle so debug records are still captured.
func (h *CapturingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}
	for _, a := range h.attrs {
		entry.Attributes[a.Key] = resolveValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attributes[h.prefix+a.Key] = resolveValue(a.Value)
		return true
	})
	h.collector.add(h.activityID, entry)

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs must return a CapturingHandler, otherwise loggers derived with
// With would stop capturing.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}

	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = merged
	return &clone
}

func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.prefix = h.prefix + name + "."
	return &clone
}

// resolveValue converts v into something encoding/json can marshal.
func resolveValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindGroup:
		group := make(map[string]any)
		for _, a := range v.Group() {
			group[a.Key] = resolveValue(a.Value)
		}
		return group
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case []byte:
			return strings.TrimSpace(string(x))
		default:
			return x
		}
	default:
		return v.Any()
	}
}
