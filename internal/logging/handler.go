package logging

import (
	"context"
	"log/slog"
)

// DiagHandler is the connection-diagnostics handler: one level gate in front
// of every configured sink (console, file, ...). The client derives loggers
// per connection with With("client_id", ...), so the gate and the sink set
// must survive WithAttrs and WithGroup intact.
type DiagHandler struct {
	minLevel slog.Level
	sinks    []slog.Handler
}

// NewDiagHandler builds a handler dropping records below minLevel and
// fanning the rest out to every sink.
func NewDiagHandler(minLevel slog.Level, sinks ...slog.Handler) *DiagHandler {
	return &DiagHandler{minLevel: minLevel, sinks: sinks}
}

// Enabled reports whether at least one sink accepts records at this level.
func (h *DiagHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	for _, s := range h.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle fans the record out to every enabled sink, failing fast on the
// first sink error so logging failures are not silently ignored.
func (h *DiagHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.minLevel {
		return nil
	}
	for _, s := range h.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// WithAttrs applies attrs to every sink, keeping the gate in front.
func (h *DiagHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DiagHandler{minLevel: h.minLevel, sinks: deriveSinks(h.sinks, func(s slog.Handler) slog.Handler {
		return s.WithAttrs(attrs)
	})}
}

// WithGroup applies the group to every sink, keeping the gate in front.
func (h *DiagHandler) WithGroup(name string) slog.Handler {
	return &DiagHandler{minLevel: h.minLevel, sinks: deriveSinks(h.sinks, func(s slog.Handler) slog.Handler {
		return s.WithGroup(name)
	})}
}

func deriveSinks(sinks []slog.Handler, derive func(slog.Handler) slog.Handler) []slog.Handler {
	out := make([]slog.Handler, len(sinks))
	for i, s := range sinks {
		out[i] = derive(s)
	}
	return out
}

var _ slog.Handler = (*DiagHandler)(nil)
