package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
)

// swappable forwards to a handler that can be replaced while loggers built
// on it are in use. Children created by WithAttrs/WithGroup replay their
// attributes onto whatever handler is current at record time, so a logger
// derived before Upgrade still reaches the log file afterwards.
type swappable struct {
	root *atomic.Pointer[slog.Handler]
	ops  []func(slog.Handler) slog.Handler
}

func newSwappable(initial slog.Handler) *swappable {
	root := &atomic.Pointer[slog.Handler]{}
	root.Store(&initial)
	return &swappable{root: root}
}

// swap replaces the handler for this swappable and every child of it.
func (s *swappable) swap(h slog.Handler) {
	s.root.Store(&h)
}

func (s *swappable) current() slog.Handler {
	h := *s.root.Load()
	for _, op := range s.ops {
		h = op(h)
	}
	return h
}

func (s *swappable) Enabled(ctx context.Context, level slog.Level) bool {
	return s.current().Enabled(ctx, level)
}

func (s *swappable) Handle(ctx context.Context, r slog.Record) error {
	return s.current().Handle(ctx, r)
}

func (s *swappable) WithAttrs(attrs []slog.Attr) slog.Handler {
	return s.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (s *swappable) WithGroup(name string) slog.Handler {
	return s.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (s *swappable) with(op func(slog.Handler) slog.Handler) *swappable {
	ops := make([]func(slog.Handler) slog.Handler, len(s.ops), len(s.ops)+1)
	copy(ops, s.ops)
	return &swappable{root: s.root, ops: append(ops, op)}
}

// secretKeys are attribute keys whose values never reach a log sink.
var secretKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"client_secret": true,
	"token":         true,
	"access_token":  true,
	"authorization": true,
}

// redact masks secret attributes.
func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}
