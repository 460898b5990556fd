// Package fumock provides test doubles for the faceunlock collaborators.
package fumock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestLogHandler is a slog.Handler that writes to t.Logf and keeps every
// message for later inspection. Records arriving after the test ends are
// dropped.
type TestLogHandler struct {
	t     *testing.T
	attrs []slog.Attr
	state *logState
}

type logState struct {
	mu       sync.Mutex
	done     bool
	messages []string
}

// NewLogger returns a debug-level logger bound to t.
func NewLogger(t *testing.T) (*slog.Logger, *TestLogHandler) {
	h := &TestLogHandler{t: t, state: &logState{}}
	t.Cleanup(func() {
		h.state.mu.Lock()
		h.state.done = true
		h.state.mu.Unlock()
	})
	return slog.New(h), h
}

func (h *TestLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *TestLogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	attr := func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		attr(a)
	}
	r.Attrs(attr)
	line := b.String()

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	if h.state.done {
		return nil
	}
	now := time.Now()
	h.t.Logf("%d.%03d: %s %s", now.Second(), now.Nanosecond()/1e6, r.Level, line)
	h.state.messages = append(h.state.messages, line)
	return nil
}

func (h *TestLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &n
}

func (h *TestLogHandler) WithGroup(string) slog.Handler { return h }

// Contains reports whether any logged line contains substr.
func (h *TestLogHandler) Contains(substr string) bool {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	for _, m := range h.state.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}
