package fumock

import (
	"context"
	"errors"
	"sync"

	"github.com/kardianos/faceunlock/activity"
	"github.com/kardianos/faceunlock/pipe"
)

// Hooker records hook installation. Kinds listed in Fail refuse to install.
type Hooker struct {
	Fail map[activity.HookKind]error

	mu        sync.Mutex
	fns       map[activity.HookKind]func()
	installs  map[activity.HookKind]int
	uninstall map[activity.HookKind]int
}

func (h *Hooker) Hook(kind activity.HookKind, fn func()) (func() error, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.Fail[kind]; err != nil {
		return nil, err
	}
	if h.fns == nil {
		h.fns = make(map[activity.HookKind]func())
		h.installs = make(map[activity.HookKind]int)
		h.uninstall = make(map[activity.HookKind]int)
	}
	h.fns[kind] = fn
	h.installs[kind]++
	return func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.fns, kind)
		h.uninstall[kind]++
		return nil
	}, nil
}

// Input simulates one input event of kind. It reports false when no hook
// of that kind is installed.
func (h *Hooker) Input(kind activity.HookKind) bool {
	h.mu.Lock()
	fn := h.fns[kind]
	h.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Counts returns how many times kind was installed and uninstalled.
func (h *Hooker) Counts(kind activity.HookKind) (installs, uninstalls int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installs[kind], h.uninstall[kind]
}

// Active returns the number of hooks currently installed.
func (h *Hooker) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fns)
}

// ErrSendFailed is returned by Sender when told to fail.
var ErrSendFailed = errors.New("fumock: send failed")

// Sender forwards every message to Sent. While FailNext is positive each
// send fails and decrements it.
type Sender struct {
	Sent chan pipe.Message

	mu       sync.Mutex
	FailNext int
}

func NewSender() *Sender {
	return &Sender{Sent: make(chan pipe.Message, 32)}
}

func (s *Sender) Send(ctx context.Context, msg pipe.Message) error {
	s.mu.Lock()
	if s.FailNext > 0 {
		s.FailNext--
		s.mu.Unlock()
		return ErrSendFailed
	}
	s.mu.Unlock()
	select {
	case s.Sent <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
