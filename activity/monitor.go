// Package activity turns low-level input on the secure desktop into
// Trigger messages for the agent. Any burst of input between two polls
// collapses into a single Trigger.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kardianos/faceunlock/fuclock"
	"github.com/kardianos/faceunlock/pipe"
)

// DefaultInterval is the poll period of the pending-activity flag.
const DefaultInterval = 500 * time.Millisecond

// ErrUnsupported is returned by hookers on platforms without global input hooks.
var ErrUnsupported = errors.New("activity: input hooks not supported on this platform")

// HookKind selects an input source.
type HookKind int

const (
	Mouse HookKind = iota + 1
	Keyboard
)

func (k HookKind) String() string {
	switch k {
	case Mouse:
		return "mouse"
	case Keyboard:
		return "keyboard"
	default:
		return fmt.Sprintf("HookKind(%d)", int(k))
	}
}

// Hooker installs a global input hook that calls fn for every event.
// fn must be cheap and must not block.
type Hooker interface {
	Hook(kind HookKind, fn func()) (unhook func() error, err error)
}

// Sender delivers a Trigger to the agent.
type Sender interface {
	Send(ctx context.Context, msg pipe.Message) error
}

// Options configure a Monitor. Sender is required.
type Options struct {
	Sender   Sender
	Hooker   Hooker // nil selects the platform hooker
	Clock    fuclock.Clock
	Interval time.Duration
	Logger   *slog.Logger
}

// Monitor owns the installed hooks and the poll loop.
type Monitor struct {
	sender   Sender
	hooker   Hooker
	clock    fuclock.Clock
	interval time.Duration
	logger   *slog.Logger

	pending atomic.Bool

	mu      sync.Mutex
	unhooks map[HookKind]func() error

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// Start installs the mouse and keyboard hooks and starts polling. A hook
// that fails to install is logged; Start fails only when no hook could be
// installed for a reason other than ErrUnsupported. The returned Monitor
// must be stopped.
func Start(ctx context.Context, opts Options) (*Monitor, error) {
	if opts.Sender == nil {
		return nil, errors.New("activity: nil sender")
	}
	m := &Monitor{
		sender:   opts.Sender,
		hooker:   opts.Hooker,
		clock:    opts.Clock,
		interval: opts.Interval,
		logger:   opts.Logger,
		unhooks:  make(map[HookKind]func() error, 2),
		done:     make(chan struct{}),
	}
	if m.hooker == nil {
		m.hooker = PlatformHooker()
	}
	if m.clock == nil {
		m.clock = fuclock.Real()
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}

	var errs []error
	for _, kind := range []HookKind{Mouse, Keyboard} {
		if err := m.install(kind); err != nil {
			m.logger.Warn("input hook not installed", "hook", kind, "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && m.Installed() == 0 && !errors.Is(err, ErrUnsupported) {
		m.uninstallAll()
		return nil, err
	}

	ctx, m.cancel = context.WithCancel(ctx)
	go m.poll(ctx)
	return m, nil
}

// install is a no-op for a kind that is already hooked.
func (m *Monitor) install(kind HookKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.unhooks[kind]; ok {
		return nil
	}
	unhook, err := m.hooker.Hook(kind, m.Signal)
	if err != nil {
		return fmt.Errorf("hook %s: %w", kind, err)
	}
	m.unhooks[kind] = unhook
	return nil
}

// Installed returns the number of hooks currently installed.
func (m *Monitor) Installed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unhooks)
}

func (m *Monitor) uninstallAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for kind, unhook := range m.unhooks {
		if err := unhook(); err != nil {
			errs = append(errs, fmt.Errorf("unhook %s: %w", kind, err))
		}
		delete(m.unhooks, kind)
	}
	return errors.Join(errs...)
}

// Signal records input activity. It is the hook callback and may also be
// called directly.
func (m *Monitor) Signal() { m.pending.Store(true) }

func (m *Monitor) poll(ctx context.Context) {
	defer close(m.done)
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !m.pending.Swap(false) {
			continue
		}
		if err := m.sender.Send(ctx, pipe.Trigger()); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Debug("trigger not delivered", "error", err)
		}
	}
}

// Stop ends the poll loop, waits for it, and removes every installed hook.
// Later calls return the first call's result.
func (m *Monitor) Stop() error {
	m.stopOnce.Do(func() {
		m.cancel()
		<-m.done
		m.stopErr = m.uninstallAll()
	})
	return m.stopErr
}
