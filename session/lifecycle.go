// Package session drives the agent through a lock cycle: it arms when the
// desktop locks, starts a face match on each permitted trigger, and tears
// everything down when the desktop unlocks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kardianos/faceunlock/fuclock"
	"github.com/kardianos/faceunlock/fustate"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/match"
	"github.com/kardianos/faceunlock/pipe"
)

// ErrClosed is returned by calls on a closed Lifecycle.
var ErrClosed = errors.New("session: closed")

// State is the lock-cycle state.
type State int

const (
	Unlocked State = iota
	Armed
	Scanning
	// AwaitingUnlock holds the cycle open after a credential was delivered
	// until the desktop reports it unlocked. Triggers may still scan again
	// in case the logon UI rejected the credential.
	AwaitingUnlock
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Armed:
		return "armed"
	case Scanning:
		return "scanning"
	case AwaitingUnlock:
		return "awaiting-unlock"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event drives the state machine.
type Event int

const (
	EventLock Event = iota + 1
	EventUnlock
	EventTrigger
	EventDelivered
	EventNotDelivered
)

func (e Event) String() string {
	switch e {
	case EventLock:
		return "lock"
	case EventUnlock:
		return "unlock"
	case EventTrigger:
		return "trigger"
	case EventDelivered:
		return "delivered"
	case EventNotDelivered:
		return "not-delivered"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

var transitions = []fustate.Transition[State, Event]{
	{From: Unlocked, Event: EventLock, To: Armed},
	{From: Unlocked, Event: EventUnlock, To: Unlocked},
	{From: Armed, Event: EventTrigger, To: Scanning},
	{From: Armed, Event: EventUnlock, To: Unlocked},
	{From: Scanning, Event: EventDelivered, To: AwaitingUnlock},
	{From: Scanning, Event: EventNotDelivered, To: Armed},
	{From: Scanning, Event: EventUnlock, To: Unlocked},
	{From: AwaitingUnlock, Event: EventTrigger, To: Scanning},
	{From: AwaitingUnlock, Event: EventUnlock, To: Unlocked},
}

// SettingsSource loads the runtime settings. It returns usable settings
// even when it also returns an error.
type SettingsSource interface {
	Settings() (fustore.Settings, error)
}

// ProfileCounter reports how many profiles are enrolled.
type ProfileCounter interface {
	Count() (int, error)
}

// Scanner runs one face match.
type Scanner interface {
	Run(ctx context.Context, req match.Request) (match.Outcome, error)
}

// TriggerSource delivers Trigger notifications while listening. fn must
// not block.
type TriggerSource interface {
	Listen(ctx context.Context, fn func()) (stop func(), err error)
}

// Config holds the collaborators of a Lifecycle. Settings, Profiles,
// Scanner and Triggers are required.
type Config struct {
	Settings SettingsSource
	Profiles ProfileCounter
	Scanner  Scanner
	Triggers TriggerSource
	// Policy is shared with the scanner's failure counter. Nil creates one.
	Policy *RetryPolicy
	// OnLock runs at the start of every lock cycle.
	OnLock func()
	Clock  fuclock.Clock
	Logger *slog.Logger
	// NewAttemptID names each scan attempt. Nil uses random UUIDs.
	NewAttemptID func() string
}

type request struct {
	event Event
	reply chan struct{}
}

type scan struct {
	id      string
	cancel  context.CancelFunc
	done    chan struct{}
	outcome match.Outcome
	err     error
}

// Lifecycle owns the lock cycle. One goroutine handles every event; Lock,
// Unlock and Trigger wait until their event has been handled.
type Lifecycle struct {
	cfg    Config
	policy *RetryPolicy
	clock  fuclock.Clock
	logger *slog.Logger
	m      *fustate.Machine[State, Event]

	requests chan request
	triggers chan uint64
	quit     chan struct{}
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once

	// Owned by the loop goroutine.
	gen          uint64
	settings     fustore.Settings
	stopTriggers func()
	timer        *fuclock.Timer
	scan         *scan
}

// New starts the event loop. Close must be called to stop it.
func New(cfg Config) *Lifecycle {
	l := &Lifecycle{
		cfg:      cfg,
		policy:   cfg.Policy,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		requests: make(chan request),
		triggers: make(chan uint64, 4),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if l.policy == nil {
		l.policy = NewRetryPolicy(0)
	}
	if l.clock == nil {
		l.clock = fuclock.Real()
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	if l.cfg.NewAttemptID == nil {
		l.cfg.NewAttemptID = uuid.NewString
	}
	l.m = fustate.New(Unlocked, transitions, func(from, to State, ev Event) {
		if from != to {
			l.logger.Info("session state changed", "from", from, "to", to, "event", ev)
		}
	})
	l.ctx, l.cancel = context.WithCancel(context.Background())
	go l.run()
	return l
}

// State returns the current state.
func (l *Lifecycle) State() State { return l.m.Current() }

// Policy returns the retry policy of the current cycle.
func (l *Lifecycle) Policy() *RetryPolicy { return l.policy }

// Lock handles a session lock notification.
func (l *Lifecycle) Lock() error { return l.post(EventLock) }

// Unlock handles a session unlock notification. It returns once any scan
// has exited and the trigger listener is stopped.
func (l *Lifecycle) Unlock() error { return l.post(EventUnlock) }

// Trigger asks for a scan attempt.
func (l *Lifecycle) Trigger() error { return l.post(EventTrigger) }

// Close tears down any active cycle and stops the loop. It is safe to call
// more than once.
func (l *Lifecycle) Close() error {
	l.once.Do(func() { close(l.quit) })
	<-l.done
	return nil
}

func (l *Lifecycle) post(ev Event) error {
	req := request{event: ev, reply: make(chan struct{})}
	select {
	case l.requests <- req:
	case <-l.done:
		return ErrClosed
	}
	<-req.reply
	return nil
}

// trigger returns a callback that queues a trigger for cycle gen without
// blocking. A queued trigger from an older cycle is ignored.
func (l *Lifecycle) trigger(gen uint64) func() {
	return func() {
		select {
		case l.triggers <- gen:
		default:
		}
	}
}

func (l *Lifecycle) run() {
	defer close(l.done)
	defer l.cancel()
	for {
		var scanDone chan struct{}
		if l.scan != nil {
			scanDone = l.scan.done
		}
		select {
		case <-l.quit:
			l.teardown()
			return
		case req := <-l.requests:
			l.handle(req.event)
			close(req.reply)
		case gen := <-l.triggers:
			if gen == l.gen {
				l.handle(EventTrigger)
			}
		case <-scanDone:
			l.finishScan()
		}
	}
}

func (l *Lifecycle) handle(ev Event) {
	switch ev {
	case EventLock:
		l.lock()
	case EventUnlock:
		l.teardown()
	case EventTrigger:
		l.startScan()
	}
}

func (l *Lifecycle) fire(ev Event) {
	if _, err := l.m.Fire(ev); err != nil {
		l.logger.Error("session transition rejected", "error", err)
	}
}

func (l *Lifecycle) lock() {
	if l.m.Current() != Unlocked {
		l.teardown()
	}
	l.gen++
	if l.cfg.OnLock != nil {
		l.cfg.OnLock()
	}

	settings, err := l.cfg.Settings.Settings()
	if err != nil {
		l.logger.Warn("settings unreadable, using defaults", "error", err)
	}
	l.settings = settings
	l.policy.Reset(settings.RetryDelay)

	if !settings.Initialized {
		l.logger.Info("not initialized, staying unlocked")
		return
	}
	n, err := l.cfg.Profiles.Count()
	if err != nil {
		l.logger.Warn("profiles unreadable, staying unlocked", "error", err)
		return
	}
	if n == 0 {
		l.logger.Info("no enrolled profiles, staying unlocked")
		return
	}

	switch settings.Mode {
	case fustore.ModeDelay:
		l.armTimer(settings.RecogDelay)
	default:
		stop, err := l.cfg.Triggers.Listen(l.ctx, l.trigger(l.gen))
		if err != nil {
			l.logger.Error("trigger listener not started", "error", err)
			return
		}
		l.stopTriggers = stop
	}
	l.fire(EventLock)
}

func (l *Lifecycle) armTimer(d time.Duration) {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = l.clock.AfterFunc(d, l.trigger(l.gen))
	l.logger.Debug("scan timer armed", "delay", d)
}

func (l *Lifecycle) startScan() {
	if state := l.m.Current(); state != Armed && state != AwaitingUnlock {
		l.logger.Debug("trigger ignored", "state", state)
		return
	}
	if !l.policy.Allow(l.clock.Now()) {
		l.logger.Info("trigger denied by retry policy", "attempts", l.policy.Attempts(), "failures", l.policy.Failures())
		return
	}

	ctx, cancel := context.WithCancel(l.ctx)
	sc := &scan{id: l.cfg.NewAttemptID(), cancel: cancel, done: make(chan struct{})}
	req := match.Request{
		AttemptID:         sc.id,
		CameraIndex:       l.settings.CameraIndex,
		LivenessEnabled:   l.settings.LivenessEnabled,
		LivenessThreshold: l.settings.LivenessThreshold,
	}
	go func() {
		defer close(sc.done)
		sc.outcome, sc.err = l.cfg.Scanner.Run(ctx, req)
	}()
	l.scan = sc
	l.logger.Info("scan started", "attempt", sc.id, "attempts", l.policy.Attempts())
	l.fire(EventTrigger)
}

func (l *Lifecycle) finishScan() {
	sc := l.scan
	l.scan = nil
	sc.cancel()

	if sc.err != nil {
		l.policy.RecordFailure()
		l.logger.Warn("scan failed", "attempt", sc.id, "error", sc.err)
	} else {
		l.logger.Info("scan finished", "attempt", sc.id, "outcome", sc.outcome)
	}

	if sc.err == nil && sc.outcome == match.Delivered {
		l.fire(EventDelivered)
	} else {
		l.fire(EventNotDelivered)
	}
	if l.settings.Mode == fustore.ModeDelay && !l.policy.Exhausted() {
		l.armTimer(l.settings.RetryDelay)
	}
}

func (l *Lifecycle) disarm() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.stopTriggers != nil {
		l.stopTriggers()
		l.stopTriggers = nil
	}
}

// teardown ends the current cycle and waits for any scan to exit.
func (l *Lifecycle) teardown() {
	l.gen++
	l.disarm()
	if sc := l.scan; sc != nil {
		l.scan = nil
		sc.cancel()
		<-sc.done
		l.logger.Info("scan cancelled", "attempt", sc.id, "outcome", sc.outcome, "error", sc.err)
	}
	l.fire(EventUnlock)
}

// PipeTriggers listens for Trigger messages on a pipe address.
type PipeTriggers struct {
	Addr   string
	Logger *slog.Logger
}

func (p PipeTriggers) Listen(ctx context.Context, fn func()) (func(), error) {
	srv, err := pipe.Start(ctx, p.Addr, func(_ context.Context, msg pipe.Message) {
		if msg.Kind == pipe.KindTrigger {
			fn()
		}
	}, pipe.Options{Logger: p.Logger})
	if err != nil {
		return nil, err
	}
	return srv.Stop, nil
}
