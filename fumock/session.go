package fumock

import (
	"context"
	"sync"

	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/match"
)

// Settings returns fixed settings.
type Settings struct {
	mu  sync.Mutex
	S   fustore.Settings
	Err error
}

func (s *Settings) Settings() (fustore.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.S, s.Err
}

// Set replaces the settings returned from now on.
func (s *Settings) Set(v fustore.Settings) {
	s.mu.Lock()
	s.S = v
	s.mu.Unlock()
}

type scanResult struct {
	outcome match.Outcome
	err     error
}

// Scanner blocks every Run until Finish supplies a result or the run is
// cancelled. Each started run is announced on Started.
type Scanner struct {
	Started chan match.Request

	results chan scanResult

	mu        sync.Mutex
	cancelled int
}

func NewScanner() *Scanner {
	return &Scanner{
		Started: make(chan match.Request, 16),
		results: make(chan scanResult),
	}
}

func (s *Scanner) Run(ctx context.Context, req match.Request) (match.Outcome, error) {
	s.Started <- req
	select {
	case r := <-s.results:
		return r.outcome, r.err
	case <-ctx.Done():
		s.mu.Lock()
		s.cancelled++
		s.mu.Unlock()
		return match.Failed, ctx.Err()
	}
}

// Finish hands a result to the running scan, waiting until one takes it.
func (s *Scanner) Finish(outcome match.Outcome, err error) {
	s.results <- scanResult{outcome: outcome, err: err}
}

// Cancelled returns how many runs ended by cancellation.
func (s *Scanner) Cancelled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Triggers is an in-memory trigger listener. Err makes Listen fail.
type Triggers struct {
	Err error

	mu      sync.Mutex
	fn      func()
	listens int
	stops   int
}

func (t *Triggers) Listen(_ context.Context, fn func()) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	t.fn = fn
	t.listens++
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.fn = nil
			t.stops++
		})
	}, nil
}

// Fire delivers a trigger to the active listener. It reports false when no
// listener is active.
func (t *Triggers) Fire() bool {
	fn := t.Callback()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Callback returns the active listener's callback, or nil.
func (t *Triggers) Callback() func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fn
}

// Counts returns how many listeners were started and stopped.
func (t *Triggers) Counts() (listens, stops int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listens, t.stops
}
