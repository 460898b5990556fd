package fumock

import (
	"context"
	"errors"
	"sync"

	"github.com/kardianos/faceunlock/audit"
	"github.com/kardianos/faceunlock/engine"
	"github.com/kardianos/faceunlock/fustore"
)

// ErrCamera is returned by Camera when told to fail.
var ErrCamera = errors.New("fumock: camera failure")

// Camera hands out small RGB frames. ReadFailAt makes the n-th read (1
// based) fail; zero never fails.
type Camera struct {
	OpenErr    error
	ReadFailAt int

	mu     sync.Mutex
	opened bool
	opens  int
	closes int
	reads  int
	index  int
}

func (c *Camera) Open(_ context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.opened = true
	c.opens++
	c.index = index
	return nil
}

func (c *Camera) Read(context.Context) (engine.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return engine.Frame{}, errors.New("fumock: camera not open")
	}
	c.reads++
	if c.ReadFailAt > 0 && c.reads == c.ReadFailAt {
		return engine.Frame{}, ErrCamera
	}
	return engine.Frame{Width: 2, Height: 2, Format: engine.FormatRGB24, Data: make([]byte, 12)}, nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		c.closes++
	}
	c.opened = false
	return nil
}

// CameraStats reports camera usage.
type CameraStats struct {
	Opens, Closes, Reads, Index int
	Open                        bool
}

func (c *Camera) Stats() CameraStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CameraStats{Opens: c.opens, Closes: c.closes, Reads: c.reads, Index: c.index, Open: c.opened}
}

// Step scripts one ExtractFeature call.
type Step struct {
	NoFace bool
	Err    error
	Score  float64
}

// Match and Miss are steps scoring a certain match and a certain miss.
var (
	Match = Step{Score: 1}
	Miss  = Step{Score: 0}
)

// Steps repeats step n times.
func Steps(n int, step Step) []Step {
	out := make([]Step, n)
	for i := range out {
		out[i] = step
	}
	return out
}

// Recognizer plays Script in order, one step per ExtractFeature call. The
// returned feature carries its score, which Match reports. Once the script
// is exhausted every call returns Default.
type Recognizer struct {
	Script  []Step
	Default Step
	// Block, when set, makes ExtractFeature wait for ctx cancellation.
	Block bool

	mu    sync.Mutex
	calls int
}

func (r *Recognizer) ExtractFeature(ctx context.Context, _ engine.Frame, _ float64) (engine.Feature, error) {
	r.mu.Lock()
	step := r.Default
	if r.calls < len(r.Script) {
		step = r.Script[r.calls]
	}
	r.calls++
	block := r.Block
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	switch {
	case step.Err != nil:
		return nil, step.Err
	case step.NoFace:
		return nil, engine.ErrNoFace
	}
	return engine.Feature{float32(step.Score)}, nil
}

func (r *Recognizer) Match(a, _ engine.Feature) float64 {
	if len(a) == 0 {
		return 0
	}
	return float64(a[0])
}

// Calls returns the number of ExtractFeature calls.
func (r *Recognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Liveness returns a fixed verdict.
type Liveness struct {
	Live       bool
	Confidence float64
	Err        error

	mu    sync.Mutex
	calls int
}

func (l *Liveness) Detect(context.Context, []byte) (bool, float64, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.Live, l.Confidence, l.Err
}

func (l *Liveness) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Profiles is a fixed profile list.
type Profiles struct {
	List []fustore.Profile
	Err  error
}

func (p *Profiles) Active() ([]fustore.Profile, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	var out []fustore.Profile
	for _, pr := range p.List {
		if !pr.Locked {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (p *Profiles) Count() (int, error) { return len(p.List), p.Err }

// Profile returns an unlocked local profile with the default thresholds.
func Profile(id uint64, username string) fustore.Profile {
	return fustore.Profile{
		ID:              id,
		Alias:           username,
		Username:        username,
		Password:        username + "-pass",
		Account:         fustore.AccountLocal,
		Feature:         engine.Feature{1},
		MatchThreshold:  fustore.DefaultMatchThreshold,
		DetectThreshold: fustore.DefaultDetectThreshold,
	}
}

// Audit keeps appended entries in memory.
type Audit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *Audit) Append(_ context.Context, e audit.Entry) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e.ID = int64(len(a.entries) + 1)
	a.entries = append(a.entries, e)
	return e.ID, nil
}

func (a *Audit) Entries() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

// Counter counts RecordFailure calls.
type Counter struct {
	mu sync.Mutex
	n  int
}

func (c *Counter) RecordFailure() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *Counter) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
