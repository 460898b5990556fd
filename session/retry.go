package session

import (
	"sync"
	"time"
)

// DefaultMaxRetries bounds the attempts per lock cycle.
const DefaultMaxRetries = 3

// RetryPolicy paces scan attempts within one lock cycle. An attempt is
// allowed while fewer than MaxRetries have started and at least Delay has
// passed since the previous one. It is safe for concurrent use.
type RetryPolicy struct {
	mu         sync.Mutex
	maxRetries int
	delay      time.Duration
	last       time.Time
	attempts   int
	failures   int
}

// NewRetryPolicy returns a policy allowing maxRetries attempts; zero or
// less selects DefaultMaxRetries.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryPolicy{maxRetries: maxRetries}
}

// Reset starts a new lock cycle with the given pacing delay.
func (p *RetryPolicy) Reset(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = delay
	p.last = time.Time{}
	p.attempts = 0
	p.failures = 0
}

// Allow reports whether an attempt may start at now and, if so, records it.
func (p *RetryPolicy) Allow(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attempts >= p.maxRetries {
		return false
	}
	if !p.last.IsZero() && now.Sub(p.last) < p.delay {
		return false
	}
	p.last = now
	p.attempts++
	return true
}

// RecordFailure counts a failed attempt.
func (p *RetryPolicy) RecordFailure() {
	p.mu.Lock()
	p.failures++
	p.mu.Unlock()
}

// Exhausted reports whether no further attempt will be allowed this cycle.
func (p *RetryPolicy) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts >= p.maxRetries
}

// Attempts returns the attempts started since the last Reset.
func (p *RetryPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Failures returns the failed attempts since the last Reset.
func (p *RetryPolicy) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}
