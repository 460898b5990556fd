package activity

import (
	"fmt"
	"sync"
)

// threadCalls queues functions for a thread that runs them when woken.
// One call is outstanding at a time.
type threadCalls struct {
	mu    sync.Mutex
	calls chan func()
}

func newThreadCalls() *threadCalls {
	return &threadCalls{calls: make(chan func(), 1)}
}

// run queues f, wakes the thread and waits for f to finish. When wake
// fails, f is withdrawn from the queue and never runs.
func (q *threadCalls) run(f func(), wake func() error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	done := make(chan struct{})
	q.calls <- func() {
		defer close(done)
		f()
	}
	if err := wake(); err != nil {
		select {
		case <-q.calls:
			return fmt.Errorf("wake hook thread: %w", err)
		case <-done:
			return nil
		}
	}
	<-done
	return nil
}

// drain runs every queued function. It is called on the woken thread.
func (q *threadCalls) drain() {
	for {
		select {
		case f := <-q.calls:
			f()
		default:
			return
		}
	}
}
