package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ErrUnsupported is returned by WatchSession where the OS has no session
// notifications.
var ErrUnsupported = errors.New("session: lock notifications not supported on this platform")

// Events receives lock and unlock notifications.
type Events interface {
	Lock() error
	Unlock() error
}

var _ Events = (*Lifecycle)(nil)

// WatchLines reads "lock" and "unlock" lines from r and forwards them to ev
// until r ends or ctx is done. Other lines are logged and skipped.
func WatchLines(ctx context.Context, r io.Reader, ev Events, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return ctx.Err()
				}
			}
			if err := dispatchLine(strings.TrimSpace(line), ev, logger); err != nil {
				return err
			}
		}
	}
}

func dispatchLine(line string, ev Events, logger *slog.Logger) error {
	switch strings.ToLower(line) {
	case "":
		return nil
	case "lock":
		return ev.Lock()
	case "unlock":
		return ev.Unlock()
	default:
		logger.Warn("unknown session event", "line", line)
		return nil
	}
}

// latestChange holds the newest session change not yet handled. Posting
// never blocks; a newer change replaces an unhandled one, so the last
// reported state always reaches the watcher.
type latestChange struct {
	mu     sync.Mutex
	locked bool
	posts  int
	ready  chan struct{}
}

func newLatestChange() *latestChange {
	return &latestChange{ready: make(chan struct{}, 1)}
}

func (c *latestChange) post(locked bool) {
	c.mu.Lock()
	c.locked = locked
	c.posts++
	c.mu.Unlock()
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// take returns the newest change and how many older ones it replaced.
func (c *latestChange) take() (locked bool, replaced int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.posts == 0 {
		return false, 0, false
	}
	locked, replaced = c.locked, c.posts-1
	c.posts = 0
	return locked, replaced, true
}

// deliver forwards the newest change to ev.
func (c *latestChange) deliver(ev Events, logger *slog.Logger) error {
	locked, replaced, ok := c.take()
	if !ok {
		return nil
	}
	if replaced > 0 {
		logger.Info("session changes coalesced", "replaced", replaced, "locked", locked)
	}
	if locked {
		return ev.Lock()
	}
	return ev.Unlock()
}
