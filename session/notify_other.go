//go:build !windows

package session

import (
	"context"
	"log/slog"
)

// WatchSession forwards OS session lock and unlock notifications to ev
// until ctx is done.
func WatchSession(ctx context.Context, ev Events, logger *slog.Logger) error {
	return ErrUnsupported
}
