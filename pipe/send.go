package pipe

import (
	"context"
	"fmt"
	"time"
)

// DefaultSendTimeout applies when the context passed to Send has no deadline.
const DefaultSendTimeout = 5 * time.Second

// Send connects to addr, writes msg and closes the connection. Connect
// failures are returned as is; Send never retries.
func Send(ctx context.Context, addr string, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSendTimeout)
		defer cancel()
	}

	conn, err := dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(payload); err != nil {
		conn.Close()
		return fmt.Errorf("write %s: %w", addr, err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close %s: %w", addr, err)
	}
	return nil
}

// Client sends messages to a fixed address.
type Client struct {
	Addr string
}

// Send sends msg to c.Addr.
func (c Client) Send(ctx context.Context, msg Message) error {
	return Send(ctx, c.Addr, msg)
}
