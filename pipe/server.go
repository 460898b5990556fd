package pipe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	// DefaultMaxMessageSize bounds a single payload.
	DefaultMaxMessageSize = 64 << 10
	// DefaultReadTimeout bounds how long a connected peer may take to
	// write its message.
	DefaultReadTimeout = 5 * time.Second

	acceptBackoff = 100 * time.Millisecond
)

// Handler receives each decoded message. It runs on the server goroutine;
// the next peer is not accepted until it returns.
type Handler func(ctx context.Context, msg Message)

// Options configure a Server. The zero value is usable.
type Options struct {
	Logger         *slog.Logger
	MaxMessageSize int64
	ReadTimeout    time.Duration
}

// Server accepts one peer at a time on a channel address.
type Server struct {
	addr    string
	ln      net.Listener
	handler Handler
	logger  *slog.Logger
	maxSize int64
	timeout time.Duration

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// Start binds addr and serves it until ctx is cancelled or Stop is called.
// Binding happens before Start returns, so a Send issued afterwards will
// find the channel.
func Start(ctx context.Context, addr string, handler Handler, opts Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("pipe: nil handler")
	}
	ln, err := listen(addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		addr:    addr,
		ln:      ln,
		handler: handler,
		logger:  opts.Logger,
		maxSize: opts.MaxMessageSize,
		timeout: opts.ReadTimeout,
		done:    make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.maxSize <= 0 {
		s.maxSize = DefaultMaxMessageSize
	}
	if s.timeout <= 0 {
		s.timeout = DefaultReadTimeout
	}

	ctx, s.cancel = context.WithCancel(ctx)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go s.serve(ctx)

	s.logger.Debug("pipe server listening", "addr", addr)
	return s, nil
}

// Addr returns the bound channel address.
func (s *Server) Addr() string { return s.addr }

// Done is closed once the accept loop has exited.
func (s *Server) Done() <-chan struct{} { return s.done }

// Stop cancels the server and waits for the accept loop to exit. It is
// safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}

func (s *Server) serve(ctx context.Context) {
	defer close(s.done)
	defer s.ln.Close()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Debug("pipe server stopped", "addr", s.addr)
				return
			}
			s.logger.Warn("pipe accept failed", "addr", s.addr, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptBackoff):
			}
			continue
		}
		if ctx.Err() != nil {
			conn.Close()
			return
		}
		s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.timeout))
	data, err := io.ReadAll(io.LimitReader(conn, s.maxSize+1))
	if err != nil {
		s.logger.Warn("pipe read failed", "addr", s.addr, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	if int64(len(data)) > s.maxSize {
		s.logger.Warn("pipe message too large", "addr", s.addr, "limit", s.maxSize)
		return
	}
	if ctx.Err() != nil {
		return
	}

	msg, err := Decode(data)
	if err != nil {
		s.logger.Debug("pipe message dropped", "addr", s.addr, "error", err)
		return
	}
	s.handler(ctx, msg)
}
