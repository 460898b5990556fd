//go:build windows

package pipe

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

// DefaultDir is unused on Windows; channels live in the pipe namespace.
const DefaultDir = ""

const pipePrefix = `\\.\pipe\`

// SYSTEM and administrators get full access, interactive users read/write.
const pipeSDDL = "D:P(A;;GA;;;SY)(A;;GA;;;BA)(A;;GRGW;;;IU)"

// Address returns the named pipe path for a channel name.
func Address(_, name string) string {
	if strings.HasPrefix(name, pipePrefix) {
		return name
	}
	return pipePrefix + name
}

func listen(addr string) (net.Listener, error) {
	ln, err := winio.ListenPipe(addr, &winio.PipeConfig{
		SecurityDescriptor: pipeSDDL,
		MessageMode:        true,
		InputBufferSize:    4096,
		OutputBufferSize:   4096,
	})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, addr)
}
