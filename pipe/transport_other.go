//go:build !windows

package pipe

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// DefaultDir holds the channel sockets when no directory is configured.
const DefaultDir = "/run/faceunlock"

// Address returns the socket path for a channel name. An absolute name is
// used unchanged.
func Address(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name+".sock")
}

func listen(addr string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(addr), 0755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(addr); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket %s: %w", addr, err)
	}
	ln, err := net.Listen("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if err := os.Chmod(addr, 0660); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod %s: %w", addr, err)
	}
	return ln, nil
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", addr)
}
