//go:build !windows

package fustore

import "path/filepath"

// DefaultHostStore is the host switch file.
const DefaultHostStore = "/etc/faceunlock/host.conf"

// DefaultDataDir returns the agent data directory.
func DefaultDataDir(appName string) string {
	return filepath.Join("/var/lib", appName)
}

// OpenHostStore opens the host switch store at path.
func OpenHostStore(path string) (DataStore, error) {
	return NewConfigDataStore(path)
}
