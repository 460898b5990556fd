//go:build windows

package fustore

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultHostStore is the registry key holding the host switches.
const DefaultHostStore = `LM\SOFTWARE\faceunlock`

// DefaultDataDir returns the agent data directory.
func DefaultDataDir(appName string) string {
	programData := os.Getenv("PROGRAMDATA")
	if programData == "" {
		programData = `C:\ProgramData`
	}
	return filepath.Join(programData, appName)
}

// OpenHostStore opens the host switch store at path. A path with a
// registry hive prefix opens the registry; anything else is a config file.
func OpenHostStore(path string) (DataStore, error) {
	hive, _, _ := strings.Cut(strings.ReplaceAll(path, "/", `\`), `\`)
	switch strings.ToUpper(hive) {
	case "LM", "LOCAL_MACHINE", "CU", "CURRENT_USER":
		return NewRegistryDataStore(path)
	}
	return NewConfigDataStore(path)
}
