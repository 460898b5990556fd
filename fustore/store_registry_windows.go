//go:build windows

package fustore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// RegistryDataStore implements DataStore on one registry key. Plain values
// are written as REG_SZ so they can be edited with regedit; sealed values
// are REG_BINARY. REG_DWORD values read back as decimal text.
type RegistryDataStore struct {
	hive    registry.Key
	keyPath string
}

var _ DataStore = (*RegistryDataStore)(nil)

// NewRegistryDataStore opens the key at path, creating it if needed. The
// path starts with a hive: LM (LOCAL_MACHINE) or CU (CURRENT_USER), for
// example LM\SOFTWARE\faceunlock.
func NewRegistryDataStore(path string) (*RegistryDataStore, error) {
	path = strings.ReplaceAll(path, "/", `\`)
	hiveName, keyPath, ok := strings.Cut(path, `\`)
	if !ok || keyPath == "" {
		return nil, fmt.Errorf("invalid registry path %q: missing hive prefix (use LM\\ or CU\\)", path)
	}

	var hive registry.Key
	switch strings.ToUpper(hiveName) {
	case "LM", "LOCAL_MACHINE":
		hive = registry.LOCAL_MACHINE
	case "CU", "CURRENT_USER":
		hive = registry.CURRENT_USER
	default:
		return nil, fmt.Errorf("invalid registry hive %q", hiveName)
	}

	// The host runs as SYSTEM; a missing key is created on first open.
	key, _, err := registry.CreateKey(hive, keyPath, registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return nil, fmt.Errorf("create registry key: %w", err)
	}
	key.Close()
	return &RegistryDataStore{hive: hive, keyPath: keyPath}, nil
}

func (s *RegistryDataStore) Get(name string, decrypt bool) ([]byte, error) {
	key, err := registry.OpenKey(s.hive, s.keyPath, registry.QUERY_VALUE)
	if err != nil {
		return nil, nil
	}
	defer key.Close()

	_, valType, err := key.GetValue(name, nil)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, nil
	}
	var data []byte
	switch valType {
	case registry.BINARY:
		data, _, err = key.GetBinaryValue(name)
	case registry.DWORD, registry.QWORD:
		var n uint64
		n, _, err = key.GetIntegerValue(name)
		data = []byte(strconv.FormatUint(n, 10))
	case registry.SZ, registry.EXPAND_SZ:
		var str string
		str, _, err = key.GetStringValue(name)
		data = []byte(str)
	default:
		return nil, fmt.Errorf("registry value %s has unsupported type %d", name, valType)
	}
	if err != nil {
		return nil, fmt.Errorf("read registry value %s: %w", name, err)
	}

	if decrypt && len(data) > 0 {
		plain, err := unseal(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", name, err)
		}
		return plain, nil
	}
	return data, nil
}

func (s *RegistryDataStore) Set(name string, encrypt bool, value []byte) error {
	key, _, err := registry.CreateKey(s.hive, s.keyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open registry key: %w", err)
	}
	defer key.Close()

	if !encrypt {
		return key.SetStringValue(name, string(value))
	}
	sealed, err := seal(value)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", name, err)
	}
	return key.SetBinaryValue(name, sealed)
}

func (s *RegistryDataStore) Path() string {
	hive := "UNKNOWN"
	switch s.hive {
	case registry.LOCAL_MACHINE:
		hive = "HKLM"
	case registry.CURRENT_USER:
		hive = "HKCU"
	}
	return hive + `\` + s.keyPath
}
