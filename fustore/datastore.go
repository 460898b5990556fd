package fustore

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("fustore: not found")

// DataStore is a small key-value store for host switches.
type DataStore interface {
	// Get returns the value for key, or nil, nil if not found. If decrypt
	// is true the stored value is unsealed first.
	Get(key string, decrypt bool) ([]byte, error)

	// Set stores value under key, sealing it first if encrypt is true.
	Set(key string, encrypt bool, value []byte) error

	// Path returns the storage location for display.
	Path() string
}
