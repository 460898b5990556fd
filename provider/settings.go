package provider

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kardianos/faceunlock/fustore"
)

// Host switch keys in the host DataStore.
const (
	KeyShowTile      = "SHOW_TILE"
	KeyConnectToPipe = "CONNECT_TO_PIPE"
)

// Settings are the host switches.
type Settings struct {
	// ShowTile lists the tile even when no unlock is pending.
	ShowTile bool
	// ConnectToPipe runs the input activity monitor.
	ConnectToPipe bool
}

// DefaultSettings returns the switches used when the store has no value.
func DefaultSettings() Settings {
	return Settings{ShowTile: true}
}

// LoadSettings reads the switches from ds. Missing or unreadable values
// keep their defaults; the returned error joins every problem found.
func LoadSettings(ds fustore.DataStore) (Settings, error) {
	s := DefaultSettings()
	if ds == nil {
		return s, nil
	}
	var errs []error
	for _, f := range []struct {
		key string
		dst *bool
	}{
		{KeyShowTile, &s.ShowTile},
		{KeyConnectToPipe, &s.ConnectToPipe},
	} {
		raw, err := ds.Get(f.key, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", f.key, err))
			continue
		}
		if raw == nil {
			continue
		}
		v, err := strconv.ParseBool(strings.TrimSpace(string(raw)))
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", f.key, err))
			continue
		}
		*f.dst = v
	}
	return s, errors.Join(errs...)
}

// Store writes s to ds as "0" / "1" values.
func (s Settings) Store(ds fustore.DataStore) error {
	b := func(v bool) []byte {
		if v {
			return []byte("1")
		}
		return []byte("0")
	}
	if err := ds.Set(KeyShowTile, false, b(s.ShowTile)); err != nil {
		return fmt.Errorf("write %s: %w", KeyShowTile, err)
	}
	if err := ds.Set(KeyConnectToPipe, false, b(s.ConnectToPipe)); err != nil {
		return fmt.Errorf("write %s: %w", KeyConnectToPipe, err)
	}
	return nil
}
