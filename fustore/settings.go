package fustore

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
)

// Mode selects how a locked session arms for a scan.
type Mode string

const (
	// ModeOperation waits for input activity reported by the host.
	ModeOperation Mode = "operation"
	// ModeDelay scans once a fixed delay after the lock.
	ModeDelay Mode = "delay"
)

// Option keys in the options bucket.
const (
	OptInitialized       = "is_initialized"
	OptMode              = "faceRecogType"
	OptCamera            = "camera"
	OptRetryDelay        = "retryDelay"
	OptRecogDelay        = "faceRecogDelay"
	OptLivenessEnabled   = "livenessEnabled"
	OptLivenessThreshold = "livenessThreshold"
)

// OptionKeys lists every known option in display order.
var OptionKeys = []string{
	OptInitialized,
	OptMode,
	OptCamera,
	OptRetryDelay,
	OptRecogDelay,
	OptLivenessEnabled,
	OptLivenessThreshold,
}

// Settings are the agent's runtime options.
type Settings struct {
	Initialized       bool
	Mode              Mode
	CameraIndex       int
	RetryDelay        time.Duration
	RecogDelay        time.Duration
	LivenessEnabled   bool
	LivenessThreshold float64
}

// DefaultSettings returns the settings used for any missing or invalid option.
func DefaultSettings() Settings {
	return Settings{
		Mode:              ModeOperation,
		RetryDelay:        10 * time.Second,
		RecogDelay:        10 * time.Second,
		LivenessEnabled:   true,
		LivenessThreshold: 0.50,
	}
}

// ParseSettings builds Settings from raw option values. Missing options
// take their default. Invalid options also take their default and are
// reported in the returned error; the Settings are always usable.
func ParseSettings(opts map[string]string) (Settings, error) {
	s := DefaultSettings()
	var errs []error
	bad := func(key, val string, err error) {
		errs = append(errs, fmt.Errorf("option %s=%q: %w", key, val, err))
	}

	for key, val := range opts {
		switch key {
		case OptInitialized:
			b, err := strconv.ParseBool(val)
			if err != nil {
				bad(key, val, err)
				continue
			}
			s.Initialized = b
		case OptMode:
			switch Mode(val) {
			case ModeOperation, ModeDelay:
				s.Mode = Mode(val)
			default:
				bad(key, val, errors.New("want operation or delay"))
			}
		case OptCamera:
			n, err := strconv.Atoi(val)
			if err == nil && n < 0 {
				err = errors.New("negative index")
			}
			if err != nil {
				bad(key, val, err)
				continue
			}
			s.CameraIndex = n
		case OptRetryDelay, OptRecogDelay:
			d, err := parseSeconds(val)
			if err != nil {
				bad(key, val, err)
				continue
			}
			if key == OptRetryDelay {
				s.RetryDelay = d
			} else {
				s.RecogDelay = d
			}
		case OptLivenessEnabled:
			b, err := strconv.ParseBool(val)
			if err != nil {
				bad(key, val, err)
				continue
			}
			s.LivenessEnabled = b
		case OptLivenessThreshold:
			f, err := strconv.ParseFloat(val, 64)
			if err == nil && (f < 0 || f > 1 || math.IsNaN(f)) {
				err = errors.New("want a value in [0, 1]")
			}
			if err != nil {
				bad(key, val, err)
				continue
			}
			s.LivenessThreshold = f
		}
	}
	return s, errors.Join(errs...)
}

// ValidateOption reports whether val is acceptable for key.
func ValidateOption(key, val string) error {
	if !slices.Contains(OptionKeys, key) {
		return fmt.Errorf("unknown option %q", key)
	}
	_, err := ParseSettings(map[string]string{key: val})
	return err
}

// parseSeconds reads a decimal number of seconds such as "10" or "2.5".
func parseSeconds(val string) (time.Duration, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("want a non-negative number of seconds")
	}
	return time.Duration(f * float64(time.Second)), nil
}
