package fustore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/kardianos/faceunlock/engine"
	"go.etcd.io/bbolt"
)

var (
	bucketFaces   = []byte("faces")
	bucketOptions = []byte("options")
)

// DBName is the database file inside the data directory.
const DBName = "faceunlock.db"

// Enrollment defaults.
const (
	DefaultMatchThreshold  = 50.0
	DefaultDetectThreshold = 0.9
)

// AccountType distinguishes local accounts from online (Microsoft) accounts.
type AccountType int

const (
	AccountLocal AccountType = iota + 1
	AccountOnline
)

func (a AccountType) String() string {
	switch a {
	case AccountLocal:
		return "local"
	case AccountOnline:
		return "online"
	default:
		return fmt.Sprintf("AccountType(%d)", int(a))
	}
}

// ParseAccountType parses "local" or "online".
func ParseAccountType(s string) (AccountType, error) {
	switch strings.ToLower(s) {
	case "local":
		return AccountLocal, nil
	case "online":
		return AccountOnline, nil
	}
	return 0, fmt.Errorf("unknown account type %q", s)
}

// Profile is one enrolled face bound to an account.
type Profile struct {
	ID       uint64
	Alias    string
	Username string
	Password string
	Account  AccountType
	Feature  engine.Feature
	// MatchThreshold is a percentage compared against score*100.
	MatchThreshold  float64
	DetectThreshold float64
	Locked          bool
	CreatedAt       time.Time
}

// LogonName is the username as passed to the logon UI. Local accounts are
// qualified with the local machine prefix.
func (p Profile) LogonName() string {
	if p.Account == AccountLocal && !strings.HasPrefix(p.Username, `.\`) {
		return `.\` + p.Username
	}
	return p.Username
}

type profileRecord struct {
	Alias           string         `cbor:"1,keyasint"`
	Username        string         `cbor:"2,keyasint"`
	SealedPassword  []byte         `cbor:"3,keyasint"`
	Account         AccountType    `cbor:"4,keyasint"`
	Feature         engine.Feature `cbor:"5,keyasint"`
	MatchThreshold  float64        `cbor:"6,keyasint"`
	DetectThreshold float64        `cbor:"7,keyasint"`
	Locked          bool           `cbor:"8,keyasint"`
	CreatedAt       time.Time      `cbor:"9,keyasint"`
}

// ProfileStore keeps face profiles and options in bbolt.
type ProfileStore struct {
	db     *bbolt.DB
	now    func() time.Time
	logger *slog.Logger
}

// OpenProfileStore opens or creates the database in dir. A nil logger
// discards output.
func OpenProfileStore(dir string, logger *slog.Logger) (*ProfileStore, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := bbolt.Open(filepath.Join(dir, DBName), 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketFaces, bucketOptions} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ProfileStore{db: db, now: time.Now, logger: logger}, nil
}

// Close closes the database.
func (s *ProfileStore) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *ProfileStore) Path() string { return s.db.Path() }

func idKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

func (s *ProfileStore) encode(p Profile) ([]byte, error) {
	sealed, err := seal([]byte(p.Password))
	if err != nil {
		return nil, fmt.Errorf("encrypt password: %w", err)
	}
	return cbor.Marshal(profileRecord{
		Alias:           p.Alias,
		Username:        p.Username,
		SealedPassword:  sealed,
		Account:         p.Account,
		Feature:         p.Feature,
		MatchThreshold:  p.MatchThreshold,
		DetectThreshold: p.DetectThreshold,
		Locked:          p.Locked,
		CreatedAt:       p.CreatedAt,
	})
}

func decodeProfile(k, v []byte) (Profile, error) {
	var rec profileRecord
	if err := cbor.Unmarshal(v, &rec); err != nil {
		return Profile{}, fmt.Errorf("unmarshal profile: %w", err)
	}
	id := binary.BigEndian.Uint64(k)
	pass, err := unseal(rec.SealedPassword)
	if err != nil {
		return Profile{}, fmt.Errorf("decrypt password of profile %d: %w", id, err)
	}
	return Profile{
		ID:              id,
		Alias:           rec.Alias,
		Username:        rec.Username,
		Password:        string(pass),
		Account:         rec.Account,
		Feature:         rec.Feature,
		MatchThreshold:  rec.MatchThreshold,
		DetectThreshold: rec.DetectThreshold,
		Locked:          rec.Locked,
		CreatedAt:       rec.CreatedAt,
	}, nil
}

// Add stores a new profile and returns its ID. Zero thresholds take the
// enrollment defaults.
func (s *ProfileStore) Add(p Profile) (uint64, error) {
	if p.Username == "" {
		return 0, errors.New("profile username is required")
	}
	if len(p.Feature) == 0 {
		return 0, errors.New("profile feature is required")
	}
	if p.Account == 0 {
		p.Account = AccountLocal
	}
	if p.MatchThreshold == 0 {
		p.MatchThreshold = DefaultMatchThreshold
	}
	if p.DetectThreshold == 0 {
		p.DetectThreshold = DefaultDetectThreshold
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}

	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFaces)
		var err error
		if id, err = b.NextSequence(); err != nil {
			return err
		}
		data, err := s.encode(p)
		if err != nil {
			return err
		}
		return b.Put(idKey(id), data)
	})
	if err != nil {
		return 0, fmt.Errorf("add profile: %w", err)
	}
	return id, nil
}

// Get returns one profile or ErrNotFound.
func (s *ProfileStore) Get(id uint64) (Profile, error) {
	var p Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		k := idKey(id)
		v := tx.Bucket(bucketFaces).Get(k)
		if v == nil {
			return ErrNotFound
		}
		var err error
		p, err = decodeProfile(k, v)
		return err
	})
	return p, err
}

// List returns every profile in ID order.
func (s *ProfileStore) List() ([]Profile, error) {
	var list []Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFaces).ForEach(func(k, v []byte) error {
			p, err := decodeProfile(k, v)
			if err != nil {
				return err
			}
			list = append(list, p)
			return nil
		})
	})
	return list, err
}

// Active returns the profiles that are not locked, in ID order. A record
// that cannot be decoded or decrypted is logged and skipped.
func (s *ProfileStore) Active() ([]Profile, error) {
	var active []Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFaces).ForEach(func(k, v []byte) error {
			p, err := decodeProfile(k, v)
			if err != nil {
				s.logger.Warn("skipping unreadable profile", "id", binary.BigEndian.Uint64(k), "error", err)
				return nil
			}
			if !p.Locked {
				active = append(active, p)
			}
			return nil
		})
	})
	return active, err
}

// Count returns the number of enrolled profiles, locked or not.
func (s *ProfileStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketFaces).Stats().KeyN
		return nil
	})
	return n, err
}

// SetLocked locks or unlocks a profile. Locked profiles are skipped by scans.
func (s *ProfileStore) SetLocked(id uint64, locked bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFaces)
		k := idKey(id)
		v := b.Get(k)
		if v == nil {
			return ErrNotFound
		}
		var rec profileRecord
		if err := cbor.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal profile: %w", err)
		}
		rec.Locked = locked
		data, err := cbor.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
}

// Remove deletes a profile.
func (s *ProfileStore) Remove(id uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFaces)
		k := idKey(id)
		if b.Get(k) == nil {
			return ErrNotFound
		}
		return b.Delete(k)
	})
}

// Option returns one raw option value and whether it is set.
func (s *ProfileStore) Option(key string) (string, bool, error) {
	var (
		val string
		ok  bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketOptions).Get([]byte(key)); v != nil {
			val, ok = string(v), true
		}
		return nil
	})
	return val, ok, err
}

// Options returns every stored option.
func (s *ProfileStore) Options() (map[string]string, error) {
	opts := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOptions).ForEach(func(k, v []byte) error {
			opts[string(k)] = string(v)
			return nil
		})
	})
	return opts, err
}

// SetOption validates and stores one option.
func (s *ProfileStore) SetOption(key, val string) error {
	if err := ValidateOption(key, val); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOptions).Put([]byte(key), []byte(val))
	})
}

// Settings loads the runtime settings. On a read error, or for any invalid
// option, the defaults are used and the error is returned alongside them.
func (s *ProfileStore) Settings() (Settings, error) {
	opts, err := s.Options()
	if err != nil {
		return DefaultSettings(), fmt.Errorf("read options: %w", err)
	}
	return ParseSettings(opts)
}
