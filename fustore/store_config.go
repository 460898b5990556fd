package fustore

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ConfigDataStore implements DataStore on a single key=value file:
//
//	show_tile=T{1}
//	note=T{
//	multi-line text
//	}
//	secret=B{base64}
//
// T{...} holds printable text, B{...} holds base64 and is used for
// anything else, including sealed values. The file is read on every Get so
// an administrator's edit takes effect without a restart.
type ConfigDataStore struct {
	path string
	mu   sync.Mutex
}

var _ DataStore = (*ConfigDataStore)(nil)

// NewConfigDataStore returns a store backed by path. A leading ~ and
// environment variables are expanded. A missing file reads as empty.
func NewConfigDataStore(path string) (*ConfigDataStore, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	path = expandPath(path)
	if _, err := loadKeyValue(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return &ConfigDataStore{path: path}, nil
}

func (s *ConfigDataStore) Get(key string, decrypt bool) ([]byte, error) {
	s.mu.Lock()
	kv, err := loadKeyValue(s.path)
	s.mu.Unlock()
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, ok := kv[key]
	if !ok {
		return nil, nil
	}
	if decrypt && len(data) > 0 {
		plain, err := unseal(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", key, err)
		}
		return plain, nil
	}
	return data, nil
}

func (s *ConfigDataStore) Set(key string, encrypt bool, value []byte) error {
	data := value
	if encrypt {
		sealed, err := seal(value)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
		data = sealed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kv, err := loadKeyValue(s.path)
	if os.IsNotExist(err) {
		kv, err = keyValue{}, nil
	}
	if err != nil {
		return err
	}
	kv[key] = data

	var buf bytes.Buffer
	if err := writeKeyValue(&buf, kv); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return atomicWriteFile(s.path, buf.Bytes(), 0600)
}

func (s *ConfigDataStore) Path() string { return s.path }

type keyValue map[string][]byte

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.Expand(path, os.Getenv)
}

func loadKeyValue(path string) (keyValue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readKeyValue(f)
}

func readKeyValue(r io.Reader) (keyValue, error) {
	kv := make(keyValue)
	scanner := bufio.NewScanner(r)

	var (
		openKey string
		binary  bool
		lines   []string
	)
	store := func(key, body string, binary bool) error {
		if !binary {
			kv[key] = []byte(body)
			return nil
		}
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return fmt.Errorf("decode base64 for key %q: %w", key, err)
		}
		kv[key] = decoded
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if openKey != "" {
			if line != "}" {
				lines = append(lines, line)
				continue
			}
			body := strings.Join(lines, "\n")
			if binary {
				body = strings.Join(lines, "")
			} else {
				body = strings.Trim(body, "\n")
			}
			if err := store(openKey, body, binary); err != nil {
				return nil, err
			}
			openKey, lines = "", nil
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch {
		case value == "T{" || value == "B{":
			openKey, binary = key, value[0] == 'B'
		case len(value) >= 3 && (value[0] == 'T' || value[0] == 'B') && value[1] == '{' && strings.HasSuffix(value, "}"):
			if err := store(key, value[2:len(value)-1], value[0] == 'B'); err != nil {
				return nil, err
			}
		}
	}
	if openKey != "" {
		return nil, fmt.Errorf("unterminated value for key %q", openKey)
	}
	return kv, scanner.Err()
}

// textSafe reports whether data can be written inside T{...}.
func textSafe(data []byte) bool {
	for _, b := range data {
		switch {
		case b == '\n' || b == '\t':
		case b < 0x20 || b >= 0x7f || b == '{' || b == '}' || b == '\r':
			return false
		}
	}
	return true
}

func writeKeyValue(w io.Writer, kv keyValue) error {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		value := kv[key]
		var err error
		switch {
		case textSafe(value) && !bytes.Contains(value, []byte{'\n'}):
			_, err = fmt.Fprintf(w, "%s=T{%s}\n", key, value)
		case textSafe(value):
			_, err = fmt.Fprintf(w, "%s=T{\n%s\n}\n", key, value)
		default:
			err = writeBinary(w, key, base64.StdEncoding.EncodeToString(value))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeBinary(w io.Writer, key, encoded string) error {
	if len(encoded) <= 60 {
		_, err := fmt.Fprintf(w, "%s=B{%s}\n", key, encoded)
		return err
	}
	if _, err := fmt.Fprintf(w, "%s=B{\n", key); err != nil {
		return err
	}
	for len(encoded) > 0 {
		n := min(60, len(encoded))
		if _, err := fmt.Fprintf(w, "%s\n", encoded[:n]); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	_, err := io.WriteString(w, "}\n")
	return err
}

// atomicWriteFile writes data to a temp file beside path and renames it.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
