package fumock

import "sync"

// DataStore is an in-memory fustore.DataStore. Values are kept as given;
// the encrypt flag is ignored. Err makes every Get fail.
type DataStore struct {
	Err error

	mu     sync.Mutex
	values map[string][]byte
}

func (d *DataStore) Get(key string, _ bool) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	v, ok := d.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (d *DataStore) Set(key string, _ bool, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.values == nil {
		d.values = make(map[string][]byte)
	}
	d.values[key] = append([]byte(nil), value...)
	return nil
}

func (d *DataStore) Path() string { return "memory" }
