package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Store is a string key-value store used to persist settings between runs.
type Store interface {
	// Get returns the value stored under key and whether it was present.
	Get(key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
}

// MemoryStore keeps values in memory only.
type MemoryStore struct {
	mutex  sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(key, value string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.values[key] = value
	return nil
}

// FileStore keeps all keys in a single JSON object file.
// The file is created on the first Set.
type FileStore struct {
	fs    afero.Fs
	path  string
	mutex sync.Mutex
}

// NewFileStore returns a FileStore backed by the file at path on fs.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// Path returns the location of the backing file.
func (f *FileStore) Path() string {
	return f.path
}

// Get returns the value stored under key.
func (f *FileStore) Get(key string) (string, bool, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	values, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set stores value under key and rewrites the backing file.
func (f *FileStore) Set(key, value string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	values, err := f.read()
	if err != nil {
		// An unreadable file is replaced rather than blocking every later write.
		values = make(map[string]string)
	}
	values[key] = value
	return f.write(values)
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("read store %s: %w", f.path, err)
	}
	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", f.path, err)
	}
	return values, nil
}

func (f *FileStore) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := f.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	tmpPath := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := f.fs.Rename(tmpPath, f.path); err != nil {
		_ = f.fs.Remove(tmpPath)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
