package directory

import (
	"context"
	"sync"
)

// Memory is an in-process Directory. It backs single-node mode and tests,
// and counts calls so tests can assert that a lookup stayed local.
type Memory struct {
	mu     sync.RWMutex
	values map[Key]string

	puts int
	gets int

	// Err, when set, is returned by every call.
	Err error
}

// NewMemory returns an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{values: make(map[Key]string)}
}

// Put implements Directory.
func (m *Memory) Put(ctx context.Context, key Key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.Err != nil {
		return m.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.values[key] = value
	return nil
}

// Get implements Directory.
func (m *Memory) Get(ctx context.Context, key Key) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.Err != nil {
		return "", false, m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

// Calls returns the number of Put and Get calls so far.
func (m *Memory) Calls() (puts, gets int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts, m.gets
}

// Set stores a value without counting a call.
func (m *Memory) Set(key Key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Lookup returns a stored value without counting a call.
func (m *Memory) Lookup(key Key) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}
