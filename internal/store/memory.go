package store

import (
	"context"
	"sync"
)

// Memory is an in-process storage backend with the same contract as
// Postgres. It backs the --memory development mode and most unit tests.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	states    map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string][]byte),
		states:    make(map[string][]byte),
	}
}

// ReadSnapshots implements Storage.
func (m *Memory) ReadSnapshots(_ context.Context, names []string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]byte, len(names))
	for _, name := range names {
		if data, ok := m.snapshots[name]; ok {
			out[name] = append([]byte(nil), data...)
		}
	}
	return out, nil
}

// WriteSnapshots implements Storage.
func (m *Memory) WriteSnapshots(_ context.Context, snapshots map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, data := range snapshots {
		m.snapshots[name] = append([]byte(nil), data...)
	}
	return nil
}

// ReadState returns the serialized agent state for a session, nil if absent.
func (m *Memory) ReadState(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.states[sessionID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// WriteState stores the serialized agent state for a session.
func (m *Memory) WriteState(_ context.Context, sessionID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[sessionID] = append([]byte(nil), data...)
	return nil
}

// DeleteState removes the agent state for a session.
func (m *Memory) DeleteState(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, sessionID)
	return nil
}
