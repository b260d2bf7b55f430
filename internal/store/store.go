// Package store implements the durable key-value store backing nebula's
// control plane.
//
// The store keeps three logical tables (sessions, collections, entries) as
// in-memory maps, hydrated lazily from the storage backend on first access
// and written back as full snapshots after every mutation. There are no
// per-key writes: a mutation re-serializes all three tables and persists them
// in a single atomic multi-key put.
//
// Concurrency: the store serializes all access with an internal mutex, held
// for the duration of each logical operation including its persistence step.
// It provides no versioning or optimistic concurrency beyond that.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nebulacms/nebula/internal/log"
)

// Logical table names used as snapshot keys in the storage backend.
const (
	TableSessions    = "sessions"
	TableCollections = "collections"
	TableEntries     = "entries"
)

// tableNames lists every snapshot read on hydration and written on persist.
var tableNames = []string{TableSessions, TableCollections, TableEntries}

// ErrStorage indicates a failure in the underlying storage backend. Check
// with errors.Is; the wrapped error carries backend detail.
var ErrStorage = errors.New("storage failure")

// ErrNoChange may be returned by an Update callback to signal that nothing
// was mutated. Update then skips the persist step and reports success.
var ErrNoChange = errors.New("no change")

// Storage is the durable backend the store persists to. Implementations must
// make WriteSnapshots atomic: either every snapshot is written or none is.
type Storage interface {
	// ReadSnapshots returns the persisted snapshots for the given names.
	// Absent names are simply missing from the result, not an error.
	ReadSnapshots(ctx context.Context, names []string) (map[string][]byte, error)

	// WriteSnapshots atomically replaces the persisted snapshots.
	WriteSnapshots(ctx context.Context, snapshots map[string][]byte) error
}

// Table is one logical table: record id to serialized record.
type Table = map[string]json.RawMessage

// Tables is the full in-memory state of the store, exposed to View/Update
// callbacks. Callers mutate the maps directly; Update persists afterwards.
type Tables struct {
	Sessions    Table
	Collections Table
	Entries     Table
}

// Store is the durable map-of-maps store. The zero value is not usable; use
// New.
//
// Store is safe for concurrent use: the internal mutex stands in for the
// single-writer guarantee an actor runtime would otherwise provide.
type Store struct {
	mu      sync.Mutex
	storage Storage
	logger  log.Logger

	loaded bool
	tables Tables
}

// New creates a store over the given backend. Nothing is read until the
// first View or Update call.
func New(storage Storage, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		storage: storage,
		logger:  logger,
	}
}

// ensureLoaded hydrates all three tables from the backend on first access.
// Idempotent: subsequent calls are no-ops. Caller must hold the lock.
func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	snapshots, err := s.storage.ReadSnapshots(ctx, tableNames)
	if err != nil {
		return fmt.Errorf("%w: reading snapshots: %v", ErrStorage, err)
	}

	load := func(name string) (Table, error) {
		data, ok := snapshots[name]
		if !ok || len(data) == 0 {
			return Table{}, nil
		}
		var t Table
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("%w: decoding %s snapshot: %v", ErrStorage, name, err)
		}
		if t == nil {
			t = Table{}
		}
		return t, nil
	}

	if s.tables.Sessions, err = load(TableSessions); err != nil {
		return err
	}
	if s.tables.Collections, err = load(TableCollections); err != nil {
		return err
	}
	if s.tables.Entries, err = load(TableEntries); err != nil {
		return err
	}

	s.loaded = true
	s.logger.Debug("store hydrated",
		"sessions", len(s.tables.Sessions),
		"collections", len(s.tables.Collections),
		"entries", len(s.tables.Entries),
	)
	return nil
}

// persist writes the full three-table snapshot back to the backend.
// Caller must hold the lock.
func (s *Store) persist(ctx context.Context) error {
	snapshots := make(map[string][]byte, len(tableNames))
	for name, table := range map[string]Table{
		TableSessions:    s.tables.Sessions,
		TableCollections: s.tables.Collections,
		TableEntries:     s.tables.Entries,
	} {
		data, err := json.Marshal(table)
		if err != nil {
			return fmt.Errorf("%w: encoding %s snapshot: %v", ErrStorage, name, err)
		}
		snapshots[name] = data
	}

	if err := s.storage.WriteSnapshots(ctx, snapshots); err != nil {
		// The in-memory maps are NOT rolled back here: memory and disk can
		// diverge until the next successful persist. Known limitation.
		return fmt.Errorf("%w: writing snapshots: %v", ErrStorage, err)
	}
	return nil
}

// View runs fn with read access to the tables. fn must not retain the maps
// beyond the call.
func (s *Store) View(ctx context.Context, fn func(*Tables) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	return fn(&s.tables)
}

// Update runs fn with write access to the tables, then persists the full
// snapshot. If fn returns an error nothing is persisted; ErrNoChange skips
// the persist without reporting failure.
func (s *Store) Update(ctx context.Context, fn func(*Tables) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	if err := fn(&s.tables); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return s.persist(ctx)
}

// Get decodes the record with the given id from a table.
func Get[T any](t Table, id string) (T, bool, error) {
	var v T
	raw, ok := t[id]
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decoding record %q: %w", id, err)
	}
	return v, true, nil
}

// Put encodes a record into a table under the given id, overwriting any
// existing record.
func Put[T any](t Table, id string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding record %q: %w", id, err)
	}
	t[id] = raw
	return nil
}

// All decodes every record in a table. Order is unspecified (map iteration);
// callers needing an ordering must sort.
func All[T any](t Table) ([]T, error) {
	out := make([]T, 0, len(t))
	for id, raw := range t {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding record %q: %w", id, err)
		}
		out = append(out, v)
	}
	return out, nil
}
