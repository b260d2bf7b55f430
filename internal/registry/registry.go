// Package registry tracks chat session metadata: which sessions exist, their
// titles, and when they were last active. Message content is NOT stored here;
// it lives in the agent's per-session state.
//
// Operations on missing sessions follow a soft-error policy: they report
// absence through boolean returns or no-ops instead of failing, keeping every
// operation idempotent.
package registry

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nebulacms/nebula/internal/log"
	"github.com/nebulacms/nebula/internal/store"
)

// Session is one session metadata record. Timestamps are epoch milliseconds
// to match the wire contract of the dashboard frontend.
type Session struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CreatedAt  int64  `json:"createdAt"`
	LastActive int64  `json:"lastActive"`
}

// Registry provides CRUD over session metadata on top of the store.
type Registry struct {
	store  *store.Store
	logger log.Logger

	// now is swappable for deterministic tests.
	now func() time.Time
}

// New creates a session registry over the given store.
func New(s *store.Store, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{store: s, logger: logger, now: time.Now}
}

// AddSession creates or overwrites a session record. An empty title defaults
// to one derived from the current date.
func (r *Registry) AddSession(ctx context.Context, id, title string) error {
	now := r.now().UnixMilli()
	if title == "" {
		title = fmt.Sprintf("Chat %s", r.now().Format("1/2/2006"))
	}

	err := r.store.Update(ctx, func(tb *store.Tables) error {
		return store.Put(tb.Sessions, id, Session{
			ID:         id,
			Title:      title,
			CreatedAt:  now,
			LastActive: now,
		})
	})
	if err != nil {
		return fmt.Errorf("adding session %q: %w", id, err)
	}

	r.logger.Debug("session registered", "id", id, "title", title)
	return nil
}

// RemoveSession deletes a session record. Reports whether a record existed.
func (r *Registry) RemoveSession(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.store.Update(ctx, func(tb *store.Tables) error {
		if _, ok := tb.Sessions[id]; !ok {
			return store.ErrNoChange
		}
		delete(tb.Sessions, id)
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("removing session %q: %w", id, err)
	}
	return deleted, nil
}

// ListSessions returns all session records, most recently active first.
func (r *Registry) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	err := r.store.View(ctx, func(tb *store.Tables) error {
		var err error
		sessions, err = store.All[Session](tb.Sessions)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	slices.SortFunc(sessions, func(a, b Session) int {
		switch {
		case a.LastActive > b.LastActive:
			return -1
		case a.LastActive < b.LastActive:
			return 1
		default:
			return 0
		}
	})
	return sessions, nil
}

// TouchSession updates a session's last-active timestamp. Missing sessions
// are a no-op.
func (r *Registry) TouchSession(ctx context.Context, id string) error {
	err := r.store.Update(ctx, func(tb *store.Tables) error {
		sess, ok, err := store.Get[Session](tb.Sessions, id)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNoChange
		}
		sess.LastActive = r.now().UnixMilli()
		return store.Put(tb.Sessions, id, sess)
	})
	if err != nil {
		return fmt.Errorf("touching session %q: %w", id, err)
	}
	return nil
}

// RenameSession replaces a session's title. Reports false (without error)
// when the session does not exist.
func (r *Registry) RenameSession(ctx context.Context, id, title string) (bool, error) {
	renamed := false
	err := r.store.Update(ctx, func(tb *store.Tables) error {
		sess, ok, err := store.Get[Session](tb.Sessions, id)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNoChange
		}
		sess.Title = title
		renamed = true
		return store.Put(tb.Sessions, id, sess)
	})
	if err != nil {
		return false, fmt.Errorf("renaming session %q: %w", id, err)
	}
	return renamed, nil
}
