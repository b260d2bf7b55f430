package registry

import (
	"context"
	"testing"
	"time"

	"github.com/nebulacms/nebula/internal/log"
	"github.com/nebulacms/nebula/internal/store"
)

// newTestRegistry returns a registry over a fresh in-memory store with a
// controllable clock.
func newTestRegistry(t *testing.T) (*Registry, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := New(store.New(store.NewMemory(), log.NewNop()), log.NewNop())
	r.now = c.Now
	return r, c
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAddAndListSessions(t *testing.T) {
	ctx := context.Background()
	r, c := newTestRegistry(t)

	if err := r.AddSession(ctx, "a", "first"); err != nil {
		t.Fatalf("AddSession(a) error: %v", err)
	}
	c.Advance(time.Minute)
	if err := r.AddSession(ctx, "b", "second"); err != nil {
		t.Fatalf("AddSession(b) error: %v", err)
	}

	sessions, err := r.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("ListSessions() len = %d, want 2", len(sessions))
	}
	// Most recently active first.
	if sessions[0].ID != "b" || sessions[1].ID != "a" {
		t.Errorf("order = [%s %s], want [b a]", sessions[0].ID, sessions[1].ID)
	}
}

func TestAddSession_DefaultTitle(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	if err := r.AddSession(ctx, "s", ""); err != nil {
		t.Fatalf("AddSession() error: %v", err)
	}

	sessions, err := r.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if sessions[0].Title != "Chat 6/1/2025" {
		t.Errorf("default title = %q, want %q", sessions[0].Title, "Chat 6/1/2025")
	}
}

func TestRemoveSession(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	if err := r.AddSession(ctx, "a", "t"); err != nil {
		t.Fatalf("AddSession() error: %v", err)
	}

	deleted, err := r.RemoveSession(ctx, "a")
	if err != nil || !deleted {
		t.Fatalf("RemoveSession(existing) = %v, %v; want true, nil", deleted, err)
	}

	deleted, err = r.RemoveSession(ctx, "a")
	if err != nil || deleted {
		t.Fatalf("RemoveSession(missing) = %v, %v; want false, nil", deleted, err)
	}

	sessions, err := r.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("ListSessions() after removal = %d records, want 0", len(sessions))
	}
}

func TestNetEffect_AddRemoveSequence(t *testing.T) {
	ctx := context.Background()
	r, c := newTestRegistry(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := r.AddSession(ctx, id, id); err != nil {
			t.Fatalf("AddSession(%s) error: %v", id, err)
		}
		c.Advance(time.Second)
	}
	if _, err := r.RemoveSession(ctx, "b"); err != nil {
		t.Fatalf("RemoveSession(b) error: %v", err)
	}
	if err := r.AddSession(ctx, "d", "d"); err != nil {
		t.Fatalf("AddSession(d) error: %v", err)
	}

	sessions, err := r.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}

	want := []string{"d", "c", "a"}
	if len(sessions) != len(want) {
		t.Fatalf("ListSessions() len = %d, want %d", len(sessions), len(want))
	}
	for i, id := range want {
		if sessions[i].ID != id {
			t.Errorf("sessions[%d].ID = %s, want %s", i, sessions[i].ID, id)
		}
	}
}

func TestTouchSession_ReordersListing(t *testing.T) {
	ctx := context.Background()
	r, c := newTestRegistry(t)

	if err := r.AddSession(ctx, "old", "t"); err != nil {
		t.Fatal(err)
	}
	c.Advance(time.Minute)
	if err := r.AddSession(ctx, "new", "t"); err != nil {
		t.Fatal(err)
	}

	c.Advance(time.Minute)
	if err := r.TouchSession(ctx, "old"); err != nil {
		t.Fatalf("TouchSession() error: %v", err)
	}

	sessions, err := r.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sessions[0].ID != "old" {
		t.Errorf("touched session not first: order[0] = %s", sessions[0].ID)
	}
}

func TestTouchSession_MissingIsIdempotentNoop(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	// Twice, per the idempotence property: no error and no side effect.
	for range 2 {
		if err := r.TouchSession(ctx, "ghost"); err != nil {
			t.Fatalf("TouchSession(missing) error: %v", err)
		}
	}

	sessions, err := r.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("TouchSession(missing) created a record: %+v", sessions)
	}
}

func TestRenameSession(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	if ok, err := r.RenameSession(ctx, "ghost", "x"); ok || err != nil {
		t.Fatalf("RenameSession(missing) = %v, %v; want false, nil", ok, err)
	}

	if err := r.AddSession(ctx, "a", "before"); err != nil {
		t.Fatal(err)
	}
	if ok, err := r.RenameSession(ctx, "a", "after"); !ok || err != nil {
		t.Fatalf("RenameSession(existing) = %v, %v; want true, nil", ok, err)
	}

	sessions, err := r.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sessions[0].Title != "after" {
		t.Errorf("title = %q, want %q", sessions[0].Title, "after")
	}
}

func TestAddSession_OverwritesExisting(t *testing.T) {
	ctx := context.Background()
	r, c := newTestRegistry(t)

	if err := r.AddSession(ctx, "a", "first"); err != nil {
		t.Fatal(err)
	}
	created := c.Now().UnixMilli()

	c.Advance(time.Hour)
	if err := r.AddSession(ctx, "a", "second"); err != nil {
		t.Fatal(err)
	}

	sessions, err := r.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len = %d, want 1 (overwrite, not duplicate)", len(sessions))
	}
	if sessions[0].Title != "second" {
		t.Errorf("title = %q, want %q", sessions[0].Title, "second")
	}
	if sessions[0].CreatedAt == created {
		t.Errorf("CreatedAt not refreshed on overwrite")
	}
}
