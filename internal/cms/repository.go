package cms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nebulacms/nebula/internal/log"
	"github.com/nebulacms/nebula/internal/store"
)

// Repository provides collection and entry storage on top of the store.
type Repository struct {
	store  *store.Store
	logger log.Logger
}

// NewRepository creates a content repository over the given store.
func NewRepository(s *store.Store, logger log.Logger) *Repository {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Repository{store: s, logger: logger}
}

// CreateCollection inserts a collection, overwriting any record with the
// same id. The caller supplies id and createdAt. Slug uniqueness is not
// checked here.
func (r *Repository) CreateCollection(ctx context.Context, c Collection) error {
	err := r.store.Update(ctx, func(tb *store.Tables) error {
		return store.Put(tb.Collections, c.ID, c)
	})
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", c.ID, err)
	}
	r.logger.Debug("collection created", "id", c.ID, "slug", c.Slug)
	return nil
}

// Collections returns all collection schemas. Order follows storage
// iteration and is not guaranteed stable across reloads.
func (r *Repository) Collections(ctx context.Context) ([]Collection, error) {
	var collections []Collection
	err := r.store.View(ctx, func(tb *store.Tables) error {
		var err error
		collections, err = store.All[Collection](tb.Collections)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return collections, nil
}

// FindBySlug resolves a collection by slug: first match wins, ok reports
// whether any matched.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (Collection, bool, error) {
	collections, err := r.Collections(ctx)
	if err != nil {
		return Collection{}, false, err
	}
	for _, c := range collections {
		if c.Slug == slug {
			return c, true, nil
		}
	}
	return Collection{}, false, nil
}

// SaveEntry upserts an entry keyed by id. Re-saving with an existing id
// fully replaces data, status, and updatedAt.
func (r *Repository) SaveEntry(ctx context.Context, e Entry) error {
	err := r.store.Update(ctx, func(tb *store.Tables) error {
		return store.Put(tb.Entries, e.ID, e)
	})
	if err != nil {
		return fmt.Errorf("saving entry %q: %w", e.ID, err)
	}
	r.logger.Debug("entry saved", "id", e.ID, "collection", e.CollectionID, "status", e.Status)
	return nil
}

// Entries returns all entries belonging to a collection. Unknown collection
// ids yield an empty slice, never an error: no existence check is performed.
func (r *Repository) Entries(ctx context.Context, collectionID string) ([]Entry, error) {
	var matched []Entry
	err := r.store.View(ctx, func(tb *store.Tables) error {
		all, err := store.All[Entry](tb.Entries)
		if err != nil {
			return err
		}
		matched = make([]Entry, 0)
		for _, e := range all {
			if e.CollectionID == collectionID {
				matched = append(matched, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing entries for %q: %w", collectionID, err)
	}
	return matched, nil
}

// PublicEntry is the flattened external projection of a published entry:
// id and updatedAt plus the entry's data fields hoisted to the top level.
// Status and collectionId are deliberately dropped from the public view.
type PublicEntry struct {
	ID        string
	Data      map[string]Value
	UpdatedAt int64
}

// MarshalJSON flattens the data fields into the top-level object. A data
// field named "id" or "updatedAt" is shadowed by the record's own fields.
func (p PublicEntry) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(p.Data)+2)
	for name, value := range p.Data {
		flat[name] = value
	}
	flat["id"] = p.ID
	flat["updatedAt"] = p.UpdatedAt
	return json.Marshal(flat)
}

// PublishedBySlug resolves a slug to a collection and returns its published
// entries in the flattened public projection. Returns ErrCollectionNotFound
// when no collection matches the slug.
func (r *Repository) PublishedBySlug(ctx context.Context, slug string) ([]PublicEntry, error) {
	collection, ok, err := r.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: slug %q", ErrCollectionNotFound, slug)
	}

	entries, err := r.Entries(ctx, collection.ID)
	if err != nil {
		return nil, err
	}

	published := make([]PublicEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status != StatusPublished {
			continue
		}
		published = append(published, PublicEntry{
			ID:        e.ID,
			Data:      e.Data,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return published, nil
}
