package types

import "context"

// SearchPageSize bounds the number of entities Search returns.
const SearchPageSize = 50

// EntityStore persists entities, fragments and erasure records.
// Mutating operations are serialized; reads may run concurrently and always
// see the latest committed state.
type EntityStore interface {
	// Save replaces every entity named in mapping, together with all its
	// fragments, by the fragments mapped to it. Saving the same pair twice
	// leaves the store as after one save.
	Save(ctx context.Context, mapping Mapping, fragments []Fragment) error

	// Get returns the entity and its live fragments.
	// Returns ErrEntityNotFound if no entity has that ID.
	Get(ctx context.Context, entityID string) (*EntityRecord, error)

	// Search returns the distinct entities owning a fragment whose value or
	// type contains query (case-insensitive), most recently updated first.
	Search(ctx context.Context, query string) ([]Entity, error)

	// ListEntities returns up to limit entities, most recently updated first.
	ListEntities(ctx context.Context, limit int) ([]Entity, error)

	// DeleteFragment removes one fragment. When it was the entity's last
	// fragment the entity is removed as well and an erasure is recorded.
	// Returns ErrFragmentNotFound if no fragment has that ID.
	DeleteFragment(ctx context.Context, fragID, requestedBy, reason string) (*DeleteResult, error)

	// EraseEntity atomically removes an entity and all its fragments and
	// records one erasure. Returns the number of fragments deleted.
	// Returns 0 and ErrEntityNotFound if the entity does not exist.
	EraseEntity(ctx context.Context, entityID, requestedBy, reason string) (int, error)

	// ListErasures returns up to limit erasure records, newest first.
	ListErasures(ctx context.Context, limit int) ([]Erasure, error)

	// Statistics returns counts computed from the current rows.
	Statistics(ctx context.Context) (*Statistics, error)

	// Close releases the store. Close is idempotent.
	Close() error
}

// ErasureExporter is implemented by stores that can write their erasure
// register to a file.
type ErasureExporter interface {
	ExportErasures(ctx context.Context, path string) (int, error)
}
