package audit

import "context"

// Store persists audit entries. Implementations must be append-only: entries
// are never updated or deleted once written.
//
// Append must reject an entry whose PrevHash does not equal the stored head's
// CurrHash with sentinel.ErrConflict. The Log serializes appends per entity
// in-process; the store-level check is the backstop that makes a lost race
// fail closed instead of forking the chain.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// Head returns the latest entry for an entity, or sentinel.ErrNotFound
	// when the chain is empty.
	Head(ctx context.Context, entityID string) (Entry, error)
	// List returns all entries for an entity, oldest first.
	List(ctx context.Context, entityID string) ([]Entry, error)
}
