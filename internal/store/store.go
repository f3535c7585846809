package store

import "context"

// Store loads and saves the full moderation record.
// Implementations are last-writer-wins; callers that need isolation must
// serialize the load/mutate/save cycle themselves.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}
