package store

import (
	"context"

	"protocell/pkg/domain"
)

// Log persists the replicated-cells history of replicator instances: an
// append-only, insertion-ordered list of daughter registry addresses per
// replicator. Entries are never reordered or pruned.
type Log interface {
	Append(ctx context.Context, owner, cell domain.Address) error
	List(ctx context.Context, owner domain.Address) ([]domain.Address, error)
}
