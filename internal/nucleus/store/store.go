package store

import (
	"context"

	"protocell/internal/organelle"
	"protocell/pkg/domain"
)

// Store persists the organelle tables of registry instances. One store backs
// many registries; every call is scoped by the owning registry's address.
//
// Implementations must preserve insertion order for List and keep the
// name/address bijection intact: Append fails with sentinel.ErrConflict when
// the name is taken or the address is already bound to another name, and
// Update fails with sentinel.ErrConflict when rebinding the name's address
// would alias an address held by a different name.
//
// Entries are never deleted; registries are append-or-overwrite only.
type Store interface {
	// Append adds a new entry at the end of the registry's table.
	Append(ctx context.Context, registry domain.Address, entry organelle.Organelle) error
	// Update overwrites the address and flag of an existing name in place,
	// keeping its position in the table. Fails with sentinel.ErrNotFound when
	// the name was never registered.
	Update(ctx context.Context, registry domain.Address, entry organelle.Organelle) error
	// ByName returns the entry registered under name, or sentinel.ErrNotFound.
	ByName(ctx context.Context, registry domain.Address, name string) (organelle.Organelle, error)
	// ByAddress returns the entry bound to addr, or sentinel.ErrNotFound.
	ByAddress(ctx context.Context, registry domain.Address, addr domain.Address) (organelle.Organelle, error)
	// List returns the full table in insertion order.
	List(ctx context.Context, registry domain.Address) (organelle.Table, error)
}
