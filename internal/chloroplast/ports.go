package chloroplast

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"protocell/internal/organelle"
	"protocell/pkg/domain"
)

// Registry is the slice of the nucleus the replicator reads. It never writes
// to the source registry.
type Registry interface {
	Address() domain.Address
	Identity() string
	Enumerate(ctx context.Context) (organelle.Table, error)
}

// Custody is the slice of the leucoplast the replicator draws funds through.
// The replicator must itself be a registered organelle for Withdraw to pass
// the custody's membership gate.
type Custody interface {
	Address() domain.Address
	Balance(ctx context.Context) (uint64, error)
	Withdraw(ctx context.Context, recipient domain.Address, amount uint64) error
}

// Environment is the execution environment capability set replication needs:
// clone-by-template instantiation, one-time configuration, value transfer and
// the all-or-nothing transaction boundary.
type Environment interface {
	Instantiate(ctx context.Context, template domain.Address) (domain.Address, error)
	Configure(ctx context.Context, addr domain.Address, params any) error
	Transfer(ctx context.Context, from, to domain.Address, amount uint64) error
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// Resolver turns component addresses into the typed ports above. The
// assembly layer implements it over the environment's deployment table.
type Resolver interface {
	Registry(addr domain.Address) (Registry, error)
	Custody(addr domain.Address) (Custody, error)
}
