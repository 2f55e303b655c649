// Package environment is the in-process execution environment for cell
// components: a native ledger for balances, a deployer implementing the
// clone-by-reference template pattern, and all-or-nothing atomic sections.
// Core components only ever touch the environment through these operations;
// they never share state directly.
package environment

import (
	"context"
	"sync"

	"protocell/pkg/domain"
)

// Environment bundles the ledger and deployer and provides the atomic
// transaction boundary the replication protocol relies on.
type Environment struct {
	ledger   *Ledger
	deployer *Deployer

	// txMu serializes atomic sections; within one section no other atomic
	// section can interleave, matching the strictly serialized execution
	// model the components assume.
	txMu sync.Mutex
}

func New() *Environment {
	return &Environment{
		ledger:   NewLedger(),
		deployer: NewDeployer(),
	}
}

// Ledger exposes the native balance table.
func (e *Environment) Ledger() *Ledger {
	return e.ledger
}

// Deploy registers a constructed component and its blank factory.
func (e *Environment) Deploy(c Component, blank BlankFunc) error {
	return e.deployer.Deploy(c, blank)
}

// Instantiate deploys a blank copy of the template component.
func (e *Environment) Instantiate(ctx context.Context, template domain.Address) (domain.Address, error) {
	return e.deployer.Instantiate(ctx, template)
}

// Configure runs one-time initialization on a deployed instance.
func (e *Environment) Configure(ctx context.Context, addr domain.Address, params any) error {
	return e.deployer.Configure(ctx, addr, params)
}

// Resolve returns the component deployed at addr.
func (e *Environment) Resolve(addr domain.Address) (Component, bool) {
	return e.deployer.Resolve(addr)
}

// Transfer moves funds on the native ledger.
func (e *Environment) Transfer(ctx context.Context, from, to domain.Address, amount uint64) error {
	return e.ledger.Transfer(ctx, from, to, amount)
}

// Atomic runs fn as an all-or-nothing transaction: when fn returns an error,
// every ledger movement and every instantiation performed inside fn is
// rolled back. There is no mid-transaction abort; fn either fully commits or
// leaves no trace.
func (e *Environment) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	e.txMu.Lock()
	defer e.txMu.Unlock()

	balances := e.ledger.snapshot()
	deployed := e.deployer.snapshot()
	if err := fn(ctx); err != nil {
		e.ledger.restore(balances)
		e.deployer.restore(deployed)
		return err
	}
	return nil
}
