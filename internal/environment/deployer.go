package environment

import (
	"context"
	"fmt"
	"sync"

	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
)

// Component is the surface the environment requires of anything deployable:
// a fixed address and one-time initialization. A second Configure on the same
// instance must fail with AlreadyInitialized.
type Component interface {
	Address() domain.Address
	Configure(ctx context.Context, params any) error
}

// BlankFunc produces a fresh, unconfigured instance of a component at the
// given address — the clone shares the template's code and wiring, never its
// state.
type BlankFunc func(domain.Address) Component

// Deployer tracks deployed component instances and implements the
// clone-by-reference template pattern: any deployed instance can serve as the
// template for further blank instances.
type Deployer struct {
	mu         sync.RWMutex
	components map[domain.Address]Component
	blanks     map[domain.Address]BlankFunc
}

func NewDeployer() *Deployer {
	return &Deployer{
		components: make(map[domain.Address]Component),
		blanks:     make(map[domain.Address]BlankFunc),
	}
}

// Deploy registers an already constructed component and its blank factory.
func (d *Deployer) Deploy(c Component, blank BlankFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := c.Address()
	if _, taken := d.components[addr]; taken {
		return dErrors.New(dErrors.CodeAlreadyExists, fmt.Sprintf("address %s is already deployed", addr))
	}
	d.components[addr] = c
	d.blanks[addr] = blank
	return nil
}

// Instantiate deploys a fresh unconfigured copy of the component at template
// and returns the new instance's address. The copy is itself a valid template.
func (d *Deployer) Instantiate(_ context.Context, template domain.Address) (domain.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	blank, ok := d.blanks[template]
	if !ok {
		return domain.NilAddress, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no template deployed at %s", template))
	}
	addr := domain.NewAddress()
	d.components[addr] = blank(addr)
	d.blanks[addr] = blank
	return addr, nil
}

// Configure runs one-time initialization on the instance at addr.
func (d *Deployer) Configure(ctx context.Context, addr domain.Address, params any) error {
	d.mu.RLock()
	c, ok := d.components[addr]
	d.mu.RUnlock()
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no component deployed at %s", addr))
	}
	return c.Configure(ctx, params)
}

// Resolve returns the component instance deployed at addr.
func (d *Deployer) Resolve(addr domain.Address) (Component, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.components[addr]
	return c, ok
}

func (d *Deployer) snapshot() map[domain.Address]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	deployed := make(map[domain.Address]struct{}, len(d.components))
	for addr := range d.components {
		deployed[addr] = struct{}{}
	}
	return deployed
}

// restore discards every component deployed after the snapshot was taken.
// Pre-existing components are untouched: a rolled-back transaction can only
// have added instances, never mutated deployed ones it did not create.
func (d *Deployer) restore(snapshot map[domain.Address]struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr := range d.components {
		if _, existed := snapshot[addr]; !existed {
			delete(d.components, addr)
			delete(d.blanks, addr)
		}
	}
}
