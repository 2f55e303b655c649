package environment

import (
	"context"
	"sync"

	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
)

// Ledger is the environment's native balance table. Component balances live
// here, never in component state; custody components derive their balance
// from the ledger at call time.
type Ledger struct {
	mu       sync.RWMutex
	balances map[domain.Address]uint64
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[domain.Address]uint64)}
}

// Balance returns the funds currently held at addr. Unknown addresses hold
// zero; holding a balance does not require being deployed.
func (l *Ledger) Balance(_ context.Context, addr domain.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr], nil
}

// Mint credits addr with externally sourced funds. This is the faucet backing
// unconditional receive: anyone may fund any address.
func (l *Ledger) Mint(_ context.Context, addr domain.Address, amount uint64) error {
	if addr.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "cannot mint to the nil address")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] += amount
	return nil
}

// Transfer moves amount from one address to another. A zero amount succeeds
// as a no-op.
func (l *Ledger) Transfer(_ context.Context, from, to domain.Address, amount uint64) error {
	if from.IsNil() || to.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "transfer endpoints must not be nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return dErrors.New(dErrors.CodeInsufficientFunds, "transfer exceeds sender balance")
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *Ledger) snapshot() map[domain.Address]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	copied := make(map[domain.Address]uint64, len(l.balances))
	for addr, balance := range l.balances {
		copied[addr] = balance
	}
	return copied
}

func (l *Ledger) restore(snapshot map[domain.Address]uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = snapshot
}
