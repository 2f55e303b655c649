// Package leucoplast implements the cell's funds custody. Balances live on
// the environment's native ledger, never in component state; withdrawal is
// gated on membership in the bound registry and bounded per call by half the
// balance at call time.
package leucoplast

import (
	"context"
	"log/slog"
	"sync"

	"protocell/internal/platform/metrics"
	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
	"protocell/pkg/platform/sentinel"
	"protocell/pkg/requestcontext"
)

// Membership answers whether an address is registered in a registry's reverse
// map. It must be a pure query: no caching, so registry mutation takes effect
// on the very next withdrawal.
type Membership interface {
	IsMember(ctx context.Context, addr domain.Address) (bool, error)
}

// MembershipResolver builds the membership view of the registry a custody
// instance gets bound to at configuration time. Blank clones inherit the
// resolver, so a cloned custody can bind to a different registry.
type MembershipResolver func(registry domain.Address) (Membership, error)

// Ledger is the slice of the environment's native ledger custody needs.
type Ledger interface {
	Balance(ctx context.Context, addr domain.Address) (uint64, error)
	Mint(ctx context.Context, addr domain.Address, amount uint64) error
	Transfer(ctx context.Context, from, to domain.Address, amount uint64) error
}

// InitParams binds a blank custody instance to its registry.
type InitParams struct {
	Registry domain.Address
}

// Service is one custody instance.
type Service struct {
	addr    domain.Address
	ledger  Ledger
	resolve MembershipResolver
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu         sync.RWMutex
	configured bool
	registry   domain.Address
	members    Membership
}

// New returns a blank, unconfigured custody component at addr.
func New(addr domain.Address, ledger Ledger, resolve MembershipResolver, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{addr: addr, ledger: ledger, resolve: resolve, metrics: m, logger: logger}
}

// Address returns the custody component's own address.
func (s *Service) Address() domain.Address {
	return s.addr
}

// Registry returns the bound registry's address, nil until configured.
func (s *Service) Registry() domain.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// Blank returns a fresh unconfigured custody at addr sharing this instance's
// ledger and resolver wiring but none of its state.
func (s *Service) Blank(addr domain.Address) *Service {
	return New(addr, s.ledger, s.resolve, s.metrics, s.logger)
}

// Configure binds the custody to a registry. It may be called exactly once.
// params must be an InitParams value.
func (s *Service) Configure(_ context.Context, params any) error {
	init, ok := params.(InitParams)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidArgument, "leucoplast requires leucoplast.InitParams")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return dErrors.New(dErrors.CodeAlreadyInitialized, "leucoplast is already configured")
	}
	if init.Registry.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "registry address must not be nil")
	}
	members, err := s.resolve(init.Registry)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "cannot resolve registry membership")
	}
	s.registry = init.Registry
	s.members = members
	s.configured = true
	s.logger.Info("leucoplast configured",
		"custody", s.addr.String(),
		"registry", init.Registry.String())
	return nil
}

// Deposit credits the custody with externally sourced funds. Anyone may fund
// the cell; there is no authorization check.
func (s *Service) Deposit(ctx context.Context, amount uint64) error {
	if err := s.ensureConfigured(); err != nil {
		return err
	}
	if err := s.ledger.Mint(ctx, s.addr, amount); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveDeposit(amount)
	}
	return nil
}

// Balance returns the funds currently held, read from the native ledger.
func (s *Service) Balance(ctx context.Context) (uint64, error) {
	if err := s.ensureConfigured(); err != nil {
		return 0, err
	}
	return s.ledger.Balance(ctx, s.addr)
}

// Withdraw transfers amount to recipient. The caller must be a registered
// organelle of the bound registry, and amount may not exceed half the balance
// at call time (integer division). The ceiling is per call: repeated maximal
// withdrawals approach zero without reaching it. A zero amount succeeds as a
// no-op transfer.
func (s *Service) Withdraw(ctx context.Context, recipient domain.Address, amount uint64) error {
	if err := s.ensureConfigured(); err != nil {
		return err
	}
	if recipient.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "recipient address must not be nil")
	}

	caller := requestcontext.Caller(ctx)
	member, err := s.members.IsMember(ctx, caller)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check registry membership")
	}
	if !member {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not a registered organelle")
	}

	balance, err := s.ledger.Balance(ctx, s.addr)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	if amount > balance/2 {
		return dErrors.New(dErrors.CodeLimitExceeded, "withdrawal exceeds half of current balance")
	}
	if err := s.ledger.Transfer(ctx, s.addr, recipient, amount); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.ObserveWithdrawal(amount)
	}
	s.logger.Info("withdrawal",
		"custody", s.addr.String(),
		"caller", caller.String(),
		"recipient", recipient.String(),
		"amount", amount)
	return nil
}

func (s *Service) ensureConfigured() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.configured {
		return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeInternal, "leucoplast is not configured")
	}
	return nil
}
