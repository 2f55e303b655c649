// Package nucleus implements the cell's registry: a bijective name/address
// directory of organelles with per-entry replication flags. The registry is
// the cell's authorization anchor — the Parent entry gates registration, and
// membership in the reverse map gates custody withdrawals.
package nucleus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"protocell/internal/nucleus/store"
	"protocell/internal/organelle"
	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
	"protocell/pkg/platform/sentinel"
	"protocell/pkg/requestcontext"
)

// Mode selects the duplicate-name policy for Register.
type Mode string

const (
	// ModeUpdate overwrites an existing name's address and flag in place.
	ModeUpdate Mode = "update"
	// ModeStrict rejects registration of a name that already exists.
	ModeStrict Mode = "strict"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUpdate, ModeStrict:
		return Mode(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidArgument, fmt.Sprintf("unknown register mode %q", s))
	}
}

// InitParams configures a blank registry instance.
type InitParams struct {
	// Identity is the human-readable label, immutable after configuration.
	Identity string
	// Parent is the declared creator; sole holder of registration authority.
	Parent domain.Address
	// Entries seed the table after the fixed entries, in input order.
	Entries organelle.Table
}

// Service is one registry instance. Instances share a store backend but each
// scopes its table by its own address, so a blank clone starts empty.
type Service struct {
	addr   domain.Address
	store  store.Store
	mode   Mode
	logger *slog.Logger

	mu         sync.RWMutex
	configured bool
	identity   string
}

// New returns a blank, unconfigured registry bound to addr.
func New(addr domain.Address, st store.Store, mode Mode, logger *slog.Logger) *Service {
	return &Service{addr: addr, store: st, mode: mode, logger: logger}
}

// Address returns the registry's own address.
func (s *Service) Address() domain.Address {
	return s.addr
}

// Identity returns the registry's label, empty until configured.
func (s *Service) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Blank returns a fresh unconfigured registry at addr sharing this instance's
// store backend and mode but none of its state.
func (s *Service) Blank(addr domain.Address) *Service {
	return New(addr, s.store, s.mode, s.logger)
}

// Configure seeds the registry: the fixed Parent and Nucleus entries first,
// then the provided entries in input order. It may be called exactly once.
// params must be an InitParams value.
func (s *Service) Configure(ctx context.Context, params any) error {
	init, ok := params.(InitParams)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidArgument, "nucleus requires nucleus.InitParams")
	}
	return s.configure(ctx, init)
}

func (s *Service) configure(ctx context.Context, params InitParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return dErrors.New(dErrors.CodeAlreadyInitialized, "nucleus is already configured")
	}

	if params.Parent.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "parent address must not be nil")
	}
	seen := make(map[string]struct{}, len(params.Entries))
	for _, entry := range params.Entries {
		if entry.Name == "" {
			return dErrors.New(dErrors.CodeInvalidArgument, "organelle name must not be empty")
		}
		if organelle.Reserved(entry.Name) {
			return dErrors.New(dErrors.CodeInvalidArgument, fmt.Sprintf("organelle name %q is reserved", entry.Name))
		}
		if entry.Address.IsNil() {
			return dErrors.New(dErrors.CodeInvalidArgument, fmt.Sprintf("organelle %q has a nil address", entry.Name))
		}
		if _, dup := seen[entry.Name]; dup {
			return dErrors.New(dErrors.CodeInvalidArgument, fmt.Sprintf("duplicate organelle name %q", entry.Name))
		}
		seen[entry.Name] = struct{}{}
	}

	fixed := organelle.Table{
		{Name: organelle.NameParent, Address: params.Parent, Replicable: false},
		{Name: organelle.NameNucleus, Address: s.addr, Replicable: true},
	}
	for _, entry := range append(fixed, params.Entries...) {
		if err := s.store.Append(ctx, s.addr, entry); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeAlreadyExists,
					fmt.Sprintf("organelle %q collides with an existing entry", entry.Name))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed registry")
		}
	}

	s.identity = params.Identity
	s.configured = true
	s.logger.Info("nucleus configured",
		"registry", s.addr.String(),
		"identity", params.Identity,
		"entries", len(params.Entries))
	return nil
}

// Register adds or updates a named organelle. Only the current Parent may
// register; the duplicate policy follows the configured mode.
func (s *Service) Register(ctx context.Context, name string, addr domain.Address, replicable bool) error {
	if err := s.ensureConfigured(); err != nil {
		return err
	}
	if name == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "organelle name must not be empty")
	}
	if addr.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "organelle address must not be nil")
	}

	parent, err := s.store.ByName(ctx, s.addr, organelle.NameParent)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load parent entry")
	}
	caller := requestcontext.Caller(ctx)
	if caller != parent.Address {
		return dErrors.New(dErrors.CodeUnauthorized, "only the parent may register organelles")
	}

	entry := organelle.Organelle{Name: name, Address: addr, Replicable: replicable}
	switch s.mode {
	case ModeStrict:
		err = s.store.Append(ctx, s.addr, entry)
	default: // ModeUpdate
		err = s.store.Update(ctx, s.addr, entry)
		if errors.Is(err, sentinel.ErrNotFound) {
			err = s.store.Append(ctx, s.addr, entry)
		}
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeAlreadyExists,
				fmt.Sprintf("organelle %q collides with an existing entry", name))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register organelle")
	}

	s.logger.Info("organelle registered",
		"registry", s.addr.String(),
		"name", name,
		"address", addr.String(),
		"replicable", replicable)
	return nil
}

// AddressByName returns the address registered under name.
func (s *Service) AddressByName(ctx context.Context, name string) (domain.Address, error) {
	if err := s.ensureConfigured(); err != nil {
		return domain.NilAddress, err
	}
	entry, err := s.store.ByName(ctx, s.addr, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.NilAddress, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no organelle named %q", name))
		}
		return domain.NilAddress, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up organelle")
	}
	return entry.Address, nil
}

// NameByAddress returns the name an address is registered under.
func (s *Service) NameByAddress(ctx context.Context, addr domain.Address) (string, error) {
	if err := s.ensureConfigured(); err != nil {
		return "", err
	}
	entry, err := s.store.ByAddress(ctx, s.addr, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "address is not registered")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up organelle")
	}
	return entry.Name, nil
}

// IsReplicable returns the stored replication flag. Unknown names are not an
// error; they are simply not replicable.
func (s *Service) IsReplicable(ctx context.Context, name string) (bool, error) {
	if err := s.ensureConfigured(); err != nil {
		return false, err
	}
	entry, err := s.store.ByName(ctx, s.addr, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up organelle")
	}
	return entry.Replicable, nil
}

// Enumerate returns the full table in insertion order.
func (s *Service) Enumerate(ctx context.Context) (organelle.Table, error) {
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}
	entries, err := s.store.List(ctx, s.addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to enumerate organelles")
	}
	return entries, nil
}

// IsMember reports whether addr is registered under any name. This is the
// registry-as-ACL query; it is deliberately uncached so a registration takes
// effect on the very next authorization check.
func (s *Service) IsMember(ctx context.Context, addr domain.Address) (bool, error) {
	if err := s.ensureConfigured(); err != nil {
		return false, err
	}
	_, err := s.store.ByAddress(ctx, s.addr, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check membership")
	}
	return true, nil
}

// Parent returns the address currently registered under the Parent entry.
func (s *Service) Parent(ctx context.Context) (domain.Address, error) {
	return s.AddressByName(ctx, organelle.NameParent)
}

func (s *Service) ensureConfigured() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.configured {
		return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeInternal, "nucleus is not configured")
	}
	return nil
}
