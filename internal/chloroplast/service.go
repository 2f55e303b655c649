// Package chloroplast implements the replication orchestrator. Replicate is
// a single compound transition: it reads the source registry, selectively
// clones entries, constructs a daughter registry and custody, and moves a
// funding share — all inside one environment-level atomic section, so a
// failure at any step leaves no partial effect, including on the
// replicated-cells log.
package chloroplast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	chstore "protocell/internal/chloroplast/store"
	"protocell/internal/leucoplast"
	"protocell/internal/nucleus"
	"protocell/internal/organelle"
	"protocell/internal/platform/metrics"
	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
	"protocell/pkg/platform/lineage"
	"protocell/pkg/platform/sentinel"
	"protocell/pkg/requestcontext"
)

// InitParams binds a blank replicator to the source cell it replicates.
type InitParams struct {
	// Registry and Custody reference the original cell's components; they are
	// immutable for the lifetime of the instance.
	Registry domain.Address
	Custody  domain.Address
	// Cost is the funding share reserved to seed each daughter cell.
	Cost uint64
}

// Result describes one successful replication.
type Result struct {
	// Registry is the daughter registry's address, also appended to the
	// replicated-cells log.
	Registry domain.Address
	// Custody is the daughter custody's address.
	Custody domain.Address
	// FundsUsed is the reserved replication cost.
	FundsUsed uint64
	// Transferred is the share moved to the daughter custody.
	Transferred uint64
	// CellCount is the length of this replicator's log after the call.
	CellCount int
}

// Service is one replicator instance.
type Service struct {
	addr      domain.Address
	env       Environment
	resolver  Resolver
	log       chstore.Log
	publisher lineage.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer

	mu           sync.RWMutex
	configured   bool
	registry     Registry
	custody      Custody
	registryAddr domain.Address
	custodyAddr  domain.Address
	cost         uint64
}

// New returns a blank, unconfigured replicator at addr.
func New(addr domain.Address, env Environment, resolver Resolver, log chstore.Log,
	publisher lineage.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		addr:      addr,
		env:       env,
		resolver:  resolver,
		log:       log,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("protocell/chloroplast"),
	}
}

// Address returns the replicator's own address.
func (s *Service) Address() domain.Address {
	return s.addr
}

// Blank returns a fresh unconfigured replicator at addr sharing this
// instance's wiring but none of its state. The blank's replicated-cells log
// is keyed by its own address and starts empty.
func (s *Service) Blank(addr domain.Address) *Service {
	return New(addr, s.env, s.resolver, s.log, s.publisher, s.metrics, s.logger)
}

// Configure binds the replicator to the source cell's registry and custody.
// It may be called exactly once. params must be an InitParams value.
func (s *Service) Configure(_ context.Context, params any) error {
	init, ok := params.(InitParams)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidArgument, "chloroplast requires chloroplast.InitParams")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return dErrors.New(dErrors.CodeAlreadyInitialized, "chloroplast is already configured")
	}
	if init.Registry.IsNil() || init.Custody.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "registry and custody addresses must not be nil")
	}

	registry, err := s.resolver.Registry(init.Registry)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "cannot resolve registry")
	}
	custody, err := s.resolver.Custody(init.Custody)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "cannot resolve custody")
	}

	s.registry = registry
	s.custody = custody
	s.registryAddr = init.Registry
	s.custodyAddr = init.Custody
	s.cost = init.Cost
	s.configured = true
	s.logger.Info("chloroplast configured",
		"replicator", s.addr.String(),
		"registry", init.Registry.String(),
		"custody", init.Custody.String(),
		"cost", init.Cost)
	return nil
}

// Cost returns the configured replication cost estimate.
func (s *Service) Cost() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cost
}

// ReplicatedCells returns this replicator's append-only log of daughter
// registry addresses, oldest first.
func (s *Service) ReplicatedCells(ctx context.Context) ([]domain.Address, error) {
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}
	return s.log.List(ctx, s.addr)
}

// Replicate spawns a full copy of the cell. The two-phase withdrawal — the
// fixed cost estimate first, then half of what remains — makes successive
// replications of the same cell transfer shrinking shares; that decay is
// deliberate and must not be evened out.
func (s *Service) Replicate(ctx context.Context) (Result, error) {
	if err := s.ensureConfigured(); err != nil {
		return Result{}, err
	}

	ctx, span := s.tracer.Start(ctx, "chloroplast.replicate", trace.WithAttributes(
		attribute.String("registry", s.registryAddr.String()),
		attribute.Int64("cost", int64(s.cost)),
	))
	defer span.End()

	var result Result
	err := s.env.Atomic(ctx, func(ctx context.Context) error {
		// Nested calls run on the replicator's own authority.
		ctx = requestcontext.WithCaller(ctx, s.addr)

		// Solvency check against the full cost estimate before anything moves.
		balance, err := s.custody.Balance(ctx)
		if err != nil {
			return err
		}
		if balance < s.cost {
			return dErrors.New(dErrors.CodeInsufficientFunds,
				fmt.Sprintf("balance %d is below the replication cost %d", balance, s.cost))
		}

		// Reserve the cost. Passing the custody's membership gate here is what
		// makes registration of the replicator a replication precondition.
		if err := s.custody.Withdraw(ctx, s.addr, s.cost); err != nil {
			return err
		}

		table, err := s.registry.Enumerate(ctx)
		if err != nil {
			return err
		}

		// Clone-or-carry over the non-reserved entries, preserving order.
		seed := make(organelle.Table, 0, len(table))
		for _, entry := range table.WithoutReserved() {
			addr := entry.Address
			if entry.Replicable {
				addr, err = s.env.Instantiate(ctx, entry.Address)
				if err != nil {
					return err
				}
			}
			seed = append(seed, organelle.Organelle{Name: entry.Name, Address: addr, Replicable: entry.Replicable})
		}

		// Daughter registry: lineage points at the source registry, not at
		// this orchestrator.
		daughter, err := s.env.Instantiate(ctx, s.registryAddr)
		if err != nil {
			return err
		}
		if err := s.env.Configure(ctx, daughter, nucleus.InitParams{
			Identity: s.registry.Identity() + " copy",
			Parent:   s.registryAddr,
			Entries:  seed,
		}); err != nil {
			return err
		}

		daughterCustody, err := s.env.Instantiate(ctx, s.custodyAddr)
		if err != nil {
			return err
		}
		if err := s.env.Configure(ctx, daughterCustody, leucoplast.InitParams{
			Registry: daughter,
		}); err != nil {
			return err
		}

		// Endow the daughter with half of what remains after the reservation.
		remaining, err := s.custody.Balance(ctx)
		if err != nil {
			return err
		}
		half := remaining / 2
		if err := s.custody.Withdraw(ctx, s.addr, half); err != nil {
			return err
		}
		if err := s.env.Transfer(ctx, s.addr, daughterCustody, half); err != nil {
			return err
		}

		// The log is not covered by the environment snapshot, so the append
		// must be the last fallible step of the section. The count comes from
		// the pre-append read for the same reason.
		previous, err := s.log.List(ctx, s.addr)
		if err != nil {
			return err
		}
		if err := s.log.Append(ctx, s.addr, daughter); err != nil {
			return err
		}

		result = Result{
			Registry:    daughter,
			Custody:     daughterCustody,
			FundsUsed:   s.cost,
			Transferred: half,
			CellCount:   len(previous) + 1,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if s.metrics != nil {
			s.metrics.ObserveReplication(false)
		}
		return Result{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveReplication(true)
	}
	s.publisher.Emit(ctx, lineage.Event{
		Action:      lineage.ActionCellReplicated,
		Registry:    s.registryAddr.String(),
		NewRegistry: result.Registry.String(),
		NewCustody:  result.Custody.String(),
		FundsUsed:   result.FundsUsed,
		Transferred: result.Transferred,
		CellCount:   result.CellCount,
		RequestID:   requestcontext.RequestID(ctx),
	})
	s.logger.Info("cell replicated",
		"replicator", s.addr.String(),
		"registry", s.registryAddr.String(),
		"new_registry", result.Registry.String(),
		"funds_used", result.FundsUsed,
		"transferred", result.Transferred,
		"cell_count", result.CellCount)
	return result, nil
}

// CloneSelf deploys and configures a sibling replicator pointing at the same
// source registry, custody and cost, with its own empty log. The clone still
// needs to be registered as an organelle before its withdrawals pass the
// custody gate.
func (s *Service) CloneSelf(ctx context.Context) (domain.Address, error) {
	if err := s.ensureConfigured(); err != nil {
		return domain.NilAddress, err
	}
	clone, err := s.env.Instantiate(ctx, s.addr)
	if err != nil {
		return domain.NilAddress, err
	}
	if err := s.env.Configure(ctx, clone, InitParams{
		Registry: s.registryAddr,
		Custody:  s.custodyAddr,
		Cost:     s.cost,
	}); err != nil {
		return domain.NilAddress, err
	}
	return clone, nil
}

func (s *Service) ensureConfigured() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.configured {
		return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeInternal, "chloroplast is not configured")
	}
	return nil
}
