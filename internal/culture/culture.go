// Package culture assembles whole cells on top of the execution environment:
// it grows new cells from scratch, runs replications, and adopts the spawned
// daughters so they are themselves replicable. It also glues the typed
// component ports to the environment's deployment table.
package culture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"protocell/internal/cellbody"
	"protocell/internal/chloroplast"
	chstore "protocell/internal/chloroplast/store"
	"protocell/internal/environment"
	"protocell/internal/leucoplast"
	"protocell/internal/nucleus"
	nstore "protocell/internal/nucleus/store"
	"protocell/internal/organelle"
	"protocell/internal/platform/metrics"
	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
	"protocell/pkg/platform/lineage"
	"protocell/pkg/requestcontext"
)

// Well-known organelle names for grown cells. They are conventions of this
// assembly, not reserved registry names.
const (
	NameCell        = "Cell"
	NameLeucoplast  = "Leucoplast"
	NameChloroplast = "Chloroplast"
)

// Cell is the assembled view of one living cell.
type Cell struct {
	Registry   *nucleus.Service
	Custody    *leucoplast.Service
	Replicator *chloroplast.Service
	Body       *cellbody.Holder
}

// Culture grows and tracks cells in one environment.
type Culture struct {
	env        *environment.Environment
	organelles nstore.Store
	log        chstore.Log
	publisher  lineage.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	mode       nucleus.Mode
	cost       uint64

	mu    sync.RWMutex
	cells map[domain.Address]*Cell
	order []domain.Address
}

func New(env *environment.Environment, organelles nstore.Store, log chstore.Log,
	publisher lineage.Publisher, m *metrics.Metrics, logger *slog.Logger,
	mode nucleus.Mode, cost uint64) *Culture {
	return &Culture{
		env:        env,
		organelles: organelles,
		log:        log,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
		mode:       mode,
		cost:       cost,
		cells:      make(map[domain.Address]*Cell),
	}
}

// Grow deploys and configures a complete cell. The caller becomes the new
// registry's Parent, and the endowment is minted into the cell's custody.
func (c *Culture) Grow(ctx context.Context, identity string, endowment uint64) (*Cell, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required to grow a cell")
	}
	if identity == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "cell identity must not be empty")
	}

	registry := nucleus.New(domain.NewAddress(), c.organelles, c.mode, c.logger)
	body := cellbody.New(domain.NewAddress())
	custody := leucoplast.New(domain.NewAddress(), c.env.Ledger(), c.membership, c.metrics, c.logger)
	replicator := chloroplast.New(domain.NewAddress(), c.env, c, c.log, c.publisher, c.metrics, c.logger)

	deployments := []struct {
		component environment.Component
		blank     environment.BlankFunc
	}{
		{registry, func(addr domain.Address) environment.Component { return registry.Blank(addr) }},
		{body, func(addr domain.Address) environment.Component { return body.Blank(addr) }},
		{custody, func(addr domain.Address) environment.Component { return custody.Blank(addr) }},
		{replicator, func(addr domain.Address) environment.Component { return replicator.Blank(addr) }},
	}
	for _, d := range deployments {
		if err := c.env.Deploy(d.component, d.blank); err != nil {
			return nil, err
		}
	}

	if err := body.Configure(ctx, cellbody.InitParams{Name: identity}); err != nil {
		return nil, err
	}
	if err := registry.Configure(ctx, nucleus.InitParams{
		Identity: identity,
		Parent:   caller,
		Entries: organelle.Table{
			{Name: NameCell, Address: body.Address(), Replicable: true},
			{Name: NameLeucoplast, Address: custody.Address(), Replicable: false},
			{Name: NameChloroplast, Address: replicator.Address(), Replicable: true},
		},
	}); err != nil {
		return nil, err
	}
	if err := custody.Configure(ctx, leucoplast.InitParams{Registry: registry.Address()}); err != nil {
		return nil, err
	}
	if err := replicator.Configure(ctx, chloroplast.InitParams{
		Registry: registry.Address(),
		Custody:  custody.Address(),
		Cost:     c.cost,
	}); err != nil {
		return nil, err
	}
	if endowment > 0 {
		if err := custody.Deposit(ctx, endowment); err != nil {
			return nil, err
		}
	}

	cell := &Cell{Registry: registry, Custody: custody, Replicator: replicator, Body: body}
	c.track(registry.Address(), cell)

	if c.metrics != nil {
		c.metrics.CellsGrown.Inc()
	}
	c.publisher.Emit(ctx, lineage.Event{
		Action:    lineage.ActionCellGrown,
		Registry:  registry.Address().String(),
		CellCount: 1,
		RequestID: requestcontext.RequestID(ctx),
	})
	c.logger.Info("cell grown",
		"registry", registry.Address().String(),
		"identity", identity,
		"parent", caller.String(),
		"endowment", endowment)
	return cell, nil
}

// Replicate runs the cell's replicator and adopts the daughter so it shows
// up in the culture and is itself replicable.
func (c *Culture) Replicate(ctx context.Context, registry domain.Address) (chloroplast.Result, error) {
	cell, err := c.Cell(registry)
	if err != nil {
		return chloroplast.Result{}, err
	}
	if cell.Replicator == nil {
		return chloroplast.Result{}, dErrors.New(dErrors.CodeInvalidArgument, "cell has no replicator")
	}
	result, err := cell.Replicator.Replicate(ctx)
	if err != nil {
		return chloroplast.Result{}, err
	}
	if err := c.adopt(ctx, result); err != nil {
		// The replication itself committed; adoption is a culture-level
		// convenience, so surface the problem without undoing the cell.
		c.logger.Error("failed to adopt daughter cell",
			"registry", result.Registry.String(), "error", err)
	}
	return result, nil
}

// Cell returns the assembled view of the cell whose registry is at addr.
func (c *Culture) Cell(addr domain.Address) (*Cell, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cell, ok := c.cells[addr]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no cell with registry %s", addr))
	}
	return cell, nil
}

// Cells returns every tracked cell, oldest first.
func (c *Culture) Cells() []*Cell {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cells := make([]*Cell, 0, len(c.order))
	for _, addr := range c.order {
		cells = append(cells, c.cells[addr])
	}
	return cells
}

// Lineage returns the daughter registries spawned by the cell's replicator.
func (c *Culture) Lineage(ctx context.Context, registry domain.Address) ([]domain.Address, error) {
	cell, err := c.Cell(registry)
	if err != nil {
		return nil, err
	}
	if cell.Replicator == nil {
		return []domain.Address{}, nil
	}
	return cell.Replicator.ReplicatedCells(ctx)
}

// Registry implements chloroplast.Resolver.
func (c *Culture) Registry(addr domain.Address) (chloroplast.Registry, error) {
	component, ok := c.env.Resolve(addr)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no component deployed at %s", addr))
	}
	registry, ok := component.(*nucleus.Service)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, fmt.Sprintf("component at %s is not a registry", addr))
	}
	return registry, nil
}

// Custody implements chloroplast.Resolver.
func (c *Culture) Custody(addr domain.Address) (chloroplast.Custody, error) {
	component, ok := c.env.Resolve(addr)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no component deployed at %s", addr))
	}
	custody, ok := component.(*leucoplast.Service)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, fmt.Sprintf("component at %s is not a custody", addr))
	}
	return custody, nil
}

// membership implements leucoplast.MembershipResolver over the environment.
func (c *Culture) membership(registry domain.Address) (leucoplast.Membership, error) {
	reg, err := c.Registry(registry)
	if err != nil {
		return nil, err
	}
	members, ok := reg.(leucoplast.Membership)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, fmt.Sprintf("registry at %s cannot answer membership", registry))
	}
	return members, nil
}

// adopt wires a freshly spawned daughter into the culture: the cloned
// replicator and body come out of replication blank, so the culture finishes
// their one-time configuration against the daughter's own components.
func (c *Culture) adopt(ctx context.Context, result chloroplast.Result) error {
	regComponent, ok := c.env.Resolve(result.Registry)
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "daughter registry is not deployed")
	}
	registry, ok := regComponent.(*nucleus.Service)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidArgument, "daughter registry has the wrong type")
	}
	custComponent, ok := c.env.Resolve(result.Custody)
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "daughter custody is not deployed")
	}
	custody, ok := custComponent.(*leucoplast.Service)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidArgument, "daughter custody has the wrong type")
	}

	cell := &Cell{Registry: registry, Custody: custody}

	if addr, err := registry.AddressByName(ctx, NameChloroplast); err == nil {
		if component, ok := c.env.Resolve(addr); ok {
			if replicator, ok := component.(*chloroplast.Service); ok {
				if err := replicator.Configure(ctx, chloroplast.InitParams{
					Registry: result.Registry,
					Custody:  result.Custody,
					Cost:     c.cost,
				}); err != nil {
					return err
				}
				cell.Replicator = replicator
			}
		}
	}
	if addr, err := registry.AddressByName(ctx, NameCell); err == nil {
		if component, ok := c.env.Resolve(addr); ok {
			if body, ok := component.(*cellbody.Holder); ok {
				if err := body.Configure(ctx, cellbody.InitParams{Name: registry.Identity()}); err != nil {
					return err
				}
				cell.Body = body
			}
		}
	}

	c.track(result.Registry, cell)
	return nil
}

func (c *Culture) track(registry domain.Address, cell *Cell) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells[registry] = cell
	c.order = append(c.order, registry)
}
