package chloroplast_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"protocell/internal/chloroplast"
	"protocell/internal/chloroplast/mocks"
	chstore "protocell/internal/chloroplast/store"
	"protocell/internal/leucoplast"
	"protocell/internal/nucleus"
	"protocell/internal/organelle"
	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
	"protocell/pkg/platform/lineage"
)

type ChloroplastSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	env      *mocks.MockEnvironment
	resolver *mocks.MockResolver
	registry *mocks.MockRegistry
	custody  *mocks.MockCustody
	log      *chstore.InMemoryLog
	buffer   *lineage.Buffer

	replicator   *chloroplast.Service
	registryAddr domain.Address
	custodyAddr  domain.Address
	ctx          context.Context
}

func (s *ChloroplastSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.env = mocks.NewMockEnvironment(s.ctrl)
	s.resolver = mocks.NewMockResolver(s.ctrl)
	s.registry = mocks.NewMockRegistry(s.ctrl)
	s.custody = mocks.NewMockCustody(s.ctrl)
	s.log = chstore.NewInMemoryLog()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.buffer = lineage.NewBuffer(8, logger)
	s.replicator = chloroplast.New(domain.NewAddress(), s.env, s.resolver, s.log, s.buffer, nil, logger)

	s.registryAddr = domain.NewAddress()
	s.custodyAddr = domain.NewAddress()
	s.ctx = context.Background()
}

func TestChloroplastSuite(t *testing.T) {
	suite.Run(t, new(ChloroplastSuite))
}

func (s *ChloroplastSuite) configure(cost uint64) {
	s.resolver.EXPECT().Registry(s.registryAddr).Return(s.registry, nil)
	s.resolver.EXPECT().Custody(s.custodyAddr).Return(s.custody, nil)
	s.Require().NoError(s.replicator.Configure(s.ctx, chloroplast.InitParams{
		Registry: s.registryAddr,
		Custody:  s.custodyAddr,
		Cost:     cost,
	}))
}

// atomicPassthrough makes the mock environment run the transaction body
// directly, surfacing its error like a rolled-back section would.
func (s *ChloroplastSuite) atomicPassthrough() {
	s.env.EXPECT().Atomic(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func (s *ChloroplastSuite) TestConfigure() {
	s.Run("rejects nil component addresses", func() {
		err := s.replicator.Configure(s.ctx, chloroplast.InitParams{
			Registry: domain.NilAddress,
			Custody:  s.custodyAddr,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	s.Run("rejects params of the wrong type", func() {
		err := s.replicator.Configure(s.ctx, struct{}{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	s.Run("rejects a second configuration", func() {
		s.configure(5)
		err := s.replicator.Configure(s.ctx, chloroplast.InitParams{
			Registry: s.registryAddr,
			Custody:  s.custodyAddr,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInitialized))
	})
}

func (s *ChloroplastSuite) TestReplicateUnconfigured() {
	_, err := s.replicator.Replicate(s.ctx)
	s.Error(err)
}

func (s *ChloroplastSuite) TestReplicateInsufficientFunds() {
	s.configure(5)
	s.atomicPassthrough()
	s.custody.EXPECT().Balance(gomock.Any()).Return(uint64(4), nil)

	_, err := s.replicator.Replicate(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))

	cells, err := s.log.List(s.ctx, s.replicator.Address())
	s.Require().NoError(err)
	s.Empty(cells, "a failed replication leaves no log entry")
}

func (s *ChloroplastSuite) TestReplicateUnauthorizedWithdrawal() {
	// The replicator was never registered as an organelle, so the custody's
	// membership gate rejects the reservation withdrawal.
	s.configure(5)
	s.atomicPassthrough()
	s.custody.EXPECT().Balance(gomock.Any()).Return(uint64(20), nil)
	s.custody.EXPECT().Withdraw(gomock.Any(), s.replicator.Address(), uint64(5)).
		Return(dErrors.New(dErrors.CodeUnauthorized, "caller is not a registered organelle"))

	_, err := s.replicator.Replicate(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.False(dErrors.HasCode(err, dErrors.CodeInsufficientFunds),
		"authorization failure is distinct from insolvency")
}

func (s *ChloroplastSuite) TestReplicate() {
	s.configure(5)
	s.atomicPassthrough()
	self := s.replicator.Address()

	mito := domain.NewAddress()
	golgi := domain.NewAddress()
	s.registry.EXPECT().Enumerate(gomock.Any()).Return(organelle.Table{
		{Name: organelle.NameParent, Address: domain.NewAddress()},
		{Name: organelle.NameNucleus, Address: s.registryAddr, Replicable: true},
		{Name: "Mitochondria", Address: mito, Replicable: true},
		{Name: "Golgi", Address: golgi, Replicable: false},
	}, nil)
	s.registry.EXPECT().Identity().Return("alpha")

	// Two-phase withdrawal: the fixed cost first, then half of the remainder.
	first := s.custody.EXPECT().Balance(gomock.Any()).Return(uint64(20), nil)
	s.custody.EXPECT().Withdraw(gomock.Any(), self, uint64(5)).Return(nil)
	s.custody.EXPECT().Balance(gomock.Any()).Return(uint64(15), nil).After(first)
	s.custody.EXPECT().Withdraw(gomock.Any(), self, uint64(7)).Return(nil)

	mitoClone := domain.NewAddress()
	daughterReg := domain.NewAddress()
	daughterCust := domain.NewAddress()
	s.env.EXPECT().Instantiate(gomock.Any(), mito).Return(mitoClone, nil)
	s.env.EXPECT().Instantiate(gomock.Any(), s.registryAddr).Return(daughterReg, nil)
	s.env.EXPECT().Configure(gomock.Any(), daughterReg, nucleus.InitParams{
		Identity: "alpha copy",
		Parent:   s.registryAddr,
		Entries: organelle.Table{
			{Name: "Mitochondria", Address: mitoClone, Replicable: true},
			{Name: "Golgi", Address: golgi, Replicable: false},
		},
	}).Return(nil)
	s.env.EXPECT().Instantiate(gomock.Any(), s.custodyAddr).Return(daughterCust, nil)
	s.env.EXPECT().Configure(gomock.Any(), daughterCust, leucoplast.InitParams{
		Registry: daughterReg,
	}).Return(nil)
	s.env.EXPECT().Transfer(gomock.Any(), self, daughterCust, uint64(7)).Return(nil)

	result, err := s.replicator.Replicate(s.ctx)
	s.Require().NoError(err)

	s.Equal(daughterReg, result.Registry)
	s.Equal(daughterCust, result.Custody)
	s.Equal(uint64(5), result.FundsUsed)
	s.Equal(uint64(7), result.Transferred)
	s.Equal(1, result.CellCount)

	s.Run("the daughter lands in the append-only log", func() {
		cells, err := s.replicator.ReplicatedCells(s.ctx)
		s.Require().NoError(err)
		s.Equal([]domain.Address{daughterReg}, cells)
	})

	s.Run("a lineage event is emitted", func() {
		select {
		case event := <-s.buffer.Events():
			s.Equal(lineage.ActionCellReplicated, event.Action)
			s.Equal(daughterReg.String(), event.NewRegistry)
			s.Equal(uint64(7), event.Transferred)
		default:
			s.Fail("no lineage event in the buffer")
		}
	})
}

func (s *ChloroplastSuite) TestReplicateLateFailureLeavesNoLogEntry() {
	s.configure(5)
	s.atomicPassthrough()
	self := s.replicator.Address()

	s.registry.EXPECT().Enumerate(gomock.Any()).Return(organelle.Table{
		{Name: organelle.NameParent, Address: domain.NewAddress()},
		{Name: organelle.NameNucleus, Address: s.registryAddr, Replicable: true},
	}, nil)
	s.registry.EXPECT().Identity().Return("alpha")

	first := s.custody.EXPECT().Balance(gomock.Any()).Return(uint64(20), nil)
	s.custody.EXPECT().Withdraw(gomock.Any(), self, uint64(5)).Return(nil)
	s.custody.EXPECT().Balance(gomock.Any()).Return(uint64(15), nil).After(first)
	s.custody.EXPECT().Withdraw(gomock.Any(), self, uint64(7)).Return(nil)

	daughterReg := domain.NewAddress()
	daughterCust := domain.NewAddress()
	s.env.EXPECT().Instantiate(gomock.Any(), s.registryAddr).Return(daughterReg, nil)
	s.env.EXPECT().Configure(gomock.Any(), daughterReg, gomock.Any()).Return(nil)
	s.env.EXPECT().Instantiate(gomock.Any(), s.custodyAddr).Return(daughterCust, nil)
	s.env.EXPECT().Configure(gomock.Any(), daughterCust, gomock.Any()).Return(nil)

	boom := errors.New("transfer refused")
	s.env.EXPECT().Transfer(gomock.Any(), self, daughterCust, uint64(7)).Return(boom)

	_, err := s.replicator.Replicate(s.ctx)
	s.Require().ErrorIs(err, boom)

	cells, err := s.replicator.ReplicatedCells(s.ctx)
	s.Require().NoError(err)
	s.Empty(cells)

	select {
	case <-s.buffer.Events():
		s.Fail("failed replications must not emit lineage events")
	default:
	}
}

// listFailLog delegates appends to a real log but refuses every read,
// modeling a store whose reads fail while its writes went through.
type listFailLog struct {
	inner  *chstore.InMemoryLog
	refuse error
}

func (l *listFailLog) Append(ctx context.Context, owner, cell domain.Address) error {
	return l.inner.Append(ctx, owner, cell)
}

func (l *listFailLog) List(context.Context, domain.Address) ([]domain.Address, error) {
	return nil, l.refuse
}

func (s *ChloroplastSuite) TestReplicateLogReadFailureLeavesNoLogEntry() {
	boom := errors.New("log read refused")
	flaky := &listFailLog{inner: chstore.NewInMemoryLog(), refuse: boom}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	replicator := chloroplast.New(domain.NewAddress(), s.env, s.resolver, flaky, s.buffer, nil, logger)

	s.resolver.EXPECT().Registry(s.registryAddr).Return(s.registry, nil)
	s.resolver.EXPECT().Custody(s.custodyAddr).Return(s.custody, nil)
	s.Require().NoError(replicator.Configure(s.ctx, chloroplast.InitParams{
		Registry: s.registryAddr,
		Custody:  s.custodyAddr,
		Cost:     5,
	}))
	s.atomicPassthrough()
	self := replicator.Address()

	s.registry.EXPECT().Enumerate(gomock.Any()).Return(organelle.Table{
		{Name: organelle.NameParent, Address: domain.NewAddress()},
		{Name: organelle.NameNucleus, Address: s.registryAddr, Replicable: true},
	}, nil)
	s.registry.EXPECT().Identity().Return("alpha")

	first := s.custody.EXPECT().Balance(gomock.Any()).Return(uint64(20), nil)
	s.custody.EXPECT().Withdraw(gomock.Any(), self, uint64(5)).Return(nil)
	s.custody.EXPECT().Balance(gomock.Any()).Return(uint64(15), nil).After(first)
	s.custody.EXPECT().Withdraw(gomock.Any(), self, uint64(7)).Return(nil)

	daughterCust := domain.NewAddress()
	s.env.EXPECT().Instantiate(gomock.Any(), s.registryAddr).Return(domain.NewAddress(), nil)
	s.env.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.env.EXPECT().Instantiate(gomock.Any(), s.custodyAddr).Return(daughterCust, nil)
	s.env.EXPECT().Transfer(gomock.Any(), self, daughterCust, uint64(7)).Return(nil)

	_, err := replicator.Replicate(s.ctx)
	s.Require().ErrorIs(err, boom)

	cells, err := flaky.inner.List(s.ctx, self)
	s.Require().NoError(err)
	s.Empty(cells, "the log must not retain a daughter from a failed replication")
}

func (s *ChloroplastSuite) TestCloneSelf() {
	s.configure(5)
	clone := domain.NewAddress()

	s.env.EXPECT().Instantiate(gomock.Any(), s.replicator.Address()).Return(clone, nil)
	s.env.EXPECT().Configure(gomock.Any(), clone, chloroplast.InitParams{
		Registry: s.registryAddr,
		Custody:  s.custodyAddr,
		Cost:     5,
	}).Return(nil)

	got, err := s.replicator.CloneSelf(s.ctx)
	s.Require().NoError(err)
	s.Equal(clone, got)
}
