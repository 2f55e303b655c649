package culture

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	chstore "protocell/internal/chloroplast/store"
	"protocell/internal/environment"
	"protocell/internal/nucleus"
	nstore "protocell/internal/nucleus/store"
	"protocell/internal/organelle"
	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
	"protocell/pkg/platform/lineage"
	"protocell/pkg/requestcontext"
)

type CultureSuite struct {
	suite.Suite
	culture *Culture
	buffer  *lineage.Buffer
	owner   domain.Address
	ctx     context.Context
}

func (s *CultureSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.buffer = lineage.NewBuffer(16, logger)
	s.culture = New(environment.New(), nstore.NewInMemory(), chstore.NewInMemoryLog(),
		s.buffer, nil, logger, nucleus.ModeUpdate, 5)
	s.owner = domain.NewAddress()
	s.ctx = requestcontext.WithCaller(context.Background(), s.owner)
}

func TestCultureSuite(t *testing.T) {
	suite.Run(t, new(CultureSuite))
}

func (s *CultureSuite) TestGrow() {
	cell, err := s.culture.Grow(s.ctx, "alpha", 20)
	s.Require().NoError(err)

	s.Run("registry holds the full component table", func() {
		table, err := cell.Registry.Enumerate(s.ctx)
		s.Require().NoError(err)
		s.Equal([]string{
			organelle.NameParent, organelle.NameNucleus,
			NameCell, NameLeucoplast, NameChloroplast,
		}, table.Names())
	})

	s.Run("the caller is the parent", func() {
		parent, err := cell.Registry.Parent(s.ctx)
		s.Require().NoError(err)
		s.Equal(s.owner, parent)
	})

	s.Run("the endowment is funded", func() {
		balance, err := cell.Custody.Balance(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(20), balance)
	})

	s.Run("the body carries the identity", func() {
		s.Equal("alpha", cell.Body.Name())
		s.Equal("alpha", cell.Registry.Identity())
	})

	s.Run("the cell is tracked", func() {
		got, err := s.culture.Cell(cell.Registry.Address())
		s.Require().NoError(err)
		s.Same(cell, got)
		s.Len(s.culture.Cells(), 1)
	})

	s.Run("a growth event is emitted", func() {
		select {
		case event := <-s.buffer.Events():
			s.Equal(lineage.ActionCellGrown, event.Action)
			s.Equal(cell.Registry.Address().String(), event.Registry)
		default:
			s.Fail("no lineage event in the buffer")
		}
	})
}

func (s *CultureSuite) TestGrowValidation() {
	s.Run("anonymous caller is rejected", func() {
		_, err := s.culture.Grow(context.Background(), "alpha", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("empty identity is rejected", func() {
		_, err := s.culture.Grow(s.ctx, "", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})
}

func (s *CultureSuite) TestReplicate() {
	mother, err := s.culture.Grow(s.ctx, "alpha", 20)
	s.Require().NoError(err)
	motherRegistry := mother.Registry.Address()
	drainBufferedEvents(s.buffer)

	result, err := s.culture.Replicate(s.ctx, motherRegistry)
	s.Require().NoError(err)

	s.Run("funding follows reserve-then-halve", func() {
		// 20 on hand: 5 reserved, half of the remaining 15 moves over.
		s.Equal(uint64(5), result.FundsUsed)
		s.Equal(uint64(7), result.Transferred)

		motherBalance, err := mother.Custody.Balance(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(8), motherBalance)
	})

	s.Run("the daughter is adopted and funded", func() {
		daughter, err := s.culture.Cell(result.Registry)
		s.Require().NoError(err)
		s.Require().NotNil(daughter.Custody)

		balance, err := daughter.Custody.Balance(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(7), balance)
	})

	s.Run("the daughter registry descends from the mother", func() {
		daughter, err := s.culture.Cell(result.Registry)
		s.Require().NoError(err)

		s.Equal("alpha copy", daughter.Registry.Identity())
		parent, err := daughter.Registry.Parent(s.ctx)
		s.Require().NoError(err)
		s.Equal(motherRegistry, parent)
	})

	s.Run("replicable entries are cloned, the rest carried", func() {
		daughter, err := s.culture.Cell(result.Registry)
		s.Require().NoError(err)
		table, err := daughter.Registry.Enumerate(s.ctx)
		s.Require().NoError(err)
		s.Equal([]string{
			organelle.NameParent, organelle.NameNucleus,
			NameCell, NameLeucoplast, NameChloroplast,
		}, table.Names())

		motherTable, err := mother.Registry.Enumerate(s.ctx)
		s.Require().NoError(err)
		byName := make(map[string]organelle.Organelle)
		for _, entry := range motherTable {
			byName[entry.Name] = entry
		}
		for _, entry := range table.WithoutReserved() {
			original := byName[entry.Name]
			if original.Replicable {
				s.NotEqual(original.Address, entry.Address, "%s must be a fresh clone", entry.Name)
			} else {
				s.Equal(original.Address, entry.Address, "%s must carry its address", entry.Name)
			}
		}
	})

	s.Run("lineage records the daughter", func() {
		cells, err := s.culture.Lineage(s.ctx, motherRegistry)
		s.Require().NoError(err)
		s.Equal([]domain.Address{result.Registry}, cells)
	})

	s.Run("a replication event is emitted", func() {
		select {
		case event := <-s.buffer.Events():
			s.Equal(lineage.ActionCellReplicated, event.Action)
			s.Equal(result.Registry.String(), event.NewRegistry)
		default:
			s.Fail("no lineage event in the buffer")
		}
	})
}

func (s *CultureSuite) TestDaughterReplicates() {
	mother, err := s.culture.Grow(s.ctx, "alpha", 100)
	s.Require().NoError(err)

	// Mother: reserve 5 of 100, halve the remaining 95, endow 47.
	first, err := s.culture.Replicate(s.ctx, mother.Registry.Address())
	s.Require().NoError(err)
	s.Equal(uint64(47), first.Transferred)

	// The adopted daughter holds 47: reserve 5, halve the remaining 42.
	second, err := s.culture.Replicate(s.ctx, first.Registry)
	s.Require().NoError(err)
	s.Equal(uint64(5), second.FundsUsed)
	s.Equal(uint64(21), second.Transferred)

	daughter, err := s.culture.Cell(first.Registry)
	s.Require().NoError(err)
	balance, err := daughter.Custody.Balance(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(21), balance)
}

func (s *CultureSuite) TestReplicateCostAboveCeilingRollsBack() {
	// Solvent against the cost, but the reservation withdrawal itself is
	// bounded by the half-balance ceiling: 5 > 7/2.
	mother, err := s.culture.Grow(s.ctx, "alpha", 7)
	s.Require().NoError(err)

	_, err = s.culture.Replicate(s.ctx, mother.Registry.Address())
	s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded), "got %v", err)

	balance, err := mother.Custody.Balance(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(7), balance)
	s.Len(s.culture.Cells(), 1)
}

func (s *CultureSuite) TestReplicateInsufficientFundsRollsBack() {
	mother, err := s.culture.Grow(s.ctx, "alpha", 4)
	s.Require().NoError(err)

	_, err = s.culture.Replicate(s.ctx, mother.Registry.Address())
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))

	balance, err := mother.Custody.Balance(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(4), balance, "a failed replication moves nothing")

	cells, err := s.culture.Lineage(s.ctx, mother.Registry.Address())
	s.Require().NoError(err)
	s.Empty(cells)
	s.Len(s.culture.Cells(), 1)
}

func (s *CultureSuite) TestReplicateUnknownCell() {
	_, err := s.culture.Replicate(s.ctx, domain.NewAddress())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func drainBufferedEvents(buffer *lineage.Buffer) {
	for {
		select {
		case <-buffer.Events():
		default:
			return
		}
	}
}
