package httptransport

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	chstore "protocell/internal/chloroplast/store"
	"protocell/internal/culture"
	"protocell/internal/environment"
	"protocell/internal/nucleus"
	nstore "protocell/internal/nucleus/store"
	"protocell/internal/platform/token"
	"protocell/pkg/domain"
	"protocell/pkg/platform/lineage"
	"protocell/pkg/testutil"
)

type HandlersSuite struct {
	suite.Suite
	router http.Handler
	tokens *token.Service
	creds  *token.Credentials
	owner  domain.Address
	bearer string
}

func (s *HandlersSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	buffer := lineage.NewBuffer(16, logger)
	cells := culture.New(environment.New(), nstore.NewInMemory(), chstore.NewInMemoryLog(),
		buffer, nil, logger, nucleus.ModeUpdate, 5)

	s.tokens = token.NewService("test-signing-key", "protocell")
	s.creds = token.NewCredentials(s.tokens, time.Hour)
	s.owner = domain.NewAddress()
	bearer, err := s.tokens.GenerateCallerToken(s.owner, time.Hour)
	s.Require().NoError(err)
	s.bearer = bearer

	handler := NewHandler(cells, logger)
	s.router = NewRouter(handler, s.tokens, s.creds, logger)
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) do(method, path string, body any) *http.Request {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	req.Header.Set("Authorization", "Bearer "+s.bearer)
	return req
}

func (s *HandlersSuite) grow(identity string, endowment uint64) cellResponse {
	rr := testutil.DoRequest(s.router, s.do(http.MethodPost, "/cells",
		growRequest{Identity: identity, Endowment: endowment}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[cellResponse](s.T(), rr)
}

func (s *HandlersSuite) TestHealthz() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *HandlersSuite) TestAuthRequired() {
	s.Run("missing token", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/cells", growRequest{Identity: "alpha"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("garbage token", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/cells", growRequest{Identity: "alpha"})
		req.Header.Set("Authorization", "Bearer nonsense")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	})
}

func (s *HandlersSuite) TestTokenExchange() {
	caller := domain.NewAddress()
	s.Require().NoError(s.creds.Register(caller, "opensesame"))

	s.Run("valid secret yields a usable bearer token", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/tokens",
			tokenRequest{Address: caller.String(), Secret: "opensesame"}))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[tokenResponse](s.T(), rr)
		s.Require().NotEmpty(resp.Token)

		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/cells", nil)
		req.Header.Set("Authorization", "Bearer "+resp.Token)
		testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, req))
	})

	s.Run("wrong secret is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/tokens",
			tokenRequest{Address: caller.String(), Secret: "sesame"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("unknown caller is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/tokens",
			tokenRequest{Address: domain.NewAddress().String(), Secret: "opensesame"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})
}

func (s *HandlersSuite) TestGrowAndList() {
	cell := s.grow("alpha", 20)
	s.Equal("alpha", cell.Identity)
	s.NotEmpty(cell.Registry)
	s.NotEmpty(cell.Custody)
	s.NotEmpty(cell.Replicator)

	rr := testutil.DoRequest(s.router, s.do(http.MethodGet, "/cells", nil))
	testutil.AssertStatusOK(s.T(), rr)
	cells := *testutil.UnmarshalResponse[[]cellResponse](s.T(), rr)
	s.Require().Len(cells, 1)
	s.Equal(cell.Registry, cells[0].Registry)
}

func (s *HandlersSuite) TestGrowValidation() {
	rr := testutil.DoRequest(s.router, s.do(http.MethodPost, "/cells", growRequest{Identity: ""}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_argument")
}

func (s *HandlersSuite) TestOrganelles() {
	cell := s.grow("alpha", 0)
	base := "/cells/" + cell.Registry

	s.Run("enumerate lists the seeded table", func() {
		rr := testutil.DoRequest(s.router, s.do(http.MethodGet, base+"/organelles", nil))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[enumerateResponse](s.T(), rr)
		s.Len(resp.Organelles, 5)
		s.Equal("Parent", resp.Organelles[0].Name)
	})

	s.Run("parent registers a new organelle", func() {
		addr := domain.NewAddress()
		rr := testutil.DoRequest(s.router, s.do(http.MethodPost, base+"/organelles",
			registerRequest{Name: "Mitochondria", Address: addr.String(), Replicable: true}))
		testutil.AssertStatusOK(s.T(), rr)

		rr = testutil.DoRequest(s.router, s.do(http.MethodGet, base+"/organelles/Mitochondria", nil))
		testutil.AssertStatusOK(s.T(), rr)
		got := testutil.UnmarshalResponse[organelleResponse](s.T(), rr)
		s.Equal(addr.String(), got.Address)
		s.True(got.Replicable)

		rr = testutil.DoRequest(s.router, s.do(http.MethodGet, base+"/members/"+addr.String(), nil))
		testutil.AssertStatusOK(s.T(), rr)
		member := testutil.UnmarshalResponse[memberResponse](s.T(), rr)
		s.Equal("Mitochondria", member.Name)
	})

	s.Run("non-parent registration is forbidden", func() {
		stranger, err := s.tokens.GenerateCallerToken(domain.NewAddress(), time.Hour)
		s.Require().NoError(err)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, base+"/organelles",
			registerRequest{Name: "Golgi", Address: domain.NewAddress().String()})
		req.Header.Set("Authorization", "Bearer "+stranger)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("unknown name is 404", func() {
		rr := testutil.DoRequest(s.router, s.do(http.MethodGet, base+"/organelles/Vacuole", nil))
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	})

	s.Run("bad registry address is 400", func() {
		rr := testutil.DoRequest(s.router, s.do(http.MethodGet, "/cells/not-a-uuid/organelles", nil))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("unknown registry is 404", func() {
		rr := testutil.DoRequest(s.router, s.do(http.MethodGet,
			fmt.Sprintf("/cells/%s/organelles", domain.NewAddress()), nil))
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	})
}

func (s *HandlersSuite) TestFunds() {
	cell := s.grow("alpha", 0)
	base := "/cells/" + cell.Registry

	rr := testutil.DoRequest(s.router, s.do(http.MethodPost, base+"/deposit", depositRequest{Amount: 10}))
	testutil.AssertStatusOK(s.T(), rr)
	balance := testutil.UnmarshalResponse[balanceResponse](s.T(), rr)
	s.Equal(uint64(10), balance.Balance)

	s.Run("withdrawal over the ceiling is 422", func() {
		// The owner is the Parent entry, so it passes the membership gate.
		rr := testutil.DoRequest(s.router, s.do(http.MethodPost, base+"/withdraw",
			withdrawRequest{Recipient: domain.NewAddress().String(), Amount: 6}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "limit_exceeded")
	})

	s.Run("withdrawal at the ceiling succeeds", func() {
		rr := testutil.DoRequest(s.router, s.do(http.MethodPost, base+"/withdraw",
			withdrawRequest{Recipient: domain.NewAddress().String(), Amount: 5}))
		testutil.AssertStatusOK(s.T(), rr)
		balance := testutil.UnmarshalResponse[balanceResponse](s.T(), rr)
		s.Equal(uint64(5), balance.Balance)
	})
}

func (s *HandlersSuite) TestReplicate() {
	cell := s.grow("alpha", 20)
	base := "/cells/" + cell.Registry

	rr := testutil.DoRequest(s.router, s.do(http.MethodPost, base+"/replicate", nil))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	result := testutil.UnmarshalResponse[replicationResponse](s.T(), rr)
	s.Equal(uint64(5), result.FundsUsed)
	s.Equal(uint64(7), result.Transferred)
	s.Equal(1, result.CellCount)

	s.Run("lineage lists the daughter", func() {
		rr := testutil.DoRequest(s.router, s.do(http.MethodGet, base+"/lineage", nil))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[lineageResponse](s.T(), rr)
		s.Equal([]string{result.Registry}, resp.Cells)
	})

	s.Run("insufficient funds is 422", func() {
		lean := s.grow("beta", 2)
		rr := testutil.DoRequest(s.router, s.do(http.MethodPost, "/cells/"+lean.Registry+"/replicate", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "insufficient_funds")
	})
}
