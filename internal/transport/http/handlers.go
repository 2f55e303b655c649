// Package httptransport is the thin HTTP layer over the culture. Handlers
// decode, delegate to domain services and encode; business rules stay below.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"protocell/internal/culture"
	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
)

type Handler struct {
	culture *culture.Culture
	logger  *slog.Logger
}

func NewHandler(c *culture.Culture, logger *slog.Logger) *Handler {
	return &Handler{culture: c, logger: logger}
}

func (h *Handler) handleGrow(w http.ResponseWriter, r *http.Request) {
	var req growRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	cell, err := h.culture.Grow(r.Context(), req.Identity, req.Endowment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCellResponse(cell))
}

func (h *Handler) handleListCells(w http.ResponseWriter, r *http.Request) {
	cells := h.culture.Cells()
	payload := make([]cellResponse, 0, len(cells))
	for _, cell := range cells {
		payload = append(payload, toCellResponse(cell))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleEnumerate(w http.ResponseWriter, r *http.Request) {
	cell, ok := h.cell(w, r)
	if !ok {
		return
	}
	table, err := cell.Registry.Enumerate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := enumerateResponse{Organelles: make([]organelleResponse, 0, len(table))}
	for _, entry := range table {
		resp.Organelles = append(resp.Organelles, organelleResponse{
			Name:       entry.Name,
			Address:    entry.Address.String(),
			Replicable: entry.Replicable,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	cell, ok := h.cell(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := cell.Registry.Register(r.Context(), req.Name, addr, req.Replicable); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, organelleResponse{Name: req.Name, Address: addr.String(), Replicable: req.Replicable})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	cell, ok := h.cell(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	addr, err := cell.Registry.AddressByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	replicable, err := cell.Registry.IsReplicable(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, organelleResponse{Name: name, Address: addr.String(), Replicable: replicable})
}

func (h *Handler) handleReverseLookup(w http.ResponseWriter, r *http.Request) {
	cell, ok := h.cell(w, r)
	if !ok {
		return
	}
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	name, err := cell.Registry.NameByAddress(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memberResponse{Name: name, Address: addr.String()})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	cell, ok := h.cell(w, r)
	if !ok {
		return
	}
	balance, err := cell.Custody.Balance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	cell, ok := h.cell(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	if err := cell.Custody.Deposit(r.Context(), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	balance, err := cell.Custody.Balance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	cell, ok := h.cell(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	recipient, err := domain.ParseAddress(req.Recipient)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := cell.Custody.Withdraw(r.Context(), recipient, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	balance, err := cell.Custody.Balance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func (h *Handler) handleReplicate(w http.ResponseWriter, r *http.Request) {
	registry, ok := h.registryParam(w, r)
	if !ok {
		return
	}
	result, err := h.culture.Replicate(r.Context(), registry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, replicationResponse{
		Registry:    result.Registry.String(),
		Custody:     result.Custody.String(),
		FundsUsed:   result.FundsUsed,
		Transferred: result.Transferred,
		CellCount:   result.CellCount,
	})
}

func (h *Handler) handleLineage(w http.ResponseWriter, r *http.Request) {
	registry, ok := h.registryParam(w, r)
	if !ok {
		return
	}
	cells, err := h.culture.Lineage(r.Context(), registry)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := lineageResponse{Cells: make([]string, 0, len(cells))}
	for _, cell := range cells {
		resp.Cells = append(resp.Cells, cell.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTokenExchange is the only unauthenticated mutation: it bootstraps a
// caller's first bearer token from a pre-registered secret.
func handleTokenExchange(exchanger SecretExchanger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, dErrors.New(dErrors.CodeInvalidArgument, "malformed request body"))
			return
		}
		caller, err := domain.ParseAddress(req.Address)
		if err != nil {
			writeError(w, err)
			return
		}
		raw, err := exchanger.Exchange(caller, req.Secret)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{Token: raw})
	}
}

func (h *Handler) registryParam(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	registry, err := domain.ParseAddress(chi.URLParam(r, "registry"))
	if err != nil {
		writeError(w, err)
		return domain.NilAddress, false
	}
	return registry, true
}

func (h *Handler) cell(w http.ResponseWriter, r *http.Request) (*culture.Cell, bool) {
	registry, ok := h.registryParam(w, r)
	if !ok {
		return nil, false
	}
	cell, err := h.culture.Cell(registry)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return cell, true
}

func toCellResponse(cell *culture.Cell) cellResponse {
	resp := cellResponse{
		Registry: cell.Registry.Address().String(),
		Identity: cell.Registry.Identity(),
	}
	if cell.Custody != nil {
		resp.Custody = cell.Custody.Address().String()
	}
	if cell.Replicator != nil {
		resp.Replicator = cell.Replicator.Address().String()
	}
	if cell.Body != nil {
		resp.Body = cell.Body.Address().String()
	}
	return resp
}
