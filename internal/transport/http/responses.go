package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "protocell/pkg/domain-errors"
)

type cellResponse struct {
	Registry   string `json:"registry"`
	Identity   string `json:"identity"`
	Custody    string `json:"custody,omitempty"`
	Replicator string `json:"replicator,omitempty"`
	Body       string `json:"body,omitempty"`
}

type organelleResponse struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Replicable bool   `json:"replicable"`
}

type enumerateResponse struct {
	Organelles []organelleResponse `json:"organelles"`
}

type memberResponse struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

type replicationResponse struct {
	Registry    string `json:"registry"`
	Custody     string `json:"custody"`
	FundsUsed   uint64 `json:"funds_used"`
	Transferred uint64 `json:"transferred"`
	CellCount   int    `json:"cell_count"`
}

type lineageResponse struct {
	Cells []string `json:"cells"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError centralizes domain error translation to HTTP responses so every
// handler produces the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := dErrors.CodeInternal
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		status = dErrors.ToHTTPStatus(code)
	}
	writeJSON(w, status, errorResponse{Code: string(code), Message: err.Error()})
}
