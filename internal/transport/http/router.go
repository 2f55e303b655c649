package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all public endpoints. Every cell operation requires a
// verified caller: authorization decisions below depend on the caller address
// the middleware resolves.
func NewRouter(h *Handler, validator CallerValidator, exchanger SecretExchanger, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(LogRequests(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/tokens", handleTokenExchange(exchanger))

	r.Group(func(r chi.Router) {
		r.Use(RequireCaller(validator, logger))

		r.Post("/cells", h.handleGrow)
		r.Get("/cells", h.handleListCells)
		r.Route("/cells/{registry}", func(r chi.Router) {
			r.Get("/organelles", h.handleEnumerate)
			r.Post("/organelles", h.handleRegister)
			r.Get("/organelles/{name}", h.handleLookup)
			r.Get("/members/{address}", h.handleReverseLookup)
			r.Get("/balance", h.handleBalance)
			r.Post("/deposit", h.handleDeposit)
			r.Post("/withdraw", h.handleWithdraw)
			r.Post("/replicate", h.handleReplicate)
			r.Get("/lineage", h.handleLineage)
		})
	})

	return r
}
