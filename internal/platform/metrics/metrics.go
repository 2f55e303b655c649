package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CellsGrown          prometheus.Counter
	Replications        prometheus.Counter
	ReplicationFailures prometheus.Counter
	Withdrawals         prometheus.Counter
	FundsWithdrawn      prometheus.Counter
	FundsDeposited      prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registerer.
func New() *Metrics {
	return &Metrics{
		CellsGrown: promauto.NewCounter(prometheus.CounterOpts{
			Name: "protocell_cells_grown_total",
			Help: "Total number of cells grown from scratch",
		}),
		Replications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "protocell_replications_total",
			Help: "Total number of successful cell replications",
		}),
		ReplicationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "protocell_replication_failures_total",
			Help: "Total number of failed cell replications",
		}),
		Withdrawals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "protocell_withdrawals_total",
			Help: "Total number of custody withdrawals",
		}),
		FundsWithdrawn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "protocell_funds_withdrawn_total",
			Help: "Total funds withdrawn from custody components",
		}),
		FundsDeposited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "protocell_funds_deposited_total",
			Help: "Total funds deposited into custody components",
		}),
	}
}

// ObserveWithdrawal records one withdrawal of the given amount.
func (m *Metrics) ObserveWithdrawal(amount uint64) {
	m.Withdrawals.Inc()
	m.FundsWithdrawn.Add(float64(amount))
}

// ObserveDeposit records one deposit of the given amount.
func (m *Metrics) ObserveDeposit(amount uint64) {
	m.FundsDeposited.Add(float64(amount))
}

// ObserveReplication records a replication outcome.
func (m *Metrics) ObserveReplication(ok bool) {
	if ok {
		m.Replications.Inc()
	} else {
		m.ReplicationFailures.Inc()
	}
}
