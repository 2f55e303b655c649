// Package lineage carries the fire-and-forget replication notifications. The
// side channel is intentionally lossy: emission never fails or delays a
// replication, and sinks (log, kafka) absorb events asynchronously.
package lineage

import (
	"context"
	"time"
)

// Actions emitted on the lineage channel.
const (
	ActionCellGrown      = "cell_grown"
	ActionCellReplicated = "cell_replicated"
)

// Event is one lineage notification. Addresses travel as their canonical
// string form so sinks stay decoupled from domain types.
type Event struct {
	Action      string    `json:"action"`
	Registry    string    `json:"registry"`
	NewRegistry string    `json:"new_registry,omitempty"`
	NewCustody  string    `json:"new_custody,omitempty"`
	FundsUsed   uint64    `json:"funds_used"`
	Transferred uint64    `json:"transferred"`
	CellCount   int       `json:"cell_count"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

// Publisher accepts events from domain logic. Implementations must never
// block the caller on sink latency.
type Publisher interface {
	Emit(ctx context.Context, event Event)
}

// Sink delivers drained events somewhere durable-ish. Delivery failures are
// logged by the worker and otherwise ignored.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
