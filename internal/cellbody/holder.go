// Package cellbody holds the trivial identity-holder component: a named
// value with no invariants beyond one-time configuration.
package cellbody

import (
	"context"
	"sync"

	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
)

// InitParams names a blank holder.
type InitParams struct {
	Name string
}

// Holder is one identity-holder instance.
type Holder struct {
	addr domain.Address

	mu         sync.RWMutex
	configured bool
	name       string
}

func New(addr domain.Address) *Holder {
	return &Holder{addr: addr}
}

func (h *Holder) Address() domain.Address {
	return h.addr
}

// Blank returns a fresh unconfigured holder at addr.
func (h *Holder) Blank(addr domain.Address) *Holder {
	return New(addr)
}

// Configure names the holder. It may be called exactly once.
func (h *Holder) Configure(_ context.Context, params any) error {
	init, ok := params.(InitParams)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidArgument, "cellbody requires cellbody.InitParams")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.configured {
		return dErrors.New(dErrors.CodeAlreadyInitialized, "cell body is already configured")
	}
	h.name = init.Name
	h.configured = true
	return nil
}

// Name returns the held identity, empty until configured.
func (h *Holder) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.name
}
