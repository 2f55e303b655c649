package store

import (
	"context"
	"sync"

	"protocell/pkg/domain"
)

// InMemoryLog keeps replication histories in process memory.
type InMemoryLog struct {
	mu    sync.RWMutex
	cells map[domain.Address][]domain.Address
}

func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{cells: make(map[domain.Address][]domain.Address)}
}

func (l *InMemoryLog) Append(_ context.Context, owner, cell domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cells[owner] = append(l.cells[owner], cell)
	return nil
}

func (l *InMemoryLog) List(_ context.Context, owner domain.Address) ([]domain.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Address{}, l.cells[owner]...), nil
}
