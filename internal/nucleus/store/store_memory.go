package store

import (
	"context"
	"sync"

	"protocell/internal/organelle"
	"protocell/pkg/domain"
	"protocell/pkg/platform/sentinel"
)

// InMemoryStore keeps organelle tables in process memory. It is the backing
// store for locally grown cells and for tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	tables map[domain.Address]*table
}

type table struct {
	order  []string
	byName map[string]organelle.Organelle
	byAddr map[domain.Address]string
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tables: make(map[domain.Address]*table)}
}

func (s *InMemoryStore) Append(_ context.Context, registry domain.Address, entry organelle.Organelle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tables[registry]
	if t == nil {
		t = &table{byName: make(map[string]organelle.Organelle), byAddr: make(map[domain.Address]string)}
		s.tables[registry] = t
	}
	if _, exists := t.byName[entry.Name]; exists {
		return sentinel.ErrConflict
	}
	if _, bound := t.byAddr[entry.Address]; bound {
		return sentinel.ErrConflict
	}
	t.order = append(t.order, entry.Name)
	t.byName[entry.Name] = entry
	t.byAddr[entry.Address] = entry.Name
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, registry domain.Address, entry organelle.Organelle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tables[registry]
	if t == nil {
		return sentinel.ErrNotFound
	}
	previous, exists := t.byName[entry.Name]
	if !exists {
		return sentinel.ErrNotFound
	}
	if holder, bound := t.byAddr[entry.Address]; bound && holder != entry.Name {
		return sentinel.ErrConflict
	}
	delete(t.byAddr, previous.Address)
	t.byName[entry.Name] = entry
	t.byAddr[entry.Address] = entry.Name
	return nil
}

func (s *InMemoryStore) ByName(_ context.Context, registry domain.Address, name string) (organelle.Organelle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t := s.tables[registry]; t != nil {
		if entry, ok := t.byName[name]; ok {
			return entry, nil
		}
	}
	return organelle.Organelle{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) ByAddress(_ context.Context, registry domain.Address, addr domain.Address) (organelle.Organelle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t := s.tables[registry]; t != nil {
		if name, ok := t.byAddr[addr]; ok {
			return t.byName[name], nil
		}
	}
	return organelle.Organelle{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context, registry domain.Address) (organelle.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tables[registry]
	if t == nil {
		return organelle.Table{}, nil
	}
	entries := make(organelle.Table, 0, len(t.order))
	for _, name := range t.order {
		entries = append(entries, t.byName[name])
	}
	return entries, nil
}
