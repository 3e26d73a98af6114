package storage

import (
	"context"
	"sync"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

// MemoryStore keeps committed products in a map. Every unit of work works on
// clones, so nothing it does is visible to others before commit.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]*domain.Product)}
}

// UnitOfWork satisfies port.UnitOfWorkFactory.
func (s *MemoryStore) UnitOfWork(context.Context) (port.UnitOfWork, error) {
	return newUnitOfWork(s), nil
}

func (s *MemoryStore) load(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[sku]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (s *MemoryStore) skuForBatch(_ context.Context, ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for sku, p := range s.products {
		if _, ok := p.Batch(ref); ok {
			return sku, nil
		}
	}
	return "", nil
}

func (s *MemoryStore) flush(_ context.Context, changes []change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		stored, exists := s.products[c.product.SKU]
		switch {
		case c.isNew && exists:
			return &port.ConflictError{SKU: c.product.SKU, ExpectedVersion: 0}
		case !c.isNew && (!exists || stored.Version != c.loadedVersion):
			return &port.ConflictError{SKU: c.product.SKU, ExpectedVersion: c.loadedVersion}
		}
	}
	for _, c := range changes {
		s.products[c.product.SKU] = c.product.Clone()
	}
	return nil
}
