package catalog

import (
	"context"
	"slices"
	"sync"
)

type MemStore struct {
	mu        sync.RWMutex
	products  []Product
	materials []Material
}

func NewMemStore(products []Product, materials []Material) *MemStore {
	return &MemStore{
		products:  slices.Clone(products),
		materials: slices.Clone(materials),
	}
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) ListProducts(context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.products), nil
}

func (s *MemStore) ListMaterials(context.Context) ([]Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.materials), nil
}

func (s *MemStore) AppendProduct(_ context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, p)
	return nil
}

func (s *MemStore) RewriteProducts(_ context.Context, fn func([]Product) ([]Product, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(slices.Clone(s.products))
	if err != nil {
		return err
	}
	s.products = next
	return nil
}
