package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sceneselect/pkg/domain"
)

// Memory is an in-process catalogue preserving insertion order. Searches
// stream a snapshot taken when the search starts.
type Memory struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]domain.Dataset
	now   func() time.Time
}

// NewMemory returns a catalogue pre-loaded with datasets.
func NewMemory(datasets ...domain.Dataset) *Memory {
	m := &Memory{byID: make(map[string]domain.Dataset), now: func() time.Time { return time.Now().UTC() }}
	_ = m.Put(context.Background(), datasets...)
	return m
}

// Put inserts or replaces datasets. New IDs are appended to catalogue order.
func (m *Memory) Put(_ context.Context, datasets ...domain.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ds := range datasets {
		if ds.ID == "" {
			return fmt.Errorf("dataset without id (product %s, label %s)", ds.Product, ds.Label)
		}
		if _, ok := m.byID[ds.ID]; !ok {
			m.order = append(m.order, ds.ID)
		}
		m.byID[ds.ID] = ds.Clone()
	}
	return nil
}

func (m *Memory) snapshot(match func(domain.Dataset) bool) []domain.Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Dataset
	for _, id := range m.order {
		ds := m.byID[id]
		if match(ds) {
			out = append(out, ds.Clone())
		}
	}
	return out
}

// SearchProduct implements Catalog.
func (m *Memory) SearchProduct(_ context.Context, product string) (Iterator, error) {
	return NewSliceIterator(m.snapshot(func(ds domain.Dataset) bool { return ds.Product == product })), nil
}

// SearchTimeRange implements Catalog.
func (m *Memory) SearchTimeRange(_ context.Context, product string, from, to time.Time) (Iterator, error) {
	return NewSliceIterator(m.snapshot(func(ds domain.Dataset) bool {
		return ds.Product == product && InRange(ds, from, to)
	})), nil
}

// Derived implements Catalog.
func (m *Memory) Derived(_ context.Context, id string) ([]domain.Dataset, error) {
	return m.snapshot(func(ds domain.Dataset) bool {
		for _, src := range ds.SourceIDs {
			if src == id {
				return true
			}
		}
		return false
	}), nil
}

// Get implements Catalog.
func (m *Memory) Get(_ context.Context, id string) (domain.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.byID[id]
	if !ok {
		return domain.Dataset{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ds.Clone(), nil
}

// Archive implements Catalog.
func (m *Memory) Archive(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now()
	for _, id := range ids {
		ds, ok := m.byID[id]
		if !ok || ds.Archived() {
			continue
		}
		stamp := at
		ds.ArchivedAt = &stamp
		m.byID[id] = ds
	}
	return nil
}

// Len returns the number of datasets held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}
