// Package catalog defines the dataset catalogue boundary consumed by the
// admission engine and the reprocessing flows, plus an in-memory catalogue
// and a YAML fixture loader.
package catalog

import (
	"context"
	"errors"
	"time"

	"sceneselect/pkg/domain"
)

// ErrNotFound is returned by Get for unknown dataset IDs.
var ErrNotFound = errors.New("catalog: dataset not found")

// Iterator is a pull-based, single-pass stream of datasets. Callers must
// Close it; Err reports the failure that stopped Next, if any.
type Iterator interface {
	Next() bool
	Dataset() domain.Dataset
	Err() error
	Close() error
}

// Catalog is the indexed dataset store.
type Catalog interface {
	// SearchProduct streams every dataset of product in catalogue order.
	SearchProduct(ctx context.Context, product string) (Iterator, error)
	// SearchTimeRange streams datasets of product acquired within [from, to].
	SearchTimeRange(ctx context.Context, product string, from, to time.Time) (Iterator, error)
	// Derived returns the datasets produced from id, archived or not.
	Derived(ctx context.Context, id string) ([]domain.Dataset, error)
	// Get returns one dataset or ErrNotFound.
	Get(ctx context.Context, id string) (domain.Dataset, error)
	// Archive marks the datasets archived. Unknown IDs are ignored.
	Archive(ctx context.Context, ids []string) error
}

// Writer loads datasets into a catalogue. Existing IDs are replaced.
type Writer interface {
	Put(ctx context.Context, datasets ...domain.Dataset) error
}

// Collect drains it into a slice and closes it.
func Collect(it Iterator) ([]domain.Dataset, error) {
	defer func() { _ = it.Close() }()
	var out []domain.Dataset
	for it.Next() {
		out = append(out, it.Dataset())
	}
	return out, it.Err()
}

// sliceIterator streams a pre-materialized slice.
type sliceIterator struct {
	items []domain.Dataset
	idx   int
	cur   domain.Dataset
}

// NewSliceIterator returns an Iterator over datasets.
func NewSliceIterator(datasets []domain.Dataset) Iterator {
	return &sliceIterator{items: datasets}
}

func (it *sliceIterator) Next() bool {
	if it.idx >= len(it.items) {
		return false
	}
	it.cur = it.items[it.idx]
	it.idx++
	return true
}

func (it *sliceIterator) Dataset() domain.Dataset { return it.cur.Clone() }
func (it *sliceIterator) Err() error              { return nil }
func (it *sliceIterator) Close() error            { it.idx = len(it.items); return nil }

// InRange reports whether the dataset's acquisition time lies within [from, to].
func InRange(ds domain.Dataset, from, to time.Time) bool {
	t := ds.AcquisitionTime()
	return !t.Before(from) && !t.After(to)
}
