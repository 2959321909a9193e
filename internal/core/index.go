package core

import (
	"context"
	"fmt"
	"time"

	"sceneselect/internal/catalog"
	"sceneselect/internal/scene"
	"sceneselect/pkg/domain"
)

// IndexEntry is the derived dataset recorded for one capture identity.
type IndexEntry struct {
	DatasetID  string
	Maturity   domain.Maturity
	ProducedAt time.Time
}

// DerivedDatasetIndex maps capture identities to the unarchived derived
// dataset that represents them. It is built once per derived product per run.
type DerivedDatasetIndex struct {
	Product    string
	entries    map[scene.CaptureIdentity]IndexEntry
	duplicates int
}

// Lookup returns the entry for id.
func (x *DerivedDatasetIndex) Lookup(id scene.CaptureIdentity) (IndexEntry, bool) {
	if x == nil {
		return IndexEntry{}, false
	}
	e, ok := x.entries[id]
	return e, ok
}

// Len returns the number of capture identities indexed.
func (x *DerivedDatasetIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}

// Duplicates counts capture identities seen more than once while building.
func (x *DerivedDatasetIndex) Duplicates() int {
	if x == nil {
		return 0
	}
	return x.duplicates
}

// BuildDerivedIndex scans every unarchived dataset of the derived product.
// A derived dataset whose scene identifier cannot be normalized aborts the
// build: it would otherwise hide an already-produced scene.
func BuildDerivedIndex(ctx context.Context, cat catalog.Catalog, product string, resolution DuplicateResolution, logger Logger) (*DerivedDatasetIndex, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	it, err := cat.SearchProduct(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", ErrFatal, product, err)
	}
	defer func() { _ = it.Close() }()

	idx := &DerivedDatasetIndex{Product: product, entries: make(map[scene.CaptureIdentity]IndexEntry)}
	for it.Next() {
		ds := it.Dataset()
		if ds.Archived() {
			continue
		}
		id, err := scene.Normalize(ds.SceneID)
		if err != nil {
			return nil, fmt.Errorf("%w: derived dataset %s: %w", ErrFatal, ds.ID, err)
		}
		entry := IndexEntry{DatasetID: ds.ID, Maturity: ds.Maturity, ProducedAt: ds.ProducedAt}
		prev, dup := idx.entries[id]
		if !dup {
			idx.entries[id] = entry
			continue
		}
		idx.duplicates++
		kept := resolve(resolution, prev, entry)
		logger.Warn("duplicate derived dataset for capture identity",
			"product", product, "capture_identity", id.String(),
			"dataset_id", entry.DatasetID, "previous_id", prev.DatasetID, "kept_id", kept.DatasetID)
		idx.entries[id] = kept
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %w", ErrFatal, product, err)
	}
	return idx, nil
}

func resolve(resolution DuplicateResolution, prev, next IndexEntry) IndexEntry {
	if resolution == DuplicateLastSeen {
		return next
	}
	if prev.Maturity.Rank() != next.Maturity.Rank() {
		if prev.Maturity.Rank() > next.Maturity.Rank() {
			return prev
		}
		return next
	}
	if !prev.ProducedAt.Equal(next.ProducedAt) {
		if prev.ProducedAt.After(next.ProducedAt) {
			return prev
		}
		return next
	}
	return next
}
