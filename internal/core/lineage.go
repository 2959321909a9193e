package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sceneselect/internal/catalog"
	"sceneselect/internal/scene"
	"sceneselect/pkg/domain"
)

// SupersessionWindow is how far either side of the archived source's
// acquisition time a replacement Level-1 dataset is searched for.
const SupersessionWindow = 24 * time.Hour

// Resolver answers lineage questions against the catalogue.
type Resolver struct {
	cat    catalog.Catalog
	logger Logger
}

// NewResolver constructs a Resolver.
func NewResolver(cat catalog.Catalog, opts ...Option) *Resolver {
	o := buildOptions(opts)
	return &Resolver{cat: cat, logger: o.logger}
}

// ChildVerdict is the outcome of the child-blocking check.
type ChildVerdict struct {
	// Blocked is true when an unarchived child prevents admission.
	Blocked bool
	// Promote is true when every unarchived child is interim and final
	// ancillary data is now available.
	Promote bool
	// ArchiveIDs lists the interim children to archive after reprocessing.
	ArchiveIDs []string
}

// UnarchivedChildren returns the derived datasets produced from ds that have
// not been archived.
func (r *Resolver) UnarchivedChildren(ctx context.Context, ds domain.Dataset) ([]domain.Dataset, error) {
	children, err := r.cat.Derived(ctx, ds.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: derived of %s: %w", ErrFatal, ds.ID, err)
	}
	out := children[:0]
	for _, c := range children {
		if !c.Archived() {
			out = append(out, c)
		}
	}
	return out, nil
}

// HasUnarchivedChild reports whether any derived dataset of ds is live.
func (r *Resolver) HasUnarchivedChild(ctx context.Context, ds domain.Dataset) (bool, error) {
	children, err := r.UnarchivedChildren(ctx, ds)
	if err != nil {
		return false, err
	}
	return len(children) > 0, nil
}

// CheckChildren applies the child-blocking rule. A live child blocks the
// candidate unless all live children are interim and finalReady is true, in
// which case the candidate is promoted.
func (r *Resolver) CheckChildren(ctx context.Context, ds domain.Dataset, finalReady bool) (ChildVerdict, error) {
	children, err := r.UnarchivedChildren(ctx, ds)
	if err != nil {
		return ChildVerdict{}, err
	}
	if len(children) == 0 {
		return ChildVerdict{}, nil
	}
	ids := make([]string, 0, len(children))
	for _, c := range children {
		if c.Maturity != domain.MaturityInterim || !finalReady {
			return ChildVerdict{Blocked: true}, nil
		}
		ids = append(ids, c.ID)
	}
	return ChildVerdict{Promote: true, ArchiveIDs: ids}, nil
}

// Conflict pairs a derived dataset with the Level-1 dataset it should be
// regenerated from.
type Conflict struct {
	Derived domain.Dataset
	// Source is the archived Level-1 dataset the derived product was built from.
	Source domain.Dataset
	// Blocked is the unarchived Level-1 dataset superseding Source.
	Blocked domain.Dataset
}

// AmbiguousGroup is a derived dataset with several possible replacements.
// Such groups are discarded rather than guessed.
type AmbiguousGroup struct {
	Derived    domain.Dataset
	Candidates []domain.Dataset
}

// ConflictReport is the result of a supersession scan.
type ConflictReport struct {
	Conflicts []Conflict
	Ambiguous []AmbiguousGroup
	// Scanned counts the derived datasets examined.
	Scanned int
}

// Supersession checks one derived dataset. It returns a conflict when the
// derived dataset's source has been archived and exactly one different,
// unarchived Level-1 dataset of the same product family covers the same
// region within SupersessionWindow of the source's acquisition time.
func (r *Resolver) Supersession(ctx context.Context, derived domain.Dataset) (*Conflict, *AmbiguousGroup, error) {
	for _, srcID := range derived.SourceIDs {
		src, err := r.cat.Get(ctx, srcID)
		if errors.Is(err, catalog.ErrNotFound) {
			r.logger.Warn("derived dataset source missing from catalogue", "dataset_id", derived.ID, "source_id", srcID)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: get %s: %w", ErrFatal, srcID, err)
		}
		if !src.Archived() {
			continue
		}
		candidates, err := r.replacements(ctx, derived, src)
		if err != nil {
			return nil, nil, err
		}
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return &Conflict{Derived: derived, Source: src, Blocked: candidates[0]}, nil, nil
		default:
			ids := make([]string, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}
			r.logger.Error("ambiguous supersession, discarding group", "dataset_id", derived.ID, "source_id", src.ID, "candidates", ids)
			return nil, &AmbiguousGroup{Derived: derived, Candidates: candidates}, nil
		}
	}
	return nil, nil, nil
}

// replacements searches every Level-1 product feeding derived's product.
func (r *Resolver) replacements(ctx context.Context, derived, src domain.Dataset) ([]domain.Dataset, error) {
	acq := src.AcquisitionTime()
	from, to := acq.Add(-SupersessionWindow), acq.Add(SupersessionWindow)
	region, err := scene.NormalizeRegionCode(src.RegionCode)
	if err != nil {
		region = src.RegionCode
	}
	var out []domain.Dataset
	for _, product := range level1Products(derived.Product, src.Product) {
		it, err := r.cat.SearchTimeRange(ctx, product, from, to)
		if err != nil {
			return nil, fmt.Errorf("%w: search %s: %w", ErrFatal, product, err)
		}
		found, err := catalog.Collect(it)
		if err != nil {
			return nil, fmt.Errorf("%w: iterate %s: %w", ErrFatal, product, err)
		}
		for _, ds := range found {
			if ds.ID == src.ID || ds.Archived() {
				continue
			}
			code, err := scene.NormalizeRegionCode(ds.RegionCode)
			if err != nil {
				code = ds.RegionCode
			}
			if code == region {
				out = append(out, ds)
			}
		}
	}
	return out, nil
}

// level1Products lists the Level-1 products whose derived product is
// derivedProduct, always including fallback.
func level1Products(derivedProduct, fallback string) []string {
	var out []string
	seen := map[string]bool{}
	for _, spec := range domain.Products() {
		if spec.Derived == derivedProduct && !seen[spec.Name] {
			seen[spec.Name] = true
			out = append(out, spec.Name)
		}
	}
	if fallback != "" && !seen[fallback] {
		out = append(out, fallback)
	}
	return out
}

// FindSupersessions scans the unarchived datasets of derivedProduct in
// catalogue order. within, when non-nil, limits the scan to derived datasets
// whose region it contains.
func (r *Resolver) FindSupersessions(ctx context.Context, derivedProduct string, within RegionSet) (ConflictReport, error) {
	it, err := r.cat.SearchProduct(ctx, derivedProduct)
	if err != nil {
		return ConflictReport{}, fmt.Errorf("%w: search %s: %w", ErrFatal, derivedProduct, err)
	}
	defer func() { _ = it.Close() }()
	var report ConflictReport
	for it.Next() {
		ds := it.Dataset()
		if ds.Archived() {
			continue
		}
		if within != nil && !regionAllowed(within, ds.RegionCode) {
			continue
		}
		report.Scanned++
		conflict, ambiguous, err := r.Supersession(ctx, ds)
		if err != nil {
			return report, err
		}
		if conflict != nil {
			report.Conflicts = append(report.Conflicts, *conflict)
		}
		if ambiguous != nil {
			report.Ambiguous = append(report.Ambiguous, *ambiguous)
		}
	}
	if err := it.Err(); err != nil {
		return report, fmt.Errorf("%w: iterate %s: %w", ErrFatal, derivedProduct, err)
	}
	return report, nil
}
