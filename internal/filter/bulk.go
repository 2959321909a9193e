package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sceneselect/internal/catalog"
	"sceneselect/internal/core"
	"sceneselect/internal/scene"
	"sceneselect/pkg/domain"
)

// BulkRequest selects derived datasets for reprocessing.
type BulkRequest struct {
	DerivedProduct string
	Filter         Expression
	// AOI, when non-nil, restricts selection to its regions.
	AOI        core.RegionSet
	SceneLimit int
}

// BulkResult holds the lists produced by a bulk selection.
type BulkResult struct {
	WorkList      []string
	ArchiveIDs    []string
	ArchiveGroups []core.ArchiveGroup
	Scanned       int
	Matched       int
	Unavailable   int
	// Unparsable counts datasets skipped because a filtered component
	// reports a version that cannot be compared.
	Unparsable int
}

// Selector walks a derived product and queues the Level-1 sources of
// datasets matching a filter.
type Selector struct {
	cat    catalog.Catalog
	logger core.Logger
	sink   core.DecisionSink
}

// NewSelector constructs a Selector. logger and sink may be nil.
func NewSelector(cat catalog.Catalog, logger core.Logger, sink core.DecisionSink) *Selector {
	return &Selector{cat: cat, logger: logger, sink: sink}
}

// Select runs the bulk selection in catalogue order.
func (s *Selector) Select(ctx context.Context, req BulkRequest) (BulkResult, error) {
	if req.DerivedProduct == "" {
		return BulkResult{}, errors.New("derived product required")
	}
	if len(req.Filter.Clauses) == 0 {
		return BulkResult{}, errors.New("filter required")
	}
	it, err := s.cat.SearchProduct(ctx, req.DerivedProduct)
	if err != nil {
		return BulkResult{}, fmt.Errorf("%w: search %s: %w", core.ErrFatal, req.DerivedProduct, err)
	}
	defer func() { _ = it.Close() }()

	var res BulkResult
	groups := make(map[string]int)
	for it.Next() {
		ds := it.Dataset()
		if ds.Archived() {
			continue
		}
		if req.AOI != nil && !inAOI(req.AOI, ds.RegionCode) {
			continue
		}
		res.Scanned++
		if !req.Filter.Match(ds) {
			if bad := req.Filter.UnparsedVersions(ds); len(bad) > 0 {
				res.Unparsable++
				s.warn("unparsable software version", "dataset_id", ds.ID, "versions", bad)
				s.record(ctx, domain.Decision{
					DatasetID:   ds.ID,
					DatasetPath: ds.LocalPath,
					Product:     ds.Product,
					SceneID:     ds.SceneID,
					RegionCode:  ds.RegionCode,
					Outcome:     domain.OutcomeRejected,
					Reason:      domain.ReasonUnparsableVersion,
					Detail:      strings.Join(bad, ", "),
				})
				continue
			}
			if s.logger != nil {
				s.logger.Debug("scene skipped", "dataset_id", ds.ID, "reason", string(domain.ReasonFilterMismatch))
			}
			continue
		}
		res.Matched++
		src, err := s.source(ctx, ds)
		if err != nil {
			return res, err
		}
		if src == nil {
			res.Unavailable++
			s.record(ctx, domain.Decision{
				DatasetID:   ds.ID,
				DatasetPath: ds.LocalPath,
				Product:     ds.Product,
				SceneID:     ds.SceneID,
				RegionCode:  ds.RegionCode,
				Outcome:     domain.OutcomeRejected,
				Reason:      domain.ReasonSourceUnavailable,
			})
			continue
		}
		path := src.ArchivePath(familyOf(src.Product))
		d := domain.Decision{
			DatasetID:   src.ID,
			DatasetPath: path,
			Product:     src.Product,
			SceneID:     src.SceneID,
			RegionCode:  src.RegionCode,
			Outcome:     domain.OutcomeAdmitted,
			Reason:      domain.ReasonFilterMatch,
			Detail:      req.Filter.String(),
			ArchiveIDs:  []string{ds.ID},
		}
		idx, queued := groups[src.ID]
		if !queued && req.SceneLimit > 0 && len(res.WorkList) >= req.SceneLimit {
			d.Outcome, d.Reason, d.Detail, d.ArchiveIDs = domain.OutcomeRejected, domain.ReasonSceneLimit, fmt.Sprintf("limit %d", req.SceneLimit), nil
			s.record(ctx, d)
			continue
		}
		res.ArchiveIDs = append(res.ArchiveIDs, ds.ID)
		if queued {
			res.ArchiveGroups[idx].DerivedIDs = append(res.ArchiveGroups[idx].DerivedIDs, ds.ID)
		} else {
			groups[src.ID] = len(res.ArchiveGroups)
			res.WorkList = append(res.WorkList, path)
			res.ArchiveGroups = append(res.ArchiveGroups, core.ArchiveGroup{Level1Path: path, DerivedIDs: []string{ds.ID}})
		}
		s.record(ctx, d)
	}
	if err := it.Err(); err != nil {
		return res, fmt.Errorf("%w: iterate %s: %w", core.ErrFatal, req.DerivedProduct, err)
	}
	if s.logger != nil {
		s.logger.Info("bulk selection complete", "product", req.DerivedProduct, "filter", req.Filter.String(),
			"scanned", res.Scanned, "matched", res.Matched, "queued", len(res.WorkList), "unavailable", res.Unavailable,
			"unparsable", res.Unparsable)
	}
	return res, nil
}

// source returns the first usable Level-1 source of ds, or nil when every
// source is missing, archived or has no local path.
func (s *Selector) source(ctx context.Context, ds domain.Dataset) (*domain.Dataset, error) {
	for _, id := range ds.SourceIDs {
		src, err := s.cat.Get(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: get %s: %w", core.ErrFatal, id, err)
		}
		if src.Archived() || !src.HasLocalPath() {
			continue
		}
		return &src, nil
	}
	return nil, nil
}

func (s *Selector) record(ctx context.Context, d domain.Decision) {
	if s.sink != nil {
		s.sink.Record(ctx, d)
	}
}

func (s *Selector) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func familyOf(product string) domain.SensorFamily {
	if spec, err := domain.LookupProduct(product); err == nil {
		return spec.Family
	}
	return domain.SensorUnknown
}

func inAOI(set core.RegionSet, code string) bool {
	if n, err := scene.NormalizeRegionCode(code); err == nil {
		code = n
	}
	return set.Contains(code)
}
