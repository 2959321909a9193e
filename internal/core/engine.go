// Package core implements the scene admission pipeline and the lineage
// conflict resolver.
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

// ReadinessOracle reports whether final ancillary data exists for an
// acquisition time.
type ReadinessOracle interface {
	Readiness(ctx context.Context, t time.Time) (bool, string, error)
}

// RegionSet is the area of interest.
type RegionSet interface {
	Contains(code string) bool
}

func regionAllowed(set RegionSet, code string) bool {
	if normalized, err := scene.NormalizeRegionCode(code); err == nil {
		return set.Contains(normalized)
	}
	return set.Contains(code)
}

// Request describes one admission run.
type Request struct {
	Products []string
	// AOI restricts admission to its regions. Nil admits every region.
	AOI        RegionSet
	Exclusions []domain.ExclusionWindow
	// SceneLimit caps admissions across all products. Zero means no cap.
	SceneLimit int
}

// Engine evaluates catalogue candidates through the admission stages.
type Engine struct {
	cat      catalog.Catalog
	oracle   ReadinessOracle
	resolver *Resolver
	opts     options
}

// NewEngine constructs an Engine.
func NewEngine(cat catalog.Catalog, oracle ReadinessOracle, opts ...Option) (*Engine, error) {
	if cat == nil {
		return nil, errors.New("catalogue required")
	}
	if oracle == nil {
		return nil, errors.New("readiness oracle required")
	}
	o := buildOptions(opts)
	return &Engine{cat: cat, oracle: oracle, resolver: NewResolver(cat, WithLogger(o.logger)), opts: o}, nil
}

// Policy returns the effective run policy.
func (e *Engine) Policy() Policy { return e.opts.policy }

type runState struct {
	now     time.Time
	result  *RunResult
	indexes map[string]*DerivedDatasetIndex
	// claimed maps derived product + capture identity to the dataset admitted for it.
	claimed  map[string]string
	archived map[string]bool
}

func claimKey(product string, id scene.CaptureIdentity) string {
	return product + "/" + id.String()
}

func (e *Engine) stages(req Request, rs *runState) []stage {
	return []stage{
		patternStage{},
		regionStage{aoi: req.AOI},
		localPathStage{},
		ancillaryStage{oracle: e.oracle, policy: e.opts.policy, run: rs, logger: e.opts.logger},
		exclusionStage{windows: req.Exclusions, policy: e.opts.policy},
		priorProductionStage{run: rs},
		childStage{resolver: e.resolver, policy: e.opts.policy},
	}
}

// Run evaluates every candidate of every requested product in catalogue
// order. Per-candidate problems become decisions; catalogue failures and
// derived-index failures abort the run with an error wrapping ErrFatal.
func (e *Engine) Run(ctx context.Context, req Request) (RunResult, error) {
	started := e.opts.clock.Now()
	result := newRunResult()
	rs := &runState{
		now:      started,
		result:   &result,
		indexes:  make(map[string]*DerivedDatasetIndex),
		claimed:  make(map[string]string),
		archived: make(map[string]bool),
	}
	stages := e.stages(req, rs)
	for _, product := range req.Products {
		if err := e.runProduct(ctx, product, req, rs, stages); err != nil {
			if errors.Is(err, domain.ErrUnknownProduct) {
				e.opts.logger.Error("skipping product", "product", product, "error", err)
				result.SkippedProducts = append(result.SkippedProducts, product)
				continue
			}
			return result, err
		}
	}
	e.opts.metrics.ObserveRun(e.opts.clock.Now().Sub(started), result.Admitted)
	e.opts.logger.Info("admission run complete",
		"products", len(req.Products), "admitted", result.Admitted, "rejected", result.Rejected,
		"promoted", len(result.Promoted), "archive_ids", len(result.ArchiveIDs))
	return result, nil
}

func (e *Engine) runProduct(ctx context.Context, product string, req Request, rs *runState, stages []stage) error {
	spec, err := domain.LookupProduct(product)
	if err != nil {
		return err
	}
	var index *DerivedDatasetIndex
	if spec.HasDerived() {
		index, err = e.derivedIndex(ctx, spec.Derived, rs)
		if err != nil {
			return err
		}
	} else {
		e.opts.logger.Warn("no derived product mapping, prior-production check disabled", "product", product)
	}

	it, err := e.cat.SearchProduct(ctx, product)
	if err != nil {
		return fmt.Errorf("%w: search %s: %w", ErrFatal, product, err)
	}
	defer func() { _ = it.Close() }()
	for it.Next() {
		c := &candidate{ds: it.Dataset(), spec: spec, index: index}
		if err := e.evaluate(ctx, c, req, rs, stages); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("%w: iterate %s: %w", ErrFatal, product, err)
	}
	return nil
}

func (e *Engine) derivedIndex(ctx context.Context, product string, rs *runState) (*DerivedDatasetIndex, error) {
	if idx, ok := rs.indexes[product]; ok {
		return idx, nil
	}
	idx, err := BuildDerivedIndex(ctx, e.cat, product, e.opts.policy.DuplicateResolution, e.opts.logger)
	if err != nil {
		return nil, err
	}
	e.opts.logger.Debug("derived index built", "product", product, "entries", idx.Len(), "duplicates", idx.Duplicates())
	rs.indexes[product] = idx
	return idx, nil
}

func (e *Engine) evaluate(ctx context.Context, c *candidate, req Request, rs *runState, stages []stage) error {
	for _, st := range stages {
		v, err := st.Evaluate(ctx, c)
		if err != nil {
			return fmt.Errorf("stage %s on %s: %w", st.Name(), c.ds.ID, err)
		}
		if v.rejected {
			e.record(ctx, rs, c, domain.OutcomeRejected, v.reason, v.detail)
			return nil
		}
	}
	if req.SceneLimit > 0 && rs.result.Admitted >= req.SceneLimit {
		e.record(ctx, rs, c, domain.OutcomeRejected, domain.ReasonSceneLimit, fmt.Sprintf("limit %d", req.SceneLimit))
		return nil
	}
	reason := domain.ReasonFinal
	switch {
	case c.promote:
		reason = domain.ReasonInterimToFinal
	case c.interim:
		reason = domain.ReasonProcessInterim
	}
	if c.index != nil && c.identity != "" {
		rs.claimed[claimKey(c.index.Product, c.identity)] = c.ds.ID
	}
	e.record(ctx, rs, c, domain.OutcomeAdmitted, reason, c.readiness)
	return nil
}

func (e *Engine) record(ctx context.Context, rs *runState, c *candidate, outcome domain.Outcome, reason domain.Reason, detail string) {
	d := domain.Decision{
		DatasetID:   c.ds.ID,
		DatasetPath: c.ds.LocalPath,
		Product:     c.ds.Product,
		SceneID:     c.ds.SceneID,
		RegionCode:  c.ds.RegionCode,
		Outcome:     outcome,
		Reason:      reason,
		Detail:      detail,
	}
	if outcome == domain.OutcomeAdmitted {
		d.DatasetPath = c.ds.ArchivePath(c.spec.Family)
		d.Maturity = domain.MaturityFinal
		if c.interim {
			d.Maturity = domain.MaturityInterim
		}
		d.ArchiveIDs = append([]string(nil), c.archiveIDs...)
		rs.result.admit(d, c.promote, rs.archived)
	} else {
		rs.result.reject(d)
	}
	e.opts.sink.Record(ctx, d)
	e.opts.metrics.ObserveDecision(d)
}
