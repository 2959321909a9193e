package core

import (
	"context"
	"fmt"
	"path"
	"strings"

	"sceneselect/internal/scene"
	"sceneselect/pkg/domain"
)

// candidate carries per-dataset state between stages.
type candidate struct {
	ds       domain.Dataset
	spec     domain.ProductSpec
	index    *DerivedDatasetIndex
	identity scene.CaptureIdentity

	finalReady bool
	interim    bool
	readiness  string

	promote    bool
	archiveIDs []string
}

func (c *candidate) queueArchive(ids ...string) {
	for _, id := range ids {
		dup := false
		for _, have := range c.archiveIDs {
			if have == id {
				dup = true
				break
			}
		}
		if !dup {
			c.archiveIDs = append(c.archiveIDs, id)
		}
	}
}

// bypassed reports whether stages after ancillary readiness are skipped
// for this candidate.
func (c *candidate) bypassed(p Policy) bool {
	return c.interim && p.InterimBypass
}

type verdict struct {
	rejected bool
	reason   domain.Reason
	detail   string
}

func pass() verdict { return verdict{} }

func reject(reason domain.Reason, detail string) verdict {
	return verdict{rejected: true, reason: reason, detail: detail}
}

// stage is one step of the admission pipeline. Errors abort the run; a
// per-candidate problem is a rejection verdict instead.
type stage interface {
	Name() string
	Evaluate(ctx context.Context, c *candidate) (verdict, error)
}

// patternStage rejects labels outside the family grammar.
type patternStage struct{}

func (patternStage) Name() string { return "pattern" }

func (patternStage) Evaluate(_ context.Context, c *candidate) (verdict, error) {
	name := labelOf(c.ds)
	if !scene.MatchProductPattern(c.spec.Family, name) {
		return reject(domain.ReasonProcessingLevel, name), nil
	}
	return pass(), nil
}

func labelOf(ds domain.Dataset) string {
	if ds.Label != "" {
		return ds.Label
	}
	base := path.Base(ds.LocalPath)
	for _, suffix := range []string{".odc-metadata.yaml", ".tar", ".zip"} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}

// regionStage rejects candidates outside the area of interest.
type regionStage struct {
	aoi RegionSet
}

func (regionStage) Name() string { return "region" }

func (s regionStage) Evaluate(_ context.Context, c *candidate) (verdict, error) {
	if s.aoi == nil || regionAllowed(s.aoi, c.ds.RegionCode) {
		return pass(), nil
	}
	return reject(domain.ReasonRegionNotInAOI, c.ds.RegionCode), nil
}

// localPathStage rejects datasets indexed but not materialized on disk.
type localPathStage struct{}

func (localPathStage) Name() string { return "local_path" }

func (localPathStage) Evaluate(_ context.Context, c *candidate) (verdict, error) {
	if !c.ds.HasLocalPath() {
		return reject(domain.ReasonNoLocalPath, ""), nil
	}
	return pass(), nil
}

// ancillaryStage decides between final, interim fallback and retry later.
type ancillaryStage struct {
	oracle ReadinessOracle
	policy Policy
	run    *runState
	logger Logger
}

func (ancillaryStage) Name() string { return "ancillary" }

func (s ancillaryStage) Evaluate(ctx context.Context, c *candidate) (verdict, error) {
	acq := c.ds.AcquisitionTime()
	ready, detail, err := s.oracle.Readiness(ctx, acq)
	if err != nil {
		s.logger.Warn("ancillary lookup failed", "dataset_id", c.ds.ID, "acquired", acq, "error", err)
		return reject(domain.ReasonAncillaryNotReady, err.Error()), nil
	}
	c.finalReady, c.readiness = ready, detail
	if ready {
		return pass(), nil
	}
	if s.policy.InterimWait > 0 && s.run.now.Sub(acq) > s.policy.InterimWait {
		c.interim = true
		return pass(), nil
	}
	return reject(domain.ReasonAncillaryNotReady, detail), nil
}

// exclusionStage rejects acquisitions inside an excluded day range.
type exclusionStage struct {
	windows []domain.ExclusionWindow
	policy  Policy
}

func (exclusionStage) Name() string { return "exclusion" }

func (s exclusionStage) Evaluate(_ context.Context, c *candidate) (verdict, error) {
	if c.bypassed(s.policy) {
		return pass(), nil
	}
	if domain.IsExcluded(s.windows, c.ds.AcquisitionTime()) {
		return reject(domain.ReasonExcludedDay, c.ds.AcquisitionTime().Format("2006-01-02")), nil
	}
	return pass(), nil
}

// priorProductionStage rejects scenes already represented by a derived
// dataset, letting interim ones through as promotions once final-ready.
type priorProductionStage struct {
	run *runState
}

func (priorProductionStage) Name() string { return "prior_production" }

func (s priorProductionStage) Evaluate(_ context.Context, c *candidate) (verdict, error) {
	if c.index == nil {
		return pass(), nil
	}
	id, err := scene.Normalize(c.ds.SceneID)
	if err != nil {
		return reject(domain.ReasonBadSceneFormat, err.Error()), nil
	}
	c.identity = id
	if prev, ok := s.run.claimed[claimKey(c.index.Product, id)]; ok {
		return reject(domain.ReasonAlreadyProcessed, fmt.Sprintf("admitted earlier in this run as %s", prev)), nil
	}
	entry, ok := c.index.Lookup(id)
	if !ok {
		return pass(), nil
	}
	if entry.Maturity == domain.MaturityInterim && c.finalReady {
		c.promote = true
		c.queueArchive(entry.DatasetID)
		return pass(), nil
	}
	return reject(domain.ReasonAlreadyProcessed, fmt.Sprintf("derived dataset %s (%s)", entry.DatasetID, maturityLabel(entry.Maturity))), nil
}

func maturityLabel(m domain.Maturity) string {
	if m == domain.MaturityUnknown {
		return "unlabelled"
	}
	return string(m)
}

// childStage blocks candidates with live derived datasets.
type childStage struct {
	resolver *Resolver
	policy   Policy
}

func (childStage) Name() string { return "children" }

func (s childStage) Evaluate(ctx context.Context, c *candidate) (verdict, error) {
	if c.bypassed(s.policy) {
		return pass(), nil
	}
	v, err := s.resolver.CheckChildren(ctx, c.ds, c.finalReady)
	if err != nil {
		return verdict{}, err
	}
	if v.Blocked {
		return reject(domain.ReasonHasChildren, ""), nil
	}
	if v.Promote {
		c.promote = true
		c.queueArchive(v.ArchiveIDs...)
	}
	return pass(), nil
}
