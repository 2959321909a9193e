package core

import (
	"context"
	"errors"
	"fmt"

	"sceneselect/pkg/domain"
)

// Stager moves a superseded derived product out of the live tree.
type Stager interface {
	Stage(ctx context.Context, derived domain.Dataset) error
}

// ReprocessRequest describes one reprocessing-conflict run.
type ReprocessRequest struct {
	DerivedProduct string
	AOI            RegionSet
	SceneLimit     int
	// DryRun skips staging; lists are still produced.
	DryRun bool
}

// ReprocessResult holds the outputs of a reprocessing-conflict run.
type ReprocessResult struct {
	WorkList      []string
	ArchiveIDs    []string
	ArchiveGroups []ArchiveGroup
	Report        ConflictReport
	// StageFailures lists derived IDs whose staging failed; they are left out of the lists.
	StageFailures []string
}

// Reprocessor turns supersession conflicts into work-list entries.
type Reprocessor struct {
	resolver *Resolver
	opts     options
}

// NewReprocessor constructs a Reprocessor over resolver.
func NewReprocessor(resolver *Resolver, opts ...Option) *Reprocessor {
	return &Reprocessor{resolver: resolver, opts: buildOptions(opts)}
}

// Run finds conflicts for the derived product, stages each superseded
// derived product and, on success, queues its blocking Level-1 dataset.
func (p *Reprocessor) Run(ctx context.Context, req ReprocessRequest, stager Stager) (ReprocessResult, error) {
	if req.DerivedProduct == "" {
		return ReprocessResult{}, errors.New("derived product required")
	}
	if stager == nil && !req.DryRun {
		return ReprocessResult{}, errors.New("stager required unless dry run")
	}
	started := p.opts.clock.Now()
	report, err := p.resolver.FindSupersessions(ctx, req.DerivedProduct, req.AOI)
	if err != nil {
		return ReprocessResult{Report: report}, err
	}
	res := ReprocessResult{Report: report}
	for _, group := range report.Ambiguous {
		d := domain.Decision{
			DatasetID:   group.Derived.ID,
			DatasetPath: group.Derived.LocalPath,
			Product:     group.Derived.Product,
			SceneID:     group.Derived.SceneID,
			RegionCode:  group.Derived.RegionCode,
			Outcome:     domain.OutcomeRejected,
			Reason:      domain.ReasonAmbiguous,
			Detail:      fmt.Sprintf("ambiguous: %d replacement candidates", len(group.Candidates)),
		}
		p.opts.sink.Record(ctx, d)
		p.opts.metrics.ObserveDecision(d)
	}
	groups := make(map[string]int)
	for _, c := range report.Conflicts {
		d := p.decision(c)
		idx, queued := groups[c.Blocked.ID]
		if !queued && req.SceneLimit > 0 && len(res.WorkList) >= req.SceneLimit {
			d.Outcome, d.Reason, d.Detail = domain.OutcomeRejected, domain.ReasonSceneLimit, fmt.Sprintf("limit %d", req.SceneLimit)
			p.opts.sink.Record(ctx, d)
			p.opts.metrics.ObserveDecision(d)
			continue
		}
		if !req.DryRun {
			if err := stager.Stage(ctx, c.Derived); err != nil {
				p.opts.logger.Error("staging derived dataset failed", "dataset_id", c.Derived.ID, "error", err)
				res.StageFailures = append(res.StageFailures, c.Derived.ID)
				continue
			}
		}
		res.ArchiveIDs = append(res.ArchiveIDs, c.Derived.ID)
		if queued {
			res.ArchiveGroups[idx].DerivedIDs = append(res.ArchiveGroups[idx].DerivedIDs, c.Derived.ID)
		} else {
			groups[c.Blocked.ID] = len(res.ArchiveGroups)
			res.WorkList = append(res.WorkList, d.DatasetPath)
			res.ArchiveGroups = append(res.ArchiveGroups, ArchiveGroup{Level1Path: d.DatasetPath, DerivedIDs: []string{c.Derived.ID}})
		}
		p.opts.sink.Record(ctx, d)
		p.opts.metrics.ObserveDecision(d)
	}
	p.opts.metrics.ObserveRun(p.opts.clock.Now().Sub(started), len(res.WorkList))
	p.opts.logger.Info("reprocessing scan complete",
		"product", req.DerivedProduct, "scanned", report.Scanned, "conflicts", len(report.Conflicts),
		"ambiguous", len(report.Ambiguous), "queued", len(res.WorkList), "dry_run", req.DryRun)
	return res, nil
}

func (p *Reprocessor) decision(c Conflict) domain.Decision {
	family := domain.SensorUnknown
	if spec, err := domain.LookupProduct(c.Blocked.Product); err == nil {
		family = spec.Family
	}
	return domain.Decision{
		DatasetID:   c.Blocked.ID,
		DatasetPath: c.Blocked.ArchivePath(family),
		Product:     c.Blocked.Product,
		SceneID:     c.Blocked.SceneID,
		RegionCode:  c.Blocked.RegionCode,
		Outcome:     domain.OutcomeAdmitted,
		Reason:      domain.ReasonSuperseded,
		Detail:      "supersedes " + c.Source.ID,
		ArchiveIDs:  []string{c.Derived.ID},
	}
}
