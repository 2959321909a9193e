package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sceneselect/internal/core"
	"sceneselect/internal/filter"
	"sceneselect/internal/staging"
	"sceneselect/internal/worklist"
)

func (a *app) reprocessCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Queue Level-1 scenes that supersede existing derived products",
		Long: `Find derived datasets whose Level-1 source was archived and replaced by a
newer Level-1 dataset. Each superseded derived product is moved into the
staging directory and its replacement is written to the work list; the
archive list is grouped as level1-path,derived-id,...

Examples:
  sceneselect reprocess --derived-product ga_ls8c_ard_3 --staging-dir /g/data/v10/staging
  sceneselect reprocess --derived-product ga_ls8c_ard_3 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runReprocess(cmd.Context(), a.runID(runID))
		},
	}
	f := cmd.Flags()
	f.StringVar(&runID, "run-id", "", "run identifier")
	f.String("derived-product", "", "derived product to scan, e.g. ga_ls8c_ard_3")
	f.String("staging-dir", "", "directory superseded derived products are moved into")
	f.Bool("dry-run", false, "write lists without moving anything")
	f.Int("scene-limit", 0, "maximum scenes to queue (0 = unlimited)")
	f.String("aoi-key", "", "blob key of the area-of-interest list")
	f.StringSlice("region", nil, "additional area-of-interest region codes")
	f.String("output-prefix", "", "blob prefix for run outputs")
	return cmd
}

func (a *app) runReprocess(ctx context.Context, runID string) error {
	rc := a.cfg.Reprocess
	if rc.DerivedProduct == "" {
		return errNoDerivedProduct
	}
	var stager core.Stager
	if !rc.DryRun {
		dir, err := staging.NewDirectory(rc.StagingDir, a.logger)
		if err != nil {
			return err
		}
		stager = dir
	}
	cat, closeCat, err := a.openCatalog(ctx)
	if err != nil {
		return err
	}
	defer closeCat()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	regions, err := a.loadAOI(ctx, store)
	if err != nil {
		return err
	}
	sink, closeSink, err := a.decisionSink(runID)
	if err != nil {
		return err
	}
	defer closeSink()
	rec, err := a.metricsRecorder("reprocess")
	if err != nil {
		return err
	}
	opts, err := a.coreOptions(sink, rec)
	if err != nil {
		return err
	}
	rp := core.NewReprocessor(core.NewResolver(cat, core.WithLogger(a.logger)), opts...)
	res, err := rp.Run(ctx, core.ReprocessRequest{
		DerivedProduct: rc.DerivedProduct,
		AOI:            regions,
		SceneLimit:     a.cfg.Selection.SceneLimit,
		DryRun:         rc.DryRun,
	}, stager)
	if err != nil {
		return fmt.Errorf("reprocess scan: %w", err)
	}
	w, err := a.writer(store, runID)
	if err != nil {
		return err
	}
	out, err := w.WriteRun(ctx, a.cfg.Output.WorkList, a.cfg.Output.ArchiveList, worklist.FormatGrouped, worklist.Lists{
		WorkList: res.WorkList, ArchiveIDs: res.ArchiveIDs, ArchiveGroups: res.ArchiveGroups,
	})
	if err != nil {
		return err
	}
	if err := a.flushMetrics(rec); err != nil {
		return err
	}
	a.summary("run %s: scanned %d, %d conflicts, %d ambiguous, %d queued, %d staging failures",
		runID, res.Report.Scanned, len(res.Report.Conflicts), len(res.Report.Ambiguous), len(res.WorkList), len(res.StageFailures))
	a.summary("work list: %s", a.location(out.WorkList))
	a.summary("archive list: %s", a.location(out.ArchiveList))
	return nil
}

func (a *app) bulkCmd() *cobra.Command {
	var (
		runID string
		expr  string
	)
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Queue the sources of derived datasets matching a filter",
		Long: `Select unarchived derived datasets whose software versions or attributes
match every clause of --filter and queue their Level-1 sources.

Supported keys: wagl, fmask, gqa, modtran, eodatasets3, s2cloudless,
ard_pipeline (semantic versions) and maturity, platform, region_code.

Examples:
  sceneselect bulk --derived-product ga_ls8c_ard_3 --filter "wagl<1.2.3 fmask<=1.2.3"
  sceneselect bulk --derived-product ga_ls8c_ard_3 --filter maturity=interim --region 092085`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBulk(cmd.Context(), a.runID(runID), expr)
		},
	}
	f := cmd.Flags()
	f.StringVar(&runID, "run-id", "", "run identifier")
	f.StringVar(&expr, "filter", "", "filter expression (required)")
	f.String("derived-product", "", "derived product to scan")
	f.Int("scene-limit", 0, "maximum scenes to queue (0 = unlimited)")
	f.String("aoi-key", "", "blob key of the area-of-interest list")
	f.StringSlice("region", nil, "additional area-of-interest region codes")
	f.String("output-prefix", "", "blob prefix for run outputs")
	_ = cmd.MarkFlagRequired("filter")
	return cmd
}

func (a *app) runBulk(ctx context.Context, runID, expr string) error {
	parsed, err := filter.Parse(expr)
	if err != nil {
		return err
	}
	if a.cfg.Reprocess.DerivedProduct == "" {
		return errNoDerivedProduct
	}
	cat, closeCat, err := a.openCatalog(ctx)
	if err != nil {
		return err
	}
	defer closeCat()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	regions, err := a.loadAOI(ctx, store)
	if err != nil {
		return err
	}
	sink, closeSink, err := a.decisionSink(runID)
	if err != nil {
		return err
	}
	defer closeSink()
	res, err := filter.NewSelector(cat, a.logger, sink).Select(ctx, filter.BulkRequest{
		DerivedProduct: a.cfg.Reprocess.DerivedProduct,
		Filter:         parsed,
		AOI:            regions,
		SceneLimit:     a.cfg.Selection.SceneLimit,
	})
	if err != nil {
		return fmt.Errorf("bulk selection: %w", err)
	}
	w, err := a.writer(store, runID)
	if err != nil {
		return err
	}
	out, err := w.WriteRun(ctx, a.cfg.Output.WorkList, a.cfg.Output.ArchiveList, worklist.FormatGrouped, worklist.Lists{
		WorkList: res.WorkList, ArchiveIDs: res.ArchiveIDs, ArchiveGroups: res.ArchiveGroups,
	})
	if err != nil {
		return err
	}
	a.summary("run %s: scanned %d, matched %d, queued %d, source unavailable %d",
		runID, res.Scanned, res.Matched, len(res.WorkList), res.Unavailable)
	a.summary("work list: %s", a.location(out.WorkList))
	a.summary("archive list: %s", a.location(out.ArchiveList))
	return nil
}
