package main

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"sceneselect/internal/ancillary"
	"sceneselect/internal/blob"
	"sceneselect/internal/core"
	"sceneselect/internal/jobscript"
	"sceneselect/internal/worklist"
)

func (a *app) selectCmd() *cobra.Command {
	var (
		runID   string
		emitJob bool
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Admit Level-1 scenes into a work list",
		Long: `Evaluate every Level-1 dataset of the configured products and write the
admitted archive paths to <output.prefix>/<run-id>/<output.work_list>.

Examples:
  sceneselect select --config prod.yaml --product usgs_ls8c_level1_1 --scene-limit 400
  sceneselect select --region 092085 --region 092086 --emit-job --project v10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSelect(cmd.Context(), a.runID(runID), emitJob)
		},
	}
	f := cmd.Flags()
	f.StringVar(&runID, "run-id", "", "run identifier (default: timestamp plus random suffix)")
	f.BoolVar(&emitJob, "emit-job", false, "also write a PBS job script next to the work list")
	f.StringSlice("product", nil, "Level-1 products to evaluate")
	f.Int("scene-limit", 0, "maximum scenes to admit (0 = unlimited)")
	f.Int("interim-days-wait", 0, "days after acquisition to process without final ancillary data (0 = never)")
	f.StringSlice("exclude-days", nil, "exclusion windows YYYY-MM-DD[:YYYY-MM-DD]")
	f.String("aoi-key", "", "blob key of the area-of-interest list")
	f.StringSlice("region", nil, "additional area-of-interest region codes")
	f.String("output-prefix", "", "blob prefix for run outputs")
	f.String("archive-format", "", "archive list format: plain or grouped")
	f.Float64("walltime", 0, "job walltime in hours")
	f.Int("workers", 0, "workers per node")
	f.Float64("hours-per-item", 0, "processing hours per scene")
	f.String("project", "", "PBS project")
	f.String("queue", "", "PBS queue")
	f.String("job-template", "", "job script template file")
	return cmd
}

func (a *app) runSelect(ctx context.Context, runID string, emitJob bool) error {
	cat, closeCat, err := a.openCatalog(ctx)
	if err != nil {
		return err
	}
	defer closeCat()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	ancStore := store
	if a.cfg.Ancillary.Store.Driver != "" {
		if ancStore, err = blob.Open(ctx, a.cfg.AncillaryStore()); err != nil {
			return fmt.Errorf("open ancillary store: %w", err)
		}
	}
	oc, err := a.cfg.OracleConfig()
	if err != nil {
		return err
	}
	oracle, err := ancillary.New(ancStore, oc)
	if err != nil {
		return err
	}
	exclusions, err := a.cfg.Exclusions()
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
	rec, err := a.metricsRecorder("select")
	if err != nil {
		return err
	}
	opts, err := a.coreOptions(sink, rec)
	if err != nil {
		return err
	}
	engine, err := core.NewEngine(cat, oracle, opts...)
	if err != nil {
		return err
	}
	res, err := engine.Run(ctx, core.Request{
		Products:   a.cfg.Selection.Products,
		AOI:        regions,
		Exclusions: exclusions,
		SceneLimit: a.cfg.Selection.SceneLimit,
	})
	if err != nil {
		return fmt.Errorf("admission run: %w", err)
	}

	format, err := worklist.ParseFormat(a.cfg.Output.ArchiveFormat)
	if err != nil {
		return err
	}
	w, err := a.writer(store, runID)
	if err != nil {
		return err
	}
	out, err := w.WriteRun(ctx, a.cfg.Output.WorkList, a.cfg.Output.ArchiveList, format, worklist.Lists{
		WorkList: res.WorkList, ArchiveIDs: res.ArchiveIDs, ArchiveGroups: res.ArchiveGroups,
	})
	if err != nil {
		return err
	}
	if emitJob {
		if err := a.emitJob(ctx, store, out, len(res.WorkList)); err != nil {
			return err
		}
	}
	if err := a.flushMetrics(rec); err != nil {
		return err
	}
	a.summary("run %s: %d admitted, %d rejected, %d promoted", runID, res.Admitted, res.Rejected, len(res.Promoted))
	a.summary("work list: %s", a.location(out.WorkList))
	a.summary("archive list: %s", a.location(out.ArchiveList))
	for _, p := range res.SkippedProducts {
		a.summary("skipped unknown product %s", p)
	}
	return nil
}

func (a *app) emitJob(ctx context.Context, store blob.Store, out worklist.Outputs, count int) error {
	if count == 0 {
		a.logger.Info("no scenes admitted, job script not written", "run_id", out.RunID)
		return nil
	}
	jc := a.cfg.Jobs
	est, err := jobscript.NodesRequired(count, jc.WalltimeHours, jc.Workers, jc.HoursPerItem)
	if err != nil {
		return err
	}
	if est.Warning != "" {
		a.logger.Warn("job may not fit in walltime", "detail", est.Warning)
	}
	emitter, err := jobscript.LoadEmitter(jc.Template)
	if err != nil {
		return err
	}
	runDir := path.Dir(out.WorkList)
	var buf bytes.Buffer
	err = emitter.Emit(&buf, jobscript.Job{
		Name:          "sceneselect-" + out.RunID,
		Project:       jc.Project,
		Queue:         jc.Queue,
		Storage:       jc.Storage,
		WalltimeHours: jc.WalltimeHours,
		Workers:       jc.Workers,
		CPUsPerNode:   jc.CPUsPerNode,
		MemoryGB:      jc.MemoryGB,
		JobFSGB:       jc.JobFSGB,
		Nodes:         est.Nodes,
		Items:         count,
		WorkList:      a.location(out.WorkList),
		OutputDir:     a.location(runDir),
		Command:       jc.Command,
		Env:           jc.Env,
	})
	if err != nil {
		return err
	}
	key := path.Join(runDir, "job.pbs")
	if _, err := blob.PutBytes(ctx, store, key, buf.Bytes(), "text/x-shellscript"); err != nil {
		return fmt.Errorf("write job script: %w", err)
	}
	a.summary("job script: %s (%d nodes)", a.location(key), est.Nodes)
	return nil
}
