package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"sceneselect/internal/aoi"
	"sceneselect/internal/blob"
	"sceneselect/internal/catalog"
	"sceneselect/internal/config"
	"sceneselect/internal/core"
	"sceneselect/internal/decisionlog"
	"sceneselect/internal/infra/persistence/postgres"
	"sceneselect/internal/infra/persistence/sqlite"
	"sceneselect/internal/metrics"
	"sceneselect/internal/worklist"
)

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":         "log.level",
	"log-format":        "log.format",
	"catalog-driver":    "catalog.driver",
	"catalog-dsn":       "catalog.dsn",
	"fixture":           "catalog.fixture",
	"blob-driver":       "blob.driver",
	"blob-root":         "blob.root",
	"product":           "selection.products",
	"scene-limit":       "selection.scene_limit",
	"interim-days-wait": "selection.interim_days_wait",
	"exclude-days":      "selection.exclude_days",
	"aoi-key":           "aoi.key",
	"region":            "aoi.regions",
	"derived-product":   "reprocess.derived_product",
	"staging-dir":       "reprocess.staging_dir",
	"dry-run":           "reprocess.dry_run",
	"output-prefix":     "output.prefix",
	"archive-format":    "output.archive_format",
	"decision-log":      "output.decision_log",
	"metrics-textfile":  "metrics.textfile",
	"walltime":          "jobs.walltime_hours",
	"workers":           "jobs.workers",
	"hours-per-item":    "jobs.hours_per_item",
	"project":           "jobs.project",
	"queue":             "jobs.queue",
	"job-template":      "jobs.template",
}

type app struct {
	stdout, stderr io.Writer
	configPath     string
	cfg            *config.Config
	logger         *slog.Logger
	now            func() time.Time
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, now: time.Now}
	root := &cobra.Command{
		Use:   "sceneselect",
		Short: "Select Level-1 scenes for ARD processing",
		Long: `sceneselect walks the dataset catalogue and decides which Level-1 scenes
to (re)process into analysis ready data.

Configuration is read from --config (YAML), SCENESELECT_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "configuration file (YAML)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("catalog-driver", "", "catalogue backend: memory, sqlite, postgres")
	pf.String("catalog-dsn", "", "sqlite path or postgres URL")
	pf.String("fixture", "", "YAML dataset fixture for the memory catalogue")
	pf.String("blob-driver", "", "blob backend: fs, s3, memory")
	pf.String("blob-root", "", "blob root directory for the fs backend")
	pf.String("decision-log", "", `decision log file ("-" for stdout)`)
	pf.String("metrics-textfile", "", "write Prometheus metrics to this file")

	root.AddCommand(
		a.selectCmd(),
		a.reprocessCmd(),
		a.bulkCmd(),
		a.discoverCmd(),
		a.nodesCmd(),
		a.importCmd(),
		a.archiveCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(a.configPath)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, a.stderr)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

func (a *app) openCatalog(ctx context.Context) (catalog.Catalog, func(), error) {
	c := a.cfg.Catalog
	switch strings.ToLower(c.Driver) {
	case "memory":
		if c.Fixture == "" {
			a.logger.Warn("memory catalogue without fixture is empty")
			return catalog.NewMemory(), func() {}, nil
		}
		mem, err := catalog.LoadFixture(c.Fixture)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("catalogue loaded", "driver", "memory", "datasets", mem.Len())
		return mem, func() {}, nil
	case "sqlite":
		cat, err := sqlite.NewCatalog(ctx, c.DSN)
		if err != nil {
			return nil, nil, err
		}
		return cat, func() { _ = cat.Close() }, nil
	case "postgres":
		cat, err := postgres.NewCatalog(ctx, c.DSN, postgres.Options{MaxElapsed: c.ConnectTimeout})
		if err != nil {
			return nil, nil, err
		}
		return cat, func() { _ = cat.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown catalogue driver %q", c.Driver)
}

func (a *app) openStore(ctx context.Context) (blob.Store, error) {
	return blob.Open(ctx, a.cfg.Blob)
}

// loadAOI returns nil when no AOI is configured so every region is admitted.
func (a *app) loadAOI(ctx context.Context, store blob.Store) (core.RegionSet, error) {
	var codes []string
	if a.cfg.AOI.Key != "" {
		set, err := aoi.Load(ctx, store, a.cfg.AOI.Key)
		if err != nil {
			return nil, err
		}
		codes = set.Codes()
	}
	codes = append(codes, a.cfg.AOI.Regions...)
	if a.cfg.AOI.Key == "" && len(a.cfg.AOI.Regions) == 0 {
		return nil, nil
	}
	set, err := aoi.New(codes...)
	if err != nil {
		return nil, err
	}
	a.logger.Info("area of interest loaded", "regions", set.Len())
	return set, nil
}

func (a *app) runID(flag string) string {
	if flag != "" {
		return flag
	}
	return worklist.NewRunID(a.now())
}

func (a *app) decisionSink(runID string) (*decisionlog.Log, func(), error) {
	switch target := a.cfg.Output.DecisionLog; target {
	case "":
		return decisionlog.New(io.Discard), func() {}, nil
	case "-":
		return decisionlog.New(a.stdout).With("run_id", runID), func() {}, nil
	default:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create decision log dir: %w", err)
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open decision log: %w", err)
		}
		return decisionlog.New(f).With("run_id", runID), func() { _ = f.Close() }, nil
	}
}

// coreOptions assembles the engine options shared by select and reprocess.
func (a *app) coreOptions(sink core.DecisionSink, rec *metrics.Recorder) ([]core.Option, error) {
	policy, err := a.cfg.Policy()
	if err != nil {
		return nil, err
	}
	opts := []core.Option{core.WithLogger(a.logger), core.WithDecisionSink(sink), core.WithPolicy(policy)}
	if rec != nil {
		opts = append(opts, core.WithMetrics(rec))
	}
	return opts, nil
}

func (a *app) metricsRecorder(command string) (*metrics.Recorder, error) {
	if a.cfg.Metrics.Textfile == "" {
		return nil, nil
	}
	return metrics.New(prometheus.Labels{"command": command})
}

func (a *app) flushMetrics(rec *metrics.Recorder) error {
	if rec == nil {
		return nil
	}
	return rec.WriteTextfile(a.cfg.Metrics.Textfile)
}

func (a *app) writer(store blob.Store, runID string) (*worklist.Writer, error) {
	return worklist.NewWriter(store, a.cfg.Output.Prefix, runID)
}

// location renders a blob key the way downstream job scripts address it.
func (a *app) location(key string) string {
	switch blob.Driver(strings.ToLower(a.cfg.Blob.Driver)) {
	case blob.DriverS3:
		return "s3://" + a.cfg.Blob.S3.Bucket + "/" + path.Join(strings.Trim(a.cfg.Blob.S3.Prefix, "/"), key)
	case blob.DriverMemory:
		return key
	default:
		root := a.cfg.Blob.Root
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		return filepath.Join(root, filepath.FromSlash(key))
	}
}

func (a *app) summary(format string, args ...any) {
	fmt.Fprintf(a.stderr, format+"\n", args...)
}

var errNoDerivedProduct = errors.New("derived product required (--derived-product or reprocess.derived_product)")
