// Package config loads sceneselect configuration from an optional YAML file,
// SCENESELECT_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sceneselect/internal/ancillary"
	"sceneselect/internal/blob"
	"sceneselect/internal/core"
	"sceneselect/internal/worklist"
	"sceneselect/pkg/domain"
)

// EnvPrefix prefixes every environment override, e.g. SCENESELECT_CATALOG_DSN.
const EnvPrefix = "SCENESELECT"

// Config is the full application configuration.
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Blob      blob.Config     `mapstructure:"blob"`
	AOI       AOIConfig       `mapstructure:"aoi"`
	Ancillary AncillaryConfig `mapstructure:"ancillary"`
	Selection SelectionConfig `mapstructure:"selection"`
	Reprocess ReprocessConfig `mapstructure:"reprocess"`
	Output    OutputConfig    `mapstructure:"output"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// CatalogConfig selects the catalogue backend.
type CatalogConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite, postgres
	DSN    string `mapstructure:"dsn"`    // postgres URL or sqlite file path
	// Fixture is a YAML dataset file loaded into the memory catalogue.
	Fixture        string        `mapstructure:"fixture"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// AOIConfig names the area of interest: a blob key, inline regions, or both.
type AOIConfig struct {
	Key     string   `mapstructure:"key"`
	Regions []string `mapstructure:"regions"`
}

// AncillaryConfig locates BRDF and water vapour data. Store, when its driver
// is set, overrides the main blob store for ancillary reads.
type AncillaryConfig struct {
	Store             blob.Config   `mapstructure:"store"`
	BRDFPrefix        string        `mapstructure:"brdf_prefix"`
	WaterVapourPrefix string        `mapstructure:"water_vapour_prefix"`
	Tolerance         time.Duration `mapstructure:"tolerance"`
	Cutover           string        `mapstructure:"cutover"` // YYYY-MM-DD
	CacheSize         int           `mapstructure:"cache_size"`
}

// SelectionConfig drives the admission pipeline.
type SelectionConfig struct {
	Products            []string `mapstructure:"products"`
	SceneLimit          int      `mapstructure:"scene_limit"`
	InterimDaysWait     int      `mapstructure:"interim_days_wait"`
	ExcludeDays         []string `mapstructure:"exclude_days"`
	InterimBypass       bool     `mapstructure:"interim_bypass"`
	DuplicateResolution string   `mapstructure:"duplicate_resolution"`
}

// ReprocessConfig drives the conflict and bulk flows.
type ReprocessConfig struct {
	DerivedProduct string `mapstructure:"derived_product"`
	StagingDir     string `mapstructure:"staging_dir"`
	DryRun         bool   `mapstructure:"dry_run"`
}

// OutputConfig names the run outputs within the blob store.
type OutputConfig struct {
	Prefix        string `mapstructure:"prefix"`
	WorkList      string `mapstructure:"work_list"`
	ArchiveList   string `mapstructure:"archive_list"`
	ArchiveFormat string `mapstructure:"archive_format"` // plain, grouped
	DecisionLog   string `mapstructure:"decision_log"`   // path, or "-" for stdout
}

// JobsConfig sizes and renders PBS job scripts.
type JobsConfig struct {
	WalltimeHours float64  `mapstructure:"walltime_hours"`
	Workers       int      `mapstructure:"workers"`
	HoursPerItem  float64  `mapstructure:"hours_per_item"`
	Project       string   `mapstructure:"project"`
	Queue         string   `mapstructure:"queue"`
	Storage       string   `mapstructure:"storage"`
	CPUsPerNode   int      `mapstructure:"cpus_per_node"`
	MemoryGB      int      `mapstructure:"memory_gb"`
	JobFSGB       int      `mapstructure:"jobfs_gb"`
	Command       string   `mapstructure:"command"`
	Template      string   `mapstructure:"template"`
	Env           []string `mapstructure:"env"`
}

// LogConfig configures operational logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.driver", "memory")
	v.SetDefault("catalog.dsn", "")
	v.SetDefault("catalog.fixture", "")
	v.SetDefault("catalog.connect_timeout", 30*time.Second)

	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.root", "./blobdata")
	v.SetDefault("blob.s3.region", "ap-southeast-2")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.prefix", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)

	v.SetDefault("aoi.key", "")
	v.SetDefault("aoi.regions", []string{})

	v.SetDefault("ancillary.store.driver", "")
	v.SetDefault("ancillary.store.root", "")
	v.SetDefault("ancillary.brdf_prefix", "brdf")
	v.SetDefault("ancillary.water_vapour_prefix", "water_vapour")
	v.SetDefault("ancillary.tolerance", ancillary.DefaultTolerance)
	v.SetDefault("ancillary.cutover", ancillary.DefaultCutover.Format(time.DateOnly))
	v.SetDefault("ancillary.cache_size", ancillary.DefaultCacheSize)

	v.SetDefault("selection.products", []string{"usgs_ls5t_level1_1", "usgs_ls7e_level1_1", "usgs_ls8c_level1_1"})
	v.SetDefault("selection.scene_limit", 0)
	v.SetDefault("selection.interim_days_wait", 0)
	v.SetDefault("selection.exclude_days", []string{})
	v.SetDefault("selection.interim_bypass", true)
	v.SetDefault("selection.duplicate_resolution", string(core.DuplicatePreferFinal))

	v.SetDefault("reprocess.derived_product", "")
	v.SetDefault("reprocess.staging_dir", "")
	v.SetDefault("reprocess.dry_run", false)

	v.SetDefault("output.prefix", "runs")
	v.SetDefault("output.work_list", worklist.DefaultWorkListName)
	v.SetDefault("output.archive_list", worklist.DefaultArchiveListName)
	v.SetDefault("output.archive_format", string(worklist.FormatPlain))
	v.SetDefault("output.decision_log", "-")

	v.SetDefault("jobs.walltime_hours", 10.0)
	v.SetDefault("jobs.workers", 48)
	v.SetDefault("jobs.hours_per_item", 1.5)
	v.SetDefault("jobs.project", "")
	v.SetDefault("jobs.queue", "normal")
	v.SetDefault("jobs.storage", "")
	v.SetDefault("jobs.cpus_per_node", 48)
	v.SetDefault("jobs.memory_gb", 192)
	v.SetDefault("jobs.jobfs_gb", 400)
	v.SetDefault("jobs.command", "ard_pbs")
	v.SetDefault("jobs.template", "")
	v.SetDefault("jobs.env", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.textfile", "")
}

// NewViper returns a viper instance with defaults, the optional config file
// and environment overrides applied. Callers bind flags before Decode.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Load reads configuration without flag bindings.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Catalog.Driver) {
	case "memory":
	case "sqlite":
	case "postgres":
		if c.Catalog.DSN == "" {
			errs = append(errs, errors.New("catalog.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalog.driver %q must be memory, sqlite or postgres", c.Catalog.Driver))
	}
	errs = append(errs, validateBlob("blob", c.Blob, false)...)
	errs = append(errs, validateBlob("ancillary.store", c.Ancillary.Store, true)...)
	if _, err := c.OracleConfig(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range c.Selection.Products {
		if _, err := domain.LookupProduct(p); err != nil {
			errs = append(errs, fmt.Errorf("selection.products: %w", err))
		}
	}
	if c.Selection.SceneLimit < 0 {
		errs = append(errs, errors.New("selection.scene_limit must not be negative"))
	}
	if c.Selection.InterimDaysWait < 0 {
		errs = append(errs, errors.New("selection.interim_days_wait must not be negative"))
	}
	if _, err := domain.ParseExclusionWindows(c.Selection.ExcludeDays); err != nil {
		errs = append(errs, fmt.Errorf("selection.exclude_days: %w", err))
	}
	if _, err := core.ParseDuplicateResolution(c.Selection.DuplicateResolution); err != nil {
		errs = append(errs, fmt.Errorf("selection.duplicate_resolution: %w", err))
	}
	if _, err := worklist.ParseFormat(c.Output.ArchiveFormat); err != nil {
		errs = append(errs, fmt.Errorf("output.archive_format: %w", err))
	}
	if c.Jobs.Workers <= 0 {
		errs = append(errs, errors.New("jobs.workers must be positive"))
	}
	if c.Jobs.WalltimeHours < 0 || c.Jobs.HoursPerItem < 0 {
		errs = append(errs, errors.New("jobs hours must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is invalid", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}

func validateBlob(section string, b blob.Config, optional bool) []error {
	switch blob.Driver(strings.ToLower(b.Driver)) {
	case "":
		if optional {
			return nil
		}
		return []error{fmt.Errorf("%s.driver is required", section)}
	case blob.DriverFilesystem, blob.DriverMemory:
		return nil
	case blob.DriverS3:
		if b.S3.Bucket == "" {
			return []error{fmt.Errorf("%s.s3.bucket is required for s3", section)}
		}
		return nil
	}
	return []error{fmt.Errorf("%s.driver %q must be fs, s3 or memory", section, b.Driver)}
}

// OracleConfig converts the ancillary section.
func (c *Config) OracleConfig() (ancillary.Config, error) {
	out := ancillary.Config{
		BRDFPrefix:        c.Ancillary.BRDFPrefix,
		WaterVapourPrefix: c.Ancillary.WaterVapourPrefix,
		Tolerance:         c.Ancillary.Tolerance,
		CacheSize:         c.Ancillary.CacheSize,
	}
	if c.Ancillary.Cutover != "" {
		t, err := time.Parse(time.DateOnly, c.Ancillary.Cutover)
		if err != nil {
			return ancillary.Config{}, fmt.Errorf("ancillary.cutover %q: want YYYY-MM-DD", c.Ancillary.Cutover)
		}
		out.Cutover = t
	}
	return out, nil
}

// AncillaryStore returns the blob configuration ancillary data is read from.
func (c *Config) AncillaryStore() blob.Config {
	if c.Ancillary.Store.Driver != "" {
		return c.Ancillary.Store
	}
	return c.Blob
}

// Policy builds the admission policy.
func (c *Config) Policy() (core.Policy, error) {
	res, err := core.ParseDuplicateResolution(c.Selection.DuplicateResolution)
	if err != nil {
		return core.Policy{}, err
	}
	return core.Policy{
		InterimBypass:       c.Selection.InterimBypass,
		DuplicateResolution: res,
		InterimWait:         time.Duration(c.Selection.InterimDaysWait) * 24 * time.Hour,
	}, nil
}

// Exclusions parses the configured exclusion windows.
func (c *Config) Exclusions() ([]domain.ExclusionWindow, error) {
	return domain.ParseExclusionWindows(c.Selection.ExcludeDays)
}
