// Package ancillary answers whether the auxiliary data needed for a final
// quality ARD product exists for a given acquisition time.
//
// Two stores are consulted through blob listings:
//
//	<brdf_prefix>/YYYY.MM.DD/...                    any object marks the day present
//	<wv_prefix>/pr_wtr.eatm.YYYY/YYYY-MM-DDTHH:MM:SS one object per water vapour observation
package ancillary

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"sceneselect/internal/blob"
)

const (
	// DefaultTolerance bounds how stale the preceding water vapour observation may be.
	DefaultTolerance = 24 * time.Hour
	// DefaultCacheSize bounds the per-oracle readiness memo.
	DefaultCacheSize = 4096

	brdfDayLayout     = "2006.01.02"
	observationLayout = "2006-01-02T15:04:05"
)

// DefaultCutover is the first acquisition day that needs water vapour data.
// Older acquisitions predate the water vapour archive and are always final-ready.
var DefaultCutover = time.Date(2002, time.July, 4, 0, 0, 0, 0, time.UTC)

// Config locates the ancillary stores inside a blob store.
type Config struct {
	BRDFPrefix        string        `mapstructure:"brdf_prefix"`
	WaterVapourPrefix string        `mapstructure:"water_vapour_prefix"`
	Tolerance         time.Duration `mapstructure:"tolerance"`
	Cutover           time.Time     `mapstructure:"cutover"`
	CacheSize         int           `mapstructure:"cache_size"`
}

func (c Config) withDefaults() Config {
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.Cutover.IsZero() {
		c.Cutover = DefaultCutover
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	c.BRDFPrefix = strings.Trim(c.BRDFPrefix, "/")
	c.WaterVapourPrefix = strings.Trim(c.WaterVapourPrefix, "/")
	return c
}

// Readiness is the memoized answer for one acquisition time.
type Readiness struct {
	Final  bool
	Detail string
}

// Oracle reads the ancillary stores and memoizes results for the lifetime of
// one run. Build a new Oracle per run so that newly delivered files are seen.
type Oracle struct {
	store blob.Store
	cfg   Config
	memo  *lru.Cache[int64, Readiness]

	mu    sync.Mutex
	years map[int][]time.Time
}

// New constructs an Oracle over store.
func New(store blob.Store, cfg Config) (*Oracle, error) {
	if store == nil {
		return nil, fmt.Errorf("ancillary store required")
	}
	cfg = cfg.withDefaults()
	memo, err := lru.New[int64, Readiness](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("ancillary memo: %w", err)
	}
	return &Oracle{store: store, cfg: cfg, memo: memo, years: make(map[int][]time.Time)}, nil
}

// Config returns the effective configuration.
func (o *Oracle) Config() Config { return o.cfg }

// Readiness reports whether both ancillary stores can serve a final product
// for an acquisition at t. The detail string explains the verdict.
func (o *Oracle) Readiness(ctx context.Context, t time.Time) (bool, string, error) {
	acq := t.UTC()
	key := acq.UnixNano()
	if r, ok := o.memo.Get(key); ok {
		return r.Final, r.Detail, nil
	}
	r, err := o.evaluate(ctx, acq)
	if err != nil {
		return false, "", err
	}
	o.memo.Add(key, r)
	return r.Final, r.Detail, nil
}

func (o *Oracle) evaluate(ctx context.Context, acq time.Time) (Readiness, error) {
	if acq.Before(o.cfg.Cutover) {
		return Readiness{Final: true, Detail: fmt.Sprintf("acquired before %s cutover", o.cfg.Cutover.Format(time.DateOnly))}, nil
	}
	brdf, err := o.brdfPresent(ctx, acq)
	if err != nil {
		return Readiness{}, err
	}
	wvOK, wvDetail, err := o.waterVapourFresh(ctx, acq)
	if err != nil {
		return Readiness{}, err
	}
	var missing []string
	if !brdf {
		missing = append(missing, "brdf "+acq.Format(brdfDayLayout))
	}
	if !wvOK {
		missing = append(missing, wvDetail)
	}
	if len(missing) > 0 {
		return Readiness{Detail: "missing " + strings.Join(missing, "; ")}, nil
	}
	return Readiness{Final: true, Detail: "brdf and water vapour present"}, nil
}

func (o *Oracle) brdfPresent(ctx context.Context, acq time.Time) (bool, error) {
	prefix := joinPrefix(o.cfg.BRDFPrefix, acq.Format(brdfDayLayout)) + "/"
	infos, err := o.store.List(ctx, prefix)
	if err != nil {
		return false, fmt.Errorf("list brdf %s: %w", prefix, err)
	}
	return len(infos) > 0, nil
}

// waterVapourFresh looks for the nearest observation strictly before acq and
// accepts it when it is no older than the tolerance.
func (o *Oracle) waterVapourFresh(ctx context.Context, acq time.Time) (bool, string, error) {
	earliest := acq.Add(-o.cfg.Tolerance)
	var nearest time.Time
	for year := acq.Year(); year >= earliest.Year(); year-- {
		obs, err := o.observations(ctx, year)
		if err != nil {
			return false, "", err
		}
		i := sort.Search(len(obs), func(i int) bool { return !obs[i].Before(acq) })
		if i > 0 {
			nearest = obs[i-1]
			break
		}
	}
	if nearest.IsZero() {
		return false, "water vapour before " + acq.Format(observationLayout), nil
	}
	if acq.Sub(nearest) > o.cfg.Tolerance {
		return false, fmt.Sprintf("water vapour within %s of %s (nearest %s)", o.cfg.Tolerance, acq.Format(observationLayout), nearest.Format(observationLayout)), nil
	}
	return true, "", nil
}

// observations returns the sorted water vapour index for a year, reading the
// listing once per oracle.
func (o *Oracle) observations(ctx context.Context, year int) ([]time.Time, error) {
	o.mu.Lock()
	cached, ok := o.years[year]
	o.mu.Unlock()
	if ok {
		return cached, nil
	}
	prefix := joinPrefix(o.cfg.WaterVapourPrefix, fmt.Sprintf("pr_wtr.eatm.%d", year)) + "/"
	infos, err := o.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list water vapour %s: %w", prefix, err)
	}
	obs := make([]time.Time, 0, len(infos))
	for _, info := range infos {
		ts, err := time.Parse(observationLayout, path.Base(info.Key))
		if err != nil {
			continue
		}
		obs = append(obs, ts.UTC())
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Before(obs[j]) })
	o.mu.Lock()
	o.years[year] = obs
	o.mu.Unlock()
	return obs, nil
}

func joinPrefix(prefix, elem string) string {
	if prefix == "" {
		return elem
	}
	return path.Join(prefix, elem)
}
