package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sceneselect/internal/catalog"
	"sceneselect/pkg/domain"
)

var runNow = time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() ClockFunc { return func() time.Time { return runNow } }

// l8 builds a Landsat 8 Level-1 candidate acquired on the given day of August 2020.
func l8(id, pathRow string, day int) domain.Dataset {
	acq := time.Date(2020, 8, day, 0, 11, 39, 0, time.UTC)
	label := fmt.Sprintf("LC08_L1TP_%s_%s_20200821_01_T1", pathRow, acq.Format("20060102"))
	return domain.Dataset{
		ID:         id,
		Product:    "usgs_ls8c_level1_1",
		Label:      label,
		SceneID:    sceneID(pathRow, acq),
		RegionCode: pathRow,
		Begin:      acq.Add(-30 * time.Second),
		End:        acq,
		LocalPath:  "/data/l1/" + label + ".odc-metadata.yaml",
	}
}

func sceneID(pathRow string, acq time.Time) string {
	return fmt.Sprintf("LC8%s%04d%03dASA00", pathRow, acq.Year(), acq.YearDay())
}

func ard(id string, source domain.Dataset, maturity domain.Maturity) domain.Dataset {
	return domain.Dataset{
		ID:         id,
		Product:    "ga_ls8c_ard_3",
		SceneID:    source.SceneID,
		RegionCode: source.RegionCode,
		End:        source.End,
		Maturity:   maturity,
		SourceIDs:  []string{source.ID},
		LocalPath:  "/data/ard/" + id + "/" + id + ".odc-metadata.yaml",
		ProducedAt: source.End.Add(48 * time.Hour),
	}
}

func archived(ds domain.Dataset) domain.Dataset {
	at := runNow.Add(-time.Hour)
	ds.ArchivedAt = &at
	return ds
}

type fakeOracle struct {
	mu    sync.Mutex
	ready bool
	err   error
	calls int
}

func (o *fakeOracle) Readiness(_ context.Context, _ time.Time) (bool, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return false, "", o.err
	}
	if o.ready {
		return true, "ready", nil
	}
	return false, "missing water vapour", nil
}

func (o *fakeOracle) set(ready bool) {
	o.mu.Lock()
	o.ready = ready
	o.mu.Unlock()
}

type regions map[string]bool

func (r regions) Contains(code string) bool { return r[code] }

type captureSink struct {
	decisions []domain.Decision
}

func (s *captureSink) Record(_ context.Context, d domain.Decision) {
	s.decisions = append(s.decisions, d)
}

func (s *captureSink) byID() map[string]domain.Decision {
	out := make(map[string]domain.Decision, len(s.decisions))
	for _, d := range s.decisions {
		out[d.DatasetID] = d
	}
	return out
}

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

type failingCatalog struct {
	*catalog.Memory
	searchErr  error
	derivedErr error
}

func (f failingCatalog) SearchProduct(ctx context.Context, product string) (catalog.Iterator, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.Memory.SearchProduct(ctx, product)
}

func (f failingCatalog) Derived(ctx context.Context, id string) ([]domain.Dataset, error) {
	if f.derivedErr != nil {
		return nil, f.derivedErr
	}
	return f.Memory.Derived(ctx, id)
}

type harness struct {
	cat    *catalog.Memory
	oracle *fakeOracle
	sink   *captureSink
	logger *recordingLogger
	policy Policy
}

func newHarness(datasets ...domain.Dataset) *harness {
	return &harness{
		cat:    catalog.NewMemory(datasets...),
		oracle: &fakeOracle{ready: true},
		sink:   &captureSink{},
		logger: &recordingLogger{},
		policy: DefaultPolicy(),
	}
}

func (h *harness) engine() *Engine {
	e, err := NewEngine(h.cat, h.oracle,
		WithClock(fixedClock()), WithDecisionSink(h.sink), WithLogger(h.logger), WithPolicy(h.policy))
	if err != nil {
		panic(err)
	}
	return e
}

func (h *harness) run(req Request) (RunResult, error) {
	h.sink.decisions = nil
	if req.Products == nil {
		req.Products = []string{"usgs_ls8c_level1_1"}
	}
	return h.engine().Run(context.Background(), req)
}
