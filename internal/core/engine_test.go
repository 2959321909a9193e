package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"sceneselect/internal/catalog"
	"sceneselect/internal/scene"
	"sceneselect/pkg/domain"
)

func TestEngineAdmitsReadyScene(t *testing.T) {
	cand := l8("a", "092085", 10)
	h := newHarness(cand)
	res, err := h.run(Request{AOI: regions{"092085": true}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "/data/l1/LC08_L1TP_092085_20200810_20200821_01_T1.tar"
	if len(res.WorkList) != 1 || res.WorkList[0] != want {
		t.Fatalf("unexpected work list %v", res.WorkList)
	}
	d := h.sink.byID()["a"]
	if !d.Admitted() || d.Reason != domain.ReasonFinal || d.Maturity != domain.MaturityFinal {
		t.Fatalf("unexpected decision %+v", d)
	}
	if res.Rejected != 0 || len(res.ArchiveIDs) != 0 {
		t.Fatalf("expected no rejections or archive ids: %+v", res)
	}
}

func TestEngineRejectsUnsupportedCorrectionLevel(t *testing.T) {
	cand := domain.Dataset{
		ID: "a", Product: "usgs_ls7e_level1_1", Label: "LE07_L1GT_108073_20201208_20210103_01_T2",
		SceneID: "LE71080732020343ASA00", RegionCode: "108073",
		End: time.Date(2020, 12, 8, 1, 0, 0, 0, time.UTC), LocalPath: "/data/l1/LE07_L1GT_108073_20201208_20210103_01_T2.tar",
	}
	h := newHarness(cand)
	res, err := h.run(Request{Products: []string{"usgs_ls7e_level1_1"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.WorkList) != 0 {
		t.Fatalf("expected empty work list, got %v", res.WorkList)
	}
	if d := h.sink.byID()["a"]; d.Reason != domain.ReasonProcessingLevel || d.Event() != "scene removed" {
		t.Fatalf("unexpected decision %+v", d)
	}
	if h.oracle.calls != 0 {
		t.Fatalf("later stages must not run after a rejection")
	}
}

func TestEngineStageOrder(t *testing.T) {
	outside := l8("outside", "100100", 10)
	outside.LocalPath = ""
	noPath := l8("nopath", "092085", 11)
	noPath.LocalPath = ""
	h := newHarness(outside, noPath)
	if _, err := h.run(Request{AOI: regions{"092085": true}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := h.sink.byID()
	if got["outside"].Reason != domain.ReasonRegionNotInAOI {
		t.Fatalf("region check precedes local path check, got %q", got["outside"].Reason)
	}
	if got["nopath"].Reason != domain.ReasonNoLocalPath {
		t.Fatalf("expected local path rejection, got %q", got["nopath"].Reason)
	}
}

func TestEngineRegionCodesAreNormalized(t *testing.T) {
	cand := l8("a", "092085", 10)
	cand.RegionCode = "92/85"
	h := newHarness(cand)
	res, err := h.run(Request{AOI: regions{"092085": true}})
	if err != nil || res.Admitted != 1 {
		t.Fatalf("expected admission after normalization: %+v %v", res, err)
	}
}

func TestEngineAncillaryWaitAndInterimFallback(t *testing.T) {
	cand := l8("a", "092085", 10) // 22 days before runNow
	h := newHarness(cand)
	h.oracle.set(false)

	res, _ := h.run(Request{})
	if d := h.sink.byID()["a"]; d.Reason != domain.ReasonAncillaryNotReady || res.Admitted != 0 {
		t.Fatalf("interim fallback disabled by default, got %+v", d)
	}

	h.policy.InterimWait = 30 * 24 * time.Hour
	_, _ = h.run(Request{})
	if d := h.sink.byID()["a"]; d.Reason != domain.ReasonAncillaryNotReady {
		t.Fatalf("within wait threshold should retry later, got %+v", d)
	}

	h.policy.InterimWait = 7 * 24 * time.Hour
	res, _ = h.run(Request{})
	d := h.sink.byID()["a"]
	if !d.Admitted() || d.Reason != domain.ReasonProcessInterim || d.Maturity != domain.MaturityInterim {
		t.Fatalf("expected interim admission, got %+v", d)
	}
	if d.Detail != "missing water vapour" {
		t.Fatalf("readiness detail should be carried, got %q", d.Detail)
	}
	if len(res.WorkList) != 1 {
		t.Fatalf("unexpected work list %v", res.WorkList)
	}
}

func TestEngineOracleErrorRejectsCandidate(t *testing.T) {
	h := newHarness(l8("a", "092085", 10), l8("b", "092086", 10))
	h.oracle.err = errors.New("listing failed")
	res, err := h.run(Request{})
	if err != nil {
		t.Fatalf("oracle errors must not abort the run: %v", err)
	}
	if res.Rejected != 2 || res.Counts[domain.ReasonAncillaryNotReady] != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !h.logger.has("warn", "ancillary lookup failed") {
		t.Fatalf("expected warning for oracle failure")
	}
}

func TestEngineExclusionWindowAndInterimBypass(t *testing.T) {
	cand := l8("a", "092085", 10)
	window, err := domain.ParseExclusionWindow("2020-08-10")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	req := Request{Exclusions: []domain.ExclusionWindow{window}}

	h := newHarness(cand)
	_, _ = h.run(req)
	if d := h.sink.byID()["a"]; d.Reason != domain.ReasonExcludedDay {
		t.Fatalf("expected exclusion, got %+v", d)
	}

	h.oracle.set(false)
	h.policy.InterimWait = 24 * time.Hour
	_, _ = h.run(req)
	if d := h.sink.byID()["a"]; !d.Admitted() || d.Reason != domain.ReasonProcessInterim {
		t.Fatalf("interim candidates bypass exclusion by default, got %+v", d)
	}

	h.policy.InterimBypass = false
	_, _ = h.run(req)
	if d := h.sink.byID()["a"]; d.Reason != domain.ReasonExcludedDay {
		t.Fatalf("without bypass exclusion applies to interim candidates, got %+v", d)
	}
}

func TestEngineExclusionBoundary(t *testing.T) {
	window, _ := domain.ParseExclusionWindow("2020-08-01:2020-08-09")
	last := l8("last", "092085", 9)
	last.End = time.Date(2020, 8, 9, 23, 59, 59, 999999000, time.UTC)
	next := l8("next", "092086", 10)
	next.End = time.Date(2020, 8, 10, 0, 0, 0, 0, time.UTC)
	h := newHarness(last, next)
	_, _ = h.run(Request{Exclusions: []domain.ExclusionWindow{window}})
	got := h.sink.byID()
	if got["last"].Reason != domain.ReasonExcludedDay {
		t.Fatalf("end-of-day must be excluded, got %+v", got["last"])
	}
	if !got["next"].Admitted() {
		t.Fatalf("one microsecond after end-of-day must be admitted, got %+v", got["next"])
	}
}

func TestEnginePriorProduction(t *testing.T) {
	done := l8("done", "092085", 10)
	interim := l8("interim", "092086", 10)
	h := newHarness(done, interim, ard("ard-done", done, domain.MaturityFinal), ard("ard-interim", interim, domain.MaturityInterim))

	res, err := h.run(Request{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := h.sink.byID()
	if got["done"].Reason != domain.ReasonAlreadyProcessed {
		t.Fatalf("final derived dataset blocks re-admission, got %+v", got["done"])
	}
	d := got["interim"]
	if !d.Admitted() || d.Reason != domain.ReasonInterimToFinal {
		t.Fatalf("interim derived dataset should be promoted, got %+v", d)
	}
	if !reflect.DeepEqual(d.ArchiveIDs, []string{"ard-interim"}) || !reflect.DeepEqual(res.ArchiveIDs, []string{"ard-interim"}) {
		t.Fatalf("interim dataset should be queued once for archival: %v %v", d.ArchiveIDs, res.ArchiveIDs)
	}
	if len(res.Promoted) != 1 || res.Promoted[0] != res.WorkList[0] {
		t.Fatalf("promoted list should hold the work-list entry: %+v", res)
	}
	if len(res.ArchiveGroups) != 1 || res.ArchiveGroups[0].Level1Path != res.WorkList[0] {
		t.Fatalf("unexpected archive groups %+v", res.ArchiveGroups)
	}
}

func TestEngineArchivedDerivedDatasetsAreIgnored(t *testing.T) {
	cand := l8("a", "092085", 10)
	h := newHarness(cand, archived(ard("old", cand, domain.MaturityFinal)))
	res, err := h.run(Request{})
	if err != nil || res.Admitted != 1 {
		t.Fatalf("archived derived datasets neither index nor block: %+v %v", res, err)
	}
}

func TestEngineBadSceneFormat(t *testing.T) {
	cand := l8("a", "092085", 10)
	cand.SceneID = "LC80920852020223"
	h := newHarness(cand)
	_, err := h.run(Request{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if d := h.sink.byID()["a"]; d.Reason != domain.ReasonBadSceneFormat {
		t.Fatalf("expected bad scene format, got %+v", d)
	}
}

func TestEngineChildBlocking(t *testing.T) {
	cand := l8("a", "092085", 10)
	child := ard("child", cand, domain.MaturityFinal)
	// A child under a different capture identity escapes the index but is still live.
	child.SceneID = "LC80920852020224ASA00"
	h := newHarness(cand, child)
	_, _ = h.run(Request{})
	if d := h.sink.byID()["a"]; d.Reason != domain.ReasonHasChildren {
		t.Fatalf("expected child blocking, got %+v", d)
	}

	h.oracle.set(false)
	h.policy.InterimWait = time.Hour
	_, _ = h.run(Request{})
	if d := h.sink.byID()["a"]; !d.Admitted() || d.Reason != domain.ReasonProcessInterim {
		t.Fatalf("interim fallback bypasses child blocking by default, got %+v", d)
	}
	h.policy.InterimBypass = false
	_, _ = h.run(Request{})
	if d := h.sink.byID()["a"]; d.Reason != domain.ReasonHasChildren {
		t.Fatalf("without bypass children block interim candidates, got %+v", d)
	}
}

func TestEnginePromotionMonotonicity(t *testing.T) {
	cand := l8("a", "092085", 10)
	h := newHarness(cand, ard("interim", cand, domain.MaturityInterim))
	h.policy.InterimWait = time.Hour
	h.policy.InterimBypass = true
	h.oracle.set(false)

	res, _ := h.run(Request{})
	if res.Admitted != 0 {
		t.Fatalf("not promoted before final readiness: %+v", h.sink.decisions)
	}
	if d := h.sink.byID()["a"]; d.Reason != domain.ReasonAlreadyProcessed {
		t.Fatalf("interim fallback still honours prior production, got %+v", d)
	}

	h.oracle.set(true)
	res, _ = h.run(Request{})
	if res.Admitted != 1 || h.sink.byID()["a"].Reason != domain.ReasonInterimToFinal {
		t.Fatalf("promoted once final-ready: %+v", h.sink.decisions)
	}
}

func TestEngineSceneLimit(t *testing.T) {
	var datasets []domain.Dataset
	codes := []string{"092081", "092082", "092083", "092084", "092085"}
	for i, code := range codes {
		datasets = append(datasets, l8(code, code, 10+i))
	}
	h := newHarness(datasets...)
	res, err := h.run(Request{SceneLimit: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Admitted != 3 || len(res.WorkList) != 3 {
		t.Fatalf("expected 3 admissions, got %+v", res)
	}
	for i, d := range h.sink.decisions {
		if i < 3 && (!d.Admitted() || d.DatasetID != codes[i]) {
			t.Fatalf("first three in catalogue order must be admitted, got %+v", d)
		}
		if i >= 3 && d.Reason != domain.ReasonSceneLimit {
			t.Fatalf("remaining must be capped, got %+v", d)
		}
	}
	if res.Counts[domain.ReasonSceneLimit] != 2 {
		t.Fatalf("expected two capped scenes, got %d", res.Counts[domain.ReasonSceneLimit])
	}
}

func TestEngineIdempotent(t *testing.T) {
	base := l8("a", "092085", 10)
	h := newHarness(
		base, l8("b", "092086", 11), l8("c", "100100", 12),
		ard("ard-a", base, domain.MaturityFinal),
	)
	req := Request{AOI: regions{"092085": true, "092086": true}}
	first, err := h.run(req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	firstDecisions := append([]domain.Decision(nil), h.sink.decisions...)
	second, _ := h.run(req)
	if !reflect.DeepEqual(first.WorkList, second.WorkList) || !reflect.DeepEqual(first.Counts, second.Counts) {
		t.Fatalf("runs differ: %+v vs %+v", first, second)
	}
	if !reflect.DeepEqual(firstDecisions, h.sink.decisions) {
		t.Fatalf("decisions differ between runs")
	}
}

func TestEngineSameCaptureAdmittedOncePerRun(t *testing.T) {
	a := l8("a", "092085", 10)
	b := l8("b", "092085", 10)
	b.SceneID = b.SceneID[:16] + "LGN00"
	h := newHarness(a, b)
	res, _ := h.run(Request{})
	if res.Admitted != 1 || h.sink.byID()["b"].Reason != domain.ReasonAlreadyProcessed {
		t.Fatalf("second ground-station copy must not be admitted: %+v", h.sink.decisions)
	}
}

func TestEngineUnknownAndUnmappedProducts(t *testing.T) {
	s2 := domain.Dataset{
		ID: "s2", Product: "esa_s2am_level1_0", Label: "S2A_MSIL1C_20200810T001109_N0209_R073_T55HBU_20200810T014432",
		RegionCode: "T55HBU", End: time.Date(2020, 8, 10, 0, 11, 9, 0, time.UTC),
		LocalPath: "/data/s2/S2A_MSIL1C_20200810T001109_N0209_R073_T55HBU_20200810T014432.odc-metadata.yaml",
	}
	h := newHarness(s2)
	res, err := h.run(Request{Products: []string{"no_such_product", "esa_s2am_level1_0"}, AOI: regions{"55HBU": true}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(res.SkippedProducts, []string{"no_such_product"}) {
		t.Fatalf("unknown product should be skipped, got %v", res.SkippedProducts)
	}
	if len(res.WorkList) != 1 || res.WorkList[0] != "/data/s2/S2A_MSIL1C_20200810T001109_N0209_R073_T55HBU_20200810T014432.zip" {
		t.Fatalf("unexpected work list %v", res.WorkList)
	}
	if !h.logger.has("warn", "no derived product mapping, prior-production check disabled") {
		t.Fatalf("expected unmapped product warning")
	}
}

func TestEngineFatalErrors(t *testing.T) {
	cand := l8("a", "092085", 10)
	bad := ard("bad", cand, domain.MaturityFinal)
	bad.SceneID = "short"
	h := newHarness(cand, bad)
	_, err := h.run(Request{})
	var malformed *scene.MalformedIdentifierError
	if !errors.Is(err, ErrFatal) || !errors.As(err, &malformed) {
		t.Fatalf("malformed derived scene id must abort the run, got %v", err)
	}

	mem := catalog.NewMemory(cand)
	for name, cat := range map[string]catalog.Catalog{
		"search":  failingCatalog{Memory: mem, searchErr: errors.New("connection refused")},
		"derived": failingCatalog{Memory: mem, derivedErr: errors.New("connection reset")},
	} {
		e, _ := NewEngine(cat, &fakeOracle{ready: true})
		if _, err := e.Run(context.Background(), Request{Products: []string{"usgs_ls8c_level1_1"}}); !errors.Is(err, ErrFatal) {
			t.Fatalf("%s: catalogue failures are fatal, got %v", name, err)
		}
	}
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	if _, err := NewEngine(nil, &fakeOracle{}); err == nil {
		t.Fatalf("expected catalogue error")
	}
	if _, err := NewEngine(catalog.NewMemory(), nil); err == nil {
		t.Fatalf("expected oracle error")
	}
}
