package core

import (
	"context"
	"testing"
	"time"

	"sceneselect/internal/catalog"
	"sceneselect/pkg/domain"
)

func supersessionFixture() (old, replacement domain.Dataset, derived domain.Dataset) {
	old = archived(l8("old", "092085", 10))
	replacement = l8("new", "092085", 10)
	replacement.Product = "ga_ls8c_level1_3"
	replacement.End = old.End.Add(2 * time.Hour)
	derived = ard("ard", old, domain.MaturityFinal)
	return old, replacement, derived
}

func TestSupersessionSingleReplacement(t *testing.T) {
	old, replacement, derived := supersessionFixture()
	r := NewResolver(catalog.NewMemory(old, replacement, derived))
	conflict, ambiguous, err := r.Supersession(context.Background(), derived)
	if err != nil || ambiguous != nil {
		t.Fatalf("unexpected result %v %v", ambiguous, err)
	}
	if conflict == nil || conflict.Blocked.ID != "new" || conflict.Source.ID != "old" || conflict.Derived.ID != "ard" {
		t.Fatalf("expected conflict with replacement, got %+v", conflict)
	}
}

func TestSupersessionAmbiguousGroupIsDiscarded(t *testing.T) {
	old, replacement, derived := supersessionFixture()
	second := l8("new-2", "092085", 10)
	second.End = old.End.Add(-3 * time.Hour)
	logger := &recordingLogger{}
	r := NewResolver(catalog.NewMemory(old, replacement, second, derived), WithLogger(logger))
	conflict, ambiguous, err := r.Supersession(context.Background(), derived)
	if err != nil || conflict != nil {
		t.Fatalf("ambiguous groups never produce a conflict: %+v %v", conflict, err)
	}
	if ambiguous == nil || len(ambiguous.Candidates) != 2 {
		t.Fatalf("expected ambiguous group of two, got %+v", ambiguous)
	}
	if !logger.has("error", "ambiguous supersession, discarding group") {
		t.Fatalf("ambiguous groups must be logged")
	}
}

func TestSupersessionNoConflict(t *testing.T) {
	old, replacement, derived := supersessionFixture()
	ctx := context.Background()

	live := old
	live.ArchivedAt = nil
	r := NewResolver(catalog.NewMemory(live, replacement, derived))
	if c, a, err := r.Supersession(ctx, derived); c != nil || a != nil || err != nil {
		t.Fatalf("unarchived source means no conflict: %v %v %v", c, a, err)
	}

	far := replacement
	far.End = old.End.Add(SupersessionWindow + time.Second)
	r = NewResolver(catalog.NewMemory(old, far, derived))
	if c, _, _ := r.Supersession(ctx, derived); c != nil {
		t.Fatalf("replacement outside the window must be ignored")
	}

	elsewhere := replacement
	elsewhere.RegionCode = "092086"
	r = NewResolver(catalog.NewMemory(old, elsewhere, derived))
	if c, _, _ := r.Supersession(ctx, derived); c != nil {
		t.Fatalf("replacement in another region must be ignored")
	}

	gone := archived(replacement)
	r = NewResolver(catalog.NewMemory(old, gone, derived))
	if c, _, _ := r.Supersession(ctx, derived); c != nil {
		t.Fatalf("archived replacement must be ignored")
	}

	orphan := derived
	orphan.SourceIDs = []string{"missing"}
	logger := &recordingLogger{}
	r = NewResolver(catalog.NewMemory(old, replacement), WithLogger(logger))
	if c, _, err := r.Supersession(ctx, orphan); c != nil || err != nil {
		t.Fatalf("missing source yields nothing: %v %v", c, err)
	}
	if !logger.has("warn", "derived dataset source missing from catalogue") {
		t.Fatalf("missing source must be logged")
	}
}

func TestFindSupersessionsScansLiveDerivedDatasets(t *testing.T) {
	old, replacement, derived := supersessionFixture()
	gone := archived(ard("ard-archived", old, domain.MaturityFinal))
	r := NewResolver(catalog.NewMemory(old, replacement, derived, gone))
	report, err := r.FindSupersessions(context.Background(), "ga_ls8c_ard_3", nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if report.Scanned != 1 || len(report.Conflicts) != 1 || len(report.Ambiguous) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	report, _ = r.FindSupersessions(context.Background(), "ga_ls8c_ard_3", regions{"100100": true})
	if report.Scanned != 0 {
		t.Fatalf("AOI should restrict the scan, scanned %d", report.Scanned)
	}
}

func TestCheckChildren(t *testing.T) {
	src := l8("src", "092085", 10)
	interim := ard("interim", src, domain.MaturityInterim)
	final := ard("final", src, domain.MaturityFinal)
	ctx := context.Background()

	r := NewResolver(catalog.NewMemory(src, interim))
	if v, _ := r.CheckChildren(ctx, src, false); !v.Blocked {
		t.Fatalf("interim child blocks until final-ready")
	}
	v, _ := r.CheckChildren(ctx, src, true)
	if !v.Promote || len(v.ArchiveIDs) != 1 || v.ArchiveIDs[0] != "interim" {
		t.Fatalf("interim child promotes once final-ready: %+v", v)
	}

	r = NewResolver(catalog.NewMemory(src, interim, final))
	if v, _ := r.CheckChildren(ctx, src, true); !v.Blocked {
		t.Fatalf("a final child always blocks")
	}
	if has, _ := r.HasUnarchivedChild(ctx, src); !has {
		t.Fatalf("expected live child")
	}

	r = NewResolver(catalog.NewMemory(src, archived(final)))
	if v, _ := r.CheckChildren(ctx, src, false); v.Blocked || v.Promote {
		t.Fatalf("archived children are ignored: %+v", v)
	}
}
