package core

import (
	"context"
	"testing"
	"time"

	"sceneselect/internal/catalog"
	"sceneselect/internal/scene"
	"sceneselect/pkg/domain"
)

func TestBuildDerivedIndexDuplicateResolution(t *testing.T) {
	src := l8("src", "092085", 10)
	finalOld := ard("final-old", src, domain.MaturityFinal)
	interimNew := ard("interim-new", src, domain.MaturityInterim)
	interimNew.ProducedAt = finalOld.ProducedAt.Add(24 * time.Hour)
	cat := catalog.NewMemory(finalOld, interimNew)
	id, _ := scene.Normalize(src.SceneID)

	cases := []struct {
		resolution DuplicateResolution
		want       string
	}{
		{DuplicatePreferFinal, "final-old"},
		{DuplicateLastSeen, "interim-new"},
	}
	for _, tc := range cases {
		logger := &recordingLogger{}
		idx, err := BuildDerivedIndex(context.Background(), cat, "ga_ls8c_ard_3", tc.resolution, logger)
		if err != nil {
			t.Fatalf("%s: build: %v", tc.resolution, err)
		}
		entry, ok := idx.Lookup(id)
		if !ok || entry.DatasetID != tc.want {
			t.Fatalf("%s: expected %s, got %+v", tc.resolution, tc.want, entry)
		}
		if idx.Len() != 1 || idx.Duplicates() != 1 {
			t.Fatalf("%s: unexpected size %d duplicates %d", tc.resolution, idx.Len(), idx.Duplicates())
		}
		if !logger.has("warn", "duplicate derived dataset for capture identity") {
			t.Fatalf("%s: duplicates must be logged", tc.resolution)
		}
	}
}

func TestResolvePreferFinalTieBreaks(t *testing.T) {
	early := IndexEntry{DatasetID: "early", Maturity: domain.MaturityFinal, ProducedAt: time.Unix(100, 0)}
	late := IndexEntry{DatasetID: "late", Maturity: domain.MaturityFinal, ProducedAt: time.Unix(200, 0)}
	if got := resolve(DuplicatePreferFinal, late, early); got.DatasetID != "late" {
		t.Fatalf("most recently produced wins among equal maturity, got %s", got.DatasetID)
	}
	same := IndexEntry{DatasetID: "same", Maturity: domain.MaturityFinal, ProducedAt: time.Unix(200, 0)}
	if got := resolve(DuplicatePreferFinal, late, same); got.DatasetID != "same" {
		t.Fatalf("last seen wins a full tie, got %s", got.DatasetID)
	}
}

func TestNilIndexIsEmpty(t *testing.T) {
	var idx *DerivedDatasetIndex
	if _, ok := idx.Lookup("x"); ok || idx.Len() != 0 || idx.Duplicates() != 0 {
		t.Fatalf("nil index must behave as empty")
	}
}

func TestParseDuplicateResolution(t *testing.T) {
	for in, want := range map[string]DuplicateResolution{"": DuplicatePreferFinal, "LAST-SEEN": DuplicateLastSeen, "prefer-final": DuplicatePreferFinal} {
		got, err := ParseDuplicateResolution(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q %v", in, got, err)
		}
	}
	if _, err := ParseDuplicateResolution("newest"); err == nil {
		t.Fatalf("expected error for unknown resolution")
	}
}
