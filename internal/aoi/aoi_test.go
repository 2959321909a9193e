package aoi

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"sceneselect/internal/blob"
)

func TestParseNormalizesAndIgnoresComments(t *testing.T) {
	set, err := Parse([]byte("# australia subset\n92085, 092/086\n\nt55hbu 092085 # duplicate\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got, want := set.Codes(), []string{"092085", "092086", "55HBU"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for _, code := range []string{"092085", "92085", "T55HBU", "55hbu"} {
		if !set.Contains(code) {
			t.Fatalf("expected %s in set", code)
		}
	}
	if set.Contains("100100") || set.Contains("garbage") {
		t.Fatalf("unexpected membership")
	}
}

func TestParseRejectsBadCodes(t *testing.T) {
	if _, err := Parse([]byte("092085\nnot-a-code\n")); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := New("1234567"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNilSet(t *testing.T) {
	var s *Set
	if s.Contains("092085") || s.Len() != 0 || s.Codes() != nil {
		t.Fatalf("nil set must be empty")
	}
}

func TestLoadFromBlob(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	if _, err := blob.PutBytes(ctx, store, "aoi/au.txt", []byte("092085\n"), "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	set, err := Load(ctx, store, "aoi/au.txt")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Len() != 1 || !set.Contains("092085") {
		t.Fatalf("unexpected set %v", set.Codes())
	}
	if _, err := Load(ctx, store, "aoi/missing.txt"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
