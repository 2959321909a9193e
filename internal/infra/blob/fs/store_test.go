package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"sceneselect/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "runs/r1/scenes.txt", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "runs/r1/scenes.txt" || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "runs/r1/scenes.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	h, err := store.Head(ctx, "runs/r1/scenes.txt")
	if err != nil || h.Size != 5 {
		t.Fatalf("head: %+v %v", h, err)
	}
	_, rc, err := store.Get(ctx, "runs/r1/scenes.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("unexpected body %q", b)
	}
	list, err := store.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "runs/r1/scenes.txt" {
		t.Fatalf("unexpected list %+v", list)
	}
	ok, err := store.Delete(ctx, "runs/r1/scenes.txt")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "runs/r1/scenes.txt")
	if err != nil || ok {
		t.Fatalf("second delete should be false")
	}
}

func TestStore_SeesFilesWrittenByOtherTools(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	dayDir := filepath.Join(store.Root(), "brdf", "2021.01.02")
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dayDir, "MCD43A1.A2021002.h29v12.hdf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	list, err := store.List(ctx, "brdf/2021.01.02/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one entry, got %+v", list)
	}
	missing, err := store.List(ctx, "brdf/2021.01.03/")
	if err != nil || len(missing) != 0 {
		t.Fatalf("expected empty listing for missing day: %+v %v", missing, err)
	}
	if _, err := store.Head(ctx, "brdf/2021.01.02"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("directories are not blobs, got %v", err)
	}
}

func TestStore_PathTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "../escape.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected traversal error")
	}
	if _, err := store.Put(ctx, "/abs.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected absolute key error")
	}
	if _, _, err := store.Get(ctx, "missing.txt"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
