package discovery

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func layout(t *testing.T) string {
	root := t.TempDir()
	for _, p := range []string{
		"2020/2020-08/LC08_a.odc-metadata.yaml",
		"2020/2020-08/LC08_b/LC08_b.odc-metadata.yaml",
		"2020/2020-09/LC08_c.odc-metadata.yaml",
		"2020/2020-09/notes.txt",
		"2021/2021-01/LC08_d.odc-metadata.yaml",
		"2021/2020-12/stray.odc-metadata.yaml",
		"misc/2020-08/ignored.odc-metadata.yaml",
	} {
		touch(t, filepath.Join(root, p))
	}
	return root
}

func lines(buf *bytes.Buffer) []string {
	out := strings.Split(strings.TrimSpace(buf.String()), "\n")
	sort.Strings(out)
	return out
}

func TestWalkFindsMetadataDocuments(t *testing.T) {
	root := layout(t)
	var buf bytes.Buffer
	n, err := Walk(context.Background(), Options{Root: root, Workers: 3}, &buf)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	want := []string{
		filepath.Join(root, "2020/2020-08/LC08_a.odc-metadata.yaml"),
		filepath.Join(root, "2020/2020-08/LC08_b/LC08_b.odc-metadata.yaml"),
		filepath.Join(root, "2020/2020-09/LC08_c.odc-metadata.yaml"),
		filepath.Join(root, "2021/2021-01/LC08_d.odc-metadata.yaml"),
	}
	if n != len(want) {
		t.Fatalf("expected %d paths, got %d", len(want), n)
	}
	if got := lines(&buf); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWalkRestrictsMonths(t *testing.T) {
	root := layout(t)
	var buf bytes.Buffer
	from := time.Date(2020, 9, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	n, err := Walk(context.Background(), Options{Root: root, From: from, To: to}, &buf)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if n != 1 || !strings.HasSuffix(strings.TrimSpace(buf.String()), "LC08_c.odc-metadata.yaml") {
		t.Fatalf("expected only September, got %q", buf.String())
	}
}

func TestWalkErrors(t *testing.T) {
	if _, err := Walk(context.Background(), Options{}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected root error")
	}
	if _, err := Walk(context.Background(), Options{Root: filepath.Join(t.TempDir(), "missing")}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected missing root error")
	}
	if _, err := Walk(context.Background(), Options{Root: t.TempDir(), Pattern: "[x"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected pattern error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Walk(ctx, Options{Root: layout(t)}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected cancellation error")
	}
}
