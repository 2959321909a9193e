package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInternalPredicate(t *testing.T) {
	cases := map[string]bool{
		"sceneselect/internal/core": true,
		"sceneselect/internal":      true,
		"sceneselect/pkg/domain":    false,
		"github.com/x/internalized": false,
	}
	for in, want := range cases {
		if got := Internal(in); got != want {
			t.Fatalf("Internal(%q)=%v want %v", in, got, want)
		}
	}
}

func TestUnderPredicate(t *testing.T) {
	f := Under("sceneselect/internal/infra")
	if !f("sceneselect/internal/infra") || !f("sceneselect/internal/infra/blob/s3") {
		t.Fatalf("expected prefix and nested packages to match")
	}
	if f("sceneselect/internal/infrastructure") {
		t.Fatalf("sibling with shared prefix must not match")
	}
}

func TestDirectImportsSkipsTests(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"os\"\n)\nvar _ = fmt.Sprint\nvar _ = os.Args\n")
	write("a_test.go", "package tmp\nimport \"net/http\"\nvar _ = http.MethodGet\n")

	viols, err := directImports(dir, func(p string) bool { return p == "os" || p == "net/http" })
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "os (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestTransitiveImportsReportsPath(t *testing.T) {
	viols, err := transitiveImports(ModulePath+"/pkg/domain", Under("errors"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(viols) == 0 || !strings.Contains(viols[0], "(via ") {
		t.Fatalf("expected errors to be reached from domain, got %v", viols)
	}
}
