package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sceneselect/internal/catalog"
	"sceneselect/internal/infra/persistence/sqlite"
)

const landsatFixture = `datasets:
  - product: usgs_ls8c_level1_1
    label: LC08_L1TP_092085_20200810_20200821_01_T1
    scene_id: LC80920852020223ASA00
    region_code: "092085"
    platform: landsat-8
    begin: 2020-08-10T00:11:09Z
    end: 2020-08-10T00:11:39Z
    local_path: /data/l1/LC08_L1TP_092085_20200810_20200821_01_T1.odc-metadata.yaml
  - product: usgs_ls7e_level1_1
    label: LE07_L1GT_108073_20201208_20210103_01_T2
    scene_id: LE71080732020343ASA00
    region_code: "108073"
    platform: landsat-7
    begin: 2020-12-08T01:00:00Z
    end: 2020-12-08T01:00:30Z
    local_path: /data/l1/LE07_L1GT_108073_20201208_20210103_01_T2.tar
`

const l8Label = "LC08_L1TP_092085_20200810_20200821_01_T1"

type workspace struct {
	dir     string
	blob    string
	fixture string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{dir: dir, blob: filepath.Join(dir, "blob"), fixture: filepath.Join(dir, "fixture.yaml")}
	require.NoError(t, os.WriteFile(ws.fixture, []byte(landsatFixture), 0o644))
	ws.write(t, "brdf/2020.08.10/MCD43A1.A2020223.h29v12.hdf", "x")
	ws.write(t, "water_vapour/pr_wtr.eatm.2020/2020-08-09T18:00:00", "x")
	return ws
}

func (ws workspace) write(t *testing.T, key, body string) {
	t.Helper()
	p := filepath.Join(ws.blob, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func (ws workspace) read(t *testing.T, key string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(ws.blob, filepath.FromSlash(key)))
	require.NoError(t, err)
	return string(b)
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSelectWritesWorkListAndDecisions(t *testing.T) {
	ws := newWorkspace(t)
	decisions := filepath.Join(ws.dir, "logs", "decisions.jsonl")
	_, stderr, err := execute(t, "select",
		"--fixture", ws.fixture,
		"--blob-root", ws.blob,
		"--decision-log", decisions,
		"--run-id", "test-run",
	)
	require.NoError(t, err, stderr)
	require.Equal(t, "/data/l1/"+l8Label+".tar\n", ws.read(t, "runs/test-run/scenes.txt"))
	require.Equal(t, "", ws.read(t, "runs/test-run/archive.txt"))
	require.Contains(t, stderr, "run test-run: 1 admitted, 1 rejected, 0 promoted")

	logged, err := os.ReadFile(decisions)
	require.NoError(t, err)
	require.Contains(t, string(logged), `"reason":"processing level too low"`)
	require.Contains(t, string(logged), `"reason":"ancillary files final"`)
	require.Contains(t, string(logged), `"run_id":"test-run"`)
}

func TestSelectRefusesToOverwriteRun(t *testing.T) {
	ws := newWorkspace(t)
	args := []string{"select", "--fixture", ws.fixture, "--blob-root", ws.blob, "--decision-log", "", "--run-id", "again"}
	_, _, err := execute(t, args...)
	require.NoError(t, err)
	_, _, err = execute(t, args...)
	require.Error(t, err)
}

func TestSelectEmitsJobScript(t *testing.T) {
	ws := newWorkspace(t)
	_, stderr, err := execute(t, "select",
		"--fixture", ws.fixture,
		"--blob-root", ws.blob,
		"--decision-log", "",
		"--run-id", "job-run",
		"--emit-job",
		"--project", "v10",
	)
	require.NoError(t, err, stderr)
	script := ws.read(t, "runs/job-run/job.pbs")
	require.Contains(t, script, "#PBS -P v10")
	require.Contains(t, script, "--nodes 1")
	require.Contains(t, script, filepath.Join(ws.blob, "runs", "job-run", "scenes.txt"))
	require.Contains(t, stderr, "job script: ")
}

func TestSelectRejectsOutsideAOI(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "aoi/regions.txt", "# path/row\n108073\n")
	stdout, stderr, err := execute(t, "select",
		"--fixture", ws.fixture,
		"--blob-root", ws.blob,
		"--aoi-key", "aoi/regions.txt",
		"--run-id", "aoi-run",
	)
	require.NoError(t, err, stderr)
	require.Equal(t, "", ws.read(t, "runs/aoi-run/scenes.txt"))
	require.Contains(t, stdout, `"reason":"region not in AOI"`)
}

func TestNodesPrintsEstimate(t *testing.T) {
	stdout, _, err := execute(t, "nodes", "--count", "400", "--walltime", "10", "--workers", "48", "--hours-per-item", "1.5")
	require.NoError(t, err)
	require.Equal(t, "2\n", stdout)
}

func TestNodesCountsWorkList(t *testing.T) {
	list := filepath.Join(t.TempDir(), "scenes.txt")
	require.NoError(t, os.WriteFile(list, []byte("a.tar\n\nb.tar\n"), 0o644))
	stdout, _, err := execute(t, "nodes", "--work-list", list)
	require.NoError(t, err)
	require.Equal(t, "1\n", stdout)

	_, _, err = execute(t, "nodes")
	require.ErrorContains(t, err, "--count or --work-list")
}

func TestBulkRejectsUnsupportedKey(t *testing.T) {
	_, _, err := execute(t, "bulk", "--derived-product", "ga_ls8c_ard_3", "--filter", "colour=blue")
	require.ErrorContains(t, err, "key not supported")
}

func TestReprocessRequiresDerivedProduct(t *testing.T) {
	_, _, err := execute(t, "reprocess", "--dry-run")
	require.ErrorIs(t, err, errNoDerivedProduct)
}

func TestDiscoverListsMonths(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"2020/2020-08/a.odc-metadata.yaml",
		"2020/2020-08/092085/b.odc-metadata.yaml",
		"2020/2020-09/c.odc-metadata.yaml",
	} {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, nil, 0o644))
	}
	stdout, _, err := execute(t, "discover", "--root", root, "--from", "2020-08-01", "--to", "2020-08-31")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Equal(t, []string{
		filepath.Join(root, "2020", "2020-08", "092085", "b.odc-metadata.yaml"),
		filepath.Join(root, "2020", "2020-08", "a.odc-metadata.yaml"),
	}, sorted(lines))

	_, _, err = execute(t, "discover", "--root", root, "--from", "August")
	require.ErrorContains(t, err, "--from")
}

func TestImportSelectAndArchiveWithSQLite(t *testing.T) {
	ws := newWorkspace(t)
	db := filepath.Join(ws.dir, "catalog.db")
	sql := []string{"--catalog-driver", "sqlite", "--catalog-dsn", db, "--blob-root", ws.blob, "--decision-log", ""}

	stdout, _, err := execute(t, append([]string{"import", ws.fixture}, sql...)...)
	require.NoError(t, err)
	require.Equal(t, "imported 2 datasets\n", stdout)

	_, stderr, err := execute(t, append([]string{"select", "--run-id", "sql-run"}, sql...)...)
	require.NoError(t, err, stderr)
	require.Equal(t, "/data/l1/"+l8Label+".tar\n", ws.read(t, "runs/sql-run/scenes.txt"))

	id := catalog.DatasetID("usgs_ls8c_level1_1", l8Label)
	ws.write(t, "runs/manual/archive.txt", id+"\n"+id+"\n")
	stdout, _, err = execute(t, append([]string{"archive", "runs/manual/archive.txt"}, sql...)...)
	require.NoError(t, err)
	require.Equal(t, "archived 1 datasets\n", stdout)

	cat, err := sqlite.NewCatalog(context.Background(), db)
	require.NoError(t, err)
	defer func() { _ = cat.Close() }()
	ds, err := cat.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, ds.ArchivedAt)
}

func TestImportNeedsPersistentCatalogue(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := execute(t, "import", ws.fixture)
	require.ErrorContains(t, err, "persistent catalogue")
}

func TestInvalidConfigIsReported(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("selection:\n  products: [not_a_product]\n"), 0o644))
	_, _, err := execute(t, "--config", cfg, "nodes", "--count", "1")
	require.ErrorContains(t, err, "invalid config")
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
