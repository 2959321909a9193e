package catalog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"sceneselect/pkg/domain"
)

// Fixture is the YAML document accepted by LoadFixture:
//
//	datasets:
//	  - id: 3f0c...            # optional, derived from product and label when absent
//	    product: usgs_ls8c_level1_1
//	    label: LC08_L1TP_092085_20200810_20200821_01_T1
//	    scene_id: LC80920852020223ASA00
//	    region_code: "092085"
//	    begin: 2020-08-10T00:11:09Z
//	    end: 2020-08-10T00:11:39Z
//	    local_path: /g/data/.../LC08_L1TP_092085_20200810_20200821_01_T1.odc-metadata.yaml
type Fixture struct {
	Datasets []domain.Dataset `yaml:"datasets"`
}

// ParseFixture decodes a fixture document and assigns missing IDs.
func ParseFixture(r io.Reader) ([]domain.Dataset, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	seen := make(map[string]struct{}, len(fx.Datasets))
	for i := range fx.Datasets {
		ds := &fx.Datasets[i]
		if strings.TrimSpace(ds.Product) == "" {
			return nil, fmt.Errorf("fixture dataset %d: product required", i)
		}
		if ds.ID == "" {
			ds.ID = DatasetID(ds.Product, ds.Label)
		} else if _, err := uuid.Parse(ds.ID); err != nil {
			return nil, fmt.Errorf("fixture dataset %d: id %q: %w", i, ds.ID, err)
		}
		if _, dup := seen[ds.ID]; dup {
			return nil, fmt.Errorf("fixture dataset %d: duplicate id %s", i, ds.ID)
		}
		seen[ds.ID] = struct{}{}
		ds.Maturity = domain.ParseMaturity(string(ds.Maturity))
		ds.Begin = ds.Begin.UTC()
		ds.End = ds.End.UTC()
	}
	return fx.Datasets, nil
}

// LoadFixture reads a fixture file into a new in-memory catalogue.
func LoadFixture(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer func() { _ = f.Close() }()
	datasets, err := ParseFixture(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewMemory(datasets...), nil
}

// DatasetID derives a stable UUID for a dataset without one, so that
// reloading the same fixture yields the same IDs.
func DatasetID(product, label string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("sceneselect:"+product+"/"+label)).String()
}
