package domain

import (
	"errors"
	"fmt"
	"sort"
)

// SensorFamily enumerates the acquisition families with a known filename grammar.
type SensorFamily int

const (
	// SensorUnknown is the zero value and never matches a grammar.
	SensorUnknown SensorFamily = iota
	// SensorLandsat5 covers Landsat 5 TM acquisitions.
	SensorLandsat5
	// SensorLandsat7 covers Landsat 7 ETM+ acquisitions.
	SensorLandsat7
	// SensorLandsat8 covers Landsat 8 and 9 OLI/TIRS acquisitions.
	SensorLandsat8
	// SensorSentinel2 covers Sentinel-2 MSI Level-1C tiles.
	SensorSentinel2
)

// SensorFamilies lists every supported family in declaration order.
func SensorFamilies() []SensorFamily {
	return []SensorFamily{SensorLandsat5, SensorLandsat7, SensorLandsat8, SensorSentinel2}
}

func (f SensorFamily) String() string {
	switch f {
	case SensorLandsat5:
		return "landsat-5"
	case SensorLandsat7:
		return "landsat-7"
	case SensorLandsat8:
		return "landsat-8"
	case SensorSentinel2:
		return "sentinel-2"
	case SensorUnknown:
		return "unknown"
	}
	return fmt.Sprintf("SensorFamily(%d)", int(f))
}

// ArchiveSuffix is the file suffix of the package submitted for processing.
func (f SensorFamily) ArchiveSuffix() string {
	switch f {
	case SensorLandsat5, SensorLandsat7, SensorLandsat8:
		return ".tar"
	case SensorSentinel2:
		return ".zip"
	case SensorUnknown:
		return ""
	}
	return ""
}

// IsLandsat reports whether region codes for the family are WRS-2 path/rows.
func (f SensorFamily) IsLandsat() bool {
	switch f {
	case SensorLandsat5, SensorLandsat7, SensorLandsat8:
		return true
	case SensorSentinel2, SensorUnknown:
		return false
	}
	return false
}

// ProductSpec describes a Level-1 product the engine knows how to admit.
type ProductSpec struct {
	Name   string
	Family SensorFamily
	// Derived names the ARD product built from this product; empty when no
	// mapping is known and prior-production checks cannot run.
	Derived string
}

// HasDerived reports whether a derived-product mapping is known.
func (p ProductSpec) HasDerived() bool { return p.Derived != "" }

// ErrUnknownProduct is returned for product names outside the product table.
var ErrUnknownProduct = errors.New("unknown product")

var productTable = map[string]ProductSpec{
	"usgs_ls5t_level1_1": {Name: "usgs_ls5t_level1_1", Family: SensorLandsat5, Derived: "ga_ls5t_ard_3"},
	"usgs_ls7e_level1_1": {Name: "usgs_ls7e_level1_1", Family: SensorLandsat7, Derived: "ga_ls7e_ard_3"},
	"usgs_ls8c_level1_1": {Name: "usgs_ls8c_level1_1", Family: SensorLandsat8, Derived: "ga_ls8c_ard_3"},
	"ga_ls5t_level1_3":   {Name: "ga_ls5t_level1_3", Family: SensorLandsat5, Derived: "ga_ls5t_ard_3"},
	"ga_ls7e_level1_3":   {Name: "ga_ls7e_level1_3", Family: SensorLandsat7, Derived: "ga_ls7e_ard_3"},
	"ga_ls8c_level1_3":   {Name: "ga_ls8c_level1_3", Family: SensorLandsat8, Derived: "ga_ls8c_ard_3"},
	"ga_ls9c_level1_3":   {Name: "ga_ls9c_level1_3", Family: SensorLandsat8, Derived: "ga_ls9c_ard_3"},
	"esa_s2am_level1_0":  {Name: "esa_s2am_level1_0", Family: SensorSentinel2},
	"esa_s2bm_level1_0":  {Name: "esa_s2bm_level1_0", Family: SensorSentinel2},
}

// LookupProduct resolves a Level-1 product name.
func LookupProduct(name string) (ProductSpec, error) {
	spec, ok := productTable[name]
	if !ok {
		return ProductSpec{}, fmt.Errorf("%w: %s", ErrUnknownProduct, name)
	}
	return spec, nil
}

// LookupDerived resolves the Level-1 product spec whose derived product is name.
// When several Level-1 products feed the same derived product, the first in
// name order wins (ga_* collection 3 products sort ahead of usgs_* ones).
func LookupDerived(name string) (ProductSpec, error) {
	for _, spec := range Products() {
		if spec.Derived == name {
			return spec, nil
		}
	}
	return ProductSpec{}, fmt.Errorf("%w: no level-1 product maps to %s", ErrUnknownProduct, name)
}

// Products lists the product table sorted by name.
func Products() []ProductSpec {
	out := make([]ProductSpec, 0, len(productTable))
	for _, spec := range productTable {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
