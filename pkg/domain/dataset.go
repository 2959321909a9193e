// Package domain holds the value types shared by the scene selection engines:
// catalogue datasets, product tables, admission decisions and exclusion windows.
package domain

import (
	"strings"
	"time"
)

// Maturity is the quality tier of a derived dataset.
type Maturity string

const (
	// MaturityUnknown marks Level-1 datasets and derived datasets without a label.
	MaturityUnknown Maturity = ""
	// MaturityInterim is produced without definitive ancillary data.
	MaturityInterim Maturity = "interim"
	// MaturityFinal is produced with definitive ancillary data.
	MaturityFinal Maturity = "final"
)

// ParseMaturity normalizes a maturity label. Unrecognized labels map to MaturityUnknown.
func ParseMaturity(s string) Maturity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(MaturityInterim):
		return MaturityInterim
	case string(MaturityFinal):
		return MaturityFinal
	default:
		return MaturityUnknown
	}
}

// Rank orders maturities so that final outranks interim outranks unknown.
func (m Maturity) Rank() int {
	switch m {
	case MaturityFinal:
		return 2
	case MaturityInterim:
		return 1
	default:
		return 0
	}
}

// Dataset is a catalogue record for either a Level-1 acquisition or a derived
// (ARD) product. The engines only read datasets; the catalogue owns them.
type Dataset struct {
	ID         string    `json:"id" yaml:"id"`
	Product    string    `json:"product" yaml:"product"`
	Label      string    `json:"label,omitempty" yaml:"label"`
	SceneID    string    `json:"scene_id,omitempty" yaml:"scene_id"`
	RegionCode string    `json:"region_code" yaml:"region_code"`
	Platform   string    `json:"platform,omitempty" yaml:"platform"`
	Begin      time.Time `json:"begin" yaml:"begin"`
	End        time.Time `json:"end" yaml:"end"`
	LocalPath  string    `json:"local_path,omitempty" yaml:"local_path"`
	Maturity   Maturity  `json:"maturity,omitempty" yaml:"maturity"`
	// SourceIDs lists the Level-1 datasets a derived dataset was produced from.
	SourceIDs        []string          `json:"source_ids,omitempty" yaml:"source_ids"`
	SoftwareVersions map[string]string `json:"software_versions,omitempty" yaml:"software_versions"`
	ProducedAt       time.Time         `json:"produced_at,omitempty" yaml:"produced_at"`
	ArchivedAt       *time.Time        `json:"archived_at,omitempty" yaml:"archived_at"`
}

// Archived reports whether the dataset has been archived in the catalogue.
func (d Dataset) Archived() bool {
	return d.ArchivedAt != nil
}

// HasLocalPath reports whether the dataset is materialized on disk.
func (d Dataset) HasLocalPath() bool {
	return strings.TrimSpace(d.LocalPath) != ""
}

// AcquisitionTime returns the end of the acquisition window, falling back to
// the beginning when no end was recorded.
func (d Dataset) AcquisitionTime() time.Time {
	if d.End.IsZero() {
		return d.Begin.UTC()
	}
	return d.End.UTC()
}

// SoftwareVersion returns the recorded version of a processing component.
func (d Dataset) SoftwareVersion(component string) (string, bool) {
	v, ok := d.SoftwareVersions[component]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Clone returns a deep copy safe to hand across package boundaries.
func (d Dataset) Clone() Dataset {
	out := d
	if d.SourceIDs != nil {
		out.SourceIDs = append([]string(nil), d.SourceIDs...)
	}
	if d.SoftwareVersions != nil {
		out.SoftwareVersions = make(map[string]string, len(d.SoftwareVersions))
		for k, v := range d.SoftwareVersions {
			out.SoftwareVersions[k] = v
		}
	}
	if d.ArchivedAt != nil {
		at := *d.ArchivedAt
		out.ArchivedAt = &at
	}
	return out
}

const metadataSuffix = ".odc-metadata.yaml"

// ArchivePath maps the dataset's local path onto the package file submitted
// for processing. Metadata documents are swapped for the family's archive
// suffix; paths already naming an archive are returned unchanged.
func (d Dataset) ArchivePath(family SensorFamily) string {
	path := strings.TrimSpace(d.LocalPath)
	if path == "" {
		return ""
	}
	suffix := family.ArchiveSuffix()
	switch {
	case strings.HasSuffix(path, ".tar"), strings.HasSuffix(path, ".zip"):
		return path
	case strings.HasSuffix(path, metadataSuffix):
		return strings.TrimSuffix(path, metadataSuffix) + suffix
	default:
		return path + suffix
	}
}
