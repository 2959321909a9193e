package scene

import (
	"fmt"
	"regexp"
	"time"

	"sceneselect/pkg/domain"
)

// Landsat labels: <sensor>_<level>_<PPPRRR>_<acquired>_<processed>_<collection>_<tier>.
var (
	landsat5Pattern = regexp.MustCompile(`^(?P<sensor>LT05)_(?P<level>L1TP)_(?P<region>[0-9]{6})_(?P<acquired>[0-9]{8})_(?P<processed>[0-9]{8})_(?P<collection>0[12])_(?P<tier>T1|T2|RT)$`)
	landsat7Pattern = regexp.MustCompile(`^(?P<sensor>LE07)_(?P<level>L1TP)_(?P<region>[0-9]{6})_(?P<acquired>[0-9]{8})_(?P<processed>[0-9]{8})_(?P<collection>0[12])_(?P<tier>T1|T2|RT)$`)
	landsat8Pattern = regexp.MustCompile(`^(?P<sensor>L[COT]0[89])_(?P<level>L1TP|L1GT)_(?P<region>[0-9]{6})_(?P<acquired>[0-9]{8})_(?P<processed>[0-9]{8})_(?P<collection>0[12])_(?P<tier>T1|T2|RT)$`)
	// Sentinel-2 L1C: S2A_MSIL1C_20200810T001109_N0209_R073_T55HBU_20200810T014432
	sentinel2Pattern = regexp.MustCompile(`^(?P<sensor>S2[AB])_(?P<level>MSIL1C)_(?P<acquired>[0-9]{8})T[0-9]{6}_(?P<collection>N[0-9]{4})_R[0-9]{3}_T(?P<region>[0-9]{2}[A-Z]{3})_(?P<processed>[0-9]{8})T[0-9]{6}$`)
)

// Pattern returns the filename grammar for a sensor family.
func Pattern(family domain.SensorFamily) (*regexp.Regexp, error) {
	switch family {
	case domain.SensorLandsat5:
		return landsat5Pattern, nil
	case domain.SensorLandsat7:
		return landsat7Pattern, nil
	case domain.SensorLandsat8:
		return landsat8Pattern, nil
	case domain.SensorSentinel2:
		return sentinel2Pattern, nil
	case domain.SensorUnknown:
		return nil, fmt.Errorf("no filename grammar for %s family", family)
	}
	return nil, fmt.Errorf("no filename grammar for %s", family)
}

// MatchProductPattern reports whether name is a label the family's grammar
// accepts. A false result means the correction level (or any other field)
// is one the selector is not configured to consume.
func MatchProductPattern(family domain.SensorFamily, name string) bool {
	re, err := Pattern(family)
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

// Label holds the fields encoded in a product label.
type Label struct {
	Sensor     string
	Level      string
	RegionCode string
	Acquired   time.Time
	Processed  time.Time
	Collection string
	Tier       string
}

// ParseLabel decomposes a product label using the family grammar.
func ParseLabel(family domain.SensorFamily, name string) (Label, error) {
	re, err := Pattern(family)
	if err != nil {
		return Label{}, err
	}
	m := re.FindStringSubmatch(name)
	if m == nil {
		return Label{}, fmt.Errorf("label %q does not match %s grammar", name, family)
	}
	fields := make(map[string]string, len(m))
	for i, group := range re.SubexpNames() {
		if group != "" {
			fields[group] = m[i]
		}
	}
	acquired, err := time.Parse("20060102", fields["acquired"])
	if err != nil {
		return Label{}, fmt.Errorf("label %q acquisition date: %w", name, err)
	}
	processed, err := time.Parse("20060102", fields["processed"])
	if err != nil {
		return Label{}, fmt.Errorf("label %q processing date: %w", name, err)
	}
	return Label{
		Sensor:     fields["sensor"],
		Level:      fields["level"],
		RegionCode: fields["region"],
		Acquired:   acquired,
		Processed:  processed,
		Collection: fields["collection"],
		Tier:       fields["tier"],
	}, nil
}
