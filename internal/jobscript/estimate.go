// Package jobscript sizes and renders batch job scripts for admitted work lists.
package jobscript

import (
	"errors"
	"fmt"
	"math"
)

// Estimate is the node request for one work list.
type Estimate struct {
	Nodes int
	// Warning is set when a single item would not fit in the walltime.
	Warning string
}

// NodesRequired returns ceil(hoursPerItem*count / (walltimeHours*workers)),
// never less than one. A zero walltime is treated as one hour.
func NodesRequired(count int, walltimeHours float64, workers int, hoursPerItem float64) (Estimate, error) {
	if count < 0 {
		return Estimate{}, fmt.Errorf("negative item count %d", count)
	}
	if workers <= 0 {
		return Estimate{}, fmt.Errorf("workers must be positive, got %d", workers)
	}
	if hoursPerItem < 0 || walltimeHours < 0 {
		return Estimate{}, errors.New("hours must not be negative")
	}
	if walltimeHours == 0 {
		walltimeHours = 1
	}
	var est Estimate
	if walltimeHours <= hoursPerItem {
		est.Warning = fmt.Sprintf("walltime %gh does not exceed %gh per item", walltimeHours, hoursPerItem)
	}
	est.Nodes = int(math.Ceil(hoursPerItem * float64(count) / (walltimeHours * float64(workers))))
	if est.Nodes < 1 {
		est.Nodes = 1
	}
	return est, nil
}
