package core

import (
	"fmt"
	"strings"
	"time"
)

// DuplicateResolution decides which derived dataset represents a capture
// identity when several unarchived ones share it.
type DuplicateResolution string

const (
	// DuplicateLastSeen keeps the dataset seen last in catalogue order.
	DuplicateLastSeen DuplicateResolution = "last-seen"
	// DuplicatePreferFinal keeps the highest maturity, then the most recently
	// produced, then the last seen.
	DuplicatePreferFinal DuplicateResolution = "prefer-final"
)

// ParseDuplicateResolution validates a configured resolution name.
func ParseDuplicateResolution(s string) (DuplicateResolution, error) {
	switch DuplicateResolution(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicatePreferFinal:
		return DuplicatePreferFinal, nil
	case DuplicateLastSeen:
		return DuplicateLastSeen, nil
	}
	return "", fmt.Errorf("unknown duplicate resolution %q (want %s or %s)", s, DuplicateLastSeen, DuplicatePreferFinal)
}

// Policy holds the run-level choices the admission pipeline leaves open.
type Policy struct {
	// InterimBypass skips the exclusion-window and child-blocking stages for
	// candidates falling back to interim processing. The prior-production
	// stage still runs for them, so a scene with an interim derived dataset
	// is not resubmitted as interim on every run.
	InterimBypass bool
	// DuplicateResolution picks the authoritative derived dataset per capture identity.
	DuplicateResolution DuplicateResolution
	// InterimWait is how long after acquisition a scene without final
	// ancillary data is processed as interim. Zero disables the fallback.
	InterimWait time.Duration
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{InterimBypass: true, DuplicateResolution: DuplicatePreferFinal}
}
