package core

import "sceneselect/pkg/domain"

// ArchiveGroup ties a work-list entry to the derived datasets to archive
// once it has been reprocessed.
type ArchiveGroup struct {
	Level1Path string
	DerivedIDs []string
}

// RunResult accumulates the outputs of one admission run.
type RunResult struct {
	// WorkList holds admitted archive paths in catalogue order.
	WorkList []string
	// ArchiveIDs holds every derived dataset queued for archival, deduplicated.
	ArchiveIDs    []string
	ArchiveGroups []ArchiveGroup
	// Promoted lists the work-list entries being reprocessed from interim to final.
	Promoted        []string
	Counts          map[domain.Reason]int
	Admitted        int
	Rejected        int
	SkippedProducts []string
}

func newRunResult() RunResult {
	return RunResult{Counts: make(map[domain.Reason]int)}
}

func (r *RunResult) admit(d domain.Decision, promoted bool, archived map[string]bool) {
	r.Admitted++
	r.Counts[d.Reason]++
	r.WorkList = append(r.WorkList, d.DatasetPath)
	if promoted {
		r.Promoted = append(r.Promoted, d.DatasetPath)
	}
	if len(d.ArchiveIDs) == 0 {
		return
	}
	r.ArchiveGroups = append(r.ArchiveGroups, ArchiveGroup{Level1Path: d.DatasetPath, DerivedIDs: append([]string(nil), d.ArchiveIDs...)})
	for _, id := range d.ArchiveIDs {
		if archived[id] {
			continue
		}
		archived[id] = true
		r.ArchiveIDs = append(r.ArchiveIDs, id)
	}
}

func (r *RunResult) reject(d domain.Decision) {
	r.Rejected++
	r.Counts[d.Reason]++
}
