package domain

// Outcome is the terminal state of one candidate evaluation.
type Outcome string

const (
	// OutcomeAdmitted places the candidate on the work list.
	OutcomeAdmitted Outcome = "admitted"
	// OutcomeRejected skips the candidate for this run.
	OutcomeRejected Outcome = "rejected"
)

// Reason explains a decision. Values are stable strings that downstream
// tooling greps for in the decision log.
type Reason string

const (
	ReasonProcessingLevel   Reason = "processing level too low"
	ReasonRegionNotInAOI    Reason = "region not in AOI"
	ReasonNoLocalPath       Reason = "skipping dataset without local paths"
	ReasonAncillaryNotReady Reason = "ancillary files not ready"
	ReasonExcludedDay       Reason = "this day is excluded"
	ReasonBadSceneFormat    Reason = "bad scene format"
	ReasonAlreadyProcessed  Reason = "the scene has been processed"
	ReasonHasChildren       Reason = "skipping dataset with children"
	ReasonSceneLimit        Reason = "scene limit reached"
	ReasonSourceUnavailable Reason = "source unavailable"
	ReasonFilterMismatch    Reason = "does not match reprocessing filter"
	ReasonUnparsableVersion Reason = "unparsable software version"
	ReasonAmbiguous         Reason = "ambiguous supersession, group discarded"

	ReasonFinal          Reason = "ancillary files final"
	ReasonProcessInterim Reason = "process as interim"
	ReasonInterimToFinal Reason = "interim scene is being processed to final"
	ReasonSuperseded     Reason = "level-1 supersedes derived product"
	ReasonFilterMatch    Reason = "matches reprocessing filter"
)

// Decision records the verdict for one candidate. It is produced once and
// never mutated afterwards.
type Decision struct {
	DatasetID   string
	DatasetPath string
	Product     string
	SceneID     string
	RegionCode  string
	Outcome     Outcome
	Reason      Reason
	// Detail carries free-form context such as the ancillary readiness message.
	Detail string
	// Maturity is the maturity the admitted scene will be produced at.
	Maturity Maturity
	// ArchiveIDs lists derived datasets to archive once the scene is reprocessed.
	ArchiveIDs []string
}

// Admitted reports whether the candidate made the work list.
func (d Decision) Admitted() bool { return d.Outcome == OutcomeAdmitted }

// Event is the decision-log event name.
func (d Decision) Event() string {
	if d.Admitted() {
		return "scene added"
	}
	return "scene removed"
}
