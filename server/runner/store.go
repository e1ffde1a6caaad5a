package runner

// StateStore manages persistence of run history. Implementations keep the
// most recent runs first.
type StateStore interface {
	// History returns the stored runs without their activity detail.
	History() []RunSummary
	// Get returns a stored run by ID.
	Get(id string) (RunStatus, bool)
	// Save persists a finished run.
	Save(run RunStatus) error
}

func cloneRun(run RunStatus) RunStatus {
	out := run
	out.ActivityExecutions = append([]ActivityExecution(nil), run.ActivityExecutions...)
	return out
}
