package domain

import "time"

// RunState tracks one bank's pipeline run. Transitions are linear:
// Pending → Fetching → Normalizing → Deduplicating →
// QualityPassed|QualityFailed → Written. A failed gate never retries on its
// own; re-fetching is an operator action.
type RunState string

const (
	StatePending       RunState = "Pending"
	StateFetching      RunState = "Fetching"
	StateNormalizing   RunState = "Normalizing"
	StateDeduplicating RunState = "Deduplicating"
	StateQualityPassed RunState = "QualityPassed"
	StateQualityFailed RunState = "QualityFailed"
	StateWritten       RunState = "Written"
)

// GateReport is the quality gate's diagnostic output for one batch.
type GateReport struct {
	Pass            bool
	Accepted        int
	Rejected        int
	Fetched         int
	MinCount        int
	MissingRatio    float64
	MaxMissingRatio float64
	Reasons         []string
}

// RunReport is the batch-level diagnostic for one bank's run: every
// record-level failure is absorbed into these counts.
type RunReport struct {
	Bank       Bank
	State      RunState
	Fetched    int
	Rejected   int
	Duplicates int
	Written    int
	Forced     bool
	Gate       GateReport
	Elapsed    time.Duration
}
