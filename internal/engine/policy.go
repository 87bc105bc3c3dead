package engine

import "fmt"

// PolicyInput is the counter snapshot plus thresholds the integrity policy
// evaluates after every ledger append.
type PolicyInput struct {
	Total int

	WarningThreshold int
	MaxViolations    int
	AutoSubmitOnMax  bool

	// AutoBlockThreshold is the global cross-exam setting; zero disables
	// auto-blocking entirely.
	AutoBlockThreshold int

	AlreadyFlagged    bool
	CurrentFlagReason string
	AlreadyBlocked    bool
}

// PolicyDecision is what the coordinator must apply after an evaluation.
// All fields are idempotent: re-evaluating the same counters yields no
// new actions once the guards (AlreadyFlagged, AlreadyBlocked, matching
// reason) are set.
type PolicyDecision struct {
	Flag        bool
	FlagReason  string
	ForceSubmit bool
	Block       bool
	BlockReason string
}

// EvaluatePolicy applies the flag / force-submit / auto-block rules to a
// counter snapshot. Pure; monotone in Total.
func EvaluatePolicy(in PolicyInput) PolicyDecision {
	var d PolicyDecision

	if in.WarningThreshold > 0 && in.Total >= in.WarningThreshold && !in.AlreadyFlagged {
		d.Flag = true
		d.FlagReason = fmt.Sprintf("exceeded warning threshold (%d violations)", in.Total)
	}

	if in.MaxViolations > 0 && in.Total >= in.MaxViolations {
		reason := fmt.Sprintf("exceeded maximum (%d/%d)", in.Total, in.MaxViolations)
		// Escalate the flag reason even when already flagged, but only
		// once per distinct reason so re-evaluation stays idempotent.
		if !in.AlreadyFlagged || in.CurrentFlagReason != reason {
			d.Flag = true
			d.FlagReason = reason
		}
		if in.AutoSubmitOnMax {
			d.ForceSubmit = true
		}
	}

	// Auto-block is a student-level side effect independent of the
	// per-exam thresholds; it survives across exams.
	if in.AutoBlockThreshold > 0 && in.Total >= in.AutoBlockThreshold && !in.AlreadyBlocked {
		d.Block = true
		d.BlockReason = fmt.Sprintf("auto-blocked: %d violations (threshold %d)", in.Total, in.AutoBlockThreshold)
	}

	return d
}
