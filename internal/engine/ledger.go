package engine

import (
	"github.com/stemsi/examguard-backend/internal/model"
)

// Ledger maintains the append-only violation counters for one attempt.
// It is deliberately dumb: duplicate events from client retries are
// accepted as distinct facts. Whether repeats matter is the policy
// layer's call, not the ledger's.
type Ledger struct {
	attempt *model.Attempt
}

// NewLedger wraps an attempt's counters.
func NewLedger(a *model.Attempt) *Ledger {
	return &Ledger{attempt: a}
}

// Append records one violation of the given type, incrementing the total
// and the per-type counter together so the sum invariant holds under any
// interleaving (the caller serializes on the attempt lock).
func (l *Ledger) Append(t model.ViolationType) {
	l.attempt.ViolationCounts.Increment(t)
	l.attempt.ViolationTotal++
}

// Total returns the running total across all types.
func (l *Ledger) Total() int {
	return l.attempt.ViolationTotal
}

// Reset clears all counters. Administrative use only; the persisted
// events themselves are cleared by the caller.
func (l *Ledger) Reset() {
	l.attempt.ViolationCounts = nil
	l.attempt.ViolationTotal = 0
}
