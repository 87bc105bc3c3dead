package engine

import "time"

// TimerInput carries everything the remaining-time computation needs.
// Pause accumulation is a first-class input: elapsed time is wall time
// minus the total paused duration, not a bolt-on subtraction downstream.
type TimerInput struct {
	StartedAt        time.Time
	DurationMinutes  int
	ExtraTimeMinutes int
	PausedAccumMs    int64
	SessionEndsAt    time.Time
	Now              time.Time
}

// RemainingMs computes the attempt's remaining time in milliseconds.
//
// The attempt budget is duration plus extension; elapsed time excludes
// paused spans. The session window is an independent upper bound that
// always wins when it closes earlier than the attempt's own budget.
// Every intermediate value is clamped at zero so clock skew or a
// retroactively shrunk budget can never yield negative remaining time.
func RemainingMs(in TimerInput) int64 {
	budgetMs := int64(in.DurationMinutes+in.ExtraTimeMinutes) * 60_000
	if budgetMs < 0 {
		budgetMs = 0
	}

	elapsedMs := in.Now.Sub(in.StartedAt).Milliseconds() - in.PausedAccumMs
	if elapsedMs < 0 {
		elapsedMs = 0
	}

	byBudget := budgetMs - elapsedMs
	if byBudget < 0 {
		byBudget = 0
	}

	bySession := in.SessionEndsAt.Sub(in.Now).Milliseconds()
	if bySession < 0 {
		bySession = 0
	}

	if bySession < byBudget {
		return bySession
	}
	return byBudget
}
