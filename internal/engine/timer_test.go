package engine

import (
	"testing"
	"time"
)

func TestRemainingMs(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   TimerInput
		want int64
	}{
		{
			name: "full budget at start",
			in: TimerInput{
				StartedAt:       start,
				DurationMinutes: 60,
				SessionEndsAt:   start.Add(2 * time.Hour),
				Now:             start,
			},
			want: 60 * 60_000,
		},
		{
			name: "half elapsed",
			in: TimerInput{
				StartedAt:       start,
				DurationMinutes: 60,
				SessionEndsAt:   start.Add(2 * time.Hour),
				Now:             start.Add(30 * time.Minute),
			},
			want: 30 * 60_000,
		},
		{
			name: "extension adds exactly its minutes",
			in: TimerInput{
				StartedAt:        start,
				DurationMinutes:  60,
				ExtraTimeMinutes: 15,
				SessionEndsAt:    start.Add(3 * time.Hour),
				Now:              start.Add(30 * time.Minute),
			},
			want: 45 * 60_000,
		},
		{
			name: "paused time excluded from elapsed",
			in: TimerInput{
				StartedAt:       start,
				DurationMinutes: 60,
				PausedAccumMs:   10 * 60_000,
				SessionEndsAt:   start.Add(3 * time.Hour),
				Now:             start.Add(30 * time.Minute),
			},
			want: 40 * 60_000,
		},
		{
			name: "session closing earlier wins",
			in: TimerInput{
				StartedAt:       start,
				DurationMinutes: 60,
				SessionEndsAt:   start.Add(10 * time.Minute),
				Now:             start,
			},
			want: 10 * 60_000,
		},
		{
			name: "budget exhausted clamps to zero",
			in: TimerInput{
				StartedAt:       start,
				DurationMinutes: 30,
				SessionEndsAt:   start.Add(2 * time.Hour),
				Now:             start.Add(45 * time.Minute),
			},
			want: 0,
		},
		{
			name: "session already closed clamps to zero",
			in: TimerInput{
				StartedAt:       start,
				DurationMinutes: 60,
				SessionEndsAt:   start.Add(10 * time.Minute),
				Now:             start.Add(20 * time.Minute),
			},
			want: 0,
		},
		{
			name: "clock skew before start never goes negative",
			in: TimerInput{
				StartedAt:       start,
				DurationMinutes: 60,
				SessionEndsAt:   start.Add(2 * time.Hour),
				Now:             start.Add(-5 * time.Minute),
			},
			want: 60 * 60_000,
		},
		{
			name: "negative budget clamps to zero",
			in: TimerInput{
				StartedAt:        start,
				DurationMinutes:  10,
				ExtraTimeMinutes: -20,
				SessionEndsAt:    start.Add(2 * time.Hour),
				Now:              start,
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemainingMs(tt.in); got != tt.want {
				t.Errorf("RemainingMs() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRemainingMsMonotonic(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	in := TimerInput{
		StartedAt:       start,
		DurationMinutes: 45,
		SessionEndsAt:   start.Add(time.Hour),
	}

	prev := int64(1 << 62)
	for step := 0; step <= 70; step++ {
		in.Now = start.Add(time.Duration(step) * time.Minute)
		got := RemainingMs(in)
		if got > prev {
			t.Fatalf("remaining increased from %d to %d at minute %d", prev, got, step)
		}
		if got < 0 {
			t.Fatalf("remaining went negative at minute %d: %d", step, got)
		}
		prev = got
	}
}
