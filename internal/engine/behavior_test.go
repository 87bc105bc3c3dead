package engine

import (
	"testing"
	"time"

	"github.com/stemsi/examguard-backend/internal/model"
)

func choiceSamples(n int, gap time.Duration, choice string) []BehaviorSample {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := make([]BehaviorSample, n)
	for i := range out {
		out[i] = BehaviorSample{
			QuestionType: model.QuestionTypeSingleChoice,
			Choice:       choice,
			SubmittedAt:  base.Add(time.Duration(i) * gap),
		}
	}
	return out
}

func hasFlag(flags []model.BehaviorFlag, flagType string) bool {
	for _, f := range flags {
		if f.Type == flagType {
			return true
		}
	}
	return false
}

func TestAnalyzeBehaviorFastCompletion(t *testing.T) {
	// Vary the choice so the uniform-pattern heuristic stays quiet.
	samples := choiceSamples(10, time.Second, "")
	for i := range samples {
		samples[i].Choice = string(rune('A' + i%4))
	}

	flags := AnalyzeBehavior(samples, 50, 10*time.Second, time.Hour)
	if !hasFlag(flags, FlagFastCompletion) {
		t.Fatal("10 answers at 1s intervals must flag fast_completion")
	}
	for _, f := range flags {
		if f.Type == FlagFastCompletion && f.Severity != SeverityHigh {
			t.Errorf("fast_completion severity = %s, want high", f.Severity)
		}
	}

	slow := choiceSamples(10, 4*time.Minute, "")
	for i := range slow {
		slow[i].Choice = string(rune('A' + i%4))
	}
	if flags := AnalyzeBehavior(slow, 50, 40*time.Minute, time.Hour); hasFlag(flags, FlagFastCompletion) {
		t.Fatal("answers 4 minutes apart must not flag fast_completion")
	}
}

func TestAnalyzeBehaviorUniformPattern(t *testing.T) {
	// 9 of 10 choice answers picked "C": well above the 80% share floor.
	samples := choiceSamples(10, time.Minute, "C")
	samples[0].Choice = "A"

	flags := AnalyzeBehavior(samples, 50, 30*time.Minute, time.Hour)
	if !hasFlag(flags, FlagSameAnswerPattern) {
		t.Fatal("90% same key must flag same_answer_pattern")
	}

	// Exactly 80% does not cross the strict threshold.
	samples = choiceSamples(10, time.Minute, "C")
	samples[0].Choice = "A"
	samples[1].Choice = "B"
	if flags := AnalyzeBehavior(samples, 50, 30*time.Minute, time.Hour); hasFlag(flags, FlagSameAnswerPattern) {
		t.Fatal("exactly 80% must not flag same_answer_pattern")
	}

	// Too few choice responses regardless of uniformity.
	if flags := AnalyzeBehavior(choiceSamples(4, time.Minute, "C"), 50, 30*time.Minute, time.Hour); hasFlag(flags, FlagSameAnswerPattern) {
		t.Fatal("fewer than 5 choice responses must not flag same_answer_pattern")
	}

	// Non-choice responses do not count toward the sample.
	essays := make([]BehaviorSample, 10)
	for i := range essays {
		essays[i] = BehaviorSample{QuestionType: model.QuestionTypeEssay, SubmittedAt: time.Now().Add(time.Duration(i) * time.Minute)}
	}
	if flags := AnalyzeBehavior(essays, 50, 30*time.Minute, time.Hour); hasFlag(flags, FlagSameAnswerPattern) {
		t.Fatal("essay responses must not feed the uniform-pattern heuristic")
	}
}

func TestAnalyzeBehaviorPerfectFast(t *testing.T) {
	samples := choiceSamples(3, 2*time.Minute, "")
	for i := range samples {
		samples[i].Choice = string(rune('A' + i))
	}

	flags := AnalyzeBehavior(samples, 100, 10*time.Minute, time.Hour)
	if !hasFlag(flags, FlagPerfectFast) {
		t.Fatal("score 100 in 10 of 60 minutes must flag perfect_fast")
	}

	if flags := AnalyzeBehavior(samples, 100, 30*time.Minute, time.Hour); hasFlag(flags, FlagPerfectFast) {
		t.Fatal("score 100 at half the allotted time must not flag perfect_fast")
	}
	if flags := AnalyzeBehavior(samples, 99.5, 10*time.Minute, time.Hour); hasFlag(flags, FlagPerfectFast) {
		t.Fatal("non-perfect score must not flag perfect_fast")
	}
}

func TestPromoteFlags(t *testing.T) {
	a := &model.Attempt{}
	if PromoteFlags(a, nil) {
		t.Fatal("empty flag list must not mutate the attempt")
	}

	mutated := PromoteFlags(a, []model.BehaviorFlag{
		{Type: FlagPerfectFast, Severity: SeverityMedium},
	})
	if !mutated || a.Flagged {
		t.Fatalf("medium-only flags must append but not set Flagged (mutated=%v, flagged=%v)", mutated, a.Flagged)
	}

	PromoteFlags(a, []model.BehaviorFlag{
		{Type: FlagFastCompletion, Severity: SeverityHigh},
	})
	if !a.Flagged || a.FlagReason == "" {
		t.Fatal("a high-severity flag must set Flagged with a reason")
	}
	if len(a.BehaviorFlags) != 2 {
		t.Errorf("behavior flags = %d, want 2", len(a.BehaviorFlags))
	}

	// An existing flag reason from the violation policy is not overwritten.
	b := &model.Attempt{Flagged: true, FlagReason: "exceeded maximum (5/5)"}
	PromoteFlags(b, []model.BehaviorFlag{{Type: FlagFastCompletion, Severity: SeverityHigh}})
	if b.FlagReason != "exceeded maximum (5/5)" {
		t.Errorf("existing flag reason overwritten: %q", b.FlagReason)
	}
}
