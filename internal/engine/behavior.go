package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stemsi/examguard-backend/internal/model"
)

// Behavior-analysis thresholds. The heuristics are advisory; tuning these
// changes sensitivity, never scores.
const (
	fastGapFloor      = 3 * time.Second
	fastStreakMin     = 5
	uniformShareFloor = 0.8
	uniformSampleMin  = 5
	perfectFastRatio  = 0.2
)

// Behavior flag types and severities.
const (
	FlagFastCompletion    = "fast_completion"
	FlagSameAnswerPattern = "same_answer_pattern"
	FlagPerfectFast       = "perfect_fast"

	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// BehaviorSample is one answer event from the attempt's timeline, reduced
// to what the heuristics need.
type BehaviorSample struct {
	QuestionType model.QuestionType
	Choice       string
	SubmittedAt  time.Time
}

// AnalyzeBehavior runs the post-completion heuristic pass over an attempt's
// full answer timeline. The heuristics are independent; each contributes to
// the flags list without short-circuiting the others. The pass never
// touches scores.
func AnalyzeBehavior(samples []BehaviorSample, finalScore float64, elapsed, allotted time.Duration) []model.BehaviorFlag {
	var flags []model.BehaviorFlag

	if f := detectFastCompletion(samples); f != nil {
		flags = append(flags, *f)
	}
	if f := detectUniformPattern(samples); f != nil {
		flags = append(flags, *f)
	}
	if finalScore == 100 && allotted > 0 && elapsed < time.Duration(float64(allotted)*perfectFastRatio) {
		flags = append(flags, model.BehaviorFlag{
			Type:     FlagPerfectFast,
			Severity: SeverityMedium,
			Detail:   fmt.Sprintf("perfect score in %s of %s allotted", elapsed.Round(time.Second), allotted),
		})
	}

	return flags
}

// detectFastCompletion counts consecutive answer gaps below the floor; a
// streak of fastStreakMin or more flags the attempt.
func detectFastCompletion(samples []BehaviorSample) *model.BehaviorFlag {
	if len(samples) < fastStreakMin+1 {
		return nil
	}

	ordered := make([]BehaviorSample, len(samples))
	copy(ordered, samples)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SubmittedAt.Before(ordered[j].SubmittedAt)
	})

	streak, best := 0, 0
	for i := 1; i < len(ordered); i++ {
		if ordered[i].SubmittedAt.Sub(ordered[i-1].SubmittedAt) < fastGapFloor {
			streak++
			if streak > best {
				best = streak
			}
		} else {
			streak = 0
		}
	}

	if best >= fastStreakMin {
		return &model.BehaviorFlag{
			Type:     FlagFastCompletion,
			Severity: SeverityHigh,
			Detail:   fmt.Sprintf("%d consecutive answers under %s apart", best, fastGapFloor),
		}
	}
	return nil
}

// detectUniformPattern checks whether the bulk of the choice answers all
// picked the same key. Only single-choice and true-false responses count.
func detectUniformPattern(samples []BehaviorSample) *model.BehaviorFlag {
	counts := make(map[string]int)
	total := 0
	for _, s := range samples {
		if s.QuestionType != model.QuestionTypeSingleChoice && s.QuestionType != model.QuestionTypeTrueFalse {
			continue
		}
		if s.Choice == "" {
			continue
		}
		counts[s.Choice]++
		total++
	}
	if total < uniformSampleMin {
		return nil
	}

	for key, n := range counts {
		if float64(n)/float64(total) > uniformShareFloor {
			return &model.BehaviorFlag{
				Type:     FlagSameAnswerPattern,
				Severity: SeverityMedium,
				Detail:   fmt.Sprintf("%d of %d choice answers selected %q", n, total, key),
			}
		}
	}
	return nil
}

// PromoteFlags applies the analysis result to the attempt's flag state. A
// high-severity flag not already reflected in the attempt's flag sets it,
// with a reason summarizing the triggered types. Returns true if the
// attempt was mutated.
func PromoteFlags(a *model.Attempt, flags []model.BehaviorFlag) bool {
	if len(flags) == 0 {
		return false
	}
	a.BehaviorFlags = append(a.BehaviorFlags, flags...)

	var highTypes []string
	for _, f := range flags {
		if f.Severity == SeverityHigh {
			highTypes = append(highTypes, f.Type)
		}
	}
	if len(highTypes) > 0 && !a.Flagged {
		a.Flagged = true
		a.FlagReason = "behavior analysis: " + strings.Join(highTypes, ", ")
	}
	return true
}
