package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/stemsi/examguard-backend/internal/model"
)

// ScoreResult is the outcome of grading one response.
type ScoreResult struct {
	Verdict       model.Verdict
	PointsAwarded float64
	NeedsReview   bool
}

// Score grades a submitted value against a question under the exam's
// scoring options. Pure and deterministic; never returns an error.
// Malformed or out-of-range values resolve to the safest outcome
// (0 points, not correct); shape validation belongs at the boundary,
// before this is invoked.
func Score(q *model.Question, v model.SubmittedValue, opt model.ScoringOptions) ScoreResult {
	switch q.QuestionType {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		return scoreSingleChoice(q, v, opt)
	case model.QuestionTypeMultiSelect:
		return scoreMultiSelect(q, v, opt)
	case model.QuestionTypeShortText:
		return scoreShortText(q, v)
	case model.QuestionTypeEssay:
		// Essays are never auto-scored.
		return ScoreResult{Verdict: model.VerdictPending, NeedsReview: true}
	case model.QuestionTypeMatching:
		return scoreMatching(q, v)
	}
	return ScoreResult{Verdict: model.VerdictIncorrect}
}

func scoreSingleChoice(q *model.Question, v model.SubmittedValue, opt model.ScoringOptions) ScoreResult {
	if v.Blank(q.QuestionType) {
		// A blank submission never incurs a penalty.
		return ScoreResult{Verdict: model.VerdictIncorrect}
	}

	if normalizeKey(v.Choice) == normalizeKey(q.AnswerKey.Choice) {
		return ScoreResult{Verdict: model.VerdictCorrect, PointsAwarded: q.Points}
	}

	res := ScoreResult{Verdict: model.VerdictIncorrect}
	if opt.NegativeMarking {
		res.PointsAwarded = -round2(q.Points * opt.PenaltyPercent / 100)
	}
	return res
}

func scoreMultiSelect(q *model.Question, v model.SubmittedValue, opt model.ScoringOptions) ScoreResult {
	correct := normalizeSet(q.AnswerKey.Choices)
	submitted := normalizeSet(v.Choices)

	if len(submitted) == 0 {
		return ScoreResult{Verdict: model.VerdictIncorrect}
	}

	if setsEqual(correct, submitted) {
		return ScoreResult{Verdict: model.VerdictCorrect, PointsAwarded: q.Points}
	}

	res := ScoreResult{Verdict: model.VerdictIncorrect}
	switch {
	case opt.PartialCredit && len(correct) > 0:
		hits := intersectionSize(correct, submitted)
		partial := round2(float64(hits) / float64(len(correct)) * q.Points)
		if opt.NegativeMarking {
			misses := len(submitted) - hits
			penalty := round2(float64(misses) / float64(len(correct)) * q.Points * opt.PenaltyPercent / 100)
			partial = round2(partial - penalty)
		}
		// The partial-credit branch is clamped at zero: never negative,
		// never above the question's points.
		if partial < 0 {
			partial = 0
		}
		if partial > q.Points {
			partial = q.Points
		}
		res.PointsAwarded = partial
	case opt.NegativeMarking:
		res.PointsAwarded = -round2(q.Points * opt.PenaltyPercent / 100)
	}
	return res
}

func scoreShortText(q *model.Question, v model.SubmittedValue) ScoreResult {
	if v.Blank(q.QuestionType) {
		return ScoreResult{Verdict: model.VerdictIncorrect}
	}

	submitted := normalizeText(v.Text)
	for _, accepted := range q.AnswerKey.Accepted {
		if submitted == normalizeText(accepted) {
			return ScoreResult{Verdict: model.VerdictCorrect, PointsAwarded: q.Points}
		}
	}
	// Full credit or nothing, no partial credit for short text.
	return ScoreResult{Verdict: model.VerdictIncorrect}
}

func scoreMatching(q *model.Question, v model.SubmittedValue) ScoreResult {
	total := len(q.AnswerKey.Pairs)
	if total == 0 {
		return ScoreResult{Verdict: model.VerdictIncorrect}
	}

	hits := 0
	for left, right := range q.AnswerKey.Pairs {
		if submitted, ok := v.Pairs[left]; ok && normalizeKey(submitted) == normalizeKey(right) {
			hits++
		}
	}

	if hits == total {
		return ScoreResult{Verdict: model.VerdictCorrect, PointsAwarded: q.Points}
	}
	// Matching always grants proportional credit; no configuration flag.
	return ScoreResult{
		Verdict:       model.VerdictIncorrect,
		PointsAwarded: round2(float64(hits) / float64(total) * q.Points),
	}
}

// round2 rounds to 2 decimal places. Applied at the point of computation
// so stored per-answer values match the aggregate exactly.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func normalizeKey(s string) string {
	return strings.TrimSpace(s)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeSet trims, drops empties, dedupes, and sorts.
func normalizeSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func setsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intersectionSize(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	n := 0
	for _, s := range b {
		if _, ok := set[s]; ok {
			n++
		}
	}
	return n
}
