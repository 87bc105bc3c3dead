package engine

import (
	"testing"

	"github.com/stemsi/examguard-backend/internal/model"
)

func singleChoiceQ(points float64) *model.Question {
	return &model.Question{
		QuestionType: model.QuestionTypeSingleChoice,
		Points:       points,
		AnswerKey:    model.AnswerKey{Choice: "B"},
	}
}

func TestScoreSingleChoice(t *testing.T) {
	opt := model.ScoringOptions{}
	penalized := model.ScoringOptions{NegativeMarking: true, PenaltyPercent: 25}

	tests := []struct {
		name       string
		opt        model.ScoringOptions
		value      model.SubmittedValue
		wantV      model.Verdict
		wantPoints float64
	}{
		{"correct", opt, model.SubmittedValue{Choice: "B"}, model.VerdictCorrect, 4},
		{"correct with surrounding spaces", opt, model.SubmittedValue{Choice: " B "}, model.VerdictCorrect, 4},
		{"wrong no penalty", opt, model.SubmittedValue{Choice: "A"}, model.VerdictIncorrect, 0},
		{"wrong with 25 percent penalty", penalized, model.SubmittedValue{Choice: "A"}, model.VerdictIncorrect, -1.0},
		{"blank never penalized", penalized, model.SubmittedValue{}, model.VerdictIncorrect, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(singleChoiceQ(4), tt.value, tt.opt)
			if got.Verdict != tt.wantV || got.PointsAwarded != tt.wantPoints {
				t.Errorf("Score() = (%s, %v), want (%s, %v)", got.Verdict, got.PointsAwarded, tt.wantV, tt.wantPoints)
			}
			if got.NeedsReview {
				t.Error("single choice must never need review")
			}
		})
	}
}

func TestScoreTrueFalse(t *testing.T) {
	q := &model.Question{
		QuestionType: model.QuestionTypeTrueFalse,
		Points:       2,
		AnswerKey:    model.AnswerKey{Choice: "true"},
	}
	got := Score(q, model.SubmittedValue{Choice: "true"}, model.ScoringOptions{})
	if got.Verdict != model.VerdictCorrect || got.PointsAwarded != 2 {
		t.Errorf("Score() = (%s, %v), want (CORRECT, 2)", got.Verdict, got.PointsAwarded)
	}
}

func TestScoreMultiSelect(t *testing.T) {
	q := &model.Question{
		QuestionType: model.QuestionTypeMultiSelect,
		Points:       6,
		AnswerKey:    model.AnswerKey{Choices: []string{"A", "B", "C"}},
	}
	partial := model.ScoringOptions{PartialCredit: true}
	partialPenalty := model.ScoringOptions{PartialCredit: true, NegativeMarking: true, PenaltyPercent: 50}
	penaltyOnly := model.ScoringOptions{NegativeMarking: true, PenaltyPercent: 25}

	tests := []struct {
		name       string
		opt        model.ScoringOptions
		value      model.SubmittedValue
		wantV      model.Verdict
		wantPoints float64
	}{
		{"exact match", model.ScoringOptions{}, model.SubmittedValue{Choices: []string{"C", "A", "B"}}, model.VerdictCorrect, 6},
		{"duplicates and spaces normalize away", model.ScoringOptions{}, model.SubmittedValue{Choices: []string{"A", " A", "B ", "C"}}, model.VerdictCorrect, 6},
		{"two of three with partial credit", partial, model.SubmittedValue{Choices: []string{"A", "B"}}, model.VerdictIncorrect, 4},
		{"partial with wrong extras penalized", partialPenalty, model.SubmittedValue{Choices: []string{"A", "B", "D"}}, model.VerdictIncorrect, 3},
		{"complement set earns nothing", partial, model.SubmittedValue{Choices: []string{"D", "E"}}, model.VerdictIncorrect, 0},
		{"no partial credit means zero", model.ScoringOptions{}, model.SubmittedValue{Choices: []string{"A", "B"}}, model.VerdictIncorrect, 0},
		{"no partial credit full penalty", penaltyOnly, model.SubmittedValue{Choices: []string{"D"}}, model.VerdictIncorrect, -1.5},
		{"empty submission never penalized", penaltyOnly, model.SubmittedValue{}, model.VerdictIncorrect, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(q, tt.value, tt.opt)
			if got.Verdict != tt.wantV || got.PointsAwarded != tt.wantPoints {
				t.Errorf("Score() = (%s, %v), want (%s, %v)", got.Verdict, got.PointsAwarded, tt.wantV, tt.wantPoints)
			}
		})
	}
}

func TestScoreMultiSelectPartialBounds(t *testing.T) {
	q := &model.Question{
		QuestionType: model.QuestionTypeMultiSelect,
		Points:       5,
		AnswerKey:    model.AnswerKey{Choices: []string{"A", "B"}},
	}
	opt := model.ScoringOptions{PartialCredit: true, NegativeMarking: true, PenaltyPercent: 100}

	// One hit, three misses at full penalty would go deep negative
	// without the clamp.
	got := Score(q, model.SubmittedValue{Choices: []string{"A", "X", "Y", "Z"}}, opt)
	if got.PointsAwarded < 0 || got.PointsAwarded > q.Points {
		t.Errorf("partial score %v outside [0, %v]", got.PointsAwarded, q.Points)
	}
}

func TestScoreShortText(t *testing.T) {
	q := &model.Question{
		QuestionType: model.QuestionTypeShortText,
		Points:       3,
		AnswerKey:    model.AnswerKey{Accepted: []string{"Jakarta", "DKI Jakarta"}},
	}

	tests := []struct {
		name       string
		text       string
		wantV      model.Verdict
		wantPoints float64
	}{
		{"exact", "Jakarta", model.VerdictCorrect, 3},
		{"case and whitespace insensitive", "  dki jakarta ", model.VerdictCorrect, 3},
		{"wrong", "Bandung", model.VerdictIncorrect, 0},
		{"blank", "", model.VerdictIncorrect, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(q, model.SubmittedValue{Text: tt.text}, model.ScoringOptions{NegativeMarking: true, PenaltyPercent: 50})
			if got.Verdict != tt.wantV || got.PointsAwarded != tt.wantPoints {
				t.Errorf("Score(%q) = (%s, %v), want (%s, %v)", tt.text, got.Verdict, got.PointsAwarded, tt.wantV, tt.wantPoints)
			}
		})
	}
}

func TestScoreEssay(t *testing.T) {
	q := &model.Question{QuestionType: model.QuestionTypeEssay, Points: 10}
	got := Score(q, model.SubmittedValue{Text: "a long answer"}, model.ScoringOptions{})
	if got.Verdict != model.VerdictPending || !got.NeedsReview || got.PointsAwarded != 0 {
		t.Errorf("essay must be pending review with 0 points, got (%s, %v, review=%v)", got.Verdict, got.PointsAwarded, got.NeedsReview)
	}
}

func TestScoreMatching(t *testing.T) {
	q := &model.Question{
		QuestionType: model.QuestionTypeMatching,
		Points:       8,
		AnswerKey: model.AnswerKey{Pairs: map[string]string{
			"H2O": "water", "NaCl": "salt", "CO2": "carbon dioxide", "O2": "oxygen",
		}},
	}

	tests := []struct {
		name       string
		pairs      map[string]string
		wantV      model.Verdict
		wantPoints float64
	}{
		{
			"all correct",
			map[string]string{"H2O": "water", "NaCl": "salt", "CO2": "carbon dioxide", "O2": "oxygen"},
			model.VerdictCorrect, 8,
		},
		{
			"three of four is proportional",
			map[string]string{"H2O": "water", "NaCl": "salt", "CO2": "carbon dioxide", "O2": "water"},
			model.VerdictIncorrect, 6,
		},
		{
			"one of four",
			map[string]string{"H2O": "water"},
			model.VerdictIncorrect, 2,
		},
		{
			"none correct",
			map[string]string{"H2O": "salt"},
			model.VerdictIncorrect, 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(q, model.SubmittedValue{Pairs: tt.pairs}, model.ScoringOptions{})
			if got.Verdict != tt.wantV || got.PointsAwarded != tt.wantPoints {
				t.Errorf("Score() = (%s, %v), want (%s, %v)", got.Verdict, got.PointsAwarded, tt.wantV, tt.wantPoints)
			}
			if got.PointsAwarded < 0 || got.PointsAwarded > q.Points {
				t.Errorf("matching score %v outside [0, %v]", got.PointsAwarded, q.Points)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.005, 1.0},
		{1.015, 1.01},
		// 2.675*100 is exactly 267.5 in float64; the half rounds up.
		{2.675, 2.68},
		{0.333333, 0.33},
		{-1.005, -1.0},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
