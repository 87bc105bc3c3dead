package engine

import (
	"math"
	"testing"

	"github.com/stemsi/examguard-backend/internal/model"
)

func TestEstimateTheta(t *testing.T) {
	tests := []struct {
		name    string
		history []AnswerRecord
		want    float64
	}{
		{"no history starts at medium", nil, 0},
		{
			"all correct saturates high",
			[]AnswerRecord{
				{Correct: true, Difficulty: model.DifficultyEasy},
				{Correct: true, Difficulty: model.DifficultyHard},
			},
			1,
		},
		{
			"all wrong saturates low",
			[]AnswerRecord{
				{Correct: false, Difficulty: model.DifficultyMedium},
				{Correct: false, Difficulty: model.DifficultyMedium},
			},
			-1,
		},
		{
			"even split on equal weights is medium",
			[]AnswerRecord{
				{Correct: true, Difficulty: model.DifficultyMedium},
				{Correct: false, Difficulty: model.DifficultyMedium},
			},
			0,
		},
		{
			// Hard carries weight 2, medium weight 1: correct hard answer
			// pulls theta up past the midpoint.
			"hard answers weigh more",
			[]AnswerRecord{
				{Correct: true, Difficulty: model.DifficultyHard},
				{Correct: false, Difficulty: model.DifficultyMedium},
			},
			(2.0/3.0 - 0.5) * 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTheta(tt.history)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EstimateTheta() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectNext(t *testing.T) {
	pool := []model.Question{
		{QuestionText: "easy", Difficulty: model.DifficultyEasy},
		{QuestionText: "medium", Difficulty: model.DifficultyMedium},
		{QuestionText: "hard", Difficulty: model.DifficultyHard},
	}
	noJitter := func() float64 { return 0 }

	tests := []struct {
		theta float64
		want  string
	}{
		{0, "medium"},
		{-1, "easy"},
		{1, "hard"},
		{0.6, "hard"},
		{-0.6, "easy"},
	}
	for _, tt := range tests {
		got := SelectNext(pool, tt.theta, noJitter)
		if got == nil || got.QuestionText != tt.want {
			t.Errorf("SelectNext(theta=%v) = %v, want %s", tt.theta, got, tt.want)
		}
	}

	if got := SelectNext(nil, 0, noJitter); got != nil {
		t.Errorf("empty pool must select nothing, got %v", got)
	}
}

func TestSelectNextJitterBreaksTies(t *testing.T) {
	pool := []model.Question{
		{QuestionText: "first", Difficulty: model.DifficultyEasy},
		{QuestionText: "second", Difficulty: model.DifficultyHard},
	}

	// A deterministic source that alternates makes the second candidate
	// win every other call despite the equal distance to theta 0.
	calls := 0
	jitter := func() float64 {
		calls++
		if calls%2 == 1 {
			return 0.9
		}
		return 0.1
	}

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		got := SelectNext(pool, 0, jitter)
		seen[got.QuestionText] = true
	}
	if !seen["second"] {
		t.Error("jitter never broke the tie away from the first candidate")
	}

	// The jitter is bounded: it must not override a clear distance gap.
	pool = []model.Question{
		{QuestionText: "near", Difficulty: model.DifficultyMedium},
		{QuestionText: "far", Difficulty: model.DifficultyHard},
	}
	maxJitter := func() float64 { return 0.999999 }
	for i := 0; i < 10; i++ {
		if got := SelectNext(pool, 0, maxJitter); got.QuestionText != "near" {
			t.Fatal("bounded jitter overrode a clear distance preference")
		}
	}
}
