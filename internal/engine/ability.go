package engine

import (
	"math"

	"github.com/stemsi/examguard-backend/internal/model"
)

// selectionJitterBound caps the random noise added to each candidate's
// distance during next-question selection. Anti-predictability for repeated
// ties, not a security mechanism.
const selectionJitterBound = 0.05

// AnswerRecord is one scored answer in the ability history.
type AnswerRecord struct {
	Correct    bool
	Difficulty model.Difficulty
}

// EstimateTheta derives the ability estimate from the answer history.
// Each answer is weighted by 1+|difficulty| so hard and easy questions
// move the estimate more than medium ones. With no history the estimate
// starts at 0 (medium).
func EstimateTheta(history []AnswerRecord) float64 {
	if len(history) == 0 {
		return 0
	}

	var weighted, total float64
	for _, rec := range history {
		w := 1 + math.Abs(rec.Difficulty.Theta())
		total += w
		if rec.Correct {
			weighted += w
		}
	}
	if total == 0 {
		return 0
	}
	return (weighted/total - 0.5) * 2
}

// SelectNext picks the unanswered question whose difficulty is numerically
// closest to theta. A small bounded jitter from the injected source is
// added to every candidate's distance before comparison so repeated ties
// do not always resolve to the same question. The jitter func must return
// values in [0, 1). Returns nil when the pool is empty.
func SelectNext(pool []model.Question, theta float64, jitter func() float64) *model.Question {
	var best *model.Question
	bestDist := math.Inf(1)

	for i := range pool {
		q := &pool[i]
		dist := math.Abs(q.Difficulty.Theta()-theta) + jitter()*selectionJitterBound
		if dist < bestDist {
			bestDist = dist
			best = q
		}
	}
	return best
}
