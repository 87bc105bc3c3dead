package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeTrueFalse    QuestionType = "TRUE_FALSE"
	QuestionTypeMultiSelect  QuestionType = "MULTI_SELECT"
	QuestionTypeShortText    QuestionType = "SHORT_TEXT"
	QuestionTypeEssay        QuestionType = "ESSAY"
	QuestionTypeMatching     QuestionType = "MATCHING"
)

// Difficulty is the question's difficulty band for adaptive selection.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Theta maps the difficulty band onto the ability scale: easy=-1,
// medium=0, hard=+1. Unknown bands count as medium.
func (d Difficulty) Theta() float64 {
	switch d {
	case DifficultyEasy:
		return -1
	case DifficultyHard:
		return 1
	default:
		return 0
	}
}

// AnswerKey is the correct-answer representation. The populated field
// depends on the question type: Choice for single-choice/true-false,
// Choices for multi-select, Accepted for short-text, Pairs for matching.
// Essays carry no key and are always routed to manual review.
type AnswerKey struct {
	Choice   string            `json:"choice,omitempty"`
	Choices  []string          `json:"choices,omitempty"`
	Accepted []string          `json:"accepted,omitempty"`
	Pairs    map[string]string `json:"pairs,omitempty"`
}

// Question defines one exam question. Immutable from the engine's point
// of view.
type Question struct {
	ID           uuid.UUID       `json:"id"`
	ExamID       uuid.UUID       `json:"exam_id"`
	QuestionText string          `json:"question_text"`
	QuestionType QuestionType    `json:"question_type"`
	Options      json.RawMessage `json:"options,omitempty"`
	Points       float64         `json:"points"`
	Difficulty   Difficulty      `json:"difficulty"`
	AnswerKey    AnswerKey       `json:"answer_key"`
	OrderNum     int             `json:"order_num"`
}

// QuestionForStudent is a question without the answer key, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	QuestionType QuestionType    `json:"question_type"`
	Options      json.RawMessage `json:"options,omitempty"`
	Points       float64         `json:"points"`
	Difficulty   Difficulty      `json:"difficulty"`
	OrderNum     int             `json:"order_num"`
}

// ForStudent strips the answer key from a question.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		QuestionType: q.QuestionType,
		Options:      q.Options,
		Points:       q.Points,
		Difficulty:   q.Difficulty,
		OrderNum:     q.OrderNum,
	}
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	QuestionText string          `json:"question_text" binding:"required,min=1,max=2000"`
	QuestionType string          `json:"question_type" binding:"required,oneof=SINGLE_CHOICE TRUE_FALSE MULTI_SELECT SHORT_TEXT ESSAY MATCHING"`
	Options      json.RawMessage `json:"options" binding:"omitempty"`
	Points       float64         `json:"points" binding:"required,gt=0"`
	Difficulty   string          `json:"difficulty" binding:"omitempty,oneof=EASY MEDIUM HARD"`
	AnswerKey    AnswerKey       `json:"answer_key"`
	OrderNum     int             `json:"order_num" binding:"min=0"`
}
