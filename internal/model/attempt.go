package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the states of a student's exam attempt.
type AttemptStatus string

const (
	AttemptStatusNotStarted     AttemptStatus = "NOT_STARTED"
	AttemptStatusInProgress     AttemptStatus = "IN_PROGRESS"
	AttemptStatusPaused         AttemptStatus = "PAUSED"
	AttemptStatusCompleted      AttemptStatus = "COMPLETED"
	AttemptStatusForceSubmitted AttemptStatus = "FORCE_SUBMITTED"
)

// Terminal reports whether the status is absorbing. A terminal attempt
// accepts no further answers, violations, or pause transitions.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusForceSubmitted
}

// PassFailStatus is the pass/fail verdict computed at finalization.
type PassFailStatus string

const (
	PassFailPassed  PassFailStatus = "PASSED"
	PassFailFailed  PassFailStatus = "FAILED"
	PassFailPending PassFailStatus = "PENDING"
)

// Attempt represents one student's single try at one exam sitting.
type Attempt struct {
	ID        uuid.UUID `json:"id"`
	ExamID    uuid.UUID `json:"exam_id"`
	SessionID uuid.UUID `json:"session_id"`
	StudentID int       `json:"student_id"`

	Status     AttemptStatus `json:"status"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`

	// ExtraTimeMinutes is a per-attempt extension granted on top of the
	// exam's base duration.
	ExtraTimeMinutes int `json:"extra_time_minutes"`

	// PausedAccumMs is the total milliseconds spent paused across all
	// pause/resume cycles. PausedAt is non-nil only while paused.
	PausedAccumMs int64      `json:"paused_accum_ms"`
	PausedAt      *time.Time `json:"-"`

	ViolationTotal  int             `json:"violation_total"`
	ViolationCounts ViolationCounts `json:"violation_counts"`

	Flagged       bool           `json:"flagged"`
	FlagReason    string         `json:"flag_reason,omitempty"`
	BehaviorFlags []BehaviorFlag `json:"behavior_flags,omitempty"`

	PointsPossible float64        `json:"points_possible"`
	PointsEarned   float64        `json:"points_earned"`
	ScoreValue     float64        `json:"score_value"`
	PassStatus     PassFailStatus `json:"pass_status"`
}

// BehaviorFlag is an advisory flag produced by the post-completion
// behavior analysis pass. It never affects the score.
type BehaviorFlag struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`
}

// Verdict is the correctness outcome of a scored response.
type Verdict string

const (
	VerdictCorrect   Verdict = "CORRECT"
	VerdictIncorrect Verdict = "INCORRECT"
	VerdictPending   Verdict = "PENDING"
)

// Response is one student's stored answer to one question within an attempt.
type Response struct {
	AttemptID     uuid.UUID      `json:"attempt_id"`
	QuestionID    uuid.UUID      `json:"question_id"`
	Value         SubmittedValue `json:"value"`
	Verdict       Verdict        `json:"verdict"`
	PointsAwarded float64        `json:"points_awarded"`
	NeedsReview   bool           `json:"needs_review"`
	SubmittedAt   time.Time      `json:"submitted_at"`
}

// SubmittedValue carries the raw submitted answer. Exactly one field group
// is meaningful depending on the question's type.
type SubmittedValue struct {
	Choice  string            `json:"choice,omitempty"`
	Choices []string          `json:"choices,omitempty"`
	Text    string            `json:"text,omitempty"`
	Pairs   map[string]string `json:"pairs,omitempty"`
}

// Blank reports whether the submission is empty for the given question
// type. A blank submission never incurs a negative-marking penalty.
func (v SubmittedValue) Blank(t QuestionType) bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeTrueFalse:
		return v.Choice == ""
	case QuestionTypeMultiSelect:
		return len(v.Choices) == 0
	case QuestionTypeShortText, QuestionTypeEssay:
		return v.Text == ""
	case QuestionTypeMatching:
		return len(v.Pairs) == 0
	}
	return true
}

// SubmitAnswerRequest is the payload for submitting an answer.
type SubmitAnswerRequest struct {
	QuestionID string         `json:"question_id" binding:"required,uuid"`
	Value      SubmittedValue `json:"value" binding:"required"`
}

// RecordViolationRequest is the payload for reporting a violation event.
type RecordViolationRequest struct {
	Type     string `json:"type" binding:"required,max=40"`
	Metadata string `json:"metadata" binding:"omitempty,max=4096"`
}

// PauseAttemptRequest is the payload for an administrative pause.
type PauseAttemptRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=255"`
}
