package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// ScoringOptions controls how responses are graded for one exam.
type ScoringOptions struct {
	// PartialCredit enables proportional credit on multi-select questions.
	// Matching questions always grant partial credit regardless of this flag.
	PartialCredit bool `json:"partial_credit"`

	// NegativeMarking deducts points for wrong (non-blank) submissions.
	// PenaltyPercent is the fraction of the question's points deducted,
	// expressed as a percentage (25 means a quarter of the points).
	NegativeMarking bool    `json:"negative_marking"`
	PenaltyPercent  float64 `json:"penalty_percent"`

	// PassingGrade is the 0-100 score required to pass. Zero means no
	// pass/fail verdict is computed (status stays PENDING).
	PassingGrade float64 `json:"passing_grade"`
}

// IntegrityConfig holds the per-exam anti-cheat thresholds.
type IntegrityConfig struct {
	AntiCheatEnabled bool `json:"anti_cheat_enabled"`

	// WarningThreshold is the violation count at which the attempt is
	// flagged. MaxViolations is the count at which the flag reason is
	// escalated and, if AutoSubmitOnMax is set, the attempt is
	// force-submitted.
	WarningThreshold int  `json:"warning_threshold"`
	MaxViolations    int  `json:"max_violations"`
	AutoSubmitOnMax  bool `json:"auto_submit_on_max"`
}

// Exam represents an exam definition.
type Exam struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	AuthorID        int             `json:"author_id"`
	DurationMinutes int             `json:"duration_minutes"`
	AdaptiveMode    bool            `json:"adaptive_mode"`
	Scoring         ScoringOptions  `json:"scoring"`
	Integrity       IntegrityConfig `json:"integrity"`
	Status          ExamStatus      `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ExamSession is one scheduled sitting of an exam. Attempts belong to a
// session; the session window is a hard upper bound on every attempt's
// remaining time, even when the attempt's own budget would allow more.
type ExamSession struct {
	ID       uuid.UUID `json:"id"`
	ExamID   uuid.UUID `json:"exam_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// ExamPayload is the Redis-cached payload sent to students (no answer keys).
type ExamPayload struct {
	ExamID       uuid.UUID            `json:"exam_id"`
	Title        string               `json:"title"`
	Duration     int                  `json:"duration_minutes"`
	AdaptiveMode bool                 `json:"adaptive_mode"`
	Questions    []QuestionForStudent `json:"questions"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string          `json:"title" binding:"required,min=3,max=255"`
	DurationMinutes int             `json:"duration_minutes" binding:"required,min=1,max=480"`
	AdaptiveMode    bool            `json:"adaptive_mode"`
	Scoring         ScoringOptions  `json:"scoring"`
	Integrity       IntegrityConfig `json:"integrity"`
}

// CreateSessionRequest is the payload for scheduling an exam sitting.
type CreateSessionRequest struct {
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required,gtfield=StartsAt"`
}
