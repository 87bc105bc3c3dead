package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/examguard-backend/internal/model"
)

// AttemptStore is the persistence contract the coordinator depends on.
// Implementations decide where each piece lives (Postgres rows, Redis
// hashes); the coordinator only cares about the semantics below.
type AttemptStore interface {
	GetAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error)
	SaveAttempt(ctx context.Context, a *model.Attempt) error

	// CompleteAttempt persists the terminal fields with a compare-and-set
	// on the finished timestamp: it returns false, without writing, when
	// another finalize already committed. The coordinator treats a lost
	// race as success.
	CompleteAttempt(ctx context.Context, a *model.Attempt) (bool, error)

	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error)
	GetQuestion(ctx context.Context, questionID uuid.UUID) (*model.Question, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)

	SaveResponse(ctx context.Context, r *model.Response) error
	ListResponses(ctx context.Context, attemptID uuid.UUID) ([]model.Response, error)

	AppendViolation(ctx context.Context, ev *model.ViolationEvent) error
	ClearViolations(ctx context.Context, attemptID uuid.UUID) error
}

// Notifier fans out engine events to observers (proctor dashboards, audit
// trails). All methods are fire-and-forget: implementations log their own
// failures, the coordinator never checks them.
type Notifier interface {
	ViolationRecorded(ctx context.Context, a *model.Attempt, ev *model.ViolationEvent, d PolicyDecision)
	AttemptFinalized(ctx context.Context, a *model.Attempt, trigger FinalizeTrigger)
}

// AccountBlocker mutates student accounts. Block is idempotent from the
// engine's perspective: blocking an already-blocked student is a no-op.
type AccountBlocker interface {
	IsBlocked(ctx context.Context, studentID int) (bool, error)
	Block(ctx context.Context, studentID int, reason string) error
}

// SettingsSource provides the global cross-exam settings. A zero
// auto-block threshold disables auto-blocking.
type SettingsSource interface {
	AutoBlockThreshold(ctx context.Context) int
}
