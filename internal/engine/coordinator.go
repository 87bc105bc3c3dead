package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/examguard-backend/internal/model"
)

// FinalizeTrigger identifies which path ended the attempt. Student submit
// and timer expiry land on COMPLETED; policy kicks and administrative
// terminations land on FORCE_SUBMITTED.
type FinalizeTrigger string

const (
	TriggerStudentSubmit  FinalizeTrigger = "student_submit"
	TriggerTimerExpiry    FinalizeTrigger = "timer_expiry"
	TriggerPolicyKick     FinalizeTrigger = "policy_kick"
	TriggerAdminTerminate FinalizeTrigger = "admin_terminate"
)

func (t FinalizeTrigger) terminalStatus() model.AttemptStatus {
	switch t {
	case TriggerPolicyKick, TriggerAdminTerminate:
		return model.AttemptStatusForceSubmitted
	default:
		return model.AttemptStatusCompleted
	}
}

// IntegritySummary is the counter and flag snapshot for one attempt.
type IntegritySummary struct {
	Total         int                   `json:"total"`
	Counts        model.ViolationCounts `json:"counts"`
	Flagged       bool                  `json:"flagged"`
	FlagReason    string                `json:"flag_reason,omitempty"`
	BehaviorFlags []model.BehaviorFlag  `json:"behavior_flags,omitempty"`
}

// Coordinator owns the attempt state machine. Every mutating operation
// serializes on a per-attempt mutex so the check-then-set on the finished
// timestamp can never race within this process; the store's compare-and-set
// covers races across processes. The coordinator is the only component
// that writes an attempt's terminal fields.
type Coordinator struct {
	store    AttemptStore
	notifier Notifier
	blocker  AccountBlocker
	settings SettingsSource
	clock    Clock
	jitter   func() float64
	logger   zerolog.Logger

	locks sync.Map // attempt id -> *sync.Mutex
}

// NewCoordinator wires the engine's ports together. The jitter func must
// return values in [0, 1); pass rand.Float64 in production.
func NewCoordinator(
	store AttemptStore,
	notifier Notifier,
	blocker AccountBlocker,
	settings SettingsSource,
	clock Clock,
	jitter func() float64,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		store:    store,
		notifier: notifier,
		blocker:  blocker,
		settings: settings,
		clock:    clock,
		jitter:   jitter,
		logger:   logger.With().Str("component", "attempt_coordinator").Logger(),
	}
}

func (c *Coordinator) lockFor(attemptID uuid.UUID) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(attemptID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// dropLock forgets a terminal attempt's mutex so the map does not grow with
// every attempt the process ever touched. Safe while the mutex is still
// held: a caller that races in on a fresh mutex observes the committed
// terminal state and is turned away.
func (c *Coordinator) dropLock(attemptID uuid.UUID) {
	c.locks.Delete(attemptID)
}

// Start transitions a NOT_STARTED attempt to IN_PROGRESS and stamps its
// start time. Starting an attempt that is already running is a no-op;
// starting a terminal one is an error.
func (c *Coordinator) Start(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	mu := c.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	switch a.Status {
	case model.AttemptStatusInProgress, model.AttemptStatusPaused:
		return a, nil
	case model.AttemptStatusNotStarted:
	default:
		c.dropLock(a.ID)
		return nil, fmt.Errorf("start on %s attempt: %w", a.Status, ErrInvalidState)
	}

	session, err := c.store.GetSession(ctx, a.SessionID)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	if now.Before(session.StartsAt) || !now.Before(session.EndsAt) {
		return nil, fmt.Errorf("session window closed: %w", ErrInvalidState)
	}

	a.Status = model.AttemptStatusInProgress
	if a.StartedAt == nil {
		a.StartedAt = &now
	}
	if err := c.store.SaveAttempt(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SubmitAnswer scores and persists one answer. Expiry detected here is a
// finalize trigger, not an advisory value: a submission arriving after
// time ran out finalizes the attempt and is rejected.
func (c *Coordinator) SubmitAnswer(ctx context.Context, attemptID, questionID uuid.UUID, value model.SubmittedValue) (*model.Response, error) {
	mu := c.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusInProgress {
		if a.Status.Terminal() {
			c.dropLock(a.ID)
		}
		return nil, fmt.Errorf("submit on %s attempt: %w", a.Status, ErrInvalidState)
	}

	exam, err := c.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	remaining, err := c.remainingLocked(ctx, a, exam)
	if err != nil {
		return nil, err
	}
	if remaining == 0 {
		if _, err := c.finalizeLocked(ctx, a, exam, TriggerTimerExpiry); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("time expired: %w", ErrInvalidState)
	}

	q, err := c.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.ExamID != a.ExamID {
		return nil, fmt.Errorf("question %s not in exam %s: %w", questionID, a.ExamID, ErrNotFound)
	}
	if err := validateShape(q.QuestionType, value); err != nil {
		return nil, err
	}

	result := Score(q, value, exam.Scoring)
	resp := &model.Response{
		AttemptID:     a.ID,
		QuestionID:    q.ID,
		Value:         value,
		Verdict:       result.Verdict,
		PointsAwarded: result.PointsAwarded,
		NeedsReview:   result.NeedsReview,
		SubmittedAt:   c.clock.Now(),
	}
	if err := c.store.SaveResponse(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RecordViolation appends one violation to the attempt's ledger and applies
// the integrity policy to the new counters. Valid only while the attempt
// is in progress and the exam has anti-cheat enabled.
func (c *Coordinator) RecordViolation(ctx context.Context, attemptID uuid.UUID, vtype model.ViolationType, metadata []byte) (*model.Attempt, error) {
	mu := c.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusInProgress {
		if a.Status.Terminal() {
			c.dropLock(a.ID)
		}
		return nil, fmt.Errorf("violation on %s attempt: %w", a.Status, ErrInvalidState)
	}

	exam, err := c.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	if !exam.Integrity.AntiCheatEnabled {
		return nil, fmt.Errorf("anti-cheat off for exam %s: %w", exam.ID, ErrConfigurationDisabled)
	}

	NewLedger(a).Append(vtype)

	ev := &model.ViolationEvent{
		ID:         uuid.New(),
		AttemptID:  a.ID,
		ExamID:     a.ExamID,
		StudentID:  a.StudentID,
		Type:       vtype,
		Metadata:   metadata,
		OccurredAt: c.clock.Now(),
	}

	alreadyBlocked, err := c.blocker.IsBlocked(ctx, a.StudentID)
	if err != nil {
		// Treat an unreadable block state as not blocked; the Block call
		// itself is idempotent, so the worst case is a redundant call.
		c.logger.Warn().Err(err).Int("student_id", a.StudentID).Msg("failed to read block state")
		alreadyBlocked = false
	}

	decision := EvaluatePolicy(PolicyInput{
		Total:              a.ViolationTotal,
		WarningThreshold:   exam.Integrity.WarningThreshold,
		MaxViolations:      exam.Integrity.MaxViolations,
		AutoSubmitOnMax:    exam.Integrity.AutoSubmitOnMax,
		AutoBlockThreshold: c.settings.AutoBlockThreshold(ctx),
		AlreadyFlagged:     a.Flagged,
		CurrentFlagReason:  a.FlagReason,
		AlreadyBlocked:     alreadyBlocked,
	})

	if decision.Flag {
		a.Flagged = true
		a.FlagReason = decision.FlagReason
	}

	if err := c.store.SaveAttempt(ctx, a); err != nil {
		return nil, err
	}
	if err := c.store.AppendViolation(ctx, ev); err != nil {
		return nil, err
	}

	// Everything below is downstream of the committed state transition;
	// failures are logged and swallowed.
	if decision.Block {
		if err := c.blocker.Block(ctx, a.StudentID, decision.BlockReason); err != nil {
			c.logger.Error().Err(err).Int("student_id", a.StudentID).Msg("auto-block failed")
		} else {
			c.logger.Warn().
				Int("student_id", a.StudentID).
				Str("reason", decision.BlockReason).
				Msg("student auto-blocked")
		}
	}

	if decision.ForceSubmit {
		if _, err := c.finalizeLocked(ctx, a, exam, TriggerPolicyKick); err != nil {
			c.logger.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("policy force-submit failed")
		}
	}

	c.notifier.ViolationRecorded(ctx, a, ev, decision)
	return a, nil
}

// Pause suspends an in-progress attempt. Pausing an already-paused attempt
// is a no-op, not an error.
func (c *Coordinator) Pause(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	mu := c.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case model.AttemptStatusPaused:
		return a, nil
	case model.AttemptStatusInProgress:
	default:
		if a.Status.Terminal() {
			c.dropLock(a.ID)
		}
		return nil, fmt.Errorf("pause on %s attempt: %w", a.Status, ErrInvalidState)
	}

	now := c.clock.Now()
	a.Status = model.AttemptStatusPaused
	a.PausedAt = &now
	if err := c.store.SaveAttempt(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Resume puts a paused attempt back in progress, folding the paused span
// into the accumulated total. Resuming twice is a no-op.
func (c *Coordinator) Resume(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	mu := c.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case model.AttemptStatusInProgress:
		return a, nil
	case model.AttemptStatusPaused:
	default:
		if a.Status.Terminal() {
			c.dropLock(a.ID)
		}
		return nil, fmt.Errorf("resume on %s attempt: %w", a.Status, ErrInvalidState)
	}

	now := c.clock.Now()
	if a.PausedAt != nil {
		span := now.Sub(*a.PausedAt).Milliseconds()
		if span > 0 {
			a.PausedAccumMs += span
		}
		a.PausedAt = nil
	}
	a.Status = model.AttemptStatusInProgress
	if err := c.store.SaveAttempt(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Finalize drives the attempt to its terminal state. Idempotent: calling
// it again (or concurrently) returns the already-committed attempt.
func (c *Coordinator) Finalize(ctx context.Context, attemptID uuid.UUID, trigger FinalizeTrigger) (*model.Attempt, error) {
	mu := c.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	exam, err := c.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	return c.finalizeLocked(ctx, a, exam, trigger)
}

// finalizeLocked runs the terminal transition under the caller-held lock.
// The one-way gate is the finished timestamp, checked here and enforced
// again by the store's compare-and-set for cross-process safety.
func (c *Coordinator) finalizeLocked(ctx context.Context, a *model.Attempt, exam *model.Exam, trigger FinalizeTrigger) (*model.Attempt, error) {
	if a.FinishedAt != nil || a.Status.Terminal() {
		c.dropLock(a.ID)
		return a, nil
	}

	now := c.clock.Now()
	if a.PausedAt != nil {
		span := now.Sub(*a.PausedAt).Milliseconds()
		if span > 0 {
			a.PausedAccumMs += span
		}
		a.PausedAt = nil
	}

	questions, err := c.store.ListQuestions(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	responses, err := c.store.ListResponses(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	var possible, earned float64
	for _, q := range questions {
		possible += q.Points
	}
	needsReview := false
	for _, r := range responses {
		earned += r.PointsAwarded
		if r.NeedsReview {
			needsReview = true
		}
	}

	a.PointsPossible = possible
	a.PointsEarned = round2(earned)
	if possible > 0 {
		score := round2(earned / possible * 100)
		if score < 0 {
			score = 0
		}
		a.ScoreValue = score
	} else {
		a.ScoreValue = 0
	}

	switch {
	case needsReview:
		a.PassStatus = model.PassFailPending
	case exam.Scoring.PassingGrade > 0 && a.ScoreValue >= exam.Scoring.PassingGrade:
		a.PassStatus = model.PassFailPassed
	case exam.Scoring.PassingGrade > 0:
		a.PassStatus = model.PassFailFailed
	default:
		a.PassStatus = model.PassFailPending
	}

	a.Status = trigger.terminalStatus()
	a.FinishedAt = &now

	applied, err := c.store.CompleteAttempt(ctx, a)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the finalize race to another process. Success-equivalent:
		// surface the committed result, not an error.
		committed, err := c.store.GetAttempt(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		*a = *committed
		c.dropLock(a.ID)
		return a, nil
	}

	// Behavioral analysis runs after the terminal state is committed so
	// it can never block the submission itself.
	c.analyzeLocked(ctx, a, exam, questions, responses, now)

	// Terminal attempts can no longer transition, so their mutex entry is
	// dropped; a late caller gets a fresh mutex and the terminal check.
	c.dropLock(a.ID)

	c.notifier.AttemptFinalized(ctx, a, trigger)
	c.logger.Info().
		Str("attempt_id", a.ID.String()).
		Str("trigger", string(trigger)).
		Float64("score", a.ScoreValue).
		Msg("attempt finalized")
	return a, nil
}

func (c *Coordinator) analyzeLocked(ctx context.Context, a *model.Attempt, exam *model.Exam, questions []model.Question, responses []model.Response, finishedAt time.Time) {
	if a.StartedAt == nil {
		return
	}

	questionTypes := make(map[uuid.UUID]model.QuestionType, len(questions))
	for _, q := range questions {
		questionTypes[q.ID] = q.QuestionType
	}

	samples := make([]BehaviorSample, 0, len(responses))
	for _, r := range responses {
		samples = append(samples, BehaviorSample{
			QuestionType: questionTypes[r.QuestionID],
			Choice:       r.Value.Choice,
			SubmittedAt:  r.SubmittedAt,
		})
	}

	elapsed := finishedAt.Sub(*a.StartedAt) - time.Duration(a.PausedAccumMs)*time.Millisecond
	allotted := time.Duration(exam.DurationMinutes+a.ExtraTimeMinutes) * time.Minute

	flags := AnalyzeBehavior(samples, a.ScoreValue, elapsed, allotted)
	if !PromoteFlags(a, flags) {
		return
	}
	if err := c.store.SaveAttempt(ctx, a); err != nil {
		c.logger.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to persist behavior flags")
	}
}

// RemainingTimeMs computes the attempt's remaining milliseconds. A zero
// result on a running attempt finalizes it with the expiry trigger before
// returning.
func (c *Coordinator) RemainingTimeMs(ctx context.Context, attemptID uuid.UUID) (int64, error) {
	mu := c.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return 0, err
	}
	if a.Status.Terminal() {
		c.dropLock(a.ID)
		return 0, nil
	}
	if a.StartedAt == nil {
		return 0, fmt.Errorf("remaining time before start: %w", ErrInvalidState)
	}

	exam, err := c.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return 0, err
	}
	remaining, err := c.remainingLocked(ctx, a, exam)
	if err != nil {
		return 0, err
	}
	if remaining == 0 && a.Status == model.AttemptStatusInProgress {
		if _, err := c.finalizeLocked(ctx, a, exam, TriggerTimerExpiry); err != nil {
			return 0, err
		}
	}
	return remaining, nil
}

func (c *Coordinator) remainingLocked(ctx context.Context, a *model.Attempt, exam *model.Exam) (int64, error) {
	if a.StartedAt == nil {
		return 0, fmt.Errorf("remaining time before start: %w", ErrInvalidState)
	}
	session, err := c.store.GetSession(ctx, a.SessionID)
	if err != nil {
		return 0, err
	}

	now := c.clock.Now()
	paused := a.PausedAccumMs
	if a.PausedAt != nil {
		// The in-flight paused span counts as paused time too.
		if span := now.Sub(*a.PausedAt).Milliseconds(); span > 0 {
			paused += span
		}
	}

	return RemainingMs(TimerInput{
		StartedAt:        *a.StartedAt,
		DurationMinutes:  exam.DurationMinutes,
		ExtraTimeMinutes: a.ExtraTimeMinutes,
		PausedAccumMs:    paused,
		SessionEndsAt:    session.EndsAt,
		Now:              now,
	}), nil
}

// NextAdaptiveQuestion selects the unanswered question closest to the
// student's current ability estimate. Returns nil when every question has
// been answered.
func (c *Coordinator) NextAdaptiveQuestion(ctx context.Context, attemptID uuid.UUID) (*model.Question, error) {
	mu := c.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusInProgress {
		if a.Status.Terminal() {
			c.dropLock(a.ID)
		}
		return nil, fmt.Errorf("next question on %s attempt: %w", a.Status, ErrInvalidState)
	}

	exam, err := c.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	if !exam.AdaptiveMode {
		return nil, fmt.Errorf("adaptive mode off for exam %s: %w", exam.ID, ErrConfigurationDisabled)
	}

	questions, err := c.store.ListQuestions(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	responses, err := c.store.ListResponses(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	answered := make(map[uuid.UUID]struct{}, len(responses))
	difficulty := make(map[uuid.UUID]model.Difficulty, len(questions))
	for _, q := range questions {
		difficulty[q.ID] = q.Difficulty
	}

	history := make([]AnswerRecord, 0, len(responses))
	for _, r := range responses {
		answered[r.QuestionID] = struct{}{}
		if r.Verdict == model.VerdictPending {
			continue
		}
		history = append(history, AnswerRecord{
			Correct:    r.Verdict == model.VerdictCorrect,
			Difficulty: difficulty[r.QuestionID],
		})
	}

	pool := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		if _, done := answered[q.ID]; !done {
			pool = append(pool, q)
		}
	}

	return SelectNext(pool, EstimateTheta(history), c.jitter), nil
}

// GetIntegritySummary returns the violation counters and flag state.
func (c *Coordinator) GetIntegritySummary(ctx context.Context, attemptID uuid.UUID) (*IntegritySummary, error) {
	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return &IntegritySummary{
		Total:         a.ViolationTotal,
		Counts:        a.ViolationCounts,
		Flagged:       a.Flagged,
		FlagReason:    a.FlagReason,
		BehaviorFlags: a.BehaviorFlags,
	}, nil
}

// ClearViolations is the administrative ledger reset: counters zeroed,
// flag state cleared, persisted events removed.
func (c *Coordinator) ClearViolations(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	mu := c.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	NewLedger(a).Reset()
	a.Flagged = false
	a.FlagReason = ""
	if err := c.store.SaveAttempt(ctx, a); err != nil {
		return nil, err
	}
	if err := c.store.ClearViolations(ctx, a.ID); err != nil {
		return nil, err
	}
	return a, nil
}

// validateShape rejects submissions whose populated fields do not match
// the question's type. Scoring itself never errors; shape checks live at
// this boundary.
func validateShape(t model.QuestionType, v model.SubmittedValue) error {
	switch t {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		if len(v.Choices) > 0 || v.Text != "" || len(v.Pairs) > 0 {
			return fmt.Errorf("expected a single choice: %w", ErrValidation)
		}
	case model.QuestionTypeMultiSelect:
		if v.Choice != "" || v.Text != "" || len(v.Pairs) > 0 {
			return fmt.Errorf("expected a choice set: %w", ErrValidation)
		}
	case model.QuestionTypeShortText, model.QuestionTypeEssay:
		if v.Choice != "" || len(v.Choices) > 0 || len(v.Pairs) > 0 {
			return fmt.Errorf("expected text: %w", ErrValidation)
		}
	case model.QuestionTypeMatching:
		if v.Choice != "" || len(v.Choices) > 0 || v.Text != "" {
			return fmt.Errorf("expected a pair mapping: %w", ErrValidation)
		}
	default:
		return fmt.Errorf("unknown question type %q: %w", t, ErrValidation)
	}
	return nil
}
