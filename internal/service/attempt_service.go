package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examguard-backend/internal/config"
	"github.com/stemsi/examguard-backend/internal/engine"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/repository"
)

// Attempt domain errors surfaced to handlers alongside the engine's own.
var (
	ErrNotAttemptOwner = errors.New("attempt does not belong to this student")
	ErrStudentBlocked  = errors.New("student account is blocked")
	ErrExamNotOpen     = errors.New("exam is not open for enrollment")
)

// AttemptService is the application face of the attempt engine: it owns
// enrollment, routes every in-exam operation through the coordinator, and
// wires the engine's ports to PostgreSQL and Redis.
type AttemptService struct {
	coord       *engine.Coordinator
	store       *engineStore
	attemptRepo *repository.AttemptRepository
	sessionRepo *repository.ExamSessionRepository
	examRepo    *repository.ExamRepository
	studentRepo *repository.StudentRepository
	log         zerolog.Logger
}

// NewAttemptService assembles the coordinator with its production ports.
func NewAttemptService(
	cfg *config.Config,
	attemptRepo *repository.AttemptRepository,
	examRepo *repository.ExamRepository,
	sessionRepo *repository.ExamSessionRepository,
	questionRepo *repository.QuestionRepository,
	responseRepo *repository.ResponseRepository,
	violationRepo *repository.ViolationRepository,
	studentRepo *repository.StudentRepository,
	settingRepo *repository.SettingRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	log = log.With().Str("component", "attempt_service").Logger()

	store := &engineStore{
		attemptRepo:   attemptRepo,
		examRepo:      examRepo,
		sessionRepo:   sessionRepo,
		questionRepo:  questionRepo,
		responseRepo:  responseRepo,
		violationRepo: violationRepo,
		rdb:           rdb,
		log:           log,
	}
	notifier := &monitorNotifier{rdb: rdb, log: log}
	blocker := &studentBlocker{studentRepo: studentRepo, rdb: rdb, log: log}
	settings := &settingsSource{
		settingRepo: settingRepo,
		fallback:    cfg.AutoBlockThreshold,
		cached:      cfg.AutoBlockThreshold,
		log:         log,
	}

	coord := engine.NewCoordinator(
		store, notifier, blocker, settings,
		engine.SystemClock{}, rand.Float64, log,
	)

	return &AttemptService{
		coord:       coord,
		store:       store,
		attemptRepo: attemptRepo,
		sessionRepo: sessionRepo,
		examRepo:    examRepo,
		studentRepo: studentRepo,
		log:         log,
	}
}

// Enroll creates (or returns) the student's attempt for a session.
// Blocked students cannot enroll; the exam must be published.
func (s *AttemptService) Enroll(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.Attempt, error) {
	blocked, err := s.studentRepo.IsBlocked(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("check block state: %w", err)
	}
	if blocked {
		return nil, ErrStudentBlocked
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, engine.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	exam, err := s.examRepo.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotOpen
	}

	// Re-enrollment returns the existing attempt instead of a new one.
	if existing, err := s.attemptRepo.GetBySessionAndStudent(ctx, sessionID, studentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	attempt := &model.Attempt{
		ID:        uuid.New(),
		ExamID:    exam.ID,
		SessionID: session.ID,
		StudentID: studentID,
		Status:    model.AttemptStatusNotStarted,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return attempt, nil
}

// getOwned loads an attempt and verifies the student owns it. Foreign
// attempts read as not-found rather than forbidden so attempt ids are not
// probeable.
func (s *AttemptService) getOwned(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.StudentID != studentID {
		return nil, fmt.Errorf("%w: %w", engine.ErrNotFound, ErrNotAttemptOwner)
	}
	return a, nil
}

// Start begins the student's attempt.
func (s *AttemptService) Start(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	if _, err := s.getOwned(ctx, attemptID, studentID); err != nil {
		return nil, err
	}
	return s.coord.Start(ctx, attemptID)
}

// SubmitAnswer scores and stores one answer.
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.SubmitAnswerRequest) (*model.Response, error) {
	if _, err := s.getOwned(ctx, attemptID, studentID); err != nil {
		return nil, err
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad question id", engine.ErrValidation)
	}
	return s.coord.SubmitAnswer(ctx, attemptID, questionID, req.Value)
}

// RecordViolation appends a client-reported anti-cheat signal.
func (s *AttemptService) RecordViolation(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.RecordViolationRequest) (*model.Attempt, error) {
	if _, err := s.getOwned(ctx, attemptID, studentID); err != nil {
		return nil, err
	}
	vtype, err := model.ParseViolationType(req.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrValidation, err)
	}
	var metadata []byte
	if req.Metadata != "" {
		metadata = []byte(req.Metadata)
	}
	return s.coord.RecordViolation(ctx, attemptID, vtype, metadata)
}

// Submit is the student's own finalize.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	if _, err := s.getOwned(ctx, attemptID, studentID); err != nil {
		return nil, err
	}
	return s.coord.Finalize(ctx, attemptID, engine.TriggerStudentSubmit)
}

// RemainingTime returns the attempt's remaining milliseconds, finalizing
// on detected expiry.
func (s *AttemptService) RemainingTime(ctx context.Context, attemptID uuid.UUID, studentID int) (int64, error) {
	if _, err := s.getOwned(ctx, attemptID, studentID); err != nil {
		return 0, err
	}
	return s.coord.RemainingTimeMs(ctx, attemptID)
}

// NextQuestion returns the adaptive next question, stripped of its answer
// key. A nil question means the pool is exhausted.
func (s *AttemptService) NextQuestion(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.QuestionForStudent, error) {
	if _, err := s.getOwned(ctx, attemptID, studentID); err != nil {
		return nil, err
	}
	q, err := s.coord.NextAdaptiveQuestion(ctx, attemptID)
	if err != nil || q == nil {
		return nil, err
	}
	out := q.ForStudent()
	return &out, nil
}

// ListResponses returns the attempt's saved answers for state restore
// after a reconnect.
func (s *AttemptService) ListResponses(ctx context.Context, attemptID uuid.UUID, studentID int) ([]model.Response, error) {
	if _, err := s.getOwned(ctx, attemptID, studentID); err != nil {
		return nil, err
	}
	return s.store.ListResponses(ctx, attemptID)
}

// GetAttempt returns the student's own attempt state.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	return s.getOwned(ctx, attemptID, studentID)
}

// ─── Proctor operations ───

// Pause administratively suspends an attempt.
func (s *AttemptService) Pause(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	return s.coord.Pause(ctx, attemptID)
}

// Resume puts a paused attempt back in progress.
func (s *AttemptService) Resume(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	return s.coord.Resume(ctx, attemptID)
}

// ForceSubmit administratively terminates an attempt.
func (s *AttemptService) ForceSubmit(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	return s.coord.Finalize(ctx, attemptID, engine.TriggerAdminTerminate)
}

// GrantExtraTime extends an unfinished attempt's budget.
func (s *AttemptService) GrantExtraTime(ctx context.Context, attemptID uuid.UUID, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: extension must be positive", engine.ErrValidation)
	}
	return s.attemptRepo.GrantExtraTime(ctx, attemptID, minutes)
}

// IntegritySummary returns the counters and flag state for one attempt.
func (s *AttemptService) IntegritySummary(ctx context.Context, attemptID uuid.UUID) (*engine.IntegritySummary, error) {
	return s.coord.GetIntegritySummary(ctx, attemptID)
}

// ClearViolations is the administrative ledger reset.
func (s *AttemptService) ClearViolations(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	return s.coord.ClearViolations(ctx, attemptID)
}

// FinalizeExpired finalizes abandoned in-progress attempts whose session
// window already closed. Called periodically from the server's reaper
// goroutine.
func (s *AttemptService) FinalizeExpired(ctx context.Context, batch int) int {
	attempts, err := s.attemptRepo.ListUnfinishedBefore(ctx, batch)
	if err != nil {
		s.log.Error().Err(err).Msg("list expired attempts")
		return 0
	}
	done := 0
	for _, a := range attempts {
		if _, err := s.coord.Finalize(ctx, a.ID, engine.TriggerTimerExpiry); err != nil {
			s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("finalize expired attempt")
			continue
		}
		done++
	}
	return done
}
