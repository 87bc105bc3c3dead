package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/repository"
)

// MonitorService builds the proctor's live integrity overview.
type MonitorService struct {
	attemptRepo   *repository.AttemptRepository
	violationRepo *repository.ViolationRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(attemptRepo *repository.AttemptRepository, violationRepo *repository.ViolationRepository) *MonitorService {
	return &MonitorService{attemptRepo: attemptRepo, violationRepo: violationRepo}
}

// SessionSnapshot is the per-session integrity roll-up: every attempt with
// its counters and flags, plus exam-wide totals per violation type.
type SessionSnapshot struct {
	Attempts        []model.Attempt             `json:"attempts"`
	TotalViolations int                         `json:"total_violations"`
	FlaggedCount    int                         `json:"flagged_count"`
	ByType          map[model.ViolationType]int `json:"by_type"`
}

// GetSessionSnapshot fetches the attempt list and the exam-wide type
// breakdown concurrently to keep the dashboard poll cheap.
func (s *MonitorService) GetSessionSnapshot(ctx context.Context, sessionID, examID uuid.UUID) (*SessionSnapshot, error) {
	var (
		attempts    []model.Attempt
		byType      map[model.ViolationType]int
		attemptsErr error
		typeErr     error
		wg          sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		attempts, attemptsErr = s.attemptRepo.ListBySession(ctx, sessionID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		byType, typeErr = s.violationRepo.CountByTypeForExam(ctx, examID)
	}()

	wg.Wait()

	// The attempt list is critical; the type breakdown is best-effort.
	if attemptsErr != nil {
		return nil, attemptsErr
	}

	snapshot := &SessionSnapshot{
		Attempts: attempts,
		ByType:   make(map[model.ViolationType]int),
	}
	for _, a := range attempts {
		snapshot.TotalViolations += a.ViolationTotal
		if a.Flagged {
			snapshot.FlaggedCount++
		}
	}
	if typeErr == nil && byType != nil {
		snapshot.ByType = byType
	}
	return snapshot, nil
}

// ListViolationEvents returns the raw audit trail of one attempt.
func (s *MonitorService) ListViolationEvents(ctx context.Context, attemptID uuid.UUID) ([]model.ViolationEvent, error) {
	return s.violationRepo.ListByAttempt(ctx, attemptID)
}
