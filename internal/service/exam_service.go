package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examguard-backend/internal/config"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/repository"
	"github.com/stemsi/examguard-backend/internal/response"
)

// Domain Errors
var (
	ErrNotExamAuthor    = errors.New("not the author of this exam")
	ErrNoQuestions      = errors.New("exam has no questions, cannot publish")
	ErrExamNotDraft     = errors.New("exam status is not DRAFT")
	ErrExamNotPublished = errors.New("exam status is not PUBLISHED")
)

// ExamService handles exam authoring, publication, and the Redis payload
// cache students read at exam start.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	sessionRepo  *repository.ExamSessionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	sessionRepo *repository.ExamSessionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		sessionRepo:  sessionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// ListByAuthor retrieves exams, filtered by author when authorID > 0.
func (s *ExamService) ListByAuthor(ctx context.Context, authorID, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	exams, total, err := s.examRepo.ListByAuthorPaginated(ctx, authorID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return exams, pagination, nil
}

// Create inserts a new exam as DRAFT.
func (s *ExamService) Create(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           req.Title,
		AuthorID:        authorID,
		DurationMinutes: req.DurationMinutes,
		AdaptiveMode:    req.AdaptiveMode,
		Scoring:         req.Scoring,
		Integrity:       req.Integrity,
		Status:          model.ExamStatusDraft,
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, err
	}
	return exam, nil
}

// AddQuestion appends a question to a draft exam.
func (s *ExamService) AddQuestion(ctx context.Context, examID uuid.UUID, authorID int, req *model.AddQuestionRequest) (*model.Question, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	difficulty := model.Difficulty(req.Difficulty)
	if difficulty == "" {
		difficulty = model.DifficultyMedium
	}
	q := &model.Question{
		ExamID:       examID,
		QuestionText: req.QuestionText,
		QuestionType: model.QuestionType(req.QuestionType),
		Options:      req.Options,
		Points:       req.Points,
		Difficulty:   difficulty,
		AnswerKey:    req.AnswerKey,
		OrderNum:     req.OrderNum,
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Publish changes exam status to PUBLISHED and caches the student payload
// in Redis. This is the critical path that populates the fast lane.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	if authorID != 0 && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}
	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// WarmExamCache loads an exam's student-facing payload from PostgreSQL
// into Redis. Answer keys never enter this payload; grading reads them
// from the questions table on the server side only.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		studentQuestions[i] = q.ForStudent()
	}

	payload := model.ExamPayload{
		ExamID:       exam.ID,
		Title:        exam.Title,
		Duration:     exam.DurationMinutes,
		AdaptiveMode: exam.AdaptiveMode,
		Questions:    studentQuestions,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if err := s.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ID.String()), payloadJSON, 0).Err(); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application
// startup. This prevents any lazy-loading race conditions under
// thundering herd traffic.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetExamPayload retrieves the cached student payload, self-healing from
// PostgreSQL on a cache miss.
func (s *ExamService) GetExamPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get payload: %w", err)
		}
		// Cache miss: rebuild from the source of truth.
		exam, dbErr := s.examRepo.GetByID(ctx, examID)
		if dbErr != nil {
			return nil, fmt.Errorf("get exam: %w", dbErr)
		}
		if exam.Status != model.ExamStatusPublished {
			return nil, ErrExamNotPublished
		}
		if err := s.WarmExamCache(ctx, exam); err != nil {
			return nil, err
		}
		if data, err = s.rdb.Get(ctx, key).Bytes(); err != nil {
			return nil, fmt.Errorf("get payload after warm: %w", err)
		}
	}

	var payload model.ExamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// CreateSession schedules a sitting of a published exam.
func (s *ExamService) CreateSession(ctx context.Context, examID uuid.UUID, authorID int, req *model.CreateSessionRequest) (*model.ExamSession, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	session := &model.ExamSession{
		ExamID:   examID,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// ListSessions retrieves all sittings of one exam.
func (s *ExamService) ListSessions(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	return s.sessionRepo.ListByExam(ctx, examID)
}

// GetSession retrieves one sitting by its UUID.
func (s *ExamService) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	return s.sessionRepo.GetByID(ctx, sessionID)
}
