package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/repository"
	"github.com/stemsi/examguard-backend/internal/response"
)

// StudentService handles proctor-side student account management.
type StudentService struct {
	studentRepo *repository.StudentRepository
	auth        *AuthService
	log         zerolog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(studentRepo *repository.StudentRepository, auth *AuthService, log zerolog.Logger) *StudentService {
	return &StudentService{
		studentRepo: studentRepo,
		auth:        auth,
		log:         log.With().Str("component", "student_service").Logger(),
	}
}

// List retrieves students with pagination and an optional blocked filter.
func (s *StudentService) List(ctx context.Context, blocked *bool, page, perPage int) ([]model.Student, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	students, total, err := s.studentRepo.ListPaginated(ctx, blocked, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if students == nil {
		students = []model.Student{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return students, pagination, nil
}

// Unblock clears a student's blocked state after manual review.
func (s *StudentService) Unblock(ctx context.Context, studentID int) error {
	if err := s.studentRepo.Unblock(ctx, studentID); err != nil {
		return err
	}
	s.log.Info().Int("student_id", studentID).Msg("student unblocked")
	return nil
}

// ResetSession clears a student's single-device login session.
func (s *StudentService) ResetSession(ctx context.Context, studentID int) error {
	return s.auth.ResetStudentSession(ctx, studentID)
}

// GetByID retrieves a student by id.
func (s *StudentService) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, id)
}

// GetByNISN retrieves a student by NISN for login.
func (s *StudentService) GetByNISN(ctx context.Context, nisn string) (*model.Student, error) {
	return s.studentRepo.GetByNISN(ctx, nisn)
}
