package service

import (
	"context"

	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/repository"
)

// ProctorService handles proctor account lookups.
type ProctorService struct {
	proctorRepo *repository.ProctorRepository
	auth        *AuthService
}

// NewProctorService creates a new ProctorService.
func NewProctorService(proctorRepo *repository.ProctorRepository, auth *AuthService) *ProctorService {
	return &ProctorService{proctorRepo: proctorRepo, auth: auth}
}

// GetByID retrieves a proctor by id.
func (s *ProctorService) GetByID(ctx context.Context, id int) (*model.Proctor, error) {
	return s.proctorRepo.GetByID(ctx, id)
}

// GetByEmail retrieves a proctor by email for login.
func (s *ProctorService) GetByEmail(ctx context.Context, email string) (*model.Proctor, error) {
	return s.proctorRepo.GetByEmail(ctx, email)
}

// Create registers a proctor account with a hashed password.
func (s *ProctorService) Create(ctx context.Context, email, name, password string) (*model.Proctor, error) {
	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	p := &model.Proctor{Email: email, Name: name, PasswordHash: hash}
	if err := s.proctorRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
