package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/repository"
)

// SettingService manages global application settings.
type SettingService struct {
	settingRepo *repository.SettingRepository
}

// NewSettingService creates a new SettingService.
func NewSettingService(settingRepo *repository.SettingRepository) *SettingService {
	return &SettingService{settingRepo: settingRepo}
}

// GetAll returns every setting row.
func (s *SettingService) GetAll(ctx context.Context) ([]model.AppSetting, error) {
	return s.settingRepo.GetAll(ctx)
}

// Update upserts a batch of settings. Known numeric keys are validated
// before they reach the table.
func (s *SettingService) Update(ctx context.Context, settings map[string]string) error {
	for key, value := range settings {
		if key == model.SettingAutoBlockThreshold {
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q", key, value)
			}
		}
		if err := s.settingRepo.Upsert(ctx, key, value); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}
	return nil
}
