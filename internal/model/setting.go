package model

import "time"

// AppSetting represents a key-value pair for global application configuration.
type AppSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SettingAutoBlockThreshold is the app_settings key for the global,
// cross-exam auto-block violation threshold. "0" disables auto-blocking.
const SettingAutoBlockThreshold = "auto_block_threshold"

// UpdateSettingsRequest is the payload for bulk updating settings.
type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings" binding:"required"`
}
