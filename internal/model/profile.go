package model

import (
	"time"

	"gorm.io/datatypes"
)

// Profile source tags.
const (
	SourceBuiltin = "builtin"
	SourceUser    = "user"
)

// Profile is a named, reusable bundle of slicing settings. The ID is
// immutable once created.
type Profile struct {
	ID                string            `gorm:"primaryKey" json:"id"`
	Name              string            `gorm:"not null" json:"name"`
	Description       string            `json:"description,omitempty"`
	Source            string            `gorm:"not null" json:"source"`
	Vendor            string            `json:"vendor,omitempty"`
	MachineID         string            `json:"machine_id,omitempty"`
	ProcessID         string            `json:"process_id,omitempty"`
	FilamentID        string            `json:"filament_id,omitempty"`
	SettingsOverrides datatypes.JSONMap `json:"settings_overrides,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
