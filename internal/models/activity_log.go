package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityLog is an append-only record of a user action on any entity.
type ActivityLog struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	ProjectID  string         `gorm:"type:uuid;index" json:"project_id"`
	DiagramID  *string        `gorm:"type:uuid;index" json:"diagram_id,omitempty"`
	UserID     string         `gorm:"type:uuid;index" json:"user_id"`
	Action     string         `gorm:"not null;index" json:"action"`
	EntityType string         `gorm:"index" json:"entity_type"`
	EntityID   string         `gorm:"type:uuid" json:"entity_id"`
	Details    datatypes.JSON `json:"details,omitempty"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
