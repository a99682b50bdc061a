package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CollaborationSessionWindow is how long a session stays live after its last activity.
const CollaborationSessionWindow = 5 * time.Minute

// CollaborationSession records that a user is viewing or editing a diagram.
type CollaborationSession struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	DiagramID    string         `gorm:"type:uuid;not null;uniqueIndex:idx_collab_sessions_diagram_user" json:"diagram_id"`
	UserID       string         `gorm:"type:uuid;not null;uniqueIndex:idx_collab_sessions_diagram_user" json:"user_id"`
	SessionData  datatypes.JSON `json:"session_data,omitempty"`
	LastActivity time.Time      `gorm:"index" json:"last_activity"`
	IsActive     bool           `gorm:"not null;default:true" json:"is_active"`
}

func (s *CollaborationSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ActiveSince reports whether the session is open and saw activity strictly
// after since. Sessions at the boundary count as idle.
func (s CollaborationSession) ActiveSince(since time.Time) bool {
	return s.IsActive && s.LastActivity.After(since)
}
