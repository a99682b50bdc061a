package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectMember grants a user a role on a project.
type ProjectMember struct {
	ID        string       `gorm:"primaryKey;type:uuid" json:"id"`
	ProjectID string       `gorm:"type:uuid;not null;uniqueIndex:idx_project_members_project_user" json:"project_id"`
	UserID    string       `gorm:"type:uuid;not null;uniqueIndex:idx_project_members_project_user;index" json:"user_id"`
	Role      ProjectRole  `gorm:"not null;default:viewer" json:"role"`
	InvitedBy *string      `gorm:"type:uuid" json:"invited_by,omitempty"`
	Status    MemberStatus `gorm:"not null;default:pending;index" json:"status"`
	JoinedAt  time.Time    `json:"joined_at"`
}

func (m *ProjectMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
