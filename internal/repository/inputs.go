package repository

import (
	"gorm.io/datatypes"

	"github.com/charlesng35/diagramhub/internal/models"
)

// CreateProjectInput describes a new project. The owner becomes its first member.
type CreateProjectInput struct {
	Name        string         `json:"name" validate:"notblank,max=255"`
	Description string         `json:"description"`
	OwnerID     string         `json:"owner_id" validate:"notblank"`
	Settings    datatypes.JSON `json:"settings,omitempty"`
}

// AddMemberInput describes a membership invitation.
type AddMemberInput struct {
	ProjectID string              `json:"project_id" validate:"notblank"`
	UserID    string              `json:"user_id" validate:"notblank"`
	Role      models.ProjectRole  `json:"role" validate:"required,oneof=owner admin editor viewer"`
	InvitedBy *string             `json:"invited_by,omitempty"`
	Status    models.MemberStatus `json:"status,omitempty" validate:"omitempty,oneof=pending accepted"`
}

// CreateFolderInput describes a new folder. A nil ParentID creates a root folder.
type CreateFolderInput struct {
	ProjectID string  `json:"project_id" validate:"notblank"`
	ParentID  *string `json:"parent_id,omitempty" validate:"omitempty,notblank"`
	Name      string  `json:"name" validate:"notblank,max=255"`
	CreatedBy string  `json:"created_by"`
}

// CreateDiagramInput describes a new diagram. A nil FolderID places it at the project root.
type CreateDiagramInput struct {
	ProjectID   string  `json:"project_id" validate:"notblank"`
	FolderID    *string `json:"folder_id,omitempty" validate:"omitempty,notblank"`
	Name        string  `json:"name" validate:"notblank,max=255"`
	Description string  `json:"description"`
	Content     string  `json:"content"`
	CreatedBy   string  `json:"created_by"`
}

// CollaborationSessionInput records a user's presence on a diagram.
type CollaborationSessionInput struct {
	DiagramID   string         `json:"diagram_id" validate:"notblank"`
	UserID      string         `json:"user_id" validate:"notblank"`
	SessionData datatypes.JSON `json:"session_data,omitempty"`
}

// ActivityInput describes one activity log entry.
type ActivityInput struct {
	ProjectID  string         `json:"project_id" validate:"notblank"`
	DiagramID  *string        `json:"diagram_id,omitempty"`
	UserID     string         `json:"user_id" validate:"notblank"`
	Action     string         `json:"action" validate:"notblank,max=100"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    datatypes.JSON `json:"details,omitempty"`
}
