package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Diagram is a single diagram document. Content holds the diagram markup.
type Diagram struct {
	BaseModel

	ProjectID      string  `gorm:"type:uuid;not null;index:idx_diagrams_scope" json:"project_id"`
	FolderID       *string `gorm:"type:uuid;index:idx_diagrams_scope" json:"folder_id"`
	Name           string  `gorm:"not null" json:"name"`
	Description    string  `json:"description"`
	Content        string  `gorm:"type:text" json:"content"`
	Version        int     `gorm:"not null;default:1" json:"version"`
	SortOrder      int     `gorm:"not null;default:0" json:"sort_order"`
	IsActive       bool    `gorm:"not null;default:true;index" json:"is_active"`
	CreatedBy      string  `gorm:"type:uuid" json:"created_by,omitempty"`
	LastModifiedBy *string `gorm:"type:uuid" json:"last_modified_by,omitempty"`
}

// DiagramVersion is one entry of a diagram's remote revision history.
type DiagramVersion struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	DiagramID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_diagram_versions_number" json:"diagram_id"`
	VersionNumber int       `gorm:"not null;uniqueIndex:idx_diagram_versions_number" json:"version_number"`
	Content       string    `gorm:"type:text" json:"content"`
	CreatedBy     *string   `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (v *DiagramVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
