package models

// Folder groups diagrams inside a project. Folders form a tree through ParentID.
type Folder struct {
	BaseModel

	ProjectID string  `gorm:"type:uuid;not null;index:idx_folders_scope" json:"project_id"`
	ParentID  *string `gorm:"type:uuid;index:idx_folders_scope" json:"parent_id"`
	Name      string  `gorm:"not null" json:"name"`
	SortOrder int     `gorm:"not null;default:0" json:"sort_order"`
	CreatedBy string  `gorm:"type:uuid" json:"created_by,omitempty"`
}
