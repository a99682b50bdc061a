package models

import "gorm.io/datatypes"

// Project is the top-level container owning folders, diagrams and members.
type Project struct {
	BaseModel

	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	OwnerID     string         `gorm:"type:uuid;not null;index" json:"owner_id"`
	Settings    datatypes.JSON `json:"settings,omitempty"`

	// Members is only populated on the local path, where membership is
	// embedded in the project record.
	Members []ProjectMember `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// ProjectRole is a member's access level within a project.
type ProjectRole string

const (
	RoleOwner  ProjectRole = "owner"
	RoleAdmin  ProjectRole = "admin"
	RoleEditor ProjectRole = "editor"
	RoleViewer ProjectRole = "viewer"
)

// Valid reports whether the role is one of the four known roles.
func (r ProjectRole) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// MemberStatus tracks whether an invitation has been accepted.
type MemberStatus string

const (
	MemberPending  MemberStatus = "pending"
	MemberAccepted MemberStatus = "accepted"
)
