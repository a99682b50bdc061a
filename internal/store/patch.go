package store

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/charlesng35/diagramhub/internal/models"
)

// ProjectPatch lists the mutable project fields. Nil fields are left unchanged.
type ProjectPatch struct {
	Name        *string        `json:"name,omitempty" validate:"omitempty,notblank,max=255"`
	Description *string        `json:"description,omitempty"`
	Settings    datatypes.JSON `json:"settings,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProjectPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Settings == nil
}

// Columns returns the column/value pairs to write, trimmed.
func (p ProjectPatch) Columns() map[string]any {
	out := map[string]any{}
	if p.Name != nil {
		out["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		out["description"] = strings.TrimSpace(*p.Description)
	}
	if p.Settings != nil {
		out["settings"] = p.Settings
	}
	return out
}

// Apply copies the patch onto an in-memory project.
func (p ProjectPatch) Apply(project *models.Project, now time.Time) {
	if p.Name != nil {
		project.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		project.Description = strings.TrimSpace(*p.Description)
	}
	if p.Settings != nil {
		project.Settings = p.Settings
	}
	project.UpdatedAt = now
}

// FolderPatch lists the mutable folder fields. Set ParentID to move under
// another folder, or MoveToRoot to detach it.
type FolderPatch struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,notblank,max=255"`
	ParentID   *string `json:"parent_id,omitempty" validate:"omitempty,notblank"`
	MoveToRoot bool    `json:"move_to_root,omitempty"`
	SortOrder  *int    `json:"sort_order,omitempty" validate:"omitempty,gte=0"`
}

// IsEmpty reports whether the patch changes nothing.
func (p FolderPatch) IsEmpty() bool {
	return p.Name == nil && p.ParentID == nil && !p.MoveToRoot && p.SortOrder == nil
}

// MovesParent reports whether applying the patch would change the folder's parent.
func (p FolderPatch) MovesParent(current *string) bool {
	target, ok := p.TargetParent()
	if !ok {
		return false
	}
	return !SameParent(current, target)
}

// TargetParent returns the parent requested by the patch and whether one was requested.
func (p FolderPatch) TargetParent() (*string, bool) {
	switch {
	case p.MoveToRoot:
		return nil, true
	case p.ParentID != nil:
		id := strings.TrimSpace(*p.ParentID)
		return &id, true
	default:
		return nil, false
	}
}

// Delta describes the patch as column/value pairs for domain events.
func (p FolderPatch) Delta() map[string]any {
	out := map[string]any{}
	if p.Name != nil {
		out["name"] = strings.TrimSpace(*p.Name)
	}
	if parent, ok := p.TargetParent(); ok {
		out["parent_id"] = parent
	}
	if p.SortOrder != nil {
		out["sort_order"] = *p.SortOrder
	}
	return out
}

// DiagramPatch lists the mutable diagram fields. Version is accepted from
// callers but always stripped: the store owns versioning.
type DiagramPatch struct {
	Name           *string `json:"name,omitempty" validate:"omitempty,notblank,max=255"`
	Description    *string `json:"description,omitempty"`
	Content        *string `json:"content,omitempty"`
	FolderID       *string `json:"folder_id,omitempty" validate:"omitempty,notblank"`
	MoveToRoot     bool    `json:"move_to_root,omitempty"`
	SortOrder      *int    `json:"sort_order,omitempty" validate:"omitempty,gte=0"`
	IsActive       *bool   `json:"is_active,omitempty"`
	LastModifiedBy *string `json:"last_modified_by,omitempty"`
	Version        *int    `json:"version,omitempty"`
}

// IsEmpty reports whether the patch changes nothing. Version alone is not a change.
func (p DiagramPatch) IsEmpty() bool {
	_, moves := p.TargetFolder()
	return len(p.Columns()) == 0 && !moves
}

// WithoutVersion returns a copy with caller-supplied version data removed.
func (p DiagramPatch) WithoutVersion() DiagramPatch {
	p.Version = nil
	return p
}

// TargetFolder returns the folder requested by the patch and whether one was requested.
func (p DiagramPatch) TargetFolder() (*string, bool) {
	switch {
	case p.MoveToRoot:
		return nil, true
	case p.FolderID != nil:
		id := strings.TrimSpace(*p.FolderID)
		return &id, true
	default:
		return nil, false
	}
}

// MovesFolder reports whether applying the patch would change the diagram's folder.
func (p DiagramPatch) MovesFolder(current *string) bool {
	target, ok := p.TargetFolder()
	if !ok {
		return false
	}
	return !SameParent(current, target)
}

// Columns returns the column/value pairs to write, excluding folder moves
// and versioning which stores handle themselves.
func (p DiagramPatch) Columns() map[string]any {
	out := map[string]any{}
	if p.Name != nil {
		out["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		out["description"] = *p.Description
	}
	if p.Content != nil {
		out["content"] = *p.Content
	}
	if p.SortOrder != nil {
		out["sort_order"] = *p.SortOrder
	}
	if p.IsActive != nil {
		out["is_active"] = *p.IsActive
	}
	if p.LastModifiedBy != nil {
		out["last_modified_by"] = *p.LastModifiedBy
	}
	return out
}

// Delta describes the patch as column/value pairs for domain events.
func (p DiagramPatch) Delta() map[string]any {
	out := p.Columns()
	if folder, ok := p.TargetFolder(); ok {
		out["folder_id"] = folder
	}
	return out
}

// Apply merges the patch into an in-memory diagram without any version check.
func (p DiagramPatch) Apply(diagram *models.Diagram, now time.Time) {
	if p.Name != nil {
		diagram.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		diagram.Description = *p.Description
	}
	if p.Content != nil {
		diagram.Content = *p.Content
	}
	if p.SortOrder != nil {
		diagram.SortOrder = *p.SortOrder
	}
	if p.IsActive != nil {
		diagram.IsActive = *p.IsActive
	}
	if p.LastModifiedBy != nil {
		by := *p.LastModifiedBy
		diagram.LastModifiedBy = &by
	}
	diagram.Version++
	diagram.UpdatedAt = now
}
