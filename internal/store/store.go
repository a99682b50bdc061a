// Package store defines the persistence contracts shared by the remote and
// local backends, together with the pure helpers both use to keep sibling
// ordering dense and folder trees acyclic.
package store

import (
	"context"
	"time"

	"github.com/charlesng35/diagramhub/internal/models"
)

// ProjectStore persists projects and their membership lists.
type ProjectStore interface {
	// CreateProject inserts the project together with its owner membership.
	CreateProject(ctx context.Context, project *models.Project, owner *models.ProjectMember) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	// ListUserProjects returns owned projects plus projects with an accepted
	// membership, de-duplicated and ordered by updated_at descending.
	ListUserProjects(ctx context.Context, userID string) ([]models.Project, error)
	UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*models.Project, error)
	DeleteProject(ctx context.Context, id string) error

	AddMember(ctx context.Context, member *models.ProjectMember) error
	ListMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error)
	UpdateMemberRole(ctx context.Context, projectID, userID string, role models.ProjectRole) (*models.ProjectMember, error)
	RemoveMember(ctx context.Context, projectID, userID string) error
}

// FolderStore persists the folder tree of each project.
type FolderStore interface {
	// CreateFolder appends the folder at the end of its sibling scope.
	CreateFolder(ctx context.Context, folder *models.Folder) error
	GetFolder(ctx context.Context, id string) (*models.Folder, error)
	ListProjectFolders(ctx context.Context, projectID string) ([]models.Folder, error)
	// UpdateFolder applies the patch. A parent change moves the folder to the
	// end of the new scope and compacts the old one.
	UpdateFolder(ctx context.Context, id string, patch FolderPatch) (*models.Folder, error)
	// DeleteFolder removes the folder, every transitive descendant and all
	// diagrams inside them. It returns the removed folder and diagram ids.
	DeleteFolder(ctx context.Context, id string) (*DeleteResult, error)
	FolderStats(ctx context.Context, id string) (*FolderStats, error)

	SortOrderWriter
}

// DiagramStore persists diagrams and their collaboration bookkeeping.
type DiagramStore interface {
	// CreateDiagram appends the diagram at the end of its sibling scope.
	CreateDiagram(ctx context.Context, diagram *models.Diagram) error
	GetDiagram(ctx context.Context, id string) (*models.Diagram, error)
	ListProjectDiagrams(ctx context.Context, projectID string) ([]models.Diagram, error)
	// UpdateDiagram applies the patch and increments the version.
	UpdateDiagram(ctx context.Context, id string, patch DiagramPatch) (*models.Diagram, error)
	DeleteDiagram(ctx context.Context, id string) error
	ListDiagramVersions(ctx context.Context, diagramID string) ([]models.DiagramVersion, error)

	UpsertCollaborationSession(ctx context.Context, session *models.CollaborationSession) error
	ListCollaborationSessions(ctx context.Context, diagramID string, activeSince time.Time) ([]models.CollaborationSession, error)
	EndCollaborationSession(ctx context.Context, diagramID, userID string) error

	CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error
	ListActivityLogs(ctx context.Context, projectID string, limit int) ([]models.ActivityLog, error)

	SortOrderWriter
}

// SortOrderWriter re-stamps sibling ranks. Both folder and diagram stores
// implement it so mixed reorders can address either kind.
type SortOrderWriter interface {
	// SetSortOrder writes a single rank without touching siblings.
	SetSortOrder(ctx context.Context, kind ItemKind, id string, order int) error
	// NormalizeSiblings rewrites the scopes containing ids to 0..N-1,
	// keeping the current relative order.
	NormalizeSiblings(ctx context.Context, kind ItemKind, ids []string) error
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	// UpsertProfile replaces the profile with the same id, or inserts it.
	UpsertProfile(ctx context.Context, profile *models.Profile) error
}

// Janitor removes expired bookkeeping rows. Maintenance jobs call it on
// both backends.
type Janitor interface {
	// ExpireCollaborationSessions marks sessions idle since before as inactive.
	ExpireCollaborationSessions(ctx context.Context, before time.Time) (int64, error)
	// PruneActivityLogs deletes activity entries created before the cutoff.
	PruneActivityLogs(ctx context.Context, before time.Time) (int64, error)
}

// Seeder lets a store accept a record copied from another backend verbatim.
// The local store implements it so a fallback write never targets a record
// it has not seen.
type Seeder interface {
	SeedDiagram(ctx context.Context, diagram *models.Diagram) error
}

// DeleteResult lists the ids removed by a cascading folder delete.
type DeleteResult struct {
	FolderIDs  []string `json:"folder_ids"`
	DiagramIDs []string `json:"diagram_ids"`
}

// FolderStats counts the direct children of a folder.
type FolderStats struct {
	SubfolderCount int `json:"subfolder_count"`
	DiagramCount   int `json:"diagram_count"`
	TotalItems     int `json:"total_items"`
}
