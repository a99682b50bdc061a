package repository

import (
	"context"
	"strings"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/events"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// FolderRepository manages the folder tree of each project.
type FolderRepository struct {
	conn   *connection.Manager
	remote store.FolderStore
	local  store.FolderStore
	options
}

// NewFolderRepository constructs a FolderRepository.
func NewFolderRepository(conn *connection.Manager, remote, local store.FolderStore, opts ...Option) (*FolderRepository, error) {
	if err := checkBackends(conn, remote != nil, local != nil); err != nil {
		return nil, err
	}
	return &FolderRepository{
		conn:    conn,
		remote:  remote,
		local:   local,
		options: buildOptions("folders", opts),
	}, nil
}

// CreateFolder appends a folder at the end of its sibling scope.
func (r *FolderRepository) CreateFolder(ctx context.Context, input CreateFolderInput) (*models.Folder, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	create := func(target store.FolderStore) connection.Operation[*models.Folder] {
		return func(ctx context.Context) (*models.Folder, error) {
			if input.ParentID != nil {
				parent, err := target.GetFolder(ctx, strings.TrimSpace(*input.ParentID))
				if err != nil {
					return nil, err
				}
				if parent.ProjectID != input.ProjectID {
					return nil, apperrors.NewValidation("parent folder belongs to another project")
				}
			}
			folder := &models.Folder{
				ProjectID: input.ProjectID,
				ParentID:  input.ParentID,
				Name:      strings.TrimSpace(input.Name),
				CreatedBy: input.CreatedBy,
			}
			if err := target.CreateFolder(ctx, folder); err != nil {
				return nil, err
			}
			return folder, nil
		}
	}

	folder, err := connection.Run(ctx, r.conn, "folder.create", create(r.remote), create(r.local))
	if err != nil {
		return nil, err
	}
	r.publish(events.FolderCreated, folder.ProjectID, folder.ID, folder, nil)
	return folder, nil
}

// GetFolder returns a folder by id.
func (r *FolderRepository) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	if err := requireID("folder", id); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "folder.get",
		func(ctx context.Context) (*models.Folder, error) { return r.remote.GetFolder(ctx, id) },
		func(ctx context.Context) (*models.Folder, error) { return r.local.GetFolder(ctx, id) },
	)
}

// GetProjectFolders returns every folder of the project ordered by sort_order.
func (r *FolderRepository) GetProjectFolders(ctx context.Context, projectID string) ([]models.Folder, error) {
	if err := requireID("project", projectID); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "folder.list",
		func(ctx context.Context) ([]models.Folder, error) { return r.remote.ListProjectFolders(ctx, projectID) },
		func(ctx context.Context) ([]models.Folder, error) { return r.local.ListProjectFolders(ctx, projectID) },
	)
}

// UpdateFolder applies the patch. It does not check the hierarchy: callers
// moving a folder run store.ValidateFolderHierarchy first.
func (r *FolderRepository) UpdateFolder(ctx context.Context, id string, patch store.FolderPatch) (*models.Folder, error) {
	folder, err := r.update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	r.publish(events.FolderUpdated, folder.ProjectID, folder.ID, folder, patch.Delta())
	return folder, nil
}

// MoveFolder re-parents the folder; a nil parent moves it to the root. The
// folder lands at the end of its new scope.
func (r *FolderRepository) MoveFolder(ctx context.Context, id string, newParentID *string) (*models.Folder, error) {
	patch := store.FolderPatch{MoveToRoot: true}
	if newParentID != nil && strings.TrimSpace(*newParentID) != "" {
		patch = store.FolderPatch{ParentID: newParentID}
	}
	return r.UpdateFolder(ctx, id, patch)
}

// RenameFolder changes only the folder name. Sibling names may repeat.
func (r *FolderRepository) RenameFolder(ctx context.Context, id, name string) (*models.Folder, error) {
	patch := store.FolderPatch{Name: &name}
	folder, err := r.update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	r.publish(events.FolderRenamed, folder.ProjectID, folder.ID, folder, patch.Delta())
	return folder, nil
}

func (r *FolderRepository) update(ctx context.Context, id string, patch store.FolderPatch) (*models.Folder, error) {
	if err := requireID("folder", id); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, apperrors.NewValidation("folder update has no fields")
	}
	if err := validate(patch); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "folder.update",
		func(ctx context.Context) (*models.Folder, error) { return r.remote.UpdateFolder(ctx, id, patch) },
		func(ctx context.Context) (*models.Folder, error) { return r.local.UpdateFolder(ctx, id, patch) },
	)
}

// DeleteFolder removes the folder, all its descendants and every diagram
// inside them.
func (r *FolderRepository) DeleteFolder(ctx context.Context, id string) (*store.DeleteResult, error) {
	if err := requireID("folder", id); err != nil {
		return nil, err
	}

	var projectID string
	remove := func(target store.FolderStore) connection.Operation[*store.DeleteResult] {
		return func(ctx context.Context) (*store.DeleteResult, error) {
			folder, err := target.GetFolder(ctx, id)
			if err != nil {
				return nil, err
			}
			projectID = folder.ProjectID
			return target.DeleteFolder(ctx, id)
		}
	}

	result, err := connection.Run(ctx, r.conn, "folder.delete", remove(r.remote), remove(r.local))
	if err != nil {
		return nil, err
	}
	r.publish(events.FolderDeleted, projectID, id, result, map[string]any{
		"folder_ids":  result.FolderIDs,
		"diagram_ids": result.DiagramIDs,
	})
	return result, nil
}

// UpdateFolderOrder re-stamps folder ranks and compacts the touched scopes.
func (r *FolderRepository) UpdateFolderOrder(ctx context.Context, orders []store.Ranked) (*connection.BatchResult, error) {
	return r.UpdateItemOrder(ctx, orderItems(store.KindFolder, orders))
}

// UpdateItemOrder re-stamps a mixed list of folders and diagrams. Each item
// is written independently; the touched scopes are compacted afterwards.
func (r *FolderRepository) UpdateItemOrder(ctx context.Context, items []store.ItemOrder) (*connection.BatchResult, error) {
	var remote store.SortOrderWriter
	if r.remote != nil {
		remote = r.remote
	}
	return reorder(ctx, r.conn, remote, r.local, items)
}

// GetFolderStats counts direct subfolders and diagrams.
func (r *FolderRepository) GetFolderStats(ctx context.Context, id string) (*store.FolderStats, error) {
	if err := requireID("folder", id); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "folder.stats",
		func(ctx context.Context) (*store.FolderStats, error) { return r.remote.FolderStats(ctx, id) },
		func(ctx context.Context) (*store.FolderStats, error) { return r.local.FolderStats(ctx, id) },
	)
}
