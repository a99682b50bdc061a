package remote

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// CreateFolder inserts the folder after its last sibling.
func (s *Store) CreateFolder(ctx context.Context, folder *models.Folder) error {
	now := s.now()
	return s.transaction(ctx, func(tx *gorm.DB) error {
		if parent := folder.ParentID; parent != nil && strings.TrimSpace(*parent) == "" {
			folder.ParentID = nil
		}
		next, err := nextSortOrder(tx, store.KindFolder, folder.ProjectID, folder.ParentID, "")
		if err != nil {
			return err
		}
		folder.SortOrder = next
		folder.EnsureID()
		folder.Stamp(now)
		if err := tx.Create(folder).Error; err != nil {
			return writeError(err, "create folder")
		}
		return nil
	})
}

// GetFolder returns a folder by id.
func (s *Store) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	return getFolder(s.conn(ctx), id)
}

func getFolder(tx *gorm.DB, id string) (*models.Folder, error) {
	var folder models.Folder
	if err := tx.Take(&folder, "id = ?", id).Error; err != nil {
		return nil, lookupError(err, "folder", id)
	}
	return &folder, nil
}

// ListProjectFolders returns every folder of the project ordered by sort_order.
func (s *Store) ListProjectFolders(ctx context.Context, projectID string) ([]models.Folder, error) {
	var folders []models.Folder
	if err := s.conn(ctx).Where("project_id = ?", projectID).Order("sort_order ASC, id ASC").Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("remote store: list folders: %w", err)
	}
	return folders, nil
}

// UpdateFolder applies the patch inside a transaction, re-ranking the scopes it touches.
func (s *Store) UpdateFolder(ctx context.Context, id string, patch store.FolderPatch) (*models.Folder, error) {
	now := s.now()
	var updated *models.Folder
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		folder, err := getFolder(tx, id)
		if err != nil {
			return err
		}

		cols := map[string]any{"updated_at": now}
		if patch.Name != nil {
			cols["name"] = strings.TrimSpace(*patch.Name)
		}
		oldParent := folder.ParentID
		moves := patch.MovesParent(folder.ParentID)
		parent := folder.ParentID
		if moves {
			target, _ := patch.TargetParent()
			parent = target
			next, err := nextSortOrder(tx, store.KindFolder, folder.ProjectID, parent, folder.ID)
			if err != nil {
				return err
			}
			cols["parent_id"] = nullable(parent)
			cols["sort_order"] = next
		}
		if err := tx.Model(&models.Folder{}).Where("id = ?", id).Updates(cols).Error; err != nil {
			return writeError(err, "update folder")
		}

		if moves {
			if err := compactScope(tx, store.KindFolder, folder.ProjectID, oldParent, now); err != nil {
				return err
			}
		}
		if patch.SortOrder != nil {
			if err := moveWithinScope(tx, store.KindFolder, folder.ProjectID, parent, id, *patch.SortOrder, now); err != nil {
				return err
			}
		}

		updated, err = getFolder(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteFolder removes the folder, its descendants and every diagram inside
// them, then compacts the parent scope.
func (s *Store) DeleteFolder(ctx context.Context, id string) (*store.DeleteResult, error) {
	now := s.now()
	result := &store.DeleteResult{}
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		folder, err := getFolder(tx, id)
		if err != nil {
			return err
		}

		var projectFolders []models.Folder
		if err := tx.Where("project_id = ?", folder.ProjectID).Find(&projectFolders).Error; err != nil {
			return fmt.Errorf("remote store: load project folders: %w", err)
		}
		result.FolderIDs = append([]string{id}, store.DescendantIDs(projectFolders, id)...)

		if err := tx.Model(&models.Diagram{}).Where("folder_id IN ?", result.FolderIDs).Pluck("id", &result.DiagramIDs).Error; err != nil {
			return fmt.Errorf("remote store: load folder diagrams: %w", err)
		}
		if len(result.DiagramIDs) > 0 {
			if err := deleteDiagramRows(tx, result.DiagramIDs); err != nil {
				return err
			}
		}
		if err := tx.Where("id IN ?", result.FolderIDs).Delete(&models.Folder{}).Error; err != nil {
			return fmt.Errorf("remote store: delete folders: %w", err)
		}
		return compactScope(tx, store.KindFolder, folder.ProjectID, folder.ParentID, now)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FolderStats counts the direct subfolders and active diagrams of a folder.
func (s *Store) FolderStats(ctx context.Context, id string) (*store.FolderStats, error) {
	db := s.conn(ctx)
	if _, err := getFolder(db, id); err != nil {
		return nil, err
	}

	var subfolders, diagrams int64
	if err := db.Model(&models.Folder{}).Where("parent_id = ?", id).Count(&subfolders).Error; err != nil {
		return nil, fmt.Errorf("remote store: count subfolders: %w", err)
	}
	if err := db.Model(&models.Diagram{}).Where("folder_id = ? AND is_active = ?", id, true).Count(&diagrams).Error; err != nil {
		return nil, fmt.Errorf("remote store: count diagrams: %w", err)
	}
	return &store.FolderStats{
		SubfolderCount: int(subfolders),
		DiagramCount:   int(diagrams),
		TotalItems:     int(subfolders + diagrams),
	}, nil
}

// SetSortOrder writes a single rank for a folder or diagram.
func (s *Store) SetSortOrder(ctx context.Context, kind store.ItemKind, id string, order int) error {
	if !kind.Valid() {
		return apperrors.NewValidation("unknown item type " + string(kind))
	}
	res := s.conn(ctx).Model(modelFor(kind)).Where("id = ?", id).
		Updates(map[string]any{"sort_order": order, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("remote store: set %s sort order: %w", kind, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFoundf(string(kind), id)
	}
	return nil
}

// NormalizeSiblings rewrites every scope containing one of ids to 0..N-1.
func (s *Store) NormalizeSiblings(ctx context.Context, kind store.ItemKind, ids []string) error {
	if !kind.Valid() {
		return apperrors.NewValidation("unknown item type " + string(kind))
	}
	if len(ids) == 0 {
		return nil
	}
	now := s.now()
	return s.transaction(ctx, func(tx *gorm.DB) error {
		scopes, err := scopesOf(tx, kind, ids)
		if err != nil {
			return err
		}
		for _, scope := range scopes {
			if err := compactScope(tx, kind, scope.projectID, scope.parentID, now); err != nil {
				return err
			}
		}
		return nil
	})
}

type siblingScope struct {
	projectID string
	parentID  *string
}

// scopesOf returns the distinct sibling scopes the given rows belong to.
func scopesOf(tx *gorm.DB, kind store.ItemKind, ids []string) ([]siblingScope, error) {
	seen := map[string]struct{}{}
	var out []siblingScope
	add := func(projectID string, parentID *string) {
		key := store.ScopeKey(projectID, parentID)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, siblingScope{projectID: projectID, parentID: parentID})
	}

	switch kind {
	case store.KindFolder:
		var folders []models.Folder
		if err := tx.Select("id", "project_id", "parent_id").Where("id IN ?", ids).Find(&folders).Error; err != nil {
			return nil, fmt.Errorf("remote store: load folder scopes: %w", err)
		}
		for _, folder := range folders {
			add(folder.ProjectID, folder.ParentID)
		}
	default:
		var diagrams []models.Diagram
		if err := tx.Select("id", "project_id", "folder_id").Where("id IN ?", ids).Find(&diagrams).Error; err != nil {
			return nil, fmt.Errorf("remote store: load diagram scopes: %w", err)
		}
		for _, diagram := range diagrams {
			add(diagram.ProjectID, diagram.FolderID)
		}
	}
	return out, nil
}
