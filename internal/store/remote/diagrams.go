package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// CreateDiagram inserts the diagram after its last active sibling and records
// version 1 in the history table.
func (s *Store) CreateDiagram(ctx context.Context, diagram *models.Diagram) error {
	now := s.now()
	return s.transaction(ctx, func(tx *gorm.DB) error {
		if folder := diagram.FolderID; folder != nil && strings.TrimSpace(*folder) == "" {
			diagram.FolderID = nil
		}
		next, err := nextSortOrder(tx, store.KindDiagram, diagram.ProjectID, diagram.FolderID, "")
		if err != nil {
			return err
		}
		diagram.SortOrder = next
		diagram.Version = 1
		diagram.IsActive = true
		diagram.EnsureID()
		diagram.Stamp(now)
		if err := tx.Create(diagram).Error; err != nil {
			return writeError(err, "create diagram")
		}
		return recordVersion(tx, diagram, now)
	})
}

// GetDiagram returns an active diagram by id.
func (s *Store) GetDiagram(ctx context.Context, id string) (*models.Diagram, error) {
	var diagram models.Diagram
	if err := s.conn(ctx).Take(&diagram, "id = ? AND is_active = ?", id, true).Error; err != nil {
		return nil, lookupError(err, "diagram", id)
	}
	return &diagram, nil
}

// ListProjectDiagrams returns the active diagrams of a project ordered by sort_order.
func (s *Store) ListProjectDiagrams(ctx context.Context, projectID string) ([]models.Diagram, error) {
	var diagrams []models.Diagram
	err := s.conn(ctx).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Order("sort_order ASC, id ASC").
		Find(&diagrams).Error
	if err != nil {
		return nil, fmt.Errorf("remote store: list diagrams: %w", err)
	}
	return diagrams, nil
}

// UpdateDiagram writes the patch conditioned on the version read at the start
// of the transaction. A concurrent writer makes the condition miss or the
// history insert collide; both surface as a write conflict.
func (s *Store) UpdateDiagram(ctx context.Context, id string, patch store.DiagramPatch) (*models.Diagram, error) {
	now := s.now()
	patch = patch.WithoutVersion()
	var updated models.Diagram
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var current models.Diagram
		if err := tx.Take(&current, "id = ?", id).Error; err != nil {
			return lookupError(err, "diagram", id)
		}

		cols := patch.Columns()
		delete(cols, "sort_order")
		cols["version"] = current.Version + 1
		cols["updated_at"] = now

		active := current.IsActive
		if patch.IsActive != nil {
			active = *patch.IsActive
		}
		folder := current.FolderID
		moves := patch.MovesFolder(current.FolderID)
		if moves {
			folder, _ = patch.TargetFolder()
			cols["folder_id"] = nullable(folder)
		}
		if active && (moves || !current.IsActive) {
			next, err := nextSortOrder(tx, store.KindDiagram, current.ProjectID, folder, id)
			if err != nil {
				return err
			}
			cols["sort_order"] = next
		}

		res := tx.Model(&models.Diagram{}).Where("id = ? AND version = ?", id, current.Version).Updates(cols)
		if res.Error != nil {
			return writeError(res.Error, "update diagram")
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrConflict.WithInternal(fmt.Errorf("diagram %s changed since version %d", id, current.Version))
		}

		if err := tx.Take(&updated, "id = ?", id).Error; err != nil {
			return lookupError(err, "diagram", id)
		}
		if err := recordVersion(tx, &updated, now); err != nil {
			return err
		}

		switch {
		case moves:
			if err := compactScope(tx, store.KindDiagram, current.ProjectID, current.FolderID, now); err != nil {
				return err
			}
		case current.IsActive && !active:
			if err := compactScope(tx, store.KindDiagram, current.ProjectID, current.FolderID, now); err != nil {
				return err
			}
		}
		if patch.SortOrder != nil && active {
			if err := moveWithinScope(tx, store.KindDiagram, current.ProjectID, folder, id, *patch.SortOrder, now); err != nil {
				return err
			}
		}
		if err := tx.Take(&updated, "id = ?", id).Error; err != nil {
			return lookupError(err, "diagram", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteDiagram removes the diagram with its sessions and history, then
// compacts its scope.
func (s *Store) DeleteDiagram(ctx context.Context, id string) error {
	now := s.now()
	return s.transaction(ctx, func(tx *gorm.DB) error {
		var diagram models.Diagram
		if err := tx.Take(&diagram, "id = ?", id).Error; err != nil {
			return lookupError(err, "diagram", id)
		}
		if err := deleteDiagramRows(tx, []string{id}); err != nil {
			return err
		}
		return compactScope(tx, store.KindDiagram, diagram.ProjectID, diagram.FolderID, now)
	})
}

// ListDiagramVersions returns the history of a diagram, newest first.
func (s *Store) ListDiagramVersions(ctx context.Context, diagramID string) ([]models.DiagramVersion, error) {
	if _, err := s.GetDiagram(ctx, diagramID); err != nil {
		return nil, err
	}
	var versions []models.DiagramVersion
	if err := s.conn(ctx).Where("diagram_id = ?", diagramID).Order("version_number DESC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("remote store: list diagram versions: %w", err)
	}
	return versions, nil
}

// UpsertCollaborationSession inserts or refreshes the (diagram, user) session.
func (s *Store) UpsertCollaborationSession(ctx context.Context, session *models.CollaborationSession) error {
	if session.LastActivity.IsZero() {
		session.LastActivity = s.now()
	}
	db := s.conn(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "diagram_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_data", "last_activity", "is_active"}),
	}).Create(session).Error
	if err != nil {
		return fmt.Errorf("remote store: upsert collaboration session: %w", err)
	}
	var stored models.CollaborationSession
	if err := db.Take(&stored, "diagram_id = ? AND user_id = ?", session.DiagramID, session.UserID).Error; err != nil {
		return lookupError(err, "collaboration session", session.DiagramID)
	}
	*session = stored
	return nil
}

// ListCollaborationSessions returns active sessions whose last activity is
// after activeSince, most recent first.
func (s *Store) ListCollaborationSessions(ctx context.Context, diagramID string, activeSince time.Time) ([]models.CollaborationSession, error) {
	var sessions []models.CollaborationSession
	err := s.conn(ctx).
		Where("diagram_id = ? AND is_active = ? AND last_activity > ?", diagramID, true, activeSince).
		Order("last_activity DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("remote store: list collaboration sessions: %w", err)
	}
	return sessions, nil
}

// EndCollaborationSession marks the user's session inactive.
func (s *Store) EndCollaborationSession(ctx context.Context, diagramID, userID string) error {
	err := s.conn(ctx).Model(&models.CollaborationSession{}).
		Where("diagram_id = ? AND user_id = ? AND is_active = ?", diagramID, userID, true).
		Updates(map[string]any{"is_active": false, "last_activity": s.now()}).Error
	if err != nil {
		return fmt.Errorf("remote store: end collaboration session: %w", err)
	}
	return nil
}

// ExpireCollaborationSessions deactivates sessions idle since before.
func (s *Store) ExpireCollaborationSessions(ctx context.Context, before time.Time) (int64, error) {
	res := s.conn(ctx).Model(&models.CollaborationSession{}).
		Where("is_active = ? AND last_activity <= ?", true, before).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("remote store: expire collaboration sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CreateActivityLog appends an activity entry.
func (s *Store) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if err := s.conn(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("remote store: create activity log: %w", err)
	}
	return nil
}

// ListActivityLogs returns the project's entries newest first.
func (s *Store) ListActivityLogs(ctx context.Context, projectID string, limit int) ([]models.ActivityLog, error) {
	query := s.conn(ctx).Where("project_id = ?", projectID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []models.ActivityLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("remote store: list activity logs: %w", err)
	}
	return entries, nil
}

// PruneActivityLogs deletes entries created before the cutoff.
func (s *Store) PruneActivityLogs(ctx context.Context, before time.Time) (int64, error) {
	res := s.conn(ctx).Where("created_at < ?", before).Delete(&models.ActivityLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("remote store: prune activity logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func recordVersion(tx *gorm.DB, diagram *models.Diagram, now time.Time) error {
	version := models.DiagramVersion{
		DiagramID:     diagram.ID,
		VersionNumber: diagram.Version,
		Content:       diagram.Content,
		CreatedBy:     diagram.LastModifiedBy,
		CreatedAt:     now,
	}
	if version.CreatedBy == nil && diagram.CreatedBy != "" {
		createdBy := diagram.CreatedBy
		version.CreatedBy = &createdBy
	}
	if err := tx.Create(&version).Error; err != nil {
		return writeError(err, "record diagram version")
	}
	return nil
}

func deleteDiagramRows(tx *gorm.DB, ids []string) error {
	if err := tx.Where("diagram_id IN ?", ids).Delete(&models.CollaborationSession{}).Error; err != nil {
		return fmt.Errorf("remote store: delete collaboration sessions: %w", err)
	}
	if err := tx.Where("diagram_id IN ?", ids).Delete(&models.DiagramVersion{}).Error; err != nil {
		return fmt.Errorf("remote store: delete diagram versions: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&models.Diagram{}).Error; err != nil {
		return fmt.Errorf("remote store: delete diagrams: %w", err)
	}
	return nil
}
