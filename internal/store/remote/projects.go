package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// CreateProject inserts the project and its owner membership in one transaction.
func (s *Store) CreateProject(ctx context.Context, project *models.Project, owner *models.ProjectMember) error {
	now := s.now()
	project.EnsureID()
	project.Stamp(now)
	project.Members = nil

	return s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(project).Error; err != nil {
			return writeError(err, "create project")
		}
		if owner == nil {
			return nil
		}
		owner.ProjectID = project.ID
		if owner.Status == "" {
			owner.Status = models.MemberPending
		}
		if owner.JoinedAt.IsZero() {
			owner.JoinedAt = now
		}
		if err := tx.Create(owner).Error; err != nil {
			return writeError(err, "create owner membership")
		}
		return nil
	})
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	if err := s.conn(ctx).Take(&project, "id = ?", id).Error; err != nil {
		return nil, lookupError(err, "project", id)
	}
	return &project, nil
}

// ListUserProjects unions owned projects with accepted memberships.
func (s *Store) ListUserProjects(ctx context.Context, userID string) ([]models.Project, error) {
	db := s.conn(ctx)
	memberships := db.Model(&models.ProjectMember{}).
		Select("project_id").
		Where("user_id = ? AND status = ?", userID, models.MemberAccepted)

	var projects []models.Project
	err := db.Model(&models.Project{}).
		Where("owner_id = ? OR id IN (?)", userID, memberships).
		Order("updated_at DESC, id ASC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("remote store: list user projects: %w", err)
	}
	return projects, nil
}

// UpdateProject applies the patch and returns the fresh row.
func (s *Store) UpdateProject(ctx context.Context, id string, patch store.ProjectPatch) (*models.Project, error) {
	cols := patch.Columns()
	cols["updated_at"] = s.now()

	res := s.conn(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return nil, writeError(res.Error, "update project")
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.NotFoundf("project", id)
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes the project with its members, folders, diagrams and
// their sessions and version history.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		diagramIDs := tx.Model(&models.Diagram{}).Select("id").Where("project_id = ?", id)

		steps := []struct {
			name  string
			query *gorm.DB
			model any
		}{
			{"collaboration sessions", tx.Where("diagram_id IN (?)", diagramIDs), &models.CollaborationSession{}},
			{"diagram versions", tx.Where("diagram_id IN (?)", diagramIDs), &models.DiagramVersion{}},
			{"diagrams", tx.Where("project_id = ?", id), &models.Diagram{}},
			{"folders", tx.Where("project_id = ?", id), &models.Folder{}},
			{"members", tx.Where("project_id = ?", id), &models.ProjectMember{}},
		}
		for _, step := range steps {
			if err := step.query.Delete(step.model).Error; err != nil {
				return fmt.Errorf("remote store: delete project %s: %w", step.name, err)
			}
		}

		res := tx.Where("id = ?", id).Delete(&models.Project{})
		if res.Error != nil {
			return fmt.Errorf("remote store: delete project: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFoundf("project", id)
		}
		return nil
	})
}

// AddMember inserts a membership row. A duplicate (project, user) is a conflict.
func (s *Store) AddMember(ctx context.Context, member *models.ProjectMember) error {
	if _, err := s.GetProject(ctx, member.ProjectID); err != nil {
		return err
	}
	if member.Status == "" {
		member.Status = models.MemberPending
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = s.now()
	}
	if err := s.conn(ctx).Create(member).Error; err != nil {
		return writeError(err, "add member")
	}
	return s.touchProject(ctx, member.ProjectID)
}

// ListMembers returns the project's memberships ordered by join time.
func (s *Store) ListMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	var members []models.ProjectMember
	if err := s.conn(ctx).Where("project_id = ?", projectID).Order("joined_at ASC, id ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("remote store: list members: %w", err)
	}
	return members, nil
}

// UpdateMemberRole changes a member's role.
func (s *Store) UpdateMemberRole(ctx context.Context, projectID, userID string, role models.ProjectRole) (*models.ProjectMember, error) {
	var updated models.ProjectMember
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		member, err := loadMembership(tx, projectID, userID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.ProjectMember{}).Where("id = ?", member.ID).Update("role", role).Error; err != nil {
			return fmt.Errorf("remote store: update member role: %w", err)
		}
		updated = *member
		updated.Role = role
		return touchProject(tx, projectID, s.now())
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// RemoveMember deletes a membership row. Owners may be removed like any
// other member.
func (s *Store) RemoveMember(ctx context.Context, projectID, userID string) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		member, err := loadMembership(tx, projectID, userID)
		if err != nil {
			return err
		}
		if err := tx.Where("id = ?", member.ID).Delete(&models.ProjectMember{}).Error; err != nil {
			return fmt.Errorf("remote store: remove member: %w", err)
		}
		return touchProject(tx, projectID, s.now())
	})
}

func loadMembership(tx *gorm.DB, projectID, userID string) (*models.ProjectMember, error) {
	var member models.ProjectMember
	err := tx.Where("project_id = ? AND user_id = ?", projectID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("project member", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("remote store: load member: %w", err)
	}
	return &member, nil
}

func (s *Store) touchProject(ctx context.Context, projectID string) error {
	return touchProject(s.conn(ctx), projectID, s.now())
}

func touchProject(tx *gorm.DB, projectID string, now time.Time) error {
	if err := tx.Model(&models.Project{}).Where("id = ?", projectID).Update("updated_at", now).Error; err != nil {
		return fmt.Errorf("remote store: touch project: %w", err)
	}
	return nil
}
