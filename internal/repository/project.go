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

// ProjectRepository manages projects and their memberships.
type ProjectRepository struct {
	conn   *connection.Manager
	remote store.ProjectStore
	local  store.ProjectStore
	options
}

// NewProjectRepository constructs a ProjectRepository. remote may be nil only
// when the connection manager has no remote backend.
func NewProjectRepository(conn *connection.Manager, remote, local store.ProjectStore, opts ...Option) (*ProjectRepository, error) {
	if err := checkBackends(conn, remote != nil, local != nil); err != nil {
		return nil, err
	}
	return &ProjectRepository{
		conn:    conn,
		remote:  remote,
		local:   local,
		options: buildOptions("projects", opts),
	}, nil
}

// CreateProject inserts the project and an accepted owner membership for its
// creator. When the remote write fails both are recreated locally.
func (r *ProjectRepository) CreateProject(ctx context.Context, input CreateProjectInput) (*models.Project, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	create := func(target store.ProjectStore) connection.Operation[*models.Project] {
		return func(ctx context.Context) (*models.Project, error) {
			project := &models.Project{
				Name:        strings.TrimSpace(input.Name),
				Description: strings.TrimSpace(input.Description),
				OwnerID:     input.OwnerID,
				Settings:    input.Settings,
			}
			owner := &models.ProjectMember{
				UserID: input.OwnerID,
				Role:   models.RoleOwner,
				Status: models.MemberAccepted,
			}
			if err := target.CreateProject(ctx, project, owner); err != nil {
				return nil, err
			}
			project.Members = []models.ProjectMember{*owner}
			return project, nil
		}
	}

	project, err := connection.Run(ctx, r.conn, "project.create", create(r.remote), create(r.local))
	if err != nil {
		return nil, err
	}
	r.publish(events.ProjectCreated, project.ID, project.ID, project, nil)
	return project, nil
}

// GetProject returns a project by id.
func (r *ProjectRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	if err := requireID("project", id); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "project.get",
		func(ctx context.Context) (*models.Project, error) { return r.remote.GetProject(ctx, id) },
		func(ctx context.Context) (*models.Project, error) { return r.local.GetProject(ctx, id) },
	)
}

// GetUserProjects returns owned projects and projects shared with the user
// through an accepted membership, newest first.
func (r *ProjectRepository) GetUserProjects(ctx context.Context, userID string) ([]models.Project, error) {
	if err := requireID("user", userID); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "project.list_user",
		func(ctx context.Context) ([]models.Project, error) { return r.remote.ListUserProjects(ctx, userID) },
		func(ctx context.Context) ([]models.Project, error) { return r.local.ListUserProjects(ctx, userID) },
	)
}

// UpdateProject applies the patch.
func (r *ProjectRepository) UpdateProject(ctx context.Context, id string, patch store.ProjectPatch) (*models.Project, error) {
	if err := requireID("project", id); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, apperrors.NewValidation("project update has no fields")
	}
	if err := validate(patch); err != nil {
		return nil, err
	}

	project, err := connection.Run(ctx, r.conn, "project.update",
		func(ctx context.Context) (*models.Project, error) { return r.remote.UpdateProject(ctx, id, patch) },
		func(ctx context.Context) (*models.Project, error) { return r.local.UpdateProject(ctx, id, patch) },
	)
	if err != nil {
		return nil, err
	}
	r.publish(events.ProjectUpdated, project.ID, project.ID, project, patch.Columns())
	return project, nil
}

// DeleteProject removes the project and everything it contains.
func (r *ProjectRepository) DeleteProject(ctx context.Context, id string) error {
	if err := requireID("project", id); err != nil {
		return err
	}
	err := connection.Do(ctx, r.conn, "project.delete",
		func(ctx context.Context) error { return r.remote.DeleteProject(ctx, id) },
		func(ctx context.Context) error { return r.local.DeleteProject(ctx, id) },
	)
	if err != nil {
		return err
	}
	r.publish(events.ProjectDeleted, id, id, nil, nil)
	return nil
}

// AddProjectMember invites a user. Status defaults to pending.
func (r *ProjectRepository) AddProjectMember(ctx context.Context, input AddMemberInput) (*models.ProjectMember, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	add := func(target store.ProjectStore) connection.Operation[*models.ProjectMember] {
		return func(ctx context.Context) (*models.ProjectMember, error) {
			member := &models.ProjectMember{
				ProjectID: input.ProjectID,
				UserID:    input.UserID,
				Role:      input.Role,
				InvitedBy: input.InvitedBy,
				Status:    input.Status,
			}
			if err := target.AddMember(ctx, member); err != nil {
				// A duplicate membership is a definitive answer, not a backend failure.
				if apperrors.IsConflict(err) {
					return nil, apperrors.ErrValidation.WithInternal(err)
				}
				return nil, err
			}
			return member, nil
		}
	}
	return connection.Run(ctx, r.conn, "project.add_member", add(r.remote), add(r.local))
}

// GetProjectMembers lists the memberships of a project.
func (r *ProjectRepository) GetProjectMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error) {
	if err := requireID("project", projectID); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "project.list_members",
		func(ctx context.Context) ([]models.ProjectMember, error) { return r.remote.ListMembers(ctx, projectID) },
		func(ctx context.Context) ([]models.ProjectMember, error) { return r.local.ListMembers(ctx, projectID) },
	)
}

// UpdateProjectMemberRole changes a member's role. Owner counts are not checked.
func (r *ProjectRepository) UpdateProjectMemberRole(ctx context.Context, projectID, userID string, role models.ProjectRole) (*models.ProjectMember, error) {
	if err := requireID("project", projectID); err != nil {
		return nil, err
	}
	if err := requireID("user", userID); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperrors.NewValidation("unknown project role " + string(role))
	}
	return connection.Run(ctx, r.conn, "project.update_member_role",
		func(ctx context.Context) (*models.ProjectMember, error) {
			return r.remote.UpdateMemberRole(ctx, projectID, userID, role)
		},
		func(ctx context.Context) (*models.ProjectMember, error) {
			return r.local.UpdateMemberRole(ctx, projectID, userID, role)
		},
	)
}

// RemoveProjectMember deletes a membership.
func (r *ProjectRepository) RemoveProjectMember(ctx context.Context, projectID, userID string) error {
	if err := requireID("project", projectID); err != nil {
		return err
	}
	if err := requireID("user", userID); err != nil {
		return err
	}
	return connection.Do(ctx, r.conn, "project.remove_member",
		func(ctx context.Context) error { return r.remote.RemoveMember(ctx, projectID, userID) },
		func(ctx context.Context) error { return r.local.RemoveMember(ctx, projectID, userID) },
	)
}
