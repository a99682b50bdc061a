package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/events"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

func TestCreateProjectAddsSingleAcceptedOwner(t *testing.T) {
	for name, opts := range map[string][]fixtureOption{
		"remote":     nil,
		"fallback":   {withUnmigratedRemote()},
		"local mode": {withLocalMode()},
		"no remote":  {withoutRemote()},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, opts...)
			ctx := context.Background()
			created, cancel := f.bus.Subscribe(4, events.ProjectCreated)
			defer cancel()

			project, err := f.projects.CreateProject(ctx, CreateProjectInput{Name: "Alpha", OwnerID: "u1"})
			require.NoError(t, err)
			require.NotEmpty(t, project.ID)

			members, err := f.projects.GetProjectMembers(ctx, project.ID)
			require.NoError(t, err)
			require.Len(t, members, 1)
			require.Equal(t, project.ID, members[0].ProjectID)
			require.Equal(t, "u1", members[0].UserID)
			require.Equal(t, models.RoleOwner, members[0].Role)
			require.Equal(t, models.MemberAccepted, members[0].Status)

			event := <-created
			require.Equal(t, project.ID, event.EntityID)
		})
	}
}

func TestCreateProjectFallbackRecreatesProjectLocally(t *testing.T) {
	f := newFixture(t, withUnmigratedRemote())
	ctx := context.Background()

	project, err := f.projects.CreateProject(ctx, CreateProjectInput{Name: "Alpha", OwnerID: "u1"})
	require.NoError(t, err)

	stored, err := f.local.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, stored.Members, 1)
	require.Equal(t, int64(1), f.conn.Status().Fallbacks)
	require.Equal(t, connection.ModeDatabase, f.conn.Status().Mode)
}

func TestCreateProjectValidationNeverFallsBack(t *testing.T) {
	f := newFixture(t, withUnmigratedRemote())

	_, err := f.projects.CreateProject(context.Background(), CreateProjectInput{Name: "   ", OwnerID: "u1"})
	require.True(t, apperrors.IsValidation(err))
	require.Zero(t, f.conn.Status().Fallbacks)
}

func TestGetUserProjectsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		_, err := f.projects.CreateProject(ctx, CreateProjectInput{Name: name, OwnerID: "u1"})
		require.NoError(t, err)
	}
	shared, err := f.projects.CreateProject(ctx, CreateProjectInput{Name: "Shared", OwnerID: "u2"})
	require.NoError(t, err)
	_, err = f.projects.AddProjectMember(ctx, AddMemberInput{ProjectID: shared.ID, UserID: "u1", Role: models.RoleEditor, Status: models.MemberAccepted})
	require.NoError(t, err)

	first, err := f.projects.GetUserProjects(ctx, "u1")
	require.NoError(t, err)
	second, err := f.projects.GetUserProjects(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, first, 4)
	require.Equal(t, first, second)
}

func TestProjectUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	updated, cancel := f.bus.Subscribe(4, events.ProjectUpdated, events.ProjectDeleted)
	defer cancel()

	project, err := f.projects.CreateProject(ctx, CreateProjectInput{Name: "Alpha", OwnerID: "u1"})
	require.NoError(t, err)

	name := "Beta"
	got, err := f.projects.UpdateProject(ctx, project.ID, store.ProjectPatch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Beta", got.Name)
	event := <-updated
	require.Equal(t, map[string]any{"name": "Beta"}, event.Delta)

	_, err = f.projects.UpdateProject(ctx, project.ID, store.ProjectPatch{})
	require.True(t, apperrors.IsValidation(err))

	require.NoError(t, f.projects.DeleteProject(ctx, project.ID))
	require.Equal(t, events.ProjectDeleted, (<-updated).Type)
}

func TestMembershipManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	project, err := f.projects.CreateProject(ctx, CreateProjectInput{Name: "Alpha", OwnerID: "u1"})
	require.NoError(t, err)

	member, err := f.projects.AddProjectMember(ctx, AddMemberInput{ProjectID: project.ID, UserID: "u2", Role: models.RoleViewer})
	require.NoError(t, err)
	require.Equal(t, models.MemberPending, member.Status)

	_, err = f.projects.AddProjectMember(ctx, AddMemberInput{ProjectID: project.ID, UserID: "u2", Role: models.RoleViewer})
	require.True(t, apperrors.IsValidation(err))

	_, err = f.projects.AddProjectMember(ctx, AddMemberInput{ProjectID: project.ID, UserID: "u3", Role: "superuser"})
	require.True(t, apperrors.IsValidation(err))

	promoted, err := f.projects.UpdateProjectMemberRole(ctx, project.ID, "u2", models.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, promoted.Role)

	require.NoError(t, f.projects.RemoveProjectMember(ctx, project.ID, "u2"))
	members, err := f.projects.GetProjectMembers(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Zero(t, f.conn.Status().Fallbacks)
}

func TestOwnerMembershipIsEditableLikeAnyOther(t *testing.T) {
	for name, opts := range pathModes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, opts...)
			ctx := context.Background()

			project, err := f.projects.CreateProject(ctx, CreateProjectInput{Name: "Alpha", OwnerID: "u1"})
			require.NoError(t, err)

			demoted, err := f.projects.UpdateProjectMemberRole(ctx, project.ID, "u1", models.RoleViewer)
			require.NoError(t, err)
			require.Equal(t, models.RoleViewer, demoted.Role)

			require.NoError(t, f.projects.RemoveProjectMember(ctx, project.ID, "u1"))
			members, err := f.projects.GetProjectMembers(ctx, project.ID)
			require.NoError(t, err)
			require.Empty(t, members)
		})
	}
}
