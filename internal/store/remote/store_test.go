package remote

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/charlesng35/diagramhub/internal/database/testutil"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithRemoteSchema())
	current := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s, err := New(db, WithNow(func() time.Time {
		current = current.Add(time.Second)
		return current
	}))
	require.NoError(t, err)
	return s, db
}

func createProject(t *testing.T, s *Store, ownerID string) *models.Project {
	t.Helper()
	project := &models.Project{Name: "Roadmap", OwnerID: ownerID}
	owner := &models.ProjectMember{UserID: ownerID, Role: models.RoleOwner, Status: models.MemberAccepted}
	require.NoError(t, s.CreateProject(context.Background(), project, owner))
	return project
}

func ordersOf(t *testing.T, db *gorm.DB, model any, projectID string) []int {
	t.Helper()
	var orders []int
	require.NoError(t, db.Model(model).Where("project_id = ?", projectID).Order("sort_order ASC").Pluck("sort_order", &orders).Error)
	return orders
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestCreateProjectWritesOwnerMembership(t *testing.T) {
	s, db := newTestStore(t)
	project := createProject(t, s, "u1")

	var members []models.ProjectMember
	require.NoError(t, db.Where("project_id = ?", project.ID).Find(&members).Error)
	require.Len(t, members, 1)
	require.Equal(t, models.RoleOwner, members[0].Role)
}

func TestListUserProjectsUnionsMemberships(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	owned := createProject(t, s, "u1")
	shared := createProject(t, s, "u2")
	invited := createProject(t, s, "u3")
	require.NoError(t, s.AddMember(ctx, &models.ProjectMember{ProjectID: shared.ID, UserID: "u1", Role: models.RoleEditor, Status: models.MemberAccepted}))
	require.NoError(t, s.AddMember(ctx, &models.ProjectMember{ProjectID: invited.ID, UserID: "u1", Role: models.RoleViewer}))

	projects, err := s.ListUserProjects(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	require.Equal(t, shared.ID, projects[0].ID)
	require.Equal(t, owned.ID, projects[1].ID)
}

func TestAddMemberDuplicateIsConflict(t *testing.T) {
	s, _ := newTestStore(t)
	project := createProject(t, s, "u1")

	err := s.AddMember(context.Background(), &models.ProjectMember{ProjectID: project.ID, UserID: "u1", Role: models.RoleViewer})
	require.True(t, apperrors.IsConflict(err))
}

func TestMemberRoleChanges(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	require.NoError(t, s.AddMember(ctx, &models.ProjectMember{ProjectID: project.ID, UserID: "u2", Role: models.RoleEditor, Status: models.MemberAccepted}))
	member, err := s.UpdateMemberRole(ctx, project.ID, "u2", models.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, member.Role)

	owner, err := s.UpdateMemberRole(ctx, project.ID, "u1", models.RoleViewer)
	require.NoError(t, err)
	require.Equal(t, models.RoleViewer, owner.Role)
	require.NoError(t, s.RemoveMember(ctx, project.ID, "u1"))

	members, err := s.ListMembers(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "u2", members[0].UserID)

	_, err = s.UpdateMemberRole(ctx, project.ID, "u1", models.RoleEditor)
	require.True(t, apperrors.IsNotFound(err))
}

func TestUpdateProjectMissingIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	name := "renamed"
	_, err := s.UpdateProject(context.Background(), "missing", store.ProjectPatch{Name: &name})
	require.True(t, apperrors.IsNotFound(err))
}

func TestFolderCreateDeleteKeepsOrderDense(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	var ids []string
	for i := 0; i < 4; i++ {
		folder := &models.Folder{ProjectID: project.ID, Name: fmt.Sprintf("F%d", i)}
		require.NoError(t, s.CreateFolder(ctx, folder))
		require.Equal(t, i, folder.SortOrder)
		ids = append(ids, folder.ID)
	}

	_, err := s.DeleteFolder(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, ordersOf(t, db, &models.Folder{}, project.ID))

	require.NoError(t, s.SetSortOrder(ctx, store.KindFolder, ids[3], 0))
	require.NoError(t, s.SetSortOrder(ctx, store.KindFolder, ids[1], 5))
	require.NoError(t, s.NormalizeSiblings(ctx, store.KindFolder, []string{ids[3], ids[1]}))
	require.Equal(t, []int{0, 1, 2}, ordersOf(t, db, &models.Folder{}, project.ID))

	folders, err := s.ListProjectFolders(ctx, project.ID)
	require.NoError(t, err)
	require.Equal(t, []string{ids[3], ids[2], ids[1]}, []string{folders[0].ID, folders[1].ID, folders[2].ID})
}

func TestUpdateFolderMovesBetweenScopes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	a := &models.Folder{ProjectID: project.ID, Name: "A"}
	b := &models.Folder{ProjectID: project.ID, Name: "B"}
	c := &models.Folder{ProjectID: project.ID, Name: "C"}
	for _, folder := range []*models.Folder{a, b, c} {
		require.NoError(t, s.CreateFolder(ctx, folder))
	}

	name := "Archive"
	moved, err := s.UpdateFolder(ctx, a.ID, store.FolderPatch{Name: &name, ParentID: &c.ID})
	require.NoError(t, err)
	require.Equal(t, "Archive", moved.Name)
	require.Equal(t, c.ID, *moved.ParentID)
	require.Equal(t, 0, moved.SortOrder)

	gotB, err := s.GetFolder(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, 0, gotB.SortOrder)

	root, err := s.UpdateFolder(ctx, a.ID, store.FolderPatch{MoveToRoot: true})
	require.NoError(t, err)
	require.Nil(t, root.ParentID)
	require.Equal(t, 2, root.SortOrder)
}

func TestDeleteFolderCascadesToDescendantsAndDiagrams(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	root := &models.Folder{ProjectID: project.ID, Name: "root"}
	require.NoError(t, s.CreateFolder(ctx, root))
	child := &models.Folder{ProjectID: project.ID, ParentID: &root.ID, Name: "child"}
	require.NoError(t, s.CreateFolder(ctx, child))
	leaf := &models.Folder{ProjectID: project.ID, ParentID: &child.ID, Name: "leaf"}
	require.NoError(t, s.CreateFolder(ctx, leaf))

	inLeaf := &models.Diagram{ProjectID: project.ID, FolderID: &leaf.ID, Name: "leaf diagram"}
	require.NoError(t, s.CreateDiagram(ctx, inLeaf))
	atRoot := &models.Diagram{ProjectID: project.ID, Name: "root diagram"}
	require.NoError(t, s.CreateDiagram(ctx, atRoot))

	result, err := s.DeleteFolder(ctx, root.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{root.ID, child.ID, leaf.ID}, result.FolderIDs)
	require.Equal(t, []string{inLeaf.ID}, result.DiagramIDs)

	var folderCount, versionCount int64
	require.NoError(t, db.Model(&models.Folder{}).Count(&folderCount).Error)
	require.Zero(t, folderCount)
	require.NoError(t, db.Model(&models.DiagramVersion{}).Where("diagram_id = ?", inLeaf.ID).Count(&versionCount).Error)
	require.Zero(t, versionCount)

	_, err = s.GetDiagram(ctx, atRoot.ID)
	require.NoError(t, err)
}

func TestFolderStats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	root := &models.Folder{ProjectID: project.ID, Name: "root"}
	require.NoError(t, s.CreateFolder(ctx, root))
	require.NoError(t, s.CreateFolder(ctx, &models.Folder{ProjectID: project.ID, ParentID: &root.ID, Name: "a"}))
	require.NoError(t, s.CreateFolder(ctx, &models.Folder{ProjectID: project.ID, ParentID: &root.ID, Name: "b"}))
	require.NoError(t, s.CreateDiagram(ctx, &models.Diagram{ProjectID: project.ID, FolderID: &root.ID, Name: "d"}))

	stats, err := s.FolderStats(ctx, root.ID)
	require.NoError(t, err)
	require.Equal(t, store.FolderStats{SubfolderCount: 2, DiagramCount: 1, TotalItems: 3}, *stats)

	_, err = s.FolderStats(ctx, "missing")
	require.True(t, apperrors.IsNotFound(err))
}

func TestUpdateDiagramIncrementsVersionAndRecordsHistory(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	diagram := &models.Diagram{ProjectID: project.ID, Name: "flow", Content: "graph TD", CreatedBy: "u1"}
	require.NoError(t, s.CreateDiagram(ctx, diagram))

	content := "graph LR"
	bogus := 42
	editor := "u2"
	updated, err := s.UpdateDiagram(ctx, diagram.ID, store.DiagramPatch{Content: &content, Version: &bogus, LastModifiedBy: &editor})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, content, updated.Content)

	versions, err := s.ListDiagramVersions(ctx, diagram.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, 2, versions[0].VersionNumber)
	require.Equal(t, "u2", *versions[0].CreatedBy)
}

func TestUpdateDiagramHistoryCollisionIsConflict(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	diagram := &models.Diagram{ProjectID: project.ID, Name: "flow"}
	require.NoError(t, s.CreateDiagram(ctx, diagram))
	// A concurrent writer already committed version 2.
	require.NoError(t, db.Create(&models.DiagramVersion{DiagramID: diagram.ID, VersionNumber: 2}).Error)

	name := "renamed"
	_, err := s.UpdateDiagram(ctx, diagram.ID, store.DiagramPatch{Name: &name})
	require.True(t, apperrors.IsConflict(err))

	got, err := s.GetDiagram(ctx, diagram.ID)
	require.NoError(t, err)
	require.Equal(t, "flow", got.Name)
	require.Equal(t, 1, got.Version)
}

func TestDiagramArchiveAndDeleteCompactScope(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	var ids []string
	for i := 0; i < 3; i++ {
		diagram := &models.Diagram{ProjectID: project.ID, Name: fmt.Sprintf("D%d", i)}
		require.NoError(t, s.CreateDiagram(ctx, diagram))
		ids = append(ids, diagram.ID)
	}

	inactive := false
	_, err := s.UpdateDiagram(ctx, ids[0], store.DiagramPatch{IsActive: &inactive})
	require.NoError(t, err)
	diagrams, err := s.ListProjectDiagrams(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, diagrams, 2)
	require.Equal(t, 0, diagrams[0].SortOrder)
	require.Equal(t, 1, diagrams[1].SortOrder)

	require.NoError(t, s.DeleteDiagram(ctx, ids[1]))
	var count int64
	require.NoError(t, db.Model(&models.Diagram{}).Where("id = ?", ids[1]).Count(&count).Error)
	require.Zero(t, count)

	diagrams, err = s.ListProjectDiagrams(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, diagrams, 1)
	require.Equal(t, 0, diagrams[0].SortOrder)
}

func TestCollaborationSessionsWindow(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertCollaborationSession(ctx, &models.CollaborationSession{DiagramID: "d1", UserID: "u1", IsActive: true, LastActivity: now.Add(-4 * time.Minute)}))
	require.NoError(t, s.UpsertCollaborationSession(ctx, &models.CollaborationSession{DiagramID: "d1", UserID: "u2", IsActive: true, LastActivity: now.Add(-6 * time.Minute)}))

	first := &models.CollaborationSession{DiagramID: "d1", UserID: "u1", IsActive: true, LastActivity: now.Add(-3 * time.Minute)}
	require.NoError(t, s.UpsertCollaborationSession(ctx, first))
	require.NotEmpty(t, first.ID)

	sessions, err := s.ListCollaborationSessions(ctx, "d1", now.Add(-models.CollaborationSessionWindow))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "u1", sessions[0].UserID)
	require.Equal(t, first.ID, sessions[0].ID)

	expired, err := s.ExpireCollaborationSessions(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	require.NoError(t, s.EndCollaborationSession(ctx, "d1", "u1"))
	sessions, err = s.ListCollaborationSessions(ctx, "d1", time.Time{})
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestActivityLogs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.CreateActivityLog(ctx, &models.ActivityLog{
			ProjectID: "p1",
			UserID:    "u1",
			Action:    fmt.Sprintf("action-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	entries, err := s.ListActivityLogs(ctx, "p1", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "action-3", entries[0].Action)

	pruned, err := s.PruneActivityLogs(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), pruned)
}

func TestUpsertProfile(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProfile(ctx, &models.Profile{ID: "u1", Email: "a@example.com"}))
	require.NoError(t, s.UpsertProfile(ctx, &models.Profile{ID: "u1", Email: "b@example.com", FullName: "Bee"}))

	var profiles []models.Profile
	require.NoError(t, db.Find(&profiles).Error)
	require.Len(t, profiles, 1)
	require.Equal(t, "b@example.com", profiles[0].Email)
	require.Equal(t, "Bee", profiles[0].FullName)
}

func TestDeleteProjectRemovesEverything(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	folder := &models.Folder{ProjectID: project.ID, Name: "f"}
	require.NoError(t, s.CreateFolder(ctx, folder))
	require.NoError(t, s.CreateDiagram(ctx, &models.Diagram{ProjectID: project.ID, FolderID: &folder.ID, Name: "d"}))

	require.NoError(t, s.DeleteProject(ctx, project.ID))
	for _, model := range []any{&models.Project{}, &models.ProjectMember{}, &models.Folder{}, &models.Diagram{}, &models.DiagramVersion{}} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		require.Zero(t, count)
	}
	require.True(t, apperrors.IsNotFound(s.DeleteProject(ctx, project.ID)))
}

func TestSiblingRecomputationLocksTheProjectRow(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=diagramhub dbname=diagramhub sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	var captured string
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		captured = tx.Statement.SQL.String()
	}))

	require.NoError(t, lockProject(db, "p1"))
	require.Contains(t, captured, `FROM "projects"`)
	require.Contains(t, captured, "FOR UPDATE")
}

func TestConcurrentCreatesKeepRanksDense(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithRemoteSchema())
	s, err := New(db)
	require.NoError(t, err)
	ctx := context.Background()
	project := createProject(t, s, "u1")

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			if err := s.CreateFolder(ctx, &models.Folder{ProjectID: project.ID, Name: fmt.Sprintf("F%d", i)}); err != nil {
				return err
			}
			return s.CreateDiagram(ctx, &models.Diagram{ProjectID: project.ID, Name: fmt.Sprintf("D%d", i)})
		})
	}
	require.NoError(t, g.Wait())

	want := []int{0, 1, 2, 3, 4, 5, 6, 7}
	folders := ordersOf(t, db, &models.Folder{}, project.ID)
	diagrams := ordersOf(t, db, &models.Diagram{}, project.ID)
	require.Equal(t, want, folders)
	require.Equal(t, want, diagrams)
}

func TestCreateWithoutProjectRowStillRanks(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.CreateDiagram(ctx, &models.Diagram{ProjectID: "detached", Name: "d"}))
	}
	require.Equal(t, []int{0, 1}, ordersOf(t, db, &models.Diagram{}, "detached"))
}
