package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/events"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

var pathModes = map[string][]fixtureOption{
	"remote":   nil,
	"fallback": {withUnmigratedRemote()},
	"local":    {withLocalMode()},
}

func rootFolderOrders(t *testing.T, f *fixture, projectID string, parentID *string) []int {
	t.Helper()
	folders, err := f.folders.GetProjectFolders(context.Background(), projectID)
	require.NoError(t, err)
	return sortOrders(folders,
		func(folder models.Folder) bool { return store.SameParent(folder.ParentID, parentID) },
		func(folder models.Folder) int { return folder.SortOrder },
	)
}

func TestFolderOrderingStaysDense(t *testing.T) {
	for name, opts := range pathModes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, opts...)
			ctx := context.Background()

			var ids []string
			for i := 0; i < 5; i++ {
				folder, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: fmt.Sprintf("F%d", i)})
				require.NoError(t, err)
				require.Equal(t, i, folder.SortOrder)
				ids = append(ids, folder.ID)
			}

			_, err := f.folders.DeleteFolder(ctx, ids[2])
			require.NoError(t, err)
			require.Equal(t, []int{0, 1, 2, 3}, rootFolderOrders(t, f, "p1", nil))

			result, err := f.folders.UpdateFolderOrder(ctx, []store.Ranked{
				{ID: ids[4], SortOrder: 0},
				{ID: ids[0], SortOrder: 7},
			})
			require.NoError(t, err)
			require.NotNil(t, result)
			require.Equal(t, []int{0, 1, 2, 3}, rootFolderOrders(t, f, "p1", nil))

			folders, err := f.folders.GetProjectFolders(ctx, "p1")
			require.NoError(t, err)
			require.Equal(t, ids[4], folders[0].ID)
			require.Equal(t, ids[0], folders[3].ID)
		})
	}
}

func TestMoveFolderCompactsOldScope(t *testing.T) {
	for name, opts := range pathModes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, opts...)
			ctx := context.Background()

			a, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: "A"})
			require.NoError(t, err)
			b, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: "B"})
			require.NoError(t, err)
			_, err = f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", ParentID: &b.ID, Name: "B1"})
			require.NoError(t, err)

			moved, err := f.folders.MoveFolder(ctx, a.ID, &b.ID)
			require.NoError(t, err)
			require.Equal(t, b.ID, *moved.ParentID)
			require.Equal(t, 1, moved.SortOrder)
			require.Equal(t, []int{0}, rootFolderOrders(t, f, "p1", nil))
			require.Equal(t, []int{0, 1}, rootFolderOrders(t, f, "p1", &b.ID))

			back, err := f.folders.MoveFolder(ctx, a.ID, nil)
			require.NoError(t, err)
			require.Nil(t, back.ParentID)
			require.Equal(t, 1, back.SortOrder)
		})
	}
}

func TestCreateFolderRejectsForeignParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p2", Name: "elsewhere"})
	require.NoError(t, err)

	_, err = f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", ParentID: &other.ID, Name: "child"})
	require.True(t, apperrors.IsValidation(err))

	_, err = f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: ""})
	require.True(t, apperrors.IsValidation(err))
	require.Zero(t, f.conn.Status().Fallbacks)
}

func TestDeleteFolderCascadeRemovesSubtree(t *testing.T) {
	for name, opts := range pathModes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, opts...)
			ctx := context.Background()
			deleted, cancel := f.bus.Subscribe(4, events.FolderDeleted)
			defer cancel()

			root, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: "root"})
			require.NoError(t, err)
			child, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", ParentID: &root.ID, Name: "child"})
			require.NoError(t, err)
			grandchild, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", ParentID: &child.ID, Name: "grandchild"})
			require.NoError(t, err)
			keep, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: "keep"})
			require.NoError(t, err)

			var doomed []string
			for _, folderID := range []string{root.ID, child.ID, grandchild.ID} {
				folderID := folderID
				diagram, err := f.diagrams.CreateDiagram(ctx, CreateDiagramInput{ProjectID: "p1", FolderID: &folderID, Name: "d"})
				require.NoError(t, err)
				doomed = append(doomed, diagram.ID)
			}
			kept, err := f.diagrams.CreateDiagram(ctx, CreateDiagramInput{ProjectID: "p1", FolderID: &keep.ID, Name: "kept"})
			require.NoError(t, err)

			result, err := f.folders.DeleteFolder(ctx, root.ID)
			require.NoError(t, err)
			require.ElementsMatch(t, []string{root.ID, child.ID, grandchild.ID}, result.FolderIDs)
			require.ElementsMatch(t, doomed, result.DiagramIDs)

			folders, err := f.folders.GetProjectFolders(ctx, "p1")
			require.NoError(t, err)
			require.Len(t, folders, 1)
			require.Equal(t, keep.ID, folders[0].ID)
			require.Equal(t, 0, folders[0].SortOrder)

			diagrams, err := f.diagrams.GetProjectDiagrams(ctx, "p1")
			require.NoError(t, err)
			require.Len(t, diagrams, 1)
			require.Equal(t, kept.ID, diagrams[0].ID)

			event := <-deleted
			require.Equal(t, "p1", event.ProjectID)
			require.Equal(t, root.ID, event.EntityID)
		})
	}
}

func TestRenameFolderPublishesRenamed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	renamed, cancel := f.bus.Subscribe(4, events.FolderRenamed, events.FolderUpdated)
	defer cancel()

	folder, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: "old"})
	require.NoError(t, err)
	_, err = f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: "new"})
	require.NoError(t, err)

	got, err := f.folders.RenameFolder(ctx, folder.ID, "new")
	require.NoError(t, err, "sibling names may repeat")
	require.Equal(t, "new", got.Name)

	event := <-renamed
	require.Equal(t, events.FolderRenamed, event.Type)
	require.Equal(t, "new", event.Delta["name"])

	_, err = f.folders.RenameFolder(ctx, folder.ID, " ")
	require.True(t, apperrors.IsValidation(err))
}

func TestUpdateItemOrderHandlesMixedItems(t *testing.T) {
	for name, opts := range pathModes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, opts...)
			ctx := context.Background()

			folder, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: "A"})
			require.NoError(t, err)
			second, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: "B"})
			require.NoError(t, err)
			d1, err := f.diagrams.CreateDiagram(ctx, CreateDiagramInput{ProjectID: "p1", Name: "d1"})
			require.NoError(t, err)
			d2, err := f.diagrams.CreateDiagram(ctx, CreateDiagramInput{ProjectID: "p1", Name: "d2"})
			require.NoError(t, err)

			result, err := f.folders.UpdateItemOrder(ctx, []store.ItemOrder{
				{Type: store.KindFolder, ID: second.ID, SortOrder: 0},
				{Type: store.KindFolder, ID: folder.ID, SortOrder: 1},
				{Type: store.KindDiagram, ID: d2.ID, SortOrder: 0},
				{Type: store.KindDiagram, ID: d1.ID, SortOrder: 3},
			})
			require.NoError(t, err)
			if name == "remote" {
				require.Equal(t, connection.PathRemote, result.Path)
			} else {
				require.Equal(t, connection.PathLocal, result.Path)
			}

			folders, err := f.folders.GetProjectFolders(ctx, "p1")
			require.NoError(t, err)
			require.Equal(t, []string{second.ID, folder.ID}, []string{folders[0].ID, folders[1].ID})

			diagrams, err := f.diagrams.GetProjectDiagrams(ctx, "p1")
			require.NoError(t, err)
			require.Equal(t, d2.ID, diagrams[0].ID)
			require.Equal(t, []int{0, 1}, []int{diagrams[0].SortOrder, diagrams[1].SortOrder})
		})
	}
}

func TestUpdateItemOrderValidatesItems(t *testing.T) {
	f := newFixture(t)
	_, err := f.folders.UpdateItemOrder(context.Background(), []store.ItemOrder{{Type: "widget", ID: "x"}})
	require.True(t, apperrors.IsValidation(err))
}

func TestGetFolderStats(t *testing.T) {
	f := newFixture(t, withLocalMode())
	ctx := context.Background()

	root, err := f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", Name: "root"})
	require.NoError(t, err)
	_, err = f.folders.CreateFolder(ctx, CreateFolderInput{ProjectID: "p1", ParentID: &root.ID, Name: "child"})
	require.NoError(t, err)
	_, err = f.diagrams.CreateDiagram(ctx, CreateDiagramInput{ProjectID: "p1", FolderID: &root.ID, Name: "d"})
	require.NoError(t, err)

	stats, err := f.folders.GetFolderStats(ctx, root.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalItems)
}
