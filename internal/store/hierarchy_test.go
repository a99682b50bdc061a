package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/diagramhub/internal/models"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

func ptr(s string) *string { return &s }

// root
// ├── a
// │   └── b
// │       └── c
// └── d
func sampleTree() []models.Folder {
	mk := func(id string, parent *string) models.Folder {
		return models.Folder{BaseModel: models.BaseModel{ID: id}, ProjectID: "p1", ParentID: parent, Name: id}
	}
	return []models.Folder{
		mk("root", nil),
		mk("a", ptr("root")),
		mk("b", ptr("a")),
		mk("c", ptr("b")),
		mk("d", ptr("root")),
	}
}

func TestValidateFolderHierarchyRejectsSelf(t *testing.T) {
	err := ValidateFolderHierarchy(sampleTree(), "a", ptr("a"))
	require.Error(t, err)
	require.True(t, apperrors.IsValidation(err))
}

func TestValidateFolderHierarchyRejectsDescendants(t *testing.T) {
	for _, target := range []string{"b", "c"} {
		err := ValidateFolderHierarchy(sampleTree(), "a", ptr(target))
		require.Error(t, err, "moving a under %s", target)
		require.True(t, apperrors.IsValidation(err))
	}
}

func TestValidateFolderHierarchyAllowsValidMoves(t *testing.T) {
	tree := sampleTree()
	require.NoError(t, ValidateFolderHierarchy(tree, "a", ptr("d")))
	require.NoError(t, ValidateFolderHierarchy(tree, "c", ptr("root")))
	require.NoError(t, ValidateFolderHierarchy(tree, "c", nil))
	require.NoError(t, ValidateFolderHierarchy(tree, "c", ptr("")))
}

func TestValidateFolderHierarchyRejectsUnknownParent(t *testing.T) {
	err := ValidateFolderHierarchy(sampleTree(), "a", ptr("elsewhere"))
	require.Error(t, err)
	require.True(t, apperrors.IsValidation(err))
}

func TestValidateFolderHierarchyDetectsExistingCycle(t *testing.T) {
	tree := []models.Folder{
		{BaseModel: models.BaseModel{ID: "x"}, ParentID: ptr("y")},
		{BaseModel: models.BaseModel{ID: "y"}, ParentID: ptr("x")},
		{BaseModel: models.BaseModel{ID: "z"}},
	}
	err := ValidateFolderHierarchy(tree, "z", ptr("x"))
	require.Error(t, err)
}

func TestDescendantIDs(t *testing.T) {
	tree := sampleTree()

	require.ElementsMatch(t, []string{"a", "b", "c", "d"}, DescendantIDs(tree, "root"))
	require.ElementsMatch(t, []string{"b", "c"}, DescendantIDs(tree, "a"))
	require.Empty(t, DescendantIDs(tree, "c"))
}
