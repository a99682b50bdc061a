package store

import (
	"fmt"
	"strings"

	"github.com/charlesng35/diagramhub/internal/models"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// ValidateFolderHierarchy checks that moving folderID under newParentID keeps
// the tree acyclic. folders must be the complete folder list of the project.
// A nil or empty parent (move to root) is always valid.
func ValidateFolderHierarchy(folders []models.Folder, folderID string, newParentID *string) error {
	target := parentKey(newParentID)
	if target == "" {
		return nil
	}
	if target == folderID {
		return apperrors.NewValidation("a folder cannot be moved into itself")
	}

	parents := make(map[string]*string, len(folders))
	for _, folder := range folders {
		parents[folder.ID] = folder.ParentID
	}
	if _, ok := parents[target]; !ok {
		return apperrors.NewValidation(fmt.Sprintf("parent folder %q does not belong to the project", target))
	}

	visited := map[string]struct{}{}
	for current := target; current != ""; current = parentKey(parents[current]) {
		if current == folderID {
			return apperrors.NewValidation("a folder cannot be moved into one of its descendants")
		}
		if _, seen := visited[current]; seen {
			return apperrors.NewValidation("folder hierarchy already contains a cycle")
		}
		visited[current] = struct{}{}
	}
	return nil
}

// DescendantIDs returns every transitive descendant of rootID, breadth first.
// rootID itself is not included.
func DescendantIDs(folders []models.Folder, rootID string) []string {
	children := make(map[string][]string, len(folders))
	for _, folder := range folders {
		if parent := parentKey(folder.ParentID); parent != "" {
			children[parent] = append(children[parent], folder.ID)
		}
	}

	var out []string
	seen := map[string]struct{}{rootID: {}}
	queue := []string{rootID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// IDSet builds a lookup set, ignoring blank ids.
func IDSet(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}
