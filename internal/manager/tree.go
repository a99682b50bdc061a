package manager

import (
	"context"
	"sort"

	"github.com/charlesng35/diagramhub/internal/models"
)

// FolderNode is one folder of a project tree. DiagramCount includes every
// diagram in the subtree.
type FolderNode struct {
	Folder       models.Folder    `json:"folder"`
	Diagrams     []models.Diagram `json:"diagrams,omitempty"`
	DiagramCount int              `json:"diagram_count"`
	Children     []FolderNode     `json:"children,omitempty"`
}

// ProjectTree is the nested folder hierarchy of a project with the diagrams
// that sit at its root.
type ProjectTree struct {
	ProjectID    string           `json:"project_id"`
	Folders      []FolderNode     `json:"folders"`
	Diagrams     []models.Diagram `json:"diagrams"`
	DiagramCount int              `json:"diagram_count"`
	Errors       []SourceError    `json:"errors,omitempty"`
}

// GetProjectTree nests the project's folders by parent, ordered by
// sort_order, and attaches each diagram to its folder.
func (m *DatabaseManager) GetProjectTree(ctx context.Context, projectID string) (*ProjectTree, error) {
	data, err := m.GetProjectData(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return buildTree(data), nil
}

func buildTree(data *ProjectData) *ProjectTree {
	children := make(map[string][]models.Folder, len(data.Folders))
	known := make(map[string]struct{}, len(data.Folders))
	for _, folder := range data.Folders {
		known[folder.ID] = struct{}{}
	}
	for _, folder := range data.Folders {
		parent := ""
		if folder.ParentID != nil {
			if _, ok := known[*folder.ParentID]; ok {
				parent = *folder.ParentID
			}
		}
		children[parent] = append(children[parent], folder)
	}

	byFolder := make(map[string][]models.Diagram)
	tree := &ProjectTree{
		ProjectID: data.ProjectID,
		Folders:   []FolderNode{},
		Diagrams:  []models.Diagram{},
		Errors:    data.Errors,
	}
	for _, diagram := range data.Diagrams {
		if diagram.FolderID != nil {
			if _, ok := known[*diagram.FolderID]; ok {
				byFolder[*diagram.FolderID] = append(byFolder[*diagram.FolderID], diagram)
				continue
			}
		}
		tree.Diagrams = append(tree.Diagrams, diagram)
	}
	sortDiagrams(tree.Diagrams)

	visited := make(map[string]struct{}, len(data.Folders))
	var build func(parent string) []FolderNode
	build = func(parent string) []FolderNode {
		folders := children[parent]
		sort.SliceStable(folders, func(i, j int) bool {
			if folders[i].SortOrder != folders[j].SortOrder {
				return folders[i].SortOrder < folders[j].SortOrder
			}
			return folders[i].ID < folders[j].ID
		})
		nodes := make([]FolderNode, 0, len(folders))
		for _, folder := range folders {
			if _, seen := visited[folder.ID]; seen {
				continue
			}
			visited[folder.ID] = struct{}{}
			node := FolderNode{
				Folder:   folder,
				Diagrams: byFolder[folder.ID],
				Children: build(folder.ID),
			}
			sortDiagrams(node.Diagrams)
			nodes = append(nodes, node)
		}
		return nodes
	}
	tree.Folders = build("")

	tree.DiagramCount = len(tree.Diagrams)
	for i := range tree.Folders {
		tree.DiagramCount += aggregateDiagramCounts(&tree.Folders[i])
	}
	return tree
}

func sortDiagrams(diagrams []models.Diagram) {
	sort.SliceStable(diagrams, func(i, j int) bool {
		if diagrams[i].SortOrder != diagrams[j].SortOrder {
			return diagrams[i].SortOrder < diagrams[j].SortOrder
		}
		return diagrams[i].ID < diagrams[j].ID
	})
}

func aggregateDiagramCounts(node *FolderNode) int {
	if node == nil {
		return 0
	}

	total := len(node.Diagrams)
	for i := range node.Children {
		total += aggregateDiagramCounts(&node.Children[i])
	}
	node.DiagramCount = total
	return total
}
