package local

import (
	"context"
	"sort"
	"strings"

	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// CreateFolder appends the folder after its last sibling.
func (s *Store) CreateFolder(ctx context.Context, folder *models.Folder) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyFolders)
	defer unlock()

	folders, err := load[models.Folder](ctx, s, KeyFolders)
	if err != nil {
		return err
	}

	folder.ParentID = normaliseParent(folder.ParentID)
	folder.SortOrder = store.NextSortOrder(folderOrders(folders, folder.ProjectID, folder.ParentID, ""))
	folder.EnsureID()
	folder.Stamp(s.now())

	folders = append(folders, *folder)
	return save(ctx, s, KeyFolders, folders)
}

// GetFolder returns a folder by id.
func (s *Store) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	folders, err := load[models.Folder](ensureContext(ctx), s, KeyFolders)
	if err != nil {
		return nil, err
	}
	idx := indexOf(folders, func(f models.Folder) bool { return f.ID == id })
	if idx < 0 {
		return nil, apperrors.NotFoundf("folder", id)
	}
	return &folders[idx], nil
}

// ListProjectFolders returns every folder of the project ordered by sort_order.
func (s *Store) ListProjectFolders(ctx context.Context, projectID string) ([]models.Folder, error) {
	folders, err := load[models.Folder](ensureContext(ctx), s, KeyFolders)
	if err != nil {
		return nil, err
	}

	out := make([]models.Folder, 0, len(folders))
	for _, folder := range folders {
		if folder.ProjectID == projectID {
			out = append(out, folder)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateFolder applies the patch. Moving to another parent appends the folder
// to the new scope and closes the gap left in the old one.
func (s *Store) UpdateFolder(ctx context.Context, id string, patch store.FolderPatch) (*models.Folder, error) {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyFolders)
	defer unlock()

	folders, err := load[models.Folder](ctx, s, KeyFolders)
	if err != nil {
		return nil, err
	}
	idx := indexOf(folders, func(f models.Folder) bool { return f.ID == id })
	if idx < 0 {
		return nil, apperrors.NotFoundf("folder", id)
	}

	folder := &folders[idx]
	if patch.Name != nil {
		folder.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.MovesParent(folder.ParentID) {
		target, _ := patch.TargetParent()
		oldParent := folder.ParentID
		folder.ParentID = normaliseParent(target)
		folder.SortOrder = store.NextSortOrder(folderOrders(folders, folder.ProjectID, folder.ParentID, folder.ID))
		compactFolders(folders, folder.ProjectID, oldParent)
	}
	if patch.SortOrder != nil {
		ranks := store.MoveWithin(folderSiblings(folders, folder.ProjectID, folder.ParentID), folder.ID, *patch.SortOrder)
		applyFolderRanks(folders, ranks)
	}
	folder.UpdatedAt = s.now()

	if err := save(ctx, s, KeyFolders, folders); err != nil {
		return nil, err
	}
	updated := folders[idx]
	return &updated, nil
}

// DeleteFolder removes the folder, all transitive descendants and every
// diagram stored in any of them.
func (s *Store) DeleteFolder(ctx context.Context, id string) (*store.DeleteResult, error) {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyFolders, KeyDiagrams, KeySessions)
	defer unlock()

	folders, err := load[models.Folder](ctx, s, KeyFolders)
	if err != nil {
		return nil, err
	}
	idx := indexOf(folders, func(f models.Folder) bool { return f.ID == id })
	if idx < 0 {
		return nil, apperrors.NotFoundf("folder", id)
	}
	target := folders[idx]

	projectFolders := make([]models.Folder, 0, len(folders))
	for _, folder := range folders {
		if folder.ProjectID == target.ProjectID {
			projectFolders = append(projectFolders, folder)
		}
	}
	removedIDs := append([]string{id}, store.DescendantIDs(projectFolders, id)...)
	removed := store.IDSet(removedIDs...)

	kept := folders[:0]
	for _, folder := range folders {
		if _, gone := removed[folder.ID]; !gone {
			kept = append(kept, folder)
		}
	}
	compactFolders(kept, target.ProjectID, target.ParentID)

	diagrams, err := load[models.Diagram](ctx, s, KeyDiagrams)
	if err != nil {
		return nil, err
	}
	result := &store.DeleteResult{FolderIDs: removedIDs}
	droppedDiagrams := map[string]struct{}{}
	keptDiagrams := diagrams[:0]
	for _, diagram := range diagrams {
		if diagram.FolderID != nil {
			if _, gone := removed[*diagram.FolderID]; gone {
				result.DiagramIDs = append(result.DiagramIDs, diagram.ID)
				droppedDiagrams[diagram.ID] = struct{}{}
				continue
			}
		}
		keptDiagrams = append(keptDiagrams, diagram)
	}

	if err := s.dropSessions(ctx, droppedDiagrams); err != nil {
		return nil, err
	}
	if err := save(ctx, s, KeyDiagrams, keptDiagrams); err != nil {
		return nil, err
	}
	if err := save(ctx, s, KeyFolders, kept); err != nil {
		return nil, err
	}
	return result, nil
}

// FolderStats counts the direct subfolders and active diagrams of a folder.
func (s *Store) FolderStats(ctx context.Context, id string) (*store.FolderStats, error) {
	ctx = ensureContext(ctx)
	folders, err := load[models.Folder](ctx, s, KeyFolders)
	if err != nil {
		return nil, err
	}
	if indexOf(folders, func(f models.Folder) bool { return f.ID == id }) < 0 {
		return nil, apperrors.NotFoundf("folder", id)
	}
	diagrams, err := load[models.Diagram](ctx, s, KeyDiagrams)
	if err != nil {
		return nil, err
	}

	stats := &store.FolderStats{}
	for _, folder := range folders {
		if folder.ParentID != nil && *folder.ParentID == id {
			stats.SubfolderCount++
		}
	}
	for _, diagram := range diagrams {
		if diagram.IsActive && diagram.FolderID != nil && *diagram.FolderID == id {
			stats.DiagramCount++
		}
	}
	stats.TotalItems = stats.SubfolderCount + stats.DiagramCount
	return stats, nil
}

// SetSortOrder writes a single rank for a folder or diagram.
func (s *Store) SetSortOrder(ctx context.Context, kind store.ItemKind, id string, order int) error {
	ctx = ensureContext(ctx)
	switch kind {
	case store.KindFolder:
		unlock := s.lock(KeyFolders)
		defer unlock()

		folders, err := load[models.Folder](ctx, s, KeyFolders)
		if err != nil {
			return err
		}
		idx := indexOf(folders, func(f models.Folder) bool { return f.ID == id })
		if idx < 0 {
			return apperrors.NotFoundf("folder", id)
		}
		folders[idx].SortOrder = order
		folders[idx].UpdatedAt = s.now()
		return save(ctx, s, KeyFolders, folders)
	case store.KindDiagram:
		unlock := s.lock(KeyDiagrams)
		defer unlock()

		diagrams, err := load[models.Diagram](ctx, s, KeyDiagrams)
		if err != nil {
			return err
		}
		idx := indexOf(diagrams, func(d models.Diagram) bool { return d.ID == id })
		if idx < 0 {
			return apperrors.NotFoundf("diagram", id)
		}
		diagrams[idx].SortOrder = order
		diagrams[idx].UpdatedAt = s.now()
		return save(ctx, s, KeyDiagrams, diagrams)
	default:
		return apperrors.NewValidation("unknown item type " + string(kind))
	}
}

// NormalizeSiblings rewrites every scope containing one of ids to 0..N-1.
func (s *Store) NormalizeSiblings(ctx context.Context, kind store.ItemKind, ids []string) error {
	ctx = ensureContext(ctx)
	wanted := store.IDSet(ids...)
	switch kind {
	case store.KindFolder:
		unlock := s.lock(KeyFolders)
		defer unlock()

		folders, err := load[models.Folder](ctx, s, KeyFolders)
		if err != nil {
			return err
		}
		scopes := map[string]models.Folder{}
		for _, folder := range folders {
			if _, ok := wanted[folder.ID]; ok {
				scopes[store.ScopeKey(folder.ProjectID, folder.ParentID)] = folder
			}
		}
		for _, folder := range scopes {
			compactFolders(folders, folder.ProjectID, folder.ParentID)
		}
		return save(ctx, s, KeyFolders, folders)
	case store.KindDiagram:
		unlock := s.lock(KeyDiagrams)
		defer unlock()

		diagrams, err := load[models.Diagram](ctx, s, KeyDiagrams)
		if err != nil {
			return err
		}
		scopes := map[string]models.Diagram{}
		for _, diagram := range diagrams {
			if _, ok := wanted[diagram.ID]; ok {
				scopes[store.ScopeKey(diagram.ProjectID, diagram.FolderID)] = diagram
			}
		}
		for _, diagram := range scopes {
			compactDiagrams(diagrams, diagram.ProjectID, diagram.FolderID)
		}
		return save(ctx, s, KeyDiagrams, diagrams)
	default:
		return apperrors.NewValidation("unknown item type " + string(kind))
	}
}

func folderSiblings(folders []models.Folder, projectID string, parentID *string) []store.Ranked {
	var out []store.Ranked
	for _, folder := range folders {
		if folder.ProjectID == projectID && store.SameParent(folder.ParentID, parentID) {
			out = append(out, store.Ranked{ID: folder.ID, SortOrder: folder.SortOrder})
		}
	}
	return out
}

func folderOrders(folders []models.Folder, projectID string, parentID *string, excludeID string) []int {
	var out []int
	for _, sibling := range folderSiblings(folders, projectID, parentID) {
		if sibling.ID != excludeID {
			out = append(out, sibling.SortOrder)
		}
	}
	return out
}

func compactFolders(folders []models.Folder, projectID string, parentID *string) {
	applyFolderRanks(folders, store.DenseRanks(folderSiblings(folders, projectID, parentID)))
}

func applyFolderRanks(folders []models.Folder, ranks map[string]int) {
	for i := range folders {
		if rank, ok := ranks[folders[i].ID]; ok {
			folders[i].SortOrder = rank
		}
	}
}

func normaliseParent(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
