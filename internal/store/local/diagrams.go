package local

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// CreateDiagram appends the diagram after its last active sibling.
func (s *Store) CreateDiagram(ctx context.Context, diagram *models.Diagram) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyDiagrams)
	defer unlock()

	diagrams, err := load[models.Diagram](ctx, s, KeyDiagrams)
	if err != nil {
		return err
	}

	diagram.FolderID = normaliseParent(diagram.FolderID)
	diagram.SortOrder = store.NextSortOrder(diagramOrders(diagrams, diagram.ProjectID, diagram.FolderID, ""))
	diagram.Version = 1
	diagram.IsActive = true
	diagram.EnsureID()
	diagram.Stamp(s.now())

	diagrams = append(diagrams, *diagram)
	return save(ctx, s, KeyDiagrams, diagrams)
}

// SeedDiagram stores a copy of a diagram read from another backend, unless a
// local record with the same id already exists.
func (s *Store) SeedDiagram(ctx context.Context, diagram *models.Diagram) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyDiagrams)
	defer unlock()

	diagrams, err := load[models.Diagram](ctx, s, KeyDiagrams)
	if err != nil {
		return err
	}
	if indexOf(diagrams, func(d models.Diagram) bool { return d.ID == diagram.ID }) >= 0 {
		return nil
	}
	diagrams = append(diagrams, *diagram)
	return save(ctx, s, KeyDiagrams, diagrams)
}

// GetDiagram returns an active diagram by id.
func (s *Store) GetDiagram(ctx context.Context, id string) (*models.Diagram, error) {
	diagrams, err := load[models.Diagram](ensureContext(ctx), s, KeyDiagrams)
	if err != nil {
		return nil, err
	}
	idx := indexOf(diagrams, func(d models.Diagram) bool { return d.ID == id && d.IsActive })
	if idx < 0 {
		return nil, apperrors.NotFoundf("diagram", id)
	}
	return &diagrams[idx], nil
}

// ListProjectDiagrams returns the active diagrams of a project ordered by sort_order.
func (s *Store) ListProjectDiagrams(ctx context.Context, projectID string) ([]models.Diagram, error) {
	diagrams, err := load[models.Diagram](ensureContext(ctx), s, KeyDiagrams)
	if err != nil {
		return nil, err
	}

	out := make([]models.Diagram, 0, len(diagrams))
	for _, diagram := range diagrams {
		if diagram.ProjectID == projectID && diagram.IsActive {
			out = append(out, diagram)
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

// UpdateDiagram merges the patch without any version precondition: the local
// path is the last resort and must not drop the write.
func (s *Store) UpdateDiagram(ctx context.Context, id string, patch store.DiagramPatch) (*models.Diagram, error) {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyDiagrams)
	defer unlock()

	diagrams, err := load[models.Diagram](ctx, s, KeyDiagrams)
	if err != nil {
		return nil, err
	}
	idx := indexOf(diagrams, func(d models.Diagram) bool { return d.ID == id })
	if idx < 0 {
		return nil, apperrors.NotFoundf("diagram", id)
	}

	diagram := &diagrams[idx]
	patch = patch.WithoutVersion()
	oldFolder := diagram.FolderID
	wasActive := diagram.IsActive
	moves := patch.MovesFolder(diagram.FolderID)
	order := patch.SortOrder
	patch.SortOrder = nil

	patch.Apply(diagram, s.now())

	switch {
	case moves:
		target, _ := patch.TargetFolder()
		diagram.FolderID = normaliseParent(target)
		if diagram.IsActive {
			diagram.SortOrder = store.NextSortOrder(diagramOrders(diagrams, diagram.ProjectID, diagram.FolderID, diagram.ID))
		}
		compactDiagrams(diagrams, diagram.ProjectID, oldFolder)
	case wasActive && !diagram.IsActive:
		compactDiagrams(diagrams, diagram.ProjectID, diagram.FolderID)
	case !wasActive && diagram.IsActive:
		diagram.SortOrder = store.NextSortOrder(diagramOrders(diagrams, diagram.ProjectID, diagram.FolderID, diagram.ID))
	}
	if order != nil && diagram.IsActive {
		ranks := store.MoveWithin(diagramSiblings(diagrams, diagram.ProjectID, diagram.FolderID), diagram.ID, *order)
		applyDiagramRanks(diagrams, ranks)
	}

	if err := save(ctx, s, KeyDiagrams, diagrams); err != nil {
		return nil, err
	}
	updated := diagrams[idx]
	return &updated, nil
}

// DeleteDiagram removes the diagram and its sessions, then closes the gap in its scope.
func (s *Store) DeleteDiagram(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyDiagrams, KeySessions)
	defer unlock()

	diagrams, err := load[models.Diagram](ctx, s, KeyDiagrams)
	if err != nil {
		return err
	}
	idx := indexOf(diagrams, func(d models.Diagram) bool { return d.ID == id })
	if idx < 0 {
		return apperrors.NotFoundf("diagram", id)
	}
	removed := diagrams[idx]
	diagrams = append(diagrams[:idx], diagrams[idx+1:]...)
	compactDiagrams(diagrams, removed.ProjectID, removed.FolderID)

	if err := s.dropSessions(ctx, store.IDSet(id)); err != nil {
		return err
	}
	return save(ctx, s, KeyDiagrams, diagrams)
}

// ListDiagramVersions always returns an empty history: the local path keeps
// only the current revision.
func (s *Store) ListDiagramVersions(ctx context.Context, diagramID string) ([]models.DiagramVersion, error) {
	if _, err := s.GetDiagram(ctx, diagramID); err != nil {
		return nil, err
	}
	return []models.DiagramVersion{}, nil
}

// UpsertCollaborationSession replaces the session for (diagram, user) or appends it.
func (s *Store) UpsertCollaborationSession(ctx context.Context, session *models.CollaborationSession) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeySessions)
	defer unlock()

	sessions, err := load[models.CollaborationSession](ctx, s, KeySessions)
	if err != nil {
		return err
	}
	if session.LastActivity.IsZero() {
		session.LastActivity = s.now()
	}

	idx := indexOf(sessions, func(c models.CollaborationSession) bool {
		return c.DiagramID == session.DiagramID && c.UserID == session.UserID
	})
	if idx >= 0 {
		session.ID = sessions[idx].ID
		sessions[idx] = *session
	} else {
		if session.ID == "" {
			session.ID = uuid.NewString()
		}
		sessions = append(sessions, *session)
	}
	return save(ctx, s, KeySessions, sessions)
}

// ListCollaborationSessions returns active sessions on the diagram whose last
// activity is after activeSince, most recent first.
func (s *Store) ListCollaborationSessions(ctx context.Context, diagramID string, activeSince time.Time) ([]models.CollaborationSession, error) {
	sessions, err := load[models.CollaborationSession](ensureContext(ctx), s, KeySessions)
	if err != nil {
		return nil, err
	}

	out := make([]models.CollaborationSession, 0, len(sessions))
	for _, session := range sessions {
		if session.DiagramID == diagramID && session.ActiveSince(activeSince) {
			out = append(out, session)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// EndCollaborationSession marks the user's session on the diagram inactive.
// Ending a session that does not exist is a no-op.
func (s *Store) EndCollaborationSession(ctx context.Context, diagramID, userID string) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeySessions)
	defer unlock()

	sessions, err := load[models.CollaborationSession](ctx, s, KeySessions)
	if err != nil {
		return err
	}
	idx := indexOf(sessions, func(c models.CollaborationSession) bool {
		return c.DiagramID == diagramID && c.UserID == userID
	})
	if idx < 0 || !sessions[idx].IsActive {
		return nil
	}
	sessions[idx].IsActive = false
	sessions[idx].LastActivity = s.now()
	return save(ctx, s, KeySessions, sessions)
}

// ExpireCollaborationSessions deactivates sessions with no activity after before.
func (s *Store) ExpireCollaborationSessions(ctx context.Context, before time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeySessions)
	defer unlock()

	sessions, err := load[models.CollaborationSession](ctx, s, KeySessions)
	if err != nil {
		return 0, err
	}
	var expired int64
	for i := range sessions {
		if sessions[i].IsActive && !sessions[i].ActiveSince(before) {
			sessions[i].IsActive = false
			expired++
		}
	}
	if expired == 0 {
		return 0, nil
	}
	return expired, save(ctx, s, KeySessions, sessions)
}

// CreateActivityLog appends an entry and keeps only the newest entries up to
// the configured limit.
func (s *Store) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyActivity)
	defer unlock()

	entries, err := load[models.ActivityLog](ctx, s, KeyActivity)
	if err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	entries = append(entries, *entry)
	if over := len(entries) - s.activityLimit; over > 0 {
		entries = entries[over:]
	}
	return save(ctx, s, KeyActivity, entries)
}

// ListActivityLogs returns the project's entries newest first. A non-positive
// limit returns everything retained.
func (s *Store) ListActivityLogs(ctx context.Context, projectID string, limit int) ([]models.ActivityLog, error) {
	entries, err := load[models.ActivityLog](ensureContext(ctx), s, KeyActivity)
	if err != nil {
		return nil, err
	}

	out := make([]models.ActivityLog, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ProjectID == projectID {
			out = append(out, entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneActivityLogs drops entries created before the cutoff.
func (s *Store) PruneActivityLogs(ctx context.Context, before time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyActivity)
	defer unlock()

	entries, err := load[models.ActivityLog](ctx, s, KeyActivity)
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	for _, entry := range entries {
		if !entry.CreatedAt.Before(before) {
			kept = append(kept, entry)
		}
	}
	pruned := int64(len(entries) - len(kept))
	if pruned == 0 {
		return 0, nil
	}
	return pruned, save(ctx, s, KeyActivity, kept)
}

// dropSessions removes the sessions of the given diagrams. Callers hold the
// sessions lock.
func (s *Store) dropSessions(ctx context.Context, diagramIDs map[string]struct{}) error {
	if len(diagramIDs) == 0 {
		return nil
	}
	sessions, err := load[models.CollaborationSession](ctx, s, KeySessions)
	if err != nil {
		return err
	}
	kept := sessions[:0]
	for _, session := range sessions {
		if _, gone := diagramIDs[session.DiagramID]; !gone {
			kept = append(kept, session)
		}
	}
	if len(kept) == len(sessions) {
		return nil
	}
	return save(ctx, s, KeySessions, kept)
}

func diagramSiblings(diagrams []models.Diagram, projectID string, folderID *string) []store.Ranked {
	var out []store.Ranked
	for _, diagram := range diagrams {
		if diagram.IsActive && diagram.ProjectID == projectID && store.SameParent(diagram.FolderID, folderID) {
			out = append(out, store.Ranked{ID: diagram.ID, SortOrder: diagram.SortOrder})
		}
	}
	return out
}

func diagramOrders(diagrams []models.Diagram, projectID string, folderID *string, excludeID string) []int {
	var out []int
	for _, sibling := range diagramSiblings(diagrams, projectID, folderID) {
		if sibling.ID != excludeID {
			out = append(out, sibling.SortOrder)
		}
	}
	return out
}

func compactDiagrams(diagrams []models.Diagram, projectID string, folderID *string) {
	applyDiagramRanks(diagrams, store.DenseRanks(diagramSiblings(diagrams, projectID, folderID)))
}

func applyDiagramRanks(diagrams []models.Diagram, ranks map[string]int) {
	for i := range diagrams {
		if rank, ok := ranks[diagrams[i].ID]; ok {
			diagrams[i].SortOrder = rank
		}
	}
}
