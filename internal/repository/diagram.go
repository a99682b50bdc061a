package repository

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/events"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
	"github.com/charlesng35/diagramhub/pkg/metrics"
)

// DefaultActivityLimit caps GetProjectActivity when no limit is given.
const DefaultActivityLimit = 50

// DiagramRepository manages diagrams, collaboration sessions and activity logs.
type DiagramRepository struct {
	conn   *connection.Manager
	remote store.DiagramStore
	local  store.DiagramStore
	options
}

// NewDiagramRepository constructs a DiagramRepository.
func NewDiagramRepository(conn *connection.Manager, remote, local store.DiagramStore, opts ...Option) (*DiagramRepository, error) {
	if err := checkBackends(conn, remote != nil, local != nil); err != nil {
		return nil, err
	}
	o := buildOptions("diagrams", opts)
	if o.sessionWindow <= 0 {
		o.sessionWindow = models.CollaborationSessionWindow
	}
	return &DiagramRepository{
		conn:    conn,
		remote:  remote,
		local:   local,
		options: o,
	}, nil
}

// CreateDiagram appends a diagram at the end of its sibling scope with version 1.
func (r *DiagramRepository) CreateDiagram(ctx context.Context, input CreateDiagramInput) (*models.Diagram, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	create := func(target store.DiagramStore) connection.Operation[*models.Diagram] {
		return func(ctx context.Context) (*models.Diagram, error) {
			diagram := &models.Diagram{
				ProjectID:   input.ProjectID,
				FolderID:    input.FolderID,
				Name:        strings.TrimSpace(input.Name),
				Description: input.Description,
				Content:     input.Content,
				CreatedBy:   input.CreatedBy,
			}
			if err := target.CreateDiagram(ctx, diagram); err != nil {
				return nil, err
			}
			return diagram, nil
		}
	}

	diagram, err := connection.Run(ctx, r.conn, "diagram.create", create(r.remote), create(r.local))
	if err != nil {
		return nil, err
	}
	r.publish(events.DiagramCreated, diagram.ProjectID, diagram.ID, diagram, nil)
	return diagram, nil
}

// GetDiagram returns an active diagram by id.
func (r *DiagramRepository) GetDiagram(ctx context.Context, id string) (*models.Diagram, error) {
	if err := requireID("diagram", id); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "diagram.get",
		func(ctx context.Context) (*models.Diagram, error) {
			diagram, err := r.remote.GetDiagram(ctx, id)
			if err != nil {
				return nil, err
			}
			return r.preferNewerLocal(ctx, diagram), nil
		},
		func(ctx context.Context) (*models.Diagram, error) { return r.local.GetDiagram(ctx, id) },
	)
}

// GetProjectDiagrams returns the active diagrams of a project ordered by sort_order.
func (r *DiagramRepository) GetProjectDiagrams(ctx context.Context, projectID string) ([]models.Diagram, error) {
	if err := requireID("project", projectID); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "diagram.list",
		func(ctx context.Context) ([]models.Diagram, error) {
			diagrams, err := r.remote.ListProjectDiagrams(ctx, projectID)
			if err != nil {
				return nil, err
			}
			return r.mergeNewerLocal(ctx, projectID, diagrams), nil
		},
		func(ctx context.Context) ([]models.Diagram, error) { return r.local.ListProjectDiagrams(ctx, projectID) },
	)
}

// preferNewerLocal returns the local copy of the diagram when a fallback write
// left it ahead of the remote row.
func (r *DiagramRepository) preferNewerLocal(ctx context.Context, remoteCopy *models.Diagram) *models.Diagram {
	localCopy, err := r.local.GetDiagram(ctx, remoteCopy.ID)
	if err != nil || !localIsNewer(remoteCopy, localCopy) {
		return remoteCopy
	}
	r.log.Debug("serving local diagram ahead of remote",
		zap.String("diagram_id", remoteCopy.ID),
		zap.Int("remote_version", remoteCopy.Version),
		zap.Int("local_version", localCopy.Version),
	)
	return localCopy
}

// mergeNewerLocal swaps in local copies that are ahead of their remote rows.
// Diagrams only the local store knows about are left out.
func (r *DiagramRepository) mergeNewerLocal(ctx context.Context, projectID string, remoteList []models.Diagram) []models.Diagram {
	localList, err := r.local.ListProjectDiagrams(ctx, projectID)
	if err != nil || len(localList) == 0 {
		return remoteList
	}
	byID := make(map[string]*models.Diagram, len(localList))
	for i := range localList {
		byID[localList[i].ID] = &localList[i]
	}
	for i := range remoteList {
		if localCopy, ok := byID[remoteList[i].ID]; ok && localIsNewer(&remoteList[i], localCopy) {
			remoteList[i] = *localCopy
		}
	}
	return remoteList
}

func localIsNewer(remoteCopy, localCopy *models.Diagram) bool {
	if localCopy.Version != remoteCopy.Version {
		return localCopy.Version > remoteCopy.Version
	}
	return localCopy.UpdatedAt.After(remoteCopy.UpdatedAt)
}

// UpdateDiagram applies the patch and bumps the version. Caller-supplied
// versions are ignored. A remote write conflict is retried once; if the retry
// fails too the local store merges the patch unconditionally.
func (r *DiagramRepository) UpdateDiagram(ctx context.Context, id string, patch store.DiagramPatch) (*models.Diagram, error) {
	if err := requireID("diagram", id); err != nil {
		return nil, err
	}
	patch = patch.WithoutVersion()
	if patch.IsEmpty() {
		return nil, apperrors.NewValidation("diagram update has no fields")
	}
	if err := validate(patch); err != nil {
		return nil, err
	}

	diagram, err := connection.Run(ctx, r.conn, "diagram.update",
		func(ctx context.Context) (*models.Diagram, error) { return r.updateRemote(ctx, id, patch) },
		func(ctx context.Context) (*models.Diagram, error) { return r.updateLocal(ctx, id, patch) },
	)
	if err != nil {
		return nil, err
	}
	r.publish(events.DiagramUpdated, diagram.ProjectID, diagram.ID, diagram, patch.Delta())
	return diagram, nil
}

func (r *DiagramRepository) updateRemote(ctx context.Context, id string, patch store.DiagramPatch) (*models.Diagram, error) {
	diagram, err := r.remote.UpdateDiagram(ctx, id, patch)
	if err == nil || !apperrors.IsConflict(err) {
		return diagram, err
	}

	r.log.Info("diagram update conflicted, retrying", zap.String("diagram_id", id), zap.Error(err))
	diagram, err = r.remote.UpdateDiagram(ctx, id, patch.WithoutVersion())
	if err != nil {
		metrics.ConflictRetries.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.ConflictRetries.WithLabelValues("recovered").Inc()
	return diagram, nil
}

// updateLocal merges the patch locally. A diagram the local store has never
// seen is first copied from the remote read so the write is not dropped.
func (r *DiagramRepository) updateLocal(ctx context.Context, id string, patch store.DiagramPatch) (*models.Diagram, error) {
	diagram, err := r.local.UpdateDiagram(ctx, id, patch)
	if err == nil || !apperrors.IsNotFound(err) || r.conn.ResolveMode() == connection.ModeLocal {
		return diagram, err
	}
	seeder, ok := r.local.(store.Seeder)
	if !ok {
		return nil, err
	}

	readCtx, cancel := context.WithTimeout(ctx, r.conn.CallTimeout())
	defer cancel()
	current, readErr := r.remote.GetDiagram(readCtx, id)
	if readErr != nil {
		return nil, err
	}
	if seedErr := seeder.SeedDiagram(ctx, current); seedErr != nil {
		return nil, seedErr
	}
	r.log.Info("seeded local diagram from remote copy", zap.String("diagram_id", id))
	return r.local.UpdateDiagram(ctx, id, patch)
}

// CopyDiagram reads the source and creates a new diagram next to it with the
// same content under a new name.
func (r *DiagramRepository) CopyDiagram(ctx context.Context, id, newName, createdBy string) (*models.Diagram, error) {
	source, err := r.GetDiagram(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.CreateDiagram(ctx, CreateDiagramInput{
		ProjectID:   source.ProjectID,
		FolderID:    source.FolderID,
		Name:        newName,
		Description: source.Description,
		Content:     source.Content,
		CreatedBy:   createdBy,
	})
}

// MoveDiagram places the diagram at the end of another folder; a nil folder
// moves it to the project root.
func (r *DiagramRepository) MoveDiagram(ctx context.Context, id string, folderID *string) (*models.Diagram, error) {
	patch := store.DiagramPatch{MoveToRoot: true}
	if folderID != nil && strings.TrimSpace(*folderID) != "" {
		patch = store.DiagramPatch{FolderID: folderID}
	}
	return r.UpdateDiagram(ctx, id, patch)
}

// DeleteDiagram removes the diagram permanently and compacts its scope.
func (r *DiagramRepository) DeleteDiagram(ctx context.Context, id string) error {
	if err := requireID("diagram", id); err != nil {
		return err
	}

	var projectID string
	remove := func(target store.DiagramStore) func(context.Context) error {
		return func(ctx context.Context) error {
			if diagram, err := target.GetDiagram(ctx, id); err == nil {
				projectID = diagram.ProjectID
			}
			return target.DeleteDiagram(ctx, id)
		}
	}

	if err := connection.Do(ctx, r.conn, "diagram.delete", remove(r.remote), remove(r.local)); err != nil {
		return err
	}
	r.publish(events.DiagramDeleted, projectID, id, nil, nil)
	return nil
}

// UpdateDiagramOrder re-stamps diagram ranks and compacts the touched scopes.
func (r *DiagramRepository) UpdateDiagramOrder(ctx context.Context, orders []store.Ranked) (*connection.BatchResult, error) {
	var remote store.SortOrderWriter
	if r.remote != nil {
		remote = r.remote
	}
	return reorder(ctx, r.conn, remote, r.local, orderItems(store.KindDiagram, orders))
}

// GetDiagramVersions returns the diagram's history, newest first. The local
// store keeps no history and returns an empty list.
func (r *DiagramRepository) GetDiagramVersions(ctx context.Context, id string) ([]models.DiagramVersion, error) {
	if err := requireID("diagram", id); err != nil {
		return nil, err
	}
	return connection.Run(ctx, r.conn, "diagram.versions",
		func(ctx context.Context) ([]models.DiagramVersion, error) { return r.remote.ListDiagramVersions(ctx, id) },
		func(ctx context.Context) ([]models.DiagramVersion, error) { return r.local.ListDiagramVersions(ctx, id) },
	)
}

// UpsertCollaborationSession records the user as active on the diagram now.
func (r *DiagramRepository) UpsertCollaborationSession(ctx context.Context, input CollaborationSessionInput) (*models.CollaborationSession, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	now := r.now()
	upsert := func(target store.DiagramStore) connection.Operation[*models.CollaborationSession] {
		return func(ctx context.Context) (*models.CollaborationSession, error) {
			session := &models.CollaborationSession{
				DiagramID:    input.DiagramID,
				UserID:       input.UserID,
				SessionData:  input.SessionData,
				LastActivity: now,
				IsActive:     true,
			}
			if err := target.UpsertCollaborationSession(ctx, session); err != nil {
				return nil, err
			}
			return session, nil
		}
	}
	return connection.Run(ctx, r.conn, "session.upsert", upsert(r.remote), upsert(r.local))
}

// GetActiveCollaborationSessions returns sessions active within the session
// window, most recent first.
func (r *DiagramRepository) GetActiveCollaborationSessions(ctx context.Context, diagramID string) ([]models.CollaborationSession, error) {
	if err := requireID("diagram", diagramID); err != nil {
		return nil, err
	}
	since := r.now().Add(-r.sessionWindow)
	return connection.Run(ctx, r.conn, "session.list_active",
		func(ctx context.Context) ([]models.CollaborationSession, error) {
			return r.remote.ListCollaborationSessions(ctx, diagramID, since)
		},
		func(ctx context.Context) ([]models.CollaborationSession, error) {
			return r.local.ListCollaborationSessions(ctx, diagramID, since)
		},
	)
}

// EndCollaborationSession marks the user's session on the diagram inactive.
func (r *DiagramRepository) EndCollaborationSession(ctx context.Context, diagramID, userID string) error {
	if err := requireID("diagram", diagramID); err != nil {
		return err
	}
	if err := requireID("user", userID); err != nil {
		return err
	}
	return connection.Do(ctx, r.conn, "session.end",
		func(ctx context.Context) error { return r.remote.EndCollaborationSession(ctx, diagramID, userID) },
		func(ctx context.Context) error { return r.local.EndCollaborationSession(ctx, diagramID, userID) },
	)
}

// CreateActivityLog appends an activity entry.
func (r *DiagramRepository) CreateActivityLog(ctx context.Context, input ActivityInput) (*models.ActivityLog, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	now := r.now()
	create := func(target store.DiagramStore) connection.Operation[*models.ActivityLog] {
		return func(ctx context.Context) (*models.ActivityLog, error) {
			entry := &models.ActivityLog{
				ProjectID:  input.ProjectID,
				DiagramID:  input.DiagramID,
				UserID:     input.UserID,
				Action:     strings.TrimSpace(input.Action),
				EntityType: input.EntityType,
				EntityID:   input.EntityID,
				Details:    input.Details,
				CreatedAt:  now,
			}
			if err := target.CreateActivityLog(ctx, entry); err != nil {
				return nil, err
			}
			return entry, nil
		}
	}
	return connection.Run(ctx, r.conn, "activity.create", create(r.remote), create(r.local))
}

// GetProjectActivity returns the newest activity entries of a project.
func (r *DiagramRepository) GetProjectActivity(ctx context.Context, projectID string, limit int) ([]models.ActivityLog, error) {
	if err := requireID("project", projectID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	return connection.Run(ctx, r.conn, "activity.list",
		func(ctx context.Context) ([]models.ActivityLog, error) {
			return r.remote.ListActivityLogs(ctx, projectID, limit)
		},
		func(ctx context.Context) ([]models.ActivityLog, error) {
			return r.local.ListActivityLogs(ctx, projectID, limit)
		},
	)
}
