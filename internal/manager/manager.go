// Package manager is the single entry point over the persistence layer. It
// composes the project, folder and diagram repositories, forwards their
// events through one bus and adds composite operations that span them.
package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/events"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/repository"
	"github.com/charlesng35/diagramhub/internal/store"
	"github.com/charlesng35/diagramhub/internal/store/remote"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
	"github.com/charlesng35/diagramhub/pkg/logger"
)

// DatabaseManager composes the repositories. Every repository method is
// available directly on the manager.
type DatabaseManager struct {
	*repository.ProjectRepository
	*repository.FolderRepository
	*repository.DiagramRepository

	conn *connection.Manager
	bus  *events.Bus
	now  func() time.Time
	log  *zap.Logger
}

// Option customises a DatabaseManager.
type Option func(*config)

type config struct {
	bus           *events.Bus
	now           func() time.Time
	sessionWindow time.Duration
	log           *zap.Logger
}

// WithBus shares an existing event bus instead of creating one.
func WithBus(bus *events.Bus) Option {
	return func(c *config) {
		if bus != nil {
			c.bus = bus
		}
	}
}

// WithClock overrides the clock used by repositories and exports.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSessionWindow overrides how long collaboration sessions stay live.
func WithSessionWindow(window time.Duration) Option {
	return func(c *config) {
		if window > 0 {
			c.sessionWindow = window
		}
	}
}

// WithLogger overrides the manager logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// New wires the repositories over the manager's backends. The remote store is
// built from the connection manager's handle when one is configured.
func New(conn *connection.Manager, opts ...Option) (*DatabaseManager, error) {
	if conn == nil {
		return nil, errors.New("database manager: connection manager is required")
	}
	cfg := config{
		now:           time.Now,
		sessionWindow: models.CollaborationSessionWindow,
		log:           logger.WithModule("manager"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.bus == nil {
		cfg.bus = events.NewBus()
	}

	var (
		remoteProjects store.ProjectStore
		remoteFolders  store.FolderStore
		remoteDiagrams store.DiagramStore
	)
	if db := conn.Remote(); db != nil {
		rs, err := remote.New(db, remote.WithNow(cfg.now))
		if err != nil {
			return nil, err
		}
		remoteProjects, remoteFolders, remoteDiagrams = rs, rs, rs
	}
	localStore := conn.Local()

	repoOpts := []repository.Option{
		repository.WithPublisher(cfg.bus),
		repository.WithClock(cfg.now),
		repository.WithSessionWindow(cfg.sessionWindow),
	}
	projects, err := repository.NewProjectRepository(conn, remoteProjects, localStore, repoOpts...)
	if err != nil {
		return nil, err
	}
	folders, err := repository.NewFolderRepository(conn, remoteFolders, localStore, repoOpts...)
	if err != nil {
		return nil, err
	}
	diagrams, err := repository.NewDiagramRepository(conn, remoteDiagrams, localStore, repoOpts...)
	if err != nil {
		return nil, err
	}

	return &DatabaseManager{
		ProjectRepository: projects,
		FolderRepository:  folders,
		DiagramRepository: diagrams,
		conn:              conn,
		bus:               cfg.bus,
		now:               cfg.now,
		log:               cfg.log,
	}, nil
}

// Connection exposes the underlying connection manager.
func (m *DatabaseManager) Connection() *connection.Manager {
	return m.conn
}

// Status reports the backend mode, last probe and fallback counters.
func (m *DatabaseManager) Status() connection.Status {
	return m.conn.Status()
}

// TestConnection probes the remote backend.
func (m *DatabaseManager) TestConnection(ctx context.Context) connection.Probe {
	return m.conn.TestConnection(ctx)
}

// Subscribe receives domain events of the given types, or all events when
// none are given. The returned function cancels the subscription.
func (m *DatabaseManager) Subscribe(types ...events.Type) (<-chan events.Event, func()) {
	return m.bus.Subscribe(events.DefaultBuffer, types...)
}

// Bus returns the event bus shared by every repository.
func (m *DatabaseManager) Bus() *events.Bus {
	return m.bus
}

// MoveFolder re-parents a folder after checking, over the project's full
// folder list, that the move keeps the tree acyclic.
func (m *DatabaseManager) MoveFolder(ctx context.Context, id string, newParentID *string) (*models.Folder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewValidation("folder id is required")
	}

	folder, err := m.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	folders, err := m.GetProjectFolders(ctx, folder.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := store.ValidateFolderHierarchy(folders, id, newParentID); err != nil {
		m.log.Debug("folder move rejected", zap.String("folder_id", id), zap.Error(err))
		return nil, err
	}
	return m.FolderRepository.MoveFolder(ctx, id, newParentID)
}
