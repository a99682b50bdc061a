// Package connection decides, per call, whether an operation is served by
// the remote backend or the local store, and keeps the operability status
// that decision produces.
package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	"github.com/charlesng35/diagramhub/internal/store/local"
	"github.com/charlesng35/diagramhub/internal/store/remote"
	"github.com/charlesng35/diagramhub/pkg/logger"
	"github.com/charlesng35/diagramhub/pkg/metrics"
)

// Mode selects which backend serves calls.
type Mode string

const (
	ModeDatabase Mode = "database"
	ModeLocal    Mode = "local"
)

// Path labels which backend actually served a call.
type Path string

const (
	PathRemote Path = "remote"
	PathLocal  Path = "local"
)

// DefaultCallTimeout bounds every remote call.
const DefaultCallTimeout = 5 * time.Second

// DefaultProbeTable is queried by TestConnection.
const DefaultProbeTable = "projects"

// Config controls mode resolution and remote call limits.
type Config struct {
	PreferLocal bool
	CallTimeout time.Duration
	ProbeTable  string
}

// Preferences is the persisted mode preference.
type Preferences struct {
	PreferLocal bool      `json:"prefer_local"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Option customises the Manager.
type Option func(*Manager)

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock overrides the clock used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithProfileStore overrides the remote profile store.
func WithProfileStore(profiles store.ProfileStore) Option {
	return func(m *Manager) {
		m.profiles = profiles
	}
}

// Manager resolves the serving backend and runs operations with fallback.
type Manager struct {
	remote   *gorm.DB
	local    *local.Store
	profiles store.ProfileStore
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	preferLocal atomic.Bool
	fallbacks   atomic.Int64

	mu           sync.RWMutex
	lastProbe    *Probe
	lastFallback *Fallback
}

// New constructs a Manager. remote may be nil when no backend is configured;
// every call is then served locally.
func New(remoteDB *gorm.DB, localStore *local.Store, cfg Config, opts ...Option) (*Manager, error) {
	if localStore == nil {
		return nil, errors.New("connection manager: local store is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if strings.TrimSpace(cfg.ProbeTable) == "" {
		cfg.ProbeTable = DefaultProbeTable
	}

	m := &Manager{
		remote: remoteDB,
		local:  localStore,
		cfg:    cfg,
		log:    logger.WithModule("connection"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.profiles == nil && remoteDB != nil {
		profiles, err := remote.New(remoteDB, remote.WithNow(m.now))
		if err != nil {
			return nil, err
		}
		m.profiles = profiles
	}
	m.preferLocal.Store(cfg.PreferLocal)
	return m, nil
}

// ResolveMode reports the backend calls are routed to. It performs no I/O.
func (m *Manager) ResolveMode() Mode {
	if m.remote == nil || m.preferLocal.Load() {
		return ModeLocal
	}
	return ModeDatabase
}

// Local exposes the local store.
func (m *Manager) Local() *local.Store {
	return m.local
}

// Remote exposes the remote handle; nil when none is configured.
func (m *Manager) Remote() *gorm.DB {
	return m.remote
}

// CallTimeout reports the per-call remote timeout.
func (m *Manager) CallTimeout() time.Duration {
	return m.cfg.CallTimeout
}

// UpsertProfile writes the profile remotely and falls back to a local
// replace-or-append keyed by id.
func (m *Manager) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	if profile == nil || strings.TrimSpace(profile.ID) == "" {
		return errValidation("profile id is required")
	}
	return Do(ctx, m, "profile.upsert",
		func(ctx context.Context) error {
			if m.profiles == nil {
				return errNoRemote
			}
			return m.profiles.UpsertProfile(ctx, profile)
		},
		func(ctx context.Context) error {
			return m.local.UpsertProfile(ctx, profile)
		},
	)
}

// EnableLocalMode routes every subsequent call to the local store and
// persists the preference.
func (m *Manager) EnableLocalMode(ctx context.Context) error {
	m.preferLocal.Store(true)
	m.log.Info("local mode enabled")
	return m.persistPreference(ctx, true)
}

// EnableDatabaseMode routes calls to the remote backend again, persists the
// preference and probes the backend so callers see its state immediately.
func (m *Manager) EnableDatabaseMode(ctx context.Context) (Probe, error) {
	m.preferLocal.Store(false)
	m.log.Info("database mode enabled")
	if err := m.persistPreference(ctx, false); err != nil {
		return Probe{}, err
	}
	return m.TestConnection(ctx), nil
}

// LoadPersistedPreference applies a preference saved by a previous
// EnableLocalMode/EnableDatabaseMode call. It reports whether one was found.
func (m *Manager) LoadPersistedPreference(ctx context.Context) (bool, error) {
	var prefs Preferences
	found, err := m.local.LoadValue(ctx, local.KeyPreferences, &prefs)
	if err != nil {
		return false, fmt.Errorf("connection manager: load preference: %w", err)
	}
	if found {
		m.preferLocal.Store(prefs.PreferLocal)
	}
	return found, nil
}

func (m *Manager) persistPreference(ctx context.Context, preferLocal bool) error {
	prefs := Preferences{PreferLocal: preferLocal, UpdatedAt: m.now()}
	if err := m.local.StoreValue(ensureContext(ctx), local.KeyPreferences, prefs); err != nil {
		return fmt.Errorf("connection manager: persist preference: %w", err)
	}
	return nil
}

func (m *Manager) recordFallback(operation string, err error) {
	m.fallbacks.Add(1)
	metrics.Fallbacks.WithLabelValues(operation).Inc()

	at := m.now()
	m.mu.Lock()
	m.lastFallback = &Fallback{Operation: operation, Error: err.Error(), At: at}
	m.mu.Unlock()

	m.log.Warn("remote operation failed, serving from local store",
		zap.String("operation", operation),
		zap.Error(err),
	)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
