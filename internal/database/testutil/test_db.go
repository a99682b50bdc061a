package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/diagramhub/internal/database"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	migrateRemote bool
	migrateLocal  bool
}

// WithRemoteSchema applies the remote tables after opening the database.
func WithRemoteSchema() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.migrateRemote = true
	}
}

// WithLocalSchema applies the local key/value table after opening the database.
func WithLocalSchema() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.migrateLocal = true
	}
}

// MustOpenTestDB opens a private in-memory SQLite database for tests. Each call
// gets its own shared-cache name, so a remote and a local handle opened in the
// same test never see each other's tables. The connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)

	if cfg.migrateRemote {
		require.NoError(t, database.MigrateRemote(db))
	}
	if cfg.migrateLocal {
		require.NoError(t, database.MigrateLocal(db))
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive and serialises
	// writers; shared-cache SQLite reports table locks instead of waiting.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
