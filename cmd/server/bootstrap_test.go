package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/diagramhub/internal/app"
	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/repository"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func sqliteConfig(t *testing.T, remoteEnabled bool) *app.Config {
	t.Helper()
	data := t.TempDir()
	dir := writeConfig(t, fmt.Sprintf(`
remote:
  enabled: %t
  driver: sqlite
  path: %s
  auto_migrate: true
local:
  path: %s
`, remoteEnabled, filepath.Join(data, "remote.sqlite"), filepath.Join(data, "local.sqlite")))

	cfg, err := loadApplicationConfig(dir)
	require.NoError(t, err)
	return cfg
}

func TestBootstrapRuntimeWiresBothStores(t *testing.T) {
	cfg := sqliteConfig(t, true)
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.RemoteDB)
	require.NotNil(t, stack.Cleaner)
	require.Equal(t, connection.ModeDatabase, stack.Conn.ResolveMode())
	require.NotNil(t, stack.Conn.Status().LastProbe)
	require.True(t, stack.Conn.Status().LastProbe.Connected)

	project, err := stack.Manager.CreateProject(context.Background(), repository.CreateProjectInput{Name: "Boot", OwnerID: "u1"})
	require.NoError(t, err)
	require.Zero(t, stack.Conn.Status().Fallbacks)

	var count int64
	require.NoError(t, stack.RemoteDB.Table("projects").Where("id = ?", project.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.NotNil(t, stack.RemoteStore)
	require.NoError(t, stack.Conn.UpsertProfile(context.Background(), &models.Profile{ID: "u1", Email: "u1@example.com"}))
	require.NoError(t, stack.RemoteDB.Table("profiles").Where("id = ?", "u1").Count(&count).Error)
	require.EqualValues(t, 1, count)

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBootstrapRuntimeWithoutRemote(t *testing.T) {
	cfg := sqliteConfig(t, false)
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.Nil(t, stack.RemoteDB)
	require.Nil(t, stack.RemoteStore)
	require.False(t, stack.Conn.Status().Remote)

	project, err := stack.Manager.CreateProject(context.Background(), repository.CreateProjectInput{Name: "Offline", OwnerID: "u1"})
	require.NoError(t, err)

	stored, err := stack.LocalStore.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, "Offline", stored.Name)
}

func TestBootstrapRuntimeAppliesPersistedPreference(t *testing.T) {
	cfg := sqliteConfig(t, true)
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	require.NoError(t, stack.Conn.EnableLocalMode(context.Background()))
	stack.Shutdown(context.Background(), log)

	stack, err = bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })
	require.Equal(t, connection.ModeLocal, stack.Conn.ResolveMode())
}

func TestBootstrapRuntimeFailsOnBadSchedule(t *testing.T) {
	cfg := sqliteConfig(t, false)
	cfg.Maintenance.ProbeSchedule = "not a schedule"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "start maintenance jobs")
}

func TestLoadApplicationConfig(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")

	dir := writeConfig(t, "server:\n  port: 9191\n")
	cfg, err := loadApplicationConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)
}
