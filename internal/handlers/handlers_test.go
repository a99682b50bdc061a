package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/database/testutil"
	"github.com/charlesng35/diagramhub/internal/manager"
	"github.com/charlesng35/diagramhub/internal/monitoring"
	"github.com/charlesng35/diagramhub/internal/store/local"
	"github.com/charlesng35/diagramhub/pkg/response"
)

func newTestManager(t *testing.T, migrated bool) *manager.DatabaseManager {
	t.Helper()

	var remoteOpts []testutil.TestDBOption
	if migrated {
		remoteOpts = append(remoteOpts, testutil.WithRemoteSchema())
	}
	kv, err := local.NewDatabaseKV(testutil.MustOpenTestDB(t, testutil.WithLocalSchema()))
	require.NoError(t, err)
	store, err := local.New(kv)
	require.NoError(t, err)

	conn, err := connection.New(testutil.MustOpenTestDB(t, remoteOpts...), store, connection.Config{}, connection.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	db, err := manager.New(conn, manager.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	return db
}

func newStatusRouter(t *testing.T, migrated bool) (*gin.Engine, *manager.DatabaseManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestManager(t, migrated)
	h := NewStatusHandler(db, monitoring.NewModule(nil), WithMetricsEndpoint(true, "/internal/metrics"))
	require.NotNil(t, h)

	r := gin.New()
	r.GET("/api/status", h.Status)
	r.POST("/api/status/probe", h.Probe)
	r.PUT("/api/status/mode", h.SetMode)
	return r, db
}

func serve(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, response.Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var payload response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &payload)
	return w, payload
}

func TestNewStatusHandlerRequiresManager(t *testing.T) {
	require.Nil(t, NewStatusHandler(nil, nil))
}

func TestStatusReportsConnection(t *testing.T) {
	r, _ := newStatusRouter(t, true)

	w, payload := serve(r, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, payload.Success)

	data := payload.Data.(map[string]any)
	conn := data["connection"].(map[string]any)
	require.Equal(t, string(connection.ModeDatabase), conn["mode"])
	require.Equal(t, true, conn["remote_configured"])
	require.EqualValues(t, 0, conn["fallbacks"])

	prom := data["prometheus"].(map[string]any)
	require.Equal(t, "/internal/metrics", prom["endpoint"])
}

func TestProbeReportsSchemaMissing(t *testing.T) {
	r, db := newStatusRouter(t, false)

	w, payload := serve(r, http.MethodPost, "/api/status/probe", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := payload.Data.(map[string]any)
	require.Equal(t, false, data["connected"])
	require.Equal(t, string(connection.ProbeSchemaMissing), data["state"])

	require.NotNil(t, db.Status().LastProbe)
}

func TestProbeConnected(t *testing.T) {
	r, _ := newStatusRouter(t, true)

	_, payload := serve(r, http.MethodPost, "/api/status/probe", "")
	data := payload.Data.(map[string]any)
	require.Equal(t, true, data["connected"])
	require.Equal(t, string(connection.ProbeConnected), data["state"])
}

func TestSetModeSwitchesAndPersists(t *testing.T) {
	r, db := newStatusRouter(t, true)

	w, payload := serve(r, http.MethodPut, "/api/status/mode", `{"mode":"local"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, string(connection.ModeLocal), payload.Data.(map[string]any)["mode"])
	require.Equal(t, connection.ModeLocal, db.Status().Mode)

	found, err := db.Connection().LoadPersistedPreference(context.Background())
	require.NoError(t, err)
	require.True(t, found)

	w, payload = serve(r, http.MethodPut, "/api/status/mode", `{"mode":"database"}`)
	require.Equal(t, http.StatusOK, w.Code)
	data := payload.Data.(map[string]any)
	require.Equal(t, string(connection.ModeDatabase), data["mode"])
	require.NotNil(t, data["probe"])
}

func TestSetModeRejectsInvalidPayload(t *testing.T) {
	r, db := newStatusRouter(t, true)

	w, payload := serve(r, http.MethodPut, "/api/status/mode", `{"mode":"offline"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "VALIDATION_FAILED", payload.Error.Code)
	require.Contains(t, payload.Error.Message, "must be one of: local, database")

	w, payload = serve(r, http.MethodPut, "/api/status/mode", `{"mode":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "BAD_REQUEST", payload.Error.Code)

	require.Equal(t, connection.ModeDatabase, db.Status().Mode)
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	require.Nil(t, NewHealthHandler(nil))

	health := monitoring.NewHealthManager()
	health.RegisterLiveness(monitoring.NewCheck("process", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	health.RegisterReadiness(monitoring.NewCheck("local", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "closed"}
	}))

	h := NewHealthHandler(health)
	r := gin.New()
	r.GET("/health/live", h.Live)
	r.GET("/health/ready", h.Ready)
	r.GET("/health/off", HealthDisabled)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"status":"down"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/off", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
