package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/diagramhub/internal/api"
	"github.com/charlesng35/diagramhub/internal/app"
	"github.com/charlesng35/diagramhub/internal/app/maintenance"
	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/database"
	"github.com/charlesng35/diagramhub/internal/manager"
	"github.com/charlesng35/diagramhub/internal/monitoring"
	"github.com/charlesng35/diagramhub/internal/monitoring/checks"
	"github.com/charlesng35/diagramhub/internal/store/local"
	"github.com/charlesng35/diagramhub/internal/store/remote"
	"github.com/charlesng35/diagramhub/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	RemoteDB    *gorm.DB
	RemoteStore *remote.Store
	LocalDB     *gorm.DB
	LocalStore  *local.Store
	Conn        *connection.Manager
	Manager     *manager.DatabaseManager
	Monitoring  *monitoring.Module
	Cleaner     *maintenance.Cleaner
	Router      *gin.Engine
}

// bootstrapRuntime opens both stores, wires the database manager, background
// jobs and monitoring, and builds the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.RemoteDB = initialiseRemote(cfg, log)
	connOpts := []connection.Option{connection.WithLogger(logger.WithModule("connection"))}
	if stack.RemoteDB != nil {
		stack.RemoteStore, err = remote.New(stack.RemoteDB)
		if err != nil {
			return nil, fmt.Errorf("initialise remote store: %w", err)
		}
		connOpts = append(connOpts, connection.WithProfileStore(stack.RemoteStore))
	}

	stack.LocalDB, err = initialiseLocal(cfg)
	if err != nil {
		return nil, err
	}

	kv, err := local.NewDatabaseKV(stack.LocalDB)
	if err != nil {
		return nil, fmt.Errorf("initialise local key/value store: %w", err)
	}
	stack.LocalStore, err = local.New(kv,
		local.WithKeyPrefix(cfg.Local.KeyPrefix),
		local.WithActivityLogLimit(cfg.Collaboration.ActivityLogLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise local store: %w", err)
	}

	stack.Conn, err = connection.New(stack.RemoteDB, stack.LocalStore, cfg.ConnectionConfig(), connOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise connection manager: %w", err)
	}

	found, err := stack.Conn.LoadPersistedPreference(ctx)
	if err != nil {
		log.Warn("ignoring persisted mode preference", zap.Error(err))
	} else if found {
		log.Info("persisted mode preference applied", zap.String("mode", string(stack.Conn.ResolveMode())))
	}

	if stack.Conn.ResolveMode() == connection.ModeDatabase {
		probe := stack.Conn.TestConnection(ctx)
		if !probe.Connected {
			log.Warn("remote backend not ready; operations will fall back to the local store",
				zap.String("state", string(probe.State)),
				zap.String("error", probe.Error),
			)
		}
	}

	stack.Manager, err = manager.New(stack.Conn,
		manager.WithSessionWindow(cfg.Collaboration.SessionWindow),
		manager.WithLogger(logger.WithModule("manager")),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise database manager: %w", err)
	}

	stack.Monitoring = initialiseMonitoring(cfg, stack)
	monitoring.SetModule(stack.Monitoring)

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Conn, maintenanceTargets(stack),
			maintenance.WithLogger(logger.WithModule("maintenance")),
			maintenance.WithSessionWindow(cfg.Collaboration.SessionWindow),
			maintenance.WithActivityRetentionDays(cfg.Maintenance.ActivityRetentionDays),
			maintenance.WithJobTimeout(cfg.Maintenance.JobTimeout),
			maintenance.WithProbeSchedule(cfg.Maintenance.ProbeSchedule),
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithActivitySchedule(cfg.Maintenance.ActivitySchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(cfg, stack.Manager, stack.Monitoring)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	closeDatabase(s.RemoteDB, "remote", log)
	closeDatabase(s.LocalDB, "local", log)
}

// initialiseRemote opens the remote backend. Failures are logged and leave the
// server running on the local store alone.
func initialiseRemote(cfg *app.Config, log *zap.Logger) *gorm.DB {
	if !cfg.Remote.Enabled {
		log.Info("remote backend disabled; serving from the local store")
		return nil
	}

	dbCfg := cfg.Remote.DatabaseConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		log.Warn("remote backend unavailable; serving from the local store", zap.Error(err))
		return nil
	}

	if cfg.Remote.AutoMigrate {
		if err := database.MigrateRemote(db); err != nil {
			log.Warn("remote schema migration failed", zap.Error(err))
		}
	}

	logger.WithModule("database").Info("remote backend connected", zap.String("driver", dbCfg.Driver))
	return db
}

func initialiseLocal(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.Local.DatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := database.MigrateLocal(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return db, nil
}

func initialiseMonitoring(cfg *app.Config, stack *runtimeStack) *monitoring.Module {
	module := monitoring.NewModule(nil)
	health := module.Health()

	health.RegisterLiveness(checks.Local(stack.LocalStore, cfg.Monitoring.Health.Timeout))

	health.RegisterReadiness(checks.Remote(stack.Conn))
	health.RegisterReadiness(checks.Local(stack.LocalStore, cfg.Monitoring.Health.Timeout))
	if cfg.Maintenance.Enabled {
		health.RegisterReadiness(checks.Maintenance(cfg.Maintenance.MaxJobAge, cfg.Maintenance.FailureTolerance))
	}
	return module
}

func maintenanceTargets(stack *runtimeStack) []maintenance.Target {
	targets := []maintenance.Target{{Name: "local", Janitor: stack.LocalStore}}
	if stack.RemoteStore != nil {
		targets = append(targets, maintenance.Target{Name: "remote", Janitor: stack.RemoteStore, Remote: true})
	}
	return targets
}

func closeDatabase(db *gorm.DB, name string, log *zap.Logger) {
	if db == nil {
		return
	}
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.String("store", name), zap.Error(err))
	}
}
