package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/database"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store/local"
)

// Config represents the runtime configuration of the diagramhub server.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Remote        RemoteConfig        `mapstructure:"remote"`
	Local         LocalConfig         `mapstructure:"local"`
	Mode          ModeConfig          `mapstructure:"mode"`
	Collaboration CollaborationConfig `mapstructure:"collaboration"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// RemoteConfig describes the remote relational backend.
type RemoteConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	Driver          string            `mapstructure:"driver"`
	Path            string            `mapstructure:"path"`
	DSN             string            `mapstructure:"dsn"`
	Postgres        DBAuthConfig      `mapstructure:"postgres"`
	MySQL           DBAuthConfig      `mapstructure:"mysql"`
	Options         map[string]string `mapstructure:"options"`
	AutoMigrate     bool              `mapstructure:"auto_migrate"`
	CallTimeout     time.Duration     `mapstructure:"call_timeout"`
	ProbeTable      string            `mapstructure:"probe_table"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration     `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LocalConfig describes the local fallback store.
type LocalConfig struct {
	Path      string `mapstructure:"path"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ModeConfig holds the initial mode preference. A preference persisted in
// the local store wins over it at boot.
type ModeConfig struct {
	PreferLocal bool `mapstructure:"prefer_local"`
}

// CollaborationConfig tunes presence tracking and local activity retention.
type CollaborationConfig struct {
	SessionWindow    time.Duration `mapstructure:"session_window"`
	ActivityLogLimit int           `mapstructure:"activity_log_limit"`
}

// MaintenanceConfig schedules background jobs.
type MaintenanceConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	ProbeSchedule         string        `mapstructure:"probe_schedule"`
	SessionSchedule       string        `mapstructure:"session_schedule"`
	ActivitySchedule      string        `mapstructure:"activity_schedule"`
	ActivityRetentionDays int           `mapstructure:"activity_retention_days"`
	JobTimeout            time.Duration `mapstructure:"job_timeout"`
	FailureTolerance      int           `mapstructure:"failure_tolerance"`
	MaxJobAge             time.Duration `mapstructure:"max_job_age"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		if strings.TrimSpace(path) != "" {
			v.AddConfigPath(path)
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("DIAGRAMHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Local.Path) == "" {
		return errors.New("config: local.path is required")
	}
	if c.Collaboration.SessionWindow <= 0 {
		return errors.New("config: collaboration.session_window must be positive")
	}
	if c.Collaboration.ActivityLogLimit <= 0 {
		return errors.New("config: collaboration.activity_log_limit must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("remote.enabled", true)
	v.SetDefault("remote.driver", "postgres")
	v.SetDefault("remote.path", "")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("remote.postgres.host", "localhost")
	v.SetDefault("remote.postgres.port", 5432)
	v.SetDefault("remote.postgres.database", "diagramhub")
	v.SetDefault("remote.postgres.username", "")
	v.SetDefault("remote.postgres.password", "")
	v.SetDefault("remote.mysql.host", "localhost")
	v.SetDefault("remote.mysql.port", 3306)
	v.SetDefault("remote.mysql.database", "diagramhub")
	v.SetDefault("remote.mysql.username", "")
	v.SetDefault("remote.mysql.password", "")
	v.SetDefault("remote.auto_migrate", false)
	v.SetDefault("remote.call_timeout", connection.DefaultCallTimeout.String())
	v.SetDefault("remote.probe_table", connection.DefaultProbeTable)
	v.SetDefault("remote.max_open_conns", 10)
	v.SetDefault("remote.max_idle_conns", 5)
	v.SetDefault("remote.conn_max_lifetime", "30m")

	v.SetDefault("local.path", "./data/diagramhub-local.sqlite")
	v.SetDefault("local.key_prefix", local.DefaultKeyPrefix)

	v.SetDefault("mode.prefer_local", false)

	v.SetDefault("collaboration.session_window", models.CollaborationSessionWindow.String())
	v.SetDefault("collaboration.activity_log_limit", local.DefaultActivityLogLimit)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.probe_schedule", "@every 1m")
	v.SetDefault("maintenance.session_schedule", "@every 5m")
	v.SetDefault("maintenance.activity_schedule", "@daily")
	v.SetDefault("maintenance.activity_retention_days", 90)
	v.SetDefault("maintenance.job_timeout", "30s")
	v.SetDefault("maintenance.failure_tolerance", 3)
	v.SetDefault("maintenance.max_job_age", "26h")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
	v.SetDefault("monitoring.health_check.timeout", "5s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// DatabaseConfig converts the remote section into database options.
func (c RemoteConfig) DatabaseConfig() database.Config {
	cfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            strings.TrimSpace(c.Path),
		DSN:             strings.TrimSpace(c.DSN),
		Options:         c.Options,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var auth *DBAuthConfig
	switch cfg.Driver {
	case "", "sqlite":
		cfg.Driver = "sqlite"
	case "postgres", "postgresql":
		cfg.Driver = "postgres"
		auth = &c.Postgres
	case "mysql":
		auth = &c.MySQL
	}
	if auth != nil {
		cfg.Host = strings.TrimSpace(auth.Host)
		cfg.Port = auth.Port
		cfg.Name = strings.TrimSpace(auth.Database)
		cfg.User = strings.TrimSpace(auth.Username)
		cfg.Password = auth.Password
	}
	return cfg
}

// DatabaseConfig returns the options of the SQLite file backing the local store.
func (c LocalConfig) DatabaseConfig() database.Config {
	return database.Config{Driver: "sqlite", Path: strings.TrimSpace(c.Path)}
}

// ConnectionConfig builds the connection manager settings.
func (c *Config) ConnectionConfig() connection.Config {
	return connection.Config{
		PreferLocal: c.Mode.PreferLocal,
		CallTimeout: c.Remote.CallTimeout,
		ProbeTable:  strings.TrimSpace(c.Remote.ProbeTable),
	}
}
