package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/monitoring"
	"github.com/charlesng35/diagramhub/internal/store"
	"github.com/charlesng35/diagramhub/pkg/logger"
)

const (
	defaultActivityRetentionDays = 90
	defaultProbeSpec             = "@every 1m"
	defaultSessionSpec           = "@every 5m"
	defaultActivitySpec          = "@daily"
	defaultJobTimeout            = 30 * time.Second
)

// Job names reported to monitoring.
const (
	JobProbe             = "connection_probe"
	JobSessionSweep      = "session_sweep"
	JobActivityRetention = "activity_retention"
)

// Target is one backend the cleanup jobs sweep. Remote targets are skipped
// while the connection manager runs in local mode.
type Target struct {
	Name    string
	Janitor store.Janitor
	Remote  bool
}

// Cleaner coordinates background maintenance: probing the remote backend,
// expiring idle collaboration sessions and pruning old activity logs.
type Cleaner struct {
	conn      *connection.Manager
	targets   []Target
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	window    time.Duration
	retention int
	timeout   time.Duration

	probeSchedule    string
	sessionSchedule  string
	activitySchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cutoff computations.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithLogger overrides the maintenance logger.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// WithSessionWindow sets how long a collaboration session may stay idle
// before the sweep marks it inactive.
func WithSessionWindow(window time.Duration) Option {
	return func(cleaner *Cleaner) {
		if window > 0 {
			cleaner.window = window
		}
	}
}

// WithActivityRetentionDays adjusts how long activity logs are kept. Zero
// or less disables the retention job.
func WithActivityRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		cleaner.retention = days
	}
}

// WithJobTimeout bounds a single job run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(cleaner *Cleaner) {
		if timeout > 0 {
			cleaner.timeout = timeout
		}
	}
}

// WithProbeSchedule overrides the cron specification for the connection probe.
func WithProbeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.probeSchedule = spec
		}
	}
}

// WithSessionSchedule overrides the cron specification for the session sweep.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithActivitySchedule overrides the cron specification for activity retention.
func WithActivitySchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.activitySchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil connection manager skips the probe
// job; targets without a janitor are ignored.
func NewCleaner(conn *connection.Manager, targets []Target, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		conn:             conn,
		now:              time.Now,
		window:           models.CollaborationSessionWindow,
		retention:        defaultActivityRetentionDays,
		timeout:          defaultJobTimeout,
		probeSchedule:    defaultProbeSpec,
		sessionSchedule:  defaultSessionSpec,
		activitySchedule: defaultActivitySpec,
		log:              logger.WithModule("maintenance"),
	}
	for _, target := range targets {
		if target.Janitor != nil {
			cleaner.targets = append(cleaner.targets, target)
		}
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.conn != nil {
		jobs = append(jobs, job{JobProbe, c.probeSchedule, c.probe})
	}
	if len(c.targets) > 0 {
		jobs = append(jobs, job{JobSessionSweep, c.sessionSchedule, c.sweepSessions})
		if c.retention > 0 {
			jobs = append(jobs, job{JobActivityRetention, c.activitySchedule, c.pruneActivity})
		}
	}
	return jobs
}

// Start registers the jobs with the cron scheduler and launches it if at
// least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			_ = c.execute(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every enabled job sequentially and combines their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	affected, err := j.run(ctx)
	duration := time.Since(start)

	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Duration("duration", duration), zap.Error(err))
		monitoring.RecordMaintenanceRun(j.name, monitoring.ResultFailure, err.Error(), affected, duration)
		return fmt.Errorf("%s: %w", j.name, err)
	}
	c.log.Debug("maintenance job finished", zap.String("job", j.name), zap.Int64("affected", affected), zap.Duration("duration", duration))
	monitoring.RecordMaintenanceRun(j.name, monitoring.ResultSuccess, "", affected, duration)
	return nil
}

func (c *Cleaner) probe(ctx context.Context) (int64, error) {
	if c.conn.ResolveMode() == connection.ModeLocal {
		return 0, nil
	}
	probe := c.conn.TestConnection(ctx)
	if !probe.Connected {
		if probe.Error != "" {
			return 0, fmt.Errorf("remote %s: %s", probe.State, probe.Error)
		}
		return 0, errors.New("remote " + string(probe.State))
	}
	return 0, nil
}

func (c *Cleaner) sweepSessions(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.window)
	return c.eachTarget(ctx, func(ctx context.Context, j store.Janitor) (int64, error) {
		return j.ExpireCollaborationSessions(ctx, cutoff)
	})
}

func (c *Cleaner) pruneActivity(ctx context.Context) (int64, error) {
	cutoff := c.now().AddDate(0, 0, -c.retention)
	return c.eachTarget(ctx, func(ctx context.Context, j store.Janitor) (int64, error) {
		return j.PruneActivityLogs(ctx, cutoff)
	})
}

// eachTarget applies fn to every active target. A failing target does not
// stop the others.
func (c *Cleaner) eachTarget(ctx context.Context, fn func(ctx context.Context, j store.Janitor) (int64, error)) (int64, error) {
	var (
		total int64
		errs  error
	)
	localOnly := c.conn != nil && c.conn.ResolveMode() == connection.ModeLocal
	for _, target := range c.targets {
		if target.Remote && localOnly {
			continue
		}
		n, err := fn(ctx, target.Janitor)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", target.Name, err))
			continue
		}
		total += n
	}
	return total, errs
}
