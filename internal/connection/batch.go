package connection

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/charlesng35/diagramhub/pkg/metrics"
)

// BatchOperation is one independent write of a batch, expressed for both backends.
type BatchOperation struct {
	Name   string
	Remote func(ctx context.Context) error
	Local  func(ctx context.Context) error
}

// BatchResult reports how a batch was served.
type BatchResult struct {
	Path       Path   `json:"path"`
	Operations int    `json:"operations"`
	RemoteErr  string `json:"remote_error,omitempty"`
}

// ExecuteBatch runs the remote writes concurrently. If any of them fails the
// whole batch is replayed against the local store, one write after another.
// Remote writes that succeeded before the failure are not undone.
func (m *Manager) ExecuteBatch(ctx context.Context, ops ...BatchOperation) (*BatchResult, error) {
	ctx = ensureContext(ctx)
	for i, op := range ops {
		if op.Remote == nil || op.Local == nil {
			return nil, errValidation(fmt.Sprintf("batch operation %d (%s) needs both remote and local writes", i, op.Name))
		}
	}
	result := &BatchResult{Operations: len(ops)}
	if len(ops) == 0 {
		result.Path = PathLocal
		if m.ResolveMode() == ModeDatabase {
			result.Path = PathRemote
		}
		return result, nil
	}

	if m.ResolveMode() == ModeDatabase {
		err := m.runRemoteBatch(ctx, ops)
		if err == nil {
			result.Path = PathRemote
			metrics.Batches.WithLabelValues(string(PathRemote)).Inc()
			return result, nil
		}
		if !shouldFallback(ctx, err) {
			return nil, err
		}
		result.RemoteErr = err.Error()
		m.recordFallback("batch", err)
	}

	result.Path = PathLocal
	metrics.Batches.WithLabelValues(string(PathLocal)).Inc()
	var errs error
	for _, op := range ops {
		if err := op.Local(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", op.Name, err))
		}
	}
	if errs != nil {
		m.log.Warn("local batch replay failed", zap.Int("operations", len(ops)), zap.Error(errs))
		return result, errs
	}
	return result, nil
}

func (m *Manager) runRemoteBatch(ctx context.Context, ops []BatchOperation) error {
	if m.remote == nil {
		return errNoRemote
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(callCtx)
	for _, op := range ops {
		op := op
		g.Go(func() error {
			if err := op.Remote(gctx); err != nil {
				return fmt.Errorf("%s: %w", op.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
