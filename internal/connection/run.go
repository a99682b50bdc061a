package connection

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
	"github.com/charlesng35/diagramhub/pkg/metrics"
)

var errNoRemote = apperrors.ErrConnectivity.WithInternal(errors.New("no remote backend configured"))

func errValidation(message string) error {
	return apperrors.NewValidation(message)
}

// Operation is one side of a fallback pair.
type Operation[T any] func(ctx context.Context) (T, error)

// Run executes remoteOp under the call timeout and, when it fails, localOp
// once. Validation errors and caller cancellation are returned as is. In
// local mode remoteOp is never invoked.
func Run[T any](ctx context.Context, m *Manager, operation string, remoteOp, localOp Operation[T]) (T, error) {
	ctx = ensureContext(ctx)
	if m.ResolveMode() == ModeLocal {
		return observe(operation, PathLocal, func() (T, error) { return localOp(ctx) })
	}

	value, err := observe(operation, PathRemote, func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
		return remoteOp(callCtx)
	})
	if err == nil {
		return value, nil
	}
	if !shouldFallback(ctx, err) {
		return value, err
	}

	m.recordFallback(operation, err)
	return observe(operation, PathLocal, func() (T, error) { return localOp(ctx) })
}

// Do is Run for operations without a result value.
func Do(ctx context.Context, m *Manager, operation string, remoteOp, localOp func(ctx context.Context) error) error {
	_, err := Run(ctx, m, operation,
		func(ctx context.Context) (struct{}, error) { return struct{}{}, remoteOp(ctx) },
		func(ctx context.Context) (struct{}, error) { return struct{}{}, localOp(ctx) },
	)
	return err
}

func shouldFallback(ctx context.Context, err error) bool {
	if apperrors.IsValidation(err) {
		return false
	}
	// The caller gave up; the local store must not act on its behalf.
	if ctx.Err() != nil {
		return false
	}
	return true
}

func observe[T any](operation string, path Path, fn func() (T, error)) (T, error) {
	start := time.Now()
	value, err := fn()
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.OperationLatency.WithLabelValues(operation, string(path), result).Observe(time.Since(start).Seconds())
	return value, err
}
