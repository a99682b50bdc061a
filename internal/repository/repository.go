// Package repository routes every persistence operation through the
// connection manager: remote first, local on failure. Repositories validate
// input before any write and publish a domain event after each successful
// mutation.
package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/events"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
	"github.com/charlesng35/diagramhub/pkg/logger"
	"github.com/charlesng35/diagramhub/pkg/validator"
)

// Option customises a repository.
type Option func(*options)

type options struct {
	publisher     events.Publisher
	now           func() time.Time
	sessionWindow time.Duration
	log           *zap.Logger
}

// WithPublisher sets the event sink. Events are discarded without one.
func WithPublisher(publisher events.Publisher) Option {
	return func(o *options) {
		if publisher != nil {
			o.publisher = publisher
		}
	}
}

// WithClock overrides the clock used for session windows and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSessionWindow overrides how long a collaboration session stays live.
func WithSessionWindow(window time.Duration) Option {
	return func(o *options) {
		if window > 0 {
			o.sessionWindow = window
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func buildOptions(module string, opts []Option) options {
	o := options{
		publisher: events.Nop{},
		now:       time.Now,
		log:       logger.WithModule(module),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) publish(eventType events.Type, projectID, entityID string, record any, delta map[string]any) {
	o.publisher.Publish(events.Event{
		Type:      eventType,
		ProjectID: projectID,
		EntityID:  entityID,
		Record:    record,
		Delta:     delta,
		At:        o.now(),
	})
}

func checkBackends(conn *connection.Manager, hasRemote, hasLocal bool) error {
	if conn == nil {
		return errors.New("repository: connection manager is required")
	}
	if !hasLocal {
		return errors.New("repository: local store is required")
	}
	if conn.Remote() != nil && !hasRemote {
		return errors.New("repository: remote store is required when a remote backend is configured")
	}
	return nil
}

func validate(input any) error {
	if err := validator.ValidateStruct(input); err != nil {
		return apperrors.ErrValidation.WithInternal(err)
	}
	return nil
}

func requireID(kind, id string) error {
	if id == "" {
		return apperrors.NewValidation(kind + " id is required")
	}
	return nil
}

// reorder re-stamps the given items through a batch and then compacts every
// touched scope on whichever backend served the batch.
func reorder(ctx context.Context, conn *connection.Manager, remote, local store.SortOrderWriter, items []store.ItemOrder) (*connection.BatchResult, error) {
	if len(items) == 0 {
		return &connection.BatchResult{Path: connection.PathLocal}, nil
	}
	byKind := map[store.ItemKind][]string{}
	ops := make([]connection.BatchOperation, 0, len(items))
	for _, item := range items {
		if err := validate(item); err != nil {
			return nil, err
		}
		item := item
		byKind[item.Type] = append(byKind[item.Type], item.ID)
		ops = append(ops, connection.BatchOperation{
			Name: string(item.Type) + ":" + item.ID,
			Remote: func(ctx context.Context) error {
				return remote.SetSortOrder(ctx, item.Type, item.ID, item.SortOrder)
			},
			Local: func(ctx context.Context) error {
				return local.SetSortOrder(ctx, item.Type, item.ID, item.SortOrder)
			},
		})
	}

	result, err := conn.ExecuteBatch(ctx, ops...)
	if err != nil {
		return result, err
	}
	if result.Path == connection.PathLocal {
		return result, normalizeScopes(ctx, local, byKind)
	}

	// The remote ranks are in place; if compacting them fails the whole
	// reorder is replayed on the local store instead.
	replayed := false
	err = connection.Do(ctx, conn, "order.normalize",
		func(ctx context.Context) error { return normalizeScopes(ctx, remote, byKind) },
		func(ctx context.Context) error {
			replayed = true
			for _, item := range items {
				if err := local.SetSortOrder(ctx, item.Type, item.ID, item.SortOrder); err != nil {
					return err
				}
			}
			return normalizeScopes(ctx, local, byKind)
		},
	)
	if replayed {
		result.Path = connection.PathLocal
	}
	return result, err
}

func normalizeScopes(ctx context.Context, writer store.SortOrderWriter, byKind map[store.ItemKind][]string) error {
	for _, kind := range []store.ItemKind{store.KindFolder, store.KindDiagram} {
		if ids := byKind[kind]; len(ids) > 0 {
			if err := writer.NormalizeSiblings(ctx, kind, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

func orderItems(kind store.ItemKind, orders []store.Ranked) []store.ItemOrder {
	items := make([]store.ItemOrder, 0, len(orders))
	for _, order := range orders {
		items = append(items, store.ItemOrder{Type: kind, ID: order.ID, SortOrder: order.SortOrder})
	}
	return items
}
