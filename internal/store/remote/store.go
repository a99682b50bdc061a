// Package remote implements the store contracts on the relational backend
// through gorm. Multi-row changes run inside a transaction.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/diagramhub/internal/database"
	"github.com/charlesng35/diagramhub/internal/models"
	"github.com/charlesng35/diagramhub/internal/store"
	apperrors "github.com/charlesng35/diagramhub/pkg/errors"
)

// Store is the gorm-backed implementation of every store contract.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Option customises the Store.
type Option func(*Store)

// WithNow overrides the clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Store over db.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("remote store: db is required")
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx)
}

func (s *Store) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.conn(ctx).Transaction(fn)
}

// lookupError maps a missing row to a NOT_FOUND AppError and wraps anything else.
func lookupError(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFoundf(entity, id)
	}
	return fmt.Errorf("remote store: load %s: %w", entity, err)
}

// writeError classifies unique violations as write conflicts.
func writeError(err error, action string) error {
	if database.IsUniqueViolation(err) {
		return apperrors.ErrConflict.WithInternal(fmt.Errorf("%s: %w", action, err))
	}
	return fmt.Errorf("remote store: %s: %w", action, err)
}

func scopeWhere(tx *gorm.DB, column string, parentID *string) *gorm.DB {
	if parentID == nil || *parentID == "" {
		return tx.Where(column + " IS NULL")
	}
	return tx.Where(column+" = ?", *parentID)
}

// siblings returns id/sort_order of the rows sharing a scope. Diagram scopes
// only count active diagrams.
func siblings(tx *gorm.DB, kind store.ItemKind, projectID string, parentID *string) ([]store.Ranked, error) {
	var out []store.Ranked
	var query *gorm.DB
	switch kind {
	case store.KindFolder:
		query = scopeWhere(tx.Model(&models.Folder{}), "parent_id", parentID)
	case store.KindDiagram:
		query = scopeWhere(tx.Model(&models.Diagram{}), "folder_id", parentID).Where("is_active = ?", true)
	default:
		return nil, apperrors.NewValidation("unknown item type " + string(kind))
	}
	if err := query.Where("project_id = ?", projectID).Select("id", "sort_order").Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("remote store: load %s siblings: %w", kind, err)
	}
	return out, nil
}

// lockProject takes a row lock on the project so concurrent transactions
// recompute its sibling ranks one at a time. A missing project row locks nothing.
func lockProject(tx *gorm.DB, projectID string) error {
	var ids []string
	err := tx.Model(&models.Project{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", projectID).
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("remote store: lock project: %w", err)
	}
	return nil
}

// lockedSiblings is siblings under the project lock.
func lockedSiblings(tx *gorm.DB, kind store.ItemKind, projectID string, parentID *string) ([]store.Ranked, error) {
	if err := lockProject(tx, projectID); err != nil {
		return nil, err
	}
	return siblings(tx, kind, projectID, parentID)
}

func nextSortOrder(tx *gorm.DB, kind store.ItemKind, projectID string, parentID *string, excludeID string) (int, error) {
	ranked, err := lockedSiblings(tx, kind, projectID, parentID)
	if err != nil {
		return 0, err
	}
	orders := make([]int, 0, len(ranked))
	for _, item := range ranked {
		if item.ID != excludeID {
			orders = append(orders, item.SortOrder)
		}
	}
	return store.NextSortOrder(orders), nil
}

// applyRanks writes the ranks that differ from the current values.
func applyRanks(tx *gorm.DB, kind store.ItemKind, current []store.Ranked, ranks map[string]int, now time.Time) error {
	model := modelFor(kind)
	for _, item := range current {
		rank, ok := ranks[item.ID]
		if !ok || rank == item.SortOrder {
			continue
		}
		if err := tx.Model(model).Where("id = ?", item.ID).
			Updates(map[string]any{"sort_order": rank, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("remote store: write %s rank: %w", kind, err)
		}
	}
	return nil
}

func compactScope(tx *gorm.DB, kind store.ItemKind, projectID string, parentID *string, now time.Time) error {
	current, err := lockedSiblings(tx, kind, projectID, parentID)
	if err != nil {
		return err
	}
	return applyRanks(tx, kind, current, store.DenseRanks(current), now)
}

func moveWithinScope(tx *gorm.DB, kind store.ItemKind, projectID string, parentID *string, id string, position int, now time.Time) error {
	current, err := lockedSiblings(tx, kind, projectID, parentID)
	if err != nil {
		return err
	}
	return applyRanks(tx, kind, current, store.MoveWithin(current, id, position), now)
}

func modelFor(kind store.ItemKind) any {
	if kind == store.KindFolder {
		return &models.Folder{}
	}
	return &models.Diagram{}
}

func nullable(id *string) any {
	if id == nil || *id == "" {
		return nil
	}
	return *id
}
