package local

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/diagramhub/internal/models"
)

// KV is the key/value contract the local store persists its record arrays through.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// DatabaseKV implements KV on top of a SQL table (SQLite in practice).
type DatabaseKV struct {
	db *gorm.DB
}

// NewDatabaseKV constructs a database-backed KV.
func NewDatabaseKV(db *gorm.DB) (*DatabaseKV, error) {
	if db == nil {
		return nil, errors.New("local kv: db is required")
	}
	return &DatabaseKV{db: db}, nil
}

// Set upserts the value for a given key.
func (s *DatabaseKV) Set(ctx context.Context, key string, value []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}

	entry := models.LocalEntry{
		Key:   key,
		Value: value,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entry).Error
}

// Get retrieves a value by key.
func (s *DatabaseKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var entry models.LocalEntry
	err := s.db.WithContext(ctx).Take(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return entry.Value, true, nil
}
