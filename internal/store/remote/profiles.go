package remote

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/charlesng35/diagramhub/internal/models"
)

// UpsertProfile inserts the profile or updates the row with the same id.
func (s *Store) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	now := s.now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "full_name", "avatar_url", "updated_at"}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("remote store: upsert profile: %w", err)
	}
	return nil
}
