package local

import (
	"context"

	"github.com/charlesng35/diagramhub/internal/models"
)

// UpsertProfile replaces the profile with the same id or appends it.
func (s *Store) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	ctx = ensureContext(ctx)
	unlock := s.lock(KeyProfiles)
	defer unlock()

	profiles, err := load[models.Profile](ctx, s, KeyProfiles)
	if err != nil {
		return err
	}

	now := s.now()
	profile.UpdatedAt = now
	idx := indexOf(profiles, func(p models.Profile) bool { return p.ID == profile.ID })
	if idx >= 0 {
		profile.CreatedAt = profiles[idx].CreatedAt
		profiles[idx] = *profile
	} else {
		if profile.CreatedAt.IsZero() {
			profile.CreatedAt = now
		}
		profiles = append(profiles, *profile)
	}
	return save(ctx, s, KeyProfiles, profiles)
}

// GetProfile returns a stored profile by id.
func (s *Store) GetProfile(ctx context.Context, id string) (*models.Profile, bool, error) {
	profiles, err := load[models.Profile](ensureContext(ctx), s, KeyProfiles)
	if err != nil {
		return nil, false, err
	}
	idx := indexOf(profiles, func(p models.Profile) bool { return p.ID == id })
	if idx < 0 {
		return nil, false, nil
	}
	return &profiles[idx], true, nil
}
