package models

import "time"

// LocalEntry is one key of the local fallback store. Value holds the
// serialized record array for that key.
type LocalEntry struct {
	Key       string `gorm:"primaryKey;size:256"`
	Value     []byte `gorm:"type:blob"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
