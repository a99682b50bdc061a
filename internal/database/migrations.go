package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/diagramhub/internal/models"
)

// RemoteModels lists the tables of the remote backend in dependency order.
func RemoteModels() []any {
	return []any{
		&models.Profile{},
		&models.Project{},
		&models.ProjectMember{},
		&models.Folder{},
		&models.Diagram{},
		&models.DiagramVersion{},
		&models.CollaborationSession{},
		&models.ActivityLog{},
	}
}

// AutoMigrateRemote creates or updates the remote tables.
func AutoMigrateRemote(db *gorm.DB) error {
	return db.AutoMigrate(RemoteModels()...)
}

// AutoMigrateLocal creates the key/value table backing the local store.
func AutoMigrateLocal(db *gorm.DB) error {
	return db.AutoMigrate(&models.LocalEntry{})
}
