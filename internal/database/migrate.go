package database

import (
	"gorm.io/gorm"

	"github.com/s/lifelessons/internal/models"
)

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Activity{},
	)
}
