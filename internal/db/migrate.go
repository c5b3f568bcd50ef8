package db

import (
	"marketgw/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Contract{},
		&models.Bar{},
		&models.IndicatorValue{},
		&models.RawFeedEvent{},
	)
}
