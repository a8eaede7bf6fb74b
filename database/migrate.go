package database

import (
	"fmt"

	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/utils"
	"gorm.io/gorm"
)

// Models is every table the service owns, in dependency order.
var Models = []interface{}{
	&models.User{},
	&models.MenuItem{},
	&models.Session{},
	&models.Order{},
	&models.OrderItem{},
	&models.OrderCounter{},
	&models.StaffCall{},
}

// Migrate creates or updates the schema. The unique index on
// sessions.active_table is what keeps one active session per table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if !db.Migrator().HasIndex(&models.Session{}, "idx_sessions_active_table") {
		return fmt.Errorf("auto migrate: sessions.active_table unique index missing")
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
