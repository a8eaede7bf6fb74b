package services

import (
	"errors"
	"strings"
	"time"

	"github.com/valtrilabs/cafe-backend/models"
	"gorm.io/gorm"
)

// isDuplicateKey reports a unique-index violation. Drivers opened without
// TranslateError are matched on their message.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

// deactivateSessions flips matching active sessions to inactive in one guarded
// UPDATE and releases their active-table slot.
func deactivateSessions(tx *gorm.DB, now time.Time, query interface{}, args ...interface{}) (int64, error) {
	res := tx.Model(&models.Session{}).
		Where("is_active = ?", true).
		Where(query, args...).
		Updates(map[string]interface{}{
			"is_active":    false,
			"active_table": nil,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}
