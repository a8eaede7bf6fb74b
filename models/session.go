package models

import "time"

// Session is a table-scoped ordering cycle authenticated by Token.
// ActiveTable mirrors TableNumber while the session is active and is NULL otherwise;
// its unique index keeps a single active session per table.
type Session struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TableNumber int       `gorm:"not null;index" json:"table_number"`
	Token       string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"token"`
	IsActive    bool      `gorm:"not null;index" json:"is_active"`
	ActiveTable *int      `gorm:"uniqueIndex:idx_sessions_active_table" json:"-"`
	OrderID     *uint     `gorm:"index" json:"order_id,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

// Session lifecycle as seen by the customer client.
const (
	SessionStateActive   = "active"
	SessionStateConsumed = "consumed"
	SessionStateInactive = "inactive"
)

// State reports active, consumed (an order was placed under it) or inactive.
func (s *Session) State() string {
	switch {
	case !s.IsActive:
		return SessionStateInactive
	case s.OrderID != nil:
		return SessionStateConsumed
	default:
		return SessionStateActive
	}
}
