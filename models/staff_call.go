package models

import "time"

const (
	StaffCallPending  = "Pending"
	StaffCallResolved = "Resolved"
)

type StaffCall struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	TableNumber int        `gorm:"not null;index" json:"table_number"`
	Status      string     `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}
