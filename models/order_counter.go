package models

// OrderCounter backs the atomic order-number sequence.
type OrderCounter struct {
	Name  string `gorm:"type:varchar(50);primaryKey"`
	Value int    `gorm:"not null"`
}
