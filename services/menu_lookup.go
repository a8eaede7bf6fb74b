package services

import (
	"context"
	"errors"

	"github.com/valtrilabs/cafe-backend/models"
	"gorm.io/gorm"
)

// MenuLookup resolves menu items referenced by orders.
type MenuLookup interface {
	Exists(ctx context.Context, id uint) (bool, error)
	Get(ctx context.Context, id uint) (*models.MenuItem, error)
}

type GormMenuLookup struct {
	db *gorm.DB
}

func NewGormMenuLookup(db *gorm.DB) *GormMenuLookup {
	return &GormMenuLookup{db: db}
}

func (m *GormMenuLookup) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := m.db.WithContext(ctx).Model(&models.MenuItem{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, storageUnavailable("count menu item", err)
	}
	return count > 0, nil
}

// Get returns ErrUnknownMenuItem when id does not resolve.
func (m *GormMenuLookup) Get(ctx context.Context, id uint) (*models.MenuItem, error) {
	var item models.MenuItem
	err := m.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, unknownMenuItem(id)
	}
	if err != nil {
		return nil, storageUnavailable("load menu item", err)
	}
	return &item, nil
}

// List returns the menu grouped by category then name.
func (m *GormMenuLookup) List(ctx context.Context, availableOnly bool) ([]models.MenuItem, error) {
	q := m.db.WithContext(ctx).Order("category asc").Order("name asc")
	if availableOnly {
		q = q.Where("is_available = ?", true)
	}
	var items []models.MenuItem
	if err := q.Find(&items).Error; err != nil {
		return nil, storageUnavailable("list menu", err)
	}
	return items, nil
}
