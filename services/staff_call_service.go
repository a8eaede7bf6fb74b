package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/utils"
	"gorm.io/gorm"
)

// StaffCallService tracks customers asking for a waiter.
type StaffCallService struct {
	db       *gorm.DB
	tables   *TableRegistry
	notifier Notifier
	now      func() time.Time
}

func NewStaffCallService(db *gorm.DB, tables *TableRegistry, notifier Notifier) *StaffCallService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &StaffCallService{db: db, tables: tables, notifier: notifier, now: time.Now}
}

func (s *StaffCallService) Create(ctx context.Context, table int) (*models.StaffCall, error) {
	if !s.tables.IsValid(table) {
		return nil, ErrInvalidTable
	}
	now := s.now()
	call := &models.StaffCall{
		TableNumber: table,
		Status:      models.StaffCallPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(call).Error; err != nil {
		return nil, storageUnavailable("create staff call", err)
	}
	utils.InfoLogger.WithFields(logrus.Fields{"table": table, "call_id": call.ID}).Info("staff called")
	s.notifier.StaffCalled(ctx, call)
	return call, nil
}

// ListPending returns open calls, oldest first.
func (s *StaffCallService) ListPending(ctx context.Context) ([]models.StaffCall, error) {
	var calls []models.StaffCall
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StaffCallPending).
		Order("created_at asc").
		Find(&calls).Error
	if err != nil {
		return nil, storageUnavailable("list staff calls", err)
	}
	return calls, nil
}

func (s *StaffCallService) Resolve(ctx context.Context, id uint) (*models.StaffCall, error) {
	var call models.StaffCall
	err := s.db.WithContext(ctx).First(&call, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStaffCallNotFound
	}
	if err != nil {
		return nil, storageUnavailable("load staff call", err)
	}
	if call.Status == models.StaffCallResolved {
		return &call, nil
	}

	now := s.now()
	err = s.db.WithContext(ctx).Model(&call).Updates(map[string]interface{}{
		"status":      models.StaffCallResolved,
		"resolved_at": now,
		"updated_at":  now,
	}).Error
	if err != nil {
		return nil, storageUnavailable("resolve staff call", err)
	}
	call.Status = models.StaffCallResolved
	call.ResolvedAt = &now
	return &call, nil
}
