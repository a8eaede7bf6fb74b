package services

import (
	"context"
	"time"

	"github.com/valtrilabs/cafe-backend/models"
	"gorm.io/gorm"
)

type TableStatus struct {
	TableNumber      int                `json:"table_number"`
	Occupied         bool               `json:"occupied"`
	SessionState     string             `json:"session_state,omitempty"`
	SessionStartedAt *time.Time         `json:"session_started_at,omitempty"`
	OrderNumber      int                `json:"order_number,omitempty"`
	OrderStatus      models.OrderStatus `json:"order_status,omitempty"`
}

type FloorOverview struct {
	Tables            []TableStatus                `json:"tables"`
	OrdersByStatus    map[models.OrderStatus]int64 `json:"orders_by_status"`
	PendingStaffCalls int64                        `json:"pending_staff_calls"`
}

// FloorService summarises what is happening at every table right now.
type FloorService struct {
	db     *gorm.DB
	tables *TableRegistry
}

func NewFloorService(db *gorm.DB, tables *TableRegistry) *FloorService {
	return &FloorService{db: db, tables: tables}
}

func (s *FloorService) Overview(ctx context.Context) (*FloorOverview, error) {
	db := s.db.WithContext(ctx)

	var active []models.Session
	if err := db.Where("is_active = ?", true).Find(&active).Error; err != nil {
		return nil, storageUnavailable("list active sessions", err)
	}

	var orderIDs []uint
	for _, sess := range active {
		if sess.OrderID != nil {
			orderIDs = append(orderIDs, *sess.OrderID)
		}
	}
	orders := make(map[uint]models.Order, len(orderIDs))
	if len(orderIDs) > 0 {
		var rows []models.Order
		if err := db.Where("id IN ?", orderIDs).Find(&rows).Error; err != nil {
			return nil, storageUnavailable("load session orders", err)
		}
		for _, o := range rows {
			orders[o.ID] = o
		}
	}

	byTable := make(map[int]models.Session, len(active))
	for _, sess := range active {
		byTable[sess.TableNumber] = sess
	}

	overview := &FloorOverview{OrdersByStatus: make(map[models.OrderStatus]int64)}
	for _, n := range s.tables.Tables() {
		ts := TableStatus{TableNumber: n}
		if sess, ok := byTable[n]; ok {
			started := sess.CreatedAt
			ts.Occupied = true
			ts.SessionState = sess.State()
			ts.SessionStartedAt = &started
			if sess.OrderID != nil {
				if o, ok := orders[*sess.OrderID]; ok {
					ts.OrderNumber = o.OrderNumber
					ts.OrderStatus = o.Status
				}
			}
		}
		overview.Tables = append(overview.Tables, ts)
	}

	var counts []struct {
		Status models.OrderStatus
		N      int64
	}
	if err := db.Model(&models.Order{}).Select("status, COUNT(*) AS n").Group("status").Scan(&counts).Error; err != nil {
		return nil, storageUnavailable("count orders", err)
	}
	for _, c := range counts {
		overview.OrdersByStatus[c.Status] = c.N
	}

	if err := db.Model(&models.StaffCall{}).Where("status = ?", models.StaffCallPending).Count(&overview.PendingStaffCalls).Error; err != nil {
		return nil, storageUnavailable("count staff calls", err)
	}
	return overview, nil
}
