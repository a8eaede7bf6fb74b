package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/utils"
	"gorm.io/gorm"
)

const (
	orderNumberAttempts  = 3
	statusUpdateAttempts = 3
)

var (
	errSessionBindLost = errors.New("session was bound or closed concurrently")
	errStaleStatus     = errors.New("order status changed concurrently")
)

type OrderItemInput struct {
	ItemID   uint `json:"item_id"`
	Quantity int  `json:"quantity"`
}

type PlaceOrderInput struct {
	TableNumber int
	Items       []OrderItemInput
	Token       string
}

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	Statuses    []models.OrderStatus
	TableNumber int
}

type OrderService struct {
	db        *gorm.DB
	sessions  *SessionService
	menu      MenuLookup
	allocator OrderNumberAllocator
	policy    *StatusPolicy
	notifier  Notifier
	now       func() time.Time
}

type OrderOption func(*OrderService)

func WithStatusPolicy(p *StatusPolicy) OrderOption {
	return func(s *OrderService) { s.policy = p }
}

func WithOrderNotifier(n Notifier) OrderOption {
	return func(s *OrderService) { s.notifier = n }
}

func WithOrderClock(now func() time.Time) OrderOption {
	return func(s *OrderService) { s.now = now }
}

func NewOrderService(db *gorm.DB, sessions *SessionService, menu MenuLookup, allocator OrderNumberAllocator, opts ...OrderOption) *OrderService {
	s := &OrderService{
		db:        db,
		sessions:  sessions,
		menu:      menu,
		allocator: allocator,
		policy:    DefaultStatusPolicy(),
		notifier:  NopNotifier{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder records a Pending order for the table behind in.Token and binds
// it to that session. A session carries at most one order.
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	session, err := s.sessions.ValidateSession(ctx, in.Token)
	if err != nil {
		return nil, err
	}
	if session.TableNumber != in.TableNumber {
		return nil, ErrTableMismatch
	}
	if session.OrderID != nil {
		return nil, ErrSessionConsumed
	}
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	menuItems := make([]*models.MenuItem, len(in.Items))
	for i, it := range in.Items {
		if it.Quantity < 1 {
			return nil, invalidQuantity(it.ItemID, it.Quantity)
		}
		item, err := s.menu.Get(ctx, it.ItemID)
		if err != nil {
			return nil, err
		}
		if !item.IsAvailable {
			return nil, menuItemUnavailable(it.ItemID)
		}
		menuItems[i] = item
	}

	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		number, err := s.allocator.Next(ctx)
		if err != nil {
			return nil, storageUnavailable("allocate order number", err)
		}

		now := s.now()
		order := &models.Order{
			TableNumber: in.TableNumber,
			OrderNumber: number,
			Status:      models.OrderStatusPending,
			SessionID:   &session.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		items := make([]models.OrderItem, len(in.Items))
		var total float64
		for i, it := range in.Items {
			items[i] = models.OrderItem{
				MenuItemID: it.ItemID,
				Name:       menuItems[i].Name,
				Quantity:   it.Quantity,
				Price:      menuItems[i].Price,
				CreatedAt:  now,
			}
			total += menuItems[i].Price * float64(it.Quantity)
		}
		order.TotalAmount = math.Round(total*100) / 100

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(order).Error; err != nil {
				return err
			}
			for i := range items {
				items[i].OrderID = order.ID
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
			res := tx.Model(&models.Session{}).
				Where("id = ? AND order_id IS NULL AND is_active = ?", session.ID, true).
				Updates(map[string]interface{}{"order_id": order.ID, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errSessionBindLost
			}
			return nil
		})

		switch {
		case err == nil:
			order.Items = items
			utils.InfoLogger.WithFields(logrus.Fields{
				"order_id":     order.ID,
				"order_number": order.OrderNumber,
				"table":        order.TableNumber,
				"session_id":   session.ID,
				"total":        order.TotalAmount,
			}).Info("order placed")
			s.notifier.OrderPlaced(ctx, order)
			return order, nil
		case errors.Is(err, errSessionBindLost):
			return nil, s.bindFailure(ctx, session.ID)
		case isDuplicateKey(err):
			utils.InfoLogger.WithFields(logrus.Fields{
				"order_number": number,
				"attempt":      attempt,
				"atomic":       s.allocator.Atomic(),
			}).Warn("order number collided, retrying")
		default:
			return nil, storageUnavailable("place order", err)
		}
	}
	return nil, ErrDuplicateOrderNumber
}

// bindFailure explains why the session could not take the order.
func (s *OrderService) bindFailure(ctx context.Context, sessionID uint) error {
	var current models.Session
	if err := s.db.WithContext(ctx).First(&current, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return storageUnavailable("reload session", err)
	}
	if !current.IsActive {
		return ErrSessionInactive
	}
	return ErrSessionConsumed
}

// UpdateOrderStatus moves an order forward under the configured policy.
// methodName may be empty when the target status does not need a payment
// method or the order already carries one.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id uint, statusName, methodName string) (*models.Order, error) {
	status, err := models.ParseOrderStatus(statusName)
	if err != nil {
		return nil, ErrInvalidStatus.with(err.Error())
	}
	var method *models.PaymentMethod
	if methodName != "" {
		pm, err := models.ParsePaymentMethod(methodName)
		if err != nil {
			return nil, ErrInvalidPaymentMethod.with(err.Error())
		}
		method = &pm
	}

	for attempt := 1; attempt <= statusUpdateAttempts; attempt++ {
		order, err := s.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		from := order.Status
		if !s.policy.CanTransition(from, status) {
			return nil, invalidTransition(from, status)
		}
		if s.policy.RequiresPayment(status) && method == nil && order.PaymentMethod == nil {
			return nil, ErrPaymentMethodRequired
		}

		now := s.now()
		var closed []models.Session
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			updates := map[string]interface{}{"status": string(status), "updated_at": now}
			if method != nil {
				updates["payment_method"] = string(*method)
			}
			res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", id, string(from)).Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errStaleStatus
			}
			if !s.policy.IsTerminal(status) {
				return nil
			}
			if err := tx.Where("order_id = ? AND is_active = ?", id, true).Find(&closed).Error; err != nil {
				return err
			}
			_, err := deactivateSessions(tx, now, "order_id = ?", id)
			return err
		})
		if errors.Is(err, errStaleStatus) {
			utils.InfoLogger.WithFields(logrus.Fields{"order_id": id, "attempt": attempt}).Warn("order status changed underneath update, retrying")
			continue
		}
		if err != nil {
			return nil, storageUnavailable("update order status", err)
		}

		order.Status = status
		if method != nil {
			order.PaymentMethod = method
		}
		order.UpdatedAt = now
		utils.InfoLogger.WithFields(logrus.Fields{
			"order_id":        order.ID,
			"order_number":    order.OrderNumber,
			"from":            from,
			"to":              status,
			"sessions_closed": len(closed),
		}).Info("order status changed")
		s.notifier.OrderStatusChanged(ctx, StatusChangedEvent{Order: order, From: from})
		for _, sess := range closed {
			s.notifier.SessionClosed(ctx, SessionClosedEvent{SessionID: sess.ID, TableNumber: sess.TableNumber, Reason: CloseReasonOrderFinalized})
		}
		return order, nil
	}
	return nil, ErrConcurrentUpdate
}

func (s *OrderService) MarkPaid(ctx context.Context, id uint, methodName string) (*models.Order, error) {
	return s.UpdateOrderStatus(ctx, id, string(models.OrderStatusPaid), methodName)
}

// CancelOrder deletes the order with its items and closes the session it came from.
func (s *OrderService) CancelOrder(ctx context.Context, id uint) error {
	now := s.now()
	var order models.Order
	var closed []models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, id).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Order{}, id).Error; err != nil {
			return err
		}
		linked := tx.Where("is_active = ? AND order_id = ?", true, id)
		if order.SessionID != nil {
			linked = tx.Where("is_active = ? AND (order_id = ? OR id = ?)", true, id, *order.SessionID)
		}
		if err := linked.Find(&closed).Error; err != nil {
			return err
		}
		if len(closed) == 0 {
			return nil
		}
		ids := make([]uint, len(closed))
		for i, sess := range closed {
			ids[i] = sess.ID
		}
		_, err := deactivateSessions(tx, now, "id IN ?", ids)
		return err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return storageUnavailable("cancel order", err)
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":        order.ID,
		"order_number":    order.OrderNumber,
		"sessions_closed": len(closed),
	}).Info("order cancelled")
	s.notifier.OrderCancelled(ctx, &order)
	for _, sess := range closed {
		s.notifier.SessionClosed(ctx, SessionClosedEvent{SessionID: sess.ID, TableNumber: sess.TableNumber, Reason: CloseReasonOrderCancelled})
	}
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, storageUnavailable("load order", err)
	}
	return &order, nil
}

// ListOrders returns matching orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Preload("Items").Order("created_at desc").Order("id desc")
	if len(f.Statuses) > 0 {
		names := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			names[i] = string(st)
		}
		q = q.Where("status IN ?", names)
	}
	if f.TableNumber > 0 {
		q = q.Where("table_number = ?", f.TableNumber)
	}
	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, storageUnavailable("list orders", err)
	}
	return orders, nil
}

// CurrentOrder returns the order placed under token. When the order exists but
// the session never recorded it, the link is restored and repaired is true.
func (s *OrderService) CurrentOrder(ctx context.Context, token string) (*models.Order, bool, error) {
	session, err := s.sessions.ValidateSession(ctx, token)
	if err != nil {
		return nil, false, err
	}

	if session.OrderID != nil {
		order, err := s.GetOrder(ctx, *session.OrderID)
		if errors.Is(err, ErrOrderNotFound) {
			return nil, false, ErrNoOrderForSession
		}
		return order, false, err
	}

	var found models.Order
	err = s.db.WithContext(ctx).Preload("Items").Where("session_id = ?", session.ID).Order("id desc").First(&found).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, ErrNoOrderForSession
	}
	if err != nil {
		return nil, false, storageUnavailable("find order for session", err)
	}

	utils.ErrorLogger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"order_id":   found.ID,
	}).Error("session missing link to its order, repairing")
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND order_id IS NULL", session.ID).
		Updates(map[string]interface{}{"order_id": found.ID, "updated_at": s.now()})
	if res.Error != nil {
		return nil, false, storageUnavailable("repair session link", res.Error)
	}
	return &found, true, nil
}
