package services

import (
	"context"

	"github.com/valtrilabs/cafe-backend/models"
)

// Reasons carried by SessionClosedEvent.
const (
	CloseReasonReplaced       = "replaced"
	CloseReasonExpired        = "expired"
	CloseReasonOrderFinalized = "order_finalized"
	CloseReasonInvalidated    = "invalidated"
	CloseReasonOrderCancelled = "order_cancelled"
)

type SessionClosedEvent struct {
	SessionID   uint   `json:"session_id"`
	TableNumber int    `json:"table_number"`
	Reason      string `json:"reason"`
}

type StatusChangedEvent struct {
	Order *models.Order      `json:"order"`
	From  models.OrderStatus `json:"from"`
}

// Notifier receives domain events after they are committed. Implementations
// must not block the request for long and report their own failures.
type Notifier interface {
	OrderPlaced(ctx context.Context, order *models.Order)
	OrderStatusChanged(ctx context.Context, ev StatusChangedEvent)
	OrderCancelled(ctx context.Context, order *models.Order)
	SessionClosed(ctx context.Context, ev SessionClosedEvent)
	StaffCalled(ctx context.Context, call *models.StaffCall)
}

type NopNotifier struct{}

func (NopNotifier) OrderPlaced(context.Context, *models.Order) {}
func (NopNotifier) OrderStatusChanged(context.Context, StatusChangedEvent) {}
func (NopNotifier) OrderCancelled(context.Context, *models.Order) {}
func (NopNotifier) SessionClosed(context.Context, SessionClosedEvent) {}
func (NopNotifier) StaffCalled(context.Context, *models.StaffCall) {}

// MultiNotifier fans every event out to each notifier in order.
type MultiNotifier []Notifier

func (m MultiNotifier) OrderPlaced(ctx context.Context, order *models.Order) {
	for _, n := range m {
		n.OrderPlaced(ctx, order)
	}
}

func (m MultiNotifier) OrderStatusChanged(ctx context.Context, ev StatusChangedEvent) {
	for _, n := range m {
		n.OrderStatusChanged(ctx, ev)
	}
}

func (m MultiNotifier) OrderCancelled(ctx context.Context, order *models.Order) {
	for _, n := range m {
		n.OrderCancelled(ctx, order)
	}
}

func (m MultiNotifier) SessionClosed(ctx context.Context, ev SessionClosedEvent) {
	for _, n := range m {
		n.SessionClosed(ctx, ev)
	}
}

func (m MultiNotifier) StaffCalled(ctx context.Context, call *models.StaffCall) {
	for _, n := range m {
		n.StaffCalled(ctx, call)
	}
}
