package models

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPrepared  OrderStatus = "Prepared"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusPaid      OrderStatus = "Paid"
)

var orderStatuses = []OrderStatus{OrderStatusPending, OrderStatusPrepared, OrderStatusCompleted, OrderStatusPaid}

// ParseOrderStatus accepts the canonical names case-insensitively.
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range orderStatuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "Cash"
	PaymentCard PaymentMethod = "Card"
	PaymentUPI  PaymentMethod = "UPI"
)

var paymentMethods = []PaymentMethod{PaymentCash, PaymentCard, PaymentUPI}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	for _, pm := range paymentMethods {
		if strings.EqualFold(string(pm), s) {
			return pm, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

type Order struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TableNumber   int            `gorm:"not null;index" json:"table_number"`
	OrderNumber   int            `gorm:"not null;uniqueIndex" json:"order_number"`
	Status        OrderStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentMethod *PaymentMethod `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	TotalAmount   float64        `gorm:"type:decimal(10,2);not null;default:0.00" json:"total_amount"`
	SessionID     *uint          `gorm:"index" json:"session_id,omitempty"`
	Items         []OrderItem    `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

// Label is the human-facing order reference printed for the kitchen.
func (o *Order) Label() string {
	return fmt.Sprintf("#%d (table %d)", o.OrderNumber, o.TableNumber)
}
