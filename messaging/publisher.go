package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
)

const (
	Exchange       = "cafe_events"
	publishTimeout = 3 * time.Second
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type envelope struct {
	Event      string      `json:"event"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher forwards domain events to a RabbitMQ topic exchange. Publish
// failures are logged and never reach the request that raised the event.
type Publisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   Channel
	now  func() time.Time
}

// Dial connects to url and declares the events exchange.
func Dial(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p, err := NewPublisher(ch)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel) (*Publisher, error) {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &Publisher{ch: ch, now: time.Now}, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil && !p.conn.IsClosed() {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (p *Publisher) OrderPlaced(ctx context.Context, order *models.Order) {
	p.publish(ctx, "order.placed", order)
}

func (p *Publisher) OrderStatusChanged(ctx context.Context, ev services.StatusChangedEvent) {
	p.publish(ctx, "order.status."+strings.ToLower(string(ev.Order.Status)), ev)
}

func (p *Publisher) OrderCancelled(ctx context.Context, order *models.Order) {
	p.publish(ctx, "order.cancelled", order)
}

func (p *Publisher) SessionClosed(ctx context.Context, ev services.SessionClosedEvent) {
	p.publish(ctx, "session.closed."+ev.Reason, ev)
}

func (p *Publisher) StaffCalled(ctx context.Context, call *models.StaffCall) {
	p.publish(ctx, "staff.called", call)
}

func (p *Publisher) publish(ctx context.Context, key string, data interface{}) {
	body, err := json.Marshal(envelope{Event: key, OccurredAt: p.now().UTC(), Data: data})
	if err != nil {
		utils.ErrorLogger.Printf("failed to marshal %s event: %v", key, err)
		return
	}

	// the request context may already be done once the response is written
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, Exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    p.now(),
		Body:         body,
	})
	if err != nil {
		utils.ErrorLogger.Printf("failed to publish %s event: %v", key, err)
	}
}
