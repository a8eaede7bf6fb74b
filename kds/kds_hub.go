package kds

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
)

// Event types
const (
	EventOrderPlaced   = "order_placed"
	EventOrderStatus   = "order_status_changed"
	EventOrderCancel   = "order_cancelled"
	EventSessionClosed = "session_closed"
	EventStaffCall     = "staff_call"
)

const writeWait = 5 * time.Second

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub holds the connected kitchen and staff screens.
type Hub struct {
	clients map[*websocket.Conn]string // conn -> role
	mutex   sync.Mutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]string)}
}

func (h *Hub) RegisterClient(conn *websocket.Conn, role string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = role
}

func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) OrderPlaced(_ context.Context, order *models.Order) {
	h.Broadcast(Message{Event: EventOrderPlaced, Data: order})
}

func (h *Hub) OrderStatusChanged(_ context.Context, ev services.StatusChangedEvent) {
	h.Broadcast(Message{Event: EventOrderStatus, Data: ev})
}

func (h *Hub) OrderCancelled(_ context.Context, order *models.Order) {
	h.Broadcast(Message{Event: EventOrderCancel, Data: map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"table_number": order.TableNumber,
	}})
}

func (h *Hub) SessionClosed(_ context.Context, ev services.SessionClosedEvent) {
	h.Broadcast(Message{Event: EventSessionClosed, Data: ev})
}

func (h *Hub) StaffCalled(_ context.Context, call *models.StaffCall) {
	h.Broadcast(Message{Event: EventStaffCall, Data: call})
}

// Broadcast sends msg to every client. Clients that fail a write are dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.Printf("Error marshaling kds message: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	utils.InfoLogger.Debugf("Broadcasting %s to %d clients", msg.Event, len(h.clients))
	for conn, role := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			utils.ErrorLogger.Printf("Error sending %s to %s client: %v", msg.Event, role, err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}
