package kds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/services"
)

func connect(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.RegisterClient(conn, "staff")
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub()
	conn := connect(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	hub.OrderPlaced(ctx, &models.Order{ID: 7, OrderNumber: 1007, TableNumber: 3, Status: models.OrderStatusPending})

	msg := readMessage(t, conn)
	assert.Equal(t, EventOrderPlaced, msg["event"])
	data := msg["data"].(map[string]interface{})
	assert.EqualValues(t, 1007, data["order_number"])

	hub.SessionClosed(ctx, services.SessionClosedEvent{SessionID: 4, TableNumber: 3, Reason: services.CloseReasonExpired})
	msg = readMessage(t, conn)
	assert.Equal(t, EventSessionClosed, msg["event"])
	assert.Equal(t, "expired", msg["data"].(map[string]interface{})["reason"])
}

func TestHubDropsClosedClients(t *testing.T) {
	hub := NewHub()
	conn := connect(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
