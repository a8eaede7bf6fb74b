package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valtrilabs/cafe-backend/database"
	"github.com/valtrilabs/cafe-backend/kds"
	"github.com/valtrilabs/cafe-backend/middlewares"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/router"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	adminEmail    = "owner@cafe.test"
	adminPassword = "s3cret-pass"
)

type testApp struct {
	router *gin.Engine
	db     *gorm.DB
	signer *utils.JWTSigner
	chai   models.MenuItem
	wrap   models.MenuItem
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.EnsureAdmin(context.Background(), db, adminEmail, adminPassword))

	app := &testApp{
		db:     db,
		signer: utils.NewJWTSigner("test-secret", time.Hour),
		chai:   models.MenuItem{Name: "Masala Chai", Price: 2.25, Category: "Drinks", IsAvailable: true},
		wrap:   models.MenuItem{Name: "Paneer Wrap", Price: 6.4, Category: "Food", IsAvailable: false},
	}
	require.NoError(t, db.Create(&app.chai).Error)
	require.NoError(t, db.Create(&app.wrap).Error)
	// gorm skips the zero value on create
	require.NoError(t, db.Model(&app.wrap).Update("is_available", false).Error)

	tables := services.NewTableRegistry(10)
	sessions := services.NewSessionService(db, tables, 90*time.Minute,
		services.WithRateLimiter(services.NewTableRateLimiter(2, time.Minute)))
	menu := services.NewGormMenuLookup(db)
	orders := services.NewOrderService(db, sessions, menu, services.NewCounterAllocator(db, 1000))

	app.router = router.SetupRouter(router.Deps{
		DB:            db,
		Tables:        tables,
		Sessions:      sessions,
		Orders:        orders,
		Menu:          menu,
		StaffCalls:    services.NewStaffCallService(db, tables, nil),
		Floor:         services.NewFloorService(db, tables),
		Hub:           kds.NewHub(),
		Signer:        app.signer,
		PublicBaseURL: "https://cafe.test",
		CORSOrigins:   []string{"*"},
	})
	return app
}

type envelope struct {
	Status  bool             `json:"status"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	Error   *utils.ErrorBody `json:"error"`
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "image/png" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (a *testApp) bearer(t *testing.T, role string) map[string]string {
	t.Helper()
	tok, err := a.signer.GenerateToken(1, role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func (a *testApp) openSession(t *testing.T, table int) string {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/sessions", gin.H{"table_number": table}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func (a *testApp) placeOrder(t *testing.T, token string, table int) models.Order {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/orders", gin.H{
		"table_number": table,
		"items":        []gin.H{{"item_id": a.chai.ID, "quantity": 2}},
	}, map[string]string{middlewares.SessionTokenHeader: token})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var data struct {
		OrderNumber int          `json:"order_number"`
		Order       models.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Order
}

func TestCreateSession(t *testing.T) {
	app := setupApp(t)

	w, env := app.do(t, http.MethodPost, "/sessions", gin.H{"table_number": 3}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var data struct {
		Token       string    `json:"token"`
		TableNumber int       `json:"table_number"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.Token, 32)
	assert.Equal(t, 3, data.TableNumber)
	assert.WithinDuration(t, time.Now().Add(90*time.Minute), data.ExpiresAt, time.Minute)
}

func TestCreateSessionRejectsInvalidTable(t *testing.T) {
	app := setupApp(t)

	for _, table := range []int{0, 11, -2} {
		w, env := app.do(t, http.MethodPost, "/sessions", gin.H{"table_number": table}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "invalid_table", env.Error.Reason)
		assert.Equal(t, "fix_input", env.Error.Action)
	}
}

func TestCreateSessionRateLimited(t *testing.T) {
	app := setupApp(t)

	app.openSession(t, 4)
	app.openSession(t, 4)
	w, env := app.do(t, http.MethodPost, "/sessions", gin.H{"table_number": 4}, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, "rate_limited", env.Error.Kind)
	assert.Equal(t, "retry_later", env.Error.Action)
	assert.Positive(t, env.Error.RetryAfterSeconds)

	// other tables are unaffected
	app.openSession(t, 5)
}

func TestValidateSession(t *testing.T) {
	app := setupApp(t)
	token := app.openSession(t, 2)

	w, _ := app.do(t, http.MethodGet, "/sessions/validate", nil, map[string]string{middlewares.SessionTokenHeader: token})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := app.do(t, http.MethodGet, "/sessions/validate", nil, map[string]string{middlewares.SessionTokenHeader: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "rescan", env.Error.Action)

	w, _ = app.do(t, http.MethodGet, "/sessions/validate", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// a rescan replaces the old session
	app.openSession(t, 2)
	w, env = app.do(t, http.MethodGet, "/sessions/validate?token="+token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_inactive", env.Error.Reason)
}

func TestSessionStatus(t *testing.T) {
	app := setupApp(t)
	token := app.openSession(t, 6)
	headers := map[string]string{middlewares.SessionTokenHeader: token}

	_, env := app.do(t, http.MethodGet, "/sessions/status", nil, headers)
	assert.JSONEq(t, `{"status":"active"}`, string(env.Data))

	app.placeOrder(t, token, 6)
	_, env = app.do(t, http.MethodGet, "/sessions/status", nil, headers)
	assert.JSONEq(t, `{"status":"consumed"}`, string(env.Data))

	w, env := app.do(t, http.MethodGet, "/sessions/status", nil, map[string]string{middlewares.SessionTokenHeader: "unknown"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "rescan", env.Error.Action)
}

func TestInvalidateSession(t *testing.T) {
	app := setupApp(t)
	token := app.openSession(t, 7)

	w, _ := app.do(t, http.MethodDelete, "/sessions/"+token, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// idempotent for a known token
	w, _ = app.do(t, http.MethodDelete, "/sessions/"+token, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = app.do(t, http.MethodDelete, "/sessions/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlaceOrder(t *testing.T) {
	app := setupApp(t)
	token := app.openSession(t, 1)

	order := app.placeOrder(t, token, 1)
	assert.Equal(t, 1000, order.OrderNumber)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.InDelta(t, 4.5, order.TotalAmount, 0.001)
	require.Len(t, order.Items, 1)

	// one order per session
	w, env := app.do(t, http.MethodPost, "/orders", gin.H{
		"table_number": 1,
		"items":        []gin.H{{"item_id": app.chai.ID, "quantity": 1}},
	}, map[string]string{middlewares.SessionTokenHeader: token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_consumed", env.Error.Reason)

	w, env = app.do(t, http.MethodGet, "/orders/current", nil, map[string]string{middlewares.SessionTokenHeader: token})
	assert.Equal(t, http.StatusOK, w.Code)
	var current struct {
		Order models.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &current))
	assert.Equal(t, order.ID, current.Order.ID)
}

func TestPlaceOrderRejections(t *testing.T) {
	app := setupApp(t)
	token := app.openSession(t, 8)
	headers := map[string]string{middlewares.SessionTokenHeader: token}

	tests := []struct {
		name   string
		body   gin.H
		code   int
		reason string
	}{
		{"other table", gin.H{"table_number": 9, "items": []gin.H{{"item_id": app.chai.ID, "quantity": 1}}}, http.StatusForbidden, "table_mismatch"},
		{"no items", gin.H{"table_number": 8, "items": []gin.H{}}, http.StatusBadRequest, "empty_order"},
		{"zero quantity", gin.H{"table_number": 8, "items": []gin.H{{"item_id": app.chai.ID, "quantity": 0}}}, http.StatusBadRequest, "invalid_quantity"},
		{"unknown item", gin.H{"table_number": 8, "items": []gin.H{{"item_id": 9999, "quantity": 1}}}, http.StatusBadRequest, "unknown_menu_item"},
		{"unavailable item", gin.H{"table_number": 8, "items": []gin.H{{"item_id": app.wrap.ID, "quantity": 1}}}, http.StatusBadRequest, "menu_item_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := app.do(t, http.MethodPost, "/orders", tt.body, headers)
			assert.Equal(t, tt.code, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.reason, env.Error.Reason)
		})
	}

	// none of the rejections consumed the session
	app.placeOrder(t, token, 8)
}

func TestUpdateOrderStatus(t *testing.T) {
	app := setupApp(t)
	token := app.openSession(t, 2)
	order := app.placeOrder(t, token, 2)
	staff := app.bearer(t, models.RoleStaff)
	path := fmt.Sprintf("/admin/orders/%d/status", order.ID)

	w, env := app.do(t, http.MethodPut, path, gin.H{"status": "prepared"}, staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Order
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, models.OrderStatusPrepared, updated.Status)

	// the customer's session ends with a terminal status
	w, env = app.do(t, http.MethodGet, "/sessions/validate", nil, map[string]string{middlewares.SessionTokenHeader: token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = app.do(t, http.MethodPut, path, gin.H{"status": "Pending"}, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_transition", env.Error.Reason)

	w, env = app.do(t, http.MethodPut, path, gin.H{"status": "Eaten"}, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_status", env.Error.Reason)

	w, _ = app.do(t, http.MethodPut, path, gin.H{"status": "Completed", "payment_method": "Cheque"}, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = app.do(t, http.MethodPut, "/admin/orders/4242/status", gin.H{"status": "Completed"}, staff)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order_not_found", env.Error.Reason)

	w, _ = app.do(t, http.MethodPut, "/admin/orders/abc/status", gin.H{"status": "Completed"}, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkPaid(t *testing.T) {
	app := setupApp(t)
	order := app.placeOrder(t, app.openSession(t, 5), 5)
	staff := app.bearer(t, models.RoleStaff)
	path := fmt.Sprintf("/admin/orders/%d/mark-paid", order.ID)

	w, _ := app.do(t, http.MethodPut, fmt.Sprintf("/admin/orders/%d/status", order.ID), gin.H{"status": "Completed"}, staff)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := app.do(t, http.MethodPut, path, nil, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "payment_method_required", env.Error.Reason)

	w, env = app.do(t, http.MethodPut, path, gin.H{"payment_method": "upi"}, staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paid models.Order
	require.NoError(t, json.Unmarshal(env.Data, &paid))
	assert.Equal(t, models.OrderStatusPaid, paid.Status)
	require.NotNil(t, paid.PaymentMethod)
	assert.Equal(t, models.PaymentUPI, *paid.PaymentMethod)
}

func TestCancelOrder(t *testing.T) {
	app := setupApp(t)
	token := app.openSession(t, 3)
	order := app.placeOrder(t, token, 3)
	staff := app.bearer(t, models.RoleStaff)

	w, _ := app.do(t, http.MethodDelete, fmt.Sprintf("/admin/orders/%d", order.ID), nil, staff)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = app.do(t, http.MethodGet, fmt.Sprintf("/admin/orders/%d", order.ID), nil, staff)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = app.do(t, http.MethodGet, "/sessions/validate", nil, map[string]string{middlewares.SessionTokenHeader: token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListOrders(t *testing.T) {
	app := setupApp(t)
	app.placeOrder(t, app.openSession(t, 1), 1)
	second := app.placeOrder(t, app.openSession(t, 2), 2)
	staff := app.bearer(t, models.RoleStaff)

	_, env := app.do(t, http.MethodGet, "/admin/orders", nil, staff)
	var all []models.Order
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 2)

	_, env = app.do(t, http.MethodGet, "/admin/orders?table=2&status=pending", nil, staff)
	var filtered []models.Order
	require.NoError(t, json.Unmarshal(env.Data, &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, second.ID, filtered[0].ID)

	w, _ := app.do(t, http.MethodGet, "/admin/orders?status=Lost", nil, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStaffCalls(t *testing.T) {
	app := setupApp(t)
	staff := app.bearer(t, models.RoleStaff)

	w, env := app.do(t, http.MethodPost, "/staff-calls", gin.H{"table_number": 4}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var call models.StaffCall
	require.NoError(t, json.Unmarshal(env.Data, &call))

	_, env = app.do(t, http.MethodGet, "/admin/staff-calls", nil, staff)
	var pending []models.StaffCall
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Len(t, pending, 1)

	w, _ = app.do(t, http.MethodPut, fmt.Sprintf("/admin/staff-calls/%d", call.ID), nil, staff)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = app.do(t, http.MethodPut, "/admin/staff-calls/999", nil, staff)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTableQRCode(t *testing.T) {
	app := setupApp(t)
	staff := app.bearer(t, models.RoleStaff)

	w, _ := app.do(t, http.MethodGet, "/admin/tables/3/qr?size=128", nil, staff)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w, _ = app.do(t, http.MethodGet, "/admin/tables/33/qr", nil, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = app.do(t, http.MethodGet, "/admin/tables/3/qr?size=5000", nil, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMenuAndTables(t *testing.T) {
	app := setupApp(t)

	_, env := app.do(t, http.MethodGet, "/menu", nil, nil)
	var items []models.MenuItem
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Masala Chai", items[0].Name)

	_, env = app.do(t, http.MethodGet, "/menu?all=true", nil, nil)
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 2)

	_, env = app.do(t, http.MethodGet, "/tables", nil, nil)
	var tables struct {
		Count  int   `json:"count"`
		Tables []int `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tables))
	assert.Equal(t, 10, tables.Count)
	assert.Len(t, tables.Tables, 10)
}

func TestFloorOverview(t *testing.T) {
	app := setupApp(t)
	app.placeOrder(t, app.openSession(t, 1), 1)
	app.openSession(t, 2)

	w, env := app.do(t, http.MethodGet, "/admin/floor", nil, app.bearer(t, models.RoleStaff))
	require.Equal(t, http.StatusOK, w.Code)
	var floor services.FloorOverview
	require.NoError(t, json.Unmarshal(env.Data, &floor))
	require.Len(t, floor.Tables, 10)
	assert.True(t, floor.Tables[0].Occupied)
	assert.True(t, floor.Tables[1].Occupied)
	assert.False(t, floor.Tables[2].Occupied)
}

func TestLoginAndRoles(t *testing.T) {
	app := setupApp(t)

	w, _ := app.do(t, http.MethodPost, "/login", gin.H{"email": adminEmail, "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := app.do(t, http.MethodPost, "/login", gin.H{"email": "OWNER@cafe.test", "password": adminPassword}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
		Role  string `json:"user_role"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.Equal(t, models.RoleAdmin, login.Role)
	admin := map[string]string{"Authorization": "Bearer " + login.Token}

	w, _ = app.do(t, http.MethodGet, "/admin/profile", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)

	newUser := gin.H{"name": "Ravi", "email": "ravi@cafe.test", "password": "longenough", "role": "staff"}
	w, _ = app.do(t, http.MethodPost, "/admin/users", newUser, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, _ = app.do(t, http.MethodPost, "/admin/users", newUser, admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	// staff may not manage users
	w, _ = app.do(t, http.MethodPost, "/admin/users", newUser, app.bearer(t, models.RoleStaff))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = app.do(t, http.MethodGet, "/admin/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = app.do(t, http.MethodGet, "/admin/orders", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
