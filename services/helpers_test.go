package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valtrilabs/cafe-backend/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTTL = 90 * time.Minute

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every goroutine must see the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Session{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderCounter{},
		&models.MenuItem{},
		&models.StaffCall{},
	))
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedTokens hands out the given tokens in order, then repeats the last one.
func scriptedTokens(tokens ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		tok := tokens[i]
		if i < len(tokens)-1 {
			i++
		}
		return tok, nil
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	placed  []*models.Order
	changed []StatusChangedEvent
	cancels []*models.Order
	closed  []SessionClosedEvent
	calls   []*models.StaffCall
}

func (r *recordingNotifier) OrderPlaced(_ context.Context, o *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, o)
}

func (r *recordingNotifier) OrderStatusChanged(_ context.Context, ev StatusChangedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, ev)
}

func (r *recordingNotifier) OrderCancelled(_ context.Context, o *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels = append(r.cancels, o)
}

func (r *recordingNotifier) SessionClosed(_ context.Context, ev SessionClosedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, ev)
}

func (r *recordingNotifier) StaffCalled(_ context.Context, c *models.StaffCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordingNotifier) closedReasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	reasons := make([]string, len(r.closed))
	for i, ev := range r.closed {
		reasons[i] = ev.Reason
	}
	return reasons
}

type fixture struct {
	db       *gorm.DB
	clock    *testClock
	notifier *recordingNotifier
	sessions *SessionService
	orders   *OrderService
	menu     map[string]models.MenuItem
}

func newFixture(t *testing.T, opts ...OrderOption) *fixture {
	t.Helper()
	db := setupTestDB(t)
	clock := newTestClock()
	rec := &recordingNotifier{}

	menu := map[string]models.MenuItem{}
	for _, item := range []models.MenuItem{
		{Name: "Masala Chai", Price: 2.25, Category: "Beverages", IsAvailable: true},
		{Name: "Cold Coffee", Price: 3.5, Category: "Beverages", IsAvailable: true},
		{Name: "Paneer Wrap", Price: 6.4, Category: "Snacks", IsAvailable: false},
	} {
		item := item
		require.NoError(t, db.Create(&item).Error)
		menu[item.Name] = item
	}

	sessions := NewSessionService(db, NewTableRegistry(10), testTTL,
		WithClock(clock.Now),
		WithSessionNotifier(rec),
	)
	opts = append([]OrderOption{WithOrderClock(clock.Now), WithOrderNotifier(rec)}, opts...)
	orders := NewOrderService(db, sessions, NewGormMenuLookup(db), NewCounterAllocator(db, 1000), opts...)

	return &fixture{db: db, clock: clock, notifier: rec, sessions: sessions, orders: orders, menu: menu}
}

func (f *fixture) session(t *testing.T, table int) *models.Session {
	t.Helper()
	s, err := f.sessions.CreateSession(context.Background(), table)
	require.NoError(t, err)
	return s
}

func (f *fixture) place(t *testing.T, s *models.Session, items ...OrderItemInput) *models.Order {
	t.Helper()
	if len(items) == 0 {
		items = []OrderItemInput{{ItemID: f.menu["Masala Chai"].ID, Quantity: 2}}
	}
	order, err := f.orders.PlaceOrder(context.Background(), PlaceOrderInput{
		TableNumber: s.TableNumber,
		Items:       items,
		Token:       s.Token,
	})
	require.NoError(t, err)
	return order
}

func reloadSession(t *testing.T, db *gorm.DB, id uint) models.Session {
	t.Helper()
	var s models.Session
	require.NoError(t, db.First(&s, id).Error)
	return s
}
