package db_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"ms-tickets/internal/models"
	"ms-tickets/internal/order/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// a single connection keeps every query on the same in-memory database
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	orderDB := &db.DB{Bun: bunDB}
	if err := orderDB.CreateSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { bunDB.Close() })

	return orderDB, bunDB
}

func newOrder(ticketID string) *models.Order {
	return &models.Order{
		ID:            uuid.New().String(),
		TicketID:      ticketID,
		QRCode:        uuid.New().String(),
		FullName:      "Jane Wanjiku",
		Email:         "jane@example.com",
		Phone:         "254712345678",
		TicketType:    "single",
		Quantity:      2,
		TotalAmount:   3000,
		PaymentStatus: models.PaymentPending,
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	order := newOrder("A1B2C3D4")
	require.NoError(t, orderDB.CreateOrder(ctx, order))
	assert.False(t, order.CreatedAt.IsZero())

	byID, err := orderDB.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3D4", byID.TicketID)
	assert.Equal(t, models.PaymentPending, byID.PaymentStatus)
	assert.False(t, byID.Scanned)
	assert.Nil(t, byID.ScannedAt)
	assert.Empty(t, byID.CheckoutID)

	byTicket, err := orderDB.GetOrderByTicketID(ctx, "A1B2C3D4")
	require.NoError(t, err)
	assert.Equal(t, order.ID, byTicket.ID)

	byQR, err := orderDB.GetOrderByQRCode(ctx, order.QRCode)
	require.NoError(t, err)
	assert.Equal(t, order.ID, byQR.ID)

	_, err = orderDB.GetOrderByTicketID(ctx, "NOPE0000")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	_, err = orderDB.GetOrderByCheckoutID(ctx, "")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestCreateOrderDuplicateTicketID(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("DUPE0001")))

	err := orderDB.CreateOrder(ctx, newOrder("DUPE0001"))
	assert.ErrorIs(t, err, models.ErrDuplicateOrder)
}

func TestSetCheckoutID(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	order := newOrder("CHK00001")
	require.NoError(t, orderDB.CreateOrder(ctx, order))

	ok, err := orderDB.SetCheckoutID(ctx, order.ID, "ws_CO_123")
	require.NoError(t, err)
	assert.True(t, ok)

	// already set
	ok, err = orderDB.SetCheckoutID(ctx, order.ID, "ws_CO_456")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := orderDB.GetOrderByCheckoutID(ctx, "ws_CO_123")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
}

func TestTransitionPaymentStatus(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	order := newOrder("PAY00001")
	require.NoError(t, orderDB.CreateOrder(ctx, order))

	ok, err := orderDB.TransitionPaymentStatus(ctx, order.ID, models.PaymentPaid, "QGH7XYZ")
	require.NoError(t, err)
	assert.True(t, ok)

	// terminal orders never move again
	ok, err = orderDB.TransitionPaymentStatus(ctx, order.ID, models.PaymentFailed, "")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := orderDB.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "QGH7XYZ", got.TransactionID)
}

func TestTransitionToFailedKeepsTransactionEmpty(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	order := newOrder("FAIL0001")
	require.NoError(t, orderDB.CreateOrder(ctx, order))

	ok, err := orderDB.TransitionPaymentStatus(ctx, order.ID, models.PaymentFailed, "IGNORED")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := orderDB.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.PaymentStatus)
	assert.Empty(t, got.TransactionID)

	_, err = orderDB.TransitionPaymentStatus(ctx, order.ID, models.PaymentPending, "")
	assert.Error(t, err)
}

func TestMarkScannedOnce(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	order := newOrder("SCAN0001")
	require.NoError(t, orderDB.CreateOrder(ctx, order))

	first := time.Date(2026, 2, 14, 20, 5, 0, 0, time.UTC)
	ok, err := orderDB.MarkScanned(ctx, order.ID, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = orderDB.MarkScanned(ctx, order.ID, first.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := orderDB.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.Scanned)
	require.NotNil(t, got.ScannedAt)
	assert.True(t, first.Equal(got.ScannedAt.UTC()))
}

func TestMarkScannedConcurrent(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	order := newOrder("RACE0001")
	require.NoError(t, orderDB.CreateOrder(ctx, order))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := orderDB.MarkScanned(ctx, order.ID, time.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestListOrdersAndStats(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	ids := make([]string, 0, 4)
	for i, tid := range []string{"LIST0001", "LIST0002", "LIST0003", "LIST0004"} {
		o := newOrder(tid)
		o.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, orderDB.CreateOrder(ctx, o))
		ids = append(ids, o.ID)
	}

	_, err := orderDB.TransitionPaymentStatus(ctx, ids[0], models.PaymentPaid, "TX1")
	require.NoError(t, err)
	_, err = orderDB.TransitionPaymentStatus(ctx, ids[1], models.PaymentPaid, "TX2")
	require.NoError(t, err)
	_, err = orderDB.TransitionPaymentStatus(ctx, ids[2], models.PaymentFailed, "")
	require.NoError(t, err)
	_, err = orderDB.MarkScanned(ctx, ids[0], time.Now())
	require.NoError(t, err)

	orders, err := orderDB.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 4)
	assert.Equal(t, "LIST0004", orders[0].TicketID)
	assert.Equal(t, "LIST0001", orders[3].TicketID)

	stats, err := orderDB.GetOrderStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStats{Total: 4, Paid: 2, Pending: 1, Failed: 1, Scanned: 1}, stats)
}

func TestListOrdersEmpty(t *testing.T) {
	orderDB, _ := setupTestDB(t)

	orders, err := orderDB.ListOrders(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)

	stats, err := orderDB.GetOrderStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OrderStats{}, stats)
}
