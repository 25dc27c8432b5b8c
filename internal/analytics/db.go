package analytics

import (
	"context"
	"time"

	"ms-tickets/internal/models"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// SaleRow is the slice of an order the daily breakdown needs.
type SaleRow struct {
	CreatedAt     time.Time            `bun:"created_at"`
	Quantity      int                  `bun:"quantity"`
	TotalAmount   int64                `bun:"total_amount"`
	PaymentStatus models.PaymentStatus `bun:"payment_status"`
}

// TypeSalesData represents raw per ticket type metrics from the database.
// Tickets and Revenue count paid orders only.
type TypeSalesData struct {
	TicketType   string `bun:"ticket_type"`
	Orders       int    `bun:"orders"`
	PaidOrders   int    `bun:"paid_orders"`
	Tickets      int    `bun:"tickets"`
	Revenue      int64  `bun:"revenue"`
	Admitted     int    `bun:"admitted"`
	PaidAdmitted int    `bun:"paid_admitted"`
}

func filterStatus(q *bun.SelectQuery, status models.PaymentStatus) *bun.SelectQuery {
	if status != "" {
		q = q.Where("payment_status = ?", status)
	}
	return q
}

// GetSaleRows returns orders in creation order, optionally filtered by status.
func (db *DB) GetSaleRows(ctx context.Context, status models.PaymentStatus) ([]SaleRow, error) {
	rows := []SaleRow{}
	err := filterStatus(db.bun.NewSelect().
		ColumnExpr("created_at, quantity, total_amount, payment_status").
		TableExpr("orders"), status).
		OrderExpr("created_at ASC").
		Scan(ctx, &rows)

	return rows, err
}

// GetSalesByTicketType groups orders by ticket type.
func (db *DB) GetSalesByTicketType(ctx context.Context, status models.PaymentStatus) ([]TypeSalesData, error) {
	rows := []TypeSalesData{}
	err := filterStatus(db.bun.NewSelect().
		ColumnExpr("ticket_type").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(CASE WHEN payment_status = ? THEN 1 ELSE 0 END), 0) AS paid_orders", models.PaymentPaid).
		ColumnExpr("COALESCE(SUM(CASE WHEN payment_status = ? THEN quantity ELSE 0 END), 0) AS tickets", models.PaymentPaid).
		ColumnExpr("COALESCE(SUM(CASE WHEN payment_status = ? THEN total_amount ELSE 0 END), 0) AS revenue", models.PaymentPaid).
		ColumnExpr("COALESCE(SUM(CASE WHEN scanned THEN 1 ELSE 0 END), 0) AS admitted").
		ColumnExpr("COALESCE(SUM(CASE WHEN scanned AND payment_status = ? THEN 1 ELSE 0 END), 0) AS paid_admitted", models.PaymentPaid).
		TableExpr("orders"), status).
		GroupExpr("ticket_type").
		OrderExpr("ticket_type").
		Scan(ctx, &rows)

	return rows, err
}
