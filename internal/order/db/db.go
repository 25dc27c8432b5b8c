package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-tickets/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// CreateSchema creates the orders table and its lookup indexes when missing.
// Production deployments use the SQL migrations; this serves tests and local runs.
func (d *DB) CreateSchema(ctx context.Context) error {
	if _, err := d.Bun.NewCreateTable().
		Model((*models.Order)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create orders table: %w", err)
	}

	indexes := map[string]string{
		"idx_orders_checkout_id":    "checkout_id",
		"idx_orders_payment_status": "payment_status",
		"idx_orders_created_at":     "created_at",
	}
	for name, column := range indexes {
		if _, err := d.Bun.NewCreateIndex().
			Model((*models.Order)(nil)).
			Index(name).
			Column(column).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

// ---------------- ORDERS ----------------

// CreateOrder inserts a new order. A clash on id, ticket_id or qr_code
// returns models.ErrDuplicateOrder so the caller can regenerate identifiers.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt

	if _, err := d.Bun.NewInsert().Model(order).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", models.ErrDuplicateOrder, err)
		}
		return err
	}
	return nil
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return d.getOrderBy(ctx, "id", id)
}

func (d *DB) GetOrderByTicketID(ctx context.Context, ticketID string) (*models.Order, error) {
	return d.getOrderBy(ctx, "ticket_id", ticketID)
}

func (d *DB) GetOrderByQRCode(ctx context.Context, qrCode string) (*models.Order, error) {
	return d.getOrderBy(ctx, "qr_code", qrCode)
}

func (d *DB) GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*models.Order, error) {
	return d.getOrderBy(ctx, "checkout_id", checkoutID)
}

func (d *DB) getOrderBy(ctx context.Context, column, value string) (*models.Order, error) {
	if value == "" {
		return nil, models.ErrOrderNotFound
	}
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// SetCheckoutID records the gateway checkout id once. It only applies to a
// pending order that has none yet.
func (d *DB) SetCheckoutID(ctx context.Context, id, checkoutID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("checkout_id = ?", checkoutID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("payment_status = ?", models.PaymentPending).
		Where("checkout_id IS NULL").
		Exec(ctx)
	return affected(res, err)
}

// TransitionPaymentStatus moves a pending order to a terminal status. It
// returns false when the order was no longer pending, in which case nothing
// was written. The transaction id is stored only on the paid transition.
func (d *DB) TransitionPaymentStatus(ctx context.Context, id string, to models.PaymentStatus, transactionID string) (bool, error) {
	if !to.IsTerminal() {
		return false, fmt.Errorf("invalid target status %q", to)
	}

	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("payment_status = ?", models.PaymentPending)
	if to == models.PaymentPaid && transactionID != "" {
		q = q.Set("transaction_id = ?", transactionID)
	}

	res, err := q.Exec(ctx)
	return affected(res, err)
}

// MarkScanned flips scanned to true exactly once. Concurrent callers race on
// the guarded update and only one of them sees true.
func (d *DB) MarkScanned(ctx context.Context, id string, at time.Time) (bool, error) {
	at = at.UTC()
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("scanned = ?", true).
		Set("scanned_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("scanned = ?", false).
		Exec(ctx)
	return affected(res, err)
}

// ListOrders returns every order, newest first.
func (d *DB) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *DB) GetOrderStats(ctx context.Context) (models.OrderStats, error) {
	var stats models.OrderStats

	var rows []struct {
		PaymentStatus models.PaymentStatus `bun:"payment_status"`
		Count         int                  `bun:"count"`
	}
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("payment_status").
		ColumnExpr("COUNT(*) AS count").
		Group("payment_status").
		Scan(ctx, &rows)
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		switch r.PaymentStatus {
		case models.PaymentPaid:
			stats.Paid = r.Count
		case models.PaymentPending:
			stats.Pending = r.Count
		case models.PaymentFailed:
			stats.Failed = r.Count
		}
	}

	scanned, err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("scanned = ?", true).
		Count(ctx)
	if err != nil {
		return stats, err
	}
	stats.Scanned = scanned

	return stats, nil
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
