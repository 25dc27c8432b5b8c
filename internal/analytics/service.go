package analytics

import (
	"context"
	"fmt"

	"ms-tickets/internal/models"
)

type Store interface {
	GetSaleRows(ctx context.Context, status models.PaymentStatus) ([]SaleRow, error)
	GetSalesByTicketType(ctx context.Context, status models.PaymentStatus) ([]TypeSalesData, error)
}

// Service handles analytics operations
type Service struct {
	db Store
}

// NewService creates a new analytics service
func NewService(db Store) *Service {
	return &Service{db: db}
}

// SalesAnalytics represents aggregated sales data for the event. Revenue and
// tickets sold count paid orders only; AdmitRate is paid orders admitted over
// paid orders.
type SalesAnalytics struct {
	Status       models.PaymentStatus `json:"status,omitempty"`
	TotalRevenue int64                `json:"total_revenue"`
	TotalOrders  int                  `json:"total_orders"`
	PaidOrders   int                  `json:"paid_orders"`
	TicketsSold  int                  `json:"tickets_sold"`
	Admitted     int                  `json:"admitted"`
	AdmitRate    float64              `json:"admit_rate"`
	DailySales   []DailySalesMetrics  `json:"daily_sales"`
	SalesByType  []TypeSalesMetrics   `json:"sales_by_type"`
}

// DailySalesMetrics contains metrics for a single UTC day
type DailySalesMetrics struct {
	Date        string `json:"date"`
	Orders      int    `json:"orders"`
	Revenue     int64  `json:"revenue"`
	TicketsSold int    `json:"tickets_sold"`
}

// TypeSalesMetrics contains sales metrics for a single ticket type
type TypeSalesMetrics struct {
	TicketType  string `json:"ticket_type"`
	Orders      int    `json:"orders"`
	TicketsSold int    `json:"tickets_sold"`
	Revenue     int64  `json:"revenue"`
	Admitted    int    `json:"admitted"`
}

// GetSalesAnalytics summarises orders, all of them when status is empty.
func (s *Service) GetSalesAnalytics(ctx context.Context, status models.PaymentStatus) (*SalesAnalytics, error) {
	rows, err := s.db.GetSaleRows(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}
	byType, err := s.db.GetSalesByTicketType(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales by ticket type: %w", err)
	}

	out := &SalesAnalytics{
		Status:      status,
		DailySales:  dailySales(rows),
		SalesByType: make([]TypeSalesMetrics, 0, len(byType)),
	}
	paidAdmitted := 0
	for _, t := range byType {
		out.SalesByType = append(out.SalesByType, TypeSalesMetrics{
			TicketType:  t.TicketType,
			Orders:      t.Orders,
			TicketsSold: t.Tickets,
			Revenue:     t.Revenue,
			Admitted:    t.Admitted,
		})
		out.TotalOrders += t.Orders
		out.PaidOrders += t.PaidOrders
		out.TicketsSold += t.Tickets
		out.TotalRevenue += t.Revenue
		out.Admitted += t.Admitted
		paidAdmitted += t.PaidAdmitted
	}
	if out.PaidOrders > 0 {
		out.AdmitRate = float64(paidAdmitted) / float64(out.PaidOrders)
	}
	return out, nil
}

// dailySales buckets rows by UTC date. rows arrive sorted by created_at.
// Every order counts towards Orders; only paid ones add revenue and tickets.
func dailySales(rows []SaleRow) []DailySalesMetrics {
	days := []DailySalesMetrics{}
	for _, r := range rows {
		date := r.CreatedAt.UTC().Format("2006-01-02")
		if n := len(days); n == 0 || days[n-1].Date != date {
			days = append(days, DailySalesMetrics{Date: date})
		}
		d := &days[len(days)-1]
		d.Orders++
		if r.PaymentStatus == models.PaymentPaid {
			d.Revenue += r.TotalAmount
			d.TicketsSold += r.Quantity
		}
	}
	return days
}
