package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order identifier already exists")
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

type OrderRequest struct {
	FullName   string `json:"fullName" validate:"required,min=2,max=100"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Phone      string `json:"phone" validate:"required,kephone"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
	TicketType string `json:"ticketType,omitempty"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID            string        `bun:"id,pk" json:"id"`
	TicketID      string        `bun:"ticket_id,unique,notnull" json:"ticket_id"`
	QRCode        string        `bun:"qr_code,unique,notnull" json:"qr_code"`
	FullName      string        `bun:"full_name,notnull" json:"full_name"`
	Email         string        `bun:"email,notnull" json:"email"`
	Phone         string        `bun:"phone,notnull" json:"phone"`
	TicketType    string        `bun:"ticket_type,notnull" json:"ticket_type"`
	Quantity      int           `bun:"quantity,notnull" json:"quantity"`
	TotalAmount   int64         `bun:"total_amount,notnull" json:"total_amount"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	CheckoutID    string        `bun:"checkout_id,nullzero" json:"checkout_id,omitempty"`
	TransactionID string        `bun:"transaction_id,nullzero" json:"transaction_id,omitempty"`
	Scanned       bool          `bun:"scanned,notnull" json:"scanned"`
	ScannedAt     *time.Time    `bun:"scanned_at" json:"scanned_at,omitempty"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

type CreateOrderResponse struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"orderId"`
	TicketID    string `json:"ticketId"`
	QRCode      string `json:"qrCode"`
	CheckoutID  string `json:"checkoutId"`
	TotalAmount int64  `json:"totalAmount"`
	STKStatus   string `json:"stkStatus"`
	Message     string `json:"message"`
}

// STK push outcomes reported on order creation.
const (
	STKInitiated        = "initiated"
	STKInitiationFailed = "initiation_failed"
)

type OrderStats struct {
	Total   int `json:"total"`
	Paid    int `json:"paid"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Scanned int `json:"scanned"`
}

type OrderList struct {
	Stats  OrderStats `json:"stats"`
	Orders []Order    `json:"orders"`
}
