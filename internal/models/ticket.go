package models

import "time"

// TicketIdentifier accepts either the scanned QR token or the printed ticket id.
// TicketID wins when both are present.
type TicketIdentifier struct {
	QR       string `json:"qr,omitempty"`
	QRCode   string `json:"qrCode,omitempty"`
	TicketID string `json:"ticketId,omitempty"`
}

type ScanStatus string

const (
	ScanScanned        ScanStatus = "scanned"
	ScanAlreadyScanned ScanStatus = "already_scanned"
	ScanNotScanned     ScanStatus = "not_scanned"
)

// TicketView is the subset of an order shown to door staff.
type TicketView struct {
	TicketID      string        `json:"ticket_id"`
	FullName      string        `json:"full_name"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	TicketType    string        `json:"ticket_type"`
	Quantity      int           `json:"quantity"`
	TotalAmount   int64         `json:"total_amount"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Scanned       bool          `json:"scanned"`
	ScannedAt     *time.Time    `json:"scanned_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func NewTicketView(o *Order) TicketView {
	return TicketView{
		TicketID:      o.TicketID,
		FullName:      o.FullName,
		Email:         o.Email,
		Phone:         o.Phone,
		TicketType:    o.TicketType,
		Quantity:      o.Quantity,
		TotalAmount:   o.TotalAmount,
		PaymentStatus: o.PaymentStatus,
		Scanned:       o.Scanned,
		ScannedAt:     o.ScannedAt,
		CreatedAt:     o.CreatedAt,
	}
}

type VerificationResult struct {
	Success   bool       `json:"success"`
	Status    ScanStatus `json:"status"`
	Message   string     `json:"message"`
	ScannedAt *time.Time `json:"scannedAt,omitempty"`
	Ticket    TicketView `json:"ticket"`
}

type LookupResult struct {
	Success bool       `json:"success"`
	Status  ScanStatus `json:"status"`
	Ticket  TicketView `json:"ticket"`
}

// OrderEvent is the payload published to Kafka on lifecycle changes.
type OrderEvent struct {
	OrderID       string        `json:"order_id"`
	TicketID      string        `json:"ticket_id"`
	Email         string        `json:"email"`
	TicketType    string        `json:"ticket_type"`
	Quantity      int           `json:"quantity"`
	TotalAmount   int64         `json:"total_amount"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	ScannedAt     *time.Time    `json:"scanned_at,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func NewOrderEvent(o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		OrderID:       o.ID,
		TicketID:      o.TicketID,
		Email:         o.Email,
		TicketType:    o.TicketType,
		Quantity:      o.Quantity,
		TotalAmount:   o.TotalAmount,
		PaymentStatus: o.PaymentStatus,
		TransactionID: o.TransactionID,
		ScannedAt:     o.ScannedAt,
		OccurredAt:    at,
	}
}
