package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResultCode is a gateway result code. HashPay sends it either as a JSON
// string or as a number; both decode to the same string form.
type ResultCode string

func (c *ResultCode) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ResultCode(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid result code %s: %w", raw, err)
	}
	*c = ResultCode(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

func (c ResultCode) String() string {
	return string(c)
}

type STKPushRequest struct {
	Amount    int64
	MSISDN    string
	Reference string
}

type STKPushResult struct {
	Accepted     bool
	CheckoutID   string
	ResponseCode ResultCode
	Message      string
}

type TransactionStatus struct {
	ResultCode    ResultCode
	ResultDesc    string
	TransactionID string
}

// WebhookPayload is the asynchronous STK callback body.
type WebhookPayload struct {
	ResponseCode         ResultCode `json:"ResponseCode"`
	ResultCode           ResultCode `json:"ResultCode"`
	ResponseDescription  string     `json:"ResponseDescription,omitempty"`
	CheckoutRequestID    string     `json:"CheckoutRequestID"`
	TransactionID        string     `json:"TransactionID,omitempty"`
	TransactionAmount    any        `json:"TransactionAmount,omitempty"`
	TransactionReceipt   string     `json:"TransactionReceipt,omitempty"`
	TransactionReference string     `json:"TransactionReference,omitempty"`
}

// Code prefers ResponseCode and falls back to ResultCode.
func (p WebhookPayload) Code() ResultCode {
	if p.ResponseCode != "" {
		return p.ResponseCode
	}
	return p.ResultCode
}

// Reference returns the gateway transaction reference to store on the order.
func (p WebhookPayload) Reference() string {
	if p.TransactionID != "" {
		return p.TransactionID
	}
	return p.TransactionReceipt
}

type StatusQuery struct {
	TicketID   string
	CheckoutID string
}

// Email delivery outcomes reported next to a payment confirmation.
const (
	EmailSent    = "sent"
	EmailFailed  = "failed"
	EmailSkipped = "skipped"
)

type PaymentStatusResponse struct {
	Success       bool          `json:"success"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TicketID      string        `json:"ticket_id"`
	FullName      string        `json:"full_name,omitempty"`
	TicketType    string        `json:"ticket_type,omitempty"`
	Quantity      int           `json:"quantity,omitempty"`
	TotalAmount   int64         `json:"total_amount,omitempty"`
	EmailStatus   string        `json:"email_status,omitempty"`
	GatewayStatus string        `json:"gateway_status,omitempty"`
	Message       string        `json:"message,omitempty"`
}

type WebhookResponse struct {
	Success bool          `json:"success"`
	Status  PaymentStatus `json:"status,omitempty"`
	Message string        `json:"message,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// PaymentStatusEvent is pushed to clients waiting on an order.
type PaymentStatusEvent struct {
	TicketID      string        `json:"ticket_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Timestamp     time.Time     `json:"timestamp"`
}
