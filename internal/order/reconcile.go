package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-tickets/internal/models"

	"github.com/google/uuid"
)

// M-Pesa result codes as relayed by the gateway.
const (
	codeSuccess        = "0"
	codeGenericFailure = "1"
	codeCancelled      = "1032"
	codeTimeout        = "1037"
	codeWrongPIN       = "2001"
)

// ResolveStatus maps a gateway result code to the status the order should
// move to. Unknown codes keep the order pending.
func ResolveStatus(code models.ResultCode) models.PaymentStatus {
	switch strings.TrimSpace(string(code)) {
	case codeSuccess:
		return models.PaymentPaid
	case codeGenericFailure, codeCancelled, codeTimeout, codeWrongPIN:
		return models.PaymentFailed
	default:
		return models.PaymentPending
	}
}

// CheckPaymentStatus returns the order's status, asking the gateway only when
// the order is still pending and has a checkout id.
func (s *OrderService) CheckPaymentStatus(ctx context.Context, q models.StatusQuery) (*models.PaymentStatusResponse, error) {
	order, err := s.findForStatus(ctx, q)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus.IsTerminal() || order.CheckoutID == "" {
		return statusResponse(order, ""), nil
	}

	if s.Lock != nil {
		owner := uuid.New().String()
		locked, err := s.Lock.LockPoll(ctx, order.TicketID, owner)
		switch {
		case err != nil:
			s.Logger.Warn("REDIS", fmt.Sprintf("Poll lock unavailable for %s, polling without it: %v", order.TicketID, err))
		case !locked:
			return statusResponse(order, ""), nil
		default:
			defer func() {
				if err := s.Lock.UnlockPoll(context.WithoutCancel(ctx), order.TicketID, owner); err != nil {
					s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release poll lock for %s: %v", order.TicketID, err))
				}
			}()
		}
	}

	status, err := s.Gateway.CheckStatus(ctx, order.CheckoutID)
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Status check failed for %s: %v", order.TicketID, err))
		resp := statusResponse(order, "")
		resp.GatewayStatus = "unavailable"
		return resp, nil
	}

	s.Logger.LogPayment("POLL", order.TicketID, fmt.Sprintf("code=%s %s", status.ResultCode, status.ResultDesc))

	settled, emailStatus, err := s.applyGatewayResult(ctx, order, status.ResultCode, status.TransactionID)
	if err != nil {
		return nil, err
	}
	return statusResponse(settled, emailStatus), nil
}

// HandleCallback applies an asynchronous gateway notification. Replays of an
// already settled order are acknowledged without side effects.
func (s *OrderService) HandleCallback(ctx context.Context, payload models.WebhookPayload) (*models.WebhookResponse, error) {
	checkoutID := strings.TrimSpace(payload.CheckoutRequestID)
	if checkoutID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrInvalidWebhook)
	}
	if payload.Code() == "" {
		return nil, fmt.Errorf("%w: missing result code", ErrInvalidWebhook)
	}

	order, err := s.DB.GetOrderByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, err
	}

	s.Logger.LogPayment("WEBHOOK", order.TicketID, fmt.Sprintf("code=%s checkout=%s", payload.Code(), checkoutID))

	if order.PaymentStatus.IsTerminal() {
		return &models.WebhookResponse{Success: true, Status: order.PaymentStatus, Message: "already_processed"}, nil
	}

	settled, emailStatus, err := s.applyGatewayResult(ctx, order, payload.Code(), payload.Reference())
	if err != nil {
		return nil, err
	}

	resp := &models.WebhookResponse{Success: true, Status: settled.PaymentStatus}
	switch {
	case emailStatus != "":
		resp.Message = "email_" + emailStatus
	case settled.PaymentStatus == models.PaymentPending:
		resp.Message = "no_transition"
	case settled.PaymentStatus != ResolveStatus(payload.Code()):
		resp.Message = "already_processed"
	}
	return resp, nil
}

// ConfirmPayment marks a pending order paid on staff say-so, for payments whose
// callback never arrived. It goes through the same guarded transition as the
// gateway paths, so the ticket email still goes out once.
func (s *OrderService) ConfirmPayment(ctx context.Context, ticketID, transactionID string) (*models.PaymentStatusResponse, error) {
	ticketID = normalizeTicketID(ticketID)
	if ticketID == "" {
		return nil, ErrMissingIdentifier
	}

	order, err := s.DB.GetOrderByTicketID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	switch order.PaymentStatus {
	case models.PaymentPaid:
		resp := statusResponse(order, "")
		resp.Message = "already_paid"
		return resp, nil
	case models.PaymentFailed:
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, order.TicketID)
	}

	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		transactionID = fmt.Sprintf("MANUAL_%d", s.now().UnixMilli())
	}

	settled, emailStatus, err := s.applyGatewayResult(ctx, order, codeSuccess, transactionID)
	if err != nil {
		return nil, err
	}
	if settled.PaymentStatus == models.PaymentFailed {
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, settled.TicketID)
	}

	resp := statusResponse(settled, emailStatus)
	if emailStatus == "" {
		resp.Message = "already_paid"
	} else {
		resp.Message = "confirmed"
		s.Logger.LogPayment("MANUAL_CONFIRM", settled.TicketID, "transaction_id="+transactionID)
	}
	return resp, nil
}

// applyGatewayResult is the single place where a gateway outcome changes an
// order. Only the caller whose guarded update wins runs the side effects, so
// concurrent poll and webhook deliveries send one email between them.
func (s *OrderService) applyGatewayResult(ctx context.Context, order *models.Order, code models.ResultCode, transactionID string) (*models.Order, string, error) {
	to := ResolveStatus(code)
	if to == models.PaymentPending {
		return order, "", nil
	}

	won, err := s.DB.TransitionPaymentStatus(ctx, order.ID, to, transactionID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to update payment status: %w", err)
	}

	settled, err := s.DB.GetOrderByID(ctx, order.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to reload order: %w", err)
	}
	if !won {
		s.Logger.Debug("PAYMENT", fmt.Sprintf("%s already settled as %s", settled.TicketID, settled.PaymentStatus))
		return settled, "", nil
	}

	s.Logger.LogPayment("SETTLED", settled.TicketID, string(settled.PaymentStatus))
	return settled, s.afterTransition(ctx, settled), nil
}

// afterTransition runs once per settled order. Failures are logged and never
// undo the transition.
func (s *OrderService) afterTransition(ctx context.Context, order *models.Order) string {
	ctx = context.WithoutCancel(ctx)

	if s.Notifier != nil {
		s.Notifier.Publish(models.PaymentStatusEvent{
			TicketID:      order.TicketID,
			PaymentStatus: order.PaymentStatus,
			Timestamp:     s.now().UTC(),
		})
	}

	if order.PaymentStatus == models.PaymentFailed {
		if err := s.Kafka.PublishOrderFailed(ctx, order); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Kafka publish error (order failed): %v", err))
		}
		return ""
	}

	if err := s.Kafka.PublishOrderPaid(ctx, order); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Kafka publish error (order paid): %v", err))
	}

	if err := s.Issuer.SendTicket(ctx, order, false); err != nil {
		s.Logger.Error("EMAIL", fmt.Sprintf("Ticket email for %s failed: %v", order.TicketID, err))
		return models.EmailFailed
	}
	return models.EmailSent
}

func (s *OrderService) findForStatus(ctx context.Context, q models.StatusQuery) (*models.Order, error) {
	if ticketID := normalizeTicketID(q.TicketID); ticketID != "" {
		return s.DB.GetOrderByTicketID(ctx, ticketID)
	}
	if checkoutID := strings.TrimSpace(q.CheckoutID); checkoutID != "" {
		return s.DB.GetOrderByCheckoutID(ctx, checkoutID)
	}
	return nil, ErrMissingIdentifier
}

func statusResponse(order *models.Order, emailStatus string) *models.PaymentStatusResponse {
	resp := &models.PaymentStatusResponse{
		Success:       true,
		PaymentStatus: order.PaymentStatus,
		TicketID:      order.TicketID,
		EmailStatus:   emailStatus,
	}
	if order.PaymentStatus == models.PaymentPaid {
		resp.FullName = order.FullName
		resp.TicketType = order.TicketType
		resp.Quantity = order.Quantity
		resp.TotalAmount = order.TotalAmount
	}
	return resp
}

// IsNotFound reports whether err means the order does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrOrderNotFound)
}
