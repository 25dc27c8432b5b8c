package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
	"ms-tickets/internal/utils"

	"github.com/go-playground/validator/v10"
)

var (
	ErrOrderNotPaid      = errors.New("order is not paid")
	ErrEmailDelivery     = errors.New("ticket email could not be sent")
	ErrMissingIdentifier = errors.New("ticketId or checkoutId is required")
	ErrInvalidWebhook    = errors.New("invalid webhook payload")
	ErrPaymentFailed     = errors.New("payment already failed")
)

const maxCreateAttempts = 3

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByTicketID(ctx context.Context, ticketID string) (*models.Order, error)
	GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*models.Order, error)
	SetCheckoutID(ctx context.Context, id, checkoutID string) (bool, error)
	TransitionPaymentStatus(ctx context.Context, id string, to models.PaymentStatus, transactionID string) (bool, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	GetOrderStats(ctx context.Context) (models.OrderStats, error)
}

type PaymentGateway interface {
	Initiate(ctx context.Context, req models.STKPushRequest) (*models.STKPushResult, error)
	CheckStatus(ctx context.Context, checkoutID string) (*models.TransactionStatus, error)
}

type TicketIssuer interface {
	SendTicket(ctx context.Context, order *models.Order, resent bool) error
}

type KafkaPublisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderPaid(ctx context.Context, order *models.Order) error
	PublishOrderFailed(ctx context.Context, order *models.Order) error
}

type PollLock interface {
	LockPoll(ctx context.Context, ticketID, owner string) (bool, error)
	UnlockPoll(ctx context.Context, ticketID, owner string) error
}

type StatusNotifier interface {
	Publish(evt models.PaymentStatusEvent)
}

type Settings struct {
	Prices          map[string]int64
	DefaultType     string
	MaxPerOrder     int
	ReferencePrefix string
}

type OrderService struct {
	DB       DBLayer
	Gateway  PaymentGateway
	Issuer   TicketIssuer
	Kafka    KafkaPublisher
	Lock     PollLock
	Notifier StatusNotifier
	Settings Settings
	Logger   *logger.Logger

	// NewIdentifiers supplies ticket_id and qr_code for new orders.
	NewIdentifiers func() (ticketID, qrCode string)

	validate *validator.Validate
	now      func() time.Time
}

func NewOrderService(db DBLayer, gateway PaymentGateway, issuer TicketIssuer, kafka KafkaPublisher, settings Settings, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:             db,
		Gateway:        gateway,
		Issuer:         issuer,
		Kafka:          kafka,
		Settings:       settings,
		Logger:         log,
		NewIdentifiers: utils.GenerateTicketIdentifiers,
		validate:       newValidator(),
		now:            time.Now,
	}
}

// ---------------- ORDERS ----------------

// CreateOrder persists a pending order and asks the gateway to prompt the
// payer. A failed prompt leaves the order pending without a checkout id and
// is reported through STKStatus, not as an error.
func (s *OrderService) CreateOrder(ctx context.Context, req models.OrderRequest) (*models.CreateOrderResponse, error) {
	req, err := s.normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	unitPrice := s.Settings.Prices[req.TicketType]
	order := &models.Order{
		FullName:      req.FullName,
		Email:         req.Email,
		Phone:         req.Phone,
		TicketType:    req.TicketType,
		Quantity:      req.Quantity,
		TotalAmount:   unitPrice * int64(req.Quantity),
		PaymentStatus: models.PaymentPending,
	}

	for attempt := 1; ; attempt++ {
		order.ID = utils.GenerateOrderID()
		order.TicketID, order.QRCode = s.NewIdentifiers()
		order.CreatedAt = s.now().UTC()

		err = s.DB.CreateOrder(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrDuplicateOrder) || attempt >= maxCreateAttempts {
			return nil, fmt.Errorf("failed to create order: %w", err)
		}
		s.Logger.Warn("ORDER", fmt.Sprintf("Identifier collision on attempt %d, regenerating", attempt))
	}

	s.Logger.LogOrder("CREATE", order.TicketID, fmt.Sprintf("%d x %s for %d", order.Quantity, order.TicketType, order.TotalAmount))

	if err := s.Kafka.PublishOrderCreated(ctx, order); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Kafka publish error (order created): %v", err))
	}

	resp := &models.CreateOrderResponse{
		Success:     true,
		OrderID:     order.ID,
		TicketID:    order.TicketID,
		QRCode:      order.QRCode,
		TotalAmount: order.TotalAmount,
	}

	checkoutID, message, ok := s.initiatePayment(ctx, order)
	if ok {
		resp.CheckoutID = checkoutID
		resp.STKStatus = models.STKInitiated
		resp.Message = "STK push initiated. Please check your phone and complete the payment."
	} else {
		resp.STKStatus = models.STKInitiationFailed
		resp.Message = "Order created but the payment prompt could not be sent"
		if message != "" {
			resp.Message += ": " + message
		}
	}
	return resp, nil
}

func (s *OrderService) initiatePayment(ctx context.Context, order *models.Order) (string, string, bool) {
	result, err := s.Gateway.Initiate(ctx, models.STKPushRequest{
		Amount:    order.TotalAmount,
		MSISDN:    order.Phone,
		Reference: s.paymentReference(order.TicketID),
	})
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("STK push error for %s: %v", order.TicketID, err))
		return "", "", false
	}
	if !result.Accepted {
		s.Logger.LogPayment("STK_REJECTED", order.TicketID, fmt.Sprintf("code=%s %s", result.ResponseCode, result.Message))
		return "", result.Message, false
	}

	if _, err := s.DB.SetCheckoutID(ctx, order.ID, result.CheckoutID); err != nil {
		// the payer may still pay; the webhook cannot be matched without the id
		s.Logger.Error("DATABASE", fmt.Sprintf("Failed to store checkout id %s for %s: %v", result.CheckoutID, order.TicketID, err))
		return "", "", false
	}

	s.Logger.LogPayment("STK_SENT", order.TicketID, "checkout_id="+result.CheckoutID)
	return result.CheckoutID, result.Message, true
}

func (s *OrderService) paymentReference(ticketID string) string {
	if s.Settings.ReferencePrefix == "" {
		return ticketID
	}
	return s.Settings.ReferencePrefix + "-" + ticketID
}

func (s *OrderService) GetOrderByTicketID(ctx context.Context, ticketID string) (*models.Order, error) {
	return s.DB.GetOrderByTicketID(ctx, normalizeTicketID(ticketID))
}

func (s *OrderService) ListOrders(ctx context.Context) (*models.OrderList, error) {
	orders, err := s.DB.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	stats, err := s.DB.GetOrderStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load order stats: %w", err)
	}
	return &models.OrderList{Stats: stats, Orders: orders}, nil
}

// ResendTicket emails the ticket again. Unlike the confirmation path, a send
// failure here is returned because sending is the whole operation.
func (s *OrderService) ResendTicket(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != models.PaymentPaid {
		return order, ErrOrderNotPaid
	}

	if err := s.Issuer.SendTicket(ctx, order, true); err != nil {
		s.Logger.Error("EMAIL", fmt.Sprintf("Resend for %s failed: %v", order.TicketID, err))
		return order, fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}

	s.Logger.LogOrder("RESEND", order.TicketID, "Ticket re-sent to "+order.Email)
	return order, nil
}

func normalizeTicketID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
