package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
)

var (
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrTicketNotPaid     = errors.New("ticket is not paid")
	ErrMissingIdentifier = errors.New("qr or ticketId is required")
)

type TicketDBLayer interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByTicketID(ctx context.Context, ticketID string) (*models.Order, error)
	GetOrderByQRCode(ctx context.Context, qrCode string) (*models.Order, error)
	MarkScanned(ctx context.Context, id string, at time.Time) (bool, error)
}

type ScanPublisher interface {
	PublishTicketScanned(ctx context.Context, order *models.Order) error
}

// TicketService answers door-staff lookups and records entry scans.
type TicketService struct {
	DB              TicketDBLayer
	Kafka           ScanPublisher
	AllowUnpaidScan bool
	Logger          *logger.Logger

	now func() time.Time
}

func NewTicketService(db TicketDBLayer, kafka ScanPublisher, allowUnpaidScan bool, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:              db,
		Kafka:           kafka,
		AllowUnpaidScan: allowUnpaidScan,
		Logger:          log,
		now:             time.Now,
	}
}

// Lookup resolves a ticket id or QR token without side effects. A ticket id
// takes precedence when both are supplied.
func (s *TicketService) Lookup(ctx context.Context, id models.TicketIdentifier) (*models.Order, error) {
	ticketID := strings.ToUpper(strings.TrimSpace(id.TicketID))
	qr := strings.TrimSpace(id.QR)
	if qr == "" {
		qr = strings.TrimSpace(id.QRCode)
	}

	var (
		order *models.Order
		err   error
	)
	switch {
	case ticketID != "":
		order, err = s.DB.GetOrderByTicketID(ctx, ticketID)
	case qr != "":
		order, err = s.DB.GetOrderByQRCode(ctx, qr)
	default:
		return nil, ErrMissingIdentifier
	}

	if errors.Is(err, models.ErrOrderNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket lookup failed: %w", err)
	}
	return order, nil
}

// VerifyAndMark previews the scan state when mark is false. With mark set it
// records the first scan; every later or concurrent attempt reports
// already_scanned with the original timestamp.
func (s *TicketService) VerifyAndMark(ctx context.Context, id models.TicketIdentifier, mark bool) (*models.VerificationResult, error) {
	order, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	if !mark {
		return s.result(order, false), nil
	}

	if order.Scanned {
		s.Logger.LogScan("REPEAT", order.TicketID, "already scanned")
		return s.result(order, false), nil
	}

	if !s.AllowUnpaidScan && order.PaymentStatus != models.PaymentPaid {
		s.Logger.LogSecurity("UNPAID_SCAN", fmt.Sprintf("rejected scan of %s (%s)", order.TicketID, order.PaymentStatus))
		return s.result(order, false), ErrTicketNotPaid
	}

	won, err := s.DB.MarkScanned(ctx, order.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to mark ticket scanned: %w", err)
	}

	// reload so both winner and loser report the stored scanned_at
	order, err = s.DB.GetOrderByID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload ticket: %w", err)
	}

	if !won {
		s.Logger.LogScan("REPEAT", order.TicketID, "lost concurrent scan")
		return s.result(order, false), nil
	}

	s.Logger.LogScan("ADMIT", order.TicketID, fmt.Sprintf("%s x%d (%s)", order.TicketType, order.Quantity, order.PaymentStatus))
	if err := s.Kafka.PublishTicketScanned(ctx, order); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Kafka publish error (ticket scanned): %v", err))
	}
	return s.result(order, true), nil
}

func (s *TicketService) result(order *models.Order, fresh bool) *models.VerificationResult {
	res := &models.VerificationResult{
		Success: true,
		Ticket:  models.NewTicketView(order),
	}
	switch {
	case fresh:
		res.Status = models.ScanScanned
		res.Message = "Ticket scanned, admit guest"
		res.ScannedAt = order.ScannedAt
	case order.Scanned:
		res.Status = models.ScanAlreadyScanned
		res.Message = "Ticket was already scanned"
		res.ScannedAt = order.ScannedAt
	default:
		res.Status = models.ScanNotScanned
		res.Message = "Ticket has not been scanned"
	}
	if order.PaymentStatus != models.PaymentPaid {
		res.Message += " (payment " + string(order.PaymentStatus) + ")"
	}
	return res
}
