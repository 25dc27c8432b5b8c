package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-tickets/internal/config"
	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
	qr "ms-tickets/internal/tickets/qr_genrator"
	"ms-tickets/internal/tickets/template"
)

// Issuer renders a paid order into a ticket email and hands it to a Sender.
type Issuer struct {
	sender  Sender
	qr      *qr.QRGenerator
	pdf     *template.TicketPDFGenerator
	event   config.EventConfig
	from    string
	timeout time.Duration
	logger  *logger.Logger
}

func NewIssuer(sender Sender, cfg config.EmailConfig, event config.EventConfig, log *logger.Logger) *Issuer {
	return &Issuer{
		sender:  sender,
		qr:      qr.NewQRGenerator(cfg.QRSize),
		pdf:     template.NewTicketPDFGenerator(cfg.FontPath, event),
		event:   event,
		from:    cfg.From,
		timeout: cfg.SendTimeout,
		logger:  log,
	}
}

// SendTicket emails the ticket for order. The QR code encodes order.QRCode.
func (i *Issuer) SendTicket(ctx context.Context, order *models.Order, resent bool) error {
	if order == nil {
		return errors.New("nil order")
	}

	dataURI, png, err := i.qr.DataURI(order.QRCode)
	if err != nil {
		return fmt.Errorf("generate qr: %w", err)
	}

	subject, body, err := template.RenderTicketEmail(order, i.event, dataURI, resent)
	if err != nil {
		return err
	}

	msg := Message{
		From:    i.from,
		To:      order.Email,
		Subject: subject,
		HTML:    body,
		Attachments: []Attachment{{
			Filename:    fmt.Sprintf("ticket-%s-qr.png", order.TicketID),
			ContentType: "image/png",
			Content:     png,
		}},
	}

	if i.pdf.Enabled() {
		doc, err := i.pdf.Generate(order, png)
		if err != nil {
			i.logger.Warn("EMAIL", fmt.Sprintf("PDF ticket for %s skipped: %v", order.TicketID, err))
		} else {
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    fmt.Sprintf("ticket-%s.pdf", order.TicketID),
				ContentType: "application/pdf",
				Content:     doc,
			})
		}
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	if err := i.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send ticket %s: %w", order.TicketID, err)
	}

	i.logger.LogOrder("EMAIL", order.TicketID, "Ticket sent to "+order.Email)
	return nil
}
