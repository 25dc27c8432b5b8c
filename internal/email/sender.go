package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-tickets/internal/config"
	"ms-tickets/internal/logger"

	"github.com/resend/resend-go/v2"
)

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Message struct {
	From        string
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Sender delivers a single message. Implementations must not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender picks a provider from EMAIL_PROVIDER. Anything other than
// "resend" with an API key falls back to logging.
func NewSender(cfg config.EmailConfig, log *logger.Logger) Sender {
	if strings.EqualFold(cfg.Provider, "resend") {
		if cfg.APIKey == "" {
			log.Warn("EMAIL", "EMAIL_PROVIDER=resend but RESEND_API_KEY is empty, emails will only be logged")
			return &LogSender{Logger: log}
		}
		return NewResendSender(resend.NewClient(cfg.APIKey))
	}
	return &LogSender{Logger: log}
}

type ResendSender struct {
	client *resend.Client
}

func NewResendSender(client *resend.Client) *ResendSender {
	return &ResendSender{client: client}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("email recipient is empty")
	}

	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Content:  a.Content,
			Filename: a.Filename,
		})
	}

	resp, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	if resp == nil || resp.Id == "" {
		return errors.New("resend: empty message id")
	}
	return nil
}

// LogSender writes the envelope to the log instead of sending.
type LogSender struct {
	Logger *logger.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.Info("EMAIL", fmt.Sprintf("to=%s subject=%q attachments=%d (not sent, log provider)",
		msg.To, msg.Subject, len(msg.Attachments)))
	return nil
}
