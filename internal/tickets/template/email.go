package template

import (
	"bytes"
	"fmt"
	"html/template"

	"ms-tickets/internal/config"
	"ms-tickets/internal/models"
)

type emailData struct {
	EventName  string
	Tagline    string
	Date       string
	Venue      string
	VenueURL   string
	TicketID   string
	FullName   string
	TicketType string
	Quantity   int
	Total      string
	Reference  string
	QRImage    template.URL
	Resent     bool
}

var emailTemplate = template.Must(template.New("ticket").Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background:#1a0a2e;font-family:Arial,sans-serif;color:#ffffff;">
  <div style="max-width:600px;margin:0 auto;padding:32px 24px;">
    <h1 style="margin:0;color:#e0b0ff;">{{.EventName}}</h1>
    {{if .Tagline}}<p style="margin:4px 0 24px;color:#c9a0dc;">{{.Tagline}}</p>{{end}}
    {{if .Resent}}<p style="color:#ffd479;">This is a copy of your ticket, sent again at your request.</p>{{end}}
    <p>Hi {{.FullName}}, your payment was received. Here is your ticket.</p>
    <table style="width:100%;border-collapse:collapse;margin:16px 0;">
      <tr><td>Ticket ID</td><td style="font-weight:bold;letter-spacing:2px;">{{.TicketID}}</td></tr>
      <tr><td>Name</td><td>{{.FullName}}</td></tr>
      <tr><td>Ticket Type</td><td>{{.TicketType}}</td></tr>
      <tr><td>Quantity</td><td>{{.Quantity}}</td></tr>
      <tr><td>Total Paid</td><td>{{.Total}}</td></tr>
      {{if .Reference}}<tr><td>M-Pesa Ref</td><td>{{.Reference}}</td></tr>{{end}}
    </table>
    <div style="text-align:center;background:#ffffff;padding:16px;border-radius:12px;">
      <img src="{{.QRImage}}" alt="Ticket QR code" width="220" height="220" />
      <p style="color:#1a0a2e;margin:8px 0 0;">Show this QR code at the entrance</p>
    </div>
    <h3 style="color:#e0b0ff;">Event details</h3>
    <p>{{.Date}}<br/>{{if .VenueURL}}<a href="{{.VenueURL}}" style="color:#e0b0ff;">{{.Venue}}</a>{{else}}{{.Venue}}{{end}}</p>
  </div>
</body>
</html>
`))

// RenderTicketEmail returns the subject and HTML body for an order's ticket.
// qrDataURI must be a data: URI produced from the order's QR token.
func RenderTicketEmail(order *models.Order, event config.EventConfig, qrDataURI string, resent bool) (string, string, error) {
	data := emailData{
		EventName:  event.Name,
		Tagline:    event.Tagline,
		Date:       event.Date,
		Venue:      event.Venue,
		VenueURL:   event.VenueURL,
		TicketID:   order.TicketID,
		FullName:   order.FullName,
		TicketType: TicketTypeLabel(order.TicketType),
		Quantity:   order.Quantity,
		Total:      FormatAmount(event.Currency, order.TotalAmount),
		Reference:  order.TransactionID,
		QRImage:    template.URL(qrDataURI),
		Resent:     resent,
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render ticket email: %w", err)
	}

	subject := fmt.Sprintf("Your Ticket for %s - %s", event.Name, order.TicketID)
	return subject, buf.String(), nil
}
