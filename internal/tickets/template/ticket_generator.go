package template

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"ms-tickets/internal/config"
	"ms-tickets/internal/models"

	"github.com/signintech/gopdf"
)

var ErrNoFont = errors.New("ticket font not configured")

// TicketPDFGenerator lays out a one-page printable ticket.
type TicketPDFGenerator struct {
	fontPath string
	event    config.EventConfig
}

func NewTicketPDFGenerator(fontPath string, event config.EventConfig) *TicketPDFGenerator {
	return &TicketPDFGenerator{fontPath: fontPath, event: event}
}

func (g *TicketPDFGenerator) Enabled() bool {
	return g != nil && g.fontPath != ""
}

func (g *TicketPDFGenerator) Generate(order *models.Order, qrCode []byte) ([]byte, error) {
	if !g.Enabled() {
		return nil, ErrNoFont
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("ticket", g.fontPath); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont("ticket", "", 20); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	pdf.SetX(40)
	pdf.SetY(40)
	pdf.Cell(nil, strings.ToUpper(g.event.Name))
	if g.event.Tagline != "" {
		pdf.Br(26)
		pdf.SetX(40)
		pdf.Cell(nil, g.event.Tagline)
	}

	if err := pdf.SetFont("ticket", "", 13); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetY(110)
	addTicketInfo(pdf, order, g.event)

	if len(qrCode) > 0 {
		pdf.SetY(pdf.GetY() + 20)
		addQRCode(pdf, qrCode)
	}

	pdf.SetX(40)
	pdf.SetY(760)
	pdf.Cell(nil, "Present this ticket (printed or on your phone) at the entrance.")

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func addTicketInfo(pdf *gopdf.GoPdf, order *models.Order, event config.EventConfig) {
	info := []struct {
		Label string
		Value string
	}{
		{"Ticket ID", order.TicketID},
		{"Name", order.FullName},
		{"Ticket Type", TicketTypeLabel(order.TicketType)},
		{"Quantity", fmt.Sprintf("%d", order.Quantity)},
		{"Total Paid", FormatAmount(event.Currency, order.TotalAmount)},
		{"M-Pesa Ref", order.TransactionID},
		{"Date", event.Date},
		{"Venue", event.Venue},
	}

	for _, item := range info {
		if item.Value == "" {
			continue
		}
		pdf.SetX(40)
		pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(22)
	}
}

func addQRCode(pdf *gopdf.GoPdf, qrCode []byte) {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		pdf.Cell(nil, "Failed to load QR code")
		return
	}

	rect := &gopdf.Rect{W: 180, H: 180}
	if err := pdf.ImageFrom(img, 40, pdf.GetY(), rect); err != nil {
		pdf.Cell(nil, "Failed to draw QR code")
	}
}

// TicketTypeLabel turns "vip" into "VIP" and "couple" into "Couple".
func TicketTypeLabel(t string) string {
	switch t {
	case "":
		return ""
	case "vip":
		return "VIP"
	default:
		return strings.ToUpper(t[:1]) + t[1:]
	}
}

// FormatAmount renders 4500 as "KES 4,500".
func FormatAmount(currency string, amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String()
	if currency == "" {
		return out
	}
	return currency + " " + out
}
