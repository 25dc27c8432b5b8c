package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateTicketID returns 8 upper-case hex characters taken from a random
// UUID. Collisions are possible and are caught by the unique index.
func GenerateTicketID() string {
	id := uuid.New().String()
	return strings.ToUpper(id[:8])
}

// GenerateQRToken returns an unguessable token unrelated to the ticket id.
func GenerateQRToken() string {
	return uuid.New().String()
}

// GenerateTicketIdentifiers is the default identifier source for new orders.
func GenerateTicketIdentifiers() (ticketID, qrCode string) {
	return GenerateTicketID(), GenerateQRToken()
}

func GenerateOrderID() string {
	return uuid.New().String()
}
