package sse

import (
	"context"
	"sync"

	"ms-tickets/internal/models"
)

// PaymentEventEmitter fans payment status changes out to clients waiting on
// a ticket. Subscriptions live in this process only.
type PaymentEventEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan models.PaymentStatusEvent
}

func NewPaymentEventEmitter() *PaymentEventEmitter {
	return &PaymentEventEmitter{
		clients: make(map[string][]chan models.PaymentStatusEvent),
	}
}

// Subscribe registers a client for ticketID until ctx is done, after which
// the returned channel is closed.
func (e *PaymentEventEmitter) Subscribe(ctx context.Context, ticketID string) <-chan models.PaymentStatusEvent {
	clientChan := make(chan models.PaymentStatusEvent, 4)

	e.mu.Lock()
	e.clients[ticketID] = append(e.clients[ticketID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(ticketID, clientChan)
	}()

	return clientChan
}

// Publish never blocks; a client with a full buffer misses the event.
func (e *PaymentEventEmitter) Publish(evt models.PaymentStatusEvent) {
	// sends happen under the read lock so remove cannot close a channel mid-send
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[evt.TicketID] {
		select {
		case clientChan <- evt:
		default:
		}
	}
}

func (e *PaymentEventEmitter) remove(ticketID string, clientChan chan models.PaymentStatusEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[ticketID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[ticketID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.clients[ticketID]) == 0 {
		delete(e.clients, ticketID)
	}
}

func (e *PaymentEventEmitter) ClientCount(ticketID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[ticketID])
}
