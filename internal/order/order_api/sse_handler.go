package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-tickets/internal/models"
	"ms-tickets/internal/utils"

	"github.com/go-chi/chi/v5"
)

// StatusEvents streams payment status changes for one order until it settles,
// the client goes away, or StreamTimeout elapses.
func (h *Handler) StatusEvents(w http.ResponseWriter, r *http.Request) {
	ticketID := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticketId")))
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// subscribe before reading the order so a transition in between is not lost
	events := h.Events.Subscribe(ctx, ticketID)

	o, err := h.OrderService.GetOrderByTicketID(ctx, ticketID)
	if err != nil {
		h.writeLookupError(w, "StatusEvents", err)
		return
	}

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	h.Logger.Debug("SSE", "Client subscribed to "+ticketID)

	h.writeEvent(w, "status", models.PaymentStatusEvent{
		TicketID:      ticketID,
		PaymentStatus: o.PaymentStatus,
		Timestamp:     time.Now().UTC(),
	})
	flusher.Flush()
	if o.PaymentStatus.IsTerminal() {
		return
	}

	timeout := time.NewTimer(h.StreamTimeout)
	defer timeout.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			h.writeEvent(w, "status", evt)
			flusher.Flush()
			if evt.PaymentStatus.IsTerminal() {
				return
			}
		case <-timeout.C:
			fmt.Fprint(w, "event: timeout\ndata: {}\n\n")
			flusher.Flush()
			return
		case <-ctx.Done():
			h.Logger.Debug("SSE", "Client disconnected from "+ticketID)
			return
		}
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize %s event: %v", name, err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
