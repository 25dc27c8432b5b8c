package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
	tickets "ms-tickets/internal/tickets/service"
	"ms-tickets/internal/utils"
)

type TicketVerifier interface {
	Lookup(ctx context.Context, id models.TicketIdentifier) (*models.Order, error)
	VerifyAndMark(ctx context.Context, id models.TicketIdentifier, mark bool) (*models.VerificationResult, error)
}

type Handler struct {
	TicketService TicketVerifier
	Logger        *logger.Logger
}

func NewHandler(ticketService TicketVerifier, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Logger: log}
}

type verifyRequest struct {
	models.TicketIdentifier
	Mark bool `json:"mark"`
}

// Verify is used by the door scanner. Without mark it only previews.
// Expected POST body: {"qr": "...", "mark": true} or {"ticketId": "...", "mark": true}
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.TicketService.VerifyAndMark(r.Context(), req.TicketIdentifier, req.Mark)
	if errors.Is(err, tickets.ErrTicketNotPaid) && res != nil {
		utils.WriteJSON(w, http.StatusConflict, struct {
			*models.VerificationResult
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{res, false, "ticket is not paid"})
		return
	}
	if err != nil {
		h.writeError(w, "Verify", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	var id models.TicketIdentifier
	if err := json.NewDecoder(r.Body).Decode(&id); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.TicketService.Lookup(r.Context(), id)
	if err != nil {
		h.writeError(w, "Lookup", err)
		return
	}

	status := models.ScanNotScanned
	if o.Scanned {
		status = models.ScanAlreadyScanned
	}
	utils.WriteJSON(w, http.StatusOK, models.LookupResult{
		Success: true,
		Status:  status,
		Ticket:  models.NewTicketView(o),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, tickets.ErrMissingIdentifier):
		utils.WriteError(w, http.StatusBadRequest, "missing qr or ticketId")
	case errors.Is(err, tickets.ErrTicketNotFound):
		utils.WriteError(w, http.StatusNotFound, "ticket not found")
	case errors.Is(err, tickets.ErrTicketNotPaid):
		utils.WriteError(w, http.StatusConflict, "ticket is not paid")
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
