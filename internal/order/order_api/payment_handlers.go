package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-tickets/internal/models"
	"ms-tickets/internal/order"
	"ms-tickets/internal/utils"

	"github.com/go-chi/chi/v5"
)

// PaymentStatus polls the gateway for a pending order.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	q := models.StatusQuery{
		TicketID:   r.URL.Query().Get("ticketId"),
		CheckoutID: r.URL.Query().Get("checkoutId"),
	}

	resp, err := h.OrderService.CheckPaymentStatus(r.Context(), q)
	if err != nil {
		h.writeLookupError(w, "PaymentStatus", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

// PaymentWebhook always answers 200 so the gateway does not keep retrying a
// payload we will never accept.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var payload models.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("PaymentWebhook: undecodable body: %v", err))
		utils.WriteJSON(w, http.StatusOK, models.WebhookResponse{Error: "invalid JSON payload"})
		return
	}

	resp, err := h.OrderService.HandleCallback(r.Context(), payload)
	if err != nil {
		msg := "internal error"
		switch {
		case errors.Is(err, order.ErrInvalidWebhook):
			msg = err.Error()
		case order.IsNotFound(err):
			msg = "order not found"
		default:
			h.Logger.Error("API", fmt.Sprintf("PaymentWebhook: %v", err))
		}
		h.Logger.Warn("PAYMENT", fmt.Sprintf("Webhook for checkout %q not applied: %v", payload.CheckoutRequestID, err))
		utils.WriteJSON(w, http.StatusOK, models.WebhookResponse{Error: msg})
		return
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

type resendRequest struct {
	OrderID string `json:"orderId"`
}

type resendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) ResendTicket(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		utils.WriteError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	o, err := h.OrderService.ResendTicket(r.Context(), req.OrderID)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, resendResponse{Success: true, Message: "Ticket re-sent to " + o.Email})
	case order.IsNotFound(err):
		utils.WriteError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrOrderNotPaid):
		utils.WriteError(w, http.StatusConflict, "order is not paid")
	case errors.Is(err, order.ErrEmailDelivery):
		utils.WriteError(w, http.StatusBadGateway, "failed to send ticket email")
	default:
		h.Logger.Error("API", fmt.Sprintf("ResendTicket: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

type confirmPaymentRequest struct {
	TransactionID string `json:"transactionId"`
}

// ConfirmPayment lets staff settle an order whose gateway callback was lost.
// The body is optional; without a transactionId a MANUAL_ reference is stored.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.OrderService.ConfirmPayment(r.Context(), chi.URLParam(r, "ticketId"), req.TransactionID)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, resp)
	case errors.Is(err, order.ErrPaymentFailed):
		utils.WriteError(w, http.StatusConflict, "payment already failed; the order cannot be confirmed")
	default:
		h.writeLookupError(w, "ConfirmPayment", err)
	}
}
