package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
	"ms-tickets/internal/order"
	"ms-tickets/internal/utils"

	"github.com/go-chi/chi/v5"
)

// OrderService is the part of order.OrderService the HTTP layer drives.
type OrderService interface {
	CreateOrder(ctx context.Context, req models.OrderRequest) (*models.CreateOrderResponse, error)
	GetOrderByTicketID(ctx context.Context, ticketID string) (*models.Order, error)
	ListOrders(ctx context.Context) (*models.OrderList, error)
	ResendTicket(ctx context.Context, orderID string) (*models.Order, error)
	CheckPaymentStatus(ctx context.Context, q models.StatusQuery) (*models.PaymentStatusResponse, error)
	HandleCallback(ctx context.Context, payload models.WebhookPayload) (*models.WebhookResponse, error)
	ConfirmPayment(ctx context.Context, ticketID, transactionID string) (*models.PaymentStatusResponse, error)
}

type StatusSubscriber interface {
	Subscribe(ctx context.Context, ticketID string) <-chan models.PaymentStatusEvent
}

type Handler struct {
	OrderService  OrderService
	Events        StatusSubscriber
	StreamTimeout time.Duration
	Logger        *logger.Logger
}

func NewHandler(orderService OrderService, events StatusSubscriber, streamTimeout time.Duration, log *logger.Logger) *Handler {
	if streamTimeout <= 0 {
		streamTimeout = 2 * time.Minute
	}
	return &Handler{
		OrderService:  orderService,
		Events:        events,
		StreamTimeout: streamTimeout,
		Logger:        log,
	}
}

type orderResponse struct {
	Success bool          `json:"success"`
	Order   *models.Order `json:"order"`
}

type orderListResponse struct {
	Success bool `json:"success"`
	*models.OrderList
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateOrder: failed to decode request body: %v", err))
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.OrderService.CreateOrder(r.Context(), req)
	if err != nil {
		var verr *order.ValidationError
		if errors.As(err, &verr) {
			utils.WriteFieldErrors(w, http.StatusBadRequest, verr.Error(), verr.Fields)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, resp)
}

// GetOrder serves both /orders/{ticketId} and /orders?ticketId=.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	if ticketID == "" {
		ticketID = r.URL.Query().Get("ticketId")
	}
	if strings.TrimSpace(ticketID) == "" {
		utils.WriteError(w, http.StatusBadRequest, "ticketId is required")
		return
	}

	o, err := h.OrderService.GetOrderByTicketID(r.Context(), ticketID)
	if err != nil {
		h.writeLookupError(w, "GetOrder", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, orderResponse{Success: true, Order: o})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.OrderService.ListOrders(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListOrders: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	utils.WriteJSON(w, http.StatusOK, orderListResponse{Success: true, OrderList: list})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, op string, err error) {
	switch {
	case order.IsNotFound(err):
		utils.WriteError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrMissingIdentifier):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
