package analytics_api

import (
	"fmt"
	"net/http"

	"ms-tickets/internal/analytics"
	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
	"ms-tickets/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  logger,
	}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/admin/analytics", h.GetSalesAnalytics)
}

type analyticsResponse struct {
	Success bool `json:"success"`
	*analytics.SalesAnalytics
}

// GetSalesAnalytics handles GET /admin/analytics?status=paid
func (h *Handler) GetSalesAnalytics(w http.ResponseWriter, r *http.Request) {
	status := models.PaymentStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.PaymentPending, models.PaymentPaid, models.PaymentFailed:
	default:
		utils.WriteError(w, http.StatusBadRequest, "status must be pending, paid or failed")
		return
	}

	result, err := h.Service.GetSalesAnalytics(r.Context(), status)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Failed to build sales analytics: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to load analytics")
		return
	}

	utils.WriteJSON(w, http.StatusOK, analyticsResponse{Success: true, SalesAnalytics: result})
}
