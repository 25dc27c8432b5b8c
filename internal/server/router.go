package server

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	analytics_api "ms-tickets/internal/analytics/api"
	"ms-tickets/internal/auth"
	"ms-tickets/internal/config"
	"ms-tickets/internal/logger"
	"ms-tickets/internal/order/order_api"
	"ms-tickets/internal/tickets/ticket_api"
	"ms-tickets/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handlers struct {
	Orders    *order_api.Handler
	Tickets   *ticket_api.Handler
	Login     *auth.LoginHandler
	Analytics *analytics_api.Handler
	AdminAuth func(http.Handler) http.Handler
	Health    map[string]HealthCheck
}

func NewRouter(h Handlers, cfg config.ServerConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	adminAuth := h.AdminAuth
	if adminAuth == nil {
		adminAuth = auth.Middleware(log)
	}

	// --- Public Routes ---
	r.Get("/health", healthHandler(h.Health))
	r.Post("/orders", h.Orders.CreateOrder)
	r.Get("/orders", h.Orders.GetOrder)
	r.Get("/orders/{ticketId}", h.Orders.GetOrder)
	r.Get("/orders/{ticketId}/events", h.Orders.StatusEvents)
	r.Get("/payment-status", h.Orders.PaymentStatus)
	r.Post("/payment-webhook", h.Orders.PaymentWebhook)
	r.Post("/admin/login", h.Login.Login)
	log.Info("ROUTER", "Public order and payment routes registered")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(adminAuth)
		r.Post("/verify", h.Tickets.Verify)
		r.Post("/lookup", h.Tickets.Lookup)
		r.Post("/resend-ticket", h.Orders.ResendTicket)
		r.Get("/admin/orders", h.Orders.ListOrders)
		r.Post("/admin/orders/{ticketId}/confirm-payment", h.Orders.ConfirmPayment)
		if h.Analytics != nil {
			h.Analytics.RegisterRoutes(r)
		}
	})
	log.Info("ROUTER", "Admin routes registered")

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", status), time.Since(start).Round(time.Millisecond).String())
		})
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: map[string]string{}}
		code := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		utils.WriteJSON(w, code, resp)
	}
}
