package analytics_api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-tickets/internal/analytics"
	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	err error
}

func (s stubStore) GetSaleRows(context.Context, models.PaymentStatus) ([]analytics.SaleRow, error) {
	return []analytics.SaleRow{}, s.err
}

func (s stubStore) GetSalesByTicketType(context.Context, models.PaymentStatus) ([]analytics.TypeSalesData, error) {
	return []analytics.TypeSalesData{{TicketType: "vip", Orders: 2, PaidOrders: 2, Tickets: 2, Revenue: 10000, Admitted: 1, PaidAdmitted: 1}}, s.err
}

func serve(t *testing.T, store analytics.Store, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(analytics.NewService(store), logger.NewTestLogger(nil)).RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGetSalesAnalytics(t *testing.T) {
	rec := serve(t, stubStore{}, "/admin/analytics?status=paid")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "paid", body["status"])
	assert.Equal(t, float64(10000), body["total_revenue"])
	assert.Equal(t, 0.5, body["admit_rate"])
}

func TestGetSalesAnalytics_BadStatus(t *testing.T) {
	rec := serve(t, stubStore{}, "/admin/analytics?status=refunded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSalesAnalytics_StoreError(t *testing.T) {
	rec := serve(t, stubStore{err: errors.New("db down")}, "/admin/analytics")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}
