package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/market-checkout/internal/app/handlers"
	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/linemk/market-checkout/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/market-checkout/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderID = "550e8400-e29b-41d4-a716-446655440000"

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeOrderService — фиктивная реализация OrderService
type fakeOrderService struct {
	order  *models.Order
	orders []*models.Order
	err    error

	gotOwner int64
	gotLines []models.OrderLineInput
}

func (f *fakeOrderService) PlaceOrder(ctx context.Context, ownerID int64, lines []models.OrderLineInput) (*models.Order, error) {
	f.gotOwner, f.gotLines = ownerID, lines
	return f.order, f.err
}

func (f *fakeOrderService) RestockOrder(ctx context.Context, orderID string) (bool, error) {
	return false, f.err
}

func (f *fakeOrderService) GetOrder(ctx context.Context, ownerID int64, orderID string) (*models.Order, error) {
	f.gotOwner = ownerID
	return f.order, f.err
}

func (f *fakeOrderService) ListOrders(ctx context.Context, ownerID int64) ([]*models.Order, error) {
	f.gotOwner = ownerID
	return f.orders, f.err
}

func (f *fakeOrderService) ExpireStalePendingOrders(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, f.err
}

type fakePaymentService struct {
	redirectURL string
	err         error
	got         *models.PaymentNotification
}

func (f *fakePaymentService) InitiatePayment(ctx context.Context, ownerID int64, orderID string) (string, error) {
	return f.redirectURL, f.err
}

func (f *fakePaymentService) Reconcile(ctx context.Context, n models.PaymentNotification) error {
	f.got = &n
	return f.err
}

type fakeFulfillmentService struct {
	order    *models.Order
	delivery *models.DeliveryRequest
	err      error
	gotPrice int64
}

func (f *fakeFulfillmentService) CompleteOrder(ctx context.Context, caller *models.Profile, orderID string) (*models.Order, error) {
	return f.order, f.err
}

func (f *fakeFulfillmentService) RequestDelivery(ctx context.Context, caller *models.Profile, orderID string, price int64) (*models.DeliveryRequest, error) {
	f.gotPrice = price
	return f.delivery, f.err
}

// withProfile имитирует JWT middleware
func withProfile(req *http.Request, id int64, role models.Role) *http.Request {
	return req.WithContext(jwtmiddleware.WithProfile(req.Context(), &models.Profile{ID: id, Role: role}))
}

// withURLParam добавляет параметр маршрута chi
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handlers.ErrorResponse {
	var resp handlers.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func TestPlaceOrderHandler_Success(t *testing.T) {
	fakeSvc := &fakeOrderService{order: &models.Order{
		ID: orderID, UserID: 7, Total: 2000, Status: models.OrderStatusPending,
		Items: []*models.OrderItem{{ProductID: 1, Quantity: 4, Price: 500}},
	}}
	handler := handlers.PlaceOrderHandler(testLogger, fakeSvc)

	reqBody := `{"items": [{"productId": 1, "quantity": 4}]}`
	req := withProfile(httptest.NewRequest("POST", "/api/orders", bytes.NewBufferString(reqBody)), 7, models.RoleUser)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, int64(7), fakeSvc.gotOwner)
	assert.Equal(t, []models.OrderLineInput{{ProductID: 1, Quantity: 4}}, fakeSvc.gotLines)

	var order models.Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&order))
	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, int64(2000), order.Total)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestPlaceOrderHandler_BadRequests(t *testing.T) {
	cases := map[string]string{
		"invalid json":  `{"items": [`,
		"empty items":   `{"items": []}`,
		"zero quantity": `{"items": [{"productId": 1, "quantity": 0}]}`,
		"no product":    `{"items": [{"quantity": 2}]}`,
		"huge quantity": `{"items": [{"productId": 1, "quantity": 2147483648}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fakeSvc := &fakeOrderService{}
			handler := handlers.PlaceOrderHandler(testLogger, fakeSvc)

			req := withProfile(httptest.NewRequest("POST", "/api/orders", bytes.NewBufferString(body)), 7, models.RoleUser)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Nil(t, fakeSvc.gotLines, "service must not be called")
		})
	}
}

func TestPlaceOrderHandler_NoProfile(t *testing.T) {
	handler := handlers.PlaceOrderHandler(testLogger, &fakeOrderService{})

	req := httptest.NewRequest("POST", "/api/orders", bytes.NewBufferString(`{"items": [{"productId": 1, "quantity": 1}]}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPlaceOrderHandler_ErrorMapping(t *testing.T) {
	stockErr := &service.InsufficientStockError{Shortfalls: []service.Shortfall{
		{ProductID: 1, Name: "mug", Requested: 3, Available: 1},
	}}
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation", fmt.Errorf("op: %w", &service.Error{Kind: service.ErrValidation, Message: "order must contain at least one line"}), http.StatusBadRequest, "order must contain at least one line"},
		{"not found", fmt.Errorf("op: %w", &service.Error{Kind: service.ErrNotFound, Message: "some products not found"}), http.StatusNotFound, "some products not found"},
		{"insufficient stock", fmt.Errorf("op: %w", stockErr), http.StatusConflict, "insufficient stock: mug: requested 3, available 1"},
		{"conflict", fmt.Errorf("op: %w: serialization failure", service.ErrTransactionConflict), http.StatusServiceUnavailable, "please try again"},
		{"internal", assert.AnError, http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := handlers.PlaceOrderHandler(testLogger, &fakeOrderService{err: tc.err})

			req := withProfile(httptest.NewRequest("POST", "/api/orders",
				bytes.NewBufferString(`{"items": [{"productId": 1, "quantity": 3}]}`)), 7, models.RoleUser)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decodeError(t, rr)
			assert.Equal(t, tc.wantMsg, resp.Errors)
			if tc.name == "insufficient stock" {
				assert.Equal(t, stockErr.Shortfalls, resp.Shortfalls)
			}
		})
	}
}

func TestListOrdersHandler(t *testing.T) {
	fakeSvc := &fakeOrderService{orders: []*models.Order{{ID: orderID, Total: 100}}}
	handler := handlers.ListOrdersHandler(testLogger, fakeSvc)

	req := withProfile(httptest.NewRequest("GET", "/api/orders", nil), 9, models.RoleUser)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(9), fakeSvc.gotOwner)

	var orders []models.Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&orders))
	assert.Len(t, orders, 1)
}

func TestGetOrderHandler(t *testing.T) {
	fakeSvc := &fakeOrderService{order: &models.Order{ID: orderID, Total: 100}}
	handler := handlers.GetOrderHandler(testLogger, fakeSvc)

	req := withProfile(httptest.NewRequest("GET", "/api/orders/"+orderID, nil), 9, models.RoleUser)
	req = withURLParam(req, "id", orderID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetOrderHandler_MalformedID(t *testing.T) {
	fakeSvc := &fakeOrderService{}
	handler := handlers.GetOrderHandler(testLogger, fakeSvc)

	req := withProfile(httptest.NewRequest("GET", "/api/orders/abc", nil), 9, models.RoleUser)
	req = withURLParam(req, "id", "abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Zero(t, fakeSvc.gotOwner, "service must not be called")
}

func TestInitiatePaymentHandler(t *testing.T) {
	fakeSvc := &fakePaymentService{redirectURL: "https://pay.example.com/r/1"}
	handler := handlers.InitiatePaymentHandler(testLogger, fakeSvc)

	req := withProfile(httptest.NewRequest("POST", "/api/orders/"+orderID+"/payment", nil), 9, models.RoleUser)
	req = withURLParam(req, "id", orderID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp handlers.InitiatePaymentResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "https://pay.example.com/r/1", resp.RedirectURL)
}

func TestInitiatePaymentHandler_Errors(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{fmt.Errorf("op: %w: upstream 500", service.ErrGateway), http.StatusBadGateway},
		{fmt.Errorf("op: %w", &service.Error{Kind: service.ErrInvalidTransition, Message: "order is PAID"}), http.StatusConflict},
		{fmt.Errorf("op: %w", &service.Error{Kind: service.ErrNotFound, Message: "order not found"}), http.StatusNotFound},
	}
	for _, tc := range cases {
		handler := handlers.InitiatePaymentHandler(testLogger, &fakePaymentService{err: tc.err})

		req := withProfile(httptest.NewRequest("POST", "/", nil), 9, models.RoleUser)
		req = withURLParam(req, "id", orderID)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, tc.wantStatus, rr.Code, tc.err.Error())
	}
}

func notifyRequest(values url.Values) *http.Request {
	req := httptest.NewRequest("POST", "/api/payments/notify", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestNotifyHandler_Success(t *testing.T) {
	fakeSvc := &fakePaymentService{}
	handler := handlers.NotifyHandler(testLogger, fakeSvc)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, notifyRequest(url.Values{
		"TransactionReference": {orderID},
		"Status":               {"Complete"},
		"TransactionId":        {"tx-9"},
		"Amount":               {"20.00"},
		"Hash":                 {"abc"},
	}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Success", rr.Body.String())
	require.NotNil(t, fakeSvc.got)
	assert.Equal(t, orderID, fakeSvc.got.TransactionReference)
	assert.Equal(t, models.PaymentStatusComplete, fakeSvc.got.Status)
	assert.Equal(t, "tx-9", fakeSvc.got.TransactionID)
	assert.Equal(t, "20.00", fakeSvc.got.Amount)
	assert.Equal(t, "abc", fakeSvc.got.Hash)
}

func TestNotifyHandler_MalformedPayload(t *testing.T) {
	cases := map[string]url.Values{
		"no reference": {"Status": {"Complete"}},
		"no status":    {"TransactionReference": {orderID}},
		"bad reference": {
			"TransactionReference": {"not-a-uuid"},
			"Status":               {"Complete"},
		},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			fakeSvc := &fakePaymentService{}
			handler := handlers.NotifyHandler(testLogger, fakeSvc)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, notifyRequest(values))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Nil(t, fakeSvc.got)
		})
	}
}

func TestNotifyHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"bad hash", fmt.Errorf("op: %w", &service.Error{Kind: service.ErrValidation, Message: "invalid notification hash"}), http.StatusBadRequest},
		{"missing order", fmt.Errorf("op: %w", &service.Error{Kind: service.ErrNotFound, Message: "order not found"}), http.StatusNotFound},
		{"persistence", fmt.Errorf("op: %w: %w", service.ErrReconciliation, assert.AnError), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := handlers.NotifyHandler(testLogger, &fakePaymentService{err: tc.err})

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, notifyRequest(url.Values{
				"TransactionReference": {orderID},
				"Status":               {"Complete"},
			}))

			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}

func TestCompleteOrderHandler(t *testing.T) {
	fakeSvc := &fakeFulfillmentService{order: &models.Order{ID: orderID, Status: models.OrderStatusCompleted}}
	handler := handlers.CompleteOrderHandler(testLogger, fakeSvc)

	req := withProfile(httptest.NewRequest("POST", "/", nil), 1, models.RoleVendor)
	req = withURLParam(req, "id", orderID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	fakeSvc.err = fmt.Errorf("op: %w", &service.Error{Kind: service.ErrForbidden, Message: "order contains products of other vendors"})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "order contains products of other vendors", decodeError(t, rr).Errors)
}

func TestRequestDeliveryHandler(t *testing.T) {
	fakeSvc := &fakeFulfillmentService{delivery: &models.DeliveryRequest{ID: 1, OrderID: orderID, Price: 300}}
	handler := handlers.RequestDeliveryHandler(testLogger, fakeSvc)

	req := withProfile(httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"price": 300}`)), 1, models.RoleAdmin)
	req = withURLParam(req, "id", orderID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, int64(300), fakeSvc.gotPrice)
}

func TestRequestDeliveryHandler_Duplicate(t *testing.T) {
	fakeSvc := &fakeFulfillmentService{err: fmt.Errorf("op: %w", service.ErrDeliveryExists)}
	handler := handlers.RequestDeliveryHandler(testLogger, fakeSvc)

	req := withProfile(httptest.NewRequest("POST", "/", nil), 1, models.RoleAdmin)
	req = withURLParam(req, "id", orderID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRequestDeliveryHandler_NegativePrice(t *testing.T) {
	fakeSvc := &fakeFulfillmentService{}
	handler := handlers.RequestDeliveryHandler(testLogger, fakeSvc)

	req := withProfile(httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"price": -5}`)), 1, models.RoleAdmin)
	req = withURLParam(req, "id", orderID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
