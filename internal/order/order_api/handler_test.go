package order_api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-docservices/internal/auth"
	"ms-docservices/internal/docstore"
	"ms-docservices/internal/logger"
	"ms-docservices/internal/models"
	"ms-docservices/internal/order"
	"ms-docservices/internal/order/order_api"
	"ms-docservices/internal/order/receipt"
)

// In-memory collaborators

type memStore struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]models.Order{}}
}

func (m *memStore) CreateOrder(ctx context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = *o
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &o, nil
}

func (m *memStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *memStore) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	m.orders[id] = o
	return true, nil
}

func (m *memStore) UpdatePaymentStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.PaymentStatus != from || o.Status == models.StatusCancelled {
		return false, nil
	}
	o.PaymentStatus = to
	o.UpdatedAt = at
	m.orders[id] = o
	return true, nil
}

func (m *memStore) SetPaymentIntentID(ctx context.Context, id, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return sql.ErrNoRows
	}
	o.PaymentIntentID = intentID
	m.orders[id] = o
	return nil
}

type memLock struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLock() *memLock { return &memLock{held: map[string]string{}} }

func (l *memLock) LockOrder(orderID, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[orderID]; taken {
		return false, nil
	}
	l.held[orderID] = token
	return true, nil
}

func (l *memLock) UnlockOrder(orderID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[orderID] == token {
		delete(l.held, orderID)
	}
	return nil
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(models.Order) error       { return nil }
func (nopPublisher) PublishOrderStatusUpdated(models.Order) error { return nil }
func (nopPublisher) PublishPaymentCompleted(models.Order) error   { return nil }

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateIntent(ctx context.Context, o models.Order) (*order.PaymentIntent, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.PaymentIntent), args.Error(1)
}

type staticCatalog struct{}

func (staticCatalog) GetByID(ctx context.Context, id string) (*models.Service, error) {
	if id != "svc-aadhaar" {
		return nil, sql.ErrNoRows
	}
	return &models.Service{ID: "svc-aadhaar", Name: "Aadhaar Card", Price: 500}, nil
}

// Test server wiring

type testEnv struct {
	router  chi.Router
	store   *memStore
	gateway *mockGateway
	issuer  *auth.TokenIssuer
}

func setupEnv(t *testing.T) *testEnv {
	log := logger.NewLogger()

	docs, err := docstore.NewStore(t.TempDir())
	require.NoError(t, err)

	store := newMemStore()
	gateway := new(mockGateway)
	svc := order.NewOrderService(store, newMemLock(), nopPublisher{}, gateway, staticCatalog{}, log)

	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	handler := order_api.NewHandler(svc, docs, receipt.NewGenerator("test-secret"), log)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer))
		r.Post("/api/orders", handler.CreateOrder)
		r.Get("/api/orders", handler.ListMyOrders)
		r.Get("/api/orders/{orderId}", handler.GetOrder)
		r.Get("/api/orders/{orderId}/receipt", handler.Receipt)
		r.Post("/api/orders/{orderId}/payment-intent", handler.CreatePaymentIntent)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/api/admin/orders", handler.ListAllOrders)
			r.Patch("/api/admin/orders/{orderId}/status", handler.UpdateStatus)
			r.Patch("/api/admin/orders/{orderId}/payment", handler.UpdatePaymentStatus)
		})
	})

	return &testEnv{router: r, store: store, gateway: gateway, issuer: issuer}
}

func (e *testEnv) token(t *testing.T, id, role string) string {
	token, err := e.issuer.Issue(models.User{ID: id, Role: role})
	require.NoError(t, err)
	return token
}

func (e *testEnv) seedOrder(o models.Order) {
	e.store.orders[o.ID] = o
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func authedRequest(t *testing.T, method, url, token string, body *bytes.Buffer) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func seededOrder(id, userID string) models.Order {
	now := time.Now()
	return models.Order{
		ID:            id,
		UserID:        userID,
		ServiceID:     "svc-aadhaar",
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
		TotalAmount:   500,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func multipartOrder(t *testing.T, serviceID string, fileNames ...string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	orderData, err := json.Marshal(models.OrderRequest{ServiceID: serviceID, Notes: "urgent"})
	require.NoError(t, err)
	require.NoError(t, w.WriteField("orderData", string(orderData)))

	for _, name := range fileNames {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="documents"; filename=%q`, name))
		header.Set("Content-Type", "application/pdf")
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 content"))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

// Tests

func TestCreateOrder_HTTPHappyPath(t *testing.T) {
	env := setupEnv(t)

	body, contentType := multipartOrder(t, "svc-aadhaar", "scan.pdf", "proof.pdf")
	req := authedRequest(t, http.MethodPost, "/api/orders", env.token(t, "user-1", models.RoleUser), body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, int64(500), created.TotalAmount)
	assert.Len(t, created.Documents, 2)
}

func TestCreateOrder_UnknownServiceIs404(t *testing.T) {
	env := setupEnv(t)

	body, contentType := multipartOrder(t, "svc-nope", "scan.pdf")
	req := authedRequest(t, http.MethodPost, "/api/orders", env.token(t, "user-1", models.RoleUser), body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrder_NoDocumentsIs400(t *testing.T) {
	env := setupEnv(t)

	body, contentType := multipartOrder(t, "svc-aadhaar")
	req := authedRequest(t, http.MethodPost, "/api/orders", env.token(t, "user-1", models.RoleUser), body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder_RequiresToken(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/order-1", nil)
	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOrder_NonOwnerIs403(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	req := authedRequest(t, http.MethodGet, "/api/orders/order-1", env.token(t, "user-2", models.RoleUser), nil)
	rec := env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetOrder_AdminSeesAnyOrder(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	req := authedRequest(t, http.MethodGet, "/api/orders/order-1", env.token(t, "admin-1", models.RoleAdmin), nil)
	rec := env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrder_MissingIs404(t *testing.T) {
	env := setupEnv(t)

	req := authedRequest(t, http.MethodGet, "/api/orders/nope", env.token(t, "user-1", models.RoleUser), nil)
	rec := env.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes_RejectNonAdmin(t *testing.T) {
	env := setupEnv(t)

	req := authedRequest(t, http.MethodGet, "/api/admin/orders", env.token(t, "user-1", models.RoleUser), nil)
	rec := env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateStatus_HTTPTransition(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	body := bytes.NewBufferString(`{"status":"processing"}`)
	req := authedRequest(t, http.MethodPatch, "/api/admin/orders/order-1/status", env.token(t, "admin-1", models.RoleAdmin), body)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, models.StatusProcessing, updated.Status)
}

func TestUpdateStatus_InvalidTransitionIs409(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	body := bytes.NewBufferString(`{"status":"completed"}`)
	req := authedRequest(t, http.MethodPatch, "/api/admin/orders/order-1/status", env.token(t, "admin-1", models.RoleAdmin), body)
	rec := env.do(req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStatus_UnknownValueIs400(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	body := bytes.NewBufferString(`{"status":"shipped"}`)
	req := authedRequest(t, http.MethodPatch, "/api/admin/orders/order-1/status", env.token(t, "admin-1", models.RoleAdmin), body)
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePayment_CancelledOrderIs409(t *testing.T) {
	env := setupEnv(t)
	o := seededOrder("order-1", "user-1")
	o.Status = models.StatusCancelled
	env.seedOrder(o)

	body := bytes.NewBufferString(`{"payment_status":"completed"}`)
	req := authedRequest(t, http.MethodPatch, "/api/admin/orders/order-1/payment", env.token(t, "admin-1", models.RoleAdmin), body)
	rec := env.do(req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentIntent_DeclinedIs402(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	env.gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(nil, &order.GatewayError{Declined: true, Message: "payment declined"})

	req := authedRequest(t, http.MethodPost, "/api/orders/order-1/payment-intent", env.token(t, "user-1", models.RoleUser), nil)
	rec := env.do(req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestPaymentIntent_GatewayDownIs502(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	env.gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(nil, &order.GatewayError{Message: "payment gateway unreachable"})

	req := authedRequest(t, http.MethodPost, "/api/orders/order-1/payment-intent", env.token(t, "user-1", models.RoleUser), nil)
	rec := env.do(req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPaymentIntent_SuccessReturnsClientSecret(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	env.gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(&order.PaymentIntent{ID: "pi_123", ClientSecret: "cs_abc"}, nil)

	req := authedRequest(t, http.MethodPost, "/api/orders/order-1/payment-intent", env.token(t, "user-1", models.RoleUser), nil)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Success bool                `json:"success"`
		Data    order.PaymentIntent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "pi_123", envelope.Data.ID)
	assert.Equal(t, "cs_abc", envelope.Data.ClientSecret)

	stored, err := env.store.GetOrderByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", stored.PaymentIntentID)
}

func TestReceipt_UnpaidOrderIs409(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))

	req := authedRequest(t, http.MethodGet, "/api/orders/order-1/receipt", env.token(t, "user-1", models.RoleUser), nil)
	rec := env.do(req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReceipt_PaidOrderReturnsPNG(t *testing.T) {
	env := setupEnv(t)
	o := seededOrder("order-1", "user-1")
	o.PaymentStatus = models.PaymentCompleted
	env.seedOrder(o)

	req := authedRequest(t, http.MethodGet, "/api/orders/order-1/receipt", env.token(t, "user-1", models.RoleUser), nil)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestListMyOrders_OnlyOwn(t *testing.T) {
	env := setupEnv(t)
	env.seedOrder(seededOrder("order-1", "user-1"))
	env.seedOrder(seededOrder("order-2", "user-2"))

	req := authedRequest(t, http.MethodGet, "/api/orders", env.token(t, "user-1", models.RoleUser), nil)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)

	var orders []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "order-1", orders[0].ID)
}
