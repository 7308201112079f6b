package routes

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/medicart/medicart-api/api/controllers"
	"github.com/medicart/medicart-api/internal/cart"
	"github.com/medicart/medicart-api/internal/delivery"
	"github.com/medicart/medicart-api/internal/medicines"
	"github.com/medicart/medicart-api/internal/orders"
	"github.com/medicart/medicart-api/internal/prescriptions"
	"github.com/medicart/medicart-api/internal/users"
	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/config"
	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/metrics"
	"github.com/medicart/medicart-api/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubUsers struct{ users.Service }

func (stubUsers) Sync(context.Context, auth.AccessTokenPayload) error { return nil }

func (stubUsers) Profile(_ context.Context, actor auth.Actor) (*users.ProfileView, error) {
	return &users.ProfileView{ID: actor.UserID}, nil
}

type stubMedicines struct{ medicines.Service }

func (stubMedicines) List(context.Context, auth.Actor, medicines.ListFilters, pagination.Params) (pagination.Page[medicines.MedicineView], error) {
	return pagination.Page[medicines.MedicineView]{Items: []medicines.MedicineView{}}, nil
}

func (stubMedicines) Create(_ context.Context, _ auth.Actor, input medicines.UpsertInput) (*models.Medicine, error) {
	return &models.Medicine{ID: uuid.New(), Name: input.Name}, nil
}

type stubCart struct{ cart.Service }

type stubOrders struct {
	orders.Service
	checkouts int
}

func (s *stubOrders) Checkout(_ context.Context, input orders.CheckoutInput) (*models.Order, error) {
	s.checkouts++
	return &models.Order{ID: uuid.New(), UserID: input.Actor.UserID, Status: enums.OrderStatusPlaced}, nil
}

func (s *stubOrders) Track(_ context.Context, number string) (*orders.TrackingView, error) {
	view := orders.NewTrackingView(models.Order{OrderNumber: number})
	return &view, nil
}

type stubPrescriptions struct{ prescriptions.Service }

type stubDelivery struct{ delivery.Service }

func (stubDelivery) List(context.Context, auth.Actor, delivery.AgentFilters, pagination.Params) (pagination.Page[delivery.AgentView], error) {
	return pagination.Page[delivery.AgentView]{Items: []delivery.AgentView{}}, nil
}

// memoryStore is a single-process stand-in for redis.
type memoryStore struct {
	values  map[string]string
	windows map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, windows: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.windows[scope]++
	return m.windows[scope] <= limit, m.windows[scope], nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Env: "test", Port: "0"},
		JWT:       config.JWTConfig{Secret: "secret", Issuer: "medicart-test", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{TrackingWindow: time.Minute, TrackingLimit: 2},
		Media:     config.MediaConfig{MaxUploadMB: 1, MaxPrescriptionImg: 3},
	}
}

type testRouter struct {
	http.Handler
	orders *stubOrders
}

func newTestRouter(cfg *config.Config) testRouter {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	reg := prometheus.NewRegistry()
	ordersSvc := &stubOrders{}
	handler := NewRouter(Deps{
		Config:        cfg,
		Logger:        logg,
		Store:         newMemoryStore(),
		Pingers:       map[string]controllers.Pinger{"db": stubPinger{}},
		HTTPMetrics:   metrics.NewHTTPMetrics(reg),
		Gatherer:      reg,
		Users:         stubUsers{},
		Medicines:     stubMedicines{},
		Cart:          stubCart{},
		Orders:        ordersSvc,
		Prescriptions: stubPrescriptions{},
		Delivery:      stubDelivery{},
	})
	return testRouter{Handler: handler, orders: ordersSvc}
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		Email:  "user@example.com",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(testConfig())
	for _, path := range []string{"/health/live", "/health/ready", "/metrics", "/api/public/ping"} {
		if resp := serve(router, httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestCatalogReadsAreAnonymous(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/medicines", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	for _, path := range []string{"/api/v1/ping", "/api/v1/me", "/api/v1/cart", "/api/v1/orders"} {
		if resp := serve(router, httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestPrivateRoutesAcceptJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	if resp := serve(router, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	customer := httptest.NewRequest(http.MethodGet, "/api/v1/admin/agents", nil)
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	if resp := serve(router, customer); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	pharmacist := httptest.NewRequest(http.MethodGet, "/api/v1/admin/agents", nil)
	pharmacist.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRolePharmacist))
	if resp := serve(router, pharmacist); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for pharmacist got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCatalogWritesRequireAdmin(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	body := `{"name":"Paracetamol","category":"Pain Relief","price_cents":250,"stock_quantity":10}`

	pharmacist := httptest.NewRequest(http.MethodPost, "/api/v1/admin/medicines", bytes.NewBufferString(body))
	pharmacist.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRolePharmacist))
	pharmacist.Header.Set("Idempotency-Key", "create-1")
	if resp := serve(router, pharmacist); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for pharmacist got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodPost, "/api/v1/admin/medicines", bytes.NewBufferString(body))
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleAdmin))
	admin.Header.Set("Idempotency-Key", "create-1")
	if resp := serve(router, admin); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCheckoutRequiresIdempotencyKeyAndReplays(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	token := buildToken(t, cfg, enums.UserRoleCustomer)
	body := `{"payment_method":"cod"}`

	missing := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body))
	missing.Header.Set("Authorization", "Bearer "+token)
	if resp := serve(router, missing); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key got %d", resp.Code)
	}

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "checkout-1")
		if resp := serve(router, req); resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i, resp.Code)
		}
	}
	if router.orders.checkouts != 1 {
		t.Fatalf("expected a single checkout, got %d", router.orders.checkouts)
	}
}

func TestTrackingIsRateLimited(t *testing.T) {
	router := newTestRouter(testConfig())
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/public/track/MC-20261019-0001", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		last = serve(router, req)
		if i < 2 && last.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, last.Code)
		}
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit got %d", last.Code)
	}
}
