package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/http/middleware"
	"github.com/l1ndleq/creamshop-backend/internal/identity"
	"github.com/l1ndleq/creamshop-backend/internal/kv"
	"github.com/l1ndleq/creamshop-backend/internal/orders"
	"github.com/l1ndleq/creamshop-backend/internal/otp"
	"github.com/l1ndleq/creamshop-backend/internal/promo"
	"github.com/l1ndleq/creamshop-backend/internal/telegram"
	"github.com/l1ndleq/creamshop-backend/internal/token"
)

// ---------- fakes ----------

// fakeDeliverer records the code handed to it instead of calling Telegram.
type fakeDeliverer struct {
	mu       sync.Mutex
	enabled  bool
	failWith error
	lastCode string
	sent     int
}

func (f *fakeDeliverer) Enabled() bool { return f.enabled }

func (f *fakeDeliverer) SendVerificationMessage(ctx context.Context, phone, code string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.lastCode = code
	f.sent++
	return nil
}

func (f *fakeDeliverer) code() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCode
}

// fakeNotifier counts event fan-outs.
type fakeNotifier struct {
	mu      sync.Mutex
	created int
	changed int
}

func (f *fakeNotifier) OrderCreated(ctx context.Context, order *domain.Order) {
	f.mu.Lock()
	f.created++
	f.mu.Unlock()
}

func (f *fakeNotifier) StatusChanged(ctx context.Context, order *domain.Order) {
	f.mu.Lock()
	f.changed++
	f.mu.Unlock()
}

func (f *fakeNotifier) counts() (created, changed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, f.changed
}

// fakeBot records which persona received which update.
type fakeBot struct {
	mu    sync.Mutex
	store []telegram.Update
	admin []telegram.Update
}

func (f *fakeBot) HandleStoreUpdate(ctx context.Context, u telegram.Update) {
	f.mu.Lock()
	f.store = append(f.store, u)
	f.mu.Unlock()
}

func (f *fakeBot) HandleAdminUpdate(ctx context.Context, u telegram.Update) {
	f.mu.Lock()
	f.admin = append(f.admin, u)
	f.mu.Unlock()
}

// ---------- environment ----------

const (
	testSessionSecret = "session-secret"
	testAdminSecret   = "admin-secret"
	testLinkSecret    = "link-secret"
	testWebhookSecret = "hook-secret"
)

type testEnv struct {
	store    *kv.MemoryStore
	registry *identity.Registry
	orders   *orders.Store
	promos   *promo.Repository
	otp      *otp.Service
	gateway  *fakeDeliverer
	notifier *fakeNotifier
	bot      *fakeBot
	handlers *Handlers
	router   *gin.Engine
	now      time.Time
}

// newTestEnv wires real services over an in-memory store and mounts the full
// route map the production router exposes, with the same auth middleware.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		store:    kv.NewMemory(),
		gateway:  &fakeDeliverer{enabled: true},
		notifier: &fakeNotifier{},
		bot:      &fakeBot{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.store.Now = func() time.Time { return env.now }
	env.registry = identity.NewRegistry(env.store)
	env.orders = orders.NewStore(env.store, env.registry)
	env.orders.Now = func() time.Time { return env.now }
	env.promos = promo.NewRepository(env.store)
	env.otp = otp.NewService(env.store, "test-pepper")
	env.otp.Now = func() time.Time { return env.now }

	env.handlers = New(Deps{
		OTP:      env.otp,
		Gateway:  env.gateway,
		Registry: env.registry,
		Orders:   env.orders,
		Promos:   env.promos,
		Notifier: env.notifier,
		Bot:      env.bot,
		Auth: AuthConfig{
			SessionSecret:    []byte(testSessionSecret),
			AdminSecret:      []byte(testAdminSecret),
			SessionTTL:       14 * 24 * time.Hour,
			AdminSessionTTL:  7 * 24 * time.Hour,
			AdminLogin:       "admin",
			AdminPassword:    "swordfish",
			StoreBotUsername: "creamshop_bot",
			WebhookSecret:    testWebhookSecret,
			GatewayTimeout:   time.Second,
		},
		OrderLinkSecret: []byte(testLinkSecret),
		SiteBaseURL:     "https://example.com",
		Idem:            env.store,
		IdempotencyTTL:  24 * time.Hour,
	}).WithClock(func() time.Time { return env.now })

	env.router = gin.New()
	auth := middleware.NewAuth([]byte(testSessionSecret), []byte(testAdminSecret))
	auth.Now = func() time.Time { return env.now }
	registerTestRoutes(env.router, env.handlers, auth)
	return env
}

// registerTestRoutes mirrors the production route map.
func registerTestRoutes(r *gin.Engine, h *Handlers, auth *middleware.Auth) {
	r.POST("/auth/otp/request", h.RequestOTP)
	r.POST("/auth/otp/verify", h.VerifyOTP)
	r.GET("/auth/session", auth.RequireSession(), h.GetSession)
	r.POST("/auth/logout", auth.RequireSession(), h.Logout)
	r.POST("/auth/telegram/start", h.StartTelegramAuth)
	r.GET("/auth/telegram/state/:state", h.PollTelegramAuth)
	r.POST("/admin/login", h.AdminLogin)

	idem := middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, NewIdempotencyLookup(h.idem))
	r.POST("/orders", auth.OptionalSession(), idem, h.CreateOrder)
	r.GET("/orders", auth.RequireSession(), h.ListMyOrders)
	r.GET("/orders/:id", auth.OptionalSession(), h.GetOrder)
	r.POST("/promo/preview", h.PreviewPromo)

	ag := r.Group("/admin", auth.RequireAdmin())
	ag.GET("/orders", h.AdminListOrders)
	ag.PATCH("/orders/:id/status", h.AdminSetOrderStatus)
	ag.GET("/promos", h.AdminListPromos)
	ag.POST("/promos", h.AdminCreatePromo)
	ag.PATCH("/promos/:code", h.AdminUpdatePromo)
	ag.DELETE("/promos/:code", h.AdminDeletePromo)

	r.GET("/telegram/status", auth.RequireSession(), h.TelegramStatus)
	r.POST("/telegram/unlink", auth.RequireSession(), h.TelegramUnlink)
	r.POST("/tg/store", h.StoreBotWebhook)
	r.POST("/tg/admin", h.AdminBotWebhook)
}

// ---------- request helpers ----------

func (env *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return env.doHeaders(t, method, path, bearer, body, nil)
}

func (env *testEnv) doHeaders(t *testing.T, method, path, bearer string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}

func wantErrCode(t *testing.T, w *httptest.ResponseRecorder, code string) {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	decodeJSON(t, w, &resp)
	if resp.Code != code {
		t.Fatalf("error code = %q, want %q (body %s)", resp.Code, code, w.Body.String())
	}
}

// sessionToken mints a valid customer session for phone.
func (env *testEnv) sessionToken(t *testing.T, phone string) string {
	t.Helper()
	tok, err := token.NewSession(phone, env.now, 24*time.Hour, []byte(testSessionSecret))
	if err != nil {
		t.Fatalf("mint session: %v", err)
	}
	return tok
}

// adminToken mints a valid operator session.
func (env *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	tok, err := token.NewAdminSession("admin", env.now, 24*time.Hour, []byte(testAdminSecret))
	if err != nil {
		t.Fatalf("mint admin session: %v", err)
	}
	return tok
}

// seedOrder creates an order directly through the store.
func (env *testEnv) seedOrder(t *testing.T, phone string, total int64) *domain.Order {
	t.Helper()
	order, err := env.orders.Create(context.Background(), orders.Draft{
		Customer:   domain.Customer{Name: "Аня", Phone: phone},
		Items:      []domain.OrderItem{{Title: "Пломбир", Price: total, Qty: 1}},
		TotalPrice: total,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// seedPromo stores a promo record directly through the repository.
func (env *testEnv) seedPromo(t *testing.T, p domain.PromoCode) domain.PromoCode {
	t.Helper()
	created, err := env.promos.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("seed promo: %v", err)
	}
	return created
}
