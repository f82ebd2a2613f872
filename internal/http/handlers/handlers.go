package handlers

import (
	"context"
	"time"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/http/middleware"
	"github.com/l1ndleq/creamshop-backend/internal/kv"
	"github.com/l1ndleq/creamshop-backend/internal/orders"
	"github.com/l1ndleq/creamshop-backend/internal/telegram"
)

// OrderStore is the slice of the order store the HTTP surface uses.
type OrderStore interface {
	Create(ctx context.Context, draft orders.Draft) (*domain.Order, error)
	Get(ctx context.Context, orderID string) (*domain.Order, bool, error)
	Transition(ctx context.Context, orderID string, newStatus domain.OrderStatus, actor domain.Actor) (*domain.Order, bool, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Order, error)
	ListForPhone(ctx context.Context, phone string, limit int) ([]domain.Order, error)
}

// PromoRepository manages promo-code records.
type PromoRepository interface {
	Create(ctx context.Context, p domain.PromoCode) (domain.PromoCode, error)
	Get(ctx context.Context, code string) (domain.PromoCode, bool, error)
	Update(ctx context.Context, code string, mutate func(*domain.PromoCode)) (domain.PromoCode, bool, error)
	Delete(ctx context.Context, code string) (bool, error)
	List(ctx context.Context) ([]domain.PromoCode, error)
}

// Notifier fans out order events to Telegram. Satisfied by *notify.Dispatcher.
type Notifier interface {
	OrderCreated(ctx context.Context, order *domain.Order)
	StatusChanged(ctx context.Context, order *domain.Order)
}

// BotEngine consumes raw Telegram webhook updates. Satisfied by *chatbot.Engine.
type BotEngine interface {
	HandleStoreUpdate(ctx context.Context, u telegram.Update)
	HandleAdminUpdate(ctx context.Context, u telegram.Update)
}

// Handlers bundles the HTTP handlers and their dependencies. One instance is
// shared by every route; all fields are read-only after construction.
type Handlers struct {
	otp      OTPService
	gateway  CodeDeliverer
	registry IdentityRegistry
	orders   OrderStore
	promos   PromoRepository
	notifier Notifier
	bot      BotEngine
	auth     AuthConfig

	// OrderLinkSecret signs the non-expiring per-order tracking tokens.
	orderLinkSecret []byte
	// siteBaseURL is the public storefront origin tracking links point at.
	siteBaseURL string

	// idem records completed checkouts per (caller, Idempotency-Key) so
	// retries replay the original order instead of creating a duplicate.
	idem    kv.Store
	idemTTL time.Duration

	// now supplies timestamps; tests override it through WithClock.
	now func() time.Time
}

// Deps collects everything New needs. Optional fields (notifier, bot,
// gateway) may be nil; the corresponding endpoints degrade gracefully.
type Deps struct {
	OTP             OTPService
	Gateway         CodeDeliverer
	Registry        IdentityRegistry
	Orders          OrderStore
	Promos          PromoRepository
	Notifier        Notifier
	Bot             BotEngine
	Auth            AuthConfig
	OrderLinkSecret []byte
	SiteBaseURL     string
	Idem            kv.Store
	IdempotencyTTL  time.Duration
}

// New constructs the handler set.
func New(d Deps) *Handlers {
	return &Handlers{
		otp:             d.OTP,
		gateway:         d.Gateway,
		registry:        d.Registry,
		orders:          d.Orders,
		promos:          d.Promos,
		notifier:        d.Notifier,
		bot:             d.Bot,
		auth:            d.Auth,
		orderLinkSecret: d.OrderLinkSecret,
		siteBaseURL:     d.SiteBaseURL,
		idem:            d.Idem,
		idemTTL:         d.IdempotencyTTL,
		now:             time.Now,
	}
}

// WithClock overrides the time source. Tests use it to pin expiries.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}

// NewIdempotencyLookup returns the lookup the validator middleware probes for
// replays. It reads the same keys recordOrderKey writes, so detection and
// recording can never drift apart.
func NewIdempotencyLookup(store kv.Store) middleware.IdempotencyLookup {
	return func(ctx context.Context, identity, key string, now time.Time) (bool, error) {
		_, found, err := store.Get(ctx, idemKey(identity, key))
		return found, err
	}
}
