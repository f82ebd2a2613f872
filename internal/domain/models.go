// Package domain defines the persisted entities of the storefront backend.
// Every type here is serialized as JSON into the key-value store (see
// internal/kv); there is no relational schema. The store key for each entity
// is documented on the type.
package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates the order lifecycle states. The set is the union of
// what the storefront, the admin UI, and the bot commands produce; no
// transition graph is enforced (callers decide ordering, re-applying the
// current status is a no-op).
type OrderStatus string

const (
	StatusNew            OrderStatus = "new"
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPaid           OrderStatus = "paid"
	StatusProcessing     OrderStatus = "processing"
	StatusShipped        OrderStatus = "shipped"
	StatusDelivered      OrderStatus = "delivered"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
)

// ParseStatus validates a raw status string and maps the American spelling
// "canceled" onto StatusCancelled. The boolean reports validity.
func ParseStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s == "canceled" {
		s = StatusCancelled
	}
	switch s {
	case StatusNew, StatusPendingPayment, StatusPaid, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCompleted, StatusCancelled:
		return s, true
	}
	return "", false
}

// AllStatuses lists every valid status in lifecycle order. Used by the admin
// bot to render status buttons.
func AllStatuses() []OrderStatus {
	return []OrderStatus{
		StatusNew, StatusPendingPayment, StatusPaid, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCompleted, StatusCancelled,
	}
}

// Actor identifies who performed a status change.
type Actor string

const (
	ActorSystem Actor = "system"
	ActorAdmin  Actor = "admin"
)

// OrderItem is a snapshot of one purchased position. Item data is copied at
// checkout and never re-read from the catalog afterwards.
type OrderItem struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Price int64  `json:"price"` // rubles, whole units
	Qty   int    `json:"qty"`
}

// Customer is the contact snapshot embedded in an order.
type Customer struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Telegram string `json:"telegram,omitempty"`
}

// StatusHistoryEntry records one applied status change.
type StatusHistoryEntry struct {
	Status OrderStatus `json:"status"`
	At     time.Time   `json:"at"`
	By     Actor       `json:"by"`
}

// Order is the order aggregate. Key: order:<id>. Member of the recency index
// orders:recent (newest-first list, capped) and the per-customer sorted set
// orders:phone:<digits> scored by creation time.
//
// Items and customer data are immutable after creation; the only mutation is
// the status transition, which appends to StatusHistory.
type Order struct {
	ID            string               `json:"orderId"`
	Status        OrderStatus          `json:"status"`
	Customer      Customer             `json:"customer"`
	Items         []OrderItem          `json:"items"`
	TotalPrice    int64                `json:"totalPrice"`
	PromoCode     string               `json:"promoCode,omitempty"`
	Discount      int64                `json:"discount,omitempty"`
	StatusHistory []StatusHistoryEntry `json:"statusHistory"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// PromoType distinguishes percentage promos from fixed-amount promos.
type PromoType string

const (
	PromoPercent PromoType = "percent"
	PromoFixed   PromoType = "fixed"
)

// PromoCode is an admin-managed discount record. Key: promo:<CODE> (code is
// stored upper-case); the code set index lives under key "promos".
//
// UsedCount is informational: nothing in this backend increments it (see
// DESIGN.md for the recorded decision).
type PromoCode struct {
	Code      string     `json:"code"`
	Type      PromoType  `json:"type"`
	Value     int64      `json:"value"`
	Active    bool       `json:"active"`
	MaxUses   *int       `json:"maxUses,omitempty"`
	UsedCount int        `json:"usedCount"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CustomerProfile is a reusable contact snapshot keyed by phone digits
// (customer:<digits>). It prefills the next checkout and carries the Telegram
// username captured when the customer links their chat.
type CustomerProfile struct {
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone"`
	Telegram  string    `json:"telegram,omitempty"`
	ChatID    int64     `json:"chatId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AuthStateStatus is the lifecycle of a browser-login handshake done through
// the store bot.
type AuthStateStatus string

const (
	AuthPending AuthStateStatus = "pending"
	AuthReady   AuthStateStatus = "ready"
)

// AuthState is the ephemeral record behind a /start auth_<state> deep link.
// Key: tg:auth:<state>, TTL 10 minutes. The browser polls it; once the user
// shares their contact the status flips to ready and the phone is set.
type AuthState struct {
	Status AuthStateStatus `json:"status"`
	Phone  string          `json:"phone,omitempty"`
	Next   string          `json:"next,omitempty"` // where the storefront resumes after login
}

// ChatStateKind enumerates the short-lived conversational states of a chat.
// Absence of a stored state is the idle state, never an error.
type ChatStateKind string

const (
	ChatAwaitingOrderID ChatStateKind = "awaiting_order_id"
	ChatAwaitingContact ChatStateKind = "awaiting_contact"
)

// ChatState disambiguates the next free-text message in a chat.
// Key: chat:state:<botKind>:<chatID>, TTL 5 minutes.
type ChatState struct {
	Kind ChatStateKind `json:"kind"`
	// AuthState carries the pending login handle while waiting for a contact.
	AuthState string `json:"authState,omitempty"`
}
