// Package orders owns order persistence and the status lifecycle.
//
// An order is written once at checkout and mutated only through Transition,
// which appends to the status history. Alongside the aggregate the store
// maintains two secondary indexes — a capped global recency list and a
// per-customer sorted set keyed by phone digits — plus the reusable customer
// profile snapshot.
//
// Writes are last-write-wins: the key-value store offers no compare-and-swap
// here, so two racing transitions settle on whichever lands last. The only
// built-in invariant is that re-applying the current status is a no-op.
package orders

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/identity"
	"github.com/l1ndleq/creamshop-backend/internal/kv"
)

// ErrNotFound is returned for operations on an unknown order id.
var ErrNotFound = errors.New("order not found")

const (
	orderKeyPrefix = "order:"
	recentKey      = "orders:recent"
	phoneKeyPrefix = "orders:phone:"
)

// DefaultRecentCap bounds the global recency index.
const DefaultRecentCap = 100

// ProfileSaver persists the reusable customer snapshot produced at checkout.
// Satisfied by *identity.Registry.
type ProfileSaver interface {
	SaveProfile(ctx context.Context, p domain.CustomerProfile) error
}

// Store persists orders in the key-value store.
type Store struct {
	store    kv.Store
	profiles ProfileSaver

	// RecentCap caps the global recency index.
	RecentCap int
	// Now supplies timestamps; tests override it.
	Now func() time.Time
	// NewID allocates order ids; tests override it for determinism.
	NewID func() string
}

// NewStore constructs a Store. profiles may be nil when profile snapshots are
// not wanted (tests).
func NewStore(store kv.Store, profiles ProfileSaver) *Store {
	return &Store{
		store:     store,
		profiles:  profiles,
		RecentCap: DefaultRecentCap,
		Now:       time.Now,
		NewID:     NewOrderID,
	}
}

// Draft is the checkout payload an order is created from.
type Draft struct {
	Customer   domain.Customer
	Items      []domain.OrderItem
	TotalPrice int64
	PromoCode  string
	Discount   int64
}

// Create persists a new order in pending_payment with its first history
// entry, publishes it into both indexes, and refreshes the customer profile.
func (s *Store) Create(ctx context.Context, draft Draft) (*domain.Order, error) {
	phone, digits, err := identity.NormalizePhone(draft.Customer.Phone)
	if err != nil {
		return nil, err
	}
	now := s.Now().UTC()

	order := &domain.Order{
		ID:         s.NewID(),
		Status:     domain.StatusPendingPayment,
		Customer:   draft.Customer,
		Items:      draft.Items,
		TotalPrice: draft.TotalPrice,
		PromoCode:  draft.PromoCode,
		Discount:   draft.Discount,
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.StatusPendingPayment, At: now, By: domain.ActorSystem},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.Customer.Phone = phone

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	// Global recency index, capped.
	if err := s.store.LPush(ctx, recentKey, order.ID); err != nil {
		return nil, err
	}
	if err := s.store.LTrim(ctx, recentKey, 0, int64(s.RecentCap)-1); err != nil {
		return nil, err
	}
	// Per-customer index, scored by creation time.
	if err := s.store.ZAdd(ctx, phoneKeyPrefix+digits, float64(now.Unix()), order.ID); err != nil {
		return nil, err
	}

	if s.profiles != nil {
		_ = s.profiles.SaveProfile(ctx, domain.CustomerProfile{
			Name:      draft.Customer.Name,
			Phone:     phone,
			Telegram:  draft.Customer.Telegram,
			UpdatedAt: now,
		})
	}
	return order, nil
}

// Transition applies newStatus to the order. Re-applying the current status
// returns the order unchanged with changed=false and no history append;
// callers use the flag to decide whether to notify.
func (s *Store) Transition(ctx context.Context, orderID string, newStatus domain.OrderStatus, actor domain.Actor) (*domain.Order, bool, error) {
	order, ok, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrNotFound
	}
	if order.Status == newStatus {
		return order, false, nil
	}

	now := s.Now().UTC()
	order.Status = newStatus
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status: newStatus,
		At:     now,
		By:     actor,
	})
	if err := s.save(ctx, order); err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// Get loads an order by id. The boolean reports presence.
func (s *Store) Get(ctx context.Context, orderID string) (*domain.Order, bool, error) {
	raw, ok, err := s.store.Get(ctx, orderKeyPrefix+orderID)
	if err != nil || !ok {
		return nil, false, err
	}
	var order domain.Order
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return nil, false, nil
	}
	return &order, true, nil
}

// ListRecent returns up to limit orders from the global recency index,
// newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > s.RecentCap {
		limit = s.RecentCap
	}
	ids, err := s.store.LRange(ctx, recentKey, 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	return s.fetchAll(ctx, ids)
}

// ListForPhone returns up to limit orders belonging to phone, newest first.
// Each order is re-checked against the phone so a stale index entry cannot
// leak someone else's order.
func (s *Store) ListForPhone(ctx context.Context, phone string, limit int) ([]domain.Order, error) {
	_, digits, err := identity.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	ids, err := s.store.ZRevRange(ctx, phoneKeyPrefix+digits, 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	all, err := s.fetchAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	owned := all[:0]
	for _, order := range all {
		if Owns(&order, phone) {
			owned = append(owned, order)
		}
	}
	return owned, nil
}

// Owns reports whether phone (in any formatting) is the customer phone of
// the order.
func Owns(order *domain.Order, phone string) bool {
	if order == nil {
		return false
	}
	_, a, errA := identity.NormalizePhone(order.Customer.Phone)
	_, b, errB := identity.NormalizePhone(phone)
	return errA == nil && errB == nil && a == b
}

// fetchAll resolves index ids into orders, preserving index order and
// skipping dangling entries.
func (s *Store) fetchAll(ctx context.Context, ids []string) ([]domain.Order, error) {
	if len(ids) == 0 {
		return []domain.Order{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = orderKeyPrefix + id
	}
	values, err := s.store.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(ids))
	for _, key := range keys {
		raw, ok := values[key]
		if !ok {
			continue
		}
		var order domain.Order
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

func (s *Store) save(ctx context.Context, order *domain.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, orderKeyPrefix+order.ID, string(raw), kv.NoTTL)
}

// NewOrderID allocates a readable order id of the form P-<base36>, built
// from the millisecond timestamp plus two random base36 characters to break
// same-millisecond collisions.
func NewOrderID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	n, err := rand.Int(rand.Reader, big.NewInt(36*36))
	suffix := "00"
	if err == nil {
		suffix = strconv.FormatInt(n.Int64(), 36)
		if len(suffix) < 2 {
			suffix = "0" + suffix
		}
	}
	return "P-" + strings.ToUpper(ts+suffix)
}

// OrderIDPattern reports whether text looks like an order id. The chat bot
// uses it to resolve bare ids typed into the conversation.
func OrderIDPattern(text string) bool {
	text = strings.TrimSpace(strings.ToUpper(text))
	if !strings.HasPrefix(text, "P-") || len(text) < 5 {
		return false
	}
	for _, r := range text[2:] {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
