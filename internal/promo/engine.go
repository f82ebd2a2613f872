// Package promo implements discount computation and promo-code management.
//
// The engine half (this file) is pure: it computes discounts and validates a
// promo record against a subtotal and a clock, failing closed on anything it
// does not recognize. Fetching and storing records is the repository's job
// (repo.go); incrementing usedCount is out of scope for this backend.
package promo

import (
	"errors"
	"time"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
)

// Validation failure reasons, fail-closed. The HTTP layer maps each to a
// stable error code.
var (
	ErrInvalid    = errors.New("promo invalid")
	ErrInactive   = errors.New("promo inactive")
	ErrExpired    = errors.New("promo expired")
	ErrUsageLimit = errors.New("promo usage limit reached")
	ErrNoDiscount = errors.New("promo gives no discount")
	// ErrExists is returned by the repository on duplicate creation.
	ErrExists = errors.New("promo already exists")
)

// maxPercent caps percentage promos so an order always stays payable.
const maxPercent = 95

// Result is a successful validation outcome.
type Result struct {
	DiscountAmount int64 `json:"discountAmount"`
	TotalPrice     int64 `json:"totalPrice"`
}

// ComputeDiscount returns the discount a promo yields on subtotal, clamped to
// [0, subtotal-1] so the payable total never drops to zero.
func ComputeDiscount(subtotal int64, p domain.PromoCode) int64 {
	var discount int64
	switch p.Type {
	case domain.PromoPercent:
		discount = subtotal * p.Value / 100
	case domain.PromoFixed:
		discount = p.Value
	default:
		return 0
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal-1 {
		discount = subtotal - 1
	}
	if discount < 0 { // subtotal <= 0
		discount = 0
	}
	return discount
}

// Validate checks a promo record against a subtotal at a point in time.
// It returns the discount and resulting total on success, or the first
// failing reason otherwise. A nil record and any malformed record are both
// ErrInvalid; unknown conditions never pass.
func Validate(p *domain.PromoCode, subtotal int64, now time.Time) (Result, error) {
	if p == nil || !wellFormed(*p) {
		return Result{}, ErrInvalid
	}
	if !p.Active {
		return Result{}, ErrInactive
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return Result{}, ErrExpired
	}
	if p.MaxUses != nil && p.UsedCount >= *p.MaxUses {
		return Result{}, ErrUsageLimit
	}

	discount := ComputeDiscount(subtotal, *p)
	if discount == 0 {
		return Result{}, ErrNoDiscount
	}
	total := subtotal - discount
	if total < 1 {
		total = 1
	}
	return Result{DiscountAmount: discount, TotalPrice: total}, nil
}

// wellFormed rejects records whose type or value is outside the allowed
// ranges: percent in (0, 95], fixed > 0.
func wellFormed(p domain.PromoCode) bool {
	if p.Code == "" {
		return false
	}
	switch p.Type {
	case domain.PromoPercent:
		return p.Value > 0 && p.Value <= maxPercent
	case domain.PromoFixed:
		return p.Value > 0
	}
	return false
}
