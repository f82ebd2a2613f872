// Package promo – key-value repository for promo records.
//
// Records live under promo:<CODE> with the code set indexed under "promos".
// Codes are normalized to upper case on every path so storefront input,
// admin UI input, and bot commands converge on one record.
package promo

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/kv"
)

const (
	recordKeyPrefix = "promo:"
	indexKey        = "promos"
)

// NormalizeCode maps a raw promo code onto its canonical stored form.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Repository persists promo records in the key-value store.
type Repository struct {
	store kv.Store

	// Now supplies timestamps; tests override it.
	Now func() time.Time
}

// NewRepository constructs a Repository over the given store.
func NewRepository(store kv.Store) *Repository {
	return &Repository{store: store, Now: time.Now}
}

// Create stores a new promo record. The code is normalized and must not
// already exist (ErrExists); malformed records are rejected with ErrInvalid.
func (r *Repository) Create(ctx context.Context, p domain.PromoCode) (domain.PromoCode, error) {
	p.Code = NormalizeCode(p.Code)
	if !wellFormed(p) {
		return domain.PromoCode{}, ErrInvalid
	}
	now := r.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.UsedCount = 0

	raw, err := json.Marshal(p)
	if err != nil {
		return domain.PromoCode{}, err
	}
	created, err := r.store.SetNX(ctx, recordKeyPrefix+p.Code, string(raw), kv.NoTTL)
	if err != nil {
		return domain.PromoCode{}, err
	}
	if !created {
		return domain.PromoCode{}, ErrExists
	}
	if err := r.store.SAdd(ctx, indexKey, p.Code); err != nil {
		return domain.PromoCode{}, err
	}
	return p, nil
}

// Get loads a promo by code. The boolean reports presence.
func (r *Repository) Get(ctx context.Context, code string) (domain.PromoCode, bool, error) {
	raw, ok, err := r.store.Get(ctx, recordKeyPrefix+NormalizeCode(code))
	if err != nil || !ok {
		return domain.PromoCode{}, false, err
	}
	var p domain.PromoCode
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.PromoCode{}, false, nil
	}
	return p, true, nil
}

// Update applies mutate to an existing record and persists it. The code and
// creation timestamp are immutable; UpdatedAt is refreshed. Returns ok=false
// when the code is unknown and ErrInvalid when the mutation leaves the
// record malformed.
func (r *Repository) Update(ctx context.Context, code string, mutate func(*domain.PromoCode)) (domain.PromoCode, bool, error) {
	p, ok, err := r.Get(ctx, code)
	if err != nil || !ok {
		return domain.PromoCode{}, ok, err
	}
	frozenCode, frozenCreated := p.Code, p.CreatedAt
	mutate(&p)
	p.Code, p.CreatedAt = frozenCode, frozenCreated
	if !wellFormed(p) {
		return domain.PromoCode{}, true, ErrInvalid
	}
	p.UpdatedAt = r.Now().UTC()

	raw, err := json.Marshal(p)
	if err != nil {
		return domain.PromoCode{}, true, err
	}
	if err := r.store.Set(ctx, recordKeyPrefix+p.Code, string(raw), kv.NoTTL); err != nil {
		return domain.PromoCode{}, true, err
	}
	return p, true, nil
}

// Delete removes a promo record and its index entry. Deleting an unknown
// code reports ok=false without error.
func (r *Repository) Delete(ctx context.Context, code string) (bool, error) {
	code = NormalizeCode(code)
	_, ok, err := r.Get(ctx, code)
	if err != nil || !ok {
		return false, err
	}
	if err := r.store.Del(ctx, recordKeyPrefix+code); err != nil {
		return false, err
	}
	if err := r.store.SRem(ctx, indexKey, code); err != nil {
		return false, err
	}
	return true, nil
}

// List returns every promo record, sorted by code. Index entries whose
// record has vanished are skipped.
func (r *Repository) List(ctx context.Context) ([]domain.PromoCode, error) {
	codes, err := r.store.SMembers(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return []domain.PromoCode{}, nil
	}
	keys := make([]string, len(codes))
	for i, c := range codes {
		keys[i] = recordKeyPrefix + c
	}
	values, err := r.store.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PromoCode, 0, len(values))
	for _, key := range keys {
		raw, ok := values[key]
		if !ok {
			continue
		}
		var p domain.PromoCode
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
