// Package otp implements one-time-code issuance and verification for phone
// login. Codes are 6 digits, generated from crypto/rand, and stored only as a
// peppered hash bound to the phone so a leaked record cannot be replayed
// against a different number. Re-issuance is throttled by a cooldown marker
// and verification is bounded by an attempt counter; both live in the
// key-value store with TTLs, so no cleanup job is needed.
//
// Delivery is not this package's concern: Request returns the plaintext code
// exactly once and the HTTP layer picks a channel (gateway, bot, log).
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/l1ndleq/creamshop-backend/internal/identity"
	"github.com/l1ndleq/creamshop-backend/internal/kv"
)

// Typed failure reasons, mapped to HTTP codes by the transport layer.
var (
	// ErrTooSoon: a cooldown marker exists for this phone.
	ErrTooSoon = errors.New("otp requested too soon")
	// ErrExpired: no active record (never issued, expired, or already used).
	ErrExpired = errors.New("otp expired")
	// ErrAttemptsExceeded: the attempt budget is exhausted; the record is gone.
	ErrAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrCodeMismatch: wrong code; one attempt was consumed.
	ErrCodeMismatch = errors.New("otp code mismatch")
)

const (
	codeKeyPrefix     = "otp:"
	cooldownKeyPrefix = "otp:cooldown:"
)

// record is the stored shape of an issued code. The plaintext never persists.
type record struct {
	Hash         string    `json:"hash"`
	AttemptsLeft int       `json:"attemptsLeft"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Service issues and verifies one-time codes.
type Service struct {
	store  kv.Store
	pepper string

	// CodeTTL bounds a code's validity window.
	CodeTTL time.Duration
	// Cooldown throttles re-issuance per phone.
	Cooldown time.Duration
	// MaxAttempts is the per-code verification budget.
	MaxAttempts int
	// Now supplies the clock; tests override it.
	Now func() time.Time
}

// NewService constructs a Service with the production defaults
// (5 minute codes, 60 second cooldown, 5 attempts).
func NewService(store kv.Store, pepper string) *Service {
	return &Service{
		store:       store,
		pepper:      pepper,
		CodeTTL:     5 * time.Minute,
		Cooldown:    60 * time.Second,
		MaxAttempts: 5,
		Now:         time.Now,
	}
}

// Issued is the result of a successful Request.
type Issued struct {
	Phone  string        // canonical +<digits> form
	Digits string        // digits-only index key
	Code   string        // plaintext, for delivery only
	TTL    time.Duration // validity window to show the user
}

// Request validates the phone, enforces the cooldown, and issues a new code.
// A fresh request replaces any previous unexpired code for the same phone.
func (s *Service) Request(ctx context.Context, rawPhone string) (Issued, error) {
	phone, digits, err := identity.NormalizePhone(rawPhone)
	if err != nil {
		return Issued{}, err
	}

	ok, err := s.store.SetNX(ctx, cooldownKeyPrefix+digits, "1", s.Cooldown)
	if err != nil {
		return Issued{}, err
	}
	if !ok {
		return Issued{}, ErrTooSoon
	}

	code, err := generateCode()
	if err != nil {
		return Issued{}, err
	}
	raw, err := json.Marshal(record{
		Hash:         s.hash(digits, code),
		AttemptsLeft: s.MaxAttempts,
		CreatedAt:    s.Now().UTC(),
	})
	if err != nil {
		return Issued{}, err
	}
	if err := s.store.Set(ctx, codeKeyPrefix+digits, string(raw), s.CodeTTL); err != nil {
		return Issued{}, err
	}
	return Issued{Phone: phone, Digits: digits, Code: code, TTL: s.CodeTTL}, nil
}

// Verify checks code against the stored record for rawPhone. On success the
// record is deleted (single use) and the canonical phone is returned. On a
// mismatch one attempt is consumed; when the budget runs out the record is
// deleted so even the right code no longer works.
func (s *Service) Verify(ctx context.Context, rawPhone, code string) (string, error) {
	phone, digits, err := identity.NormalizePhone(rawPhone)
	if err != nil {
		return "", err
	}
	key := codeKeyPrefix + digits

	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrExpired
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		_ = s.store.Del(ctx, key)
		return "", ErrExpired
	}

	if rec.AttemptsLeft <= 0 {
		_ = s.store.Del(ctx, key)
		return "", ErrAttemptsExceeded
	}

	if s.hash(digits, code) != rec.Hash {
		rec.AttemptsLeft--
		if updated, err := json.Marshal(rec); err == nil {
			_ = s.store.Set(ctx, key, string(updated), s.remainingTTL(rec))
		}
		return "", ErrCodeMismatch
	}

	if err := s.store.Del(ctx, key); err != nil {
		return "", err
	}
	return phone, nil
}

// remainingTTL keeps the original expiry when rewriting a record after a
// failed attempt; a wrong guess must not extend the code's life.
func (s *Service) remainingTTL(rec record) time.Duration {
	left := s.CodeTTL - s.Now().UTC().Sub(rec.CreatedAt)
	if left < time.Second {
		left = time.Second
	}
	return left
}

// hash binds the code to the phone and the server-side pepper.
func (s *Service) hash(digits, code string) string {
	sum := sha256.Sum256([]byte(digits + "|" + code + "|" + s.pepper))
	return hex.EncodeToString(sum[:])
}

// generateCode draws a uniform 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
