// Package token implements the stateless HMAC token scheme used for the
// three token families: storefront sessions, admin sessions, and order-access
// links. A token is base64url(JSON payload) + "." + base64url(HMAC-SHA256 of
// the payload). Nothing is persisted server-side; the signature is the only
// proof of authenticity, so each family gets its own secret.
//
// All verification paths are total functions: malformed input yields
// ErrInvalid, never a panic, and signatures are compared in constant time.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalid covers malformed tokens, bad base64, JSON that does not
	// parse, and signature mismatches. Callers must not distinguish these
	// cases to avoid oracle behavior.
	ErrInvalid = errors.New("token invalid")

	// ErrExpired is returned for a well-signed claim whose exp has passed.
	ErrExpired = errors.New("token expired")
)

var b64 = base64.RawURLEncoding

// SessionClaim authenticates a storefront customer by verified phone number.
type SessionClaim struct {
	Phone    string `json:"phone"`
	IssuedAt int64  `json:"iat"`
	Expires  int64  `json:"exp"`
}

// AdminClaim authenticates an admin login. The nonce makes every issued
// token distinct so a copied token is traceable to one login event.
type AdminClaim struct {
	Login    string `json:"login"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"iat"`
	Expires  int64  `json:"exp"`
}

// Sign serializes claim as JSON and appends its HMAC-SHA256 signature.
func Sign(claim any, secret []byte) (string, error) {
	payload, err := json.Marshal(claim)
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(payload) + "." + b64.EncodeToString(sign(payload, secret)), nil
}

// Verify checks the signature of token and unmarshals its payload into claim.
// Expiry is not checked here; the typed helpers below do that.
func Verify(tok string, secret []byte, claim any) error {
	payloadPart, sigPart, ok := strings.Cut(tok, ".")
	if !ok {
		return ErrInvalid
	}
	payload, err := b64.DecodeString(payloadPart)
	if err != nil {
		return ErrInvalid
	}
	sig, err := b64.DecodeString(sigPart)
	if err != nil {
		return ErrInvalid
	}
	if !hmac.Equal(sig, sign(payload, secret)) {
		return ErrInvalid
	}
	if err := json.Unmarshal(payload, claim); err != nil {
		return ErrInvalid
	}
	return nil
}

// NewSession issues a signed session token for a verified phone.
func NewSession(phone string, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	return Sign(SessionClaim{
		Phone:    phone,
		IssuedAt: now.Unix(),
		Expires:  now.Add(ttl).Unix(),
	}, secret)
}

// VerifySession validates a session token and its expiry.
func VerifySession(tok string, secret []byte, now time.Time) (SessionClaim, error) {
	var claim SessionClaim
	if err := Verify(tok, secret, &claim); err != nil {
		return SessionClaim{}, err
	}
	if claim.Phone == "" || claim.Expires == 0 {
		return SessionClaim{}, ErrInvalid
	}
	if now.Unix() > claim.Expires {
		return SessionClaim{}, ErrExpired
	}
	return claim, nil
}

// NewAdminSession issues a signed admin token with a fresh nonce.
func NewAdminSession(login string, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	return Sign(AdminClaim{
		Login:    login,
		Nonce:    uuid.NewString(),
		IssuedAt: now.Unix(),
		Expires:  now.Add(ttl).Unix(),
	}, secret)
}

// VerifyAdminSession validates an admin token and its expiry.
func VerifyAdminSession(tok string, secret []byte, now time.Time) (AdminClaim, error) {
	var claim AdminClaim
	if err := Verify(tok, secret, &claim); err != nil {
		return AdminClaim{}, err
	}
	if claim.Login == "" || claim.Expires == 0 {
		return AdminClaim{}, ErrInvalid
	}
	if now.Unix() > claim.Expires {
		return AdminClaim{}, ErrExpired
	}
	return claim, nil
}

func sign(payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
