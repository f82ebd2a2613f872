package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var (
	secret = []byte("test-secret")
	other  = []byte("other-secret")
)

func TestSessionRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tok, err := NewSession("+79991234567", now, 14*24*time.Hour, secret)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	claim, err := VerifySession(tok, secret, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("VerifySession: %v", err)
	}
	if claim.Phone != "+79991234567" {
		t.Fatalf("phone = %q", claim.Phone)
	}
	if claim.Expires-claim.IssuedAt != int64(14*24*time.Hour/time.Second) {
		t.Fatalf("exp-iat = %d, want 14d", claim.Expires-claim.IssuedAt)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, _ := NewSession("+79991234567", now, time.Hour, secret)

	if _, err := VerifySession(tok, secret, now.Add(2*time.Hour)); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestSessionWrongSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, _ := NewSession("+79991234567", now, time.Hour, secret)

	if _, err := VerifySession(tok, other, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestSessionTamperedSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, _ := NewSession("+79991234567", now, time.Hour, secret)

	// Flip one character in the signature part.
	i := strings.LastIndex(tok, ".") + 1
	c := byte('A')
	if tok[i] == c {
		c = 'B'
	}
	bad := tok[:i] + string(c) + tok[i+1:]

	if _, err := VerifySession(bad, secret, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	for _, tok := range []string{
		"",
		"no-dot-at-all",
		"!!!.###",
		"bm90LWpzb24.c2ln", // valid base64, not JSON / bad signature
		".",
	} {
		if _, err := VerifySession(tok, secret, now); !errors.Is(err, ErrInvalid) {
			t.Fatalf("token %q: err = %v, want ErrInvalid", tok, err)
		}
	}
}

func TestAdminSessionRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tok, err := NewAdminSession("root", now, 7*24*time.Hour, secret)
	if err != nil {
		t.Fatalf("NewAdminSession: %v", err)
	}
	claim, err := VerifyAdminSession(tok, secret, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("VerifyAdminSession: %v", err)
	}
	if claim.Login != "root" || claim.Nonce == "" {
		t.Fatalf("claim = %+v", claim)
	}

	// A session token must not validate as an admin token even on the same secret:
	// the phone-only payload has no login.
	sess, _ := NewSession("+79991234567", now, time.Hour, secret)
	if _, err := VerifyAdminSession(sess, secret, now); err == nil {
		t.Fatal("session token accepted as admin token")
	}
}

func TestOrderAccessToken(t *testing.T) {
	tok := OrderAccessToken("P-ABC123", "+79990000000", secret)

	if !VerifyOrderAccessToken(tok, "P-ABC123", "+79990000000", secret) {
		t.Fatal("token rejected for its own pair")
	}
	// Formatting variants of the same number converge.
	if !VerifyOrderAccessToken(tok, "P-ABC123", "7 (999) 000-00-00", secret) {
		t.Fatal("token rejected for formatted variant of the same digits")
	}
	if VerifyOrderAccessToken(tok, "P-ABC123", "+79991111111", secret) {
		t.Fatal("token accepted for another phone")
	}
	if VerifyOrderAccessToken(tok, "P-XYZ999", "+79990000000", secret) {
		t.Fatal("token accepted for another order")
	}
	if VerifyOrderAccessToken("", "P-ABC123", "+79990000000", secret) {
		t.Fatal("empty token accepted")
	}
}

func TestBuildOrderTrackingURL(t *testing.T) {
	u := BuildOrderTrackingURL("https://shop.example/", "P-ABC123", "+79990000000", secret)

	prefix := "https://shop.example/order/P-ABC123#t="
	if !strings.HasPrefix(u, prefix) {
		t.Fatalf("url = %q", u)
	}
	tok := strings.TrimPrefix(u, prefix)
	if !VerifyOrderAccessToken(tok, "P-ABC123", "+79990000000", secret) {
		t.Fatal("embedded token does not verify")
	}
}
