// Package token – order-access links.
//
// An order-access token is a deterministic HMAC over "orderID|phoneDigits".
// It never expires and is safe to embed in a URL fragment: anyone who can
// recompute it already knows the order id, the phone, and the server secret.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"strings"
)

// OrderAccessToken derives the access token for an (orderID, phone) pair.
// The phone contributes only its digits so that formatting variants of the
// same number produce the same token.
func OrderAccessToken(orderID, phone string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + digitsOnly(phone)))
	return b64.EncodeToString(mac.Sum(nil))
}

// VerifyOrderAccessToken reports whether tok grants access to the exact
// (orderID, phone) pair. Comparison is constant-time.
func VerifyOrderAccessToken(tok, orderID, phone string, secret []byte) bool {
	if tok == "" {
		return false
	}
	expected := OrderAccessToken(orderID, phone, secret)
	return hmac.Equal([]byte(tok), []byte(expected))
}

// BuildOrderTrackingURL renders the shareable tracking link for an order.
// The token rides in the fragment, so it never reaches server access logs.
func BuildOrderTrackingURL(site, orderID, phone string, secret []byte) string {
	return strings.TrimRight(site, "/") + "/order/" + orderID +
		"#t=" + OrderAccessToken(orderID, phone, secret)
}

// digitsOnly strips every non-digit rune from s.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
