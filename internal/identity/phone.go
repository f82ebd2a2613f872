// Package identity owns the cross-channel identity linkage: canonical phone
// normalization, the bidirectional phone ⇄ Telegram-chat registry, the
// ephemeral browser-login handshake records, and reusable customer profiles.
//
// This registry is the single source of truth for "where do we send this
// customer's notifications".
package identity

import (
	"errors"
	"strings"
)

// ErrPhoneInvalid is returned when a raw phone does not normalize to a
// plausible 10–15 digit number.
var ErrPhoneInvalid = errors.New("phone invalid")

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// NormalizePhone converts a raw user-entered phone into its canonical
// +<country><national> form plus the digits-only index key.
//
// Russian numbers get special treatment because the storefront's audience
// enters them in every local convention:
//   - 11 digits starting with 8 or 7 → +7 <national>
//   - bare 10-digit mobile starting with 9 → +7 prefix added
//
// Anything else keeps its digits as-is with a leading +.
func NormalizePhone(raw string) (phone, digits string, err error) {
	d := Digits(raw)
	switch {
	case len(d) == 11 && (d[0] == '8' || d[0] == '7'):
		d = "7" + d[1:]
	case len(d) == 10 && d[0] == '9':
		d = "7" + d
	}
	if len(d) < minPhoneDigits || len(d) > maxPhoneDigits {
		return "", "", ErrPhoneInvalid
	}
	return "+" + d, d, nil
}

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolveVariants lists the digit strings a lookup should try for a phone
// entered in an unknown convention: the normalized form plus the RU 8/7/bare
// alternates. Order matters only for determinism.
func resolveVariants(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(d string) {
		if d == "" {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}

	d := Digits(raw)
	add(d)
	if _, nd, err := NormalizePhone(raw); err == nil {
		add(nd)
	}
	if len(d) == 11 && d[0] == '8' {
		add("7" + d[1:])
	}
	if len(d) == 11 && d[0] == '7' {
		add("8" + d[1:])
	}
	if len(d) == 10 {
		add("7" + d)
		add("8" + d)
	}
	return out
}
