package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGatewayBase = "https://gatewayapi.telegram.org"

// Gateway delivers verification codes through the Telegram Gateway API.
// It is the primary OTP channel; callers bound each call with a short
// context deadline and fall back to a direct bot message on failure.
type Gateway struct {
	token   string
	apiBase string
	http    *http.Client
}

// NewGateway constructs a Gateway. An empty token disables it.
func NewGateway(token string) *Gateway {
	return &Gateway{
		token:   strings.TrimSpace(token),
		apiBase: defaultGatewayBase,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the gateway at a different host (tests).
func (g *Gateway) WithBaseURL(base string) *Gateway {
	g.apiBase = strings.TrimRight(base, "/")
	return g
}

// Enabled reports whether the gateway has a token.
func (g *Gateway) Enabled() bool { return g != nil && g.token != "" }

// SendVerificationMessage asks the gateway to deliver code to phone. ttl is
// advisory for the gateway's own expiry display.
func (g *Gateway) SendVerificationMessage(ctx context.Context, phone, code string, ttl time.Duration) error {
	if !g.Enabled() {
		return fmt.Errorf("telegram gateway: disabled (no token)")
	}
	body, err := json.Marshal(map[string]any{
		"phone_number": phone,
		"code":         code,
		"ttl":          int(ttl.Seconds()),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+"/sendVerificationMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram gateway: read body: %w", err)
	}
	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("telegram gateway: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !envelope.OK {
		return fmt.Errorf("telegram gateway: api error: %s", envelope.Description)
	}
	return nil
}
