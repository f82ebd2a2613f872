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

const defaultAPIBase = "https://api.telegram.org"

// Client calls the Bot API for one bot token. The zero timeout on a caller's
// context falls through to the HTTP client's own limit.
type Client struct {
	token   string
	apiBase string
	http    *http.Client
}

// NewClient constructs a Client for token. An empty token yields a disabled
// client whose calls fail fast; callers check Enabled before relying on it.
func NewClient(token string) *Client {
	return &Client{
		token:   strings.TrimSpace(token),
		apiBase: defaultAPIBase,
		http:    &http.Client{Timeout: 25 * time.Second},
	}
}

// WithBaseURL points the client at a different API host (tests use an
// httptest server).
func (c *Client) WithBaseURL(base string) *Client {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

// Enabled reports whether the client has a token to work with.
func (c *Client) Enabled() bool { return c != nil && c.token != "" }

// SendMessage posts text to chatID. opts may be nil.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if opts != nil {
		if opts.ParseMode != "" {
			payload["parse_mode"] = opts.ParseMode
		}
		if opts.ReplyMarkup != nil {
			payload["reply_markup"] = opts.ReplyMarkup
		}
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

// AnswerCallbackQuery acknowledges a button press; text, when set, shows as
// a toast in the client.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// GetChat fetches chat metadata (username, names) for profile enrichment.
func (c *Client) GetChat(ctx context.Context, chatID int64) (Chat, error) {
	var chat Chat
	err := c.call(ctx, "getChat", map[string]any{"chat_id": chatID}, &chat)
	return chat, err
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// call posts payload to the named Bot API method and decodes the result into
// out when non-nil.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	if !c.Enabled() {
		return fmt.Errorf("telegram: client disabled (no token)")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := c.apiBase + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: %s: read body: %w", method, err)
	}
	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("telegram: %s: status=%d body=%s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !envelope.OK {
		return fmt.Errorf("telegram: %s: api error: %s", method, envelope.Description)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram: %s: decode result: %w", method, err)
		}
	}
	return nil
}
