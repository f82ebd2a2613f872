package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN").WithBaseURL(srv.URL)
	err := c.SendMessage(context.Background(), 42, "hello", &SendOptions{
		ParseMode: "HTML",
		ReplyMarkup: InlineKeyboardMarkup{
			InlineKeyboard: [][]InlineKeyboardButton{{{Text: "Track", CallbackData: "track"}}},
		},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if gotPath != "/botTOKEN/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != float64(42) || gotBody["text"] != "hello" || gotBody["parse_mode"] != "HTML" {
		t.Fatalf("body = %v", gotBody)
	}
	if _, ok := gotBody["reply_markup"]; !ok {
		t.Fatal("reply_markup missing")
	}
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN").WithBaseURL(srv.URL)
	if err := c.SendMessage(context.Background(), 1, "x", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":7,"username":"ivan_t","first_name":"Ivan"}}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN").WithBaseURL(srv.URL)
	chat, err := c.GetChat(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if chat.ID != 7 || chat.Username != "ivan_t" {
		t.Fatalf("chat = %+v", chat)
	}
}

func TestDisabledClient(t *testing.T) {
	c := NewClient("")
	if c.Enabled() {
		t.Fatal("empty token reported enabled")
	}
	if err := c.SendMessage(context.Background(), 1, "x", nil); err == nil {
		t.Fatal("disabled client did not error")
	}
}

func TestGatewaySendVerificationMessage(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	g := NewGateway("GWTOKEN").WithBaseURL(srv.URL)
	if err := g.SendVerificationMessage(context.Background(), "+79991234567", "123456", 5*time.Minute); err != nil {
		t.Fatalf("SendVerificationMessage: %v", err)
	}
	if gotAuth != "Bearer GWTOKEN" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["phone_number"] != "+79991234567" || gotBody["code"] != "123456" || gotBody["ttl"] != float64(300) {
		t.Fatalf("body = %v", gotBody)
	}
}
