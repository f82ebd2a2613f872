// Telegram HTTP handlers.
//
// Two webhook endpoints receive bot updates (store bot and admin bot), and a
// small session-scoped surface lets a logged-in customer inspect and sever
// the link between their phone and their Telegram chat.
//
// Webhook contract: Telegram retries any non-200 response, so the handlers
// acknowledge every update they manage to decode. Processing failures are
// contained inside the bot engine; a malformed body is the only thing that
// earns a 400.
package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/l1ndleq/creamshop-backend/internal/http/middleware"
	"github.com/l1ndleq/creamshop-backend/internal/telegram"
)

// TelegramStatusResponse reports whether the session phone has a bot chat
// bound to it.
type TelegramStatusResponse struct {
	Linked bool   `json:"linked"`
	BotURL string `json:"botUrl,omitempty" example:"https://t.me/creamshop_bot"`
}

// webhookAuthorized checks the X-Telegram-Bot-Api-Secret-Token header that
// Telegram echoes back when the webhook was registered with a secret. An
// unset secret disables the webhooks entirely.
func (h *Handlers) webhookAuthorized(c *gin.Context) bool {
	secret := h.auth.WebhookSecret
	if secret == "" {
		return false
	}
	got := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

// StoreBotWebhook godoc
// @ID          storeBotWebhook
// @Summary     Store bot webhook
// @Description Receives updates for the customer-facing bot. Requests must
// @Description carry the secret token Telegram attaches after setWebhook.
// @Tags        Telegram
// @Accept      json
// @Param       X-Telegram-Bot-Api-Secret-Token  header  string  true  "Webhook secret token"
// @Success     200  {string}  string  "ok"
// @Router      /tg/store [post]
func (h *Handlers) StoreBotWebhook(c *gin.Context) {
	h.handleWebhook(c, func(u telegram.Update) {
		h.bot.HandleStoreUpdate(c.Request.Context(), u)
	})
}

// AdminBotWebhook godoc
// @ID          adminBotWebhook
// @Summary     Admin bot webhook
// @Tags        Telegram
// @Accept      json
// @Param       X-Telegram-Bot-Api-Secret-Token  header  string  true  "Webhook secret token"
// @Success     200  {string}  string  "ok"
// @Router      /tg/admin [post]
func (h *Handlers) AdminBotWebhook(c *gin.Context) {
	h.handleWebhook(c, func(u telegram.Update) {
		h.bot.HandleAdminUpdate(c.Request.Context(), u)
	})
}

func (h *Handlers) handleWebhook(c *gin.Context, dispatch func(telegram.Update)) {
	if !h.webhookAuthorized(c) {
		// 404, not 401: anyone probing without the secret should see
		// no endpoint at all.
		fail(c, http.StatusNotFound, ErrCodeNotFound, "not found")
		return
	}
	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update payload")
		return
	}
	if h.bot != nil {
		dispatch(u)
	}
	c.String(http.StatusOK, "ok")
}

// TelegramStatus godoc
// @ID          telegramStatus
// @Summary     Report whether the session phone is linked to a bot chat
// @Tags        Telegram
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.TelegramStatusResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /telegram/status [get]
func (h *Handlers) TelegramStatus(c *gin.Context) {
	phone, okSess := middleware.SessionPhone(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "no session")
		return
	}
	_, linked, err := h.registry.ResolveChat(c.Request.Context(), phone)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read link state")
		return
	}
	resp := TelegramStatusResponse{Linked: linked}
	if !linked && h.auth.StoreBotUsername != "" {
		resp.BotURL = "https://t.me/" + h.auth.StoreBotUsername + "?start=bind_account"
	}
	ok(c, http.StatusOK, resp)
}

// TelegramUnlink godoc
// @ID          telegramUnlink
// @Summary     Sever the link between the session phone and its bot chat
// @Tags        Telegram
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /telegram/unlink [post]
func (h *Handlers) TelegramUnlink(c *gin.Context) {
	phone, okSess := middleware.SessionPhone(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "no session")
		return
	}
	if err := h.registry.Unbind(c.Request.Context(), phone); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not unlink")
		return
	}
	noContent(c)
}
