package chatbot

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/identity"
	"github.com/l1ndleq/creamshop-backend/internal/kv"
	"github.com/l1ndleq/creamshop-backend/internal/notify"
	"github.com/l1ndleq/creamshop-backend/internal/orders"
	"github.com/l1ndleq/creamshop-backend/internal/promo"
	"github.com/l1ndleq/creamshop-backend/internal/telegram"
)

// StateTTL bounds how long a multi-step prompt (awaiting a contact or an
// order id) stays armed. An expired state reads as idle.
const StateTTL = 5 * time.Minute

// BotAPI is the slice of the Telegram client the engine drives.
type BotAPI interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	GetChat(ctx context.Context, chatID int64) (telegram.Chat, error)
}

// Engine runs both bot personas over shared domain services.
type Engine struct {
	store    kv.Store
	registry *identity.Registry
	orders   *orders.Store
	promos   *promo.Repository
	notifier *notify.Dispatcher

	storeBot BotAPI
	adminBot BotAPI

	adminChatIDs map[int64]struct{}

	// TrackingURL builds the public tracking link for an order, or returns
	// "" when no public site is configured.
	TrackingURL func(orderID, phone string) string

	// Now is a clock seam for tests.
	Now func() time.Time

	log zerolog.Logger
}

// New assembles an Engine. adminChatIDs is the static allow-list for the
// admin persona; everyone else is refused.
func New(
	store kv.Store,
	registry *identity.Registry,
	orderStore *orders.Store,
	promos *promo.Repository,
	notifier *notify.Dispatcher,
	storeBot, adminBot BotAPI,
	adminChatIDs []int64,
	log zerolog.Logger,
) *Engine {
	allow := make(map[int64]struct{}, len(adminChatIDs))
	for _, id := range adminChatIDs {
		allow[id] = struct{}{}
	}
	return &Engine{
		store:        store,
		registry:     registry,
		orders:       orderStore,
		promos:       promos,
		notifier:     notifier,
		storeBot:     storeBot,
		adminBot:     adminBot,
		adminChatIDs: allow,
		Now:          time.Now,
		log:          log,
	}
}

// persona names keep the two bots' chat states in separate key spaces.
const (
	personaStore = "store"
	personaAdmin = "admin"
)

func stateKey(persona string, chatID int64) string {
	return "chat:state:" + persona + ":" + strconv.FormatInt(chatID, 10)
}

func (e *Engine) loadState(ctx context.Context, persona string, chatID int64) domain.ChatState {
	raw, ok, err := e.store.Get(ctx, stateKey(persona, chatID))
	if err != nil || !ok {
		return domain.ChatState{}
	}
	var st domain.ChatState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return domain.ChatState{}
	}
	return st
}

func (e *Engine) saveState(ctx context.Context, persona string, chatID int64, st domain.ChatState) {
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, stateKey(persona, chatID), string(raw), StateTTL); err != nil {
		e.log.Warn().Err(err).Int64("chat_id", chatID).Msg("chatbot: save state failed")
	}
}

func (e *Engine) clearState(ctx context.Context, persona string, chatID int64) {
	if err := e.store.Del(ctx, stateKey(persona, chatID)); err != nil {
		e.log.Warn().Err(err).Int64("chat_id", chatID).Msg("chatbot: clear state failed")
	}
}

// HandleStoreUpdate processes one webhook update for the storefront bot.
// It never returns an error and never panics outward; the webhook endpoint
// must always answer 200 so Telegram does not retry forever.
func (e *Engine) HandleStoreUpdate(ctx context.Context, u telegram.Update) {
	defer e.recoverUpdate("store")
	in, ok := ParseUpdate(u)
	if !ok {
		return
	}
	if in.CallbackID != "" {
		if err := e.storeBot.AnswerCallbackQuery(ctx, in.CallbackID, ""); err != nil {
			e.log.Warn().Err(err).Msg("chatbot: answer callback failed")
		}
	}
	e.dispatchStore(ctx, in.ChatID, in.Command)
}

// HandleAdminUpdate processes one webhook update for the admin bot.
func (e *Engine) HandleAdminUpdate(ctx context.Context, u telegram.Update) {
	defer e.recoverUpdate("admin")
	in, ok := ParseUpdate(u)
	if !ok {
		return
	}
	if in.CallbackID != "" {
		if err := e.adminBot.AnswerCallbackQuery(ctx, in.CallbackID, ""); err != nil {
			e.log.Warn().Err(err).Msg("chatbot: answer callback failed")
		}
	}
	e.dispatchAdmin(ctx, in.ChatID, in.Command)
}

func (e *Engine) recoverUpdate(persona string) {
	if r := recover(); r != nil {
		e.log.Error().Interface("panic", r).Str("bot", persona).Msg("chatbot: recovered from panic in update handler")
	}
}

func (e *Engine) send(ctx context.Context, bot BotAPI, chatID int64, text string, opts *telegram.SendOptions) {
	if opts == nil {
		opts = &telegram.SendOptions{}
	}
	if opts.ParseMode == "" {
		opts.ParseMode = "HTML"
	}
	if err := bot.SendMessage(ctx, chatID, text, opts); err != nil {
		e.log.Warn().Err(err).Int64("chat_id", chatID).Msg("chatbot: send failed")
	}
}
