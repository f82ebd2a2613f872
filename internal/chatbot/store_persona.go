package chatbot

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/notify"
	"github.com/l1ndleq/creamshop-backend/internal/orders"
	"github.com/l1ndleq/creamshop-backend/internal/telegram"
)

// dispatchStore routes one parsed command through the storefront persona.
func (e *Engine) dispatchStore(ctx context.Context, chatID int64, cmd Command) {
	switch c := cmd.(type) {
	case CmdStart:
		e.clearState(ctx, personaStore, chatID)
		e.sendStoreMenu(ctx, chatID)
	case CmdStartAuth:
		e.storeStartAuth(ctx, chatID, c.State)
	case CmdStartBind:
		e.saveState(ctx, personaStore, chatID, domain.ChatState{Kind: domain.ChatAwaitingContact})
		e.askContact(ctx, chatID)
	case CmdContact:
		e.storeContact(ctx, chatID, c)
	case CmdMyOrders:
		e.storeMyOrders(ctx, chatID)
	case CmdAskOrderID:
		e.saveState(ctx, personaStore, chatID, domain.ChatState{Kind: domain.ChatAwaitingOrderID})
		e.send(ctx, e.storeBot, chatID, "Введите номер заказа (например, <b>P-ABC123</b>):", nil)
	case CmdTrackOrder:
		e.clearState(ctx, personaStore, chatID)
		e.storeTrackOrder(ctx, chatID, c.OrderID)
	case CmdFreeText:
		e.storeFreeText(ctx, chatID, c.Text)
	default:
		// Admin-only commands arriving at the storefront bot fall through
		// to the menu; they are not an error worth reporting to the user.
		e.sendStoreMenu(ctx, chatID)
	}
}

func (e *Engine) sendStoreMenu(ctx context.Context, chatID int64) {
	markup := telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "📦 Мои заказы", CallbackData: cbMyOrders}},
		{{Text: "🔎 Отследить заказ", CallbackData: cbTrackOrder}},
		{{Text: "📱 Привязать телефон", CallbackData: cbBindAccount}},
	}}
	e.send(ctx, e.storeBot, chatID,
		"Привет! Я бот магазина Creamshop 🍦\nЧем могу помочь?",
		&telegram.SendOptions{ReplyMarkup: markup})
}

// storeStartAuth handles the /start auth_<state> deep link opened from the
// storefront login page. The state handle must still exist; expired links
// get a fresh-login hint instead of a silent failure.
func (e *Engine) storeStartAuth(ctx context.Context, chatID int64, state string) {
	_, ok, err := e.registry.GetAuthState(ctx, state)
	if err != nil || !ok {
		e.send(ctx, e.storeBot, chatID,
			"Ссылка для входа устарела. Вернитесь на сайт и начните вход заново.", nil)
		return
	}
	e.saveState(ctx, personaStore, chatID, domain.ChatState{
		Kind:      domain.ChatAwaitingContact,
		AuthState: state,
	})
	e.askContact(ctx, chatID)
}

func (e *Engine) askContact(ctx context.Context, chatID int64) {
	markup := telegram.ReplyKeyboardMarkup{
		Keyboard:        [][]telegram.KeyboardButton{{{Text: "📱 Отправить номер", RequestContact: true}}},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
	e.send(ctx, e.storeBot, chatID,
		"Нажмите кнопку ниже, чтобы поделиться номером телефона.",
		&telegram.SendOptions{ReplyMarkup: markup})
}

// storeContact receives a shared contact: binds the phone to this chat,
// captures the profile, and completes a pending browser login if one is
// attached to the chat state.
func (e *Engine) storeContact(ctx context.Context, chatID int64, c CmdContact) {
	// Only the chat owner's own contact links the account. A forwarded
	// contact card must not authenticate someone else's number.
	if c.From != nil && c.Contact.UserID != 0 && c.Contact.UserID != c.From.ID {
		e.send(ctx, e.storeBot, chatID,
			"Пожалуйста, отправьте свой собственный номер через кнопку ниже.", nil)
		return
	}
	st := e.loadState(ctx, personaStore, chatID)

	phone, digits, err := e.registry.Bind(ctx, chatID, c.Contact.PhoneNumber)
	if err != nil {
		e.send(ctx, e.storeBot, chatID,
			"Не удалось распознать номер телефона. Попробуйте ещё раз.", nil)
		return
	}

	profile := domain.CustomerProfile{Phone: phone, ChatID: chatID}
	if c.From != nil {
		profile.Telegram = c.From.Username
		profile.Name = strings.TrimSpace(c.From.FirstName + " " + c.From.LastName)
	}
	if profile.Telegram == "" {
		// Updates from some clients omit the sender; fall back to the chat.
		if chat, err := e.storeBot.GetChat(ctx, chatID); err == nil {
			profile.Telegram = chat.Username
		}
	}
	if err := e.registry.SaveProfile(ctx, profile); err != nil {
		e.log.Warn().Err(err).Str("digits", digits).Msg("chatbot: save profile failed")
	}

	text := "Готово! Номер привязан к вашему Telegram ✅"
	if st.AuthState != "" {
		if err := e.registry.CompleteAuthState(ctx, st.AuthState, phone); err != nil {
			e.log.Warn().Err(err).Msg("chatbot: complete auth state failed")
			text = "Номер привязан, но вход на сайте не завершился. Вернитесь на сайт и попробуйте снова."
		} else {
			text = "Готово! Вернитесь на сайт — вход выполнен автоматически ✅"
		}
	}
	e.clearState(ctx, personaStore, chatID)
	e.send(ctx, e.storeBot, chatID, text,
		&telegram.SendOptions{ReplyMarkup: telegram.ReplyKeyboardRemove{RemoveKeyboard: true}})
}

func (e *Engine) storeMyOrders(ctx context.Context, chatID int64) {
	phone, ok, err := e.registry.PhoneForChat(ctx, chatID)
	if err != nil || !ok {
		e.sendNeedBind(ctx, chatID)
		return
	}
	list, err := e.orders.ListForPhone(ctx, phone, 10)
	if err != nil {
		e.send(ctx, e.storeBot, chatID, "Не получилось загрузить заказы. Попробуйте позже.", nil)
		return
	}
	if len(list) == 0 {
		e.send(ctx, e.storeBot, chatID, "У вас пока нет заказов 🍦", nil)
		return
	}
	var b strings.Builder
	b.WriteString("<b>Ваши заказы:</b>\n")
	for _, o := range list {
		fmt.Fprintf(&b, "\n%s — %s, %s",
			o.ID, notify.StatusLabel(o.Status), notify.FormatRubles(o.TotalPrice))
	}
	b.WriteString("\n\nОтправьте номер заказа, чтобы посмотреть детали.")
	e.send(ctx, e.storeBot, chatID, b.String(), nil)
}

// storeTrackOrder shows an order's details, but only to the phone the order
// belongs to. Unknown ids and foreign orders get the same answer so the bot
// does not confirm which order ids exist.
func (e *Engine) storeTrackOrder(ctx context.Context, chatID int64, orderID string) {
	phone, ok, err := e.registry.PhoneForChat(ctx, chatID)
	if err != nil || !ok {
		e.sendNeedBind(ctx, chatID)
		return
	}
	order, found, err := e.orders.Get(ctx, orderID)
	if err != nil {
		e.send(ctx, e.storeBot, chatID, "Не получилось загрузить заказ. Попробуйте позже.", nil)
		return
	}
	if !found || !orders.Owns(order, phone) {
		e.send(ctx, e.storeBot, chatID,
			fmt.Sprintf("Заказ <b>%s</b> не найден среди ваших заказов.", html.EscapeString(orderID)), nil)
		return
	}
	e.send(ctx, e.storeBot, chatID, e.userOrderDetail(order), nil)
}

func (e *Engine) userOrderDetail(order *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Заказ %s</b>\nСтатус: %s\n", order.ID, notify.StatusLabel(order.Status))
	for _, item := range order.Items {
		fmt.Fprintf(&b, "\n• %s × %d — %s",
			html.EscapeString(item.Title), item.Qty, notify.FormatRubles(item.Price*int64(item.Qty)))
	}
	fmt.Fprintf(&b, "\n\nИтого: <b>%s</b>", notify.FormatRubles(order.TotalPrice))
	if e.TrackingURL != nil {
		if url := e.TrackingURL(order.ID, order.Customer.Phone); url != "" {
			fmt.Fprintf(&b, "\n<a href=\"%s\">Страница заказа</a>", url)
		}
	}
	return b.String()
}

func (e *Engine) sendNeedBind(ctx context.Context, chatID int64) {
	markup := telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "📱 Привязать телефон", CallbackData: cbBindAccount}},
	}}
	e.send(ctx, e.storeBot, chatID,
		"Сначала привяжите номер телефона, чтобы я нашёл ваши заказы.",
		&telegram.SendOptions{ReplyMarkup: markup})
}

// storeFreeText resolves free text against the armed chat state. With an
// awaiting_order_id state any text is treated as an order id attempt; idle
// chats get the menu hint.
func (e *Engine) storeFreeText(ctx context.Context, chatID int64, text string) {
	st := e.loadState(ctx, personaStore, chatID)
	if st.Kind == domain.ChatAwaitingOrderID {
		e.clearState(ctx, personaStore, chatID)
		e.storeTrackOrder(ctx, chatID, strings.ToUpper(strings.TrimSpace(text)))
		return
	}
	e.send(ctx, e.storeBot, chatID,
		"Я не понял сообщение 🙈 Нажмите /start, чтобы открыть меню.", nil)
}
