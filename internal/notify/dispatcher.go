// Package notify fans order events out to Telegram recipients: the
// configured admin chats (through the admin bot) and the customer's linked
// chat (through the store bot).
//
// Delivery is best-effort: per-recipient failures are logged and never fail
// the order operation that triggered them. Creation events are guarded by
// per-order per-channel markers in the key-value store so a retried checkout
// or duplicated webhook cannot re-notify; status-change events rely on the
// order store's no-op-on-unchanged-status rule instead.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/kv"
	"github.com/l1ndleq/creamshop-backend/internal/telegram"
)

// Sender is the outbound bot surface the dispatcher needs.
// Satisfied by *telegram.Client.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) error
}

// ChatResolver resolves a phone to its linked chat.
// Satisfied by *identity.Registry.
type ChatResolver interface {
	ResolveChat(ctx context.Context, phone string) (int64, bool, error)
}

// MarkerTTL bounds how long a "already notified" flag lives. Far longer than
// any realistic retry window, far shorter than forever.
const MarkerTTL = 30 * 24 * time.Hour

// rub renders amounts with Russian digit grouping.
var rub = message.NewPrinter(language.Russian)

// Dispatcher composes and delivers order notifications.
type Dispatcher struct {
	store    kv.Store
	resolver ChatResolver
	adminBot Sender
	storeBot Sender

	// AdminChatIDs receive admin-side notifications.
	AdminChatIDs []int64
	// TrackingURL renders the customer's tracking link for an order; nil
	// omits the link.
	TrackingURL func(orderID, phone string) string

	log zerolog.Logger
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(store kv.Store, resolver ChatResolver, adminBot, storeBot Sender, adminChatIDs []int64, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		resolver:     resolver,
		adminBot:     adminBot,
		storeBot:     storeBot,
		AdminChatIDs: adminChatIDs,
		log:          log,
	}
}

// OrderCreated notifies both channels about a new order. Each channel is
// independently idempotency-guarded; errors are logged, never returned.
func (d *Dispatcher) OrderCreated(ctx context.Context, order *domain.Order) {
	d.createdGuarded(ctx, order, "tg_admin_created", func() bool {
		return d.toAdmins(ctx, adminOrderText("Новый заказ", order))
	})
	d.createdGuarded(ctx, order, "tg_user_created", func() bool {
		return d.toUser(ctx, order, userCreatedText(order, d.link(order)))
	})
}

// StatusChanged notifies both channels about an applied status transition.
// The caller only invokes this when the transition actually changed state.
func (d *Dispatcher) StatusChanged(ctx context.Context, order *domain.Order) {
	d.toAdmins(ctx, adminOrderText("Заказ обновлён", order))
	d.toUser(ctx, order, userStatusText(order, d.link(order)))
}

// createdGuarded runs send under the per-order per-channel marker. When no
// delivery succeeds the marker is released so a later retry may notify.
func (d *Dispatcher) createdGuarded(ctx context.Context, order *domain.Order, channel string, send func() bool) {
	key := "order:" + order.ID + ":" + channel
	created, err := d.store.SetNX(ctx, key, "1", MarkerTTL)
	if err != nil {
		d.log.Error().Err(err).Str("order_id", order.ID).Str("channel", channel).Msg("notify marker write failed")
		return
	}
	if !created {
		return // already notified for this order+channel
	}
	if !send() {
		_ = d.store.Del(ctx, key)
	}
}

// toAdmins fans text out to every admin chat in parallel and reports whether
// at least one delivery succeeded.
func (d *Dispatcher) toAdmins(ctx context.Context, text string) bool {
	if len(d.AdminChatIDs) == 0 || d.adminBot == nil {
		return false
	}
	var delivered atomic.Int64
	var wg sync.WaitGroup
	for _, chatID := range d.AdminChatIDs {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			if err := d.adminBot.SendMessage(ctx, chatID, text, &telegram.SendOptions{ParseMode: "HTML"}); err != nil {
				d.log.Warn().Err(err).Int64("chat_id", chatID).Msg("admin notification failed")
				return
			}
			delivered.Add(1)
		}(chatID)
	}
	wg.Wait()
	return delivered.Load() > 0
}

// toUser sends text to the customer's linked chat, if any, and reports
// whether delivery succeeded. An unlinked phone is not a failure worth a
// retry, so it counts as delivered.
func (d *Dispatcher) toUser(ctx context.Context, order *domain.Order, text string) bool {
	if d.storeBot == nil {
		return false
	}
	chatID, ok, err := d.resolver.ResolveChat(ctx, order.Customer.Phone)
	if err != nil {
		d.log.Error().Err(err).Str("order_id", order.ID).Msg("chat resolution failed")
		return false
	}
	if !ok {
		return true
	}
	if err := d.storeBot.SendMessage(ctx, chatID, text, &telegram.SendOptions{ParseMode: "HTML"}); err != nil {
		d.log.Warn().Err(err).Int64("chat_id", chatID).Str("order_id", order.ID).Msg("user notification failed")
		return false
	}
	return true
}

func (d *Dispatcher) link(order *domain.Order) string {
	if d.TrackingURL == nil {
		return ""
	}
	return d.TrackingURL(order.ID, order.Customer.Phone)
}

//
// Message composition
//

// StatusLabel maps a status onto its customer-facing Russian label.
func StatusLabel(s domain.OrderStatus) string {
	switch s {
	case domain.StatusNew:
		return "новый"
	case domain.StatusPendingPayment:
		return "ожидает оплаты"
	case domain.StatusPaid:
		return "оплачен"
	case domain.StatusProcessing:
		return "готовится"
	case domain.StatusShipped:
		return "передан в доставку"
	case domain.StatusDelivered:
		return "доставлен"
	case domain.StatusCompleted:
		return "завершён"
	case domain.StatusCancelled:
		return "отменён"
	}
	return string(s)
}

// FormatRubles renders an amount as "1 490 ₽" with locale grouping.
func FormatRubles(amount int64) string {
	return rub.Sprintf("%d ₽", amount)
}

func adminOrderText(title string, order *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s %s</b>\n", title, order.ID)
	fmt.Fprintf(&b, "Статус: %s\n", StatusLabel(order.Status))
	fmt.Fprintf(&b, "Клиент: %s, %s\n", order.Customer.Name, order.Customer.Phone)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "· %s × %d — %s\n", item.Title, item.Qty, FormatRubles(item.Price*int64(item.Qty)))
	}
	if order.Discount > 0 {
		fmt.Fprintf(&b, "Промокод %s: −%s\n", order.PromoCode, FormatRubles(order.Discount))
	}
	fmt.Fprintf(&b, "Итого: <b>%s</b>", FormatRubles(order.TotalPrice))
	return b.String()
}

func userCreatedText(order *domain.Order, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Спасибо за заказ! 🍦\n")
	fmt.Fprintf(&b, "Номер заказа: <b>%s</b>\n", order.ID)
	fmt.Fprintf(&b, "Сумма: <b>%s</b>\n", FormatRubles(order.TotalPrice))
	fmt.Fprintf(&b, "Статус: %s", StatusLabel(order.Status))
	if link != "" {
		fmt.Fprintf(&b, "\nОтследить: %s", link)
	}
	return b.String()
}

func userStatusText(order *domain.Order, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Заказ <b>%s</b>: %s", order.ID, StatusLabel(order.Status))
	if link != "" {
		fmt.Fprintf(&b, "\nПодробнее: %s", link)
	}
	return b.String()
}
