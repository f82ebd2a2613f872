package chatbot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/notify"
	"github.com/l1ndleq/creamshop-backend/internal/promo"
	"github.com/l1ndleq/creamshop-backend/internal/telegram"
)

const adminListLimit = 10

// dispatchAdmin routes one parsed command through the admin persona. The
// allow-list gate runs first; a refused chat learns its own chat id so an
// operator can add it to the configuration.
func (e *Engine) dispatchAdmin(ctx context.Context, chatID int64, cmd Command) {
	if _, ok := e.adminChatIDs[chatID]; !ok {
		e.send(ctx, e.adminBot, chatID,
			fmt.Sprintf("Доступ запрещён. Ваш chat id: <code>%d</code>", chatID), nil)
		return
	}
	switch c := cmd.(type) {
	case CmdStart:
		e.sendAdminMenu(ctx, chatID)
	case CmdAdminOrders:
		e.adminOrders(ctx, chatID)
	case CmdAdminOrderDetail:
		e.adminOrderDetail(ctx, chatID, c.OrderID)
	case CmdAdminSetStatus:
		e.adminSetStatus(ctx, chatID, c)
	case CmdAdminPromos:
		e.adminPromos(ctx, chatID)
	case CmdAdminPromoToggle:
		e.adminPromoToggle(ctx, chatID, c.Code)
	case CmdAdminPromoDelete:
		e.adminPromoDelete(ctx, chatID, c.Code)
	case CmdAdminNewPromo:
		e.adminNewPromo(ctx, chatID, c)
	case CmdTrackOrder:
		// A bare order id typed into the admin chat opens the detail view.
		e.adminOrderDetail(ctx, chatID, c.OrderID)
	default:
		e.sendAdminMenu(ctx, chatID)
	}
}

func (e *Engine) sendAdminMenu(ctx context.Context, chatID int64) {
	markup := telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "📦 Заказы", CallbackData: cbAdminOrders}},
		{{Text: "🏷 Промокоды", CallbackData: cbAdminPromos}},
	}}
	e.send(ctx, e.adminBot, chatID, "Панель управления Creamshop", &telegram.SendOptions{ReplyMarkup: markup})
}

func (e *Engine) adminOrders(ctx context.Context, chatID int64) {
	list, err := e.orders.ListRecent(ctx, adminListLimit)
	if err != nil {
		e.send(ctx, e.adminBot, chatID, "Ошибка загрузки заказов.", nil)
		return
	}
	if len(list) == 0 {
		e.send(ctx, e.adminBot, chatID, "Заказов пока нет.", nil)
		return
	}
	rows := make([][]telegram.InlineKeyboardButton, 0, len(list))
	for _, o := range list {
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         fmt.Sprintf("%s · %s · %s", o.ID, notify.StatusLabel(o.Status), notify.FormatRubles(o.TotalPrice)),
			CallbackData: cbOrderDetailPrefix + o.ID,
		}})
	}
	e.send(ctx, e.adminBot, chatID, "<b>Последние заказы:</b>",
		&telegram.SendOptions{ReplyMarkup: telegram.InlineKeyboardMarkup{InlineKeyboard: rows}})
}

func (e *Engine) adminOrderDetail(ctx context.Context, chatID int64, orderID string) {
	order, found, err := e.orders.Get(ctx, orderID)
	if err != nil {
		e.send(ctx, e.adminBot, chatID, "Ошибка загрузки заказа.", nil)
		return
	}
	if !found {
		e.send(ctx, e.adminBot, chatID,
			fmt.Sprintf("Заказ <b>%s</b> не найден.", html.EscapeString(orderID)), nil)
		return
	}
	e.send(ctx, e.adminBot, chatID, adminOrderText(order),
		&telegram.SendOptions{ReplyMarkup: statusKeyboard(order)})
}

// statusKeyboard offers every status except the order's current one.
func statusKeyboard(order *domain.Order) telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton
	var row []telegram.InlineKeyboardButton
	for _, s := range domain.AllStatuses() {
		if s == order.Status {
			continue
		}
		row = append(row, telegram.InlineKeyboardButton{
			Text:         notify.StatusLabel(s),
			CallbackData: cbSetStatusPrefix + order.ID + ":" + string(s),
		})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func adminOrderText(order *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Заказ %s</b>\nСтатус: %s\n", order.ID, notify.StatusLabel(order.Status))
	if order.Customer.Name != "" {
		fmt.Fprintf(&b, "Клиент: %s\n", html.EscapeString(order.Customer.Name))
	}
	fmt.Fprintf(&b, "Телефон: %s\n", html.EscapeString(order.Customer.Phone))
	for _, item := range order.Items {
		fmt.Fprintf(&b, "\n• %s × %d — %s",
			html.EscapeString(item.Title), item.Qty, notify.FormatRubles(item.Price*int64(item.Qty)))
	}
	if order.PromoCode != "" {
		fmt.Fprintf(&b, "\n\nПромокод: %s (−%s)", html.EscapeString(order.PromoCode), notify.FormatRubles(order.Discount))
	}
	fmt.Fprintf(&b, "\n\nИтого: <b>%s</b>", notify.FormatRubles(order.TotalPrice))
	return b.String()
}

// adminSetStatus applies a transition and, when the status actually changed,
// notifies the customer. Pressing a stale button twice is a no-op.
func (e *Engine) adminSetStatus(ctx context.Context, chatID int64, c CmdAdminSetStatus) {
	order, changed, err := e.orders.Transition(ctx, c.OrderID, c.Status, domain.ActorAdmin)
	if err != nil {
		e.send(ctx, e.adminBot, chatID, "Не удалось обновить статус заказа.", nil)
		return
	}
	if changed && e.notifier != nil {
		e.notifier.StatusChanged(ctx, order)
	}
	prefix := "Статус обновлён ✅\n\n"
	if !changed {
		prefix = "Статус уже установлен.\n\n"
	}
	e.send(ctx, e.adminBot, chatID, prefix+adminOrderText(order),
		&telegram.SendOptions{ReplyMarkup: statusKeyboard(order)})
}

func (e *Engine) adminPromos(ctx context.Context, chatID int64) {
	list, err := e.promos.List(ctx)
	if err != nil {
		e.send(ctx, e.adminBot, chatID, "Ошибка загрузки промокодов.", nil)
		return
	}
	var b strings.Builder
	b.WriteString("<b>Промокоды</b>\n")
	if len(list) == 0 {
		b.WriteString("\nПока нет ни одного промокода.")
	}
	var rows [][]telegram.InlineKeyboardButton
	for _, p := range list {
		fmt.Fprintf(&b, "\n%s — %s", p.Code, promoSummary(p))
		toggle := "Выключить"
		if !p.Active {
			toggle = "Включить"
		}
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: toggle + " " + p.Code, CallbackData: cbPromoTogglePrefix + p.Code},
			{Text: "🗑 " + p.Code, CallbackData: cbPromoDeletePrefix + p.Code},
		})
	}
	b.WriteString("\n\nНовый промокод: <code>/newpromo КОД percent|fixed ЗНАЧЕНИЕ [лимит] [дней]</code>")
	e.send(ctx, e.adminBot, chatID, b.String(),
		&telegram.SendOptions{ReplyMarkup: telegram.InlineKeyboardMarkup{InlineKeyboard: rows}})
}

func promoSummary(p domain.PromoCode) string {
	var parts []string
	if p.Type == domain.PromoPercent {
		parts = append(parts, fmt.Sprintf("%d%%", p.Value))
	} else {
		parts = append(parts, notify.FormatRubles(p.Value))
	}
	if !p.Active {
		parts = append(parts, "выключен")
	}
	if p.MaxUses != nil {
		parts = append(parts, fmt.Sprintf("использован %d/%d", p.UsedCount, *p.MaxUses))
	}
	if p.ExpiresAt != nil {
		parts = append(parts, "до "+p.ExpiresAt.Format("02.01.2006"))
	}
	return strings.Join(parts, ", ")
}

func (e *Engine) adminPromoToggle(ctx context.Context, chatID int64, code string) {
	p, found, err := e.promos.Update(ctx, code, func(p *domain.PromoCode) {
		p.Active = !p.Active
	})
	if err != nil || !found {
		e.send(ctx, e.adminBot, chatID, "Промокод не найден.", nil)
		return
	}
	state := "включён"
	if !p.Active {
		state = "выключен"
	}
	e.send(ctx, e.adminBot, chatID,
		fmt.Sprintf("Промокод <b>%s</b> %s.", html.EscapeString(p.Code), state), nil)
	e.adminPromos(ctx, chatID)
}

func (e *Engine) adminPromoDelete(ctx context.Context, chatID int64, code string) {
	deleted, err := e.promos.Delete(ctx, code)
	if err != nil || !deleted {
		e.send(ctx, e.adminBot, chatID, "Промокод не найден.", nil)
		return
	}
	e.send(ctx, e.adminBot, chatID,
		fmt.Sprintf("Промокод <b>%s</b> удалён.", html.EscapeString(promo.NormalizeCode(code))), nil)
	e.adminPromos(ctx, chatID)
}

func (e *Engine) adminNewPromo(ctx context.Context, chatID int64, c CmdAdminNewPromo) {
	if c.BadSyntax {
		e.send(ctx, e.adminBot, chatID,
			"Формат: <code>/newpromo КОД percent|fixed ЗНАЧЕНИЕ [лимит] [дней]</code>\n"+
				"Например: <code>/newpromo LETO10 percent 10 100 30</code>", nil)
		return
	}
	p := c.Promo
	if c.ExpiresInDays > 0 {
		exp := e.Now().Add(time.Duration(c.ExpiresInDays) * 24 * time.Hour)
		p.ExpiresAt = &exp
	}
	created, err := e.promos.Create(ctx, p)
	switch {
	case errors.Is(err, promo.ErrExists):
		e.send(ctx, e.adminBot, chatID,
			fmt.Sprintf("Промокод <b>%s</b> уже существует.", html.EscapeString(promo.NormalizeCode(p.Code))), nil)
		return
	case err != nil:
		e.send(ctx, e.adminBot, chatID, "Не удалось создать промокод: "+html.EscapeString(err.Error()), nil)
		return
	}
	e.send(ctx, e.adminBot, chatID,
		fmt.Sprintf("Промокод <b>%s</b> создан: %s", created.Code, promoSummary(created)), nil)
}
