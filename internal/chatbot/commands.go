// Package chatbot implements the conversational engine behind the two bot
// personas: the storefront "login/support" bot and the "admin control" bot.
//
// Inbound webhook updates are parsed exactly once, at the edge, into a
// tagged Command value (this file); the personas then switch exhaustively
// over the commands. This keeps the conversational logic testable without
// HTTP mocking and confines Telegram payload details to the parser.
package chatbot

import (
	"strconv"
	"strings"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/orders"
	"github.com/l1ndleq/creamshop-backend/internal/telegram"
)

// Callback-data tokens shared with the inline keyboards built in the persona
// files. Parameterized tokens use a ":"-separated suffix.
const (
	cbMenu        = "MENU"
	cbMyOrders    = "MY_ORDERS"
	cbTrackOrder  = "TRACK_ORDER"
	cbBindAccount = "BIND_ACCOUNT"
	cbAdminOrders = "ADM_ORDERS"
	cbAdminPromos = "ADM_PROMOS"

	cbOrderDetailPrefix = "ORD:"
	cbSetStatusPrefix   = "ST:"
	cbPromoTogglePrefix = "PROMO_TOGGLE:"
	cbPromoDeletePrefix = "PROMO_DEL:"
)

// Command is the tagged variant type all inbound updates parse into.
type Command interface{ isCommand() }

// Storefront persona commands.
type (
	// CmdStart is a bare /start or the menu button.
	CmdStart struct{}
	// CmdStartAuth is the /start auth_<state> deep link of the browser login.
	CmdStartAuth struct{ State string }
	// CmdStartBind is the /start bind_account deep link or the link-phone button.
	CmdStartBind struct{}
	// CmdContact is a shared contact.
	CmdContact struct {
		Contact telegram.Contact
		From    *telegram.User
	}
	// CmdMyOrders lists the caller's orders.
	CmdMyOrders struct{}
	// CmdAskOrderID asks for an order id (ambiguous tracking intent).
	CmdAskOrderID struct{}
	// CmdTrackOrder resolves a concrete order id.
	CmdTrackOrder struct{ OrderID string }
	// CmdFreeText is anything else typed into the chat.
	CmdFreeText struct{ Text string }
)

// Admin persona commands.
type (
	// CmdAdminOrders lists recent orders.
	CmdAdminOrders struct{}
	// CmdAdminOrderDetail shows one order with status controls.
	CmdAdminOrderDetail struct{ OrderID string }
	// CmdAdminSetStatus applies a status transition from the chat.
	CmdAdminSetStatus struct {
		OrderID string
		Status  domain.OrderStatus
	}
	// CmdAdminPromos lists promo codes with controls.
	CmdAdminPromos struct{}
	// CmdAdminPromoToggle flips a promo's active flag.
	CmdAdminPromoToggle struct{ Code string }
	// CmdAdminPromoDelete removes a promo.
	CmdAdminPromoDelete struct{ Code string }
	// CmdAdminNewPromo creates a promo from the /newpromo command line.
	CmdAdminNewPromo struct {
		Promo domain.PromoCode
		// ExpiresInDays > 0 asks for an expiry relative to now; the
		// persona owns the clock and resolves it.
		ExpiresInDays int
		// BadSyntax is set when the command line did not parse; the
		// persona answers with usage help instead of creating.
		BadSyntax bool
	}
)

func (CmdStart) isCommand()            {}
func (CmdStartAuth) isCommand()        {}
func (CmdStartBind) isCommand()        {}
func (CmdContact) isCommand()          {}
func (CmdMyOrders) isCommand()         {}
func (CmdAskOrderID) isCommand()       {}
func (CmdTrackOrder) isCommand()       {}
func (CmdFreeText) isCommand()         {}
func (CmdAdminOrders) isCommand()      {}
func (CmdAdminOrderDetail) isCommand() {}
func (CmdAdminSetStatus) isCommand()   {}
func (CmdAdminPromos) isCommand()      {}
func (CmdAdminPromoToggle) isCommand() {}
func (CmdAdminPromoDelete) isCommand() {}
func (CmdAdminNewPromo) isCommand()    {}

// Inbound is a parsed update: where it came from and what it asks for.
type Inbound struct {
	ChatID int64
	// CallbackID is set when the update was a button press and must be
	// acknowledged with answerCallbackQuery.
	CallbackID string
	Command    Command
}

// ParseUpdate maps a webhook update onto an Inbound. The boolean is false
// for update shapes this backend does not consume (edits, channel posts).
func ParseUpdate(u telegram.Update) (Inbound, bool) {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		if cb.Message == nil {
			return Inbound{}, false
		}
		return Inbound{
			ChatID:     cb.Message.Chat.ID,
			CallbackID: cb.ID,
			Command:    parseCallback(cb.Data),
		}, true
	case u.Message != nil:
		msg := u.Message
		if msg.Contact != nil {
			return Inbound{
				ChatID:  msg.Chat.ID,
				Command: CmdContact{Contact: *msg.Contact, From: msg.From},
			}, true
		}
		return Inbound{
			ChatID:  msg.Chat.ID,
			Command: parseText(msg.Text),
		}, true
	}
	return Inbound{}, false
}

// parseCallback maps a callback_data token onto a Command.
func parseCallback(data string) Command {
	switch data {
	case cbMenu:
		return CmdStart{}
	case cbMyOrders:
		return CmdMyOrders{}
	case cbTrackOrder:
		return CmdAskOrderID{}
	case cbBindAccount:
		return CmdStartBind{}
	case cbAdminOrders:
		return CmdAdminOrders{}
	case cbAdminPromos:
		return CmdAdminPromos{}
	}
	switch {
	case strings.HasPrefix(data, cbOrderDetailPrefix):
		return CmdAdminOrderDetail{OrderID: strings.TrimPrefix(data, cbOrderDetailPrefix)}
	case strings.HasPrefix(data, cbSetStatusPrefix):
		rest := strings.TrimPrefix(data, cbSetStatusPrefix)
		orderID, rawStatus, ok := strings.Cut(rest, ":")
		if !ok {
			return CmdFreeText{Text: data}
		}
		status, valid := domain.ParseStatus(rawStatus)
		if !valid {
			return CmdFreeText{Text: data}
		}
		return CmdAdminSetStatus{OrderID: orderID, Status: status}
	case strings.HasPrefix(data, cbPromoTogglePrefix):
		return CmdAdminPromoToggle{Code: strings.TrimPrefix(data, cbPromoTogglePrefix)}
	case strings.HasPrefix(data, cbPromoDeletePrefix):
		return CmdAdminPromoDelete{Code: strings.TrimPrefix(data, cbPromoDeletePrefix)}
	}
	return CmdFreeText{Text: data}
}

// parseText maps a typed message onto a Command.
func parseText(text string) Command {
	text = strings.TrimSpace(text)
	switch {
	case text == "/start", text == "/menu":
		return CmdStart{}
	case strings.HasPrefix(text, "/start "):
		arg := strings.TrimSpace(strings.TrimPrefix(text, "/start "))
		switch {
		case strings.HasPrefix(arg, "auth_"):
			return CmdStartAuth{State: strings.TrimPrefix(arg, "auth_")}
		case arg == "bind_account":
			return CmdStartBind{}
		}
		return CmdStart{}
	case text == "/orders":
		return CmdMyOrders{}
	case text == "/track":
		return CmdAskOrderID{}
	case strings.HasPrefix(text, "/newpromo"):
		return parseNewPromo(text)
	case orders.OrderIDPattern(text):
		return CmdTrackOrder{OrderID: strings.ToUpper(text)}
	}
	return CmdFreeText{Text: text}
}

// parseNewPromo parses "/newpromo CODE percent|fixed VALUE [maxUses] [days]".
func parseNewPromo(text string) Command {
	fields := strings.Fields(text)
	if len(fields) < 4 || len(fields) > 6 {
		return CmdAdminNewPromo{BadSyntax: true}
	}
	value, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil || value <= 0 {
		return CmdAdminNewPromo{BadSyntax: true}
	}
	var promoType domain.PromoType
	switch fields[2] {
	case "percent":
		promoType = domain.PromoPercent
	case "fixed":
		promoType = domain.PromoFixed
	default:
		return CmdAdminNewPromo{BadSyntax: true}
	}
	p := domain.PromoCode{
		Code:   fields[1],
		Type:   promoType,
		Value:  value,
		Active: true,
	}
	if len(fields) >= 5 {
		maxUses, err := strconv.Atoi(fields[4])
		if err != nil || maxUses <= 0 {
			return CmdAdminNewPromo{BadSyntax: true}
		}
		p.MaxUses = &maxUses
	}
	cmd := CmdAdminNewPromo{Promo: p}
	if len(fields) == 6 {
		days, err := strconv.Atoi(fields[5])
		if err != nil || days <= 0 {
			return CmdAdminNewPromo{BadSyntax: true}
		}
		cmd.ExpiresInDays = days
	}
	return cmd
}
