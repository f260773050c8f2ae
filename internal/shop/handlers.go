package shop

import (
	"context"
	"fmt"
	"strings"

	tg "github.com/CaDiBob/simple-telegram-store/core/telegram"
	"github.com/CaDiBob/simple-telegram-store/core/telegram/callbacks"
	"github.com/CaDiBob/simple-telegram-store/core/telegram/helpers"
	"github.com/CaDiBob/simple-telegram-store/core/telegram/keyboard"
	"github.com/CaDiBob/simple-telegram-store/internal/payment"

	tele "gopkg.in/telebot.v4"
)

// CallbackKey is the single registry key all shop keyboards use; the opaque
// button token travels in the callback payload.
const CallbackKey = "shop"

// Handlers adapts telebot updates into machine events and plays the
// machine's renders back through the transport helpers.
type Handlers struct {
	machine      *Machine
	orders       *payment.OrderStore
	paymentToken string
}

func NewHandlers(m *Machine, orders *payment.OrderStore, paymentToken string) *Handlers {
	return &Handlers{machine: m, orders: orders, paymentToken: paymentToken}
}

// Register wires the shop callback into the registry.
func (h *Handlers) Register(reg *tg.Registry) error {
	return reg.RegisterCallback(CallbackKey, h.OnCallback)
}

// OnStart handles /start.
func (h *Handlers) OnStart(c tele.Context) error {
	var firstName string
	if sender := c.Sender(); sender != nil {
		firstName = sender.FirstName
	}
	return h.handle(c, Command{Name: "start", FirstName: firstName})
}

// OnCancel handles /cancel.
func (h *Handlers) OnCancel(c tele.Context) error {
	return h.handle(c, Command{Name: "cancel"})
}

// OnHelp handles /help.
func (h *Handlers) OnHelp(c tele.Context) error {
	return h.handle(c, Command{Name: "help"})
}

// OnCallback dispatches a tapped inline button.
func (h *Handlers) OnCallback(c tele.Context) error {
	return h.handle(c, ButtonTap{Token: callbacks.CallbackPayload(c)})
}

// InProgress implements the text router's conversation check.
func (h *Handlers) InProgress(userID int64) bool {
	return h.machine.InProgress(context.Background(), userID)
}

// CaptureText feeds a free-text message into the machine.
func (h *Handlers) CaptureText(c tele.Context) error {
	return h.handle(c, FreeText{Text: c.Text()})
}

// OnCheckout answers the provider's pre-checkout query.
func (h *Handlers) OnCheckout(c tele.Context) error {
	q := c.Update().PreCheckoutQuery
	if q == nil {
		return nil
	}
	return h.handle(c, PreCheckout{Payload: q.Payload})
}

// OnPayment finalizes the order after a successful payment.
func (h *Handlers) OnPayment(c tele.Context) error {
	return h.handle(c, PaymentSuccess{})
}

// OnOrders lists recent paid orders. Wired as a hidden admin command.
func (h *Handlers) OnOrders(c tele.Context) error {
	if h.orders == nil {
		return helpers.SendText(c, "Хранилище заказов не настроено.")
	}

	ctx := helpers.BuildContext(c)
	orders, err := h.orders.ListRecent(ctx, 10)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return helpers.SendText(c, "Заказов пока нет.")
	}

	var b strings.Builder
	b.WriteString("Последние заказы:\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n%s — %s ₽ — %s\n%s\n",
			o.ID, o.Total.StringFixed(2), o.CreatedAt.Format("02.01.2006 15:04"), o.Summary)
	}
	return helpers.SendText(c, b.String())
}

func (h *Handlers) handle(c tele.Context, ev Event) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	ctx := helpers.BuildContext(c)
	renders, err := h.machine.Handle(ctx, sender.ID, ev)
	if err != nil {
		return err
	}
	return h.play(c, renders)
}

func (h *Handlers) play(c tele.Context, renders []Render) error {
	for _, r := range renders {
		var err error
		switch v := r.(type) {
		case SendMessage:
			if m := markup(v.Buttons); m != nil {
				err = helpers.SendMD(c, v.Text, m)
			} else {
				err = helpers.SendMD(c, v.Text)
			}
		case EditMessage:
			if m := markup(v.Buttons); m != nil {
				err = helpers.EditOrSendMD(c, v.Text, m)
			} else {
				err = helpers.EditOrSendMD(c, v.Text)
			}
		case SendInvoice:
			err = helpers.SendInvoice(c, h.invoice(v.Invoice))
		case AnswerPreCheckout:
			if v.OK {
				err = c.Accept()
			} else {
				err = c.Accept(v.Reason)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) invoice(inv payment.Invoice) *tele.Invoice {
	return &tele.Invoice{
		Title:       inv.Title,
		Description: inv.Description,
		Payload:     inv.Payload,
		Currency:    inv.Currency,
		Token:       h.paymentToken,
		Prices: []tele.Price{
			{Label: "Итого", Amount: int(inv.TotalMinor)},
		},
	}
}

func markup(rows [][]Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	kbRows := make([][]keyboard.InlineBtn, len(rows))
	for i, row := range rows {
		r := make([]keyboard.InlineBtn, len(row))
		for j, btn := range row {
			r[j] = keyboard.InlineBtn{Text: btn.Label, Unique: CallbackKey, Data: btn.Token}
		}
		kbRows[i] = r
	}
	return keyboard.InlineButtonsRows(kbRows...)
}
