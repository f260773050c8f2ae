package shop

import "github.com/CaDiBob/simple-telegram-store/internal/payment"

// Render is one outbound effect produced by the machine. The transport
// adapter plays renders back in order; the machine itself never touches the
// chat transport, which keeps transitions directly testable.
type Render interface {
	isRender()
}

// Button is one inline keyboard button carrying an opaque token.
type Button struct {
	Label string
	Token string
}

// SendMessage posts a new message, optionally with an inline keyboard.
type SendMessage struct {
	Text    string
	Buttons [][]Button
}

// EditMessage rewrites the message the triggering callback originated from,
// so navigation taps update the menu in place instead of stacking messages.
type EditMessage struct {
	Text    string
	Buttons [][]Button
}

// SendInvoice hands the built invoice to the payment provider.
type SendInvoice struct {
	Invoice payment.Invoice
}

// AnswerPreCheckout acknowledges or rejects a pre-checkout query.
type AnswerPreCheckout struct {
	OK     bool
	Reason string
}

func (SendMessage) isRender()       {}
func (EditMessage) isRender()       {}
func (SendInvoice) isRender()       {}
func (AnswerPreCheckout) isRender() {}

// Row builds a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}
