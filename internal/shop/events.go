package shop

// Event is the closed union of inbound conversation events. The machine
// matches on the concrete type; adding a new kind forces every switch to be
// revisited.
type Event interface {
	isEvent()
}

// Command is a slash command such as /start or /cancel, with the leading
// slash stripped.
type Command struct {
	Name      string
	FirstName string
}

// ButtonTap carries the opaque token of a tapped inline button.
type ButtonTap struct {
	Token string
}

// FreeText is a plain text message from the user.
type FreeText struct {
	Text string
}

// PreCheckout is the payment provider's pre-checkout query.
type PreCheckout struct {
	Payload string
}

// PaymentSuccess signals a completed payment for the user's pending invoice.
type PaymentSuccess struct{}

func (Command) isEvent()        {}
func (ButtonTap) isEvent()      {}
func (FreeText) isEvent()       {}
func (PreCheckout) isEvent()    {}
func (PaymentSuccess) isEvent() {}
