// Package session tracks per-user conversational position. Each user owns
// exactly one Session; the Store serializes all mutations for a user so the
// session is a single-writer resource.
package session

import (
	"context"

	"github.com/CaDiBob/simple-telegram-store/internal/cart"
)

// State identifies the user's position in the conversation.
type State string

const (
	StateIdle                      State = "idle"
	StateAwaitingMenuChoice        State = "awaiting_menu_choice"
	StateBrowsingSuperCategories   State = "browsing_super_categories"
	StateBrowsingSubCategories     State = "browsing_sub_categories"
	StateBrowsingProducts          State = "browsing_products"
	StateViewingProductDetail      State = "viewing_product_detail"
	StateAwaitingQuantity          State = "awaiting_quantity"
	StateViewingCart               State = "viewing_cart"
	StateAwaitingDeliveryAddress   State = "awaiting_delivery_address"
	StateConfirmingDeliveryAddress State = "confirming_delivery_address"
	StateAwaitingPaymentResult     State = "awaiting_payment_result"
)

// Session is the per-user conversational context. A zero Session (with the
// cart initialized) is equivalent to an idle user who has never interacted.
type Session struct {
	State State `json:"state,omitempty"`

	// Navigation position.
	SuperCategoryID *int64 `json:"super_category_id,omitempty"`
	CategoryID      *int64 `json:"category_id,omitempty"`
	Page            int    `json:"page,omitempty"`
	Depth           int    `json:"depth,omitempty"`

	// Staged values awaiting confirmation.
	ProductID  int64  `json:"product_id,omitempty"`
	PendingQty int    `json:"pending_qty,omitempty"`
	Address    string `json:"address,omitempty"`

	// Greeted records that the welcome message was already shown.
	Greeted bool `json:"greeted,omitempty"`

	// ClientID caches the resolved client record id for this user.
	ClientID int64 `json:"client_id,omitempty"`

	Cart *cart.Cart `json:"cart,omitempty"`
}

// New returns a fresh idle session with an empty cart.
func New() Session {
	return Session{State: StateIdle, Cart: cart.New()}
}

// EnsureCart guarantees the cart pointer is usable after deserialization.
func (s *Session) EnsureCart() {
	if s.Cart == nil {
		s.Cart = cart.New()
	}
}

// Clone returns a copy that shares no mutable storage with the receiver,
// so it can be read outside the store's per-user lock.
func (s *Session) Clone() Session {
	out := *s
	out.Cart = s.Cart.Clone()
	if s.SuperCategoryID != nil {
		id := *s.SuperCategoryID
		out.SuperCategoryID = &id
	}
	if s.CategoryID != nil {
		id := *s.CategoryID
		out.CategoryID = &id
	}
	return out
}

// ResetNavigation clears the browsing position and staged fields while
// keeping the cart and greeting flag.
func (s *Session) ResetNavigation() {
	s.SuperCategoryID = nil
	s.CategoryID = nil
	s.Page = 0
	s.Depth = 0
	s.ProductID = 0
	s.PendingQty = 0
}

// Cancel clears staged capture targets and returns the user to idle. Cart
// lines already added survive cancellation.
func (s *Session) Cancel() {
	s.ResetNavigation()
	s.Address = ""
	s.State = StateIdle
}

// Browsing reports whether the session is in one of the catalog navigation
// states where global menu taps (cart, home) are honored.
func (s *Session) Browsing() bool {
	switch s.State {
	case StateAwaitingMenuChoice, StateBrowsingSuperCategories,
		StateBrowsingSubCategories, StateBrowsingProducts,
		StateViewingProductDetail:
		return true
	}
	return false
}

// CapturingText reports whether the machine expects the next free-text
// message from this user.
func (s *Session) CapturingText() bool {
	switch s.State {
	case StateViewingProductDetail, StateAwaitingQuantity, StateAwaitingDeliveryAddress:
		return true
	}
	return false
}

// Store persists sessions keyed by Telegram user id. Update runs fn with
// exclusive access to the user's session; concurrent events for the same
// user are serialized, events for distinct users proceed in parallel. A
// user with no stored session is handed a fresh idle one. If fn returns an
// error the session is still persisted: the machine mutates state only
// after its side effects are decided, so a failed handler leaves the
// session as fn left it.
type Store interface {
	Update(ctx context.Context, userID int64, fn func(*Session) error) error
	Peek(ctx context.Context, userID int64) (Session, bool)
	Reset(ctx context.Context, userID int64) error
}
