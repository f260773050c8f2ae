// Package shop implements the conversation state machine driving the store
// bot: per-user navigation through the category tree, cart mutation,
// delivery address capture and the payment handoff.
package shop

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/CaDiBob/simple-telegram-store/core/logger"
	"github.com/CaDiBob/simple-telegram-store/internal/cart"
	"github.com/CaDiBob/simple-telegram-store/internal/catalog"
	"github.com/CaDiBob/simple-telegram-store/internal/clients"
	"github.com/CaDiBob/simple-telegram-store/internal/payment"
	"github.com/CaDiBob/simple-telegram-store/internal/session"

	"github.com/shopspring/decimal"
	"log/slog"
)

const (
	maxQuantity     = 99
	defaultPageSize = 6
	defaultMaxDepth = 32
)

// Catalog is the read-only catalog surface the machine consumes.
type Catalog interface {
	ListCategories(ctx context.Context, parentID *int64) ([]catalog.Category, error)
	GetCategory(ctx context.Context, id int64) (catalog.Category, error)
	HasChildren(ctx context.Context, id int64) (bool, error)
	ListProducts(ctx context.Context, categoryID int64) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// Clients is the client directory surface the machine consumes.
type Clients interface {
	FindOrCreate(ctx context.Context, tgUserID int64, firstName string) (clients.Client, error)
	SetDeliveryAddress(ctx context.Context, clientID int64, address string) error
}

// Finalizer records a paid order and empties the cart.
type Finalizer interface {
	FinalizeOrder(ctx context.Context, c *cart.Cart, clientID int64, address string, lookup payment.ProductLookup) (string, bool, error)
}

// Options tunes the machine.
type Options struct {
	// PageSize is the number of categories per page; defaults to 6.
	PageSize int
	// Currency is the ISO code used on invoices, e.g. "RUB".
	Currency string
	// MaxDepth bounds category descent as a guard against a cyclic tree.
	MaxDepth int
}

// Machine dispatches (session state, event) pairs into renders and state
// transitions. All mutation of a user's session happens inside the session
// store's per-user critical section.
type Machine struct {
	sessions session.Store
	catalog  Catalog
	clients  Clients
	finalize Finalizer

	pageSize int
	currency string
	maxDepth int
}

func NewMachine(sessions session.Store, cat Catalog, dir Clients, fin Finalizer, opts Options) *Machine {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Currency == "" {
		opts.Currency = "RUB"
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	return &Machine{
		sessions: sessions,
		catalog:  cat,
		clients:  dir,
		finalize: fin,
		pageSize: opts.PageSize,
		currency: opts.Currency,
		maxDepth: opts.MaxDepth,
	}
}

// Handle processes one inbound event for a user and returns the renders to
// play back. Unrecognized events in the current state yield no renders and
// no transition. The returned error indicates a session store failure;
// domain failures are already converted into user-facing renders.
func (m *Machine) Handle(ctx context.Context, userID int64, ev Event) ([]Render, error) {
	var out []Render
	err := m.sessions.Update(ctx, userID, func(s *session.Session) error {
		var dispatchErr error
		out, dispatchErr = m.dispatch(ctx, userID, s, ev)
		return dispatchErr
	})
	return out, err
}

// InProgress reports whether the machine expects the next free-text message
// from this user, used to route plain text to the machine.
func (m *Machine) InProgress(ctx context.Context, userID int64) bool {
	sess, ok := m.sessions.Peek(ctx, userID)
	return ok && sess.CapturingText()
}

func (m *Machine) dispatch(ctx context.Context, userID int64, s *session.Session, ev Event) ([]Render, error) {
	switch e := ev.(type) {
	case Command:
		return m.handleCommand(ctx, userID, s, e)
	case ButtonTap:
		return m.handleTap(ctx, userID, s, e)
	case FreeText:
		return m.handleText(ctx, s, e)
	case PreCheckout:
		return m.handlePreCheckout(ctx, e)
	case PaymentSuccess:
		return m.handlePaymentSuccess(ctx, userID, s)
	}
	return nil, nil
}

// --- commands ---

func (m *Machine) handleCommand(ctx context.Context, userID int64, s *session.Session, e Command) ([]Render, error) {
	switch e.Name {
	case "start":
		return m.handleStart(ctx, userID, s, e.FirstName)
	case "cancel":
		s.Cancel()
		return []Render{SendMessage{Text: textCancelled}}, nil
	case "help":
		return []Render{SendMessage{Text: textHelp}}, nil
	}
	return nil, nil
}

func (m *Machine) handleStart(ctx context.Context, userID int64, s *session.Session, firstName string) ([]Render, error) {
	client, err := m.clients.FindOrCreate(ctx, userID, firstName)
	if err != nil {
		logger.Error(ctx, "shop", "start.client_failed",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return []Render{SendMessage{Text: textCatalogDown}}, nil
	}
	s.ClientID = client.ID

	var out []Render
	if !s.Greeted {
		out = append(out, SendMessage{Text: greetingText(firstName)})
		s.Greeted = true
	}

	s.ResetNavigation()
	s.State = session.StateAwaitingMenuChoice
	out = append(out, SendMessage{Text: textMenu, Buttons: menuKeyboard()})
	return out, nil
}

// --- button taps ---

func (m *Machine) handleTap(ctx context.Context, userID int64, s *session.Session, e ButtonTap) ([]Render, error) {
	tok := e.Token

	switch {
	case tok == tokenHome:
		if s.State == session.StateIdle {
			return nil, nil
		}
		return m.renderMenu(s), nil

	case tok == tokenCart:
		if !s.Browsing() && s.State != session.StateViewingCart {
			return nil, nil
		}
		return m.renderCart(ctx, s), nil

	case tok == tokenCatalog:
		if s.State != session.StateAwaitingMenuChoice && s.State != session.StateViewingCart {
			return nil, nil
		}
		return m.renderRoots(ctx, s, 0), nil

	case tok == tokenFAQ:
		if s.State != session.StateAwaitingMenuChoice {
			return nil, nil
		}
		buttons := [][]Button{Row(Button{Label: "Меню", Token: tokenHome})}
		return []Render{EditMessage{Text: textFAQ, Buttons: buttons}}, nil

	case strings.HasPrefix(tok, tokenCategoryPrefix):
		id, err := parseTokenID(tok, tokenCategoryPrefix)
		if err != nil {
			return nil, nil
		}
		if s.State != session.StateBrowsingSuperCategories && s.State != session.StateBrowsingSubCategories {
			return nil, nil
		}
		return m.descend(ctx, s, id), nil

	case strings.HasPrefix(tok, tokenProductPrefix):
		id, err := parseTokenID(tok, tokenProductPrefix)
		if err != nil {
			return nil, nil
		}
		switch s.State {
		case session.StateBrowsingProducts:
			return m.renderProductDetail(ctx, s, id), nil
		case session.StateViewingCart:
			s.Cart.Remove(id)
			return m.renderCart(ctx, s), nil
		}
		return nil, nil

	case tok == tokenNext || tok == tokenPrev:
		return m.turnPage(ctx, s, tok), nil

	case tok == tokenBack:
		return m.goBack(ctx, s), nil

	case tok == tokenConfirm:
		if s.State != session.StateAwaitingQuantity {
			return nil, nil
		}
		return m.confirmQuantity(ctx, s), nil

	case tok == tokenCheckout:
		if s.State != session.StateViewingCart {
			return nil, nil
		}
		return m.checkout(ctx, userID, s), nil

	case tok == tokenAddress:
		if s.State != session.StateViewingCart {
			return nil, nil
		}
		s.State = session.StateAwaitingDeliveryAddress
		return []Render{SendMessage{Text: textAskAddress}}, nil

	case tok == tokenCorrect:
		if s.State != session.StateConfirmingDeliveryAddress {
			return nil, nil
		}
		return m.confirmAddress(ctx, userID, s), nil

	case tok == tokenReenter:
		if s.State != session.StateConfirmingDeliveryAddress {
			return nil, nil
		}
		s.State = session.StateAwaitingDeliveryAddress
		return []Render{SendMessage{Text: textAskAddress}}, nil
	}

	// Stray tap from a stale keyboard.
	return nil, nil
}

func parseTokenID(tok, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(tok, prefix), 10, 64)
}

// --- free text ---

func (m *Machine) handleText(ctx context.Context, s *session.Session, e FreeText) ([]Render, error) {
	switch s.State {
	case session.StateViewingProductDetail:
		return m.stageQuantity(ctx, s, e.Text), nil
	case session.StateAwaitingDeliveryAddress:
		address := strings.TrimSpace(e.Text)
		if address == "" {
			return []Render{SendMessage{Text: textAskAddress}}, nil
		}
		s.Address = address
		s.State = session.StateConfirmingDeliveryAddress
		return []Render{SendMessage{
			Text:    confirmAddressText(address),
			Buttons: confirmAddressKeyboard(),
		}}, nil
	}
	return nil, nil
}

func (m *Machine) stageQuantity(ctx context.Context, s *session.Session, text string) []Render {
	qty, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || qty < 1 || qty > maxQuantity {
		return []Render{SendMessage{Text: textBadQuantity}}
	}

	p, err := m.catalog.GetProduct(ctx, s.ProductID)
	if errors.Is(err, catalog.ErrNotFound) {
		out := []Render{SendMessage{Text: textGone}}
		return append(out, m.renderProducts(ctx, s, categoryOrZero(s))...)
	}
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	s.PendingQty = qty
	s.State = session.StateAwaitingQuantity
	return []Render{SendMessage{
		Text:    confirmQuantityText(p.Name, qty),
		Buttons: confirmQuantityKeyboard(),
	}}
}

func (m *Machine) confirmQuantity(ctx context.Context, s *session.Session) []Render {
	if s.ProductID != 0 && s.PendingQty > 0 {
		s.Cart.Add(s.ProductID, s.PendingQty)
	}
	s.ProductID = 0
	s.PendingQty = 0

	out := []Render{SendMessage{Text: textAdded}}
	return append(out, m.renderProducts(ctx, s, categoryOrZero(s))...)
}

// --- navigation ---

func (m *Machine) renderMenu(s *session.Session) []Render {
	s.ResetNavigation()
	s.State = session.StateAwaitingMenuChoice
	return []Render{EditMessage{Text: textMenu, Buttons: menuKeyboard()}}
}

func (m *Machine) renderRoots(ctx context.Context, s *session.Session, page int) []Render {
	roots, err := m.catalog.ListCategories(ctx, nil)
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	page = catalog.ClampPage(page, len(roots), m.pageSize)
	p, err := catalog.BuildPage(roots, m.pageSize, page, false)
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	s.State = session.StateBrowsingSuperCategories
	s.SuperCategoryID = nil
	s.CategoryID = nil
	s.Page = page
	s.Depth = 0
	return []Render{EditMessage{Text: textChooseCat, Buttons: categoryKeyboard(p)}}
}

func (m *Machine) renderLevel(ctx context.Context, s *session.Session, categoryID int64, page int) []Render {
	children, err := m.catalog.ListCategories(ctx, &categoryID)
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	page = catalog.ClampPage(page, len(children), m.pageSize)
	p, err := catalog.BuildPage(children, m.pageSize, page, true)
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	s.State = session.StateBrowsingSubCategories
	s.CategoryID = &categoryID
	s.Page = page
	return []Render{EditMessage{Text: textChooseCat, Buttons: categoryKeyboard(p)}}
}

func (m *Machine) renderProducts(ctx context.Context, s *session.Session, categoryID int64) []Render {
	products, err := m.catalog.ListProducts(ctx, categoryID)
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	s.State = session.StateBrowsingProducts
	s.CategoryID = &categoryID
	s.Page = 0

	text := textChooseProduct
	if len(products) == 0 {
		text = "В этой категории пока нет товаров."
	}
	return []Render{EditMessage{Text: text, Buttons: productListKeyboard(products)}}
}

func (m *Machine) descend(ctx context.Context, s *session.Session, id int64) []Render {
	if s.Depth+1 > m.maxDepth {
		logger.Warn(ctx, "shop", "catalog.depth_exceeded",
			slog.Int64("category_id", id),
			slog.Int("depth", s.Depth),
		)
		return m.renderMenu(s)
	}

	if _, err := m.catalog.GetCategory(ctx, id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return []Render{EditMessage{Text: textGone, Buttons: menuKeyboard()}}
		}
		return m.failSafe(ctx, s, err)
	}

	if s.State == session.StateBrowsingSuperCategories {
		s.SuperCategoryID = &id
	}

	hasChildren, err := m.catalog.HasChildren(ctx, id)
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	s.Depth++
	if hasChildren {
		return m.renderLevel(ctx, s, id, 0)
	}
	return m.renderProducts(ctx, s, id)
}

func (m *Machine) turnPage(ctx context.Context, s *session.Session, tok string) []Render {
	delta := 1
	if tok == tokenPrev {
		delta = -1
	}

	switch s.State {
	case session.StateBrowsingSuperCategories:
		return m.renderRoots(ctx, s, s.Page+delta)
	case session.StateBrowsingSubCategories:
		if s.CategoryID == nil {
			return m.renderRoots(ctx, s, s.Page+delta)
		}
		return m.renderLevel(ctx, s, *s.CategoryID, s.Page+delta)
	}
	return nil
}

func (m *Machine) goBack(ctx context.Context, s *session.Session) []Render {
	switch s.State {
	case session.StateBrowsingSubCategories, session.StateBrowsingProducts:
		if s.CategoryID == nil {
			return m.renderRoots(ctx, s, 0)
		}
		cur, err := m.catalog.GetCategory(ctx, *s.CategoryID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return m.renderRoots(ctx, s, 0)
			}
			return m.failSafe(ctx, s, err)
		}
		if s.Depth > 0 {
			s.Depth--
		}
		if cur.ParentID == nil {
			return m.renderRoots(ctx, s, 0)
		}
		return m.renderLevel(ctx, s, *cur.ParentID, 0)

	case session.StateViewingProductDetail, session.StateAwaitingQuantity:
		s.ProductID = 0
		s.PendingQty = 0
		return m.renderProducts(ctx, s, categoryOrZero(s))
	}
	return nil
}

func (m *Machine) renderProductDetail(ctx context.Context, s *session.Session, id int64) []Render {
	p, err := m.catalog.GetProduct(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		out := []Render{EditMessage{Text: textGone, Buttons: menuKeyboard()}}
		s.State = session.StateAwaitingMenuChoice
		return out
	}
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	s.ProductID = id
	s.PendingQty = 0
	s.State = session.StateViewingProductDetail
	return []Render{SendMessage{Text: productDetailText(p), Buttons: productDetailKeyboard()}}
}

// --- cart & checkout ---

func (m *Machine) price(ctx context.Context, productID int64) (decimal.Decimal, error) {
	p, err := m.catalog.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrNotFound) {
		return decimal.Zero, cart.ErrUnknownProduct
	}
	if err != nil {
		return decimal.Zero, err
	}
	return p.Price, nil
}

func (m *Machine) renderCart(ctx context.Context, s *session.Session) []Render {
	s.State = session.StateViewingCart

	if s.Cart.IsEmpty() {
		return []Render{EditMessage{Text: textEmptyCart, Buttons: emptyCartKeyboard()}}
	}

	var lines []cartLine
	for _, item := range s.Cart.Items() {
		p, err := m.catalog.GetProduct(ctx, item.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			s.Cart.Remove(item.ProductID)
			continue
		}
		if err != nil {
			return m.failSafe(ctx, s, err)
		}
		lines = append(lines, cartLine{product: p, qty: item.Qty})
	}
	if len(lines) == 0 {
		return []Render{EditMessage{Text: textEmptyCart, Buttons: emptyCartKeyboard()}}
	}

	total, err := s.Cart.Total(ctx, m.price)
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	return []Render{EditMessage{Text: cartText(lines, total), Buttons: cartKeyboard(lines)}}
}

func (m *Machine) checkout(ctx context.Context, userID int64, s *session.Session) []Render {
	inv, err := payment.BuildInvoice(ctx, s.Cart, m.currency, m.catalog.GetProduct)
	if errors.Is(err, payment.ErrEmptyCart) {
		return []Render{SendMessage{Text: textEmptyCart, Buttons: emptyCartKeyboard()}}
	}
	if err != nil {
		return m.failSafe(ctx, s, err)
	}

	logger.Info(ctx, "shop", "checkout.invoice_sent",
		slog.Int64("user_id", userID),
		slog.Int64("amount_minor", inv.TotalMinor),
		slog.String("currency", inv.Currency),
	)

	s.State = session.StateAwaitingPaymentResult
	return []Render{SendInvoice{Invoice: inv}}
}

func (m *Machine) confirmAddress(ctx context.Context, userID int64, s *session.Session) []Render {
	clientID, err := m.clientID(ctx, userID, s)
	if err != nil {
		return m.failSafe(ctx, s, err)
	}
	if err := m.clients.SetDeliveryAddress(ctx, clientID, s.Address); err != nil {
		return m.failSafe(ctx, s, err)
	}
	return m.renderCart(ctx, s)
}

// --- payment ---

func (m *Machine) handlePreCheckout(ctx context.Context, e PreCheckout) ([]Render, error) {
	if err := payment.VerifyPrecheckout(e.Payload, payment.PayloadTag); err != nil {
		logger.Warn(ctx, "shop", "precheckout.rejected",
			slog.String("payload", logger.Sanitize(e.Payload)),
		)
		return []Render{AnswerPreCheckout{OK: false, Reason: payment.RejectReason}}, nil
	}
	return []Render{AnswerPreCheckout{OK: true}}, nil
}

func (m *Machine) handlePaymentSuccess(ctx context.Context, userID int64, s *session.Session) ([]Render, error) {
	if s.State != session.StateAwaitingPaymentResult && !s.Cart.IsEmpty() {
		// Late redelivery: the original order was already finalized and
		// the user has since put new lines in the cart. Finalizing now
		// would record those lines as a paid order.
		logger.Warn(ctx, "shop", "payment.stale_confirmation",
			slog.Int64("user_id", userID),
			slog.String("state", string(s.State)),
		)
		return nil, nil
	}

	clientID, err := m.clientID(ctx, userID, s)
	if err != nil {
		return m.failSafe(ctx, s, err), nil
	}

	orderID, ok, err := m.finalize.FinalizeOrder(ctx, s.Cart, clientID, s.Address, m.catalog.GetProduct)
	if err != nil {
		return m.failSafe(ctx, s, err), nil
	}
	if !ok {
		// Duplicate confirmation, already finalized.
		return nil, nil
	}

	logger.Info(ctx, "shop", "payment.succeeded",
		slog.Int64("user_id", userID),
		slog.String("order_id", orderID),
	)

	s.ResetNavigation()
	s.State = session.StateAwaitingMenuChoice
	return []Render{
		SendMessage{Text: textThanks},
		SendMessage{Text: textMenu, Buttons: menuKeyboard()},
	}, nil
}

// --- helpers ---

func (m *Machine) clientID(ctx context.Context, userID int64, s *session.Session) (int64, error) {
	if s.ClientID != 0 {
		return s.ClientID, nil
	}
	client, err := m.clients.FindOrCreate(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	s.ClientID = client.ID
	return client.ID, nil
}

func categoryOrZero(s *session.Session) int64 {
	if s.CategoryID == nil {
		return 0
	}
	return *s.CategoryID
}

// failSafe converts an unexpected failure into a user-facing notice and a
// transition back to the main menu so the session never sticks in a state
// with no valid keyboard.
func (m *Machine) failSafe(ctx context.Context, s *session.Session, err error) []Render {
	logger.Error(ctx, "shop", "handler.failed",
		slog.String("state", string(s.State)),
		slog.String("err", err.Error()),
	)
	s.ResetNavigation()
	s.State = session.StateAwaitingMenuChoice
	return []Render{SendMessage{Text: textCatalogDown, Buttons: menuKeyboard()}}
}
