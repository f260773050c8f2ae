package shop

import (
	"context"
	"testing"

	"github.com/CaDiBob/simple-telegram-store/internal/catalog"
	"github.com/CaDiBob/simple-telegram-store/internal/clients"
	"github.com/CaDiBob/simple-telegram-store/internal/payment"
	"github.com/CaDiBob/simple-telegram-store/internal/session"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	categories []catalog.Category
	products   []catalog.Product
}

func (f *fakeCatalog) ListCategories(_ context.Context, parentID *int64) ([]catalog.Category, error) {
	var out []catalog.Category
	for _, c := range f.categories {
		switch {
		case parentID == nil && c.ParentID == nil:
			out = append(out, c)
		case parentID != nil && c.ParentID != nil && *c.ParentID == *parentID:
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetCategory(_ context.Context, id int64) (catalog.Category, error) {
	for _, c := range f.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return catalog.Category{}, catalog.ErrNotFound
}

func (f *fakeCatalog) HasChildren(ctx context.Context, id int64) (bool, error) {
	kids, err := f.ListCategories(ctx, &id)
	return len(kids) > 0, err
}

func (f *fakeCatalog) ListProducts(_ context.Context, categoryID int64) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range f.products {
		if p.CategoryID != nil && *p.CategoryID == categoryID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

type fakeClients struct {
	addresses map[int64]string
}

func (f *fakeClients) FindOrCreate(_ context.Context, tgUserID int64, _ string) (clients.Client, error) {
	return clients.Client{ID: 1000 + tgUserID, TgUserID: tgUserID}, nil
}

func (f *fakeClients) SetDeliveryAddress(_ context.Context, clientID int64, address string) error {
	if f.addresses == nil {
		f.addresses = make(map[int64]string)
	}
	f.addresses[clientID] = address
	return nil
}

func int64ptr(v int64) *int64 { return &v }

func storeFixture() *fakeCatalog {
	return &fakeCatalog{
		categories: []catalog.Category{
			{ID: 1, Name: "Напитки"},
			{ID: 2, Name: "Сладкое"},
			{ID: 3, Name: "Горячие", ParentID: int64ptr(1)},
			{ID: 4, Name: "Холодные", ParentID: int64ptr(1)},
		},
		products: []catalog.Product{
			{ID: 10, Name: "Кофе", Description: "Арабика", Price: decimal.RequireFromString("100.00"), CategoryID: int64ptr(3)},
			{ID: 11, Name: "Чай", Price: decimal.RequireFromString("50.00"), CategoryID: int64ptr(3)},
			{ID: 12, Name: "Торт", Price: decimal.RequireFromString("350.00"), CategoryID: int64ptr(2)},
		},
	}
}

func newTestMachine(t *testing.T, cat Catalog, opts Options) (*Machine, session.Store) {
	t.Helper()
	store := session.NewMemoryStore()
	m := NewMachine(store, cat, &fakeClients{}, payment.NewService(nil), opts)
	return m, store
}

func mustState(t *testing.T, store session.Store, userID int64, want session.State) {
	t.Helper()
	sess, ok := store.Peek(context.Background(), userID)
	require.True(t, ok, "session must exist")
	assert.Equal(t, want, sess.State)
}

func buttonsOf(t *testing.T, r Render) [][]Button {
	t.Helper()
	switch v := r.(type) {
	case SendMessage:
		return v.Buttons
	case EditMessage:
		return v.Buttons
	}
	t.Fatalf("render %T carries no buttons", r)
	return nil
}

func TestStartShowsGreetingAndMenu(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{})
	ctx := context.Background()

	renders, err := m.Handle(ctx, 1, Command{Name: "start", FirstName: "Анна"})
	require.NoError(t, err)
	require.Len(t, renders, 2, "greeting plus menu")

	greeting, ok := renders[0].(SendMessage)
	require.True(t, ok)
	assert.Contains(t, greeting.Text, "Анна")

	menu := buttonsOf(t, renders[1])
	require.Len(t, menu, 3, "menu must offer exactly Catalog, Cart and FAQ")
	assert.Equal(t, tokenCatalog, menu[0][0].Token)
	assert.Equal(t, tokenCart, menu[1][0].Token)
	assert.Equal(t, tokenFAQ, menu[2][0].Token)

	mustState(t, store, 1, session.StateAwaitingMenuChoice)
}

func TestSecondStartskipsGreeting(t *testing.T) {
	m, _ := newTestMachine(t, storeFixture(), Options{})
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start", FirstName: "Анна"})
	require.NoError(t, err)

	renders, err := m.Handle(ctx, 1, Command{Name: "start", FirstName: "Анна"})
	require.NoError(t, err)
	require.Len(t, renders, 1, "greeting is shown once")
}

func TestRootPagination(t *testing.T) {
	cat := &fakeCatalog{}
	for i := int64(1); i <= 5; i++ {
		cat.categories = append(cat.categories, catalog.Category{ID: i, Name: "Раздел"})
	}
	m, store := newTestMachine(t, cat, Options{PageSize: 4})
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start"})
	require.NoError(t, err)

	renders, err := m.Handle(ctx, 1, ButtonTap{Token: tokenCatalog})
	require.NoError(t, err)
	require.Len(t, renders, 1)

	rows := buttonsOf(t, renders[0])
	// 4 categories, the control row, the cart row.
	require.Len(t, rows, 6)
	controls := rows[4]
	require.Len(t, controls, 2)
	assert.Equal(t, tokenNext, controls[0].Token)
	assert.Equal(t, tokenHome, controls[1].Token)

	renders, err = m.Handle(ctx, 1, ButtonTap{Token: tokenNext})
	require.NoError(t, err)
	rows = buttonsOf(t, renders[0])
	require.Len(t, rows, 3, "1 category, controls, cart")
	controls = rows[1]
	require.Len(t, controls, 2)
	assert.Equal(t, tokenPrev, controls[0].Token)
	assert.Equal(t, tokenHome, controls[1].Token)

	// Next on the last page clamps and re-renders the same page.
	renders, err = m.Handle(ctx, 1, ButtonTap{Token: tokenNext})
	require.NoError(t, err)
	require.Len(t, renders, 1)
	sess, _ := store.Peek(ctx, 1)
	assert.Equal(t, 1, sess.Page)
}

func TestEmptyCartCheckout(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{})
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCart})
	require.NoError(t, err)
	mustState(t, store, 1, session.StateViewingCart)

	renders, err := m.Handle(ctx, 1, ButtonTap{Token: tokenCheckout})
	require.NoError(t, err)
	require.Len(t, renders, 1)

	msg, ok := renders[0].(SendMessage)
	require.True(t, ok, "empty cart produces a notice, not an invoice")
	assert.Equal(t, textEmptyCart, msg.Text)
	mustState(t, store, 1, session.StateViewingCart)
}

func runPurchaseToInvoice(t *testing.T, m *Machine) payment.Invoice {
	t.Helper()
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCatalog})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: "cat:1"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: "cat:3"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: "prod:10"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, FreeText{Text: "2"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenConfirm})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCart})
	require.NoError(t, err)

	renders, err := m.Handle(ctx, 1, ButtonTap{Token: tokenCheckout})
	require.NoError(t, err)
	require.Len(t, renders, 1)

	inv, ok := renders[0].(SendInvoice)
	require.True(t, ok, "checkout with items must send an invoice")
	return inv.Invoice
}

func TestPurchaseFlowInvoiceAmount(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{Currency: "RUB"})

	inv := runPurchaseToInvoice(t, m)
	assert.Equal(t, int64(20000), inv.TotalMinor, "100.00 × 2 in minor units")
	assert.Equal(t, "RUB", inv.Currency)
	assert.Equal(t, payment.PayloadTag, inv.Payload)
	mustState(t, store, 1, session.StateAwaitingPaymentResult)
}

func TestPreCheckoutPayloadMismatch(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{})
	runPurchaseToInvoice(t, m)

	renders, err := m.Handle(context.Background(), 1, PreCheckout{Payload: "forged"})
	require.NoError(t, err)
	require.Len(t, renders, 1)

	answer, ok := renders[0].(AnswerPreCheckout)
	require.True(t, ok)
	assert.False(t, answer.OK)
	assert.NotEmpty(t, answer.Reason)
	mustState(t, store, 1, session.StateAwaitingPaymentResult)
}

func TestPreCheckoutAccepted(t *testing.T) {
	m, _ := newTestMachine(t, storeFixture(), Options{})
	runPurchaseToInvoice(t, m)

	renders, err := m.Handle(context.Background(), 1, PreCheckout{Payload: payment.PayloadTag})
	require.NoError(t, err)
	require.Len(t, renders, 1)

	answer, ok := renders[0].(AnswerPreCheckout)
	require.True(t, ok)
	assert.True(t, answer.OK)
}

func TestPaymentSuccessIdempotent(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{})
	runPurchaseToInvoice(t, m)
	ctx := context.Background()

	renders, err := m.Handle(ctx, 1, PaymentSuccess{})
	require.NoError(t, err)
	require.NotEmpty(t, renders, "first confirmation thanks the user")
	mustState(t, store, 1, session.StateAwaitingMenuChoice)

	sess, _ := store.Peek(ctx, 1)
	assert.True(t, sess.Cart.IsEmpty(), "payment clears the cart")

	renders, err = m.Handle(ctx, 1, PaymentSuccess{})
	require.NoError(t, err)
	assert.Empty(t, renders, "duplicate confirmation is a no-op")
}

func TestPaymentSuccessStaleAfterCartRefilled(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{})
	runPurchaseToInvoice(t, m)
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, PaymentSuccess{})
	require.NoError(t, err)

	// The user starts a second purchase before the provider redelivers
	// the first confirmation.
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCatalog})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: "cat:2"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: "prod:12"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, FreeText{Text: "1"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenConfirm})
	require.NoError(t, err)

	sess, _ := store.Peek(ctx, 1)
	require.Equal(t, 1, sess.Cart.Qty(12))
	before := sess.State

	renders, err := m.Handle(ctx, 1, PaymentSuccess{})
	require.NoError(t, err)
	assert.Empty(t, renders, "redelivered confirmation must not finalize the new cart")

	sess, _ = store.Peek(ctx, 1)
	assert.Equal(t, 1, sess.Cart.Qty(12), "new cart lines survive the stale confirmation")
	assert.Equal(t, before, sess.State)
}

func TestAddressCaptureFlow(t *testing.T) {
	dir := &fakeClients{}
	store := session.NewMemoryStore()
	m := NewMachine(store, storeFixture(), dir, payment.NewService(nil), Options{})
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCart})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenAddress})
	require.NoError(t, err)
	mustState(t, store, 1, session.StateAwaitingDeliveryAddress)

	renders, err := m.Handle(ctx, 1, FreeText{Text: "ул. Ленина, 1"})
	require.NoError(t, err)
	require.Len(t, renders, 1)
	mustState(t, store, 1, session.StateConfirmingDeliveryAddress)

	// Re-enter replaces the staged address.
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenReenter})
	require.NoError(t, err)
	mustState(t, store, 1, session.StateAwaitingDeliveryAddress)
	_, err = m.Handle(ctx, 1, FreeText{Text: "пр. Мира, 5"})
	require.NoError(t, err)

	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCorrect})
	require.NoError(t, err)
	mustState(t, store, 1, session.StateViewingCart)
	assert.Equal(t, "пр. Мира, 5", dir.addresses[1001])
}

func TestBadQuantityReprompts(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{})
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCatalog})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: "cat:2"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: "prod:12"})
	require.NoError(t, err)
	mustState(t, store, 1, session.StateViewingProductDetail)

	for _, bad := range []string{"abc", "0", "-1", "100"} {
		renders, err := m.Handle(ctx, 1, FreeText{Text: bad})
		require.NoError(t, err)
		require.Len(t, renders, 1)
		msg, ok := renders[0].(SendMessage)
		require.True(t, ok)
		assert.Equal(t, textBadQuantity, msg.Text, "input %q", bad)
		mustState(t, store, 1, session.StateViewingProductDetail)
	}
}

func TestUnrecognizedEventsIgnored(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{})
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start"})
	require.NoError(t, err)

	cases := []Event{
		ButtonTap{Token: "checkout"},       // not viewing cart
		ButtonTap{Token: "confirm"},        // nothing staged
		ButtonTap{Token: "prod:10"},        // not browsing products
		ButtonTap{Token: "bogus"},          // unknown literal
		ButtonTap{Token: "cat:notanumber"}, // malformed id
		FreeText{Text: "привет"},           // no capture pending
		Command{Name: "unknown"},
	}
	for _, ev := range cases {
		renders, err := m.Handle(ctx, 1, ev)
		require.NoError(t, err)
		assert.Empty(t, renders, "event %#v must be ignored", ev)
		mustState(t, store, 1, session.StateAwaitingMenuChoice)
	}
}

func TestCancelKeepsCartLines(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{})
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCatalog})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: "cat:2"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: "prod:12"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, FreeText{Text: "1"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenConfirm})
	require.NoError(t, err)

	renders, err := m.Handle(ctx, 1, Command{Name: "cancel"})
	require.NoError(t, err)
	require.Len(t, renders, 1)
	mustState(t, store, 1, session.StateIdle)

	sess, _ := store.Peek(ctx, 1)
	assert.Equal(t, 1, sess.Cart.Qty(12), "cancel must not drop cart lines")
	assert.Zero(t, sess.PendingQty)
}

func TestCartRemoveLine(t *testing.T) {
	m, store := newTestMachine(t, storeFixture(), Options{})
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start"})
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, 1, func(s *session.Session) error {
		s.Cart.Add(10, 1)
		s.Cart.Add(12, 2)
		return nil
	}))

	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCart})
	require.NoError(t, err)

	renders, err := m.Handle(ctx, 1, ButtonTap{Token: "prod:10"})
	require.NoError(t, err)
	require.Len(t, renders, 1)

	sess, _ := store.Peek(ctx, 1)
	assert.Zero(t, sess.Cart.Qty(10))
	assert.Equal(t, 2, sess.Cart.Qty(12))
	mustState(t, store, 1, session.StateViewingCart)
}

func TestVanishedCategoryRendersGoneNotice(t *testing.T) {
	m, _ := newTestMachine(t, storeFixture(), Options{})
	ctx := context.Background()

	_, err := m.Handle(ctx, 1, Command{Name: "start"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, 1, ButtonTap{Token: tokenCatalog})
	require.NoError(t, err)

	renders, err := m.Handle(ctx, 1, ButtonTap{Token: "cat:777"})
	require.NoError(t, err)
	require.Len(t, renders, 1)

	msg, ok := renders[0].(EditMessage)
	require.True(t, ok)
	assert.Equal(t, textGone, msg.Text)
}
