package payment

import (
	"context"
	"testing"

	"github.com/CaDiBob/simple-telegram-store/internal/cart"
	"github.com/CaDiBob/simple-telegram-store/internal/catalog"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productFixture(products map[int64]catalog.Product) ProductLookup {
	return func(_ context.Context, id int64) (catalog.Product, error) {
		p, ok := products[id]
		if !ok {
			return catalog.Product{}, catalog.ErrNotFound
		}
		return p, nil
	}
}

func TestBuildInvoiceScenario(t *testing.T) {
	lookup := productFixture(map[int64]catalog.Product{
		1: {ID: 1, Name: "Кофе", Price: decimal.RequireFromString("100.00")},
		2: {ID: 2, Name: "Чай", Price: decimal.RequireFromString("50.00")},
	})

	c := cart.New()
	c.Add(1, 2)
	c.Add(2, 1)

	inv, err := BuildInvoice(context.Background(), c, "RUB", lookup)
	require.NoError(t, err)

	assert.Equal(t, int64(25000), inv.TotalMinor)
	assert.Equal(t, "RUB", inv.Currency)
	assert.Equal(t, PayloadTag, inv.Payload)
	assert.Contains(t, inv.Description, "Кофе × 2")
	assert.Contains(t, inv.Description, "Чай × 1")
}

func TestBuildInvoiceEmptyCart(t *testing.T) {
	_, err := BuildInvoice(context.Background(), cart.New(), "RUB", productFixture(nil))
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestBuildInvoiceDropsVanishedProducts(t *testing.T) {
	lookup := productFixture(map[int64]catalog.Product{
		1: {ID: 1, Name: "Кофе", Price: decimal.RequireFromString("10.00")},
	})

	c := cart.New()
	c.Add(1, 1)
	c.Add(99, 3)

	inv, err := BuildInvoice(context.Background(), c, "RUB", lookup)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inv.TotalMinor)
	assert.Equal(t, 1, c.Len())
}

func TestBuildInvoiceAllVanished(t *testing.T) {
	c := cart.New()
	c.Add(99, 1)

	_, err := BuildInvoice(context.Background(), c, "RUB", productFixture(nil))
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestToMinorUnitsRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"250.00", 25000},
		{"0.005", 1},
		{"10.994", 1099},
		{"10.995", 1100},
	}
	for _, tc := range cases {
		got := ToMinorUnits(decimal.RequireFromString(tc.in))
		assert.Equal(t, tc.want, got, "amount %s", tc.in)
	}
}

func TestVerifyPrecheckout(t *testing.T) {
	assert.NoError(t, VerifyPrecheckout(PayloadTag, PayloadTag))
	assert.ErrorIs(t, VerifyPrecheckout("forged", PayloadTag), ErrPayloadMismatch)
	assert.ErrorIs(t, VerifyPrecheckout("", PayloadTag), ErrPayloadMismatch)
}

func TestFinalizeOrderIdempotent(t *testing.T) {
	lookup := productFixture(map[int64]catalog.Product{
		1: {ID: 1, Name: "Кофе", Price: decimal.RequireFromString("100.00")},
	})
	svc := NewService(nil)

	c := cart.New()
	c.Add(1, 2)

	id, ok, err := svc.FinalizeOrder(context.Background(), c, 7, "ул. Ленина 1", lookup)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, id)
	assert.True(t, c.IsEmpty(), "finalize must clear the cart")

	id2, ok2, err := svc.FinalizeOrder(context.Background(), c, 7, "ул. Ленина 1", lookup)
	require.NoError(t, err)
	assert.False(t, ok2, "second confirmation must be a no-op")
	assert.Empty(t, id2)
}
