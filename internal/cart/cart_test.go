package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPrices(prices map[int64]string) PriceLookup {
	return func(_ context.Context, productID int64) (decimal.Decimal, error) {
		p, ok := prices[productID]
		if !ok {
			return decimal.Zero, ErrUnknownProduct
		}
		return decimal.RequireFromString(p), nil
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	c := New()
	c.Add(7, 2)
	before := c.Qty(7)

	c.Add(9, 3)
	c.Remove(9)

	assert.Equal(t, before, c.Qty(7))
	assert.Equal(t, 1, c.Len())
	assert.Zero(t, c.Qty(9))
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	c := New()
	c.Add(1, 1)
	c.Remove(42)
	assert.Equal(t, 1, c.Len())
}

func TestAddIncrementsExisting(t *testing.T) {
	c := New()
	c.Add(5, 1)
	c.Add(5, 2)
	assert.Equal(t, 3, c.Qty(5))
	assert.Equal(t, 1, c.Len())
}

func TestAddIgnoresNonPositiveQty(t *testing.T) {
	c := New()
	c.Add(5, 0)
	c.Add(5, -1)
	assert.True(t, c.IsEmpty())
}

func TestTotalCommutative(t *testing.T) {
	lookup := fixedPrices(map[int64]string{1: "10.50", 2: "3.20", 3: "0.99"})

	a := New()
	a.Add(1, 2)
	a.Add(2, 1)
	a.Add(3, 4)

	b := New()
	b.Add(3, 4)
	b.Add(1, 2)
	b.Add(2, 1)

	ta, err := a.Total(context.Background(), lookup)
	require.NoError(t, err)
	tb, err := b.Total(context.Background(), lookup)
	require.NoError(t, err)

	assert.True(t, ta.Equal(tb), "totals differ: %s vs %s", ta, tb)
}

func TestTotalScenario(t *testing.T) {
	// Product A at 100.00 × 2 plus product B at 50.00 × 1.
	lookup := fixedPrices(map[int64]string{1: "100.00", 2: "50.00"})

	c := New()
	c.Add(1, 2)
	c.Add(2, 1)

	total, err := c.Total(context.Background(), lookup)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("250.00")))
	assert.Equal(t, int64(25000), total.Round(2).Mul(decimal.NewFromInt(100)).IntPart())
}

func TestTotalDropsVanishedProduct(t *testing.T) {
	lookup := fixedPrices(map[int64]string{1: "10.00"})

	c := New()
	c.Add(1, 1)
	c.Add(99, 5)

	total, err := c.Total(context.Background(), lookup)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 1, c.Len(), "vanished product line must be dropped")
}

func TestTotalPropagatesLookupErrors(t *testing.T) {
	boom := errors.New("db down")
	c := New()
	c.Add(1, 1)

	_, err := c.Total(context.Background(), func(context.Context, int64) (decimal.Decimal, error) {
		return decimal.Zero, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestItemsSorted(t *testing.T) {
	c := New()
	c.Add(30, 1)
	c.Add(10, 2)
	c.Add(20, 3)

	items := c.Items()
	require.Len(t, items, 3)
	assert.Equal(t, int64(10), items[0].ProductID)
	assert.Equal(t, int64(20), items[1].ProductID)
	assert.Equal(t, int64(30), items[2].ProductID)
}

func TestClearKeepsCartUsable(t *testing.T) {
	c := New()
	c.Add(1, 1)
	c.Clear()
	assert.True(t, c.IsEmpty())
	c.Add(2, 2)
	assert.Equal(t, 2, c.Qty(2))
}
