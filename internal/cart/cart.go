// Package cart implements the per-session shopping cart.
package cart

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrUnknownProduct reports a cart line whose product can no longer be
// resolved. Total drops such lines instead of returning it; it is exported
// for lookups that want to signal a vanished product explicitly.
var ErrUnknownProduct = errors.New("cart: unknown product")

// PriceLookup resolves a product id to its current price. Implementations
// return ErrUnknownProduct (or a wrapped catalog not-found error) when the
// product has been removed upstream.
type PriceLookup func(ctx context.Context, productID int64) (decimal.Decimal, error)

// Line is one cart entry.
type Line struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

// Cart maps product ids to requested quantities. It is owned by exactly one
// session and is not safe for concurrent use on its own; the session store
// serializes access per user.
type Cart struct {
	Lines map[int64]int `json:"lines,omitempty"`
}

func New() *Cart {
	return &Cart{Lines: make(map[int64]int)}
}

// Add increments the quantity for productID, inserting the line if absent.
// Non-positive quantities are ignored.
func (c *Cart) Add(productID int64, qty int) {
	if qty < 1 {
		return
	}
	if c.Lines == nil {
		c.Lines = make(map[int64]int)
	}
	c.Lines[productID] += qty
}

// Clone returns an independent copy that shares no storage with the
// receiver. A nil cart clones to a fresh empty one.
func (c *Cart) Clone() *Cart {
	out := New()
	if c == nil {
		return out
	}
	for id, qty := range c.Lines {
		out.Lines[id] = qty
	}
	return out
}

// Remove deletes the line for productID. Removing an absent line is a no-op.
func (c *Cart) Remove(productID int64) {
	delete(c.Lines, productID)
}

// Qty returns the quantity for productID, zero when absent.
func (c *Cart) Qty(productID int64) int {
	return c.Lines[productID]
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Lines)
}

// Items returns the lines ordered by product id for deterministic rendering.
func (c *Cart) Items() []Line {
	if c == nil || len(c.Lines) == 0 {
		return nil
	}
	items := make([]Line, 0, len(c.Lines))
	for id, qty := range c.Lines {
		items = append(items, Line{ProductID: id, Qty: qty})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}

// Clear removes every line but keeps the cart usable.
func (c *Cart) Clear() {
	if c == nil {
		return
	}
	c.Lines = make(map[int64]int)
}

// Total computes Σ qty × price over the current lines. Lines whose product
// cannot be resolved anymore are dropped from the cart and skipped, so a
// product deleted mid-session cannot wedge checkout. Any other lookup error
// aborts the computation.
func (c *Cart) Total(ctx context.Context, lookup PriceLookup) (decimal.Decimal, error) {
	total := decimal.Zero
	if c == nil {
		return total, nil
	}
	for _, line := range c.Items() {
		price, err := lookup(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, ErrUnknownProduct) {
				c.Remove(line.ProductID)
				continue
			}
			return decimal.Zero, err
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Qty))))
	}
	return total, nil
}
