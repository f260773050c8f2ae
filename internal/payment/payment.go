// Package payment builds invoices from cart contents, validates the
// provider's pre-checkout acknowledgment and finalizes paid orders.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CaDiBob/simple-telegram-store/internal/cart"
	"github.com/CaDiBob/simple-telegram-store/internal/catalog"

	"github.com/shopspring/decimal"
)

// PayloadTag correlates an invoice with its pre-checkout confirmation. It
// must be byte-identical on both sides, so it is a single shared constant.
const PayloadTag = "shop-order-v1"

var (
	// ErrEmptyCart is returned when invoice creation finds nothing to bill.
	ErrEmptyCart = errors.New("payment: cart is empty")
	// ErrPayloadMismatch is returned when a pre-checkout payload does not
	// match the expected tag.
	ErrPayloadMismatch = errors.New("payment: payload mismatch")
)

// RejectReason is the generic user-facing text for a rejected pre-checkout
// query. It deliberately reveals nothing about the cause.
const RejectReason = "Платёж не может быть обработан. Попробуйте оформить заказ заново."

// ProductLookup resolves a product for invoicing. Implementations return
// catalog.ErrNotFound for vanished products.
type ProductLookup func(ctx context.Context, productID int64) (catalog.Product, error)

// Invoice is the provider-ready billing request derived from a cart.
type Invoice struct {
	Title       string
	Description string
	Payload     string
	Currency    string
	// TotalMinor is the amount in minor currency units (kopecks, cents).
	TotalMinor int64
}

// BuildInvoice converts the cart into an invoice: one "name × qty" line per
// product and the total in minor units, rounding half away from zero at two
// decimals before scaling. Lines whose product vanished are dropped from the
// cart; if nothing billable remains the result is ErrEmptyCart.
func BuildInvoice(ctx context.Context, c *cart.Cart, currency string, lookup ProductLookup) (Invoice, error) {
	if c.IsEmpty() {
		return Invoice{}, ErrEmptyCart
	}

	var (
		lines []string
		total = decimal.Zero
	)
	for _, line := range c.Items() {
		p, err := lookup(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				c.Remove(line.ProductID)
				continue
			}
			return Invoice{}, fmt.Errorf("payment: resolve product %d: %w", line.ProductID, err)
		}
		lines = append(lines, fmt.Sprintf("%s × %d", p.Name, line.Qty))
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Qty))))
	}
	if len(lines) == 0 {
		return Invoice{}, ErrEmptyCart
	}

	return Invoice{
		Title:       "Ваш заказ",
		Description: strings.Join(lines, ", "),
		Payload:     PayloadTag,
		Currency:    currency,
		TotalMinor:  ToMinorUnits(total),
	}, nil
}

// ToMinorUnits converts a decimal amount into integer minor units, rounding
// half away from zero at two fractional digits.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// VerifyPrecheckout accepts the payment only when the payload matches the
// expected tag exactly. Any mismatch is ErrPayloadMismatch; callers answer
// the provider with RejectReason and log the payload for audit.
func VerifyPrecheckout(payload, expected string) error {
	if payload != expected {
		return ErrPayloadMismatch
	}
	return nil
}
