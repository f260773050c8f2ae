package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/CaDiBob/simple-telegram-store/core/logger"
	"github.com/CaDiBob/simple-telegram-store/internal/cart"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"log/slog"
)

// Order is a finalized, paid order.
type Order struct {
	ID        string          `db:"id"`
	ClientID  int64           `db:"client_id"`
	Address   string          `db:"address"`
	Total     decimal.Decimal `db:"total"`
	Summary   string          `db:"summary"`
	CreatedAt time.Time       `db:"created_at"`
}

// OrderStore records paid orders in Postgres.
type OrderStore struct {
	db *sqlx.DB
}

func NewOrderStore(db *sqlx.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Create(ctx context.Context, o Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, client_id, address, total, summary)
		VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.ClientID, o.Address, o.Total, o.Summary)
	if err != nil {
		return fmt.Errorf("payment: create order %s: %w", o.ID, err)
	}
	return nil
}

// ListRecent returns the newest orders first, at most limit rows.
func (s *OrderStore) ListRecent(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var orders []Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT id, client_id, address, total, summary, created_at
		  FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("payment: list orders: %w", err)
	}
	return orders, nil
}

// Service finalizes paid orders.
type Service struct {
	orders *OrderStore
}

func NewService(orders *OrderStore) *Service {
	return &Service{orders: orders}
}

// FinalizeOrder is the single point of truth for a succeeded payment: it
// records the order and empties the cart. An already-empty cart means the
// confirmation was delivered twice; the call is then a safe no-op and
// returns ok=false with no order id.
func (s *Service) FinalizeOrder(ctx context.Context, c *cart.Cart, clientID int64, address string, lookup ProductLookup) (orderID string, ok bool, err error) {
	if c.IsEmpty() {
		return "", false, nil
	}

	inv, err := BuildInvoice(ctx, c, "", lookup)
	if err != nil {
		return "", false, err
	}

	order := Order{
		ID:       uuid.NewString(),
		ClientID: clientID,
		Address:  address,
		Total:    decimal.NewFromInt(inv.TotalMinor).Div(decimal.NewFromInt(100)),
		Summary:  inv.Description,
	}
	if s.orders != nil {
		if err := s.orders.Create(ctx, order); err != nil {
			return "", false, err
		}
	}

	c.Clear()

	logger.Info(ctx, "service.orders", "order.finalized",
		slog.String("order_id", order.ID),
		slog.Int64("client_id", clientID),
		slog.Int64("amount_minor", inv.TotalMinor),
	)
	return order.ID, true, nil
}
