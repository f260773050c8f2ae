// Package clients maps Telegram user identifiers to application client
// records.
package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/CaDiBob/simple-telegram-store/core/logger"

	"github.com/jmoiron/sqlx"
	"log/slog"
)

// Client is one application user, unique on the Telegram user id.
type Client struct {
	ID        int64     `db:"id"`
	TgUserID  int64     `db:"tg_user_id"`
	FirstName string    `db:"first_name"`
	Address   string    `db:"address"`
	CreatedAt time.Time `db:"created_at"`
}

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// FindOrCreate returns the client for tgUserID, lazily creating the record
// on first interaction. The first name is refreshed on every call so renames
// in Telegram are picked up.
func (s *Store) FindOrCreate(ctx context.Context, tgUserID int64, firstName string) (Client, error) {
	var c Client
	err := s.db.GetContext(ctx, &c, `
		INSERT INTO clients (tg_user_id, first_name)
		VALUES ($1, $2)
		ON CONFLICT (tg_user_id)
		DO UPDATE SET first_name = CASE
			WHEN EXCLUDED.first_name <> '' THEN EXCLUDED.first_name
			ELSE clients.first_name
		END
		RETURNING id, tg_user_id, first_name, address, created_at`,
		tgUserID, firstName)
	if err != nil {
		return Client{}, fmt.Errorf("clients: find or create %d: %w", tgUserID, err)
	}

	logger.Debug(ctx, "service.clients", "client.resolved",
		slog.Int64("client_id", c.ID),
		slog.Int64("user_id", tgUserID),
	)
	return c, nil
}

// SetDeliveryAddress stores the confirmed delivery address on the client.
func (s *Store) SetDeliveryAddress(ctx context.Context, clientID int64, address string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET address = $2 WHERE id = $1`, clientID, address)
	if err != nil {
		return fmt.Errorf("clients: set address for %d: %w", clientID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("clients: set address: client %d not found", clientID)
	}

	logger.Info(ctx, "service.clients", "client.address_set",
		slog.Int64("client_id", clientID),
	)
	return nil
}
