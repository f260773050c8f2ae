// Package catalog provides read-only access to the shop's category tree
// and product records.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CaDiBob/simple-telegram-store/core/logger"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"log/slog"
)

// ErrNotFound is returned when a referenced category or product does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Category is a node of the self-referential category tree.
// Root categories carry a nil ParentID.
type Category struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	ParentID *int64 `db:"parent_id"`
}

// Product belongs to at most one category.
type Product struct {
	ID          int64           `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Image       string          `db:"image"`
	CategoryID  *int64          `db:"category_id"`
}

// Store reads catalog data from Postgres. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// ListCategories returns the children of parentID ordered by name then id.
// A nil parentID selects root categories.
func (s *Store) ListCategories(ctx context.Context, parentID *int64) ([]Category, error) {
	start := time.Now()

	var (
		cats []Category
		err  error
	)
	if parentID == nil {
		err = s.db.SelectContext(ctx, &cats,
			`SELECT id, name, parent_id FROM categories WHERE parent_id IS NULL ORDER BY name, id`)
	} else {
		err = s.db.SelectContext(ctx, &cats,
			`SELECT id, name, parent_id FROM categories WHERE parent_id = $1 ORDER BY name, id`, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}

	logListed(ctx, "categories.listed", len(cats), parentID, start)
	return cats, nil
}

// GetCategory returns the category with the given id or ErrNotFound.
func (s *Store) GetCategory(ctx context.Context, id int64) (Category, error) {
	var cat Category
	err := s.db.GetContext(ctx, &cat,
		`SELECT id, name, parent_id FROM categories WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	if err != nil {
		return Category{}, fmt.Errorf("catalog: get category %d: %w", id, err)
	}
	return cat, nil
}

// HasChildren reports whether any category names id as its parent.
func (s *Store) HasChildren(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM categories WHERE parent_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("catalog: has children %d: %w", id, err)
	}
	return n > 0, nil
}

// ListProducts returns the products of a category ordered by name then id.
func (s *Store) ListProducts(ctx context.Context, categoryID int64) ([]Product, error) {
	start := time.Now()

	var prods []Product
	err := s.db.SelectContext(ctx, &prods,
		`SELECT id, name, description, price, image, category_id
		   FROM products WHERE category_id = $1 ORDER BY name, id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}

	logListed(ctx, "products.listed", len(prods), &categoryID, start)
	return prods, nil
}

// GetProduct returns the product with the given id or ErrNotFound.
func (s *Store) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := s.db.GetContext(ctx, &p,
		`SELECT id, name, description, price, image, category_id
		   FROM products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: get product %d: %w", id, err)
	}
	return p, nil
}

func logListed(ctx context.Context, event string, count int, parentID *int64, start time.Time) {
	if !logger.ShouldSampleDebug() {
		return
	}
	attrs := []slog.Attr{
		slog.Int("count", count),
		slog.Duration("took", logger.Took(start)),
	}
	if parentID != nil {
		attrs = append(attrs, slog.Int64("category_id", *parentID))
	}
	logger.Debug(ctx, "service.catalog", event, attrs...)
}
