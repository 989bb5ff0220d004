package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/flower-shop.git/internal/shop"
)

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS stock_items (
		id       TEXT PRIMARY KEY,
		name     TEXT NOT NULL,
		quantity INT  NOT NULL DEFAULT 0 CHECK (quantity >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id            TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL,
		order_date    DATE NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id            TEXT PRIMARY KEY,
		order_id      TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		stock_item_id TEXT NOT NULL REFERENCES stock_items(id),
		quantity      INT  NOT NULL CHECK (quantity > 0)
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id)`,
	`CREATE INDEX IF NOT EXISTS orders_date_idx ON orders (order_date)`,
	`CREATE TABLE IF NOT EXISTS system_date (
		id         INT PRIMARY KEY CHECK (id = 1),
		date_value DATE NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables and seeds the default catalog when the
// stock table is empty.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	var n int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM stock_items`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, it := range shop.DefaultCatalog() {
		if _, err := db.Exec(ctx,
			`INSERT INTO stock_items (id, name, quantity) VALUES ($1, $2, $3)`,
			it.ID, it.Name, it.OnHand); err != nil {
			return err
		}
	}
	return nil
}
