package db

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/models"
)

const ordersSchema = `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		source_chain BIGINT NOT NULL,
		resolver TEXT NOT NULL,
		status TEXT NOT NULL,
		pnl_usd TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status);
`

// PostgresDB implements the Database interface using PostgreSQL
type PostgresDB struct {
	db *sql.DB
}

// NewPostgresDB creates a new PostgreSQL database connection and
// initializes the schema.
func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := conn.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if _, err := conn.ExecContext(context.Background(), ordersSchema); err != nil {
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return &PostgresDB{db: conn}, nil
}

// NewFromConn wraps an existing connection without schema initialization.
func NewFromConn(conn *sql.DB) *PostgresDB {
	return &PostgresDB{db: conn}
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping checks if the database connection is alive
func (p *PostgresDB) Ping() error {
	return p.db.Ping()
}

// CreateOrder inserts a new order record.
func (p *PostgresDB) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, source_chain, resolver, status)
		VALUES ($1, $2, $3, $4)
	`

	_, err := p.db.ExecContext(ctx, query, order.ID, order.SourceChain, order.Resolver, order.Status)
	if err != nil {
		return errors.Wrapf(err, "failed to create order %s", order.ID)
	}

	return nil
}

// GetOrder retrieves an order by ID.
func (p *PostgresDB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	query := `
		SELECT id, source_chain, resolver, status, pnl_usd, detail, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var order models.Order
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.SourceChain,
		&order.Resolver,
		&order.Status,
		&order.PnlUsd,
		&order.Detail,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get order %s", id)
	}

	return &order, nil
}

// ListOrders returns the most recent orders.
func (p *PostgresDB) ListOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	query := `
		SELECT id, source_chain, resolver, status, pnl_usd, detail, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.SourceChain,
			&order.Resolver,
			&order.Status,
			&order.PnlUsd,
			&order.Detail,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan order")
		}
		orders = append(orders, &order)
	}

	return orders, rows.Err()
}

// UpdateOrderStatus transitions an order and records an optional detail.
func (p *PostgresDB) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, detail string) error {
	query := `
		UPDATE orders
		SET status = $2, detail = $3, updated_at = now()
		WHERE id = $1
	`

	res, err := p.db.ExecContext(ctx, query, id, status, detail)
	if err != nil {
		return errors.Wrapf(err, "failed to update order %s", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return errors.Errorf("order not found: %s", id)
	}

	return nil
}

// SetOrderPnl records the quoted PnL for an order.
func (p *PostgresDB) SetOrderPnl(ctx context.Context, id string, pnlUsd string) error {
	query := `
		UPDATE orders
		SET pnl_usd = $2, updated_at = now()
		WHERE id = $1
	`

	if _, err := p.db.ExecContext(ctx, query, id, pnlUsd); err != nil {
		return errors.Wrapf(err, "failed to set pnl for order %s", id)
	}

	return nil
}
