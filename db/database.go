package db

import (
	"context"

	"github.com/speedrun-hq/solver/models"
)

// Database is the persistence surface of the solver.
type Database interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, limit int) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, detail string) error
	SetOrderPnl(ctx context.Context, id string, pnlUsd string) error

	Ping() error
	Close() error
}
