package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/models"
)

// MemoryDB is an in-memory Database used in tests and local runs.
type MemoryDB struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

// NewMemoryDB creates an empty in-memory database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{orders: make(map[string]*models.Order)}
}

func (m *MemoryDB) CreateOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return errors.Errorf("duplicate key: %s", order.ID)
	}

	stored := *order
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.orders[order.ID] = &stored

	return nil
}

func (m *MemoryDB) GetOrder(_ context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, errors.Errorf("order not found: %s", id)
	}

	copied := *order
	return &copied, nil
}

func (m *MemoryDB) ListOrders(_ context.Context, limit int) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make([]*models.Order, 0, len(m.orders))
	for _, order := range m.orders {
		copied := *order
		orders = append(orders, &copied)
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}

	return orders, nil
}

func (m *MemoryDB) UpdateOrderStatus(_ context.Context, id string, status models.OrderStatus, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return errors.Errorf("order not found: %s", id)
	}

	order.Status = status
	order.Detail = detail
	order.UpdatedAt = time.Now()

	return nil
}

func (m *MemoryDB) SetOrderPnl(_ context.Context, id string, pnlUsd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return errors.Errorf("order not found: %s", id)
	}

	order.PnlUsd = pnlUsd
	order.UpdatedAt = time.Now()

	return nil
}

func (m *MemoryDB) Ping() error { return nil }

func (m *MemoryDB) Close() error { return nil }
