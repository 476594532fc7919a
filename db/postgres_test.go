package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/speedrun-hq/solver/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewFromConn(conn), mock
}

func TestCreateOrder(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO orders").
		WithArgs("0xabc", uint64(1), "0xresolver", models.OrderStatusReceived).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := database.CreateOrder(context.Background(), &models.Order{
		ID:          "0xabc",
		SourceChain: 1,
		Resolver:    "0xresolver",
		Status:      models.OrderStatusReceived,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrder(t *testing.T) {
	database, mock := newMockDB(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "source_chain", "resolver", "status", "pnl_usd", "detail", "created_at", "updated_at",
	}).AddRow("0xabc", uint64(137), "0xresolver", "filled", "42", "", now, now)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("0xabc").
		WillReturnRows(rows)

	order, err := database.GetOrder(context.Background(), "0xabc")

	require.NoError(t, err)
	assert.Equal(t, "0xabc", order.ID)
	assert.Equal(t, uint64(137), order.SourceChain)
	assert.Equal(t, models.OrderStatusFilled, order.Status)
	assert.Equal(t, "42", order.PnlUsd)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Run("Updates", func(t *testing.T) {
		database, mock := newMockDB(t)

		mock.ExpectExec("UPDATE orders").
			WithArgs("0xabc", models.OrderStatusDropped, "revert policy").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := database.UpdateOrderStatus(context.Background(), "0xabc", models.OrderStatusDropped, "revert policy")

		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		database, mock := newMockDB(t)

		mock.ExpectExec("UPDATE orders").
			WithArgs("0xmissing", models.OrderStatusFilled, "").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := database.UpdateOrderStatus(context.Background(), "0xmissing", models.OrderStatusFilled, "")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestListOrders(t *testing.T) {
	database, mock := newMockDB(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "source_chain", "resolver", "status", "pnl_usd", "detail", "created_at", "updated_at",
	}).
		AddRow("0x1", uint64(1), "0xr", "received", "", "", now, now).
		AddRow("0x2", uint64(1), "0xr", "filled", "7", "", now, now)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs(10).
		WillReturnRows(rows)

	orders, err := database.ListOrders(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "0x1", orders[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
