package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/speedrun-hq/solver/db"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/models"
	"github.com/speedrun-hq/solver/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gopkg.in/h2non/gentleman.v2"
)

type testSuite struct {
	t *testing.T

	Ctx      context.Context
	Client   *gentleman.Client
	Database *db.MemoryDB
}

func newTestSuite(t *testing.T) *testSuite {
	gin.SetMode(gin.TestMode)

	database := db.NewMemoryDB()

	srv := New(Config{
		Logger:      logging.NewTesting(t),
		LogRequests: true,
		Dependencies: Dependencies{
			Database: database,
			Metrics:  services.NewMetricsService(logging.NewTesting(t)),
		},
	})

	server := httptest.NewServer(srv.Handler)
	t.Cleanup(server.Close)

	client := gentleman.New()
	client.BaseURL(server.URL)

	return &testSuite{
		t:        t,
		Ctx:      context.Background(),
		Client:   client,
		Database: database,
	}
}

func TestHandler(t *testing.T) {
	t.Run("health check", func(t *testing.T) {
		// ARRANGE
		ts := newTestSuite(t)

		// ACT
		resp, err := ts.Client.Get().AddPath("/health").Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assertResponseContainsJSON(t, resp, "status", "ok")
	})

	t.Run("metrics exposition", func(t *testing.T) {
		ts := newTestSuite(t)

		resp, err := ts.Client.Get().AddPath("/metrics").Do()

		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestOrders(t *testing.T) {
	t.Run("Get", func(t *testing.T) {
		// ARRANGE
		ts := newTestSuite(t)

		require.NoError(t, ts.Database.CreateOrder(ts.Ctx, &models.Order{
			ID:          "0xorder1",
			SourceChain: 8453,
			Resolver:    "0xresolver",
			Status:      models.OrderStatusFilled,
		}))

		// ACT
		resp, err := ts.Client.Get().AddPath("/api/v1/orders/0xorder1").Do()

		// ASSERT
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assertResponseContainsJSON(t, resp, "id", "0xorder1")
		assertResponseContainsJSON(t, resp, "status", "filled")
	})

	t.Run("GetMissing", func(t *testing.T) {
		ts := newTestSuite(t)

		resp, err := ts.Client.Get().AddPath("/api/v1/orders/0xnope").Do()

		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("List", func(t *testing.T) {
		ts := newTestSuite(t)

		for _, id := range []string{"0xa", "0xb"} {
			require.NoError(t, ts.Database.CreateOrder(ts.Ctx, &models.Order{
				ID:          id,
				SourceChain: 1,
				Resolver:    "0xresolver",
				Status:      models.OrderStatusReceived,
			}))
		}

		resp, err := ts.Client.Get().AddPath("/api/v1/orders").Do()

		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		orders := gjson.GetBytes(resp.Bytes(), "orders")
		assert.Len(t, orders.Array(), 2)
	})

	t.Run("ListBadLimit", func(t *testing.T) {
		ts := newTestSuite(t)

		resp, err := ts.Client.Get().AddPath("/api/v1/orders").SetQuery("limit", "zero").Do()

		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func assertResponseContainsJSON(t *testing.T, res *gentleman.Response, path string, contains string) {
	r := gjson.GetBytes(res.Bytes(), path)

	assert.Contains(t, r.String(), contains, res.String())
}
