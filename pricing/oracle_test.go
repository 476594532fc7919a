package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPriceServer(t *testing.T, prices map[string]string, hits *int) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++

		price, ok := prices[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"price": price})
	}))
	t.Cleanup(server.Close)

	return server
}

func TestOracle(t *testing.T) {
	token := models.Account{
		Address: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		ChainID: 137,
	}

	t.Run("TokenPrice", func(t *testing.T) {
		hits := 0
		server := newPriceServer(t, map[string]string{"/v1/prices/token": "250000"}, &hits)
		oracle := NewOracle(server.URL, logging.NewTesting(t))

		price, err := oracle.TokenPriceUsd(context.Background(), token)

		require.NoError(t, err)
		assert.Equal(t, int64(250000), price.Int64())
	})

	t.Run("GasPrice", func(t *testing.T) {
		hits := 0
		server := newPriceServer(t, map[string]string{"/v1/prices/gas": "17"}, &hits)
		oracle := NewOracle(server.URL, logging.NewTesting(t))

		price, err := oracle.GasPriceUsd(context.Background(), 137)

		require.NoError(t, err)
		assert.Equal(t, int64(17), price.Int64())
	})

	t.Run("CachesWithinTTL", func(t *testing.T) {
		hits := 0
		server := newPriceServer(t, map[string]string{"/v1/prices/token": "99"}, &hits)
		oracle := NewOracle(server.URL, logging.NewTesting(t))

		for i := 0; i < 3; i++ {
			_, err := oracle.TokenPriceUsd(context.Background(), token)
			require.NoError(t, err)
		}

		assert.Equal(t, 1, hits)
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		hits := 0
		server := newPriceServer(t, nil, &hits)
		oracle := NewOracle(server.URL, logging.NewTesting(t))

		_, err := oracle.TokenPriceUsd(context.Background(), token)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("InvalidPrice", func(t *testing.T) {
		hits := 0
		server := newPriceServer(t, map[string]string{"/v1/prices/gas": "not-a-number"}, &hits)
		oracle := NewOracle(server.URL, logging.NewTesting(t))

		_, err := oracle.GasPriceUsd(context.Background(), 1)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid price")
	})
}
