// Package pricing provides the USD price oracle the quoter consumes.
// Prices come from an HTTP price service and are cached briefly; the
// returned integers are USD at the service's fixed-point scale (1e-18 USD
// per smallest token unit / per gas unit).
package pricing

import (
	"context"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/models"
	"gopkg.in/h2non/gentleman.v2"
)

const defaultCacheTTL = 30 * time.Second

// Oracle fetches and caches USD prices.
type Oracle struct {
	client *gentleman.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	price     *big.Int
	fetchedAt time.Time
}

type priceResponse struct {
	Price string `json:"price"`
}

// NewOracle creates an oracle against the given price API base URL.
func NewOracle(baseURL string, logger zerolog.Logger) *Oracle {
	client := gentleman.New()
	client.BaseURL(baseURL)

	return &Oracle{
		client: client,
		ttl:    defaultCacheTTL,
		cache:  make(map[string]cachedPrice),
		logger: logger.With().Str(logging.FieldModule, "pricing").Logger(),
	}
}

// TokenPriceUsd returns the USD price of the token's smallest unit.
func (o *Oracle) TokenPriceUsd(_ context.Context, token models.Account) (*big.Int, error) {
	key := "token:" + strconv.FormatUint(token.ChainID, 10) + ":" + token.Address.Hex()

	return o.cached(key, func() (*big.Int, error) {
		req := o.client.Request()
		req.Path("/v1/prices/token")
		req.SetQuery("chain", strconv.FormatUint(token.ChainID, 10))
		req.SetQuery("address", token.Address.Hex())

		return o.fetch(req)
	})
}

// GasPriceUsd returns the USD price of one gas unit on the chain.
func (o *Oracle) GasPriceUsd(_ context.Context, chainID uint64) (*big.Int, error) {
	key := "gas:" + strconv.FormatUint(chainID, 10)

	return o.cached(key, func() (*big.Int, error) {
		req := o.client.Request()
		req.Path("/v1/prices/gas")
		req.SetQuery("chain", strconv.FormatUint(chainID, 10))

		return o.fetch(req)
	})
}

func (o *Oracle) cached(key string, fetch func() (*big.Int, error)) (*big.Int, error) {
	o.mu.Lock()
	if entry, ok := o.cache[key]; ok && time.Since(entry.fetchedAt) < o.ttl {
		o.mu.Unlock()
		return new(big.Int).Set(entry.price), nil
	}
	o.mu.Unlock()

	price, err := fetch()
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.cache[key] = cachedPrice{price: price, fetchedAt: time.Now()}
	o.mu.Unlock()

	o.logger.Debug().Str("key", key).Str("price", price.String()).Msg("Fetched price")

	return new(big.Int).Set(price), nil
}

func (o *Oracle) fetch(req *gentleman.Request) (*big.Int, error) {
	res, err := req.Send()
	if err != nil {
		return nil, errors.Wrap(err, "price request failed")
	}
	if !res.Ok {
		return nil, errors.Errorf("price service returned status %d", res.StatusCode)
	}

	var body priceResponse
	if err := res.JSON(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode price response")
	}

	price, ok := new(big.Int).SetString(body.Price, 10)
	if !ok || price.Sign() < 0 {
		return nil, errors.Errorf("invalid price %q", body.Price)
	}

	return price, nil
}
