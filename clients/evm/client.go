package evm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/config"
	"github.com/speedrun-hq/solver/logging"
	"golang.org/x/sync/errgroup"
)

const (
	dialProbeTimeout = 5 * time.Second
	headProbeTimeout = 15 * time.Second
)

// ChainClients bundles everything the solver holds for one chain: the raw
// ethclient for subscriptions, and the read/send adapters the core consumes.
type ChainClients struct {
	ChainID uint64
	Raw     *ethclient.Client
	Public  *PublicClient
	Wallet  *WalletClient
}

// Dial connects to every configured chain concurrently and returns the
// per-chain client bundles. Each connection is probed before it is handed
// out; a single unreachable chain fails the whole provisioning step, since
// a solver running with a partial chain set would misquote cross-chain
// plans.
func Dial(ctx context.Context, cfg config.Config, logger zerolog.Logger) (map[uint64]*ChainClients, error) {
	var (
		mu      sync.Mutex
		bundles = make(map[uint64]*ChainClients, len(cfg.Chains))
	)

	group, groupCtx := errgroup.WithContext(ctx)

	for chainID := range cfg.Chains {
		chain := cfg.Chains[chainID]
		group.Go(func() error {
			bundle, err := dialChain(groupCtx, chain, cfg, logger)
			if err != nil {
				return errors.Wrapf(err, "chain %d", chain.ChainID)
			}

			mu.Lock()
			bundles[chain.ChainID] = bundle
			mu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return bundles, nil
}

// dialChain connects one chain, probes it, and wraps it in the solver's
// client adapters.
func dialChain(ctx context.Context, chain config.ChainConfig, cfg config.Config, logger zerolog.Logger) (*ChainClients, error) {
	logger = logger.With().
		Uint64(logging.FieldChain, chain.ChainID).
		Str(logging.FieldModule, "evm").
		Logger()

	client, isWebSocket, err := connect(ctx, chain.RPCURL)
	if err != nil {
		return nil, err
	}

	// Liveness probe; a connection that cannot serve the head block is
	// useless for both quoting and filling.
	probeCtx, cancel := context.WithTimeout(ctx, dialProbeTimeout)
	head, err := client.BlockNumber(probeCtx)
	cancel()
	if err != nil {
		return nil, errors.Wrap(err, "head block probe failed")
	}

	if isWebSocket {
		if err := probeSubscription(ctx, client, logger); err != nil {
			return nil, err
		}
	} else if chain.OrderRegistry != (common.Address{}) {
		logger.Warn().Msg("Order registry configured over HTTP RPC; log subscriptions need a WebSocket endpoint")
	}

	wallet, err := NewWalletClient(ctx, client, cfg.FillerKey, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Bool("is_websocket", isWebSocket).
		Uint64(logging.FieldBlock, head).
		Msg("Connected chain")

	return &ChainClients{
		ChainID: chain.ChainID,
		Raw:     client,
		Public:  NewPublicClient(client),
		Wallet:  wallet,
	}, nil
}

// connect dials the endpoint, preserving subscription support for
// WebSocket URLs.
func connect(ctx context.Context, rpcURL string) (*ethclient.Client, bool, error) {
	if strings.HasPrefix(rpcURL, "wss://") || strings.HasPrefix(rpcURL, "ws://") {
		rpcClient, err := rpc.DialWebsocket(ctx, rpcURL, "")
		if err != nil {
			return nil, false, errors.Wrap(err, "websocket dial failed")
		}
		return ethclient.NewClient(rpcClient), true, nil
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, false, errors.Wrap(err, "dial failed")
	}
	return client, false, nil
}

// probeSubscription confirms the endpoint actually streams new heads, so a
// broken websocket surfaces at startup instead of as a silent order drought.
func probeSubscription(ctx context.Context, client *ethclient.Client, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, headProbeTimeout)
	defer cancel()

	heads := make(chan *types.Header, 1)

	sub, err := client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return errors.Wrap(err, "head subscription failed")
	}
	defer sub.Unsubscribe()

	select {
	case head := <-heads:
		logger.Debug().
			Uint64(logging.FieldBlock, head.Number.Uint64()).
			Msg("Subscription probe received head")
		return nil
	case err := <-sub.Err():
		return errors.Wrap(err, "head subscription broke")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "no head received during subscription probe")
	}
}
