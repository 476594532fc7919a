package evm

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/logging"
)

// WalletClient signs and broadcasts filler transactions on one chain. It
// owns nonce and EIP-1559 fee selection; sends are serialized so nonces
// never race within the process.
type WalletClient struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	logger  zerolog.Logger

	mu sync.Mutex
}

// NewWalletClient creates a wallet client for the chain the ethclient is
// connected to.
func NewWalletClient(ctx context.Context, client *ethclient.Client, key *ecdsa.PrivateKey, logger zerolog.Logger) (*WalletClient, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chain id")
	}

	address := crypto.PubkeyToAddress(key.PublicKey)

	return &WalletClient{
		client:  client,
		key:     key,
		address: address,
		chainID: chainID,
		logger: logger.With().
			Uint64(logging.FieldChain, chainID.Uint64()).
			Str(logging.FieldModule, "evm_wallet").
			Logger(),
	}, nil
}

// Address returns the filler address this wallet signs for.
func (w *WalletClient) Address() common.Address {
	return w.address
}

// SendTransaction signs and broadcasts a call to the given target.
func (w *WalletClient) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to get nonce")
	}

	tipCap, err := w.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to get gas tip cap")
	}

	head, err := w.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to get head block")
	}

	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}

	// feeCap = 2*baseFee + tip leaves room for base fee growth while the
	// transaction is pending.
	feeCap := new(big.Int).Add(
		new(big.Int).Mul(baseFee, big.NewInt(2)),
		tipCap,
	)

	gas, err := w.client.EstimateGas(ctx, ethereum.CallMsg{
		From: w.address,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to estimate gas")
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to sign transaction")
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to broadcast transaction")
	}

	w.logger.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gas).
		Msg("Broadcast transaction")

	return signed.Hash(), nil
}
