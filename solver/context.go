package solver

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/speedrun-hq/solver/models"
)

// SimulationResult is the outcome of a call simulation. RevertData carries
// the raw revert payload when Success is false.
type SimulationResult struct {
	Success    bool
	GasUsed    uint64
	ReturnData []byte
	RevertData []byte
}

// PublicClient is the read surface the core needs on a chain.
type PublicClient interface {
	// CallContract performs an eth_call, at the given block if non-nil.
	CallContract(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error)

	// SimulateCall simulates a transaction from the given account.
	SimulateCall(ctx context.Context, from, to common.Address, data []byte, blockNumber *big.Int) (*SimulationResult, error)

	// WaitForReceipt blocks until a receipt for the transaction exists.
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// HeaderByNumber returns the header of the given block.
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// WalletClient is the send surface: it owns nonce and gas management for
// the filler account on one chain.
type WalletClient interface {
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}

// WitnessResolver produces externally witnessed values at fill time.
type WitnessResolver interface {
	Resolve(ctx context.Context, data []byte, values []models.AbiEncodedValue) (models.AbiEncodedValue, error)
}

// Context is the complete external surface the core consumes. Everything
// the solver knows about the outside world flows through here.
type Context interface {
	PublicClient(chainID uint64) (PublicClient, error)
	WalletClient(chainID uint64) (WalletClient, error)

	PaymentChain() uint64
	PaymentRecipient(chainID uint64) (common.Address, error)
	FillerAddress() common.Address

	IsWhitelisted(account models.Account, kind string) bool
	WitnessResolver(kind string) (WitnessResolver, bool)

	// TokenPriceUsd returns the USD price of the token's smallest unit at
	// the oracle's fixed-point scale.
	TokenPriceUsd(ctx context.Context, token models.Account) (*big.Int, error)

	// GasPriceUsd returns the USD price of one gas unit on the chain at
	// the oracle's fixed-point scale.
	GasPriceUsd(ctx context.Context, chainID uint64) (*big.Int, error)
}
