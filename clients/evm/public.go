package evm

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/solver"
)

const defaultReceiptPollInterval = 2 * time.Second

// PublicClient adapts an ethclient.Client to the read surface the solver
// core consumes.
type PublicClient struct {
	client       *ethclient.Client
	pollInterval time.Duration
}

// NewPublicClient wraps an ethclient for core use.
func NewPublicClient(client *ethclient.Client) *PublicClient {
	return &PublicClient{
		client:       client,
		pollInterval: defaultReceiptPollInterval,
	}
}

// CallContract performs an eth_call, at the given block if non-nil.
func (p *PublicClient) CallContract(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return p.client.CallContract(ctx, msg, blockNumber)
}

// SimulateCall simulates a transaction from the given account. Reverts are
// reported in the result, not as errors; the revert payload is recovered
// from the node's error data.
func (p *PublicClient) SimulateCall(ctx context.Context, from, to common.Address, data []byte, blockNumber *big.Int) (*solver.SimulationResult, error) {
	msg := ethereum.CallMsg{From: from, To: &to, Data: data}

	ret, err := p.client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		if revertData, ok := revertDataFromError(err); ok {
			return &solver.SimulationResult{Success: false, RevertData: revertData}, nil
		}
		return nil, errors.Wrap(err, "simulation call failed")
	}

	result := &solver.SimulationResult{Success: true, ReturnData: ret}

	// Gas can only be estimated against pending state; historical
	// re-simulations only need the revert data anyway.
	if blockNumber == nil {
		gas, err := p.client.EstimateGas(ctx, msg)
		if err != nil {
			if revertData, ok := revertDataFromError(err); ok {
				return &solver.SimulationResult{Success: false, RevertData: revertData}, nil
			}
			return nil, errors.Wrap(err, "gas estimation failed")
		}
		result.GasUsed = gas
	}

	return result, nil
}

// WaitForReceipt polls for the transaction receipt until it exists or the
// context ends.
func (p *PublicClient) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrapf(err, "failed to get receipt for %s", hash.Hex())
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// HeaderByNumber returns the header of the given block.
func (p *PublicClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return p.client.HeaderByNumber(ctx, number)
}

// revertDataFromError digs the revert payload out of an RPC error.
func revertDataFromError(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}

	hexData, ok := dataErr.ErrorData().(string)
	if !ok || !strings.HasPrefix(hexData, "0x") {
		return nil, false
	}

	return common.FromHex(hexData), true
}
