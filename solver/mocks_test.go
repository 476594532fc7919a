package solver

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/models"
)

// mockPublicClient is a scriptable PublicClient recording call counts.
type mockPublicClient struct {
	callContractFn func(to common.Address, data []byte, blockNumber *big.Int) ([]byte, error)
	simulateFn     func(from, to common.Address, data []byte, blockNumber *big.Int) (*SimulationResult, error)
	receipt        *types.Receipt
	header         *types.Header

	callContractCalls int
	simulateCalls     int
}

func (m *mockPublicClient) CallContract(_ context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error) {
	m.callContractCalls++
	if m.callContractFn == nil {
		return nil, errors.New("unexpected CallContract")
	}
	return m.callContractFn(to, data, blockNumber)
}

func (m *mockPublicClient) SimulateCall(_ context.Context, from, to common.Address, data []byte, blockNumber *big.Int) (*SimulationResult, error) {
	m.simulateCalls++
	if m.simulateFn == nil {
		return &SimulationResult{Success: true, GasUsed: 21000}, nil
	}
	return m.simulateFn(from, to, data, blockNumber)
}

func (m *mockPublicClient) WaitForReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	if m.receipt == nil {
		return nil, errors.New("no receipt scripted")
	}
	return m.receipt, nil
}

func (m *mockPublicClient) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	if m.header == nil {
		return nil, errors.New("no header scripted")
	}
	return m.header, nil
}

// mockWalletClient records sends and returns a fixed hash.
type mockWalletClient struct {
	hash      common.Hash
	sendErr   error
	sendCalls int
	lastData  []byte
}

func (m *mockWalletClient) SendTransaction(_ context.Context, _ common.Address, data []byte) (common.Hash, error) {
	m.sendCalls++
	m.lastData = data
	if m.sendErr != nil {
		return common.Hash{}, m.sendErr
	}
	return m.hash, nil
}

// mockWitnessResolver wraps a resolve function.
type mockWitnessResolver struct {
	resolveFn func(data []byte, values []models.AbiEncodedValue) (models.AbiEncodedValue, error)
	calls     int
}

func (m *mockWitnessResolver) Resolve(_ context.Context, data []byte, values []models.AbiEncodedValue) (models.AbiEncodedValue, error) {
	m.calls++
	return m.resolveFn(data, values)
}

// mockContext is a scriptable solver Context with working defaults.
type mockContext struct {
	public       *mockPublicClient
	wallet       *mockWalletClient
	paymentChain uint64
	recipients   map[uint64]common.Address
	filler       common.Address
	whitelistFn  func(models.Account, string) bool
	witnesses    map[string]WitnessResolver
	tokenPriceFn func(models.Account) (*big.Int, error)
	gasPriceFn   func(uint64) (*big.Int, error)
}

func newMockContext() *mockContext {
	return &mockContext{
		public:       &mockPublicClient{},
		wallet:       &mockWalletClient{hash: common.HexToHash("0xabcd")},
		paymentChain: 1,
		recipients: map[uint64]common.Address{
			1: common.HexToAddress("0x5555555555555555555555555555555555555555"),
		},
		filler:    common.HexToAddress("0xF111111111111111111111111111111111111111"),
		witnesses: make(map[string]WitnessResolver),
	}
}

func (m *mockContext) PublicClient(_ uint64) (PublicClient, error) {
	return m.public, nil
}

func (m *mockContext) WalletClient(_ uint64) (WalletClient, error) {
	return m.wallet, nil
}

func (m *mockContext) PaymentChain() uint64 {
	return m.paymentChain
}

func (m *mockContext) PaymentRecipient(chainID uint64) (common.Address, error) {
	recipient, ok := m.recipients[chainID]
	if !ok {
		return common.Address{}, errors.Errorf("no recipient for chain %d", chainID)
	}
	return recipient, nil
}

func (m *mockContext) FillerAddress() common.Address {
	return m.filler
}

func (m *mockContext) IsWhitelisted(account models.Account, kind string) bool {
	if m.whitelistFn == nil {
		return true
	}
	return m.whitelistFn(account, kind)
}

func (m *mockContext) WitnessResolver(kind string) (WitnessResolver, bool) {
	resolver, ok := m.witnesses[kind]
	return resolver, ok
}

func (m *mockContext) TokenPriceUsd(_ context.Context, token models.Account) (*big.Int, error) {
	if m.tokenPriceFn == nil {
		return big.NewInt(1), nil
	}
	return m.tokenPriceFn(token)
}

func (m *mockContext) GasPriceUsd(_ context.Context, chainID uint64) (*big.Int, error) {
	if m.gasPriceFn == nil {
		return big.NewInt(0), nil
	}
	return m.gasPriceFn(chainID)
}

func staticWord(n int64) []byte {
	var word [32]byte
	big.NewInt(n).FillBytes(word[:])
	return word[:]
}

var testTarget = models.Account{
	Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	ChainID: 1,
}

var testToken = models.Account{
	Address: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	ChainID: 1,
}
