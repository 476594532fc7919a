package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/clients/evm"
	"github.com/speedrun-hq/solver/config"
	"github.com/speedrun-hq/solver/models"
	"github.com/speedrun-hq/solver/pricing"
	"github.com/speedrun-hq/solver/solver"
)

// SolverContext is the production solver.Context: per-chain client bundles,
// config-derived payment routing and whitelist, the price oracle, and the
// witness resolver registry.
type SolverContext struct {
	cfg       *config.Config
	chains    map[uint64]*evm.ChainClients
	oracle    *pricing.Oracle
	witnesses map[string]solver.WitnessResolver
	filler    common.Address
	whitelist map[string]bool
}

// NewSolverContext assembles the context from dialed chain bundles.
func NewSolverContext(
	cfg *config.Config,
	chains map[uint64]*evm.ChainClients,
	oracle *pricing.Oracle,
) *SolverContext {
	sctx := &SolverContext{
		cfg:       cfg,
		chains:    chains,
		oracle:    oracle,
		witnesses: make(map[string]solver.WitnessResolver),
		filler:    crypto.PubkeyToAddress(cfg.FillerKey.PublicKey),
		whitelist: make(map[string]bool, len(cfg.Whitelist)),
	}

	for _, entry := range cfg.Whitelist {
		sctx.whitelist[whitelistKey(entry.Kind, entry.ChainID, entry.Address)] = true
	}

	return sctx
}

// RegisterWitnessResolver installs a plugin for a witness kind.
func (s *SolverContext) RegisterWitnessResolver(kind string, resolver solver.WitnessResolver) {
	s.witnesses[kind] = resolver
}

func (s *SolverContext) PublicClient(chainID uint64) (solver.PublicClient, error) {
	chain, ok := s.chains[chainID]
	if !ok {
		return nil, errors.Errorf("no client for chain %d", chainID)
	}
	return chain.Public, nil
}

func (s *SolverContext) WalletClient(chainID uint64) (solver.WalletClient, error) {
	chain, ok := s.chains[chainID]
	if !ok {
		return nil, errors.Errorf("no wallet for chain %d", chainID)
	}
	return chain.Wallet, nil
}

func (s *SolverContext) PaymentChain() uint64 {
	return s.cfg.PaymentChainID
}

func (s *SolverContext) PaymentRecipient(chainID uint64) (common.Address, error) {
	chain, ok := s.cfg.Chains[chainID]
	if !ok || chain.PaymentRecipient == (common.Address{}) {
		return common.Address{}, errors.Errorf("no payment recipient for chain %d", chainID)
	}
	return chain.PaymentRecipient, nil
}

func (s *SolverContext) FillerAddress() common.Address {
	return s.filler
}

func (s *SolverContext) IsWhitelisted(account models.Account, kind string) bool {
	return s.whitelist[whitelistKey(kind, account.ChainID, account.Address)]
}

func (s *SolverContext) WitnessResolver(kind string) (solver.WitnessResolver, bool) {
	resolver, ok := s.witnesses[kind]
	return resolver, ok
}

func (s *SolverContext) TokenPriceUsd(ctx context.Context, token models.Account) (*big.Int, error) {
	return s.oracle.TokenPriceUsd(ctx, token)
}

func (s *SolverContext) GasPriceUsd(ctx context.Context, chainID uint64) (*big.Int, error) {
	return s.oracle.GasPriceUsd(ctx, chainID)
}

func whitelistKey(kind string, chainID uint64, address common.Address) string {
	return fmt.Sprintf("%s|%d|%s", kind, chainID, address.Hex())
}
