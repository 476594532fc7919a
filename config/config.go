package config

import (
	"crypto/ecdsa"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// ChainConfig describes one chain the solver operates on.
type ChainConfig struct {
	ChainID uint64

	// RPCURL is the chain endpoint; WebSocket URLs enable order subscriptions.
	RPCURL string

	// OrderRegistry is the contract emitting OrderCreated events.
	OrderRegistry common.Address

	// PaymentRecipient receives solver payments on this chain.
	PaymentRecipient common.Address
}

// WhitelistEntry trusts an account for one assumption kind.
type WhitelistEntry struct {
	Kind    string
	ChainID uint64
	Address common.Address
}

// Config holds all configuration for the solver process.
type Config struct {
	// Server configuration
	Port           string
	AllowedOrigins string

	// Database configuration
	DatabaseURL string

	// PaymentChainID is the chain payments settle on by default.
	PaymentChainID uint64

	// FillerKey signs fill transactions on every chain.
	FillerKey *ecdsa.PrivateKey

	// PriceAPIURL is the base URL of the USD price oracle.
	PriceAPIURL string

	// Chains maps chain id to its configuration.
	Chains map[uint64]ChainConfig

	// Whitelist lists the accounts trusted per assumption kind.
	Whitelist []WhitelistEntry
}

// LoadConfig loads configuration from environment variables, reading a
// .env file first if one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", "postgresql://localhost:5432/solver?sslmode=disable"),
		PriceAPIURL:    getEnvOrDefault("PRICE_API_URL", "http://localhost:8090"),
	}

	paymentChain, err := strconv.ParseUint(getEnvOrDefault("PAYMENT_CHAIN_ID", "1"), 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "invalid PAYMENT_CHAIN_ID")
	}
	cfg.PaymentChainID = paymentChain

	key, err := parseFillerKey(os.Getenv("FILLER_PRIVATE_KEY"))
	if err != nil {
		return nil, err
	}
	cfg.FillerKey = key

	chains, err := parseChains(os.Getenv("CHAINS"))
	if err != nil {
		return nil, err
	}
	cfg.Chains = chains

	whitelist, err := parseWhitelist(os.Getenv("WHITELIST"))
	if err != nil {
		return nil, err
	}
	cfg.Whitelist = whitelist

	return cfg, nil
}

// parseChains reads a comma-separated chain id list and the per-chain
// environment blocks (CHAIN_<id>_RPC_URL etc).
func parseChains(list string) (map[uint64]ChainConfig, error) {
	chains := make(map[uint64]ChainConfig)
	if list == "" {
		return chains, nil
	}

	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		chainID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid chain id %q in CHAINS", raw)
		}

		prefix := "CHAIN_" + raw + "_"

		rpcURL := os.Getenv(prefix + "RPC_URL")
		if rpcURL == "" {
			return nil, errors.Errorf("missing %sRPC_URL", prefix)
		}

		chain := ChainConfig{
			ChainID: chainID,
			RPCURL:  rpcURL,
		}

		if registry := os.Getenv(prefix + "ORDER_REGISTRY"); registry != "" {
			if !common.IsHexAddress(registry) {
				return nil, errors.Errorf("invalid %sORDER_REGISTRY", prefix)
			}
			chain.OrderRegistry = common.HexToAddress(registry)
		}

		if recipient := os.Getenv(prefix + "PAYMENT_RECIPIENT"); recipient != "" {
			if !common.IsHexAddress(recipient) {
				return nil, errors.Errorf("invalid %sPAYMENT_RECIPIENT", prefix)
			}
			chain.PaymentRecipient = common.HexToAddress(recipient)
		}

		chains[chainID] = chain
	}

	return chains, nil
}

// parseWhitelist reads "kind:chainId:address" entries separated by commas.
func parseWhitelist(list string) ([]WhitelistEntry, error) {
	if list == "" {
		return nil, nil
	}

	var entries []WhitelistEntry

	for _, raw := range strings.Split(list, ",") {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) != 3 {
			return nil, errors.Errorf("invalid whitelist entry %q, want kind:chainId:address", raw)
		}

		chainID, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid chain id in whitelist entry %q", raw)
		}

		if !common.IsHexAddress(parts[2]) {
			return nil, errors.Errorf("invalid address in whitelist entry %q", raw)
		}

		entries = append(entries, WhitelistEntry{
			Kind:    parts[0],
			ChainID: chainID,
			Address: common.HexToAddress(parts[2]),
		})
	}

	return entries, nil
}

func parseFillerKey(raw string) (*ecdsa.PrivateKey, error) {
	if raw == "" {
		return nil, errors.New("FILLER_PRIVATE_KEY is required")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid FILLER_PRIVATE_KEY")
	}

	return key, nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
