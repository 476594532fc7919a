package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Account is a chain-qualified address. It is the identity unit of the plan
// model: every target, token, sender and trusted party carries the chain it
// lives on alongside the address.
type Account struct {
	Address common.Address
	ChainID uint64
}

func (a Account) String() string {
	return fmt.Sprintf("%s@%d", a.Address.Hex(), a.ChainID)
}

// Equal reports whether two accounts reference the same address on the same chain.
func (a Account) Equal(other Account) bool {
	return a.ChainID == other.ChainID && a.Address == other.Address
}
