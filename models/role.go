package models

// VariableRole describes how a plan variable obtains its value.
type VariableRole interface {
	isVariableRole()
}

// PaymentRecipientRole resolves to the filler's payment recipient address
// for a given chain, taken from the solver context.
type PaymentRecipientRole struct {
	ChainID uint64
}

func (PaymentRecipientRole) isVariableRole() {}

// PaymentChainRole resolves to the solver's payment chain id.
type PaymentChainRole struct{}

func (PaymentChainRole) isVariableRole() {}

// PricingRole marks a free variable to be searched over during quoting.
// Pricing search is unsupported; plans carrying these are rejected.
type PricingRole struct{}

func (PricingRole) isVariableRole() {}

// TxOutputRole is set by the filler from transaction receipts.
type TxOutputRole struct{}

func (TxOutputRole) isVariableRole() {}

// WitnessRole is resolved at fill time by a kind-specific plugin. Variables
// lists the sub-variables whose values are handed to the plugin.
type WitnessRole struct {
	Kind      string
	Data      []byte
	Variables []int
}

func (WitnessRole) isVariableRole() {}

// QueryRole computes its value with an eth_call against Target.
// BlockNumber zero means latest.
type QueryRole struct {
	Target      Account
	Selector    [4]byte
	Arguments   []Argument
	BlockNumber uint64
}

func (QueryRole) isVariableRole() {}
