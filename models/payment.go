package models

// Payment is an inflow owed to the filler. ERC20 is the only variant today.
type Payment interface {
	isPayment()
}

// ERC20Payment pays the filler in an ERC-20 token. The recipient is read
// from a plan variable so payment routing can depend on context.
type ERC20Payment struct {
	Token                 Account
	Sender                Account
	AmountFormula         Formula
	RecipientVar          int
	EstimatedDelaySeconds uint64
}

func (ERC20Payment) isPayment() {}
