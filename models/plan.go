package models

import "github.com/ethereum/go-ethereum/common"

// RevertPolicyKind is the control outcome applied when a step's revert data
// matches a policy entry.
type RevertPolicyKind uint8

const (
	// RevertDrop terminates the fill cleanly.
	RevertDrop RevertPolicyKind = iota

	// RevertIgnore continues with the next step.
	RevertIgnore

	// RevertRetry is reserved; matching it is a fatal error.
	RevertRetry
)

func (k RevertPolicyKind) String() string {
	switch k {
	case RevertDrop:
		return "drop"
	case RevertIgnore:
		return "ignore"
	case RevertRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// SpendsERC20 declares a planned token outflow of a step.
type SpendsERC20 struct {
	Token         Account
	AmountFormula Formula
	Spender       Account
	Receiver      Account
}

// SpendsEstimatedGas overrides the simulated gas amount with a formula.
type SpendsEstimatedGas struct {
	AmountFormula Formula
}

// RevertPolicyEntry maps a revert-data prefix to a control outcome.
type RevertPolicyEntry struct {
	Policy         RevertPolicyKind
	ExpectedReason []byte
}

// RequiredBefore bounds step execution by a unix-seconds deadline.
type RequiredBefore struct {
	Deadline uint64
}

// RequiredFillerUntil grants an exclusive filler a head start: other fillers
// must wait out the deadline before executing the step.
type RequiredFillerUntil struct {
	ExclusiveFiller common.Address
	Deadline        uint64
}

// RequiredCallResult pins the expected result of a view call.
type RequiredCallResult struct {
	Target    Account
	Selector  [4]byte
	Arguments []Argument
	Result    []byte
}

// Attributes is the sparse per-step attribute record. Singleton attributes
// are pointers (at most one; duplicates are a codec error), list attributes
// accumulate.
type Attributes struct {
	SpendsERC20           []SpendsERC20
	SpendsEstimatedGas    *SpendsEstimatedGas
	RevertPolicies        []RevertPolicyEntry
	RequiredBefore        *RequiredBefore
	RequiredFillerUntil   *RequiredFillerUntil
	RequiredCallResult    *RequiredCallResult
	WithTimestamp         *int
	WithBlockNumber       *int
	WithEffectiveGasPrice *int
}

// HasDropPolicy reports whether any revert policy entry is a drop.
func (a Attributes) HasDropPolicy() bool {
	for _, p := range a.RevertPolicies {
		if p.Policy == RevertDrop {
			return true
		}
	}
	return false
}

// Step is a single chain call of the plan. Call is the only step variant.
type Step struct {
	Target     Account
	Selector   [4]byte
	Arguments  []Argument
	Attributes Attributes
	Payments   []Payment
}

// Assumption names an account whose behavior the plan depends on. Untrusted
// assumptions reject the plan during preflight.
type Assumption struct {
	Trusted Account
	Kind    string
}

// Plan is a resolved order: the typed execution graph produced by decoding
// a resolver response. Plans are immutable after resolution.
type Plan struct {
	Steps       []Step
	Variables   []VariableRole
	Assumptions []Assumption
	Payments    []Payment
}
