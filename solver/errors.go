package solver

import "github.com/pkg/errors"

var (
	// ErrPricingUnsupported rejects plans with free pricing variables.
	ErrPricingUnsupported = errors.New("pricing variables are not supported")

	// ErrDelayedPayment rejects payments with a nonzero estimated delay.
	ErrDelayedPayment = errors.New("delayed payments are not supported")

	// ErrNegativePnl rejects plans that do not pay for themselves.
	ErrNegativePnl = errors.New("negative PnL")

	// ErrSimulationFailed is returned when a gas-quoting simulation reverts.
	ErrSimulationFailed = errors.New("gas simulation failed")

	// ErrVariableNotSet is returned when reading a set-driven variable
	// (pricing, tx output, witness) before anything stored a value.
	ErrVariableNotSet = errors.New("variable not set")

	// ErrNotSettable is returned when Set is called on a computed role.
	ErrNotSettable = errors.New("variable role is not settable")

	// ErrDependencyCycle is returned when variable computation re-enters
	// itself; acyclicity is the resolver's responsibility.
	ErrDependencyCycle = errors.New("variable dependency cycle")

	// ErrDynamicFormulaValue is returned when a formula variable resolves
	// to something other than a static uint256 word.
	ErrDynamicFormulaValue = errors.New("formula value is not a static uint256")

	// ErrUnmatchedRevert is the resolver error: a step reverted and no
	// policy entry matched.
	ErrUnmatchedRevert = errors.New("resolver error: unmatched revert")

	// ErrUntrustedAssumption rejects plans relying on non-whitelisted accounts.
	ErrUntrustedAssumption = errors.New("untrusted assumption")

	// ErrUnsupportedWitness rejects plans using witness kinds with no
	// registered resolver.
	ErrUnsupportedWitness = errors.New("unsupported witness kind")

	// ErrDeadlineTooClose rejects plans whose earliest deadline leaves less
	// than the maximum fill time.
	ErrDeadlineTooClose = errors.New("deadline too close")

	// ErrRevertPolicyOrder rejects plans where a drop policy follows a
	// token-spending step.
	ErrRevertPolicyOrder = errors.New("drop policy after spending step")
)
