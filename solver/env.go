package solver

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/codec"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/models"
)

// Env is the variable environment of one plan: a memoised, dependency-aware
// value store. Each slot carries the tick at which it was last written; a
// slot is fresh only if every dependency is fresh and was written no later.
// Writing a variable therefore invalidates all of its dependents without
// touching them.
//
// An Env is owned by a single plan driver and is not safe for concurrent
// mutation.
type Env struct {
	plan      *models.Plan
	sctx      Context
	slots     []envSlot
	tick      uint64
	computing []bool
	logger    zerolog.Logger

	// onCompute is observed by tests to count recomputations.
	onCompute func(idx int)
}

type envSlot struct {
	value *models.AbiEncodedValue
	tick  uint64
}

// NewEnv creates an empty environment for a plan.
func NewEnv(sctx Context, plan *models.Plan, logger zerolog.Logger) *Env {
	return &Env{
		plan:      plan,
		sctx:      sctx,
		slots:     make([]envSlot, len(plan.Variables)),
		computing: make([]bool, len(plan.Variables)),
		logger:    logger.With().Str(logging.FieldModule, "variable_env").Logger(),
	}
}

// Get returns the variable's value, computing it if the cached value is
// missing or stale.
func (e *Env) Get(ctx context.Context, idx int) (models.AbiEncodedValue, error) {
	if idx < 0 || idx >= len(e.slots) {
		return models.AbiEncodedValue{}, errors.Errorf("variable %d out of bounds", idx)
	}

	if e.computing[idx] {
		return models.AbiEncodedValue{}, errors.Wrapf(ErrDependencyCycle, "variable %d", idx)
	}

	if e.fresh(idx) {
		return *e.slots[idx].value, nil
	}

	e.computing[idx] = true
	defer func() { e.computing[idx] = false }()

	if e.onCompute != nil {
		e.onCompute(idx)
	}

	value, err := e.compute(ctx, idx)
	if err != nil {
		return models.AbiEncodedValue{}, err
	}

	e.store(idx, value)

	e.logger.Debug().
		Int(logging.FieldVar, idx).
		Uint64("tick", e.slots[idx].tick).
		Msg("Computed variable")

	return value, nil
}

// Set stores a value for a set-driven variable. Only pricing, tx-output and
// witness roles accept writes; setting anything else is a contract violation.
func (e *Env) Set(idx int, value models.AbiEncodedValue) error {
	if idx < 0 || idx >= len(e.slots) {
		return errors.Errorf("variable %d out of bounds", idx)
	}

	switch e.plan.Variables[idx].(type) {
	case models.PricingRole, models.TxOutputRole, models.WitnessRole:
	default:
		return errors.Wrapf(ErrNotSettable, "variable %d (%T)", idx, e.plan.Variables[idx])
	}

	e.store(idx, value)

	e.logger.Debug().
		Int(logging.FieldVar, idx).
		Uint64("tick", e.slots[idx].tick).
		Msg("Set variable")

	return nil
}

// Peek returns the cached value without computing or freshness checking.
func (e *Env) Peek(idx int) (models.AbiEncodedValue, bool) {
	if idx < 0 || idx >= len(e.slots) || e.slots[idx].value == nil {
		return models.AbiEncodedValue{}, false
	}
	return *e.slots[idx].value, true
}

// ResolveArguments materializes a mixed literal/variable argument list.
func (e *Env) ResolveArguments(ctx context.Context, args []models.Argument) ([]models.AbiEncodedValue, error) {
	values := make([]models.AbiEncodedValue, 0, len(args))

	for i, arg := range args {
		switch a := arg.(type) {
		case models.ValueArgument:
			values = append(values, a.Value)
		case models.VariableArgument:
			value, err := e.Get(ctx, a.Index)
			if err != nil {
				return nil, errors.Wrapf(err, "argument %d", i)
			}
			values = append(values, value)
		default:
			return nil, errors.Errorf("unknown argument type %T", arg)
		}
	}

	return values, nil
}

// store assigns the pre-increment counter as the slot tick, then advances.
func (e *Env) store(idx int, value models.AbiEncodedValue) {
	e.slots[idx] = envSlot{value: &value, tick: e.tick}
	e.tick++
}

// fresh walks the dependency graph depth-first. Only query roles have
// intrinsic dependencies; set-driven roles are fresh once written.
func (e *Env) fresh(idx int) bool {
	slot := e.slots[idx]
	if slot.value == nil {
		return false
	}

	query, ok := e.plan.Variables[idx].(models.QueryRole)
	if !ok {
		return true
	}

	for _, dep := range models.ArgumentVariables(query.Arguments) {
		if !e.fresh(dep) || e.slots[dep].tick > slot.tick {
			return false
		}
	}

	return true
}

func (e *Env) compute(ctx context.Context, idx int) (models.AbiEncodedValue, error) {
	switch role := e.plan.Variables[idx].(type) {
	case models.PaymentChainRole:
		return models.StaticUint256(new(big.Int).SetUint64(e.sctx.PaymentChain())), nil

	case models.PaymentRecipientRole:
		recipient, err := e.sctx.PaymentRecipient(role.ChainID)
		if err != nil {
			return models.AbiEncodedValue{}, errors.Wrapf(err, "variable %d", idx)
		}
		return models.StaticAddress(recipient), nil

	case models.QueryRole:
		return e.computeQuery(ctx, idx, role)

	default:
		return models.AbiEncodedValue{}, errors.Wrapf(ErrVariableNotSet, "variable %d (%T)", idx, role)
	}
}

func (e *Env) computeQuery(ctx context.Context, idx int, role models.QueryRole) (models.AbiEncodedValue, error) {
	values, err := e.ResolveArguments(ctx, role.Arguments)
	if err != nil {
		return models.AbiEncodedValue{}, errors.Wrapf(err, "query variable %d", idx)
	}

	data, err := codec.BuildCallData(role.Selector[:], values)
	if err != nil {
		return models.AbiEncodedValue{}, errors.Wrapf(err, "query variable %d", idx)
	}

	client, err := e.sctx.PublicClient(role.Target.ChainID)
	if err != nil {
		return models.AbiEncodedValue{}, errors.Wrapf(err, "query variable %d", idx)
	}

	var blockNumber *big.Int
	if role.BlockNumber != 0 {
		blockNumber = new(big.Int).SetUint64(role.BlockNumber)
	}

	ret, err := client.CallContract(ctx, role.Target.Address, data, blockNumber)
	if err != nil {
		return models.AbiEncodedValue{}, errors.Wrapf(err, "query variable %d", idx)
	}

	return wrapReturnData(ret), nil
}

// wrapReturnData classifies eth_call return bytes into value form: a single
// word is static; a blob behind the canonical 0x20 offset is dynamic with
// the offset stripped; anything else is kept dynamic as-is.
func wrapReturnData(ret []byte) models.AbiEncodedValue {
	if len(ret) == 32 {
		return models.AbiEncodedValue{Kind: models.ValueStatic, Encoding: ret}
	}

	if len(ret) > 32 {
		offset := new(big.Int).SetBytes(ret[:32])
		if offset.Cmp(big.NewInt(32)) == 0 {
			return models.AbiEncodedValue{Kind: models.ValueDynamic, Encoding: ret[32:]}
		}
	}

	return models.AbiEncodedValue{Kind: models.ValueDynamic, Encoding: ret}
}
