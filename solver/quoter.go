package solver

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/codec"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/models"
)

// FlowKind distinguishes gas from token flows.
type FlowKind uint8

const (
	FlowToken FlowKind = iota
	FlowGas
)

// Flow is a signed, chain-qualified amount entering the PnL computation.
// A gas flow with a nil Formula is priced by simulating its step.
type Flow struct {
	Kind      FlowKind
	ChainID   uint64
	Token     common.Address
	Sign      int
	Formula   models.Formula
	StepIndex int
	Amount    *big.Int
}

// Quote is the result of quoting a plan: the populated environment (reused
// by the fill) and the evaluated flows.
type Quote struct {
	Env    *Env
	Flows  []Flow
	PnlUsd *big.Int
}

// QuotePlan collects the plan's asset flows, evaluates their amounts, and
// gates on non-negative USD profit.
func QuotePlan(ctx context.Context, sctx Context, plan *models.Plan, logger zerolog.Logger) (*Quote, error) {
	logger = logger.With().Str(logging.FieldModule, "quoter").Logger()

	if pricing := plan.PricingVariables(); len(pricing) > 0 {
		return nil, errors.Wrapf(ErrPricingUnsupported, "variables %v", pricing)
	}

	env := NewEnv(sctx, plan, logger)

	flows, err := collectFlows(plan)
	if err != nil {
		return nil, err
	}

	if err := evaluateFlows(ctx, sctx, env, plan, flows); err != nil {
		return nil, err
	}

	pnl, err := priceFlows(ctx, sctx, flows)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("flows", len(flows)).
		Str("pnl_usd", pnl.String()).
		Msg("Quoted plan")

	if pnl.Sign() < 0 {
		return nil, errors.Wrapf(ErrNegativePnl, "%s", pnl)
	}

	return &Quote{Env: env, Flows: flows, PnlUsd: pnl}, nil
}

// collectFlows walks the plan: one gas outflow per step, one token outflow
// per declared spend, one token inflow per payment.
func collectFlows(plan *models.Plan) ([]Flow, error) {
	var flows []Flow

	paymentFlow := func(payment models.Payment, stepIndex int) error {
		erc20, ok := payment.(models.ERC20Payment)
		if !ok {
			return errors.Errorf("unknown payment type %T", payment)
		}
		if erc20.EstimatedDelaySeconds != 0 {
			return errors.Wrapf(ErrDelayedPayment, "%d seconds", erc20.EstimatedDelaySeconds)
		}

		flows = append(flows, Flow{
			Kind:      FlowToken,
			ChainID:   erc20.Token.ChainID,
			Token:     erc20.Token.Address,
			Sign:      1,
			Formula:   erc20.AmountFormula,
			StepIndex: stepIndex,
		})
		return nil
	}

	for i, step := range plan.Steps {
		gas := Flow{
			Kind:      FlowGas,
			ChainID:   step.Target.ChainID,
			Sign:      -1,
			StepIndex: i,
		}
		if step.Attributes.SpendsEstimatedGas != nil {
			gas.Formula = step.Attributes.SpendsEstimatedGas.AmountFormula
		}
		flows = append(flows, gas)

		for _, spend := range step.Attributes.SpendsERC20 {
			flows = append(flows, Flow{
				Kind:      FlowToken,
				ChainID:   spend.Token.ChainID,
				Token:     spend.Token.Address,
				Sign:      -1,
				Formula:   spend.AmountFormula,
				StepIndex: i,
			})
		}

		for _, payment := range step.Payments {
			if err := paymentFlow(payment, i); err != nil {
				return nil, errors.Wrapf(err, "step %d", i)
			}
		}
	}

	for _, payment := range plan.Payments {
		if err := paymentFlow(payment, -1); err != nil {
			return nil, err
		}
	}

	return flows, nil
}

func evaluateFlows(ctx context.Context, sctx Context, env *Env, plan *models.Plan, flows []Flow) error {
	for i := range flows {
		flow := &flows[i]

		if flow.Formula != nil {
			amount, err := EvalFormula(ctx, env, flow.Formula)
			if err != nil {
				return errors.Wrapf(err, "flow %d", i)
			}
			flow.Amount = amount
			continue
		}

		// Gas flow without an explicit estimate: simulate the step.
		sim, err := simulateStep(ctx, sctx, env, plan.Steps[flow.StepIndex], nil)
		if err != nil {
			return errors.Wrapf(err, "flow %d (step %d)", i, flow.StepIndex)
		}
		if !sim.Success {
			return errors.Wrapf(ErrSimulationFailed, "step %d reverted with 0x%x", flow.StepIndex, sim.RevertData)
		}

		flow.Amount = new(big.Int).SetUint64(sim.GasUsed)
	}

	return nil
}

func priceFlows(ctx context.Context, sctx Context, flows []Flow) (*big.Int, error) {
	pnl := new(big.Int)

	for i, flow := range flows {
		var (
			price *big.Int
			err   error
		)

		if flow.Kind == FlowGas {
			price, err = sctx.GasPriceUsd(ctx, flow.ChainID)
		} else {
			price, err = sctx.TokenPriceUsd(ctx, models.Account{Address: flow.Token, ChainID: flow.ChainID})
		}
		if err != nil {
			return nil, errors.Wrapf(err, "flow %d", i)
		}

		term := new(big.Int).Mul(flow.Amount, price)
		if flow.Sign < 0 {
			term.Neg(term)
		}
		pnl.Add(pnl, term)
	}

	return pnl, nil
}

// EvalFormula evaluates a formula to a uint256. A variable formula requires
// the resolved value to be a static single word.
func EvalFormula(ctx context.Context, env *Env, formula models.Formula) (*big.Int, error) {
	switch f := formula.(type) {
	case models.ConstantFormula:
		return new(big.Int).Set(f.Value), nil

	case models.VariableFormula:
		value, err := env.Get(ctx, f.Index)
		if err != nil {
			return nil, err
		}
		amount, ok := value.Uint256()
		if !ok {
			return nil, errors.Wrapf(ErrDynamicFormulaValue, "variable %d is %s of %d bytes",
				f.Index, value.Kind, len(value.Encoding))
		}
		return amount, nil

	default:
		return nil, errors.Errorf("unknown formula type %T", formula)
	}
}

// simulateStep builds the step's calldata and simulates it as the filler.
// A non-nil blockNumber pins the simulation to a historical block.
func simulateStep(ctx context.Context, sctx Context, env *Env, step models.Step, blockNumber *big.Int) (*SimulationResult, error) {
	values, err := env.ResolveArguments(ctx, step.Arguments)
	if err != nil {
		return nil, err
	}

	data, err := codec.BuildCallData(step.Selector[:], values)
	if err != nil {
		return nil, err
	}

	client, err := sctx.PublicClient(step.Target.ChainID)
	if err != nil {
		return nil, err
	}

	return client.SimulateCall(ctx, sctx.FillerAddress(), step.Target.Address, data, blockNumber)
}
