package solver

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/codec"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/models"
)

// StepState tracks a step through the fill state machine.
type StepState uint8

const (
	StepPending StepState = iota
	StepSleeping
	StepSimulated
	StepSent
	StepAwaitingReceipt
	StepCompleted
	StepReverted
	StepDropped
	StepIgnored
)

func (s StepState) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepSleeping:
		return "sleeping"
	case StepSimulated:
		return "simulated"
	case StepSent:
		return "sent"
	case StepAwaitingReceipt:
		return "awaiting_receipt"
	case StepCompleted:
		return "completed"
	case StepReverted:
		return "reverted"
	case StepDropped:
		return "dropped"
	case StepIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// stepOutcome is a step's terminal disposition.
type stepOutcome uint8

const (
	outcomeCompleted stepOutcome = iota
	outcomeIgnored
	outcomeDropped
)

// Fill executes the plan's steps in declared order. It returns true on
// end-to-end completion and false when a drop policy terminated the plan
// cleanly. Any other failure is an error.
func Fill(ctx context.Context, sctx Context, plan *models.Plan, env *Env, logger zerolog.Logger) (bool, error) {
	logger = logger.With().Str(logging.FieldModule, "filler").Logger()

	for i := range plan.Steps {
		outcome, err := fillStep(ctx, sctx, plan, env, i, logger)
		if err != nil {
			return false, errors.Wrapf(err, "step %d", i)
		}
		if outcome == outcomeDropped {
			logger.Info().Int(logging.FieldStep, i).Msg("Plan dropped by revert policy")
			return false, nil
		}
	}

	return true, nil
}

func fillStep(ctx context.Context, sctx Context, plan *models.Plan, env *Env, idx int, logger zerolog.Logger) (stepOutcome, error) {
	step := plan.Steps[idx]
	state := StepPending

	logger = logger.With().
		Int(logging.FieldStep, idx).
		Uint64(logging.FieldChain, step.Target.ChainID).
		Logger()

	transition := func(next StepState) {
		logger.Debug().Str("from", state.String()).Str("to", next.String()).Msg("Step transition")
		state = next
	}

	if err := resolveWitnesses(ctx, sctx, plan, env, step); err != nil {
		return 0, err
	}

	if scheduledAt := scheduledTimestamp(sctx, env, step); scheduledAt > 0 {
		transition(StepSleeping)
		if err := sleepUntil(ctx, scheduledAt, logger); err != nil {
			return 0, err
		}
	}

	values, err := env.ResolveArguments(ctx, step.Arguments)
	if err != nil {
		return 0, err
	}
	data, err := codec.BuildCallData(step.Selector[:], values)
	if err != nil {
		return 0, err
	}

	public, err := sctx.PublicClient(step.Target.ChainID)
	if err != nil {
		return 0, err
	}

	sim, err := public.SimulateCall(ctx, sctx.FillerAddress(), step.Target.Address, data, nil)
	if err != nil {
		return 0, err
	}
	transition(StepSimulated)

	var revertData []byte

	if sim.Success {
		wallet, err := sctx.WalletClient(step.Target.ChainID)
		if err != nil {
			return 0, err
		}

		hash, err := wallet.SendTransaction(ctx, step.Target.Address, data)
		if err != nil {
			return 0, err
		}
		transition(StepSent)
		logger.Info().Str("tx_hash", hash.Hex()).Msg("Sent step transaction")

		transition(StepAwaitingReceipt)
		receipt, err := public.WaitForReceipt(ctx, hash)
		if err != nil {
			return 0, err
		}

		if receipt.Status == types.ReceiptStatusSuccessful {
			if err := extractOutputs(ctx, public, env, step, receipt); err != nil {
				return 0, err
			}
			transition(StepCompleted)
			return outcomeCompleted, nil
		}

		transition(StepReverted)

		// The receipt carries no revert data; re-simulate at the revert
		// block to recover it.
		resim, err := public.SimulateCall(ctx, sctx.FillerAddress(), step.Target.Address, data, receipt.BlockNumber)
		if err != nil {
			return 0, err
		}
		if resim.Success || len(resim.RevertData) == 0 {
			return 0, errors.Errorf("transaction %s reverted but re-simulation yielded no revert data", hash.Hex())
		}
		revertData = resim.RevertData
	} else {
		transition(StepReverted)
		revertData = sim.RevertData
	}

	entry, matched := matchRevertPolicy(step.Attributes.RevertPolicies, revertData)
	if !matched {
		return 0, errors.Wrapf(ErrUnmatchedRevert, "revert data 0x%x", revertData)
	}

	switch entry.Policy {
	case models.RevertDrop:
		transition(StepDropped)
		return outcomeDropped, nil
	case models.RevertIgnore:
		transition(StepIgnored)
		logger.Info().Hex("revert_data", revertData).Msg("Step revert ignored by policy")
		return outcomeIgnored, nil
	default:
		return 0, errors.Wrapf(ErrUnmatchedRevert, "retry policy matched for 0x%x", revertData)
	}
}

// resolveWitnesses resolves every witness variable directly referenced by
// the step's arguments through its kind plugin and stores the result.
// Witnesses referenced only transitively are intentionally left alone.
func resolveWitnesses(ctx context.Context, sctx Context, plan *models.Plan, env *Env, step models.Step) error {
	seen := make(map[int]bool)

	for _, idx := range models.ArgumentVariables(step.Arguments) {
		if seen[idx] {
			continue
		}
		seen[idx] = true

		role, ok := plan.Variables[idx].(models.WitnessRole)
		if !ok {
			continue
		}

		resolver, ok := sctx.WitnessResolver(role.Kind)
		if !ok {
			return errors.Wrapf(ErrUnsupportedWitness, "kind %q for variable %d", role.Kind, idx)
		}

		values := make([]models.AbiEncodedValue, 0, len(role.Variables))
		for _, sub := range role.Variables {
			value, err := env.Get(ctx, sub)
			if err != nil {
				return errors.Wrapf(err, "witness %d sub-variable %d", idx, sub)
			}
			values = append(values, value)
		}

		result, err := resolver.Resolve(ctx, role.Data, values)
		if err != nil {
			return errors.Wrapf(err, "witness %d (%s)", idx, role.Kind)
		}

		if err := env.Set(idx, result); err != nil {
			return err
		}
	}

	return nil
}

// scheduledTimestamp computes the unix-seconds timestamp the step must wait
// for, or zero. A known WithTimestamp variable schedules the step at that
// time; a foreign exclusivity window pushes it past the deadline.
func scheduledTimestamp(sctx Context, env *Env, step models.Step) uint64 {
	var scheduledAt uint64

	if ts := step.Attributes.WithTimestamp; ts != nil {
		if value, ok := env.Peek(*ts); ok {
			if n, isWord := value.Uint256(); isWord && n.IsUint64() {
				scheduledAt = n.Uint64()
			}
		}
	}

	if until := step.Attributes.RequiredFillerUntil; until != nil {
		if sctx.FillerAddress() != until.ExclusiveFiller && until.Deadline > scheduledAt {
			scheduledAt = until.Deadline
		}
	}

	return scheduledAt
}

func sleepUntil(ctx context.Context, timestamp uint64, logger zerolog.Logger) error {
	wait := time.Until(time.Unix(int64(timestamp), 0))
	if wait <= 0 {
		return nil
	}

	logger.Info().Uint64("until", timestamp).Dur("wait", wait).Msg("Sleeping until scheduled timestamp")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// extractOutputs stores receipt-driven variables after a successful step.
func extractOutputs(ctx context.Context, public PublicClient, env *Env, step models.Step, receipt *types.Receipt) error {
	attrs := step.Attributes

	if attrs.WithBlockNumber != nil {
		if err := env.Set(*attrs.WithBlockNumber, models.StaticUint256(receipt.BlockNumber)); err != nil {
			return err
		}
	}

	if attrs.WithTimestamp != nil {
		header, err := public.HeaderByNumber(ctx, receipt.BlockNumber)
		if err != nil {
			return errors.Wrap(err, "failed to get block for timestamp")
		}
		if err := env.Set(*attrs.WithTimestamp, models.StaticUint256(new(big.Int).SetUint64(header.Time))); err != nil {
			return err
		}
	}

	if attrs.WithEffectiveGasPrice != nil {
		price := receipt.EffectiveGasPrice
		if price == nil {
			price = new(big.Int)
		}
		if err := env.Set(*attrs.WithEffectiveGasPrice, models.StaticUint256(price)); err != nil {
			return err
		}
	}

	return nil
}

// matchRevertPolicy returns the first entry whose expected reason is a
// case-insensitive hex prefix of the revert data.
func matchRevertPolicy(policies []models.RevertPolicyEntry, revertData []byte) (models.RevertPolicyEntry, bool) {
	data := strings.ToLower(hex.EncodeToString(revertData))

	for _, entry := range policies {
		reason := strings.ToLower(hex.EncodeToString(entry.ExpectedReason))
		if strings.HasPrefix(data, reason) {
			return entry, true
		}
	}

	return models.RevertPolicyEntry{}, false
}
