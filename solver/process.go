package solver

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/models"
)

// MaxFillTimeSeconds is the slack a plan's earliest deadline must leave:
// plans that cannot be filled comfortably before their deadline are
// rejected up front rather than raced.
const MaxFillTimeSeconds = 600

// Outcome is the result of processing a plan that made it past the quote
// gate. Filled mirrors Fill: true for end-to-end completion, false for a
// clean drop. PnlUsd is the quoted profit the fill committed to.
type Outcome struct {
	Filled bool
	PnlUsd *big.Int
}

// Process runs a plan end to end: preflight validation, quote, fill.
func Process(ctx context.Context, sctx Context, plan *models.Plan, logger zerolog.Logger) (*Outcome, error) {
	logger = logger.With().Str(logging.FieldModule, "solver").Logger()

	if err := Preflight(sctx, plan); err != nil {
		return nil, err
	}

	quote, err := QuotePlan(ctx, sctx, plan, logger)
	if err != nil {
		return nil, errors.Wrap(err, "quote rejected")
	}

	filled, err := Fill(ctx, sctx, plan, quote.Env, logger)
	if err != nil {
		return nil, err
	}

	return &Outcome{Filled: filled, PnlUsd: quote.PnlUsd}, nil
}

// Preflight checks the plan properties that must hold before any capital
// is committed.
func Preflight(sctx Context, plan *models.Plan) error {
	if err := checkRevertPolicyOrder(plan); err != nil {
		return err
	}

	if err := checkDeadlineSlack(plan, time.Now()); err != nil {
		return err
	}

	for i, assumption := range plan.Assumptions {
		if !sctx.IsWhitelisted(assumption.Trusted, assumption.Kind) {
			return errors.Wrapf(ErrUntrustedAssumption, "assumption %d: %s (%s)",
				i, assumption.Trusted, assumption.Kind)
		}
	}

	for i, role := range plan.Variables {
		witness, ok := role.(models.WitnessRole)
		if !ok {
			continue
		}
		if _, ok := sctx.WitnessResolver(witness.Kind); !ok {
			return errors.Wrapf(ErrUnsupportedWitness, "variable %d kind %q", i, witness.Kind)
		}
	}

	return nil
}

// checkRevertPolicyOrder enforces that no droppable step follows a
// token-spending step: once the plan has spent, dropping is no longer a
// clean exit.
func checkRevertPolicyOrder(plan *models.Plan) error {
	lastDrop := plan.LastDropIndex()
	firstSpend := plan.FirstSpendIndex()

	if lastDrop >= 0 && firstSpend >= 0 && lastDrop > firstSpend {
		return errors.Wrapf(ErrRevertPolicyOrder, "drop at step %d, spend at step %d", lastDrop, firstSpend)
	}

	return nil
}

func checkDeadlineSlack(plan *models.Plan, now time.Time) error {
	var earliest uint64

	for _, step := range plan.Steps {
		if rb := step.Attributes.RequiredBefore; rb != nil {
			if earliest == 0 || rb.Deadline < earliest {
				earliest = rb.Deadline
			}
		}
	}

	if earliest == 0 {
		return nil
	}

	if uint64(now.Unix())+MaxFillTimeSeconds >= earliest {
		return errors.Wrapf(ErrDeadlineTooClose, "deadline %d, now %d", earliest, now.Unix())
	}

	return nil
}
