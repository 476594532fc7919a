package codec

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/models"
)

// Entity encoders, the inverses of the decoders in entities.go. The solver
// never emits plans on-chain; these exist for round-trip verification and
// for resolver tooling that builds orders out of the same module.

// EncodeStep serializes a step as a Call entity blob.
func EncodeStep(step models.Step) ([]byte, error) {
	arguments, err := encodeArguments(step.Arguments)
	if err != nil {
		return nil, err
	}

	attributes, err := EncodeAttributes(step.Attributes)
	if err != nil {
		return nil, err
	}

	payments, err := encodePayments(step.Payments)
	if err != nil {
		return nil, err
	}

	return entityABI.Pack("Call",
		EncodeAccount(step.Target),
		step.Selector,
		arguments,
		attributes,
		payments,
	)
}

// EncodeFormula serializes a formula blob.
func EncodeFormula(formula models.Formula) ([]byte, error) {
	switch f := formula.(type) {
	case models.ConstantFormula:
		return entityABI.Pack("Constant", f.Value)
	case models.VariableFormula:
		return entityABI.Pack("Variable", big.NewInt(int64(f.Index)))
	default:
		return nil, errors.Errorf("unknown formula type %T", formula)
	}
}

// EncodePayment serializes a payment blob.
func EncodePayment(payment models.Payment) ([]byte, error) {
	erc20, ok := payment.(models.ERC20Payment)
	if !ok {
		return nil, errors.Errorf("unknown payment type %T", payment)
	}

	amount, err := EncodeFormula(erc20.AmountFormula)
	if err != nil {
		return nil, err
	}

	return entityABI.Pack("ERC20",
		EncodeAccount(erc20.Token),
		EncodeAccount(erc20.Sender),
		amount,
		big.NewInt(int64(erc20.RecipientVar)),
		new(big.Int).SetUint64(erc20.EstimatedDelaySeconds),
	)
}

// EncodeVariableRole serializes a variable-role blob.
func EncodeVariableRole(role models.VariableRole) ([]byte, error) {
	switch r := role.(type) {
	case models.PaymentRecipientRole:
		return entityABI.Pack("PaymentRecipient", new(big.Int).SetUint64(r.ChainID))
	case models.PaymentChainRole:
		return entityABI.Pack("PaymentChain")
	case models.PricingRole:
		return entityABI.Pack("Pricing")
	case models.TxOutputRole:
		return entityABI.Pack("TxOutput")
	case models.WitnessRole:
		indices := make([]*big.Int, 0, len(r.Variables))
		for _, idx := range r.Variables {
			indices = append(indices, big.NewInt(int64(idx)))
		}
		return entityABI.Pack("Witness", r.Kind, r.Data, indices)
	case models.QueryRole:
		arguments, err := encodeArguments(r.Arguments)
		if err != nil {
			return nil, err
		}
		return entityABI.Pack("Query",
			EncodeAccount(r.Target),
			r.Selector,
			arguments,
			new(big.Int).SetUint64(r.BlockNumber),
		)
	default:
		return nil, errors.Errorf("unknown variable role %T", role)
	}
}

// EncodeAttributes serializes the sparse attribute record into blobs in the
// field order of models.Attributes, list and singleton attributes interleaved.
func EncodeAttributes(attrs models.Attributes) ([][]byte, error) {
	var blobs [][]byte

	add := func(blob []byte, err error) error {
		if err != nil {
			return err
		}
		blobs = append(blobs, blob)
		return nil
	}

	for _, spend := range attrs.SpendsERC20 {
		amount, err := EncodeFormula(spend.AmountFormula)
		if err != nil {
			return nil, err
		}
		err = add(entityABI.Pack("SpendsERC20",
			EncodeAccount(spend.Token),
			amount,
			EncodeAccount(spend.Spender),
			EncodeAccount(spend.Receiver),
		))
		if err != nil {
			return nil, err
		}
	}

	if attrs.SpendsEstimatedGas != nil {
		amount, err := EncodeFormula(attrs.SpendsEstimatedGas.AmountFormula)
		if err != nil {
			return nil, err
		}
		if err := add(entityABI.Pack("SpendsEstimatedGas", amount)); err != nil {
			return nil, err
		}
	}

	for _, policy := range attrs.RevertPolicies {
		err := add(entityABI.Pack("RevertPolicy", uint8(policy.Policy), policy.ExpectedReason))
		if err != nil {
			return nil, err
		}
	}

	if attrs.RequiredBefore != nil {
		err := add(entityABI.Pack("RequiredBefore", new(big.Int).SetUint64(attrs.RequiredBefore.Deadline)))
		if err != nil {
			return nil, err
		}
	}

	if attrs.RequiredFillerUntil != nil {
		err := add(entityABI.Pack("RequiredFillerUntil",
			attrs.RequiredFillerUntil.ExclusiveFiller,
			new(big.Int).SetUint64(attrs.RequiredFillerUntil.Deadline),
		))
		if err != nil {
			return nil, err
		}
	}

	if attrs.RequiredCallResult != nil {
		arguments, err := encodeArguments(attrs.RequiredCallResult.Arguments)
		if err != nil {
			return nil, err
		}
		err = add(entityABI.Pack("RequiredCallResult",
			EncodeAccount(attrs.RequiredCallResult.Target),
			attrs.RequiredCallResult.Selector,
			arguments,
			attrs.RequiredCallResult.Result,
		))
		if err != nil {
			return nil, err
		}
	}

	receipts := []struct {
		name string
		idx  *int
	}{
		{"WithTimestamp", attrs.WithTimestamp},
		{"WithBlockNumber", attrs.WithBlockNumber},
		{"WithEffectiveGasPrice", attrs.WithEffectiveGasPrice},
	}
	for _, attr := range receipts {
		if attr.idx == nil {
			continue
		}
		if err := add(entityABI.Pack(attr.name, big.NewInt(int64(*attr.idx)))); err != nil {
			return nil, err
		}
	}

	return blobs, nil
}

func encodeArguments(args []models.Argument) ([][]byte, error) {
	blobs := make([][]byte, 0, len(args))
	for _, arg := range args {
		blob, err := EncodeArgument(arg)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

func encodePayments(payments []models.Payment) ([][]byte, error) {
	blobs := make([][]byte, 0, len(payments))
	for _, payment := range payments {
		blob, err := EncodePayment(payment)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}
