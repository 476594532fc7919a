package codec

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/models"
)

// Every plan entity travels as an ABI function call whose function name is
// the entity's kind tag. This ABI is the single source of truth for the
// wire formats; selectors dispatch through MethodById.
const entityABIJSON = `[
	{"type":"function","name":"Call","inputs":[
		{"name":"target","type":"bytes"},
		{"name":"selector","type":"bytes4"},
		{"name":"arguments","type":"bytes[]"},
		{"name":"attributes","type":"bytes[]"},
		{"name":"payments","type":"bytes[]"}]},
	{"type":"function","name":"SpendsERC20","inputs":[
		{"name":"token","type":"bytes"},
		{"name":"amountFormula","type":"bytes"},
		{"name":"spender","type":"bytes"},
		{"name":"receiver","type":"bytes"}]},
	{"type":"function","name":"SpendsEstimatedGas","inputs":[
		{"name":"amountFormula","type":"bytes"}]},
	{"type":"function","name":"RevertPolicy","inputs":[
		{"name":"policy","type":"uint8"},
		{"name":"expectedReason","type":"bytes"}]},
	{"type":"function","name":"RequiredBefore","inputs":[
		{"name":"deadline","type":"uint256"}]},
	{"type":"function","name":"RequiredFillerUntil","inputs":[
		{"name":"exclusiveFiller","type":"address"},
		{"name":"deadline","type":"uint256"}]},
	{"type":"function","name":"RequiredCallResult","inputs":[
		{"name":"target","type":"bytes"},
		{"name":"selector","type":"bytes4"},
		{"name":"arguments","type":"bytes[]"},
		{"name":"result","type":"bytes"}]},
	{"type":"function","name":"WithTimestamp","inputs":[{"name":"variable","type":"uint256"}]},
	{"type":"function","name":"WithBlockNumber","inputs":[{"name":"variable","type":"uint256"}]},
	{"type":"function","name":"WithEffectiveGasPrice","inputs":[{"name":"variable","type":"uint256"}]},
	{"type":"function","name":"Constant","inputs":[{"name":"value","type":"uint256"}]},
	{"type":"function","name":"Variable","inputs":[{"name":"index","type":"uint256"}]},
	{"type":"function","name":"ERC20","inputs":[
		{"name":"token","type":"bytes"},
		{"name":"sender","type":"bytes"},
		{"name":"amountFormula","type":"bytes"},
		{"name":"recipientVar","type":"uint256"},
		{"name":"estimatedDelaySeconds","type":"uint256"}]},
	{"type":"function","name":"PaymentRecipient","inputs":[{"name":"chainId","type":"uint256"}]},
	{"type":"function","name":"PaymentChain","inputs":[]},
	{"type":"function","name":"Pricing","inputs":[]},
	{"type":"function","name":"TxOutput","inputs":[]},
	{"type":"function","name":"Witness","inputs":[
		{"name":"kind","type":"string"},
		{"name":"data","type":"bytes"},
		{"name":"variables","type":"uint256[]"}]},
	{"type":"function","name":"Query","inputs":[
		{"name":"target","type":"bytes"},
		{"name":"selector","type":"bytes4"},
		{"name":"arguments","type":"bytes[]"},
		{"name":"blockNumber","type":"uint256"}]}
]`

var entityABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(entityABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// dispatch locates the entity method for a blob and unpacks its arguments.
func dispatch(blob []byte) (*abi.Method, []interface{}, error) {
	if len(blob) < 4 {
		return nil, nil, errors.Wrapf(ErrUnknownEntity, "blob of %d bytes", len(blob))
	}

	method, err := entityABI.MethodById(blob[:4])
	if err != nil {
		return nil, nil, errors.Wrapf(ErrUnknownEntity, "selector 0x%x", blob[:4])
	}

	values, err := method.Inputs.Unpack(blob[4:])
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to unpack %s", method.Name)
	}

	return method, values, nil
}

// DecodeStep decodes a step blob. Call is the only step variant.
func DecodeStep(blob []byte) (models.Step, error) {
	method, values, err := dispatch(blob)
	if err != nil {
		return models.Step{}, err
	}
	if method.Name != "Call" {
		return models.Step{}, errors.Wrapf(ErrUnknownEntity, "step kind %s", method.Name)
	}

	target, err := DecodeAccount(values[0].([]byte))
	if err != nil {
		return models.Step{}, errors.Wrap(err, "step target")
	}

	arguments, err := decodeArguments(values[2].([][]byte))
	if err != nil {
		return models.Step{}, errors.Wrap(err, "step arguments")
	}

	attributes, err := decodeAttributes(values[3].([][]byte))
	if err != nil {
		return models.Step{}, err
	}

	payments, err := decodePayments(values[4].([][]byte))
	if err != nil {
		return models.Step{}, errors.Wrap(err, "step payments")
	}

	return models.Step{
		Target:     target,
		Selector:   values[1].([4]byte),
		Arguments:  arguments,
		Attributes: attributes,
		Payments:   payments,
	}, nil
}

// DecodeFormula decodes a formula blob (Constant or Variable).
func DecodeFormula(blob []byte) (models.Formula, error) {
	method, values, err := dispatch(blob)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "Constant":
		return models.ConstantFormula{Value: values[0].(*big.Int)}, nil
	case "Variable":
		idx, err := toIndex(values[0].(*big.Int))
		if err != nil {
			return nil, errors.Wrap(err, "formula variable")
		}
		return models.VariableFormula{Index: idx}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownEntity, "formula kind %s", method.Name)
	}
}

// DecodePayment decodes a payment blob. ERC20 is the only variant.
func DecodePayment(blob []byte) (models.Payment, error) {
	method, values, err := dispatch(blob)
	if err != nil {
		return nil, err
	}
	if method.Name != "ERC20" {
		return nil, errors.Wrapf(ErrUnknownEntity, "payment kind %s", method.Name)
	}

	token, err := DecodeAccount(values[0].([]byte))
	if err != nil {
		return nil, errors.Wrap(err, "payment token")
	}
	sender, err := DecodeAccount(values[1].([]byte))
	if err != nil {
		return nil, errors.Wrap(err, "payment sender")
	}
	amount, err := DecodeFormula(values[2].([]byte))
	if err != nil {
		return nil, errors.Wrap(err, "payment amount")
	}
	recipientVar, err := toIndex(values[3].(*big.Int))
	if err != nil {
		return nil, errors.Wrap(err, "payment recipient variable")
	}
	delay, err := toIndex(values[4].(*big.Int))
	if err != nil {
		return nil, errors.Wrap(err, "payment delay")
	}

	return models.ERC20Payment{
		Token:                 token,
		Sender:                sender,
		AmountFormula:         amount,
		RecipientVar:          recipientVar,
		EstimatedDelaySeconds: uint64(delay),
	}, nil
}

// DecodeVariableRole decodes a variable-role blob.
func DecodeVariableRole(blob []byte) (models.VariableRole, error) {
	method, values, err := dispatch(blob)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "PaymentRecipient":
		chainID, err := toIndex(values[0].(*big.Int))
		if err != nil {
			return nil, errors.Wrap(err, "payment recipient chain")
		}
		return models.PaymentRecipientRole{ChainID: uint64(chainID)}, nil

	case "PaymentChain":
		return models.PaymentChainRole{}, nil

	case "Pricing":
		return models.PricingRole{}, nil

	case "TxOutput":
		return models.TxOutputRole{}, nil

	case "Witness":
		rawIndices := values[2].([]*big.Int)
		indices := make([]int, 0, len(rawIndices))
		for _, raw := range rawIndices {
			idx, err := toIndex(raw)
			if err != nil {
				return nil, errors.Wrap(err, "witness sub-variable")
			}
			indices = append(indices, idx)
		}
		return models.WitnessRole{
			Kind:      values[0].(string),
			Data:      values[1].([]byte),
			Variables: indices,
		}, nil

	case "Query":
		target, err := DecodeAccount(values[0].([]byte))
		if err != nil {
			return nil, errors.Wrap(err, "query target")
		}
		arguments, err := decodeArguments(values[2].([][]byte))
		if err != nil {
			return nil, errors.Wrap(err, "query arguments")
		}
		blockNumber, err := toIndex(values[3].(*big.Int))
		if err != nil {
			return nil, errors.Wrap(err, "query block number")
		}
		return models.QueryRole{
			Target:      target,
			Selector:    values[1].([4]byte),
			Arguments:   arguments,
			BlockNumber: uint64(blockNumber),
		}, nil

	default:
		return nil, errors.Wrapf(ErrUnknownEntity, "variable role %s", method.Name)
	}
}

func decodeArguments(blobs [][]byte) ([]models.Argument, error) {
	arguments := make([]models.Argument, 0, len(blobs))
	for i, blob := range blobs {
		arg, err := DecodeArgument(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		arguments = append(arguments, arg)
	}
	return arguments, nil
}

func decodePayments(blobs [][]byte) ([]models.Payment, error) {
	payments := make([]models.Payment, 0, len(blobs))
	for i, blob := range blobs {
		payment, err := DecodePayment(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "payment %d", i)
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

// decodeAttributes folds attribute blobs into the sparse attribute record.
// List attributes accumulate; a repeated singleton is a codec error.
func decodeAttributes(blobs [][]byte) (models.Attributes, error) {
	var attrs models.Attributes

	singleton := func(name string, present bool) error {
		if present {
			return errors.Wrap(ErrDuplicateAttribute, name)
		}
		return nil
	}

	for _, blob := range blobs {
		method, values, err := dispatch(blob)
		if err != nil {
			return models.Attributes{}, err
		}

		switch method.Name {
		case "SpendsERC20":
			token, err := DecodeAccount(values[0].([]byte))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, "SpendsERC20 token")
			}
			amount, err := DecodeFormula(values[1].([]byte))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, "SpendsERC20 amount")
			}
			spender, err := DecodeAccount(values[2].([]byte))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, "SpendsERC20 spender")
			}
			receiver, err := DecodeAccount(values[3].([]byte))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, "SpendsERC20 receiver")
			}
			attrs.SpendsERC20 = append(attrs.SpendsERC20, models.SpendsERC20{
				Token:         token,
				AmountFormula: amount,
				Spender:       spender,
				Receiver:      receiver,
			})

		case "SpendsEstimatedGas":
			if err := singleton(method.Name, attrs.SpendsEstimatedGas != nil); err != nil {
				return models.Attributes{}, err
			}
			amount, err := DecodeFormula(values[0].([]byte))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, "SpendsEstimatedGas amount")
			}
			attrs.SpendsEstimatedGas = &models.SpendsEstimatedGas{AmountFormula: amount}

		case "RevertPolicy":
			policy := values[0].(uint8)
			if policy > uint8(models.RevertRetry) {
				return models.Attributes{}, errors.Wrapf(ErrUnknownEntity, "revert policy %d", policy)
			}
			attrs.RevertPolicies = append(attrs.RevertPolicies, models.RevertPolicyEntry{
				Policy:         models.RevertPolicyKind(policy),
				ExpectedReason: values[1].([]byte),
			})

		case "RequiredBefore":
			if err := singleton(method.Name, attrs.RequiredBefore != nil); err != nil {
				return models.Attributes{}, err
			}
			deadline, err := toIndex(values[0].(*big.Int))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, "RequiredBefore deadline")
			}
			attrs.RequiredBefore = &models.RequiredBefore{Deadline: uint64(deadline)}

		case "RequiredFillerUntil":
			if err := singleton(method.Name, attrs.RequiredFillerUntil != nil); err != nil {
				return models.Attributes{}, err
			}
			deadline, err := toIndex(values[1].(*big.Int))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, "RequiredFillerUntil deadline")
			}
			attrs.RequiredFillerUntil = &models.RequiredFillerUntil{
				ExclusiveFiller: values[0].(common.Address),
				Deadline:        uint64(deadline),
			}

		case "RequiredCallResult":
			if err := singleton(method.Name, attrs.RequiredCallResult != nil); err != nil {
				return models.Attributes{}, err
			}
			target, err := DecodeAccount(values[0].([]byte))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, "RequiredCallResult target")
			}
			arguments, err := decodeArguments(values[2].([][]byte))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, "RequiredCallResult arguments")
			}
			attrs.RequiredCallResult = &models.RequiredCallResult{
				Target:    target,
				Selector:  values[1].([4]byte),
				Arguments: arguments,
				Result:    values[3].([]byte),
			}

		case "WithTimestamp", "WithBlockNumber", "WithEffectiveGasPrice":
			idx, err := toIndex(values[0].(*big.Int))
			if err != nil {
				return models.Attributes{}, errors.Wrap(err, method.Name)
			}
			var slot **int
			switch method.Name {
			case "WithTimestamp":
				slot = &attrs.WithTimestamp
			case "WithBlockNumber":
				slot = &attrs.WithBlockNumber
			default:
				slot = &attrs.WithEffectiveGasPrice
			}
			if err := singleton(method.Name, *slot != nil); err != nil {
				return models.Attributes{}, err
			}
			*slot = &idx

		default:
			return models.Attributes{}, errors.Wrapf(ErrUnknownEntity, "attribute %s", method.Name)
		}
	}

	return attrs, nil
}
