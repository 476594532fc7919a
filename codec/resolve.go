package codec

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/models"
)

// ContractCaller is the read surface Resolve needs: a single eth_call.
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error)
}

const resolverABIJSON = `[
	{"type":"function","name":"resolve","stateMutability":"view",
	 "inputs":[{"name":"payload","type":"bytes"}],
	 "outputs":[{"name":"order","type":"tuple","components":[
		{"name":"steps","type":"bytes[]"},
		{"name":"variables","type":"bytes[]"},
		{"name":"assumptions","type":"tuple[]","components":[
			{"name":"trusted","type":"bytes"},
			{"name":"kind","type":"string"}]},
		{"name":"payments","type":"bytes[]"}]}]}
]`

var resolverABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(resolverABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// ResolvedOrder mirrors the resolver's return tuple.
type ResolvedOrder struct {
	Steps       [][]byte
	Variables   [][]byte
	Assumptions []struct {
		Trusted []byte
		Kind    string
	}
	Payments [][]byte
}

// Resolve invokes the resolver contract's resolve(bytes) view function with
// the opaque order payload and decodes the returned entity blobs into a
// validated plan.
func Resolve(ctx context.Context, caller ContractCaller, resolver common.Address, payload []byte) (*models.Plan, error) {
	data, err := resolverABI.Pack("resolve", payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode resolve call")
	}

	ret, err := caller.CallContract(ctx, resolver, data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "resolver call failed")
	}

	values, err := resolverABI.Unpack("resolve", ret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode resolver output")
	}
	order := *abi.ConvertType(values[0], new(ResolvedOrder)).(*ResolvedOrder)

	return DecodePlan(order)
}

// DecodePlan decodes the four entity-blob lists of a resolved order and
// validates the result.
func DecodePlan(order ResolvedOrder) (*models.Plan, error) {
	plan := &models.Plan{
		Steps:       make([]models.Step, 0, len(order.Steps)),
		Variables:   make([]models.VariableRole, 0, len(order.Variables)),
		Assumptions: make([]models.Assumption, 0, len(order.Assumptions)),
	}

	for i, blob := range order.Steps {
		step, err := DecodeStep(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		plan.Steps = append(plan.Steps, step)
	}

	for i, blob := range order.Variables {
		role, err := DecodeVariableRole(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "variable %d", i)
		}
		plan.Variables = append(plan.Variables, role)
	}

	for i, raw := range order.Assumptions {
		trusted, err := DecodeAccount(raw.Trusted)
		if err != nil {
			return nil, errors.Wrapf(err, "assumption %d", i)
		}
		plan.Assumptions = append(plan.Assumptions, models.Assumption{
			Trusted: trusted,
			Kind:    raw.Kind,
		})
	}

	payments, err := decodePayments(order.Payments)
	if err != nil {
		return nil, errors.Wrap(err, "plan payments")
	}
	plan.Payments = payments

	if err := plan.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid plan")
	}

	return plan, nil
}
