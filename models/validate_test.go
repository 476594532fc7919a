package models

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	target = Account{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ChainID: 1,
	}
	token = Account{
		Address: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		ChainID: 1,
	}
)

func TestPlanValidate(t *testing.T) {
	t.Run("ValidPlan", func(t *testing.T) {
		plan := &Plan{
			Steps: []Step{{
				Target:   target,
				Selector: [4]byte{1, 2, 3, 4},
				Arguments: []Argument{
					VariableArgument{Index: 0},
					VariableArgument{Index: 1},
				},
			}},
			Variables: []VariableRole{
				TxOutputRole{},
				QueryRole{
					Target:    target,
					Selector:  [4]byte{5, 6, 7, 8},
					Arguments: []Argument{VariableArgument{Index: 0}},
				},
			},
		}

		require.NoError(t, plan.Validate())
	})

	tests := []struct {
		name string
		plan *Plan
	}{
		{
			name: "StepArgumentOutOfBounds",
			plan: &Plan{
				Steps: []Step{{
					Target:    target,
					Arguments: []Argument{VariableArgument{Index: 3}},
				}},
				Variables: []VariableRole{TxOutputRole{}},
			},
		},
		{
			name: "FormulaOutOfBounds",
			plan: &Plan{
				Steps: []Step{{
					Target: target,
					Attributes: Attributes{
						SpendsERC20: []SpendsERC20{{
							Token:         token,
							AmountFormula: VariableFormula{Index: 9},
							Spender:       target,
							Receiver:      target,
						}},
					},
				}},
			},
		},
		{
			name: "ReceiptAttributeOutOfBounds",
			plan: &Plan{
				Steps: []Step{{
					Target:     target,
					Attributes: Attributes{WithBlockNumber: intPtr(2)},
				}},
				Variables: []VariableRole{TxOutputRole{}},
			},
		},
		{
			name: "QueryArgumentOutOfBounds",
			plan: &Plan{
				Variables: []VariableRole{
					QueryRole{
						Target:    target,
						Arguments: []Argument{VariableArgument{Index: 4}},
					},
				},
			},
		},
		{
			name: "WitnessSubVariableOutOfBounds",
			plan: &Plan{
				Variables: []VariableRole{
					WitnessRole{Kind: "sig", Variables: []int{5}},
				},
			},
		},
		{
			name: "PaymentRecipientOutOfBounds",
			plan: &Plan{
				Payments: []Payment{
					ERC20Payment{
						Token:         token,
						Sender:        target,
						AmountFormula: ConstantFormula{Value: big.NewInt(1)},
						RecipientVar:  0,
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), "out of bounds")
		})
	}
}

func TestPlanIndices(t *testing.T) {
	dropAttrs := Attributes{
		RevertPolicies: []RevertPolicyEntry{{Policy: RevertDrop}},
	}
	spendAttrs := Attributes{
		SpendsERC20: []SpendsERC20{{
			Token:         token,
			AmountFormula: ConstantFormula{Value: big.NewInt(1)},
			Spender:       target,
			Receiver:      target,
		}},
	}

	plan := &Plan{
		Steps: []Step{
			{Target: target, Attributes: dropAttrs},
			{Target: target, Attributes: spendAttrs},
			{Target: target, Attributes: dropAttrs},
		},
	}

	assert.Equal(t, 2, plan.LastDropIndex())
	assert.Equal(t, 1, plan.FirstSpendIndex())

	empty := &Plan{Steps: []Step{{Target: target}}}
	assert.Equal(t, -1, empty.LastDropIndex())
	assert.Equal(t, -1, empty.FirstSpendIndex())
}

func TestPricingVariables(t *testing.T) {
	plan := &Plan{
		Variables: []VariableRole{
			TxOutputRole{},
			PricingRole{},
			PaymentChainRole{},
			PricingRole{},
		},
	}

	assert.Equal(t, []int{1, 3}, plan.PricingVariables())
}

func intPtr(n int) *int { return &n }
