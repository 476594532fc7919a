package models

import "math/big"

// Formula is the amount expression language: a constant or a variable
// reference. Formulas always evaluate to uint256.
type Formula interface {
	isFormula()
}

// ConstantFormula is a fixed uint256 amount.
type ConstantFormula struct {
	Value *big.Int
}

func (ConstantFormula) isFormula() {}

// VariableFormula reads its amount from a plan variable. The variable must
// resolve to a static single-word encoding.
type VariableFormula struct {
	Index int
}

func (VariableFormula) isFormula() {}
