package models

import "github.com/pkg/errors"

// Validate checks the structural invariants of a decoded plan: every
// variable index referenced anywhere must be within the variable list.
func (p *Plan) Validate() error {
	n := len(p.Variables)

	check := func(idx int, where string) error {
		if idx < 0 || idx >= n {
			return errors.Errorf("variable index %d out of bounds in %s (have %d variables)", idx, where, n)
		}
		return nil
	}

	checkArgs := func(args []Argument, where string) error {
		for _, idx := range ArgumentVariables(args) {
			if err := check(idx, where); err != nil {
				return err
			}
		}
		return nil
	}

	checkFormula := func(f Formula, where string) error {
		if v, ok := f.(VariableFormula); ok {
			return check(v.Index, where)
		}
		return nil
	}

	checkPayments := func(payments []Payment, where string) error {
		for _, payment := range payments {
			erc20, ok := payment.(ERC20Payment)
			if !ok {
				continue
			}
			if err := check(erc20.RecipientVar, where); err != nil {
				return err
			}
			if err := checkFormula(erc20.AmountFormula, where); err != nil {
				return err
			}
		}
		return nil
	}

	for i, step := range p.Steps {
		if err := checkArgs(step.Arguments, "step arguments"); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}

		attrs := step.Attributes
		for _, spend := range attrs.SpendsERC20 {
			if err := checkFormula(spend.AmountFormula, "SpendsERC20"); err != nil {
				return errors.Wrapf(err, "step %d", i)
			}
		}
		if attrs.SpendsEstimatedGas != nil {
			if err := checkFormula(attrs.SpendsEstimatedGas.AmountFormula, "SpendsEstimatedGas"); err != nil {
				return errors.Wrapf(err, "step %d", i)
			}
		}
		if attrs.RequiredCallResult != nil {
			if err := checkArgs(attrs.RequiredCallResult.Arguments, "RequiredCallResult"); err != nil {
				return errors.Wrapf(err, "step %d", i)
			}
		}
		for _, idx := range []*int{attrs.WithTimestamp, attrs.WithBlockNumber, attrs.WithEffectiveGasPrice} {
			if idx == nil {
				continue
			}
			if err := check(*idx, "receipt attribute"); err != nil {
				return errors.Wrapf(err, "step %d", i)
			}
		}
		if err := checkPayments(step.Payments, "step payment"); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
	}

	for i, role := range p.Variables {
		switch r := role.(type) {
		case WitnessRole:
			for _, idx := range r.Variables {
				if err := check(idx, "witness sub-variable"); err != nil {
					return errors.Wrapf(err, "variable %d", i)
				}
			}
		case QueryRole:
			if err := checkArgs(r.Arguments, "query arguments"); err != nil {
				return errors.Wrapf(err, "variable %d", i)
			}
		}
	}

	if err := checkPayments(p.Payments, "plan payment"); err != nil {
		return err
	}

	return nil
}

// LastDropIndex returns the index of the last step whose revert policy
// contains a drop, or -1.
func (p *Plan) LastDropIndex() int {
	last := -1
	for i, step := range p.Steps {
		if step.Attributes.HasDropPolicy() {
			last = i
		}
	}
	return last
}

// FirstSpendIndex returns the index of the first step with a SpendsERC20
// attribute, or -1.
func (p *Plan) FirstSpendIndex() int {
	for i, step := range p.Steps {
		if len(step.Attributes.SpendsERC20) > 0 {
			return i
		}
	}
	return -1
}

// PricingVariables returns the indices of variables with a pricing role.
func (p *Plan) PricingVariables() []int {
	var indices []int
	for i, role := range p.Variables {
		if _, ok := role.(PricingRole); ok {
			indices = append(indices, i)
		}
	}
	return indices
}
