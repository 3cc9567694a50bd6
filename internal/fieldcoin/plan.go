// Package fieldcoin builds the FieldCoin token sale deployment plan.
package fieldcoin

import (
	"fmt"

	"github.com/Bidon15/fieldcoin-deployer/internal/deploy"
	"github.com/Bidon15/fieldcoin-deployer/internal/sale"
)

// Step and plan names. Step names double as artifact names.
const (
	PlanName  = "fieldcoin-sale"
	TokenStep = "FieldCoin"
	SaleStep  = "FieldCoinSale"
)

// NewPlan returns the two-step plan: FieldCoin first, then FieldCoinSale
// constructed with the token's address.
func NewPlan(params sale.Params) (*deploy.Plan, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sale parameters: %w", err)
	}

	plan := &deploy.Plan{
		Name: PlanName,
		Steps: []deploy.Step{
			{Name: TokenStep},
			{
				Name:      SaleStep,
				DependsOn: []string{TokenStep},
				Args: func(results *deploy.Results) ([]any, error) {
					token, err := results.Address(TokenStep)
					if err != nil {
						return nil, err
					}
					return params.ConstructorArgs(token), nil
				},
			},
		},
	}
	return plan, plan.Validate()
}
