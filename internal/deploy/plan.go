package deploy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ArgsFunc computes a step's constructor arguments from earlier results.
type ArgsFunc func(results *Results) ([]any, error)

// Step is one contract deployment in a plan.
type Step struct {
	// Name identifies the step; it is also the artifact name unless Artifact is set.
	Name string
	// Artifact names the compiled contract to deploy.
	Artifact string
	// DependsOn lists steps whose addresses this step needs.
	DependsOn []string
	// Args builds the constructor arguments. Nil means no arguments.
	Args ArgsFunc
}

// ArtifactName returns the artifact to resolve for this step.
func (s Step) ArtifactName() string {
	if s.Artifact != "" {
		return s.Artifact
	}
	return s.Name
}

// Plan is an ordered list of deployment steps.
type Plan struct {
	Name  string
	Steps []Step
}

// Validate checks that step names are unique and every dependency refers to
// an earlier step, so running steps in list order honours all dependencies.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: plan name is required", ErrInvalidPlan)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan %s has no steps", ErrInvalidPlan, p.Name)
	}

	seen := make(map[string]bool, len(p.Steps))
	for i, step := range p.Steps {
		if step.Name == "" {
			return fmt.Errorf("%w: step %d has no name", ErrInvalidPlan, i)
		}
		if seen[step.Name] {
			return fmt.Errorf("%w: duplicate step %s", ErrInvalidPlan, step.Name)
		}
		for _, dep := range step.DependsOn {
			if dep == step.Name {
				return fmt.Errorf("%w: step %s depends on itself", ErrInvalidPlan, step.Name)
			}
			if !seen[dep] {
				return fmt.Errorf("%w: step %s depends on %s which is not an earlier step", ErrInvalidPlan, step.Name, dep)
			}
		}
		seen[step.Name] = true
	}
	return nil
}

// Results holds deployed contracts keyed by step, in deployment order.
type Results struct {
	order     []string
	contracts map[string]*DeployedContract
}

// NewResults creates an empty result set.
func NewResults() *Results {
	return &Results{contracts: make(map[string]*DeployedContract)}
}

func (r *Results) add(c *DeployedContract) {
	if _, ok := r.contracts[c.Step]; !ok {
		r.order = append(r.order, c.Step)
	}
	r.contracts[c.Step] = c
}

// Get returns the contract deployed by step, if any.
func (r *Results) Get(step string) (*DeployedContract, bool) {
	c, ok := r.contracts[step]
	return c, ok
}

// Address returns the address produced by step. It fails if the step has not
// run or did not produce a usable address.
func (r *Results) Address(step string) (common.Address, error) {
	c, ok := r.contracts[step]
	if !ok || c.Address == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrStepNotDeployed, step)
	}
	return c.Address, nil
}

// Contracts returns deployed contracts in order.
func (r *Results) Contracts() []*DeployedContract {
	out := make([]*DeployedContract, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.contracts[name])
	}
	return out
}

// Len returns the number of deployed steps.
func (r *Results) Len() int {
	return len(r.order)
}
