package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/fieldcoin-deployer/internal/metrics"
)

// StateStore persists step progress so an interrupted run can resume.
type StateStore interface {
	// CompletedSteps returns contracts already deployed for this run, keyed by step.
	CompletedSteps(ctx context.Context) (map[string]*DeployedContract, error)
	StepStarted(ctx context.Context, step string) error
	StepCompleted(ctx context.Context, contract *DeployedContract) error
	StepFailed(ctx context.Context, step string, cause error) error
	Completed(ctx context.Context) error
}

// CodeReader reads deployed bytecode. ChainClient satisfies it.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// failureRecordTimeout bounds how long recording a failed step may take once
// the run's own context is done.
const failureRecordTimeout = 10 * time.Second

// Executor runs a Plan one step at a time.
type Executor struct {
	resolver ArtifactResolver
	deployer Deployer
	state    StateStore
	code     CodeReader
	logger   *slog.Logger
}

// NewExecutor creates a plan executor. state may be nil to disable persistence.
func NewExecutor(resolver ArtifactResolver, deployer Deployer, state StateStore, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		resolver: resolver,
		deployer: deployer,
		state:    state,
		logger:   logger,
	}
}

// WithCodeCheck makes resumed runs confirm that every recorded contract still
// has code on chain. A recorded step without code is deployed again. A recorded
// step is never reused once one of its dependencies was deployed in this run.
func (e *Executor) WithCodeCheck(code CodeReader) *Executor {
	e.code = code
	return e
}

// Run deploys every step of the plan in order. A step is only started after
// all earlier steps have produced a usable address; the first failure stops
// the run and no later step is attempted.
func (e *Executor) Run(ctx context.Context, plan *Plan) (*Results, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	results := NewResults()

	completed := map[string]*DeployedContract{}
	if e.state != nil {
		var err error
		completed, err = e.state.CompletedSteps(ctx)
		if err != nil {
			return nil, fmt.Errorf("load completed steps: %w", err)
		}
	}

	e.logger.Info("starting deployment plan",
		slog.String("plan", plan.Name),
		slog.Int("steps", len(plan.Steps)),
		slog.Int("already_deployed", len(completed)),
	)

	redeployed := make(map[string]bool)
	for _, step := range plan.Steps {
		prior, ok := completed[step.Name]
		if ok && prior.Address != (common.Address{}) {
			reuse, err := e.reusable(ctx, step, prior, redeployed)
			if err != nil {
				e.recordFailure(ctx, step.Name, err)
				return results, &StepError{Step: step.Name, Err: err}
			}
			if reuse {
				e.logger.Info("step already deployed, skipping",
					slog.String("step", step.Name),
					slog.String("address", prior.Address.Hex()),
				)
				results.add(prior)
				metrics.ObserveStep(plan.Name, step.Name, metrics.StatusSkipped, 0, 0)
				continue
			}
		}

		contract, err := e.runStep(ctx, plan.Name, step, results)
		if err != nil {
			e.recordFailure(ctx, step.Name, err)
			return results, &StepError{Step: step.Name, Err: err}
		}
		results.add(contract)
		redeployed[step.Name] = true
	}

	if e.state != nil {
		if err := e.state.Completed(ctx); err != nil {
			return results, fmt.Errorf("record completion: %w", err)
		}
	}

	e.logger.Info("deployment plan finished",
		slog.String("plan", plan.Name),
		slog.Int("contracts", results.Len()),
	)
	return results, nil
}

// reusable reports whether a recorded contract can stand in for its step.
func (e *Executor) reusable(ctx context.Context, step Step, prior *DeployedContract, redeployed map[string]bool) (bool, error) {
	for _, dep := range step.DependsOn {
		if redeployed[dep] {
			e.logger.Warn("dependency was redeployed, deploying step again",
				slog.String("step", step.Name),
				slog.String("dependency", dep),
				slog.String("recorded_address", prior.Address.Hex()),
			)
			return false, nil
		}
	}
	if e.code == nil {
		return true, nil
	}

	code, err := e.code.CodeAt(ctx, prior.Address, nil)
	if err != nil {
		return false, fmt.Errorf("verify recorded contract at %s: %w", prior.Address.Hex(), err)
	}
	if len(code) == 0 {
		e.logger.Warn("recorded contract has no code on chain, deploying step again",
			slog.String("step", step.Name),
			slog.String("recorded_address", prior.Address.Hex()),
		)
		return false, nil
	}
	return true, nil
}

// recordFailure stores a step failure even when ctx is already cancelled.
func (e *Executor) recordFailure(ctx context.Context, step string, cause error) {
	if e.state == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
	defer cancel()
	if err := e.state.StepFailed(ctx, step, cause); err != nil {
		e.logger.Warn("failed to record step failure",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) runStep(ctx context.Context, planName string, step Step, results *Results) (*DeployedContract, error) {
	start := time.Now()

	for _, dep := range step.DependsOn {
		if _, err := results.Address(dep); err != nil {
			return nil, err
		}
	}

	artifact, err := e.resolver.Resolve(ctx, step.ArtifactName())
	if err != nil {
		return nil, fmt.Errorf("resolve artifact: %w", err)
	}

	var args []any
	if step.Args != nil {
		args, err = step.Args(results)
		if err != nil {
			return nil, fmt.Errorf("build constructor args: %w", err)
		}
	}

	if e.state != nil {
		if err := e.state.StepStarted(ctx, step.Name); err != nil {
			return nil, fmt.Errorf("record step start: %w", err)
		}
	}

	e.logger.Info("deploying step",
		slog.String("step", step.Name),
		slog.String("artifact", step.ArtifactName()),
		slog.Int("args", len(args)),
	)

	contract, err := e.deployer.Deploy(ctx, step.Name, artifact, args...)
	if err != nil {
		metrics.ObserveStep(planName, step.Name, metrics.StatusFailed, time.Since(start), 0)
		return nil, err
	}
	if contract == nil || contract.Address == (common.Address{}) {
		metrics.ObserveStep(planName, step.Name, metrics.StatusFailed, time.Since(start), 0)
		return nil, ErrNoContractAddress
	}
	contract.Step = step.Name

	status := metrics.StatusDeployed
	if contract.Simulated {
		status = metrics.StatusSimulated
	}
	metrics.ObserveStep(planName, step.Name, status, time.Since(start), contract.GasUsed)

	if e.state != nil {
		if err := e.state.StepCompleted(ctx, contract); err != nil {
			return nil, fmt.Errorf("record deployed contract %s at %s: %w", step.Name, contract.Address.Hex(), err)
		}
	}
	return contract, nil
}
