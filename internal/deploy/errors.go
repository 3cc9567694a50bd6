package deploy

import (
	"errors"
	"fmt"
)

// Sentinel errors - Artifacts
var (
	ErrArtifactNotFound = errors.New("deploy: artifact not found")
	ErrEmptyBytecode    = errors.New("deploy: empty bytecode")
	ErrUnlinkedBytecode = errors.New("deploy: bytecode contains unlinked library placeholders")
	ErrChecksumMismatch = errors.New("deploy: artifact checksum mismatch")
	ErrNoConstructor    = errors.New("deploy: contract has no constructor")
)

// Sentinel errors - Chain
var (
	ErrChainIDMismatch     = errors.New("deploy: chain ID mismatch")
	ErrInsufficientBalance = errors.New("deploy: deployer address has no balance")
	ErrDeploymentReverted  = errors.New("deploy: contract deployment reverted")
	ErrNoContractAddress   = errors.New("deploy: deployment produced no usable contract address")
)

// Sentinel errors - Plans
var (
	ErrInvalidPlan     = errors.New("deploy: invalid plan")
	ErrStepNotDeployed = errors.New("deploy: step has not been deployed")
)

// StepError wraps an error with the plan step that produced it.
type StepError struct {
	Step string
	Err  error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}
