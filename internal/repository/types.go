// Package repository persists deployment runs and the contracts they produced.
package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the deployment status.
type Status string

const (
	// StatusPending indicates the deployment has not started.
	StatusPending Status = "pending"
	// StatusRunning indicates the deployment is in progress.
	StatusRunning Status = "running"
	// StatusCompleted indicates every step was mined on-chain.
	StatusCompleted Status = "completed"
	// StatusSimulated indicates a dry run; no transactions were sent.
	StatusSimulated Status = "simulated"
	// StatusFailed indicates a step failed.
	StatusFailed Status = "failed"
)

// Deployment is one run of a plan against a chain by a deployer account.
type Deployment struct {
	ID           uuid.UUID
	Plan         string
	ChainID      int64
	Deployer     string
	Status       Status
	CurrentStep  *string
	Config       json.RawMessage
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contract is a contract deployed by one step of a deployment.
type Contract struct {
	ID           uuid.UUID
	DeploymentID uuid.UUID
	Step         string
	ContractName string
	Address      string
	TxHash       string
	BlockNumber  int64
	GasUsed      int64
	CreatedAt    time.Time
}
