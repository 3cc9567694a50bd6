package repository

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for deployment data operations.
type Repository interface {
	// Deployment operations
	CreateDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, id uuid.UUID) (*Deployment, error)
	GetLatestDeployment(ctx context.Context, plan string, chainID int64) (*Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, id uuid.UUID, status Status, step *string) error
	SetDeploymentError(ctx context.Context, id uuid.UUID, step string, errMsg string) error
	ListDeployments(ctx context.Context, limit int) ([]*Deployment, error)

	// Contract operations
	RecordContract(ctx context.Context, c *Contract) error
	ListContracts(ctx context.Context, deploymentID uuid.UUID) ([]Contract, error)
}
