package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// DBTX is the subset of pgxpool.Pool used by PostgresRepository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const deploymentColumns = `id, plan, chain_id, deployer, status, current_step, config, error_message, created_at, updated_at`

func scanDeployment(row pgx.Row) (*Deployment, error) {
	var d Deployment
	err := row.Scan(
		&d.ID, &d.Plan, &d.ChainID, &d.Deployer, &d.Status, &d.CurrentStep,
		&d.Config, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDeployment inserts a new deployment record.
func (r *PostgresRepository) CreateDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = StatusPending
	}

	query := `
		INSERT INTO deployments (id, plan, chain_id, deployer, status, current_step, config, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		d.ID, d.Plan, d.ChainID, d.Deployer, d.Status, d.CurrentStep, d.Config, d.ErrorMessage,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateDeployment: %w", err)
	}
	return nil
}

// GetDeployment retrieves a deployment by its UUID.
func (r *PostgresRepository) GetDeployment(ctx context.Context, id uuid.UUID) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`

	d, err := scanDeployment(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetDeployment: %w", err)
	}
	return d, nil
}

// GetLatestDeployment retrieves the most recent deployment of plan on chainID.
func (r *PostgresRepository) GetLatestDeployment(ctx context.Context, plan string, chainID int64) (*Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE plan = $1 AND chain_id = $2 AND status <> $3
		ORDER BY created_at DESC
		LIMIT 1`

	d, err := scanDeployment(r.db.QueryRow(ctx, query, plan, chainID, StatusSimulated))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetLatestDeployment: %w", err)
	}
	return d, nil
}

// UpdateDeploymentStatus updates the status and current step of a deployment.
func (r *PostgresRepository) UpdateDeploymentStatus(ctx context.Context, id uuid.UUID, status Status, step *string) error {
	query := `
		UPDATE deployments
		SET status = $2, current_step = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, step)
	if err != nil {
		return fmt.Errorf("UpdateDeploymentStatus: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDeploymentError records the failing step and marks the deployment as failed.
func (r *PostgresRepository) SetDeploymentError(ctx context.Context, id uuid.UUID, step string, errMsg string) error {
	query := `
		UPDATE deployments
		SET status = $2, current_step = $3, error_message = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, StatusFailed, step, errMsg)
	if err != nil {
		return fmt.Errorf("SetDeploymentError: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDeployments retrieves the most recent deployments, newest first.
func (r *PostgresRepository) ListDeployments(ctx context.Context, limit int) ([]*Deployment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + deploymentColumns + ` FROM deployments ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListDeployments: %w", err)
	}
	defer rows.Close()

	var deployments []*Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("ListDeployments scan: %w", err)
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

// RecordContract inserts a deployed contract (upsert by deployment_id + step).
func (r *PostgresRepository) RecordContract(ctx context.Context, c *Contract) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `
		INSERT INTO deployed_contracts (id, deployment_id, step, contract_name, address, tx_hash, block_number, gas_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (deployment_id, step)
		DO UPDATE SET contract_name = EXCLUDED.contract_name,
		              address = EXCLUDED.address,
		              tx_hash = EXCLUDED.tx_hash,
		              block_number = EXCLUDED.block_number,
		              gas_used = EXCLUDED.gas_used
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		c.ID, c.DeploymentID, c.Step, c.ContractName, c.Address, c.TxHash, c.BlockNumber, c.GasUsed,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("RecordContract: %w", err)
	}
	return nil
}

// ListContracts retrieves all contracts for a deployment in deployment order.
func (r *PostgresRepository) ListContracts(ctx context.Context, deploymentID uuid.UUID) ([]Contract, error) {
	query := `
		SELECT id, deployment_id, step, contract_name, address, tx_hash, block_number, gas_used, created_at
		FROM deployed_contracts
		WHERE deployment_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("ListContracts: %w", err)
	}
	defer rows.Close()

	var contracts []Contract
	for rows.Next() {
		var c Contract
		if err := rows.Scan(
			&c.ID, &c.DeploymentID, &c.Step, &c.ContractName, &c.Address,
			&c.TxHash, &c.BlockNumber, &c.GasUsed, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ListContracts scan: %w", err)
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// Compile-time checks.
var (
	_ Repository = (*PostgresRepository)(nil)
	_ DBTX       = (*pgxpool.Pool)(nil)
)
