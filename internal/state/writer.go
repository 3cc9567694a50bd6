// Package state persists deployment progress so interrupted runs can resume.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Bidon15/fieldcoin-deployer/internal/deploy"
	"github.com/Bidon15/fieldcoin-deployer/internal/repository"
)

// Options identify the deployment a Writer records into.
type Options struct {
	Plan     string
	ChainID  int64
	Deployer common.Address
	// Config is the JSON form of the parameters the plan was built from.
	// A previous run is only resumed when its config is identical.
	Config json.RawMessage
	// Fresh forces a new deployment record even if one could be resumed.
	Fresh bool
	// Simulated marks a dry run. Simulated runs are never resumed.
	Simulated bool
}

// Writer implements deploy.StateStore on top of the repository.
type Writer struct {
	repo       repository.Repository
	deployment *repository.Deployment
	resumed    bool
	simulated  bool
	logger     *slog.Logger
}

// Open resumes the latest matching deployment or creates a new one.
func Open(ctx context.Context, repo repository.Repository, opts Options, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{repo: repo, simulated: opts.Simulated, logger: logger}

	if !opts.Fresh && !opts.Simulated {
		latest, err := repo.GetLatestDeployment(ctx, opts.Plan, opts.ChainID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("look up previous deployment: %w", err)
		case resumable(latest, opts):
			w.deployment = latest
			w.resumed = true
			logger.Info("resuming deployment",
				slog.String("deployment_id", latest.ID.String()),
				slog.String("status", string(latest.Status)),
			)
			return w, nil
		default:
			logger.Info("previous deployment does not match current parameters, starting a new one",
				slog.String("previous_id", latest.ID.String()),
			)
		}
	}

	status := repository.StatusRunning
	if opts.Simulated {
		status = repository.StatusSimulated
	}
	d := &repository.Deployment{
		Plan:     opts.Plan,
		ChainID:  opts.ChainID,
		Deployer: opts.Deployer.Hex(),
		Status:   status,
		Config:   opts.Config,
	}
	if err := repo.CreateDeployment(ctx, d); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}
	w.deployment = d

	logger.Info("created deployment record", slog.String("deployment_id", d.ID.String()))
	return w, nil
}

// resumable reports whether prev was made by the same account with the same
// parameters.
func resumable(prev *repository.Deployment, opts Options) bool {
	if !strings.EqualFold(prev.Deployer, opts.Deployer.Hex()) {
		return false
	}
	return sameJSON(prev.Config, opts.Config)
}

// sameJSON compares two JSON documents ignoring key order and whitespace.
func sameJSON(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	decode := func(raw json.RawMessage) (any, bool) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		return v, true
	}
	va, ok := decode(a)
	if !ok {
		return false
	}
	vb, ok := decode(b)
	if !ok {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// DeploymentID returns the deployment ID this writer is associated with.
func (w *Writer) DeploymentID() uuid.UUID {
	return w.deployment.ID
}

// Resumed reports whether Open picked up an existing deployment.
func (w *Writer) Resumed() bool {
	return w.resumed
}

// CompletedSteps returns contracts already recorded for this deployment.
func (w *Writer) CompletedSteps(ctx context.Context) (map[string]*deploy.DeployedContract, error) {
	out := make(map[string]*deploy.DeployedContract)
	if !w.resumed {
		return out, nil
	}

	contracts, err := w.repo.ListContracts(ctx, w.deployment.ID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	for _, c := range contracts {
		if !common.IsHexAddress(c.Address) {
			w.logger.Warn("ignoring recorded contract with invalid address",
				slog.String("step", c.Step),
				slog.String("address", c.Address),
			)
			continue
		}
		out[c.Step] = &deploy.DeployedContract{
			Step:        c.Step,
			Contract:    c.ContractName,
			Address:     common.HexToAddress(c.Address),
			TxHash:      common.HexToHash(c.TxHash),
			BlockNumber: uint64(c.BlockNumber),
			GasUsed:     uint64(c.GasUsed),
		}
	}
	return out, nil
}

// StepStarted marks the deployment running at step.
func (w *Writer) StepStarted(ctx context.Context, step string) error {
	if err := w.repo.UpdateDeploymentStatus(ctx, w.deployment.ID, w.runningStatus(), &step); err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	return nil
}

// StepCompleted records the deployed contract.
func (w *Writer) StepCompleted(ctx context.Context, c *deploy.DeployedContract) error {
	rec := &repository.Contract{
		DeploymentID: w.deployment.ID,
		Step:         c.Step,
		ContractName: c.Contract,
		Address:      c.Address.Hex(),
		TxHash:       c.TxHash.Hex(),
		BlockNumber:  int64(c.BlockNumber),
		GasUsed:      int64(c.GasUsed),
	}
	if err := w.repo.RecordContract(ctx, rec); err != nil {
		return fmt.Errorf("record contract: %w", err)
	}
	return nil
}

// StepFailed marks the deployment failed at step.
func (w *Writer) StepFailed(ctx context.Context, step string, cause error) error {
	if err := w.repo.SetDeploymentError(ctx, w.deployment.ID, step, cause.Error()); err != nil {
		return fmt.Errorf("set deployment error: %w", err)
	}
	return nil
}

// Completed marks the deployment finished.
func (w *Writer) Completed(ctx context.Context) error {
	status := repository.StatusCompleted
	if w.simulated {
		status = repository.StatusSimulated
	}
	if err := w.repo.UpdateDeploymentStatus(ctx, w.deployment.ID, status, nil); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (w *Writer) runningStatus() repository.Status {
	if w.simulated {
		return repository.StatusSimulated
	}
	return repository.StatusRunning
}

var _ deploy.StateStore = (*Writer)(nil)
