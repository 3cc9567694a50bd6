package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Bidon15/fieldcoin-deployer/internal/deploy"
	"github.com/Bidon15/fieldcoin-deployer/internal/fieldcoin"
)

// plannedStep is the offline preview of one step.
type plannedStep struct {
	Step     string   `json:"step"`
	Contract string   `json:"contract"`
	Address  string   `json:"predictedAddress"`
	Args     []string `json:"constructorArgs"`
	DataSize int      `json:"creationDataBytes"`
}

func newPlanCmd(a *app) *cobra.Command {
	var (
		from  string
		nonce uint64
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the deployment steps and constructor arguments without a chain",
		Long: `Resolve the artifacts, encode every constructor call, and print the
arguments each contract would receive. Addresses are predicted from the
deployer address and starting nonce; no RPC endpoint is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sender, err := a.planSender(from)
			if err != nil {
				return err
			}
			return a.runPlan(cmd, sender, nonce)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "deployer address (default: derived from network.private_key)")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "deployer nonce for the first step")
	return cmd
}

func (a *app) planSender(from string) (common.Address, error) {
	if from != "" {
		if !common.IsHexAddress(from) {
			return common.Address{}, fmt.Errorf("invalid --from address %q", from)
		}
		return common.HexToAddress(from), nil
	}
	if a.cfg.Network.PrivateKey != "" {
		signer, err := deploy.NewLocalSigner(a.cfg.Network.PrivateKey, a.cfg.Network.ChainID)
		if err != nil {
			return common.Address{}, err
		}
		return signer.Address(), nil
	}
	return common.Address{}, nil
}

func (a *app) runPlan(cmd *cobra.Command, sender common.Address, nonce uint64) error {
	params, err := a.saleParams()
	if err != nil {
		return err
	}
	plan, err := fieldcoin.NewPlan(params)
	if err != nil {
		return err
	}

	sim := deploy.NewSimulatedDeployer(sender, nonce, a.logger)
	resolver := deploy.NewDirectoryResolver(a.cfg.Artifacts.Dir, a.cfg.Artifacts.Checksums)
	if _, err := deploy.NewExecutor(resolver, sim, nil, a.logger).Run(cmd.Context(), plan); err != nil {
		return err
	}

	steps := make([]plannedStep, 0, len(sim.Calls()))
	for _, call := range sim.Calls() {
		args := make([]string, len(call.Args))
		for i, arg := range call.Args {
			args[i] = fmt.Sprint(arg)
		}
		steps = append(steps, plannedStep{
			Step:     call.Step,
			Contract: call.Contract,
			Address:  call.Address.Hex(),
			Args:     args,
			DataSize: call.DataSize,
		})
	}

	if a.jsonOut {
		return printJSON(a.out, steps)
	}
	return printPlan(a.out, steps)
}

func printPlan(w io.Writer, steps []plannedStep) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, s := range steps {
		fmt.Fprintf(tw, "%d. %s (%s)\n", i+1, s.Step, s.Contract)
		fmt.Fprintf(tw, "   predicted address:\t%s\n", s.Address)
		fmt.Fprintf(tw, "   creation data:\t%d bytes\n", s.DataSize)
		for j, arg := range s.Args {
			fmt.Fprintf(tw, "   arg %d:\t%s\n", j, arg)
		}
	}
	return tw.Flush()
}
