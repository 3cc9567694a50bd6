package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Bidon15/fieldcoin-deployer/internal/database"
	"github.com/Bidon15/fieldcoin-deployer/internal/repository"
)

// ErrDatabaseDisabled is returned by commands that need deployment records.
var ErrDatabaseDisabled = errors.New("database is not enabled (set database.enabled or FIELDCOIN_DATABASE_ENABLED=true)")

type deploymentView struct {
	*repository.Deployment
	Contracts []repository.Contract `json:"contracts,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	var (
		id    string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List recorded deployments, or show one with its contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.Database.Enabled {
				return ErrDatabaseDisabled
			}
			pg, err := database.NewPostgres(cmd.Context(), a.cfg.Database)
			if err != nil {
				return err
			}
			defer pg.Close()
			repo := repository.NewPostgresRepository(pg.Pool())

			if id == "" {
				deployments, err := repo.ListDeployments(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(a.out, deployments)
				}
				return printDeployments(a.out, deployments)
			}

			deploymentID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid deployment id %q: %w", id, err)
			}
			d, err := repo.GetDeployment(cmd.Context(), deploymentID)
			if err != nil {
				return err
			}
			contracts, err := repo.ListContracts(cmd.Context(), deploymentID)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(a.out, deploymentView{Deployment: d, Contracts: contracts})
			}
			if err := printDeployments(a.out, []*repository.Deployment{d}); err != nil {
				return err
			}
			fmt.Fprintln(a.out)
			return printRecordedContracts(a.out, contracts)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "show a single deployment and its contracts")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of deployments to list")
	return cmd
}

func printDeployments(w io.Writer, deployments []*repository.Deployment) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLAN\tCHAIN\tDEPLOYER\tSTATUS\tSTEP\tUPDATED\tERROR")
	for _, d := range deployments {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Plan, d.ChainID, d.Deployer, d.Status,
			deref(d.CurrentStep), d.UpdatedAt.Format("2006-01-02 15:04:05"), deref(d.ErrorMessage))
	}
	return tw.Flush()
}

func printRecordedContracts(w io.Writer, contracts []repository.Contract) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tCONTRACT\tADDRESS\tTX\tBLOCK\tGAS")
	for _, c := range contracts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			c.Step, c.ContractName, c.Address, c.TxHash, c.BlockNumber, c.GasUsed)
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
