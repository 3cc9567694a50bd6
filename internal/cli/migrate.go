package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Bidon15/fieldcoin-deployer/internal/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the deployment records schema",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.init(cmd); err != nil {
				return err
			}
			if !a.cfg.Database.Enabled {
				return ErrDatabaseDisabled
			}
			return nil
		},
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := database.RunMigrations(a.cfg.Database); err != nil {
				return err
			}
			a.logger.Info("migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			if err := database.MigrateDown(a.cfg.Database, steps); err != nil {
				return err
			}
			a.logger.Info("migrations rolled back", slog.Int("steps", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			v, dirty, err := database.MigrationVersion(a.cfg.Database)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(a.out, map[string]any{"version": v, "dirty": dirty})
			}
			fmt.Fprintf(a.out, "version %d", v)
			if dirty {
				fmt.Fprint(a.out, " (dirty)")
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}
