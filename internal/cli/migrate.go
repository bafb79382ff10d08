package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/adminauth/migrations"
)

var errNeedsPostgres = errors.New("migrations require database.type=postgres")

func newMigrateCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if st.cfg.Database.Type != "postgres" {
				return errNeedsPostgres
			}
			status, err := migrations.Up(st.cfg.DatabaseURL())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d (dirty=%v)\n", status.Version, status.Dirty)
			return nil
		},
	}

	var force bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Long:  "Roll back every migration. This drops all users, sessions and audit events.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if st.cfg.Database.Type != "postgres" {
				return errNeedsPostgres
			}
			if !force {
				return fmt.Errorf("use --force to confirm dropping the schema")
			}
			status, err := migrations.Down(st.cfg.DatabaseURL())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d (dirty=%v)\n", status.Version, status.Dirty)
			return nil
		},
	}
	down.Flags().BoolVar(&force, "force", false, "confirm the rollback")

	cmd.AddCommand(up, down)
	return cmd
}
