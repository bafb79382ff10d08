// Package cli implements the adminauth command line.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/adminauth/internal/config"
	"github.com/telhawk-systems/adminauth/internal/logging"
)

// Version is overridden at build time with -ldflags.
var Version = "0.1.0"

// rootState carries the loaded configuration to subcommands.
type rootState struct {
	cfgFile string
	output  string
	cfg     *config.Config
	log     *logging.Logger
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	st := &rootState{}

	rootCmd := &cobra.Command{
		Use:   "adminauth",
		Short: "Administrative authentication service",
		Long: `adminauth authenticates administrative users and manages their sessions.

Run the HTTP API with "adminauth serve", or manage users, sessions and
the audit trail directly against the configured store.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&st.cfgFile, "config", "", "config file (default: ./config.yaml or /etc/adminauth/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&st.output, "output", "o", "table", "output format: table, json, yaml")

	rootCmd.AddCommand(
		newServeCmd(st),
		newMigrateCmd(st),
		newUserCmd(st),
		newSessionsCmd(st),
		newAuditCmd(st),
		newConfigCmd(st),
		newSeedCmd(st),
	)
	return rootCmd
}

func (st *rootState) load(cmd *cobra.Command) error {
	switch st.output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", st.output)
	}

	cfg, err := config.Load(st.cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	st.cfg = cfg

	// The server logs to stdout; one-shot commands keep stdout for results.
	var w io.Writer = cmd.ErrOrStderr()
	if cmd.Name() == "serve" {
		w = cmd.OutOrStdout()
	}
	st.log = logging.NewWithWriter(w, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("adminauth"))
	logging.SetDefault(st.log)
	return nil
}
