package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session management commands",
	}

	var userID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, st, func(ctx context.Context, a *app) error {
				sessions, err := a.svc.ListActiveSessions(ctx, userID)
				if err != nil {
					return fmt.Errorf("failed to list sessions: %w", err)
				}
				return render(cmd.OutOrStdout(), st.output, sessions, func(t *tableWriter) {
					t.Row("SESSION", "USER", "IP", "CREATED", "EXPIRES")
					for _, s := range sessions {
						t.Row(s.ID, s.UserID, s.IPAddress, s.CreatedAt.Format(time.RFC3339), s.ExpiresAt.Format(time.RFC3339))
					}
				})
			})
		},
	}
	list.Flags().StringVar(&userID, "user-id", "", "only sessions of this user")

	revoke := &cobra.Command{
		Use:   "revoke [session-id]",
		Short: "End one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, st, func(ctx context.Context, a *app) error {
				changed, err := a.svc.RevokeSession(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to revoke session: %w", err)
				}
				if changed {
					fmt.Fprintln(cmd.OutOrStdout(), "Session revoked")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Session was already inactive")
				}
				return nil
			})
		},
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate every expired session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, st, func(ctx context.Context, a *app) error {
				n, err := a.svc.SweepExpiredSessions(ctx)
				if err != nil {
					return fmt.Errorf("failed to sweep sessions: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d expired session(s) deactivated\n", n)
				return nil
			})
		},
	}

	cmd.AddCommand(list, revoke, sweep)
	return cmd
}
