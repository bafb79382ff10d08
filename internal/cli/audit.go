package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/adminauth/internal/audit"
	"github.com/telhawk-systems/adminauth/internal/models"
)

type auditRow struct {
	*models.AuditEvent
	Verified bool `json:"verified"`
}

func newAuditCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail commands",
	}

	var userID string
	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the newest audit events and check their signatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			return withApp(cmd, st, func(ctx context.Context, a *app) error {
				events, err := a.svc.RecentAuditEvents(ctx, userID, limit)
				if err != nil {
					return fmt.Errorf("failed to read audit events: %w", err)
				}
				rows := make([]auditRow, 0, len(events))
				for _, e := range events {
					rows = append(rows, auditRow{AuditEvent: e, Verified: a.svc.VerifyAuditEvent(e)})
				}
				return render(cmd.OutOrStdout(), st.output, rows, func(t *tableWriter) {
					t.Row("TIME", "ACTION", "USER", "IP", "SUCCESS", "VERIFIED")
					for _, r := range rows {
						t.Row(
							r.Timestamp.Format(time.RFC3339),
							string(r.Action),
							models.StringValue(r.UserID),
							r.IPAddress,
							strconv.FormatBool(r.Success),
							strconv.FormatBool(r.Verified),
						)
					}
				})
			})
		},
	}
	recent.Flags().StringVar(&userID, "user-id", "", "only events about this user")
	recent.Flags().IntVar(&limit, "limit", audit.DefaultRecentLimit, "maximum number of events")

	cmd.AddCommand(recent)
	return cmd
}
