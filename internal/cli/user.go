package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/adminauth/internal/models"
)

func newUserCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long:  "Manage administrative accounts directly against the configured store",
	}
	cmd.AddCommand(
		newUserCreateCmd(st),
		newUserListCmd(st),
		newUserGetCmd(st),
		newUserActionCmd(st, "set-role [user-id] [role]", "Change a user's role", 2,
			func(ctx context.Context, a *app, args []string) *models.ActionResult {
				return a.svc.UpdateRole(ctx, args[0], args[1], "", cliAddress, cliUserAgent)
			}),
		newUserActionCmd(st, "deactivate [user-id]", "Deactivate a user and end their sessions", 1,
			func(ctx context.Context, a *app, args []string) *models.ActionResult {
				return a.svc.DeactivateUser(ctx, args[0], "", cliAddress, cliUserAgent)
			}),
		newUserActionCmd(st, "unlock [user-id]", "Clear a user's lockout", 1,
			func(ctx context.Context, a *app, args []string) *models.ActionResult {
				return a.svc.UnlockUser(ctx, args[0], "", cliAddress, cliUserAgent)
			}),
	)
	return cmd
}

// withApp opens the service stack for the duration of fn.
func withApp(cmd *cobra.Command, st *rootState, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, st.cfg, st.log, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newUserCreateCmd(st *rootState) *cobra.Command {
	var req models.CreateUserRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, st, func(ctx context.Context, a *app) error {
				res := a.svc.CreateUser(ctx, &req, "", cliAddress, cliUserAgent)
				if !res.Success {
					return fmt.Errorf("failed to create user: %s", strings.Join(res.Errors, "; "))
				}
				return renderUsers(cmd, st, []*models.UserResponse{res.User})
			})
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "username (required)")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&req.Password, "password", "", "initial password (required)")
	cmd.Flags().StringVar(&req.Role, "role", string(models.RoleReadonly), "role: super_admin, server_admin, metrics_viewer, operator, readonly")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "display name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserListCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, st, func(ctx context.Context, a *app) error {
				users, err := a.svc.ListUsers(ctx)
				if err != nil {
					return fmt.Errorf("failed to list users: %w", err)
				}
				return renderUsers(cmd, st, users)
			})
		},
	}
}

func newUserGetCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "get [user-id]",
		Short: "Get user details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, st, func(ctx context.Context, a *app) error {
				user, err := a.svc.GetUser(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get user: %w", err)
				}
				return renderUsers(cmd, st, []*models.UserResponse{user})
			})
		},
	}
}

func newUserActionCmd(st *rootState, use, short string, nargs int, action func(ctx context.Context, a *app, args []string) *models.ActionResult) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, st, func(ctx context.Context, a *app) error {
				res := action(ctx, a, args)
				if !res.Success {
					if len(res.Errors) > 0 {
						return fmt.Errorf("%s: %s", res.Message, strings.Join(res.Errors, "; "))
					}
					return fmt.Errorf("%s", res.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			})
		},
	}
}

func renderUsers(cmd *cobra.Command, st *rootState, users []*models.UserResponse) error {
	return render(cmd.OutOrStdout(), st.output, users, func(t *tableWriter) {
		t.Row("ID", "USERNAME", "EMAIL", "ROLE", "STATUS")
		for _, u := range users {
			status := "active"
			if !u.IsActive {
				status = "inactive"
			}
			t.Row(u.ID, u.Username, u.Email, string(u.Role), status)
		}
	})
}
