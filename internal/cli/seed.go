package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/service"
)

type seededUser struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
	Password string      `json:"password"`
}

func newSeedCmd(st *rootState) *cobra.Command {
	var count int
	var seed int64

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create fake users for development",
		Long: `Create fake users with random roles and print their credentials.

Against the memory backend the users only live as long as this command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be positive")
			}
			return withApp(cmd, st, func(ctx context.Context, a *app) error {
				faker := gofakeit.New(seed)
				users, err := seedUsers(ctx, a.svc, faker, count)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), st.output, users, func(t *tableWriter) {
					t.Row("USERNAME", "EMAIL", "ROLE", "PASSWORD")
					for _, u := range users {
						t.Row(u.Username, u.Email, string(u.Role), u.Password)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 10, "number of users to create")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	return cmd
}

// seedUsers creates count users, retrying a bounded number of times when a
// generated username or email is already taken.
func seedUsers(ctx context.Context, svc *service.AuthService, faker *gofakeit.Faker, count int) ([]seededUser, error) {
	users := make([]seededUser, 0, count)
	for attempts := 0; len(users) < count; attempts++ {
		if attempts >= count*5 {
			return users, fmt.Errorf("gave up after %d attempts with %d of %d users created", attempts, len(users), count)
		}

		// The fixed suffix guarantees every character class the strength policy wants.
		pw := faker.Password(true, true, true, true, false, 14) + "aA1!"
		role := models.Roles[faker.Number(0, len(models.Roles)-1)]
		res := svc.CreateUser(ctx, &models.CreateUserRequest{
			Username: strings.ToLower(faker.Username()),
			Email:    strings.ToLower(faker.Email()),
			Password: pw,
			Role:     string(role),
			FullName: faker.Name(),
		}, "", cliAddress, cliUserAgent)
		if errors.Is(res.Err, service.ErrUserExists) {
			continue
		}
		if !res.Success {
			return users, fmt.Errorf("failed to create user: %s", strings.Join(res.Errors, "; "))
		}
		users = append(users, seededUser{
			ID:       res.User.ID,
			Username: res.User.Username,
			Email:    res.User.Email,
			Role:     res.User.Role,
			Password: pw,
		})
	}
	return users, nil
}
