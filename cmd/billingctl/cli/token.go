package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/billing/internal/rbac"
)

func newTokenCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the billing API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetInt64("user")
			email, _ := cmd.Flags().GetString("email")
			role, _ := cmd.Flags().GetString("role")
			principal := rbac.Principal{ID: id, Email: email, Role: rbac.Role(strings.ToUpper(role))}
			if principal.ID <= 0 {
				return errors.New("token: --user must be positive")
			}
			if principal.Role != rbac.RoleAdmin && principal.Role != rbac.RoleStoreManager {
				return fmt.Errorf("token: unknown role %q", role)
			}
			return withEnv(cmd, open, func(_ context.Context, env *Env) error {
				if env.Tokens == nil {
					return errors.New("token: signing key not configured")
				}
				token, err := env.Tokens.Issue(principal)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().Int64("user", 0, "User id placed in the token subject")
	cmd.Flags().String("email", "", "User email")
	cmd.Flags().String("role", string(rbac.RoleStoreManager), "ADMIN or STORE_MANAGER")
	return cmd
}
