package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, _ := cmd.Flags().GetBool("list")
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				if env.Migrator == nil {
					return errors.New("migrate: database not configured")
				}
				out := cmd.OutOrStdout()
				if list {
					files, err := env.Migrator.Files()
					if err != nil {
						return err
					}
					for _, f := range files {
						fmt.Fprintln(out, f)
					}
					return nil
				}
				applied, err := env.Migrator.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "applied %d migration(s)\n", applied)
				return nil
			})
		},
	}
	cmd.Flags().Bool("list", false, "List embedded migrations without applying them")
	return cmd
}
