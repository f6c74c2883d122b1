package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newReconcileCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:     "reconcile <invoice-id>",
		Short:   "Mark an invoice PAID when completed payments cover its total",
		Args:    cobra.ExactArgs(1),
		Example: "  billingctl reconcile 42",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid invoice id %q", args[0])
			}
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				if env.Reconciler == nil {
					return errors.New("reconcile: database not configured")
				}
				inv, changed, err := env.Reconciler.Reconcile(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if changed {
					fmt.Fprintf(out, "%s marked PAID\n", inv.InvoiceNumber)
					return nil
				}
				fmt.Fprintf(out, "%s unchanged (status %s)\n", inv.InvoiceNumber, inv.Status)
				return nil
			})
		},
	}
}
