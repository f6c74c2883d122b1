// Package cli implements the billingctl admin commands.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/billing/internal/billing"
	"github.com/odyssey-erp/billing/internal/rbac"
)

// Migrator applies schema migrations.
type Migrator interface {
	Files() ([]string, error)
	Up(ctx context.Context) (int, error)
}

// Reconciler reconciles one invoice against its completed payments.
type Reconciler interface {
	Reconcile(ctx context.Context, invoiceID int64) (billing.Invoice, bool, error)
}

// OverdueLister lists overdue invoices.
type OverdueLister interface {
	ListOverdue(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int, error)
}

// JobQueue triggers and inspects background jobs.
type JobQueue interface {
	Trigger(ctx context.Context, name string, storeID int64) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// Env holds the collaborators a command may need. Fields are filled lazily by
// the Opener so commands that need no database never dial one.
type Env struct {
	Migrator   Migrator
	Reconciler Reconciler
	Overdue    OverdueLister
	Jobs       JobQueue
	Tokens     *rbac.TokenManager
}

// Opener builds the Env. The returned func releases its resources.
type Opener func(ctx context.Context) (*Env, func(), error)

// NewRootCommand assembles the billingctl command tree.
func NewRootCommand(open Opener, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Administrative tasks for the billing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().Duration("timeout", 2*time.Minute, "Overall command timeout")

	root.AddCommand(
		newMigrateCommand(open),
		newReconcileCommand(open),
		newOverdueCommand(open),
		newJobsCommand(open),
		newTokenCommand(open),
	)
	return root
}

// withEnv opens the Env under the command timeout and runs fn.
func withEnv(cmd *cobra.Command, open Opener, fn func(ctx context.Context, env *Env) error) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	env, release, err := open(ctx)
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}
	return fn(ctx, env)
}
