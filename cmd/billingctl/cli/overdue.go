package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/billing/internal/billing"
)

type overdueRow struct {
	Number   string `json:"invoiceNumber"`
	Account  string `json:"account"`
	StoreID  int64  `json:"storeId"`
	Total    string `json:"totalAmount"`
	DueDate  string `json:"dueDate"`
	DaysLate int    `json:"daysLate"`
}

func newOverdueCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Report sent invoices that are past due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storeID, _ := cmd.Flags().GetInt64("store")
			asJSON, _ := cmd.Flags().GetBool("json")
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				if env.Overdue == nil {
					return errors.New("overdue: database not configured")
				}
				invoices, _, err := env.Overdue.ListOverdue(ctx, billing.InvoiceFilter{
					StoreID:       storeID,
					Size:          -1,
					SortBy:        "dueDate",
					SortDirection: "asc",
				})
				if err != nil {
					return err
				}
				today := billing.DateOnly(time.Now())
				rows := make([]overdueRow, 0, len(invoices))
				for _, inv := range invoices {
					rows = append(rows, overdueRow{
						Number:   inv.InvoiceNumber,
						Account:  inv.AccountName,
						StoreID:  inv.StoreID,
						Total:    inv.TotalAmount.StringFixed(2),
						DueDate:  inv.DueDate.Format(time.DateOnly),
						DaysLate: int(today.Sub(billing.DateOnly(inv.DueDate)).Hours() / 24),
					})
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(rows)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "INVOICE\tACCOUNT\tSTORE\tTOTAL\tDUE\tDAYS LATE")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n", r.Number, r.Account, r.StoreID, r.Total, r.DueDate, r.DaysLate)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "%d overdue invoice(s)\n", len(rows))
				return nil
			})
		},
	}
	cmd.Flags().Int64("store", 0, "Limit the report to one store")
	cmd.Flags().Bool("json", false, "Emit JSON instead of a table")
	return cmd
}
